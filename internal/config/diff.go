package config

// ConfigDiff describes what changed between two configs. Only fields that
// can be safely hot-reloaded without restarting the session are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PulseIntervalChanged bool
	NewPulseInterval     Duration

	RateGateChanged bool
	NewRateGate     RateGateConfig
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Session.PulseInterval != new.Session.PulseInterval {
		d.PulseIntervalChanged = true
		d.NewPulseInterval = new.Session.PulseInterval
	}
	if old.RateGate != new.RateGate {
		d.RateGateChanged = true
		d.NewRateGate = new.RateGate
	}
	return d
}
