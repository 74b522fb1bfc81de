package audio

import (
	"encoding/binary"
	"testing"
	"time"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := make([]byte, 32000) // 1s of 16kHz mono int16

	wav, err := EncodeWAV(pcm, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Errorf("missing RIFF/WAVE markers: %q %q", wav[0:4], wav[8:12])
	}

	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate = %d, want 16000", got)
	}
	if got := binary.LittleEndian.Uint16(wav[22:24]); got != 1 {
		t.Errorf("channels = %d, want 1", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data chunk size = %d, want %d", got, len(pcm))
	}
}

func TestEncodeWAV_Invalid(t *testing.T) {
	t.Run("odd byte count", func(t *testing.T) {
		if _, err := EncodeWAV(make([]byte, 3), 16000, 1); err == nil {
			t.Error("expected error for odd PCM length")
		}
	})
	t.Run("zero sample rate", func(t *testing.T) {
		if _, err := EncodeWAV(nil, 0, 1); err == nil {
			t.Error("expected error for zero sample rate")
		}
	})
	t.Run("zero channels", func(t *testing.T) {
		if _, err := EncodeWAV(nil, 16000, 0); err == nil {
			t.Error("expected error for zero channels")
		}
	})
}

func TestDecodeWAV_RoundTrip(t *testing.T) {
	pcm := make([]byte, 64)
	for i := range pcm {
		pcm[i] = byte(i)
	}

	wav, err := EncodeWAV(pcm, 44100, 2)
	if err != nil {
		t.Fatalf("EncodeWAV: %v", err)
	}

	got, rate, channels, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 44100 || channels != 2 {
		t.Errorf("format = %d Hz / %d ch, want 44100 / 2", rate, channels)
	}
	if string(got) != string(pcm) {
		t.Error("decoded PCM differs from input")
	}
}

func TestDecodeWAV_Invalid(t *testing.T) {
	t.Run("not a wav", func(t *testing.T) {
		if _, _, _, err := DecodeWAV([]byte("OggS....")); err == nil {
			t.Error("expected error for non-RIFF data")
		}
	})
	t.Run("truncated data chunk", func(t *testing.T) {
		wav, err := EncodeWAV(make([]byte, 32), 16000, 1)
		if err != nil {
			t.Fatalf("EncodeWAV: %v", err)
		}
		if _, _, _, err := DecodeWAV(wav[:len(wav)-8]); err == nil {
			t.Error("expected error for truncated container")
		}
	})
}

func TestPCMDuration(t *testing.T) {
	// 16kHz mono int16: 32000 bytes = 1 second.
	if got := PCMDuration(32000, 16000, 1); got != time.Second {
		t.Errorf("duration = %v, want 1s", got)
	}
	// Stereo halves the per-channel sample count.
	if got := PCMDuration(32000, 16000, 2); got != 500*time.Millisecond {
		t.Errorf("stereo duration = %v, want 500ms", got)
	}
	if got := PCMDuration(100, 0, 1); got != 0 {
		t.Errorf("invalid format duration = %v, want 0", got)
	}
}
