// Package deepgram provides a recognition provider backed by the Deepgram
// streaming WebSocket API. It implements the recognition.Provider interface.
//
// The stream transparently re-dials Deepgram when the transport drops
// mid-session, so consumers see one continuous Results sequence across
// reconnects. Diarization state therefore survives provider-side timeouts
// without any consumer involvement.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/fzalvarez/vetscribe/pkg/recognition"
)

const (
	deepgramEndpoint  = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// redialAttempts bounds transparent reconnection before the stream
	// gives up and closes its Results channel.
	redialAttempts = 5
	redialBackoff  = 500 * time.Millisecond
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// Provider implements recognition.Provider backed by the Deepgram
// streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg recognition.StreamConfig) (recognition.Stream, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	conn, err := dial(ctx, wsURL, p.apiKey)
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	s := &stream{
		wsURL:   wsURL,
		apiKey:  p.apiKey,
		conn:    conn,
		results: make(chan recognition.Result, 64),
		audio:   make(chan []byte, 256),
		done:    make(chan struct{}),
	}

	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.writeLoop(ctx)

	return s, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for cfg.
func (p *Provider) buildURL(cfg recognition.StreamConfig) (string, error) {
	u, err := url.Parse(deepgramEndpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = defaultSampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

func dial(ctx context.Context, wsURL, apiKey string) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Token "+apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	return conn, err
}

// ---- stream ----

// deepgramResponse is the JSON structure returned by Deepgram for a
// Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// stream is a live Deepgram streaming session. It implements
// recognition.Stream.
type stream struct {
	wsURL  string
	apiKey string

	connMu sync.Mutex
	conn   *websocket.Conn

	results chan recognition.Result
	audio   chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *stream) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("deepgram: stream is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("deepgram: stream is closed")
	}
}

// Results returns the ordered recognition event channel.
func (s *stream) Results() <-chan recognition.Result { return s.results }

// Close terminates the stream cleanly.
func (s *stream) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Ask Deepgram to flush pending audio before the socket drops.
		_ = s.current().Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.current().Close(websocket.StatusNormalClosure, "stream closed")
	})
	return nil
}

func (s *stream) current() *websocket.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *stream) swap(conn *websocket.Conn) {
	s.connMu.Lock()
	old := s.conn
	s.conn = conn
	s.connMu.Unlock()
	if old != nil {
		old.Close(websocket.StatusNormalClosure, "superseded by redial")
	}
}

// writeLoop reads from the audio channel and sends binary messages to
// Deepgram.
func (s *stream) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			// A write error here is recovered by the read loop's redial;
			// the chunk is dropped rather than retried to preserve pacing.
			_ = s.current().Write(ctx, websocket.MessageBinary, chunk)
		case <-s.done:
			return
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches them to the
// results channel. On a transport error it attempts a bounded redial before
// giving up, keeping the Results sequence continuous across reconnects.
func (s *stream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)

	for {
		_, msg, err := s.current().Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				return
			case <-ctx.Done():
				return
			default:
			}
			if !s.redial(ctx) {
				return
			}
			continue
		}

		res, ok := parseResponse(msg)
		if !ok {
			continue
		}
		res.ArrivedAt = time.Now()

		select {
		case s.results <- res:
		case <-s.done:
			return
		}
	}
}

// redial attempts to re-establish the WebSocket connection with backoff.
// Returns false when the attempts are exhausted or the stream is closing.
func (s *stream) redial(ctx context.Context) bool {
	backoff := redialBackoff
	for attempt := 1; attempt <= redialAttempts; attempt++ {
		select {
		case <-s.done:
			return false
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}

		conn, err := dial(ctx, s.wsURL, s.apiKey)
		if err == nil {
			s.swap(conn)
			slog.Info("deepgram stream reconnected", "attempt", attempt)
			return true
		}

		slog.Warn("deepgram redial failed",
			"attempt", attempt,
			"max_attempts", redialAttempts,
			"err", err,
		)
		backoff *= 2
	}
	slog.Error("deepgram stream lost after redial attempts exhausted",
		"max_attempts", redialAttempts)
	return false
}

// parseResponse parses a raw Deepgram WebSocket message into a Result.
// Returns (Result, true) on success, or (zero, false) when the message
// should be ignored.
func parseResponse(data []byte) (recognition.Result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return recognition.Result{}, false
	}
	if resp.Type != "Results" {
		return recognition.Result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return recognition.Result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return recognition.Result{}, false
	}
	return recognition.Result{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
	}, true
}
