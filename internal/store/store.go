// Package store persists the in-progress session to local disk so a crash
// mid-visit loses nothing: transcript, captured audio, and any generated or
// edited report survive a restart.
//
// The store holds exactly one session — the slot model. Saving merges the
// given fields into whatever the slot already holds, so callers persist what
// they have when they have it (segments after each commit, audio at stop,
// report after analysis) without clobbering the rest.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fzalvarez/vetscribe/internal/report"
	"github.com/fzalvarez/vetscribe/pkg/types"
)

// ErrNoSession is returned by Load when the slot is empty.
var ErrNoSession = errors.New("store: no saved session")

// Session is the full persisted state of one visit.
type Session struct {
	// Segments is the committed transcript.
	Segments []types.Segment

	// AudioBytes is the encoded recording, empty until the recording stops.
	AudioBytes []byte

	// AudioMimeType describes AudioBytes, e.g. "audio/wav".
	AudioMimeType string

	// RecordingStart anchors transcript offsets. Zero until recording begins.
	RecordingStart time.Time

	// Report is the model-generated report, nil until analysis completes.
	Report *report.Report

	// EditedReport carries human edits over Report. Nil when never edited.
	EditedReport *report.Report

	// EditedPaths lists the field paths the human changed in EditedReport.
	EditedPaths []string

	// SavedAt is when the slot was last written.
	SavedAt time.Time
}

// Update names the fields to merge into the slot. Nil fields are left as
// persisted; non-nil fields replace what the slot holds.
type Update struct {
	Segments       *[]types.Segment
	AudioBytes     *[]byte
	AudioMimeType  *string
	RecordingStart *time.Time
	Report         *report.Report
	EditedReport   *report.Report
	EditedPaths    *[]string
}

// Store is a single-slot session store backed by a SQLite file.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

// Option customizes a Store.
type Option func(*Store)

// WithLogger routes logging. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id              INTEGER PRIMARY KEY CHECK (id = 1),
	segments        TEXT NOT NULL DEFAULT '[]',
	audio           BLOB,
	audio_mime      TEXT NOT NULL DEFAULT '',
	recording_start TEXT NOT NULL DEFAULT '',
	report          TEXT,
	edited_report   TEXT,
	edited_paths    TEXT NOT NULL DEFAULT '[]',
	saved_at        TEXT NOT NULL
);
`

// Open opens (creating if needed) the store at path. The database runs in
// WAL mode so a crash mid-write never corrupts the slot.
func Open(path string, opts ...Option) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// The slot is written by one process; concurrency comes from goroutines,
	// which SQLite serializes best over a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}

	s := &Store{db: db, log: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save merges u into the slot atomically. An empty slot is created first, so
// the first Save of a session works the same as every later one.
func (s *Store) Save(ctx context.Context, u Update) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin save: %w", err)
	}
	defer tx.Rollback()

	sess, err := loadTx(ctx, tx)
	if err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	if sess == nil {
		sess = &Session{}
	}

	if u.Segments != nil {
		sess.Segments = *u.Segments
	}
	if u.AudioBytes != nil {
		sess.AudioBytes = *u.AudioBytes
	}
	if u.AudioMimeType != nil {
		sess.AudioMimeType = *u.AudioMimeType
	}
	if u.RecordingStart != nil {
		sess.RecordingStart = *u.RecordingStart
	}
	if u.Report != nil {
		sess.Report = u.Report
	}
	if u.EditedReport != nil {
		sess.EditedReport = u.EditedReport
	}
	if u.EditedPaths != nil {
		sess.EditedPaths = *u.EditedPaths
	}
	sess.SavedAt = time.Now().UTC()

	if err := writeTx(ctx, tx, sess); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit save: %w", err)
	}
	return nil
}

// Load returns the persisted session, or ErrNoSession when the slot is empty.
func (s *Store) Load(ctx context.Context) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("store: begin load: %w", err)
	}
	defer tx.Rollback()
	return loadTx(ctx, tx)
}

// Clear empties the slot. Clearing an already-empty slot is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1`); err != nil {
		return fmt.Errorf("store: clear: %w", err)
	}
	return nil
}

func loadTx(ctx context.Context, tx *sql.Tx) (*Session, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT segments, audio, audio_mime, recording_start, report, edited_report, edited_paths, saved_at
		FROM session WHERE id = 1`)

	var (
		segmentsJSON   string
		audio          []byte
		audioMime      string
		recordingStart string
		reportJSON     sql.NullString
		editedJSON     sql.NullString
		pathsJSON      string
		savedAt        string
	)
	err := row.Scan(&segmentsJSON, &audio, &audioMime, &recordingStart, &reportJSON, &editedJSON, &pathsJSON, &savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("store: load: %w", err)
	}

	sess := &Session{AudioBytes: audio, AudioMimeType: audioMime}
	if err := json.Unmarshal([]byte(segmentsJSON), &sess.Segments); err != nil {
		return nil, fmt.Errorf("store: decode segments: %w", err)
	}
	if err := json.Unmarshal([]byte(pathsJSON), &sess.EditedPaths); err != nil {
		return nil, fmt.Errorf("store: decode edited paths: %w", err)
	}
	if recordingStart != "" {
		sess.RecordingStart, err = time.Parse(time.RFC3339Nano, recordingStart)
		if err != nil {
			return nil, fmt.Errorf("store: decode recording start: %w", err)
		}
	}
	if reportJSON.Valid {
		sess.Report = &report.Report{}
		if err := json.Unmarshal([]byte(reportJSON.String), sess.Report); err != nil {
			return nil, fmt.Errorf("store: decode report: %w", err)
		}
	}
	if editedJSON.Valid {
		sess.EditedReport = &report.Report{}
		if err := json.Unmarshal([]byte(editedJSON.String), sess.EditedReport); err != nil {
			return nil, fmt.Errorf("store: decode edited report: %w", err)
		}
	}
	sess.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt)
	if err != nil {
		return nil, fmt.Errorf("store: decode saved_at: %w", err)
	}
	return sess, nil
}

func writeTx(ctx context.Context, tx *sql.Tx, sess *Session) error {
	segmentsJSON, err := json.Marshal(sess.Segments)
	if err != nil {
		return fmt.Errorf("store: encode segments: %w", err)
	}
	pathsJSON, err := json.Marshal(sess.EditedPaths)
	if err != nil {
		return fmt.Errorf("store: encode edited paths: %w", err)
	}
	if sess.EditedPaths == nil {
		pathsJSON = []byte("[]")
	}

	var reportJSON, editedJSON any
	if sess.Report != nil {
		b, err := json.Marshal(sess.Report)
		if err != nil {
			return fmt.Errorf("store: encode report: %w", err)
		}
		reportJSON = string(b)
	}
	if sess.EditedReport != nil {
		b, err := json.Marshal(sess.EditedReport)
		if err != nil {
			return fmt.Errorf("store: encode edited report: %w", err)
		}
		editedJSON = string(b)
	}

	var recordingStart string
	if !sess.RecordingStart.IsZero() {
		recordingStart = sess.RecordingStart.UTC().Format(time.RFC3339Nano)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO session (id, segments, audio, audio_mime, recording_start, report, edited_report, edited_paths, saved_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			segments = excluded.segments,
			audio = excluded.audio,
			audio_mime = excluded.audio_mime,
			recording_start = excluded.recording_start,
			report = excluded.report,
			edited_report = excluded.edited_report,
			edited_paths = excluded.edited_paths,
			saved_at = excluded.saved_at`,
		string(segmentsJSON), sess.AudioBytes, sess.AudioMimeType, recordingStart,
		reportJSON, editedJSON, string(pathsJSON), sess.SavedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("store: write slot: %w", err)
	}
	return nil
}
