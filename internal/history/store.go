// SPDX-License-Identifier: MPL-2.0

package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/tunegrab/tunegrab/internal/selfupdate"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const (
	// listenerTimeout bounds a ledger write made from a state listener.
	listenerTimeout = 5 * time.Second

	schema = `
		CREATE TABLE IF NOT EXISTS cycles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			from_version TEXT NOT NULL,
			to_version TEXT NOT NULL,
			run_mode TEXT NOT NULL DEFAULT '',
			state TEXT NOT NULL,
			sha256 TEXT NOT NULL DEFAULT '',
			byte_size INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			degraded INTEGER NOT NULL DEFAULT 0,
			confirmed_at TEXT
		);
		CREATE INDEX IF NOT EXISTS cycles_started_at ON cycles (started_at);
	`

	selectColumns = `id, started_at, updated_at, from_version, to_version, run_mode,
		state, sha256, byte_size, error, degraded, confirmed_at`
)

// ErrNotFound is returned when a cycle id has no ledger row.
var ErrNotFound = errors.New("update cycle not found")

type (
	// Entry is one recorded update cycle.
	Entry struct {
		ID          int64      `json:"id" yaml:"id"`
		StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
		UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
		FromVersion string     `json:"from_version" yaml:"from_version"`
		ToVersion   string     `json:"to_version" yaml:"to_version"`
		RunMode     string     `json:"run_mode" yaml:"run_mode"`
		State       string     `json:"state" yaml:"state"`
		SHA256      string     `json:"sha256,omitempty" yaml:"sha256,omitempty"`
		ByteSize    int64      `json:"byte_size" yaml:"byte_size"`
		Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
		Degraded    bool       `json:"degraded" yaml:"degraded"`
		ConfirmedAt *time.Time `json:"confirmed_at,omitempty" yaml:"confirmed_at,omitempty"`
	}

	// Store is the ledger database. It is safe for concurrent use.
	Store struct {
		db     *sql.DB
		path   string
		logger *log.Logger
		now    func() time.Time
	}

	// Option configures a Store.
	Option func(*Store)
)

// WithLogger sets the logger used for best-effort writes.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// buildDSN returns a read-write DSN with WAL journaling and a busy timeout,
// so a relaunched successor can write while its parent is still closing.
func buildDSN(path string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}
	q := url.Values{}
	q.Add("_pragma", "busy_timeout(3000)")
	q.Add("_pragma", "journal_mode(WAL)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Open opens or creates the ledger at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping history db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create history schema: %w", err)
	}

	s := &Store{db: db, path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.NewWithOptions(os.Stderr, log.Options{Prefix: "history", Level: log.WarnLevel})
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Begin records a new cycle from one version to another and returns its id.
func (s *Store) Begin(ctx context.Context, from, to string, runMode selfupdate.RunMode) (int64, error) {
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO cycles (started_at, updated_at, from_version, to_version, run_mode, state)
		VALUES (?, ?, ?, ?, ?, ?)
	`, now, now, from, to, string(runMode), selfupdate.StateIdle.String())
	if err != nil {
		return 0, fmt.Errorf("insert cycle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read cycle id: %w", err)
	}
	return id, nil
}

// RecordState stores the state a cycle reached. A non-nil err is kept as
// the cycle error; a DegradedState error also sets the degraded flag.
func (s *Store) RecordState(ctx context.Context, id int64, state selfupdate.InstallState, cause error) error {
	errText := ""
	degraded := false
	if cause != nil {
		errText = cause.Error()
		degraded = errors.Is(cause, selfupdate.ErrDegradedState)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE cycles
		SET state = ?, updated_at = ?,
			error = CASE WHEN ? = '' THEN error ELSE ? END,
			degraded = CASE WHEN ? THEN 1 ELSE degraded END
		WHERE id = ?
	`, state.String(), formatTime(s.now()), errText, errText, degraded, id)
	if err != nil {
		return fmt.Errorf("update cycle %d: %w", id, err)
	}
	return requireRow(res, id)
}

// RecordArtifact stores the digest and size of the downloaded artifact.
func (s *Store) RecordArtifact(ctx context.Context, id int64, res *selfupdate.DownloadResult) error {
	if res == nil {
		return nil
	}
	r, err := s.db.ExecContext(ctx, `
		UPDATE cycles SET sha256 = ?, byte_size = ?, updated_at = ? WHERE id = ?
	`, res.SHA256, res.ByteSize, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("update cycle %d: %w", id, err)
	}
	return requireRow(r, id)
}

// Confirm marks a cycle as confirmed by the relaunched successor.
func (s *Store) Confirm(ctx context.Context, id int64) error {
	now := formatTime(s.now())
	res, err := s.db.ExecContext(ctx, `
		UPDATE cycles SET state = ?, confirmed_at = ?, updated_at = ? WHERE id = ?
	`, selfupdate.StateDone.String(), now, now, id)
	if err != nil {
		return fmt.Errorf("confirm cycle %d: %w", id, err)
	}
	return requireRow(res, id)
}

// Listener returns a StateListener recording every transition of cycle id.
// Write failures are logged and never interrupt the cycle.
func (s *Store) Listener(id int64) selfupdate.StateListener {
	return func(_, to selfupdate.InstallState, cause error) {
		ctx, cancel := context.WithTimeout(context.Background(), listenerTimeout)
		defer cancel()
		if err := s.RecordState(ctx, id, to, cause); err != nil {
			s.logger.Warn("could not record update state", "cycle", id, "state", to, "err", err)
		}
	}
}

// Get returns one cycle.
func (s *Store) Get(ctx context.Context, id int64) (Entry, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM cycles WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return e, err
}

// List returns the most recent cycles first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+selectColumns+`
		FROM cycles
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (Entry, error) {
	var (
		e                Entry
		started, updated string
		confirmed        sql.NullString
		degraded         int
	)
	if err := sc.Scan(&e.ID, &started, &updated, &e.FromVersion, &e.ToVersion, &e.RunMode,
		&e.State, &e.SHA256, &e.ByteSize, &e.Error, &degraded, &confirmed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, err
		}
		return Entry{}, fmt.Errorf("scan cycle: %w", err)
	}
	e.StartedAt = parseTime(started)
	e.UpdatedAt = parseTime(updated)
	e.Degraded = degraded != 0
	if confirmed.Valid {
		t := parseTime(confirmed.String)
		e.ConfirmedAt = &t
	}
	return e, nil
}

func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update cycle %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
