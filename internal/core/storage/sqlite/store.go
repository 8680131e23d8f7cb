package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dimensify/dimensify/internal/core/events"
	"github.com/dimensify/dimensify/internal/core/events/bus"
	"github.com/dimensify/dimensify/internal/core/observability/log"
	"github.com/dimensify/dimensify/internal/core/protocol"
	"github.com/dimensify/dimensify/internal/core/storage/interfaces"
)

var (
	ErrEmptyPath = errors.New("empty db path")
	ErrClosed    = errors.New("command store closed")
)

var _ interfaces.CommandStore = (*Store)(nil)

// Store keeps the command log in a single sqlite table.
type Store struct {
	db     *sql.DB
	logger log.Log
}

// Open creates or opens the database at path.
func Open(path string, logger log.Log) (*Store, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger.With(log.Component("command_store"), log.String("path", path))}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS commands (
			seq INTEGER PRIMARY KEY,
			origin TEXT NOT NULL,
			variant TEXT NOT NULL,
			command TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *Store) Append(ctx context.Context, rec interfaces.CommandRecord) error {
	if s.db == nil {
		return ErrClosed
	}
	if rec.Command == nil {
		return fmt.Errorf("append seq %d: nil command", rec.Seq)
	}
	body, err := json.Marshal(rec.Command)
	if err != nil {
		return fmt.Errorf("encode seq %d: %w", rec.Seq, err)
	}
	at := rec.RecordedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO commands(seq, origin, variant, command, recorded_at) VALUES(?, ?, ?, ?, ?)`,
		rec.Seq, rec.Origin, rec.Command.Variant(), string(body), at.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert seq %d: %w", rec.Seq, err)
	}
	return nil
}

// Load returns every decodable record in Seq order. Rows whose command no
// longer decodes are logged and skipped.
func (s *Store) Load(ctx context.Context) ([]interfaces.CommandRecord, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq, origin, command, recorded_at FROM commands ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query commands: %w", err)
	}
	defer rows.Close()

	var out []interfaces.CommandRecord
	for rows.Next() {
		var (
			seq    int
			origin string
			body   string
			at     string
		)
		if err := rows.Scan(&seq, &origin, &body, &at); err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		cmd, err := protocol.DecodeCommand([]byte(body))
		if err != nil {
			s.logger.Warn("skipping undecodable stored command", log.Int("seq", seq), log.Error(err))
			continue
		}
		recordedAt, _ := time.Parse(time.RFC3339Nano, at)
		out = append(out, interfaces.CommandRecord{Seq: seq, Origin: origin, Command: cmd, RecordedAt: recordedAt})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return out, nil
}

func (s *Store) Statistics(ctx context.Context) (interfaces.StorageStatistics, error) {
	if s.db == nil {
		return interfaces.StorageStatistics{}, ErrClosed
	}
	var (
		count   int
		lastSeq sql.NullInt64
	)
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MAX(seq) FROM commands`)
	if err := row.Scan(&count, &lastSeq); err != nil {
		return interfaces.StorageStatistics{}, fmt.Errorf("stats: %w", err)
	}
	stats := interfaces.StorageStatistics{Records: count, LastSeq: -1}
	if lastSeq.Valid {
		stats.LastSeq = int(lastSeq.Int64)
	}
	return stats, nil
}

// Attach persists every command.appended event published on eventBus.
func (s *Store) Attach(eventBus bus.EventBus) (bus.Subscription, error) {
	return eventBus.Subscribe(events.CommandAppended, func(e bus.Event) error {
		d, ok := e.Data().(events.CommandAppendedData)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.Append(ctx, interfaces.CommandRecord{
			Seq:        d.Seq,
			Origin:     d.Origin,
			Command:    d.Command,
			RecordedAt: e.Timestamp(),
		})
	})
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}
