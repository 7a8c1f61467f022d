// Package ledger keeps a SQLite history of TOON conversions and their
// estimated savings.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/pario-ai/toongate/pkg/config"
	"github.com/pario-ai/toongate/pkg/models"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("ledger closed")

// Ledger writes and queries conversion records.
type Ledger struct {
	db     *sql.DB
	cfg    config.LedgerConfig
	closed atomic.Bool
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// New opens the ledger database, creates the schema and starts the hourly
// retention sweep.
func New(cfg config.LedgerConfig) (*Ledger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open ledger db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate ledger db: %w", err)
	}

	l := &Ledger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS conversions (
	id               TEXT PRIMARY KEY,
	request_id       TEXT NOT NULL,
	path             TEXT NOT NULL,
	method           TEXT NOT NULL,
	client_type      TEXT NOT NULL,
	confidence       REAL NOT NULL,
	cache_hit        INTEGER NOT NULL DEFAULT 0,
	original_tokens  INTEGER NOT NULL,
	converted_tokens INTEGER NOT NULL,
	tokens_saved     INTEGER NOT NULL,
	percentage       INTEGER NOT NULL,
	cost_saved       REAL NOT NULL,
	original_size    INTEGER NOT NULL,
	converted_size   INTEGER NOT NULL,
	latency_ms       INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversions_path ON conversions(path, created_at);
CREATE INDEX IF NOT EXISTS idx_conversions_created ON conversions(created_at);
CREATE INDEX IF NOT EXISTS idx_conversions_request ON conversions(request_id);
`

func migrate(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}

// Record inserts rec. A missing ID or CreatedAt is filled in.
func (l *Ledger) Record(ctx context.Context, rec models.ConversionRecord) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO conversions
		(id, request_id, path, method, client_type, confidence, cache_hit,
		 original_tokens, converted_tokens, tokens_saved, percentage, cost_saved,
		 original_size, converted_size, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RequestID, rec.Path, rec.Method, string(rec.ClientType),
		rec.Confidence, rec.CacheHit,
		rec.OriginalTokens, rec.ConvertedTokens, rec.TokensSaved, rec.Percentage, rec.CostSaved,
		rec.OriginalSize, rec.ConvertedSize, rec.LatencyMs, rec.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record conversion: %w", err)
	}
	return nil
}

// TrackConversion records rec; it lets the ledger serve as a middleware tracker.
func (l *Ledger) TrackConversion(ctx context.Context, rec models.ConversionRecord) error {
	return l.Record(ctx, rec)
}

// Query returns records matching q, newest first. Limit defaults to 100.
func (l *Ledger) Query(ctx context.Context, q models.LedgerQuery) ([]models.ConversionRecord, error) {
	stmt := `SELECT id, request_id, path, method, client_type, confidence, cache_hit,
		original_tokens, converted_tokens, tokens_saved, percentage, cost_saved,
		original_size, converted_size, latency_ms, created_at
		FROM conversions WHERE 1=1`
	var args []any

	if q.Path != "" {
		stmt += " AND path = ?"
		args = append(args, q.Path)
	}
	if q.ClientType != "" {
		stmt += " AND client_type = ?"
		args = append(args, string(q.ClientType))
	}
	if q.RequestID != "" {
		stmt += " AND request_id = ?"
		args = append(args, q.RequestID)
	}
	if !q.Since.IsZero() {
		stmt += " AND created_at >= ?"
		args = append(args, q.Since.UTC())
	}

	stmt += " ORDER BY created_at DESC"

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}
	stmt += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var records []models.ConversionRecord
	for rows.Next() {
		var r models.ConversionRecord
		var client string
		if err := rows.Scan(
			&r.ID, &r.RequestID, &r.Path, &r.Method, &client, &r.Confidence, &r.CacheHit,
			&r.OriginalTokens, &r.ConvertedTokens, &r.TokensSaved, &r.Percentage, &r.CostSaved,
			&r.OriginalSize, &r.ConvertedSize, &r.LatencyMs, &r.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ledger row: %w", err)
		}
		r.ClientType = models.ClientType(client)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary aggregates records created at or after since (all records when
// since is zero), grouped by path, largest savings first.
func (l *Ledger) Summary(ctx context.Context, since time.Time) ([]models.ConversionSummary, error) {
	stmt := `SELECT path, COUNT(*), COALESCE(SUM(cache_hit), 0),
		SUM(original_tokens), SUM(converted_tokens), SUM(tokens_saved), SUM(cost_saved)
		FROM conversions`
	var args []any
	if !since.IsZero() {
		stmt += ` WHERE created_at >= ?`
		args = append(args, since.UTC())
	}
	stmt += ` GROUP BY path ORDER BY SUM(tokens_saved) DESC, path`

	rows, err := l.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger summary: %w", err)
	}
	defer rows.Close()

	var summaries []models.ConversionSummary
	for rows.Next() {
		var s models.ConversionSummary
		if err := rows.Scan(&s.Path, &s.Conversions, &s.CacheHits,
			&s.OriginalTokens, &s.ConvertedTokens, &s.TokensSaved, &s.CostSaved); err != nil {
			return nil, fmt.Errorf("scan ledger summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// Cleanup deletes records older than the retention period. A non-positive
// RetentionDays keeps everything.
func (l *Ledger) Cleanup(ctx context.Context) (int64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	if l.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().AddDate(0, 0, -l.cfg.RetentionDays).UTC()
	res, err := l.db.ExecContext(ctx, `DELETE FROM conversions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("ledger cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database. Later calls
// are no-ops.
func (l *Ledger) Close() error {
	var err error
	l.once.Do(func() {
		l.closed.Store(true)
		close(l.done)
		l.wg.Wait()
		err = l.db.Close()
	})
	return err
}

func (l *Ledger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}
