// Package sqlite persists the append-only decision log. One row per tick,
// never rewritten.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type Store struct {
	db *sql.DB
}

// DecisionRow is one tick's terminal record.
type DecisionRow struct {
	ID            int64
	TickID        string
	Pair          string
	Status        string
	Action        string
	Confidence    float64
	Method        string
	Reason        string
	Contributions string // JSON
	OrderJSON     string // JSON, empty when no order was produced
	TradeID       string
	Error         string
	CreatedAt     time.Time
}

func Open(dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tick_id TEXT NOT NULL,
		pair TEXT NOT NULL,
		status TEXT NOT NULL,
		action TEXT NOT NULL,
		confidence REAL NOT NULL,
		method TEXT NOT NULL,
		reason TEXT,
		contributions_json TEXT,
		order_json TEXT,
		trade_id TEXT,
		error TEXT,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_pair ON decisions(pair);
	CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create decisions table: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) InsertDecision(ctx context.Context, row DecisionRow) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions
		(tick_id, pair, status, action, confidence, method, reason,
		 contributions_json, order_json, trade_id, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.TickID, row.Pair, row.Status, row.Action, row.Confidence,
		row.Method, row.Reason, row.Contributions, row.OrderJSON,
		row.TradeID, row.Error, row.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	return nil
}

// RecentDecisions returns the newest rows first.
func (s *Store) RecentDecisions(ctx context.Context, limit int) ([]DecisionRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tick_id, pair, status, action, confidence, method,
		       COALESCE(reason, ''), COALESCE(contributions_json, ''),
		       COALESCE(order_json, ''), COALESCE(trade_id, ''),
		       COALESCE(error, ''), created_at
		FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRow
	for rows.Next() {
		var row DecisionRow
		if err := rows.Scan(&row.ID, &row.TickID, &row.Pair, &row.Status,
			&row.Action, &row.Confidence, &row.Method, &row.Reason,
			&row.Contributions, &row.OrderJSON, &row.TradeID,
			&row.Error, &row.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
