package storage

// Append-only event journal on SQLite (pure Go, no CGo).
//
// Amounts are stored as decimal TEXT so 256-bit values survive intact.
// Timestamps are unix nanoseconds. Unsigned ids are stored through their
// int64 bit pattern, which keeps equality filters exact.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/oddspool/internal/domain"
	"github.com/alejandrodnm/oddspool/internal/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
    seq          INTEGER PRIMARY KEY AUTOINCREMENT,
    id           TEXT    NOT NULL UNIQUE,
    kind         TEXT    NOT NULL,
    at           INTEGER NOT NULL,
    account      TEXT    NOT NULL,
    condition_id INTEGER NOT NULL DEFAULT 0,
    bet_id       INTEGER NOT NULL DEFAULT 0,
    outcome      INTEGER NOT NULL DEFAULT 0,
    amount       TEXT    NOT NULL DEFAULT '0',
    odds         TEXT    NOT NULL DEFAULT '0',
    shares       TEXT    NOT NULL DEFAULT '0'
);

CREATE INDEX IF NOT EXISTS idx_events_at        ON events(at);
CREATE INDEX IF NOT EXISTS idx_events_kind      ON events(kind);
CREATE INDEX IF NOT EXISTS idx_events_condition ON events(condition_id);
`

// SQLiteJournal implements ports.EventJournal.
type SQLiteJournal struct {
	db *sql.DB
}

var _ ports.EventJournal = (*SQLiteJournal)(nil)

// NewSQLiteJournal opens (or creates) the journal at path and applies the
// schema. Use ":memory:" for a throwaway journal.
func NewSQLiteJournal(path string) (*SQLiteJournal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteJournal: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteJournal: apply schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Publish appends ev to the journal.
func (j *SQLiteJournal) Publish(ctx context.Context, ev domain.Event) error {
	if _, err := j.db.ExecContext(ctx, `
		INSERT INTO events
			(id, kind, at, account, condition_id, bet_id, outcome, amount, odds, shares)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID.String(),
		string(ev.Kind),
		ev.At.UTC().UnixNano(),
		ev.Account.Hex(),
		int64(ev.ConditionID),
		int64(ev.BetID),
		int64(ev.Outcome),
		ev.Amount.Dec(),
		ev.Odds.Dec(),
		ev.Shares.Dec(),
	); err != nil {
		return fmt.Errorf("storage.Publish: insert %s: %w", ev.Kind, err)
	}
	return nil
}

// List returns the events matching f, oldest first.
func (j *SQLiteJournal) List(ctx context.Context, f ports.EventFilter) ([]domain.Event, error) {
	var (
		where []string
		args  []any
	)
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	if f.ConditionID != 0 {
		where = append(where, "condition_id = ?")
		args = append(args, int64(f.ConditionID))
	}
	if !f.From.IsZero() {
		where = append(where, "at >= ?")
		args = append(args, f.From.UTC().UnixNano())
	}
	if !f.To.IsZero() {
		where = append(where, "at <= ?")
		args = append(args, f.To.UTC().UnixNano())
	}

	q := `SELECT id, kind, at, account, condition_id, bet_id, outcome, amount, odds, shares FROM events`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq ASC"
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("storage.List: query: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.List: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Prune deletes events older than before and reports how many went.
func (j *SQLiteJournal) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, `DELETE FROM events WHERE at < ?`, before.UTC().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("storage.Prune: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

func scanEvent(rows *sql.Rows) (domain.Event, error) {
	var (
		ev                        domain.Event
		id, kind, account         string
		at                        int64
		condID, betID, outcome    int64
		amount, odds, sharesField string
	)
	if err := rows.Scan(&id, &kind, &at, &account, &condID, &betID, &outcome, &amount, &odds, &sharesField); err != nil {
		return ev, fmt.Errorf("scan row: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return ev, fmt.Errorf("event id %q: %w", id, err)
	}
	ev.ID = parsed
	ev.Kind = domain.EventKind(kind)
	ev.At = time.Unix(0, at).UTC()
	ev.Account = common.HexToAddress(account)
	ev.ConditionID = uint64(condID)
	ev.BetID = uint64(betID)
	ev.Outcome = uint64(outcome)

	for _, f := range []struct {
		dst *uint256.Int
		src string
	}{
		{&ev.Amount, amount},
		{&ev.Odds, odds},
		{&ev.Shares, sharesField},
	} {
		if err := f.dst.SetFromDecimal(f.src); err != nil {
			return ev, fmt.Errorf("event %s: decimal %q: %w", id, f.src, err)
		}
	}
	return ev, nil
}
