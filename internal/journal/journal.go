// Package journal keeps a durable PostgreSQL copy of committed events.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"

	"github.com/leejoonhun/sentinel-vault/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	seq         BIGINT PRIMARY KEY,
	tx_id       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	at          TIMESTAMPTZ NOT NULL,
	order_id    BIGINT,
	order_kind  TEXT,
	owner       TEXT,
	caller      TEXT,
	keeper      TEXT,
	module      TEXT,
	token       TEXT,
	target      TEXT,
	amount      NUMERIC(78, 0),
	amount_out  NUMERIC(78, 0),
	value       NUMERIC(78, 0),
	payload     BYTEA,
	authorized  BOOLEAN NOT NULL DEFAULT FALSE
);
CREATE INDEX IF NOT EXISTS events_order_id_idx ON events (order_id);
CREATE INDEX IF NOT EXISTS events_tx_id_idx ON events (tx_id)`

const insertEvent = `
	INSERT INTO events (seq, tx_id, kind, at, order_id, order_kind, owner, caller, keeper, module, token, target, amount, amount_out, value, payload, authorized)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (seq) DO NOTHING`

const selectSince = `
	SELECT seq, tx_id, kind, at, order_id, order_kind, owner, caller, keeper, module, token, target, amount, amount_out, value, payload, authorized
	FROM events
	WHERE seq > $1
	ORDER BY seq
	LIMIT $2`

const selectLastSeq = `SELECT COALESCE(MAX(seq), 0) FROM events`

// ErrSeqConflict reports events whose sequence number is already taken by
// a different row.
var ErrSeqConflict = errors.New("journal sequence conflict")

// DefaultLimit bounds Since when no limit is given.
const DefaultLimit = 500

// Journal writes events to the events table.
type Journal struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}
	return db, nil
}

// New creates a journal on db.
func New(db *sql.DB) *Journal {
	return &Journal{db: db}
}

// EnsureSchema creates the events table if missing.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	if _, err := j.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure journal schema: %w", err)
	}
	return nil
}

// Append stores events in one database transaction. Events whose
// sequence number is already stored are skipped and reported with
// ErrSeqConflict after the others are committed.
func (j *Journal) Append(ctx context.Context, events ...domain.Event) (err error) {
	if len(events) == 0 {
		return nil
	}
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertEvent)
	if err != nil {
		return fmt.Errorf("prepare journal insert: %w", err)
	}
	defer stmt.Close()

	var conflicts []uint64
	for _, ev := range events {
		var res sql.Result
		if res, err = stmt.ExecContext(ctx, args(ev)...); err != nil {
			return fmt.Errorf("insert event %d: %w", ev.Seq, err)
		}
		if n, rerr := res.RowsAffected(); rerr == nil && n == 0 {
			conflicts = append(conflicts, ev.Seq)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit journal tx: %w", err)
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("events %v: %w", conflicts, ErrSeqConflict)
	}
	return nil
}

// LastSeq returns the highest stored sequence number, or 0 when the table
// is empty.
func (j *Journal) LastSeq(ctx context.Context) (uint64, error) {
	var seq int64
	if err := j.db.QueryRowContext(ctx, selectLastSeq).Scan(&seq); err != nil {
		return 0, fmt.Errorf("query last seq: %w", err)
	}
	return uint64(seq), nil
}

func args(ev domain.Event) []any {
	var orderID sql.NullInt64
	if ev.OrderID != nil {
		orderID = sql.NullInt64{Int64: int64(*ev.OrderID), Valid: true}
	}
	return []any{
		int64(ev.Seq),
		ev.TxID,
		string(ev.Kind),
		ev.At,
		orderID,
		nullString(string(ev.OrderKind)),
		address(ev.Owner),
		address(ev.Caller),
		address(ev.Keeper),
		address(ev.Module),
		address(ev.Token),
		address(ev.Target),
		numeric(ev.Amount),
		numeric(ev.AmountOut),
		numeric(ev.Value),
		ev.Payload,
		ev.Authorized,
	}
}

// Since returns up to limit events with a sequence number above seq, in
// sequence order.
func (j *Journal) Since(ctx context.Context, seq uint64, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	rows, err := j.db.QueryContext(ctx, selectSince, int64(seq), limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var (
			ev        domain.Event
			rowSeq    int64
			kind      string
			orderID   sql.NullInt64
			orderKind sql.NullString
			addrs     [6]sql.NullString
			nums      [3]sql.NullString
		)
		if err := rows.Scan(&rowSeq, &ev.TxID, &kind, &ev.At, &orderID, &orderKind,
			&addrs[0], &addrs[1], &addrs[2], &addrs[3], &addrs[4], &addrs[5],
			&nums[0], &nums[1], &nums[2], &ev.Payload, &ev.Authorized); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Seq = uint64(rowSeq)
		ev.Kind = domain.EventKind(kind)
		if orderID.Valid {
			ev.OrderID = domain.OrderRef(uint64(orderID.Int64))
		}
		ev.OrderKind = domain.OrderKind(orderKind.String)
		ev.Owner = common.HexToAddress(addrs[0].String)
		ev.Caller = common.HexToAddress(addrs[1].String)
		ev.Keeper = common.HexToAddress(addrs[2].String)
		ev.Module = common.HexToAddress(addrs[3].String)
		ev.Token = common.HexToAddress(addrs[4].String)
		ev.Target = common.HexToAddress(addrs[5].String)
		if ev.Amount, err = parseNumeric(nums[0]); err != nil {
			return nil, err
		}
		if ev.AmountOut, err = parseNumeric(nums[1]); err != nil {
			return nil, err
		}
		if ev.Value, err = parseNumeric(nums[2]); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func address(a common.Address) sql.NullString {
	if a == (common.Address{}) {
		return sql.NullString{}
	}
	return sql.NullString{String: a.Hex(), Valid: true}
}

func numeric(v *big.Int) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}

func parseNumeric(s sql.NullString) (*big.Int, error) {
	if !s.Valid {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(s.String, 10)
	if !ok {
		return nil, fmt.Errorf("parse numeric %q", s.String)
	}
	return v, nil
}
