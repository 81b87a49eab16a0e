// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wardd-org/wardd/internal/events"
	"github.com/wardd-org/wardd/internal/metrics"
)

// ErrJournalQuotaExceeded indicates the requested append cannot be satisfied
// because the payload is larger than the configured journal limit.
var ErrJournalQuotaExceeded = errors.New("coredb: journal quota exceeded")

// Journal provides append-only audit persistence backed by the core DB.
// When the byte quota is exhausted the oldest entries are evicted inside the
// same transaction as the insert, so the trail never exceeds its budget.
type Journal struct {
	db       *sql.DB
	maxBytes int64
	nowFn    func() time.Time
}

// NewJournal returns a Journal backed by the provided DB with the supplied
// maximum size budget. When maxBytes is zero or negative the default (64 MiB)
// is used.
func NewJournal(db *DB, maxBytes int64) *Journal {
	if db == nil {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = defaultJournalMaxBytes
	}
	return &Journal{
		db:       db.sql,
		maxBytes: maxBytes,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Append persists one audit event and returns it with the allocated
// sequence number. Eviction and insertion happen in a single transaction.
func (j *Journal) Append(ctx context.Context, ev events.Event) (out events.Event, err error) {
	if j == nil {
		return ev, nil
	}

	timer := metrics.StartPersistenceTimer(metrics.PersistenceOperationJournalAppend)
	outcome := metrics.PersistenceOutcomeError
	defer func() {
		if timer != nil {
			timer.Observe(outcome)
		}
	}()

	if ev.Type == "" {
		err = fmt.Errorf("append journal: event type required")
		return ev, err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = j.nowFn()
	}

	var payload []byte
	payload, err = json.Marshal(ev)
	if err != nil {
		err = fmt.Errorf("append journal: encode event: %w", err)
		return ev, err
	}
	payloadBytes := int64(len(payload))
	if payloadBytes > j.maxBytes {
		outcome = metrics.PersistenceOutcomeQuotaExceeded
		err = ErrJournalQuotaExceeded
		return ev, err
	}

	var tx *sql.Tx
	tx, err = j.db.BeginTx(ctx, nil)
	if err != nil {
		err = fmt.Errorf("begin journal tx: %w", err)
		return ev, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existingBytes int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(payload)), 0) FROM core_audit_journal`).Scan(&existingBytes); err != nil {
		err = fmt.Errorf("journal size lookup: %w", err)
		return ev, err
	}

	for existingBytes+payloadBytes > j.maxBytes {
		var seq int64
		var size int64
		err = tx.QueryRowContext(ctx, `SELECT seq, length(payload) FROM core_audit_journal ORDER BY seq ASC LIMIT 1`).Scan(&seq, &size)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			break
		}
		if err != nil {
			err = fmt.Errorf("journal eviction lookup: %w", err)
			return ev, err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM core_audit_journal WHERE seq = ?`, seq); err != nil {
			err = fmt.Errorf("journal eviction delete seq=%d: %w", seq, err)
			return ev, err
		}
		metrics.RecordPersistenceEviction(metrics.PersistenceKindJournal, size)
		existingBytes -= size
		if existingBytes < 0 {
			existingBytes = 0
		}
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
INSERT INTO core_audit_journal (event_type, command, plan_id, execution_id, approval_id, payload, ts)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, ev.Type, ev.Command, ev.PlanID, ev.ExecutionID, ev.ApprovalID, payload, ev.Timestamp.UnixMilli())
	if err != nil {
		err = fmt.Errorf("journal insert: %w", err)
		return ev, err
	}
	var seq int64
	seq, err = res.LastInsertId()
	if err != nil {
		err = fmt.Errorf("journal last insert id: %w", err)
		return ev, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("journal commit: %w", err)
		return ev, err
	}

	ev.Sequence = seq
	outcome = metrics.PersistenceOutcomeOK
	return ev, nil
}

// Query filters journal reads. Zero values mean no constraint; a
// non-positive limit returns everything matching.
type Query struct {
	EventType   string
	ExecutionID string
	Limit       int
}

// List returns persisted events newest first.
func (j *Journal) List(ctx context.Context, q Query) (out []events.Event, err error) {
	if j == nil {
		return nil, nil
	}

	timer := metrics.StartPersistenceTimer(metrics.PersistenceOperationJournalRead)
	outcome := metrics.PersistenceOutcomeError
	defer func() {
		if timer != nil {
			timer.Observe(outcome)
		}
	}()

	query := `SELECT seq, payload FROM core_audit_journal`
	var clauses []string
	var args []interface{}
	if q.EventType != "" {
		clauses = append(clauses, "event_type = ?")
		args = append(args, q.EventType)
	}
	if q.ExecutionID != "" {
		clauses = append(clauses, "execution_id = ?")
		args = append(args, q.ExecutionID)
	}
	for i, clause := range clauses {
		if i == 0 {
			query += " WHERE " + clause
		} else {
			query += " AND " + clause
		}
	}
	query += " ORDER BY seq DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	var rows *sql.Rows
	rows, err = j.db.QueryContext(ctx, query, args...)
	if err != nil {
		err = fmt.Errorf("journal query: %w", err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var payload []byte
		if scanErr := rows.Scan(&seq, &payload); scanErr != nil {
			err = fmt.Errorf("journal scan: %w", scanErr)
			return nil, err
		}
		var ev events.Event
		if decodeErr := json.Unmarshal(payload, &ev); decodeErr != nil {
			err = fmt.Errorf("journal decode seq=%d: %w", seq, decodeErr)
			return nil, err
		}
		ev.Sequence = seq
		out = append(out, ev)
	}
	if rowsErr := rows.Err(); rowsErr != nil {
		err = fmt.Errorf("journal rows: %w", rowsErr)
		return nil, err
	}
	outcome = metrics.PersistenceOutcomeOK
	return out, nil
}

const sinkAppendTimeout = 5 * time.Second

// JournalSink adapts a Journal to the events.Sink interface. Append
// failures are logged, never propagated; the audit write path must not be
// able to wedge execution.
type JournalSink struct {
	journal *Journal
	log     *slog.Logger
}

// NewJournalSink wraps a journal for use as an event sink.
func NewJournalSink(journal *Journal, log *slog.Logger) *JournalSink {
	if journal == nil {
		return nil
	}
	if log == nil {
		log = slog.Default()
	}
	return &JournalSink{journal: journal, log: log}
}

func (s *JournalSink) Record(ev events.Event) {
	if s == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), sinkAppendTimeout)
	defer cancel()
	if _, err := s.journal.Append(ctx, ev); err != nil {
		s.log.Error("audit journal append failed", "event_type", ev.Type, "error", err)
	}
}
