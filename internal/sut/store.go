package sut

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/variantlab/tradeharness/internal/snapshot"
)

//go:embed schema.sql
var schemaSQL string

// Counter names used by the Sim.
const (
	counterProcessed  = "processed_count"
	counterEnrichment = "enrichment_calls"
)

// store is the Sim's append-only event log.
// Uses SQLite; per-context isolation comes from every Sim opening its own
// :memory: database.
type store struct {
	db *sql.DB
}

// openStore creates a SQLite database at the given path and applies the
// schema. The harness always passes ":memory:", so nothing persists beyond
// the process run.
func openStore(path string) (*store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection also keeps
	// one :memory: database visible to all queries.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &store{db: db}, nil
}

func (s *store) close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *store) appendEvent(ctx context.Context, seq int64, recordID, kind, symbol, payload string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (seq, record_id, kind, symbol, payload)
		VALUES (?, ?, ?, ?, ?)
	`, seq, recordID, kind, symbol, payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *store) appendRouting(ctx context.Context, d snapshot.RoutingDecision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO routing_decisions (seq, record_id, variant)
		VALUES (?, ?, ?)
	`, d.Seq, d.RecordID, string(d.Variant))
	if err != nil {
		return fmt.Errorf("append routing decision: %w", err)
	}
	return nil
}

func (s *store) appendDecision(ctx context.Context, variant snapshot.Variant, d snapshot.Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (seq, variant, symbol, action, confidence, reasoning)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.Seq, string(variant), d.Symbol, d.Action, d.Confidence, d.Reasoning)
	if err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	return nil
}

func (s *store) appendActivation(ctx context.Context, a snapshot.AgentActivation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activations (seq, input_ref, recommendation, confidence, reasoning)
		VALUES (?, ?, ?, ?, ?)
	`, a.Seq, a.InputRef, a.Recommendation, a.Confidence, a.Reasoning)
	if err != nil {
		return fmt.Errorf("append activation: %w", err)
	}
	return nil
}

func (s *store) appendExecution(ctx context.Context, e snapshot.Execution) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO executions (seq, symbol, action, quantity, mode, broker_called)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Seq, e.Symbol, e.Action, e.Quantity, string(e.Mode), e.BrokerCalled)
	if err != nil {
		return fmt.Errorf("append execution: %w", err)
	}
	return nil
}

func (s *store) appendLog(ctx context.Context, l snapshot.LogEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO logs (seq, level, component, message)
		VALUES (?, ?, ?, ?)
	`, l.Seq, l.Level, l.Component, l.Message)
	if err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (s *store) bumpExternalCall(ctx context.Context, service string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO external_calls (service, calls) VALUES (?, 1)
		ON CONFLICT(service) DO UPDATE SET calls = calls + 1
	`, service)
	if err != nil {
		return fmt.Errorf("bump external call %q: %w", service, err)
	}
	return nil
}

func (s *store) bumpCounter(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES (?, 1)
		ON CONFLICT(name) DO UPDATE SET value = value + 1
	`, name)
	if err != nil {
		return fmt.Errorf("bump counter %q: %w", name, err)
	}
	return nil
}

// readState assembles the full observable state. Every list reads
// ORDER BY seq ASC for deterministic ordering. Read-only by construction.
func (s *store) readState(ctx context.Context) (snapshot.Snapshot, error) {
	var snap snapshot.Snapshot

	var err error
	if snap.ProcessedCount, err = s.readCounter(ctx, counterProcessed); err != nil {
		return snap, err
	}
	if snap.EnrichmentCalls, err = s.readCounter(ctx, counterEnrichment); err != nil {
		return snap, err
	}

	if snap.RoutingDecisions, err = s.readRouting(ctx); err != nil {
		return snap, err
	}
	if snap.VariantADecisions, err = s.readDecisions(ctx, snapshot.VariantA); err != nil {
		return snap, err
	}
	if snap.VariantBDecisions, err = s.readDecisions(ctx, snapshot.VariantB); err != nil {
		return snap, err
	}
	if snap.AgentActivations, err = s.readActivations(ctx); err != nil {
		return snap, err
	}
	if snap.ShadowExecutions, err = s.readExecutions(ctx, snapshot.ModeShadow); err != nil {
		return snap, err
	}
	if snap.LiveExecutions, err = s.readExecutions(ctx, snapshot.ModeLive); err != nil {
		return snap, err
	}
	if snap.LogEntries, err = s.readLogs(ctx); err != nil {
		return snap, err
	}
	if snap.ExternalCalls, err = s.readExternalCalls(ctx); err != nil {
		return snap, err
	}

	return snap, nil
}

func (s *store) readCounter(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = ?`, name).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %q: %w", name, err)
	}
	return value, nil
}

func (s *store) readRouting(ctx context.Context) ([]snapshot.RoutingDecision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, record_id, variant FROM routing_decisions ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query routing decisions: %w", err)
	}
	defer rows.Close()

	out := []snapshot.RoutingDecision{}
	for rows.Next() {
		var d snapshot.RoutingDecision
		var variant string
		if err := rows.Scan(&d.Seq, &d.RecordID, &variant); err != nil {
			return nil, fmt.Errorf("scan routing decision: %w", err)
		}
		d.Variant = snapshot.Variant(variant)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *store) readDecisions(ctx context.Context, variant snapshot.Variant) ([]snapshot.Decision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, symbol, action, confidence, reasoning
		FROM decisions
		WHERE variant = ?
		ORDER BY seq ASC
	`, string(variant))
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	out := []snapshot.Decision{}
	for rows.Next() {
		var d snapshot.Decision
		if err := rows.Scan(&d.Seq, &d.Symbol, &d.Action, &d.Confidence, &d.Reasoning); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *store) readActivations(ctx context.Context) ([]snapshot.AgentActivation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, input_ref, recommendation, confidence, reasoning
		FROM activations ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query activations: %w", err)
	}
	defer rows.Close()

	out := []snapshot.AgentActivation{}
	for rows.Next() {
		var a snapshot.AgentActivation
		if err := rows.Scan(&a.Seq, &a.InputRef, &a.Recommendation, &a.Confidence, &a.Reasoning); err != nil {
			return nil, fmt.Errorf("scan activation: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *store) readExecutions(ctx context.Context, mode snapshot.ExecutionMode) ([]snapshot.Execution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, symbol, action, quantity, broker_called
		FROM executions
		WHERE mode = ?
		ORDER BY seq ASC
	`, string(mode))
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	out := []snapshot.Execution{}
	for rows.Next() {
		e := snapshot.Execution{Mode: mode}
		if err := rows.Scan(&e.Seq, &e.Symbol, &e.Action, &e.Quantity, &e.BrokerCalled); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *store) readLogs(ctx context.Context) ([]snapshot.LogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, level, component, message FROM logs ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	defer rows.Close()

	out := []snapshot.LogEntry{}
	for rows.Next() {
		var l snapshot.LogEntry
		if err := rows.Scan(&l.Seq, &l.Level, &l.Component, &l.Message); err != nil {
			return nil, fmt.Errorf("scan log entry: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *store) readExternalCalls(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT service, calls FROM external_calls ORDER BY service ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query external calls: %w", err)
	}
	defer rows.Close()

	out := map[string]int64{}
	for rows.Next() {
		var service string
		var calls int64
		if err := rows.Scan(&service, &calls); err != nil {
			return nil, fmt.Errorf("scan external call: %w", err)
		}
		out[service] = calls
	}
	return out, rows.Err()
}
