// Copyright (c) 2018-2019, The Fonero developers
// Copyright (c) 2017, The fnodata developers
// See LICENSE for details.

// Package recorder is a Postgres-backed collab.Persistence adapter,
// grounded on the teacher's own db/fnopg package: plain database/sql
// usage with the lib/pq driver, prepared statements, no ORM. Where
// fnopg persists fnodata's full chain-indexing schema, recorder persists
// only the three narrow records spec section 6's Persistence interface
// calls for: mempool block templates, block audit results, and
// acceleration boosts.
package recorder

import (
	"context"
	"database/sql"
	"encoding/json"

	// lib/pq registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/blockwatch/mempoolhub/collab"
)

// Recorder persists fan-out engine side effects to Postgres.
type Recorder struct {
	db *sql.DB
}

var _ collab.Persistence = (*Recorder)(nil)

// New opens a connection pool to the Postgres database named by connStr
// and ensures the tables Recorder writes to exist.
func New(connStr string) (*Recorder, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}
	r, err := newRecorder(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// newRecorder wraps an already-open *sql.DB as a Recorder and ensures its
// tables exist, independent of how the connection was dialed.
func newRecorder(db *sql.DB) (*Recorder, error) {
	r := &Recorder{db: db}
	if err := r.createTables(); err != nil {
		return nil, err
	}
	return r, nil
}

// Close releases the underlying connection pool.
func (r *Recorder) Close() error {
	return r.db.Close()
}

func (r *Recorder) createTables() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS mempool_block_templates (
			id SERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			block_index INT NOT NULL,
			n_tx INT NOT NULL,
			total_fees BIGINT NOT NULL,
			template JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS block_audits (
			id SERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			height BIGINT NOT NULL,
			match_rate DOUBLE PRECISION NOT NULL,
			result JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS accelerations (
			id SERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			txid TEXT NOT NULL,
			fee_sat BIGINT NOT NULL
		);
	`)
	return err
}

// SaveTemplate persists tmpl, satisfying collab.Persistence.
func (r *Recorder) SaveTemplate(ctx context.Context, tmpl collab.MempoolBlockTemplate) error {
	blob, err := json.Marshal(tmpl)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO mempool_block_templates (block_index, n_tx, total_fees, template) VALUES ($1, $2, $3, $4)`,
		tmpl.Index, tmpl.NTx, tmpl.TotalFees, blob)
	return err
}

// SaveAudit persists result, satisfying collab.Persistence.
func (r *Recorder) SaveAudit(ctx context.Context, result collab.AuditResult) error {
	blob, err := json.Marshal(result)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO block_audits (height, match_rate, result) VALUES ($1, $2, $3)`,
		result.Height, result.MatchRate, blob)
	return err
}

// SaveAcceleration persists one accelerated-transaction boost, satisfying
// collab.Persistence.
func (r *Recorder) SaveAcceleration(ctx context.Context, txid string, feeSat int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accelerations (txid, fee_sat) VALUES ($1, $2)`,
		txid, feeSat)
	return err
}
