package index

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/interlink/internal/reconcile"
)

// RunRow is one recorded reconciliation or detection pass.
type RunRow struct {
	ID         int64     `json:"id"`
	UID        string    `json:"uid"`
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DryRun     bool      `json:"dry_run"`
	Pushed     int       `json:"pushed"`
	Unchanged  int       `json:"unchanged"`
	Failed     int       `json:"failed"`
}

// RecordRun stores a report and its per-document results.
func (db *DB) RecordRun(kind string, rep *reconcile.Report) (int64, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.Exec(`
		INSERT INTO runs (uid, kind, started_at, finished_at, dry_run, pushed, unchanged, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rep.ID, kind, rep.StartedAt, rep.FinishedAt, rep.DryRun, rep.Pushed, rep.Unchanged, rep.Failed)
	if err != nil {
		return 0, fmt.Errorf("index: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("index: run id: %w", err)
	}

	if len(rep.Documents) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO run_documents
				(run_id, article_id, state, status, status_code, changed, linked, unlinked, checksum, error)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("index: prepare run document insert: %w", err)
		}
		defer stmt.Close()
		for _, d := range rep.Documents {
			linked, _ := json.Marshal(nonNil(d.Linked))
			unlinked, _ := json.Marshal(nonNil(d.Unlinked))
			if _, err := stmt.Exec(id, d.ID, d.State.String(), string(d.Status), d.StatusCode, d.Changed,
				string(linked), string(unlinked), d.Checksum, d.Error); err != nil {
				return 0, fmt.Errorf("index: insert run document: %w", err)
			}
		}
	}
	return id, tx.Commit()
}

// RecentRuns returns the latest runs, newest first.
func (db *DB) RecentRuns(limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT id, uid, kind, started_at, finished_at, dry_run, pushed, unchanged, failed
		FROM runs ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("index: recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		if err := rows.Scan(&r.ID, &r.UID, &r.Kind, &r.StartedAt, &r.FinishedAt, &r.DryRun, &r.Pushed, &r.Unchanged, &r.Failed); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunDocuments returns the per-document results of one run.
func (db *DB) RunDocuments(runID int64) ([]reconcile.DocumentResult, error) {
	rows, err := db.conn.Query(`
		SELECT r.article_id, coalesce(a.title, ''), r.state, r.status, r.status_code, r.changed,
		       r.linked, r.unlinked, r.checksum, r.error
		FROM run_documents r LEFT JOIN articles a ON a.id = r.article_id
		WHERE r.run_id = ?
		ORDER BY r.rowid
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("index: run documents: %w", err)
	}
	defer rows.Close()

	var out []reconcile.DocumentResult
	for rows.Next() {
		var (
			d                reconcile.DocumentResult
			state, status    string
			linked, unlinked string
		)
		if err := rows.Scan(&d.ID, &d.Title, &state, &status, &d.StatusCode, &d.Changed,
			&linked, &unlinked, &d.Checksum, &d.Error); err != nil {
			return nil, err
		}
		if err := d.State.UnmarshalText([]byte(state)); err != nil {
			return nil, err
		}
		d.Status = reconcile.Status(status)
		_ = json.Unmarshal([]byte(linked), &d.Linked)
		_ = json.Unmarshal([]byte(unlinked), &d.Unlinked)
		out = append(out, d)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
