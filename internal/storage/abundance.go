package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KaramelBytes/sheetloom/internal/timepoint"
)

const insertAbundance = `INSERT INTO abundance_records (id, owner_id, source, position, subject_id, taxon_id, timepoint_values, deltas, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// BulkCreateAbundance replaces the owner's records for source with recs.
// Source identifies the originating file and sheet.
func (d *DB) BulkCreateAbundance(ctx context.Context, owner, source string, recs []timepoint.Record) (BulkResult, error) {
	created := d.now().UTC().Format(time.RFC3339Nano)
	return d.insertEach(ctx, `DELETE FROM abundance_records WHERE owner_id = ? AND source = ?`, []any{owner, source}, len(recs), func(i int) (string, []any, error) {
		r := recs[i]
		values, err := json.Marshal(r.Values)
		if err != nil {
			return "", nil, fmt.Errorf("encode values: %w", err)
		}
		deltas, err := json.Marshal(r.Deltas)
		if err != nil {
			return "", nil, fmt.Errorf("encode deltas: %w", err)
		}
		return insertAbundance, []any{d.newID(), owner, source, i, r.SubjectID, r.TaxonID, string(values), string(deltas), created}, nil
	})
}

// ListAbundance returns the owner's records for source in insertion order.
func (d *DB) ListAbundance(ctx context.Context, owner, source string) ([]timepoint.Record, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(`SELECT subject_id, taxon_id, timepoint_values, deltas FROM abundance_records
WHERE owner_id = ? AND source = ? ORDER BY position`), owner, source)
	if err != nil {
		return nil, fmt.Errorf("query abundance: %w", err)
	}
	defer rows.Close()
	var out []timepoint.Record
	for rows.Next() {
		var r timepoint.Record
		var values, deltas string
		if err := rows.Scan(&r.SubjectID, &r.TaxonID, &values, &deltas); err != nil {
			return nil, fmt.Errorf("scan abundance: %w", err)
		}
		if err := json.Unmarshal([]byte(values), &r.Values); err != nil {
			return nil, fmt.Errorf("decode values: %w", err)
		}
		if err := json.Unmarshal([]byte(deltas), &r.Deltas); err != nil {
			return nil, fmt.Errorf("decode deltas: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
