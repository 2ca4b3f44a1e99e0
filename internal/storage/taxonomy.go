package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMissingTaxonomyID is returned for rows without a taxonomy_id value.
var ErrMissingTaxonomyID = errors.New("taxonomy_id is required")

// Taxonomy is one stored taxonomy reference row.
type Taxonomy struct {
	ID                       string    `json:"id"`
	OwnerID                  string    `json:"owner_id"`
	TaxonomyID               string    `json:"taxonomy_id"`
	ASV                      string    `json:"asv,omitempty"`
	Domain                   string    `json:"domain,omitempty"`
	Phylum                   string    `json:"phylum,omitempty"`
	ClassName                string    `json:"class_name,omitempty"`
	Order                    string    `json:"order,omitempty"`
	Family                   string    `json:"family,omitempty"`
	Genus                    string    `json:"genus,omitempty"`
	Species                  string    `json:"species,omitempty"`
	FullTaxonomy             string    `json:"full_taxonomy,omitempty"`
	ClassificationConfidence *float64  `json:"classification_confidence,omitempty"`
	CreatedAt                time.Time `json:"created_at"`
}

// TaxonomyFromRow maps a header/row pair onto a Taxonomy. Keys are matched
// case-insensitively; "class" fills class_name and "taxonomy" fills
// full_taxonomy. Surrounding quotes are stripped from values and unknown
// columns are ignored.
func TaxonomyFromRow(header, row []string) (Taxonomy, error) {
	var t Taxonomy
	var kingdom, confidence string
	for i, raw := range header {
		if i >= len(row) {
			break
		}
		v := cleanValue(row[i])
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "taxonomy_id":
			t.TaxonomyID = v
		case "asv":
			t.ASV = v
		case "domain":
			t.Domain = v
		case "kingdom":
			kingdom = v
		case "phylum":
			t.Phylum = v
		case "class", "class_name":
			t.ClassName = v
		case "order":
			t.Order = v
		case "family":
			t.Family = v
		case "genus":
			t.Genus = v
		case "species":
			t.Species = v
		case "taxonomy", "full_taxonomy":
			t.FullTaxonomy = v
		case "classification_confidence":
			confidence = v
		}
	}
	if t.Domain == "" {
		t.Domain = kingdom
	}
	if t.TaxonomyID == "" {
		return t, ErrMissingTaxonomyID
	}
	if confidence != "" {
		f, err := strconv.ParseFloat(confidence, 64)
		if err != nil {
			return t, fmt.Errorf("classification_confidence %q: %w", confidence, err)
		}
		t.ClassificationConfidence = &f
	}
	return t, nil
}

func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && ((v[0] == '\'' && v[len(v)-1] == '\'') || (v[0] == '"' && v[len(v)-1] == '"')) {
		v = strings.TrimSpace(v[1 : len(v)-1])
	}
	return v
}

const insertTaxonomy = `INSERT INTO taxonomies (id, owner_id, taxonomy_id, asv, domain, phylum, class_name, "order", family, genus, species, full_taxonomy, classification_confidence, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// BulkCreateTaxonomy replaces the owner's taxonomy rows with rows. Rows that
// fail to map or insert are reported in the result and do not abort the
// batch; any other error rolls the whole batch back.
func (d *DB) BulkCreateTaxonomy(ctx context.Context, owner string, header []string, rows [][]string) (BulkResult, error) {
	created := d.now().UTC().Format(time.RFC3339Nano)
	return d.insertEach(ctx, `DELETE FROM taxonomies WHERE owner_id = ?`, []any{owner}, len(rows), func(i int) (string, []any, error) {
		t, err := TaxonomyFromRow(header, rows[i])
		if err != nil {
			return "", nil, err
		}
		var conf any
		if t.ClassificationConfidence != nil {
			conf = *t.ClassificationConfidence
		}
		return insertTaxonomy, []any{
			d.newID(), owner, t.TaxonomyID, nullable(t.ASV), nullable(t.Domain), nullable(t.Phylum),
			nullable(t.ClassName), nullable(t.Order), nullable(t.Family), nullable(t.Genus),
			nullable(t.Species), nullable(t.FullTaxonomy), conf, created,
		}, nil
	})
}

// ListTaxonomy returns the owner's taxonomy rows ordered by taxonomy_id.
func (d *DB) ListTaxonomy(ctx context.Context, owner string) ([]Taxonomy, error) {
	rows, err := d.db.QueryContext(ctx, d.rebind(`SELECT id, owner_id, taxonomy_id, asv, domain, phylum, class_name, "order", family, genus, species, full_taxonomy, classification_confidence, created_at
FROM taxonomies WHERE owner_id = ? ORDER BY taxonomy_id`), owner)
	if err != nil {
		return nil, fmt.Errorf("query taxonomies: %w", err)
	}
	defer rows.Close()

	var out []Taxonomy
	for rows.Next() {
		var (
			t                                                                      Taxonomy
			asv, domain, phylum, class, order, family, genus, species, full, stamp sql.NullString
			conf                                                                   sql.NullFloat64
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.TaxonomyID, &asv, &domain, &phylum, &class, &order, &family, &genus, &species, &full, &conf, &stamp); err != nil {
			return nil, fmt.Errorf("scan taxonomy: %w", err)
		}
		t.ASV, t.Domain, t.Phylum, t.ClassName = asv.String, domain.String, phylum.String, class.String
		t.Order, t.Family, t.Genus, t.Species, t.FullTaxonomy = order.String, family.String, genus.String, species.String, full.String
		if conf.Valid {
			f := conf.Float64
			t.ClassificationConfidence = &f
		}
		if ts, err := time.Parse(time.RFC3339Nano, stamp.String); err == nil {
			t.CreatedAt = ts
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CountTaxonomy returns how many taxonomy rows the owner has.
func (d *DB) CountTaxonomy(ctx context.Context, owner string) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, d.rebind(`SELECT COUNT(*) FROM taxonomies WHERE owner_id = ?`), owner).Scan(&n); err != nil {
		return 0, fmt.Errorf("count taxonomies: %w", err)
	}
	return n, nil
}
