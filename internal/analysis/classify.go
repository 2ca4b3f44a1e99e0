package analysis

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/cases"
)

// SheetType is the detected kind of a sheet.
type SheetType string

const (
	TypePatient   SheetType = "patient"
	TypeTaxonomy  SheetType = "taxonomy"
	TypeAbundance SheetType = "abundance-matrix"
	TypeUnknown   SheetType = "unknown"
)

// ParseSheetType maps a string onto a known sheet type.
func ParseSheetType(s string) (SheetType, bool) {
	switch SheetType(strings.TrimSpace(s)) {
	case TypePatient:
		return TypePatient, true
	case TypeTaxonomy:
		return TypeTaxonomy, true
	case TypeAbundance:
		return TypeAbundance, true
	case TypeUnknown:
		return TypeUnknown, true
	}
	return "", false
}

// Vocabulary describes one domain a sheet can be classified as.
type Vocabulary struct {
	Type SheetType
	// Names are the known column names of the domain.
	Names []string
	// Identifiers must intersect a sheet's columns before Names are matched.
	Identifiers []string
}

var (
	DefaultPatientColumns = []string{
		"patient_id", "patient", "subject_id", "age", "gender", "sex", "race", "ethnicity",
		"weight_kg", "height_m", "bmi", "smoking", "smoking_status", "diagnosis_date",
		"diagnosis", "disease_stage", "treatment", "treatment_date", "response",
		"igg", "iga", "igm", "ldh", "hemoglobin", "albumin", "creatinine", "calcium",
		"beta2_microglobulin", "m_protein", "flc_ratio", "iss_stage", "notes",
	}
	DefaultPatientIdentifiers = []string{"patient_id", "patient", "subject_id"}

	DefaultTaxonomyColumns = []string{
		"taxonomy_id", "asv", "taxonomy", "domain", "kingdom", "phylum", "class", "order",
		"family", "genus", "species", "full_taxonomy", "classification_confidence",
	}
	DefaultTaxonomyIdentifiers = []string{
		"taxonomy_id", "asv", "taxonomy", "domain", "kingdom", "phylum", "genus", "species",
	}

	DefaultAbundanceSuffixes = []string{".P", ".E", ".2.4M"}
)

const (
	DefaultFuzzyCutoff = 0.8
	DefaultMinMapped   = 2
)

// Classifier decides a sheet type from its column names. Domains are checked
// in order; the first one whose mapped-column count reaches
// max(MinMapped, columns/2) wins.
type Classifier struct {
	Domains   []Vocabulary
	Suffixes  []string
	Cutoff    float64
	MinMapped int
}

// DefaultClassifier checks patient, then taxonomy, then abundance suffixes.
func DefaultClassifier() *Classifier {
	return &Classifier{
		Domains: []Vocabulary{
			{Type: TypePatient, Names: DefaultPatientColumns, Identifiers: DefaultPatientIdentifiers},
			{Type: TypeTaxonomy, Names: DefaultTaxonomyColumns, Identifiers: DefaultTaxonomyIdentifiers},
		},
		Suffixes:  DefaultAbundanceSuffixes,
		Cutoff:    DefaultFuzzyCutoff,
		MinMapped: DefaultMinMapped,
	}
}

// Classify returns the detected type for columns.
func (c *Classifier) Classify(columns []string) SheetType {
	// cases.Caser is stateful; one per call keeps Classify safe for concurrent use.
	fold := cases.Fold()
	folded := make([]string, len(columns))
	present := make(map[string]struct{}, len(columns))
	for i, col := range columns {
		folded[i] = fold.String(strings.TrimSpace(col))
		present[folded[i]] = struct{}{}
	}

	need := c.MinMapped
	if need <= 0 {
		need = DefaultMinMapped
	}
	if half := len(columns) / 2; half > need {
		need = half
	}

	for _, d := range c.Domains {
		if !intersects(present, d.Identifiers, fold) {
			continue
		}
		if c.mapped(folded, d.Names, fold) >= need {
			return d.Type
		}
	}

	for _, col := range columns {
		col = strings.TrimSpace(col)
		for _, suf := range c.Suffixes {
			if suf != "" && strings.HasSuffix(col, suf) {
				return TypeAbundance
			}
		}
	}
	return TypeUnknown
}

func intersects(present map[string]struct{}, ids []string, fold cases.Caser) bool {
	for _, id := range ids {
		if _, ok := present[fold.String(id)]; ok {
			return true
		}
	}
	return false
}

// mapped counts columns matching the vocabulary exactly or fuzzily.
func (c *Classifier) mapped(columns, names []string, fold cases.Caser) int {
	cutoff := c.Cutoff
	if cutoff <= 0 {
		cutoff = DefaultFuzzyCutoff
	}
	vocab := make([]string, len(names))
	exact := make(map[string]struct{}, len(names))
	for i, n := range names {
		vocab[i] = fold.String(n)
		exact[vocab[i]] = struct{}{}
	}
	n := 0
	for _, col := range columns {
		if _, ok := exact[col]; ok {
			n++
			continue
		}
		for _, v := range vocab {
			if Similarity(v, col) >= cutoff {
				n++
				break
			}
		}
	}
	return n
}

// Similarity is the difflib ratio between a and b compared rune by rune.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	m := difflib.NewMatcher(runeStrings(a), runeStrings(b))
	return m.Ratio()
}

func runeStrings(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
