package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestAnalyzeBatch_OutputDirAvoidsOverwrite(t *testing.T) {
	home := withHome(t)

	// Two CSV files with the same basename in different directories
	d1 := filepath.Join(home, "d1")
	d2 := filepath.Join(home, "d2")
	for _, d := range []string{d1, d2} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	csv := "patient_id,age,sex\nP1,34,F\nP2,40,M\n"
	for _, d := range []string{d1, d2} {
		if err := os.WriteFile(filepath.Join(d, "metrics.csv"), []byte(csv), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	outDir := filepath.Join(home, "reports")
	runCmd(t, "analyze-batch", filepath.Join(home, "d*", "metrics.csv"), "--output-dir", outDir, "--quiet")

	for _, name := range []string{"metrics.analysis.md", "metrics__2.analysis.md"} {
		body, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		if !strings.Contains(string(body), "[UPLOAD ANALYSIS]") || !strings.Contains(string(body), "- detected: patient") {
			t.Fatalf("unexpected report %s:\n%s", name, body)
		}
	}
}

func TestAnalyzeBatch_NoMatches(t *testing.T) {
	home := withHome(t)
	if err := execCmd("analyze-batch", filepath.Join(home, "nothing-*.csv")); err == nil {
		t.Fatalf("expected error when no files match")
	}
}
