package cmd

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
	"github.com/KaramelBytes/sheetloom/internal/storage"
)

// resetFlags restores every flag to its default so values do not leak
// between invocations of the shared rootCmd.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) {
	t.Helper()
	if err := execCmd(args...); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

func execCmd(args ...string) error {
	resetFlags(rootCmd)
	cfg = nil
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// withHome isolates config, uploads and the database under a temp HOME.
func withHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func openTestStore(t *testing.T, home string) *storage.DB {
	t.Helper()
	db, err := storage.Open(context.Background(), "sqlite", filepath.Join(home, ".sheetloom", "sheetloom.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

const taxaCSV = "taxonomy_id;domain;phylum;genus\n" +
	"T1;Bacteria;Firmicutes;Blautia\n" +
	"T2;Bacteria;Bacteroidota;Bacteroides\n"

func TestCLI_Analyze_Import_List(t *testing.T) {
	home := withHome(t)
	src := filepath.Join(home, "taxa.csv")
	if err := os.WriteFile(src, []byte(taxaCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	out := filepath.Join(home, "taxa.analysis.json")
	runCmd(t, "analyze", src, "-o", out, "--format", "json")
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read analysis: %v", err)
	}
	var rep analysis.FileReport
	if err := json.Unmarshal(b, &rep); err != nil {
		t.Fatalf("decode analysis: %v", err)
	}
	if len(rep.Sheets) != 1 || rep.Sheets[0].DetectedType != analysis.TypeTaxonomy {
		t.Fatalf("unexpected analysis: %+v", rep.Sheets)
	}

	runCmd(t, "import", src, "--accept")
	csvOut := filepath.Join(home, ".sheetloom", "instance", "users", "local", "uploads", "import_taxa.csv")
	body, err := os.ReadFile(csvOut)
	if err != nil {
		t.Fatalf("missing import output: %v", err)
	}
	if !strings.HasPrefix(string(body), "taxonomy_id,domain,phylum,genus\n") {
		t.Fatalf("unexpected output:\n%s", body)
	}

	db := openTestStore(t, home)
	n, err := db.CountTaxonomy(context.Background(), "local")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored %d taxonomy rows, want 2", n)
	}

	runCmd(t, "list")
	runCmd(t, "list", "--taxonomy")
}

func TestCLI_ImportNeedsSelections(t *testing.T) {
	home := withHome(t)
	src := filepath.Join(home, "taxa.csv")
	if err := os.WriteFile(src, []byte(taxaCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := execCmd("import", src); err == nil {
		t.Fatalf("expected error without --selections or --accept")
	}
}

func TestCLI_ImportWithSelectionsFile(t *testing.T) {
	home := withHome(t)
	src := filepath.Join(home, "visits.csv")
	if err := os.WriteFile(src, []byte("Clinic export\npatient_id;age;age\nP1;34;35\nP2;40;41\n"), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	sel := filepath.Join(home, "sel.json")
	if err := os.WriteFile(sel, []byte(`{"CSV":{"confirmed":true,"header_mode":"skip_first_row","duplicate_keep":{"age":1}}}`), 0o644); err != nil {
		t.Fatalf("write selections: %v", err)
	}
	runCmd(t, "import", src, "--selections", sel, "--owner", "bob@example.org")

	out := filepath.Join(home, ".sheetloom", "instance", "users", "bob_example_org", "uploads", "import_visits.csv")
	body, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("missing import output: %v", err)
	}
	want := "patient_id,age\nP1,35\nP2,41\n"
	if string(body) != want {
		t.Fatalf("output = %q, want %q", body, want)
	}
}

func TestCLI_ImportDefaultTaxonomy(t *testing.T) {
	home := withHome(t)
	if err := execCmd("import-default-taxonomy"); err == nil {
		t.Fatalf("expected error when no default taxonomy is configured")
	}

	ref := filepath.Join(home, "reference.csv")
	if err := os.WriteFile(ref, []byte(taxaCSV), 0o644); err != nil {
		t.Fatalf("write reference: %v", err)
	}
	runCmd(t, "config", "set", "default_taxonomy_path", ref)
	runCmd(t, "import-default-taxonomy", "--owner", "carol")

	db := openTestStore(t, home)
	n, err := db.CountTaxonomy(context.Background(), "carol")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("stored %d taxonomy rows, want 2", n)
	}
}

func TestConfigSetRejectsUnknownKey(t *testing.T) {
	withHome(t)
	if err := execCmd("config", "set", "api_key", "x"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}
