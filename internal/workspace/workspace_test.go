package workspace_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/sheetloom/internal/workspace"
)

func TestSaveLocateAndManifest(t *testing.T) {
	root := t.TempDir()
	m := workspace.NewManager(root)

	up, err := m.Save("ana@example.org", "My Taxa.csv", strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if up.Name != "My_Taxa.csv" || up.FileType != "csv" || up.Size != 8 || up.ID == "" {
		t.Fatalf("upload = %+v", up)
	}
	want := filepath.Join(root, "users", "ana_example_org", "uploads", "My_Taxa.csv")
	got, err := m.Locate("ana@example.org", "My Taxa.csv")
	if err != nil || got != want {
		t.Fatalf("locate = %q, %v", got, err)
	}
	if _, err := os.Stat(filepath.Join(root, "users", "ana_example_org", "manifest.json")); err != nil {
		t.Fatalf("manifest missing: %v", err)
	}

	// re-upload keeps the id
	again, err := m.Save("ana@example.org", "My_Taxa.csv", strings.NewReader("a\n"))
	if err != nil {
		t.Fatalf("save again: %v", err)
	}
	if again.ID != up.ID {
		t.Fatalf("id changed on re-upload")
	}

	if err := m.MarkImported("ana@example.org", "My_Taxa.csv", []string{"import_My_Taxa.csv"}); err != nil {
		t.Fatalf("mark imported: %v", err)
	}
	list, err := m.List("ana@example.org")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ImportedAt == nil || list[0].Outputs[0] != "import_My_Taxa.csv" {
		t.Fatalf("list = %+v", list)
	}
}

func TestLocateMissing(t *testing.T) {
	m := workspace.NewManager(t.TempDir())
	if _, err := m.Locate("bob", "nope.csv"); !errors.Is(err, workspace.ErrFileNotFound) {
		t.Fatalf("want ErrFileNotFound, got %v", err)
	}
	if _, err := m.Locate("", "nope.csv"); !errors.Is(err, workspace.ErrInvalidName) {
		t.Fatalf("want ErrInvalidName, got %v", err)
	}
}

func TestOwnersAreIsolated(t *testing.T) {
	m := workspace.NewManager(t.TempDir())
	if _, err := m.Save("alice", "a.csv", strings.NewReader("x\n")); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Locate("bob", "a.csv"); !errors.Is(err, workspace.ErrFileNotFound) {
		t.Fatalf("bob should not see alice's upload: %v", err)
	}
	out, err := m.OutputPath("bob", "../import_a.csv")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(filepath.Dir(out)) != "uploads" || filepath.Base(out) != "import_a.csv" {
		t.Fatalf("output path = %s", out)
	}
}
