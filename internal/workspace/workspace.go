// Package workspace manages per-owner upload folders and their manifests.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/sheetloom/internal/utils"
)

const (
	manifestFileName = "manifest.json"
	uploadsDirName   = "uploads"
)

var (
	// ErrFileNotFound is returned when an upload is missing from the owner folder.
	ErrFileNotFound = errors.New("file not found on server")
	// ErrInvalidName is returned for owners or file names that sanitize to nothing.
	ErrInvalidName = errors.New("invalid name")
)

// Workspace is one owner's upload folder and its manifest.
type Workspace struct {
	Owner     string             `json:"owner"`
	Uploads   map[string]*Upload `json:"uploads"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`

	// Not serialized: <root>/users/<safe owner>
	rootDir string `json:"-"`
}

// RootDir returns the owner's directory.
func (w *Workspace) RootDir() string { return w.rootDir }

// UploadDir returns the directory holding uploaded and generated files.
func (w *Workspace) UploadDir() string { return filepath.Join(w.rootDir, uploadsDirName) }

// Save writes manifest.json using atomic write.
func (w *Workspace) Save() error {
	if w.rootDir == "" {
		return errors.New("workspace root directory not set")
	}
	if err := utils.EnsureDir(w.UploadDir()); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}
	w.UpdatedAt = time.Now()
	data, err := utils.PrettyJSON(w)
	if err != nil {
		return err
	}
	return utils.SafeWriteFile(filepath.Join(w.rootDir, manifestFileName), data)
}

// List returns uploads sorted by name.
func (w *Workspace) List() []*Upload {
	out := make([]*Upload, 0, len(w.Uploads))
	for _, u := range w.Uploads {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Manager resolves owner workspaces under a root directory. Its methods are
// safe for concurrent use.
type Manager struct {
	root string
	mu   sync.Mutex
}

// NewManager returns a manager rooted at root.
func NewManager(root string) *Manager {
	return &Manager{root: root}
}

// Root returns the upload root directory.
func (m *Manager) Root() string { return m.root }

func (m *Manager) dir(owner string) (string, error) {
	safe := utils.SafeOwner(owner)
	if safe == "" {
		return "", fmt.Errorf("%w: owner %q", ErrInvalidName, owner)
	}
	return filepath.Join(m.root, "users", safe), nil
}

// Open loads the owner's workspace, creating an empty one if none exists.
func (m *Manager) Open(owner string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(owner)
}

func (m *Manager) load(owner string) (*Workspace, error) {
	dir, err := m.dir(owner)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			now := time.Now()
			return &Workspace{Owner: owner, Uploads: map[string]*Upload{}, CreatedAt: now, UpdatedAt: now, rootDir: dir}, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var w Workspace
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if w.Uploads == nil {
		w.Uploads = map[string]*Upload{}
	}
	w.rootDir = dir
	return &w, nil
}

// Save stores r under the secured form of name in the owner's upload folder
// and records it in the manifest. An existing upload of the same name is
// replaced.
func (m *Manager) Save(owner, name string, r io.Reader) (*Upload, error) {
	safe := utils.SecureFilename(name)
	if safe == "" {
		return nil, fmt.Errorf("%w: file name %q", ErrInvalidName, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	w, err := m.load(owner)
	if err != nil {
		return nil, err
	}
	if err := utils.EnsureDir(w.UploadDir()); err != nil {
		return nil, fmt.Errorf("ensure dir: %w", err)
	}
	dst := filepath.Join(w.UploadDir(), safe)
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create upload: %w", err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("atomic rename: %w", err)
	}

	u := &Upload{
		ID:         uuid.NewString(),
		Name:       safe,
		FileType:   strings.TrimPrefix(strings.ToLower(filepath.Ext(safe)), "."),
		Size:       n,
		UploadedAt: time.Now(),
	}
	if prev, ok := w.Uploads[safe]; ok {
		u.ID = prev.ID
	}
	w.Uploads[safe] = u
	if err := w.Save(); err != nil {
		return nil, err
	}
	return u, nil
}

// Locate returns the path of an existing upload.
func (m *Manager) Locate(owner, name string) (string, error) {
	safe := utils.SecureFilename(name)
	if safe == "" {
		return "", fmt.Errorf("%w: file name %q", ErrInvalidName, name)
	}
	dir, err := m.dir(owner)
	if err != nil {
		return "", err
	}
	p := filepath.Join(dir, uploadsDirName, safe)
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, safe)
	}
	return p, nil
}

// OutputPath returns where a generated file named name is written.
func (m *Manager) OutputPath(owner, name string) (string, error) {
	safe := utils.SecureFilename(name)
	if safe == "" {
		return "", fmt.Errorf("%w: file name %q", ErrInvalidName, name)
	}
	dir, err := m.dir(owner)
	if err != nil {
		return "", err
	}
	up := filepath.Join(dir, uploadsDirName)
	if err := utils.EnsureDir(up); err != nil {
		return "", fmt.Errorf("ensure dir: %w", err)
	}
	return filepath.Join(up, safe), nil
}

// MarkImported records the import time and generated outputs of an upload.
func (m *Manager) MarkImported(owner, name string, outputs []string) error {
	safe := utils.SecureFilename(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	w, err := m.load(owner)
	if err != nil {
		return err
	}
	u, ok := w.Uploads[safe]
	if !ok {
		// file placed on disk outside Save, e.g. by hand
		u = &Upload{ID: uuid.NewString(), Name: safe, FileType: strings.TrimPrefix(strings.ToLower(filepath.Ext(safe)), ".")}
		w.Uploads[safe] = u
	}
	now := time.Now()
	u.ImportedAt = &now
	u.Outputs = append([]string(nil), outputs...)
	return w.Save()
}

// List returns the owner's uploads sorted by name.
func (m *Manager) List(owner string) ([]*Upload, error) {
	w, err := m.Open(owner)
	if err != nil {
		return nil, err
	}
	return w.List(), nil
}
