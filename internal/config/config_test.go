package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "local", c.DefaultOwner)
	assert.Equal(t, "sqlite", c.DatabaseDriver)
	assert.Equal(t, filepath.Join(home, ".sheetloom", "sheetloom.db"), c.DatabaseDSN)
	assert.Equal(t, filepath.Join(home, ".sheetloom", "instance"), c.UploadRoot)
	assert.Len(t, c.Timepoints, 3)
	assert.Equal(t, ".2.4M", c.Timepoints[2].Suffix)
	assert.InDelta(t, 0.8, c.FuzzyCutoff, 1e-9)

	cls := c.Classifier()
	assert.Equal(t, []string{".P", ".E", ".2.4M"}, cls.Suffixes)
	assert.Equal(t, analysis.TypeTaxonomy, cls.Classify([]string{"domain", "phylum", "genus", "species"}))
}

func TestLoadEnvAndFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Chdir(t.TempDir())
	t.Setenv("SHEETLOOM_DEFAULT_OWNER", "lab-a")

	cfgPath := filepath.Join(t.TempDir(), "cfg.yaml")
	in := &Global{HTTPAddr: ":9999", MaxParallelSheets: 2, DashMarker: "n/a"}
	require.NoError(t, Save(in, cfgPath))

	c, err := Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, "lab-a", c.DefaultOwner)
	assert.Equal(t, ":9999", c.HTTPAddr)
	assert.Equal(t, 2, c.MaxParallelSheets)
	assert.Equal(t, "n/a", c.Decomposer().DashMarker)
}
