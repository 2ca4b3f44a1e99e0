package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
	"github.com/KaramelBytes/sheetloom/internal/archive"
	cfgpkg "github.com/KaramelBytes/sheetloom/internal/config"
	"github.com/KaramelBytes/sheetloom/internal/ingest"
	"github.com/KaramelBytes/sheetloom/internal/session"
	"github.com/KaramelBytes/sheetloom/internal/storage"
	"github.com/KaramelBytes/sheetloom/internal/workspace"
)

var (
	cfgFile   string
	debug     bool
	logJSON   bool
	flagOwner string

	// Loaded configuration
	cfg *cfgpkg.Global
)

var rootCmd = &cobra.Command{
	Use:   "sheetloom",
	Short: "Sheetloom: analyze and import lab spreadsheets",
	Long: `Sheetloom reads messy CSV/TSV/XLSX exports, proposes a header mode, duplicate
resolution and column renames per sheet, classifies each sheet and imports the
confirmed ones into the database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.sheetloom/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "log as JSON instead of text")
	rootCmd.PersistentFlags().StringVar(&flagOwner, "owner", "", "owner whose upload folder is used (default from config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: allow running commands that don't need config
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		return
	}
	cfg = c
}

func requireConfig() (*cfgpkg.Global, error) {
	if cfg != nil {
		return cfg, nil
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	cfg = c
	return cfg, nil
}

func owner() string {
	if flagOwner != "" {
		return flagOwner
	}
	if cfg != nil && cfg.DefaultOwner != "" {
		return cfg.DefaultOwner
	}
	return "local"
}

func newLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelWarn}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if logJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// app bundles the collaborators a command needs.
type app struct {
	svc    *ingest.Service
	db     *storage.DB
	ws     *workspace.Manager
	log    *slog.Logger
	closer []func() error
}

func (a *app) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		_ = a.closer[i]()
	}
}

// openApp wires storage, sessions, the archive and the ingest service from
// the loaded configuration. delim overrides delimiter sniffing when non-zero.
func openApp(ctx context.Context, delim rune) (*app, error) {
	c, err := requireConfig()
	if err != nil {
		return nil, err
	}
	log := newLogger()
	a := &app{ws: workspace.NewManager(c.UploadRoot), log: log}

	db, err := storage.Open(ctx, c.DatabaseDriver, c.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.closer = append(a.closer, db.Close)

	ttl := time.Duration(c.SessionTTLSec) * time.Second
	var sessions session.Store
	if c.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword, DB: c.RedisDB})
		a.closer = append(a.closer, rdb.Close)
		sessions = session.NewRedisStore(rdb, ttl)
	} else {
		sessions = session.NewMemoryStore(ttl)
	}

	var arch ingest.Archiver
	if c.S3Bucket != "" {
		s3a, err := archive.NewS3(ctx, archive.Config{Bucket: c.S3Bucket, Prefix: c.S3Prefix, Region: c.S3Region})
		if err != nil {
			a.Close()
			return nil, err
		}
		arch = s3a
	}

	svc, err := ingest.New(ingest.Config{
		Workspaces:          a.ws,
		Store:               db,
		Sessions:            sessions,
		Archiver:            arch,
		Analyzer:            &analysis.Analyzer{Classifier: c.Classifier(), DateMarkers: c.DateMarkers},
		Decomposer:          c.Decomposer(),
		Delimiter:           delim,
		AllowedExtensions:   c.AllowedExtensions,
		MaxParallelSheets:   c.MaxParallelSheets,
		DefaultTaxonomyPath: c.DefaultTaxonomyPath,
		Logger:              log,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.svc = svc
	return a, nil
}

// parseDelimiterFlag maps a --delimiter value to a rune; empty means sniff.
func parseDelimiterFlag(s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	d, ok := analysis.ParseDelimiter(s)
	if !ok {
		return 0, fmt.Errorf("unsupported --delimiter: %s (use ','|';'|'tab')", s)
	}
	return d, nil
}
