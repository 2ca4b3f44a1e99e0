package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/sheetloom/internal/config"
	"github.com/KaramelBytes/sheetloom/internal/storage"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set Sheetloom configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("upload_root: %s\n", cfg.UploadRoot)
		fmt.Printf("default_owner: %s\n", cfg.DefaultOwner)
		fmt.Printf("allowed_extensions: %s\n", strings.Join(cfg.AllowedExtensions, ","))
		fmt.Printf("max_upload_mb: %d\n", cfg.MaxUploadMB)
		fmt.Printf("database_driver: %s\n", cfg.DatabaseDriver)
		fmt.Printf("database_dsn: %s\n", mask(cfg.DatabaseDSN))
		if cfg.RedisAddr != "" {
			fmt.Printf("redis_addr: %s\n", cfg.RedisAddr)
			fmt.Printf("redis_db: %d\n", cfg.RedisDB)
		}
		fmt.Printf("session_ttl_sec: %d\n", cfg.SessionTTLSec)
		if cfg.S3Bucket != "" {
			fmt.Printf("s3_bucket: %s\n", cfg.S3Bucket)
			fmt.Printf("s3_prefix: %s\n", cfg.S3Prefix)
			fmt.Printf("s3_region: %s\n", cfg.S3Region)
		}
		fmt.Printf("http_addr: %s\n", cfg.HTTPAddr)
		fmt.Printf("fuzzy_cutoff: %.2f\n", cfg.FuzzyCutoff)
		fmt.Printf("min_mapped_columns: %d\n", cfg.MinMappedColumns)
		fmt.Printf("dash_marker: %s\n", cfg.DashMarker)
		fmt.Printf("date_markers: %s\n", strings.Join(cfg.DateMarkers, ","))
		for _, tp := range cfg.Timepoints {
			fmt.Printf("timepoint: %s=%s\n", tp.Label, tp.Suffix)
		}
		if cfg.DefaultTaxonomyPath != "" {
			fmt.Printf("default_taxonomy_path: %s\n", cfg.DefaultTaxonomyPath)
		}
		fmt.Printf("max_parallel_sheets: %d\n", cfg.MaxParallelSheets)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		c, err := requireConfig()
		if err != nil {
			return err
		}
		switch key {
		case "upload_root":
			c.UploadRoot = val
		case "default_owner":
			c.DefaultOwner = val
		case "allowed_extensions":
			c.AllowedExtensions = splitList(val)
		case "database_driver":
			if _, err := storage.ParseDialect(val); err != nil {
				return err
			}
			c.DatabaseDriver = val
		case "database_dsn":
			c.DatabaseDSN = val
		case "redis_addr":
			c.RedisAddr = val
		case "s3_bucket":
			c.S3Bucket = val
		case "s3_prefix":
			c.S3Prefix = val
		case "s3_region":
			c.S3Region = val
		case "http_addr":
			c.HTTPAddr = val
		case "cors_origins":
			c.CORSOrigins = splitList(val)
		case "dash_marker":
			c.DashMarker = val
		case "date_markers":
			c.DateMarkers = splitList(val)
		case "default_taxonomy_path":
			c.DefaultTaxonomyPath = val
		case "fuzzy_cutoff":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil || f <= 0 || f > 1 {
				return fmt.Errorf("invalid float for fuzzy_cutoff: %v (use 0 < x <= 1)", val)
			}
			c.FuzzyCutoff = f
		case "max_upload_mb", "redis_db", "session_ttl_sec", "min_mapped_columns", "max_parallel_sheets":
			i, err := strconv.Atoi(val)
			if err != nil || i < 0 {
				return fmt.Errorf("invalid int for %s: %v", key, val)
			}
			switch key {
			case "max_upload_mb":
				c.MaxUploadMB = i
			case "redis_db":
				c.RedisDB = i
			case "session_ttl_sec":
				c.SessionTTLSec = i
			case "min_mapped_columns":
				c.MinMappedColumns = i
			case "max_parallel_sheets":
				c.MaxParallelSheets = i
			}
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// mask hides credentials embedded in a DSN.
func mask(s string) string {
	at := strings.LastIndex(s, "@")
	if at < 0 {
		return s
	}
	scheme := strings.Index(s, "://")
	if scheme < 0 || scheme > at {
		return "****" + s[at:]
	}
	return s[:scheme+3] + "****" + s[at:]
}
