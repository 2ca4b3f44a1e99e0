package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/sheetloom/internal/analysis"
	"github.com/KaramelBytes/sheetloom/internal/timepoint"
)

const dirName = ".sheetloom"

// Global configuration structure.
type Global struct {
	UploadRoot        string   `mapstructure:"upload_root" yaml:"upload_root"`
	DefaultOwner      string   `mapstructure:"default_owner" yaml:"default_owner"`
	AllowedExtensions []string `mapstructure:"allowed_extensions" yaml:"allowed_extensions"`
	MaxUploadMB       int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`

	// Storage
	DatabaseDriver string `mapstructure:"database_driver" yaml:"database_driver"`
	DatabaseDSN    string `mapstructure:"database_dsn" yaml:"database_dsn"`

	// Analysis sessions; empty RedisAddr keeps them in memory.
	RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" yaml:"redis_db"`
	SessionTTLSec int    `mapstructure:"session_ttl_sec" yaml:"session_ttl_sec"`

	// Archive of import outputs; empty S3Bucket disables it.
	S3Bucket string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Prefix string `mapstructure:"s3_prefix" yaml:"s3_prefix"`
	S3Region string `mapstructure:"s3_region" yaml:"s3_region"`

	// HTTP
	HTTPAddr    string   `mapstructure:"http_addr" yaml:"http_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// Classification and reshaping
	FuzzyCutoff         float64               `mapstructure:"fuzzy_cutoff" yaml:"fuzzy_cutoff"`
	MinMappedColumns    int                   `mapstructure:"min_mapped_columns" yaml:"min_mapped_columns"`
	DashMarker          string                `mapstructure:"dash_marker" yaml:"dash_marker"`
	DateMarkers         []string              `mapstructure:"date_markers" yaml:"date_markers"`
	Timepoints          []timepoint.Timepoint `mapstructure:"timepoints" yaml:"timepoints"`
	PatientColumns      []string              `mapstructure:"patient_columns" yaml:"patient_columns"`
	PatientIdentifiers  []string              `mapstructure:"patient_identifiers" yaml:"patient_identifiers"`
	TaxonomyColumns     []string              `mapstructure:"taxonomy_columns" yaml:"taxonomy_columns"`
	TaxonomyIdentifiers []string              `mapstructure:"taxonomy_identifiers" yaml:"taxonomy_identifiers"`

	DefaultTaxonomyPath string `mapstructure:"default_taxonomy_path" yaml:"default_taxonomy_path"`
	MaxParallelSheets   int    `mapstructure:"max_parallel_sheets" yaml:"max_parallel_sheets"`
}

// Dir returns ~/.sheetloom.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, dirName), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.sheetloom/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: flags (cfgFile) > env > config file > defaults.
// A .env file in the working directory is loaded into the environment first.
func Load(cfgFile string) (*Global, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("SHEETLOOM")
	v.AutomaticEnv()

	v.SetDefault("default_owner", "local")
	v.SetDefault("allowed_extensions", []string{"csv", "tsv", "txt", "xlsx"})
	v.SetDefault("max_upload_mb", 64)
	v.SetDefault("database_driver", "sqlite")
	v.SetDefault("session_ttl_sec", 3600)
	v.SetDefault("s3_prefix", "imports/")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("http_addr", ":8080")
	v.SetDefault("cors_origins", []string{"*"})
	v.SetDefault("fuzzy_cutoff", analysis.DefaultFuzzyCutoff)
	v.SetDefault("min_mapped_columns", analysis.DefaultMinMapped)
	v.SetDefault("dash_marker", timepoint.DefaultDashMarker)
	v.SetDefault("date_markers", analysis.DefaultDateMarkers)
	v.SetDefault("patient_columns", analysis.DefaultPatientColumns)
	v.SetDefault("patient_identifiers", analysis.DefaultPatientIdentifiers)
	v.SetDefault("taxonomy_columns", analysis.DefaultTaxonomyColumns)
	v.SetDefault("taxonomy_identifiers", analysis.DefaultTaxonomyIdentifiers)
	v.SetDefault("max_parallel_sheets", 4)

	// Config file
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(c.Timepoints) == 0 {
		c.Timepoints = append([]timepoint.Timepoint(nil), timepoint.DefaultTimepoints...)
	}
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	// Resolve upload_root default: ~/.sheetloom/instance
	if c.UploadRoot == "" {
		c.UploadRoot = filepath.Join(dir, "instance")
	}
	if c.DatabaseDSN == "" && c.DatabaseDriver == "sqlite" {
		c.DatabaseDSN = filepath.Join(dir, "sheetloom.db")
	}
	return &c, nil
}

// Classifier builds a classifier from the configured vocabularies.
func (c *Global) Classifier() *analysis.Classifier {
	suffixes := make([]string, 0, len(c.Timepoints))
	for _, tp := range c.Timepoints {
		suffixes = append(suffixes, tp.Suffix)
	}
	return &analysis.Classifier{
		Domains: []analysis.Vocabulary{
			{Type: analysis.TypePatient, Names: c.PatientColumns, Identifiers: c.PatientIdentifiers},
			{Type: analysis.TypeTaxonomy, Names: c.TaxonomyColumns, Identifiers: c.TaxonomyIdentifiers},
		},
		Suffixes:  suffixes,
		Cutoff:    c.FuzzyCutoff,
		MinMapped: c.MinMappedColumns,
	}
}

// Decomposer builds the timepoint decomposer from configuration.
func (c *Global) Decomposer() *timepoint.Decomposer {
	return timepoint.New(c.Timepoints, c.DashMarker)
}
