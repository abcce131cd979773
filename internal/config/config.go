// Package config loads chartminer settings from a YAML file with
// environment-variable overrides. Missing files are not an error: the
// zero config plus defaults is a runnable configuration for local use.
package config

import (
	"os"
	"strconv"

	"go.yaml.in/yaml/v3"

	"github.com/medharbor/chartminer/internal/errs"
)

// Config is the top-level chartminer configuration.
type Config struct {
	Log          LogConfig          `yaml:"log"`
	Database     DatabaseConfig     `yaml:"database"`
	Catalog      CatalogConfig      `yaml:"catalog"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
	Investigator InvestigatorConfig `yaml:"investigator"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Reports      ReportsConfig      `yaml:"reports"`
}

// LogConfig mirrors logger.Config minus the output writer.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DatabaseConfig selects the warehouse the extraction queries run against.
type DatabaseConfig struct {
	Driver         string `yaml:"driver"` // postgres, mysql
	DSN            string `yaml:"dsn"`
	QueryTimeoutMS int    `yaml:"query_timeout_ms"`
}

// CatalogConfig locates the schema description export.
type CatalogConfig struct {
	Path string `yaml:"path"` // CSV schema description
}

// KnowledgeConfig locates the domain reference document.
type KnowledgeConfig struct {
	Path string `yaml:"path"` // structured markdown reference
}

// InvestigatorConfig tunes failure investigation.
type InvestigatorConfig struct {
	SampleLimit int `yaml:"sample_limit"` // rows fetched per implicated field
	MinSamples  int `yaml:"min_samples"`  // below this, confidence is penalised
}

// OrchestratorConfig tunes retry and completeness loops.
type OrchestratorConfig struct {
	MaxRetries         int     `yaml:"max_retries"`          // fix-and-retry attempts per query
	MaxCycles          int     `yaml:"max_cycles"`           // completeness cycles per patient
	MaxGapsPerCycle    int     `yaml:"max_gaps_per_cycle"`   // re-extractions attempted per cycle
	AutoFixThreshold   float64 `yaml:"auto_fix_threshold"`   // confidence needed to retry automatically
	PatientConcurrency int     `yaml:"patient_concurrency"`  // parallel patients in RunPatients
}

// ReportsConfig selects where failure and coverage artifacts are written.
type ReportsConfig struct {
	Provider  string `yaml:"provider"` // fs, minio
	Dir       string `yaml:"dir"`      // fs: root directory
	Endpoint  string `yaml:"endpoint"` // minio: host:port
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Database: DatabaseConfig{
			Driver:         "postgres",
			QueryTimeoutMS: 30_000,
		},
		Catalog: CatalogConfig{
			Path: "schema_description.csv",
		},
		Knowledge: KnowledgeConfig{
			Path: "reference.md",
		},
		Investigator: InvestigatorConfig{
			SampleLimit: 20,
			MinSamples:  3,
		},
		Orchestrator: OrchestratorConfig{
			MaxRetries:         2,
			MaxCycles:          5,
			MaxGapsPerCycle:    10,
			AutoFixThreshold:   0.9,
			PatientConcurrency: 4,
		},
		Reports: ReportsConfig{
			Provider: "fs",
			Dir:      "./reports",
		},
	}
}

// Load reads the YAML file at path, applies environment overrides, fills
// defaults, and validates. An empty path falls back to CHARTMINER_CONFIG
// and then to "chartminer.yaml"; a missing file is not an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CHARTMINER_CONFIG")
	}
	if path == "" {
		path = "chartminer.yaml"
	}

	cfg := &Config{}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "parsing "+path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "reading "+path, err)
	}

	// Env vars override YAML values.
	envOverride(&cfg.Log.Level, "CHARTMINER_LOG_LEVEL")
	envOverride(&cfg.Log.Format, "CHARTMINER_LOG_FORMAT")
	envOverride(&cfg.Database.Driver, "CHARTMINER_DB_DRIVER")
	envOverride(&cfg.Database.DSN, "CHARTMINER_DB_DSN")
	envOverride(&cfg.Catalog.Path, "CHARTMINER_SCHEMA_PATH")
	envOverride(&cfg.Knowledge.Path, "CHARTMINER_KNOWLEDGE_PATH")
	if err := envOverrideInt(&cfg.Investigator.SampleLimit, "CHARTMINER_SAMPLE_LIMIT"); err != nil {
		return nil, err
	}
	if err := envOverrideInt(&cfg.Orchestrator.MaxRetries, "CHARTMINER_MAX_RETRIES"); err != nil {
		return nil, err
	}
	if err := envOverrideInt(&cfg.Orchestrator.MaxCycles, "CHARTMINER_MAX_CYCLES"); err != nil {
		return nil, err
	}
	if err := envOverrideFloat(&cfg.Orchestrator.AutoFixThreshold, "CHARTMINER_AUTOFIX_THRESHOLD"); err != nil {
		return nil, err
	}
	envOverride(&cfg.Reports.Provider, "CHARTMINER_REPORTS_PROVIDER")
	envOverride(&cfg.Reports.Dir, "CHARTMINER_REPORTS_DIR")
	envOverride(&cfg.Reports.Endpoint, "CHARTMINER_MINIO_ENDPOINT")
	envOverride(&cfg.Reports.AccessKey, "CHARTMINER_MINIO_ACCESS_KEY")
	envOverride(&cfg.Reports.SecretKey, "CHARTMINER_MINIO_SECRET_KEY")
	envOverride(&cfg.Reports.Bucket, "CHARTMINER_MINIO_BUCKET")

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills any unset field from Default().
func (c *Config) applyDefaults() {
	def := Default()

	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Database.Driver == "" {
		c.Database.Driver = def.Database.Driver
	}
	if c.Database.QueryTimeoutMS == 0 {
		c.Database.QueryTimeoutMS = def.Database.QueryTimeoutMS
	}
	if c.Catalog.Path == "" {
		c.Catalog.Path = def.Catalog.Path
	}
	if c.Knowledge.Path == "" {
		c.Knowledge.Path = def.Knowledge.Path
	}
	if c.Investigator.SampleLimit == 0 {
		c.Investigator.SampleLimit = def.Investigator.SampleLimit
	}
	if c.Investigator.MinSamples == 0 {
		c.Investigator.MinSamples = def.Investigator.MinSamples
	}
	if c.Orchestrator.MaxRetries == 0 {
		c.Orchestrator.MaxRetries = def.Orchestrator.MaxRetries
	}
	if c.Orchestrator.MaxCycles == 0 {
		c.Orchestrator.MaxCycles = def.Orchestrator.MaxCycles
	}
	if c.Orchestrator.MaxGapsPerCycle == 0 {
		c.Orchestrator.MaxGapsPerCycle = def.Orchestrator.MaxGapsPerCycle
	}
	if c.Orchestrator.AutoFixThreshold == 0 {
		c.Orchestrator.AutoFixThreshold = def.Orchestrator.AutoFixThreshold
	}
	if c.Orchestrator.PatientConcurrency == 0 {
		c.Orchestrator.PatientConcurrency = def.Orchestrator.PatientConcurrency
	}
	if c.Reports.Provider == "" {
		c.Reports.Provider = def.Reports.Provider
	}
	if c.Reports.Provider == "fs" && c.Reports.Dir == "" {
		c.Reports.Dir = def.Reports.Dir
	}
}

// Validate checks cross-field constraints. It assumes defaults are applied.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "mysql":
	default:
		return errs.New(errs.ErrKindInvalidInput, "database.driver must be postgres or mysql, got "+c.Database.Driver)
	}
	switch c.Reports.Provider {
	case "fs":
		if c.Reports.Dir == "" {
			return errs.New(errs.ErrKindInvalidInput, "reports.dir is required for the fs provider")
		}
	case "minio":
		if c.Reports.Endpoint == "" || c.Reports.Bucket == "" {
			return errs.New(errs.ErrKindInvalidInput, "reports.endpoint and reports.bucket are required for the minio provider")
		}
	default:
		return errs.New(errs.ErrKindInvalidInput, "reports.provider must be fs or minio, got "+c.Reports.Provider)
	}
	if c.Orchestrator.AutoFixThreshold < 0 || c.Orchestrator.AutoFixThreshold > 1 {
		return errs.New(errs.ErrKindInvalidInput, "orchestrator.auto_fix_threshold must be between 0 and 1")
	}
	if c.Orchestrator.MaxRetries < 0 {
		return errs.New(errs.ErrKindInvalidInput, "orchestrator.max_retries must be >= 0")
	}
	if c.Orchestrator.MaxCycles < 1 {
		return errs.New(errs.ErrKindInvalidInput, "orchestrator.max_cycles must be >= 1")
	}
	if c.Investigator.SampleLimit < 1 {
		return errs.New(errs.ErrKindInvalidInput, "investigator.sample_limit must be >= 1")
	}
	return nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "invalid "+envKey, err)
		}
		*field = parsed
	}
	return nil
}

func envOverrideFloat(field *float64, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return errs.Wrap(errs.ErrKindInvalidInput, "invalid "+envKey, err)
		}
		*field = parsed
	}
	return nil
}
