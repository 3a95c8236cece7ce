// =============================================================================
// Simland HDX Scraper - Configuration Module
// =============================================================================
//
// This module is responsible for loading the scraper configuration files:
//
// CONFIGURATION FILES:
//   1. Main Config (config.yaml): catalog site, metadata source, folders,
//      logging
//   2. Static Dataset Template (hdx_dataset_static.yaml): catalog keys
//      shared by every dataset (license, preview settings, ...)
//
// ENVIRONMENT:
//   ${VAR} references are expanded before parsing, so secrets such as the
//   API key stay out of the file:
//
//     hdx_key: ${HDX_KEY}
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Sites maps hdx_site names to their URLs.
var Sites = map[string]string{
	"prod":    "https://data.humdata.org",
	"stage":   "https://stage.data-humdata-org.ahconu.org",
	"feature": "https://feature.data-humdata-org.ahconu.org",
	"demo":    "https://demo.data-humdata-org.ahconu.org",
	"dev":     "https://dev.data-humdata-org.ahconu.org",
}

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the scraper configuration.
type Config struct {
	// =========================================================================
	// CATALOG SETTINGS
	// =========================================================================

	// HDXSite selects the catalog site. One of the keys of Sites.
	// Default: "prod"
	HDXSite string `yaml:"hdx_site"`

	// HDXURL overrides the URL of HDXSite.
	HDXURL string `yaml:"hdx_url"`

	// HDXKey is the API token of the catalog user.
	HDXKey string `yaml:"hdx_key"`

	// ReviewHDXSite is the site used in review mode. hdx_url does not apply
	// to it.
	// Default: "dev"
	ReviewHDXSite string `yaml:"review_hdx_site"`

	// UpdatedByScript is sent with every dataset.
	// Default: "HDX Scraper: Simland"
	UpdatedByScript string `yaml:"updated_by_script"`

	// =========================================================================
	// SOURCE SETTINGS
	// =========================================================================

	// MetadataURL is the location of the metadata table. Required.
	MetadataURL string `yaml:"metadata_url"`

	// SkipDatasets are never published.
	// Default: ["cod-ps-test"]
	SkipDatasets []string `yaml:"skip_datasets"`

	// DefaultReferenceYear is used for datasets without period fields.
	// Default: 2024
	DefaultReferenceYear int `yaml:"default_reference_year"`

	// UserAgent is sent on every request.
	// Default: "hdx-scraper-simland"
	UserAgent string `yaml:"user_agent"`

	// =========================================================================
	// DIRECTORY SETTINGS
	// =========================================================================

	// TempDir holds the run logs, the progress database and the downloads
	// folder (see DownloadDir).
	// Default: "<os temp>/hdx-scraper-simland"
	TempDir string `yaml:"temp_dir"`

	// SavedDir keeps copies of downloads for --save / --use-saved.
	// Default: "./saved_data"
	SavedDir string `yaml:"saved_dir"`

	// FallbackDir is searched when a download fails.
	// Default: TempDir
	FallbackDir string `yaml:"fallback_dir"`

	// ProgressDB is the SQLite file that stores run progress.
	// Default: "<temp_dir>/progress.db"
	ProgressDB string `yaml:"progress_db"`

	// DatasetStaticYAML is the static dataset template. A relative path is
	// resolved against the folder of the main config file.
	// Default: "config/hdx_dataset_static.yaml"
	DatasetStaticYAML string `yaml:"dataset_static_yaml"`

	// =========================================================================
	// LOGGING SETTINGS
	// =========================================================================

	// LogFile receives JSON logs in addition to the console. Empty disables it.
	LogFile string `yaml:"log_file"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Load loads the main configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the main configuration file.
//
// RETURNS:
//   - A pointer to the Config struct.
//   - An error if the file cannot be read, parsed or validated.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if config.DatasetStaticYAML != "" && !filepath.IsAbs(config.DatasetStaticYAML) {
		config.DatasetStaticYAML = filepath.Join(filepath.Dir(configPath), config.DatasetStaticYAML)
	}

	if err := ensureDirectories(config); err != nil {
		return nil, err
	}
	return config, nil
}

// Parse parses configuration data, applies defaults and validates the result.
// It does not touch the file system.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(config *Config) {
	if config.HDXSite == "" {
		config.HDXSite = "prod"
	}
	if config.ReviewHDXSite == "" {
		config.ReviewHDXSite = "dev"
	}
	if config.UpdatedByScript == "" {
		config.UpdatedByScript = "HDX Scraper: Simland"
	}
	if config.SkipDatasets == nil {
		config.SkipDatasets = []string{"cod-ps-test"}
	}
	if config.DefaultReferenceYear == 0 {
		config.DefaultReferenceYear = 2024
	}
	if config.UserAgent == "" {
		config.UserAgent = "hdx-scraper-simland"
	}
	if config.TempDir == "" {
		config.TempDir = filepath.Join(os.TempDir(), "hdx-scraper-simland")
	}
	if config.SavedDir == "" {
		config.SavedDir = "./saved_data"
	}
	if config.FallbackDir == "" {
		config.FallbackDir = config.TempDir
	}
	if config.ProgressDB == "" {
		config.ProgressDB = filepath.Join(config.TempDir, "progress.db")
	}
	if config.DatasetStaticYAML == "" {
		config.DatasetStaticYAML = filepath.Join("config", "hdx_dataset_static.yaml")
	}
	if config.LogLevel == "" {
		config.LogLevel = "info"
	}
}

// validate validates the configuration.
func validate(config *Config) error {
	if strings.TrimSpace(config.MetadataURL) == "" {
		return fmt.Errorf("metadata_url is required")
	}
	for _, site := range []string{config.HDXSite, config.ReviewHDXSite} {
		if _, ok := Sites[site]; !ok {
			return fmt.Errorf("unknown hdx site %q (valid: %s)", site, strings.Join(siteNames(), ", "))
		}
	}
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", config.LogLevel)
	}
	return nil
}

func ensureDirectories(config *Config) error {
	for _, dir := range []string{config.TempDir, config.DownloadDir(), config.SavedDir, filepath.Dir(config.ProgressDB)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

func siteNames() []string {
	names := make([]string, 0, len(Sites))
	for name := range Sites {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SiteURL returns the catalog URL to publish to.
func (c *Config) SiteURL(reviewMode bool) string {
	if reviewMode {
		return Sites[c.ReviewHDXSite]
	}
	if c.HDXURL != "" {
		return strings.TrimRight(c.HDXURL, "/")
	}
	return Sites[c.HDXSite]
}

// DownloadDir is the folder downloads are staged in. Only this folder is
// cleaned of stale files; the progress database and fallback files live
// outside it.
func (c *Config) DownloadDir() string {
	return filepath.Join(c.TempDir, "downloads")
}

// Skip reports whether name is configured to be skipped.
func (c *Config) Skip(name string) bool {
	for _, s := range c.SkipDatasets {
		if s == name {
			return true
		}
	}
	return false
}

// =============================================================================
// STATIC DATASET TEMPLATE
// =============================================================================

// LoadStatic loads the static dataset template, a flat mapping of catalog
// keys. A missing file yields an empty template.
func LoadStatic(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset template: %w", err)
	}

	static := map[string]any{}
	if err := yaml.Unmarshal(data, &static); err != nil {
		return nil, fmt.Errorf("failed to parse dataset template %s: %w", path, err)
	}
	return static, nil
}
