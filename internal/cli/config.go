package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/spandigital/pgtranslate/typemap"
)

const (
	maxWalkDepth = 25
)

// Config represents the pgtranslate configuration from pgtranslate.yaml.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database" json:"database"`
	Scaffold  ScaffoldConfig  `mapstructure:"scaffold" json:"scaffold"`
	Translate TranslateConfig `mapstructure:"translate" json:"translate"`
	Types     TypesConfig     `mapstructure:"types" json:"types"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL      string `mapstructure:"url" json:"url"`
	Host     string `mapstructure:"host" json:"host"`
	Port     int    `mapstructure:"port" json:"port"`
	Name     string `mapstructure:"name" json:"name"`
	User     string `mapstructure:"user" json:"user"`
	Password string `mapstructure:"password" json:"password"`
	SSLMode  string `mapstructure:"sslmode" json:"sslmode"`
}

// ScaffoldConfig selects what scaffold reads and where the model goes.
type ScaffoldConfig struct {
	Schemas []string `mapstructure:"schemas" json:"schemas"`
	Tables  []string `mapstructure:"tables" json:"tables"`
	Output  string   `mapstructure:"output" json:"output"`
}

// TranslateConfig holds translate command settings.
type TranslateConfig struct {
	Model     string `mapstructure:"model" json:"model"`
	Entity    string `mapstructure:"entity" json:"entity"`
	Variable  string `mapstructure:"variable" json:"variable"`
	Tracking  bool   `mapstructure:"tracking" json:"tracking"`
	CacheSize int    `mapstructure:"cache_size" json:"cache_size"`
}

// TypesConfig selects the type-mapping plugins.
type TypesConfig struct {
	LegacyTimestamp bool     `mapstructure:"legacy_timestamp" json:"legacy_timestamp"`
	Plugins         []string `mapstructure:"plugins" json:"plugins"`
	SRID            int      `mapstructure:"srid" json:"srid"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none found),
// and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("PGTRANSLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "prefer")

	v.SetDefault("scaffold.schemas", []string{})
	v.SetDefault("scaffold.tables", []string{})
	v.SetDefault("scaffold.output", "")

	v.SetDefault("translate.model", "model.yaml")
	v.SetDefault("translate.entity", "")
	v.SetDefault("translate.variable", "x")
	v.SetDefault("translate.tracking", false)
	v.SetDefault("translate.cache_size", 0)

	v.SetDefault("types.legacy_timestamp", false)
	v.SetDefault("types.plugins", []string{"pgtypes", "ranges"})
	v.SetDefault("types.srid", 4326)
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for pgtranslate.yaml or
// pgtranslate.yml, stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"pgtranslate.yaml", "pgtranslate.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// DSN returns the database connection string.
// If database.url is set, it's returned directly.
// Otherwise, builds a DSN from discrete fields.
func (c *Config) DSN() (string, error) {
	db := c.Database

	if db.URL != "" {
		return db.URL, nil
	}

	if db.Host == "" {
		return "", fmt.Errorf("database.host is required when database.url is not set")
	}
	if db.Name == "" {
		return "", fmt.Errorf("database.name is required when database.url is not set")
	}
	if db.User == "" {
		return "", fmt.Errorf("database.user is required when database.url is not set")
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Name,
	}

	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	} else {
		u.User = url.User(db.User)
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Registry builds the type-mapping registry the types section describes.
func (c *Config) Registry() (*typemap.Registry, error) {
	opts := typemap.Options{LegacyTimestamp: c.Types.LegacyTimestamp}
	for _, name := range c.Types.Plugins {
		switch strings.ToLower(name) {
		case "pgtypes":
			opts.Plugins = append(opts.Plugins, typemap.PgTypes())
		case "ranges":
			opts.Plugins = append(opts.Plugins, typemap.Ranges())
		case "spatial":
			opts.Plugins = append(opts.Plugins, typemap.Spatial(typemap.SpatialOptions{SRID: c.Types.SRID}))
		default:
			return nil, fmt.Errorf("unknown type plugin %q", name)
		}
	}
	return typemap.New(opts), nil
}
