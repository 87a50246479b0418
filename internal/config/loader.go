package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/viper"

	"github.com/tordrt/fieldlog/internal/changelog"
)

// EnvPrefix prefixes environment overrides, e.g. FIELDLOG_DATABASE_URL
const EnvPrefix = "FIELDLOG"

// Config is the contents of a fieldlog configuration file:
//
//	database:
//	  url: postgres://localhost/app
//	  schema: public
//	tables:
//	  article:
//	    log: title, body
//	    created_by: true
type Config struct {
	DatabaseURL string
	Schema      string
	// Tables maps origin table names to their raw behaviour parameters
	Tables map[string]map[string]string
}

// Load reads the configuration file at path. An empty path reads only the
// environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database.url")
	_ = v.BindEnv("database.schema")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		DatabaseURL: v.GetString("database.url"),
		Schema:      v.GetString("database.schema"),
		Tables:      make(map[string]map[string]string),
	}

	for name := range v.GetStringMap("tables") {
		params := v.GetStringMapString("tables." + name)
		cfg.Tables[name] = params
	}

	return cfg, nil
}

// TableNames returns the configured origin tables in sorted order
func (c *Config) TableNames() []string {
	names := make([]string, 0, len(c.Tables))
	for name := range c.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Options parses the behaviour parameters of table
func (c *Config) Options(table string) (changelog.Options, error) {
	params, ok := c.Tables[table]
	if !ok {
		return changelog.Options{}, fmt.Errorf("table %s is not configured", table)
	}

	opts, err := changelog.ParseParameters(params)
	if err != nil {
		var cfgErr *changelog.ConfigError
		if errors.As(err, &cfgErr) && cfgErr.Table == "" {
			cfgErr.Table = table
		}
		return changelog.Options{}, err
	}
	return opts, nil
}
