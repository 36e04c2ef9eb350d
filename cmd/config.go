package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/praetorian-inc/tenantscan/pkg/m365/auth"
	"github.com/praetorian-inc/tenantscan/pkg/m365/client"
	"github.com/praetorian-inc/tenantscan/pkg/m365/collectors"
	"github.com/praetorian-inc/tenantscan/pkg/m365/powerplatform"
	"github.com/praetorian-inc/tenantscan/pkg/m365/storage"
)

const maskedSecret = "********"

// Config is the effective configuration after file, environment and flag
// overrides are merged.
type Config struct {
	Azure         auth.Credentials        `mapstructure:"azure" yaml:"azure"`
	Graph         GraphConfig             `mapstructure:"graph" yaml:"graph"`
	PowerPlatform powerplatform.Endpoints `mapstructure:"powerplatform" yaml:"powerplatform"`
	Database      DatabaseConfig          `mapstructure:"database" yaml:"database"`
	Neo4j         Neo4jConfig             `mapstructure:"neo4j" yaml:"neo4j"`
	Scan          ScanConfig              `mapstructure:"scan" yaml:"scan"`
	Server        ServerConfig            `mapstructure:"server" yaml:"server"`
	Log           LogConfig               `mapstructure:"log" yaml:"log"`
}

type GraphConfig struct {
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url"`
	MaxRetries        int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialDelay      time.Duration `mapstructure:"initial_delay" yaml:"initial_delay"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

func (g GraphConfig) clientConfig(baseURL string) client.Config {
	return client.Config{
		BaseURL:           baseURL,
		MaxRetries:        g.MaxRetries,
		InitialDelay:      g.InitialDelay,
		RequestsPerSecond: g.RequestsPerSecond,
		Timeout:           g.Timeout,
	}
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver" yaml:"driver"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
}

// Neo4jConfig enables the relationship mirror when URI is set.
type Neo4jConfig struct {
	URI      string `mapstructure:"uri" yaml:"uri"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	Database string `mapstructure:"database" yaml:"database"`
}

type ScanConfig struct {
	SubrequestConcurrency int `mapstructure:"subrequest_concurrency" yaml:"subrequest_concurrency"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// setDefaults registers every key so environment overrides reach Unmarshal
// even when no config file mentions them.
func setDefaults(v *viper.Viper) {
	pp := powerplatform.DefaultEndpoints()

	v.SetDefault("azure.tenant_id", "")
	v.SetDefault("azure.client_id", "")
	v.SetDefault("azure.client_secret", "")
	v.SetDefault("graph.base_url", client.DefaultBaseURL)
	v.SetDefault("graph.max_retries", client.DefaultMaxRetries)
	v.SetDefault("graph.initial_delay", client.DefaultInitialDelay)
	v.SetDefault("graph.requests_per_second", 0)
	v.SetDefault("graph.timeout", client.DefaultTimeout)
	v.SetDefault("powerplatform.base_url", pp.BaseURL)
	v.SetDefault("powerplatform.environments", pp.Environments)
	v.SetDefault("powerplatform.apps", pp.Apps)
	v.SetDefault("powerplatform.flows", pp.Flows)
	v.SetDefault("database.driver", storage.DriverSQLite)
	v.SetDefault("database.dsn", "tenantscan.db")
	v.SetDefault("neo4j.uri", "")
	v.SetDefault("neo4j.username", "neo4j")
	v.SetDefault("neo4j.password", "")
	v.SetDefault("neo4j.database", "neo4j")
	v.SetDefault("scan.subrequest_concurrency", collectors.DefaultSubrequestConcurrency)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
}

func loadConfig(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	switch cfg.Database.Driver {
	case storage.DriverSQLite, storage.DriverPostgres:
	default:
		return Config{}, fmt.Errorf("unsupported database.driver %q", cfg.Database.Driver)
	}
	return cfg, nil
}

// Masked returns a copy safe to print.
func (c Config) Masked() Config {
	if c.Azure.ClientSecret != "" {
		c.Azure.ClientSecret = maskedSecret
	}
	if c.Neo4j.Password != "" {
		c.Neo4j.Password = maskedSecret
	}
	return c
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the tenantscan configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(cfg.Masked())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
