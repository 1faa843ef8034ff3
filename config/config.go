package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the briefing backend.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Providers ProvidersConfig `mapstructure:"providers"`
	LLM       LLMConfig       `mapstructure:"llm"`
}

// GeneralConfig contains server and auth settings.
type GeneralConfig struct {
	Listen          string        `mapstructure:"listen"`
	Env             string        `mapstructure:"env"`
	JWTSecret       string        `mapstructure:"jwt_secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
	// SuccessURL is where OAuth callbacks redirect after connecting a provider.
	SuccessURL string `mapstructure:"success_url"`
}

// DatabasesConfig groups the backing stores.
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the relational store connection.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a Postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", errors.New("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig describes the volatile state store.
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Pass string `mapstructure:"pass"`
	DB   int    `mapstructure:"db"`
}

// Addr returns host:port for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// OAuthClientConfig holds one provider's OAuth application credentials.
type OAuthClientConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

// ProvidersConfig holds third-party integration settings.
type ProvidersConfig struct {
	Google OAuthClientConfig `mapstructure:"google"`
	Slack  OAuthClientConfig `mapstructure:"slack"`
	Notion OAuthClientConfig `mapstructure:"notion"`
	// FetchTimeout bounds each outbound call a connector makes while
	// fetching briefing data.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
	// StateTTL bounds how long an OAuth state token stays valid between
	// the authorization request and the provider callback.
	StateTTL time.Duration `mapstructure:"state_ttl"`
}

// LLMConfig contains the text-generation model settings.
type LLMConfig struct {
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	MaxTokens int           `mapstructure:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if l.APIKey == "" {
		return errors.New("llm.api_key is required")
	}
	if l.Model == "" {
		return errors.New("llm.model is required")
	}
	return nil
}

// LoadConfig reads configuration from file (config.json) and ORBIT_* env vars.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")
	viper.SetDefault("general.listen", ":8080")
	viper.SetDefault("general.env", "dev")
	viper.SetDefault("general.access_token_ttl", 30*time.Minute)
	viper.SetDefault("general.refresh_token_ttl", 7*24*time.Hour)
	viper.SetDefault("general.success_url", "/integrations/success")
	viper.SetDefault("providers.fetch_timeout", 15*time.Second)
	viper.SetDefault("providers.state_ttl", 10*time.Minute)
	viper.SetDefault("llm.model", "claude-3-5-sonnet-20241022")
	viper.SetDefault("llm.max_tokens", 1024)
	viper.SetDefault("llm.timeout", 60*time.Second)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("ORBIT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			panic(fmt.Errorf("fatal error config file: %w", err))
		}
		// env-only deployments run without a config file
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}
	return &config
}
