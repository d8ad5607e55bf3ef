package config

import (
	_ "embed"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Store   Store   `yaml:"store"`
	Source  Source  `yaml:"source"`
	Search  Search  `yaml:"search"`
	Fetch   Fetch   `yaml:"fetch"`
	LLM     LLM     `yaml:"llm"`
	Enhance Enhance `yaml:"enhance"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`

	storePinned bool
}

type Store struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type Source struct {
	BlogURL     string `yaml:"blog_url"`
	FeedURL     string `yaml:"feed_url"`
	ScrapeLimit int    `yaml:"scrape_limit"`
}

type Search struct {
	Engine         string        `yaml:"engine"`
	BaseURL        string        `yaml:"base_url"`
	APIKeyEnv      string        `yaml:"api_key_env"`
	NumResults     int           `yaml:"num_results"`
	Timeout        time.Duration `yaml:"timeout"`
	ExcludeDomains []string      `yaml:"exclude_domains"`
}

// APIKey resolves the search credential from the configured env var.
func (s Search) APIKey() string {
	return os.Getenv(s.APIKeyEnv)
}

type Fetch struct {
	Timeout   time.Duration `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
}

type LLM struct {
	Timeout time.Duration `yaml:"timeout"`
	Groq    Provider      `yaml:"groq"`
	Gemini  Provider      `yaml:"gemini"`
}

// Provider holds the settings for one text-generation backend.
type Provider struct {
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	MaxTokens int    `yaml:"max_tokens"`
}

// APIKey resolves the provider credential from the configured env var.
func (p Provider) APIKey() string {
	return os.Getenv(p.APIKeyEnv)
}

type Enhance struct {
	Concurrency int  `yaml:"concurrency"`
	PageSize    int  `yaml:"page_size"`
	MaxSources  int  `yaml:"max_sources"`
	OnlyPending bool `yaml:"only_pending"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for enhancer.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "enhancer")
}

// DataDir returns the XDG data directory for enhancer.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "enhancer")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/enhancer/config.yaml > ./config.yaml.
// An empty path with a nil error means no file exists and defaults apply.
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", nil
}

// Load reads and parses a config YAML file. An empty path yields the
// embedded defaults. Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	data := []byte{}
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(DefaultConfigYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing default config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ARTICLE_API_URL"); v != "" {
		c.Store.BaseURL = v
		c.storePinned = true
	}
	if v := os.Getenv("SERPAPI_URL"); v != "" {
		c.Search.BaseURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.SetServerPort(port)
		}
	}
}

// SetServerPort changes the listen port. When the store URL points at this
// server on loopback and was not set through ARTICLE_API_URL, its port
// follows so batch runs keep talking to the same process.
func (c *Config) SetServerPort(port int) {
	if port == c.Server.Port {
		return
	}
	if !c.storePinned {
		if u, err := url.Parse(c.Store.BaseURL); err == nil && isLoopback(u.Hostname()) && u.Port() == strconv.Itoa(c.Server.Port) {
			u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
			c.Store.BaseURL = u.String()
		}
	}
	c.Server.Port = port
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (c *Config) normalize() {
	if c.Enhance.Concurrency < 1 {
		c.Enhance.Concurrency = 1
	}
	if c.Enhance.PageSize < 1 {
		c.Enhance.PageSize = 100
	}
	if c.Enhance.MaxSources < 1 {
		c.Enhance.MaxSources = 2
	}
	if c.Search.NumResults < 1 {
		c.Search.NumResults = 5
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Source.ScrapeLimit < 1 {
		c.Source.ScrapeLimit = 5
	}
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
