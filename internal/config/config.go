package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Sources    Sources    `yaml:"sources"`
	Generation Generation `yaml:"generation"`
	Script     Script     `yaml:"script"`
	Render     Render     `yaml:"render"`
	Worker     Worker     `yaml:"worker"`
	Retention  Retention  `yaml:"retention"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
}

type Sources struct {
	Channels       []string           `yaml:"channels"`
	ChannelWeights map[string]float64 `yaml:"channel_weights"`
	Limit          int                `yaml:"limit"`
	Reddit         Reddit             `yaml:"reddit"`
	Feeds          []Feed             `yaml:"feeds"`
	FetchLinked    bool               `yaml:"fetch_linked"`
}

type Reddit struct {
	Enabled         bool   `yaml:"enabled"`
	UserAgent       string `yaml:"user_agent"`
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`
	UsernameEnv     string `yaml:"username_env"`
	PasswordEnv     string `yaml:"password_env"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Generation struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	TTSModel    string        `yaml:"tts_model"`
	Voice       string        `yaml:"voice"`
	KeysFileEnv string        `yaml:"keys_file_env"`
	KeysEnv     string        `yaml:"keys_env"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	Timeout     time.Duration `yaml:"timeout"`
	OllamaURL   string        `yaml:"ollama_url"`
	OllamaModel string        `yaml:"ollama_model"`
}

type Script struct {
	LengthSeconds float64 `yaml:"length_seconds"`
}

type Render struct {
	Width     int    `yaml:"width"`
	Height    int    `yaml:"height"`
	WrapWidth int    `yaml:"wrap_width"`
	FFmpeg    string `yaml:"ffmpeg"`
}

type Worker struct {
	Interval time.Duration `yaml:"interval"`
}

type Retention struct {
	Enabled     bool    `yaml:"enabled"`
	MaxAgeHours float64 `yaml:"max_age_hours"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for reelsmith.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "reelsmith")
}

// DataDir returns the XDG data directory for reelsmith.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "reelsmith")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/reelsmith/config.yaml > ./config.yaml
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

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'reelsmith init' to create a default config",
		xdgConfig,
	)
}

// LoadEnv loads a .env file from the working directory if one exists.
// Variables already present in the environment win.
func LoadEnv() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Sources: Sources{
			Channels: []string{"AskReddit", "Showerthoughts", "LifeProTips"},
			Limit:    10,
			Reddit: Reddit{
				Enabled:         true,
				UserAgent:       "reelsmith/2.0",
				ClientIDEnv:     "REDDIT_CLIENT_ID",
				ClientSecretEnv: "REDDIT_CLIENT_SECRET",
				UsernameEnv:     "REDDIT_USERNAME",
				PasswordEnv:     "REDDIT_PASSWORD",
			},
			FetchLinked: true,
		},
		Generation: Generation{
			Provider:    "gemini",
			Model:       "gemini-2.0-flash",
			TTSModel:    "gemini-2.5-flash-preview-tts",
			Voice:       "Kore",
			KeysFileEnv: "GEMINI_API_KEYS_FILE",
			KeysEnv:     "GEMINI_API_KEYS",
			APIKeyEnv:   "GEMINI_API_KEY",
			MaxAttempts: 3,
			RetryDelay:  time.Second,
			Timeout:     120 * time.Second,
			OllamaURL:   "http://localhost:11434",
			OllamaModel: "llama3.1",
		},
		Script: Script{LengthSeconds: 30},
		Render: Render{
			Width:     1080,
			Height:    1920,
			WrapWidth: 30,
			FFmpeg:    "ffmpeg",
		},
		Worker:    Worker{Interval: time.Hour},
		Retention: Retention{Enabled: true, MaxAgeHours: 168},
		Server:    Server{Port: 8000},
		Logging:   Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Sources.Limit <= 0 {
		return nil, fmt.Errorf("sources.limit must be positive, got %d", cfg.Sources.Limit)
	}
	for ch, w := range cfg.Sources.ChannelWeights {
		if w <= 0 {
			return nil, fmt.Errorf("sources.channel_weights.%s must be positive, got %g", ch, w)
		}
	}
	switch cfg.Generation.Provider {
	case "gemini", "ollama":
	default:
		return nil, fmt.Errorf("generation.provider must be gemini or ollama, got %q", cfg.Generation.Provider)
	}
	if cfg.Generation.MaxAttempts <= 0 {
		return nil, fmt.Errorf("generation.max_attempts must be positive, got %d", cfg.Generation.MaxAttempts)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// WorkspaceDir is the root of the stage-partitioned file storage.
func (c *Config) WorkspaceDir() string {
	return filepath.Join(c.GetDataDir(), "workspace")
}

// DatabasePath is the location of the SQLite store.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.GetDataDir(), "reelsmith.db")
}

// APIKeys resolves the generative-service credential pool. A JSON array file
// named by keys_file_env takes priority, then a comma-separated list in
// keys_env, then the single key in api_key_env.
func (g Generation) APIKeys() ([]string, error) {
	if path := os.Getenv(g.KeysFileEnv); g.KeysFileEnv != "" && path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading keys file: %w", err)
		}
		var keys []string
		if err := json.Unmarshal(data, &keys); err != nil {
			return nil, fmt.Errorf("parsing keys file %s: %w", path, err)
		}
		return compact(keys), nil
	}

	if list := os.Getenv(g.KeysEnv); g.KeysEnv != "" && list != "" {
		return compact(strings.Split(list, ",")), nil
	}

	if key := os.Getenv(g.APIKeyEnv); g.APIKeyEnv != "" && key != "" {
		return []string{key}, nil
	}

	return nil, nil
}

func compact(keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
