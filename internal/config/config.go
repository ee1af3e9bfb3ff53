package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Port           int           `yaml:"port"`
	BindAddress    string        `yaml:"bind"`
	DataDir        string        `yaml:"data_dir"`
	LogLevel       string        `yaml:"log_level"`
	JWTSecret      string        `yaml:"jwt_secret"`
	EncryptionKey  string        `yaml:"encryption_key"`
	DevMode        bool          `yaml:"dev"`
	OpenAIKey      string        `yaml:"openai_api_key"`
	OpenAIBaseURL  string        `yaml:"openai_base_url"`
	LLMModel       string        `yaml:"llm_model"`
	NATSURL        string        `yaml:"nats_url"`
	ReminderWindow time.Duration `yaml:"reminder_window"`
	DeadlineWindow time.Duration `yaml:"deadline_window"`
	BackupKeep     int           `yaml:"backup_keep"`
}

func defaults() *Config {
	return &Config{
		Port:           41700,
		BindAddress:    "127.0.0.1",
		DataDir:        resolveDataDir(),
		LogLevel:       "info",
		OpenAIBaseURL:  "https://api.openai.com/v1",
		LLMModel:       "gpt-4o-mini",
		ReminderWindow: 30 * time.Minute,
		DeadlineWindow: 72 * time.Hour,
		BackupKeep:     7,
	}
}

// Load builds the configuration from defaults, then the YAML file named by
// PROPDESK_CONFIG (if any), then environment variables. A broken config file
// is reported and otherwise ignored.
func Load() *Config {
	cfg := defaults()

	if path := getEnv("PROPDESK_CONFIG", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
		}
	}

	cfg.JWTSecret = getEnv("PROPDESK_JWT_SECRET", cfg.JWTSecret)
	cfg.EncryptionKey = getEnv("PROPDESK_ENCRYPTION_KEY", cfg.EncryptionKey)
	if d := getEnv("PROPDESK_DEV", ""); d != "" {
		cfg.DevMode = d == "true"
	}

	if p := getEnv("PROPDESK_PORT", ""); p != "" {
		if port, err := strconv.Atoi(p); err == nil {
			cfg.Port = port
		}
	}
	if b := getEnv("PROPDESK_BIND", ""); b != "" {
		cfg.BindAddress = b
	}
	if d := getEnv("PROPDESK_DATA_DIR", ""); d != "" {
		cfg.DataDir = d
	}
	if l := getEnv("PROPDESK_LOG_LEVEL", ""); l != "" {
		cfg.LogLevel = l
	}
	if k := getEnv("OPENAI_API_KEY", ""); k != "" {
		cfg.OpenAIKey = k
	}
	if u := getEnv("OPENAI_BASE_URL", ""); u != "" {
		cfg.OpenAIBaseURL = u
	}
	if m := getEnv("PROPDESK_LLM_MODEL", ""); m != "" {
		cfg.LLMModel = m
	}
	if n := getEnv("PROPDESK_NATS_URL", ""); n != "" {
		cfg.NATSURL = n
	}
	if w := getEnv("PROPDESK_REMINDER_WINDOW", ""); w != "" {
		if d, err := time.ParseDuration(w); err == nil && d > 0 {
			cfg.ReminderWindow = d
		}
	}
	if w := getEnv("PROPDESK_DEADLINE_WINDOW", ""); w != "" {
		if d, err := time.ParseDuration(w); err == nil && d > 0 {
			cfg.DeadlineWindow = d
		}
	}
	// 0 turns the nightly backup off.
	if k := getEnv("PROPDESK_BACKUP_KEEP", ""); k != "" {
		if n, err := strconv.Atoi(k); err == nil && n >= 0 {
			cfg.BackupKeep = n
		}
	}

	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func resolveDataDir() string {
	// Resolve data dir relative to the executable, not the CWD
	exe, err := os.Executable()
	if err != nil {
		return "./data"
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return "./data"
	}
	return filepath.Join(filepath.Dir(exe), "data")
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
