package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nikitaxru/rowtemplar"
)

type Config struct {
	Layout struct {
		Mode          string            `yaml:"mode"` // header | simple
		Sheet         string            `yaml:"sheet"`
		Abbreviations bool              `yaml:"abbreviations"`
		Key           string            `yaml:"key"`     // token | formal | abbreviation
		Columns       map[string]string `yaml:"columns"` // столбец → %TOKEN% (simple)
	} `yaml:"layout"`
	Substitution struct {
		TriggerFields []string `yaml:"trigger_fields"`
		ZeroAsMissing bool     `yaml:"zero_as_missing"`
	} `yaml:"substitution"`
	Validation struct {
		Residual   string `yaml:"residual"`     // strict | lenient
		OnRowError string `yaml:"on_row_error"` // abort | skip
	} `yaml:"validation"`
	Workers int `yaml:"workers"`
	Output  struct {
		Archive string `yaml:"archive"`
		Indent  string `yaml:"indent"`
	} `yaml:"output"`
	Computed map[string]string `yaml:"computed"`
	Server   struct {
		Addr          string `yaml:"addr"`
		MaxUploadMB   int64  `yaml:"max_upload_mb"`
		EnableMetrics bool   `yaml:"enable_metrics"`
	} `yaml:"server"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Default — настройки без файла конфигурации
func Default() *Config {
	var cfg Config
	cfg.Layout.Mode = "header"
	cfg.Layout.Key = "token"
	cfg.Substitution.TriggerFields = rowtemplar.DefaultPolicy().TriggerFields
	cfg.Validation.Residual = "strict"
	cfg.Validation.OnRowError = "abort"
	cfg.Workers = 1
	cfg.Output.Archive = rowtemplar.DefaultArchiveName
	cfg.Output.Indent = "  "
	cfg.Server.Addr = ":8080"
	cfg.Server.MaxUploadMB = 32
	cfg.Server.EnableMetrics = true
	cfg.Log.Level = "info"
	return &cfg
}

// LoadConfig читает .env (если есть), YAML-файл поверх значений по умолчанию
// и переменные окружения ROWTEMPLAR_*. Отсутствующий файл — не ошибка.
func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	cfg := Default()

	// 2. Load YAML config
	if path != "" {
		file, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(file, cfg); err != nil {
				return nil, fmt.Errorf("%s: %w", path, err)
			}
		}
	}

	// 3. Override with Environment Variables if present
	if v := os.Getenv("ROWTEMPLAR_RESIDUAL"); v != "" {
		cfg.Validation.Residual = v
	}
	if v := os.Getenv("ROWTEMPLAR_ON_ROW_ERROR"); v != "" {
		cfg.Validation.OnRowError = v
	}
	if v := os.Getenv("ROWTEMPLAR_KEY"); v != "" {
		cfg.Layout.Key = v
	}
	if v := os.Getenv("ROWTEMPLAR_TRIGGER_FIELDS"); v != "" {
		cfg.Substitution.TriggerFields = splitList(v)
	}
	if v := os.Getenv("ROWTEMPLAR_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("ROWTEMPLAR_WORKERS: %w", err)
		}
		cfg.Workers = n
	}
	if v := os.Getenv("ROWTEMPLAR_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ROWTEMPLAR_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Options переводит конфигурацию в настройки генератора.
func (c *Config) Options() (rowtemplar.Options, error) {
	opts := rowtemplar.DefaultOptions()
	opts.Policy = rowtemplar.Policy{
		TriggerFields: c.Substitution.TriggerFields,
		ZeroAsMissing: c.Substitution.ZeroAsMissing,
	}
	var err error
	if opts.Residual, err = rowtemplar.ParseResidualPolicy(c.Validation.Residual); err != nil {
		return opts, err
	}
	if opts.OnRowError, err = rowtemplar.ParseRowErrorPolicy(c.Validation.OnRowError); err != nil {
		return opts, err
	}
	if c.Workers > 0 {
		opts.Workers = c.Workers
	}
	if c.Output.Indent != "" {
		opts.Indent = c.Output.Indent
	}
	return opts, nil
}

// Layout переводит конфигурацию в раскладку листа.
func (c *Config) Layout() (rowtemplar.Layout, error) {
	var l rowtemplar.Layout
	var err error
	if l.Mode, err = rowtemplar.ParseLayoutMode(c.Layout.Mode); err != nil {
		return l, err
	}
	if l.Key, err = rowtemplar.ParseKeySource(c.Layout.Key); err != nil {
		return l, err
	}
	l.Sheet = c.Layout.Sheet
	l.Abbreviations = c.Layout.Abbreviations
	l.Columns = c.Layout.Columns
	return l, nil
}

// Logger строит zap-логгер по уровню из конфигурации.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}
