package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
	"iq-card-service/internal/avatar"
	"iq-card-service/internal/domain"
)

type Config struct {
	Server struct {
		Port           string   `yaml:"port"`
		AllowedOrigins []string `yaml:"allowedOrigins"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	SQLite struct {
		Path string `yaml:"path"`
	} `yaml:"sqlite"`
	Quiz struct {
		TTL       string `yaml:"ttl"`
		Questions int    `yaml:"questions"`
		Tick      string `yaml:"tick"`
		IdleTTL   string `yaml:"idleTtl"`
	} `yaml:"quiz"`
	Avatar struct {
		Timeout   string   `yaml:"timeout"`
		CacheTTL  string   `yaml:"cacheTtl"`
		Providers []string `yaml:"providers"`
		Fallback  string   `yaml:"fallback"`
	} `yaml:"avatar"`
	Export struct {
		Scale          int    `yaml:"scale"`
		Settle         string `yaml:"settle"`
		SettleFallback string `yaml:"settleFallback"`
	} `yaml:"export"`
	Brands []Brand `yaml:"brands"`
}

// Brand is one deployment: content, branding, avatar defaults and theme.
type Brand struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Title       string             `yaml:"title"`
	Tag         string             `yaml:"tag"`
	Tagline     string             `yaml:"tagline"`
	Placeholder string             `yaml:"placeholder"`
	Initials    string             `yaml:"initials"`
	Badges      []domain.BadgeTier `yaml:"badges"`
	Theme       domain.Theme       `yaml:"theme"`
	Articles    []domain.Article   `yaml:"articles"`
	BankFile    string             `yaml:"bankFile"`
	Bank        []domain.QuizItem  `yaml:"bank"`
}

// Load reads YAML config from path. Brand banks referenced by bankFile are
// resolved relative to the config file.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()

	dir := filepath.Dir(path)
	for i := range cfg.Brands {
		b := &cfg.Brands[i]
		if b.BankFile == "" {
			continue
		}
		bankPath := b.BankFile
		if !filepath.IsAbs(bankPath) {
			bankPath = filepath.Join(dir, bankPath)
		}
		raw, err := os.ReadFile(bankPath)
		if err != nil {
			return cfg, fmt.Errorf("brand %s bank: %w", b.ID, err)
		}
		var items []domain.QuizItem
		if err := yaml.Unmarshal(raw, &items); err != nil {
			return cfg, fmt.Errorf("brand %s bank: %w", b.ID, err)
		}
		b.Bank = append(b.Bank, items...)
	}
	return cfg, cfg.Validate()
}

// applyEnv lets deployment secrets come from the environment (or .env)
// instead of the YAML file.
func (c *Config) applyEnv() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.Postgres.URL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.SQLite.Path = v
	}
}

// Validate checks brand ids and bank shapes.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c.Brands))
	for _, b := range c.Brands {
		if b.ID == "" {
			return fmt.Errorf("brand without id")
		}
		if seen[b.ID] {
			return fmt.Errorf("duplicate brand %s", b.ID)
		}
		seen[b.ID] = true
		if err := b.BankData().Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Domain converts the brand entry to the domain model.
func (b Brand) Domain() domain.Brand {
	name := b.Name
	if name == "" {
		name = b.ID
	}
	return domain.Brand{
		ID:          b.ID,
		Name:        name,
		Title:       b.Title,
		Tag:         b.Tag,
		Tagline:     b.Tagline,
		Placeholder: b.Placeholder,
		Initials:    b.Initials,
		Badges:      b.Badges,
		Theme:       b.Theme,
		Articles:    b.Articles,
	}
}

// BankData returns the brand's static question bank.
func (b Brand) BankData() domain.Bank {
	return domain.Bank{Brand: b.ID, Items: b.Bank}
}

// AvatarConfig builds the resolver configuration for a brand.
func (c Config) AvatarConfig(b Brand) avatar.Config {
	return avatar.Config{
		Providers:   c.Avatar.Providers,
		Fallback:    c.Avatar.Fallback,
		Placeholder: b.Placeholder,
		Initials:    b.Initials,
		Background:  b.Theme.Panel,
		Foreground:  b.Theme.Muted,
	}
}

// Banks indexes every configured bank by brand id.
func (c Config) Banks() map[string]domain.Bank {
	out := make(map[string]domain.Bank, len(c.Brands))
	for _, b := range c.Brands {
		out[b.ID] = b.BankData()
	}
	return out
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
