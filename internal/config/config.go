package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the workspace config file.
const FileName = "staffline.yml"

// Config models staffline.yml.
type Config struct {
	Database      DatabaseConfig      `yaml:"database"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Booking       BookingConfig       `yaml:"booking"`
	Notifications NotificationsConfig `yaml:"notifications"`
	RBAC          struct {
		Roles map[string]RBACRole `yaml:"roles"`
	} `yaml:"rbac"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type CatalogEntry struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	Rank int    `yaml:"rank,omitempty"`
}

type CatalogConfig struct {
	Profiles    []CatalogEntry `yaml:"profiles"`
	Seniorities []CatalogEntry `yaml:"seniorities"`
	Languages   []CatalogEntry `yaml:"languages"`
	Expertises  []CatalogEntry `yaml:"expertises"`
}

// BookingConfig holds offer expiry policy. Durations use time.ParseDuration syntax.
type BookingConfig struct {
	OfferTTL      string `yaml:"offer_ttl"`
	SweepInterval string `yaml:"sweep_interval"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

type TelegramConfig struct {
	Token  string   `yaml:"token"`
	ChatID int64    `yaml:"chat_id"`
	Events []string `yaml:"events"`
}

type NotificationsConfig struct {
	Log      bool            `yaml:"log"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Telegram TelegramConfig  `yaml:"telegram"`
}

type RBACRole struct {
	Description string   `yaml:"description"`
	Permissions []string `yaml:"permissions"`
}

// OfferTTLDuration returns the pending-offer lifetime; zero disables expiry.
func (b BookingConfig) OfferTTLDuration() time.Duration {
	d, _ := time.ParseDuration(strings.TrimSpace(b.OfferTTL))
	return d
}

// SweepIntervalDuration returns the expiry sweep period, one minute when unset.
func (b BookingConfig) SweepIntervalDuration() time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(b.SweepInterval))
	if err != nil || d <= 0 {
		return time.Minute
	}
	return d
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", "sqlite":
	case "postgres":
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	for kind, entries := range map[string][]CatalogEntry{
		"profiles":    c.Catalog.Profiles,
		"seniorities": c.Catalog.Seniorities,
		"languages":   c.Catalog.Languages,
		"expertises":  c.Catalog.Expertises,
	} {
		seen := map[string]bool{}
		for _, e := range entries {
			if strings.TrimSpace(e.ID) == "" {
				return fmt.Errorf("config.catalog.%s contains empty id", kind)
			}
			if seen[e.ID] {
				return fmt.Errorf("config.catalog.%s has duplicate id %s", kind, e.ID)
			}
			seen[e.ID] = true
		}
	}
	for name, raw := range map[string]string{"offer_ttl": c.Booking.OfferTTL, "sweep_interval": c.Booking.SweepInterval} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		d, err := time.ParseDuration(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("config.booking.%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("config.booking.%s must not be negative", name)
		}
	}
	for i, hook := range c.Notifications.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return fmt.Errorf("config.notifications.webhooks[%d].url is required", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.notifications.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	if c.Notifications.Telegram.Token != "" && c.Notifications.Telegram.ChatID == 0 {
		return fmt.Errorf("config.notifications.telegram.chat_id is required when a token is set")
	}
	if len(c.RBAC.Roles) > 0 {
		if _, ok := c.RBAC.Roles["admin"]; !ok {
			return fmt.Errorf("config.rbac.roles must include admin")
		}
		for roleID, role := range c.RBAC.Roles {
			if roleID == "" {
				return fmt.Errorf("config.rbac.roles contains empty role id")
			}
			for _, perm := range role.Permissions {
				if perm == "" {
					return fmt.Errorf("role %s has empty permission id", roleID)
				}
			}
		}
	}
	return nil
}

// RolePermissions returns the permissions granted to role.
func (c *Config) RolePermissions(role string) []string {
	if c == nil {
		return nil
	}
	r, ok := c.RBAC.Roles[role]
	if !ok {
		return nil
	}
	return r.Permissions
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with sl init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `database:
  driver: sqlite

catalog:
  profiles:
    - {id: backend-developer, name: "Backend developer"}
    - {id: frontend-developer, name: "Frontend developer"}
    - {id: data-engineer, name: "Data engineer"}
    - {id: product-designer, name: "Product designer"}
    - {id: project-manager, name: "Project manager"}
    - {id: ai-agent, name: "AI agent"}
  seniorities:
    - {id: junior, name: "Junior", rank: 1}
    - {id: mid, name: "Mid-level", rank: 2}
    - {id: senior, name: "Senior", rank: 3}
    - {id: lead, name: "Lead", rank: 4}
  languages:
    - {id: en, name: "English"}
    - {id: fr, name: "French"}
    - {id: de, name: "German"}
    - {id: es, name: "Spanish"}
  expertises:
    - {id: go, name: "Go"}
    - {id: postgres, name: "PostgreSQL"}
    - {id: react, name: "React"}
    - {id: kubernetes, name: "Kubernetes"}
    - {id: ml, name: "Machine learning"}

booking:
  offer_ttl: 72h
  sweep_interval: 5m

notifications:
  log: true
  webhooks: []

rbac:
  roles:
    admin:
      description: "Operators"
      permissions: ["*"]
    client:
      description: "Project owners"
      permissions:
        - project.manage
        - project.read
        - seat.create
        - seat.search
        - seat.offer
        - seat.cancel
        - seat.complete
        - seat.reopen
        - candidate.read
        - catalog.read
    candidate:
      description: "Booked resources"
      permissions:
        - project.read
        - seat.accept
        - seat.decline
        - candidate.availability
        - catalog.read
`
