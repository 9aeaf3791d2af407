package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/nhle/pollwatch/internal/model"
)

// Trigger type identifiers.
const (
	TypeDrive   = "drive"
	TypeMailbox = "mailbox"
)

// Defaults applied to trigger entries with unset fields.
const (
	DefaultPollIntervalSec = 120
	DefaultTTLHours        = 168 // ~7 days
	DefaultMaxItems        = 100
	DefaultMailboxFolder   = "INBOX"
)

// TriggerConfig holds the configuration for a single polling trigger.
type TriggerConfig struct {
	// Name is the unique label for this trigger instance.
	Name string `mapstructure:"name" yaml:"name"`

	// Type identifies the provider kind ("drive" or "mailbox").
	Type string `mapstructure:"type" yaml:"type"`

	// Mode selects which change classes fire (default CREATE).
	Mode model.Mode `mapstructure:"mode" yaml:"mode"`

	// PollIntervalSec is how often (in seconds) the trigger is evaluated.
	PollIntervalSec int `mapstructure:"poll_interval_sec" yaml:"poll_interval_sec"`

	// StateKey overrides the derived per-trigger persistence key.
	StateKey string `mapstructure:"state_key" yaml:"state_key"`

	// TTLHours bounds how long unseen resources stay in state.
	TTLHours int `mapstructure:"ttl_hours" yaml:"ttl_hours"`

	// CredentialKey names the keyring entry holding this trigger's
	// secret (API token or mailbox password).
	CredentialKey string `mapstructure:"credential_key" yaml:"credential_key"`

	// BaseURL is the root URL of the drive API (drive only).
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	// Path is the drive folder path to watch. Mutually exclusive with
	// FolderID; FolderID takes precedence when both are set.
	Path string `mapstructure:"path" yaml:"path"`

	// FolderID is the drive folder identifier to watch.
	FolderID string `mapstructure:"folder_id" yaml:"folder_id"`

	// Folder is the mailbox folder to watch (default INBOX).
	Folder string `mapstructure:"folder" yaml:"folder"`

	// MaxItems bounds how many messages one cycle may process
	// (mailbox only).
	MaxItems int `mapstructure:"max_items" yaml:"max_items"`

	// Host, Port, Username, and TLS describe the IMAP endpoint
	// (mailbox only).
	Host     string `mapstructure:"host" yaml:"host"`
	Port     string `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	TLS      bool   `mapstructure:"tls" yaml:"tls"`
}

// Config is the top-level application configuration.
type Config struct {
	// DBPath is where the SQLite state database lives.
	DBPath string `mapstructure:"db_path" yaml:"db_path"`

	Triggers []TriggerConfig `mapstructure:"triggers" yaml:"triggers"`
}

// Validate checks that the trigger has every required field and no
// contradictory ones. A validation failure is fatal for a tick and must
// occur before any state is touched.
func (c *TriggerConfig) Validate() error {
	if c.Name == "" {
		return errors.New("trigger name is required")
	}
	if !c.Mode.Valid() {
		return fmt.Errorf("trigger %q: unknown mode %q", c.Name, c.Mode)
	}

	switch c.Type {
	case TypeDrive:
		if c.BaseURL == "" {
			return fmt.Errorf("trigger %q: base_url is required", c.Name)
		}
		if c.Path == "" && c.FolderID == "" {
			return fmt.Errorf("trigger %q: one of path or folder_id is required", c.Name)
		}
	case TypeMailbox:
		if c.Host == "" {
			return fmt.Errorf("trigger %q: host is required", c.Name)
		}
		if c.Username == "" {
			return fmt.Errorf("trigger %q: username is required", c.Name)
		}
		if c.Folder == "" {
			return fmt.Errorf("trigger %q: folder is required", c.Name)
		}
	default:
		return fmt.Errorf("trigger %q: unknown type %q", c.Name, c.Type)
	}

	return nil
}

// ListTarget resolves the enumeration target passed to the provider.
// For drive triggers folder_id takes precedence over path when both are
// configured; for mailbox triggers it is the folder.
func (c *TriggerConfig) ListTarget() string {
	if c.Type == TypeMailbox {
		return c.Folder
	}
	if c.FolderID != "" {
		return c.FolderID
	}
	return c.Path
}

// Interval returns the poll interval as a duration.
func (c *TriggerConfig) Interval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

// TTL returns the state entry TTL as a duration.
func (c *TriggerConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/pollwatch/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "pollwatch", "config.yaml")
}

// DefaultDBPath returns the default path for the state database.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "pollwatch.db")
	}
	return filepath.Join(home, ".local", "share", "pollwatch", "state.db")
}

// Load reads configuration from the given YAML file path using Viper.
// Missing per-trigger fields resolve to defaults; a missing file is an
// error since the trigger set cannot be guessed.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("db_path", DefaultDBPath())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	for i := range cfg.Triggers {
		applyDefaults(&cfg.Triggers[i])
	}

	return cfg, nil
}

// applyDefaults fills unset trigger fields with their documented defaults.
func applyDefaults(t *TriggerConfig) {
	if t.Mode == "" {
		t.Mode = model.ModeCreate
	}
	if t.PollIntervalSec == 0 {
		t.PollIntervalSec = DefaultPollIntervalSec
	}
	if t.TTLHours == 0 {
		t.TTLHours = DefaultTTLHours
	}
	if t.Type == TypeMailbox {
		if t.Folder == "" {
			t.Folder = DefaultMailboxFolder
		}
		if t.MaxItems == 0 {
			t.MaxItems = DefaultMaxItems
		}
		if t.Port == "" {
			if t.TLS {
				t.Port = "993"
			} else {
				t.Port = "143"
			}
		}
	}
}
