package main

import (
	"fmt"
	"time"

	"github.com/kbukum/realmauth/config"
	"github.com/kbukum/realmauth/observability"
	"github.com/kbukum/realmauth/realm"
	"github.com/kbukum/realmauth/server"
	"github.com/kbukum/realmauth/session"
)

const serviceName = "realmd"

// Permissions guarding the demo host's own routes.
const (
	permUsersRead        = "users:read"
	permCacheRead        = "cache:read"
	permCacheConfigure   = "cache:configure"
	permRefreshRead      = "refresh:read"
	permRefreshConfigure = "refresh:configure"
)

// Config is the realmd configuration, loaded from config.yml and REALMD_* env vars.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Realm     realm.Config         `yaml:"realm" mapstructure:"realm"`
	Server    server.Config        `yaml:"server" mapstructure:"server"`
	Session   SessionConfig        `yaml:"session" mapstructure:"session"`
	Telemetry observability.Config `yaml:"telemetry" mapstructure:"telemetry"`

	// Permissions maps realm role names to permission patterns such as "cache:*".
	Permissions map[string][]string `yaml:"permissions" mapstructure:"permissions"`
}

// SessionConfig configures the in-memory session store and its cookie.
type SessionConfig struct {
	Cookie      session.CookieConfig `yaml:"cookie" mapstructure:"cookie"`
	IdleTimeout time.Duration        `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// ApplyDefaults fills unset fields in every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.Realm.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Session.Cookie.ApplyDefaults()
	if c.Session.IdleTimeout <= 0 {
		c.Session.IdleTimeout = 30 * time.Minute
	}
	if c.Telemetry.Environment == "" {
		c.Telemetry.Environment = c.Environment
	}
	c.Telemetry.ApplyDefaults()
	if c.Permissions == nil {
		c.Permissions = map[string][]string{
			"admin": {"*:*"},
		}
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Realm.Validate(); err != nil {
		return fmt.Errorf("realm: %w", err)
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	return nil
}
