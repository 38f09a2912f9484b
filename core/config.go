package core

import (
	"fmt"
	"strings"
	"time"
)

type SsoConfig struct {
	// Secret is the shared HS256 signing secret. Usually injected from the
	// environment; an empty value is detected when the validator is built,
	// not here, so config files without inline secrets remain valid.
	Secret string `koanf:"secret" mapstructure:"secret"`
	Issuer string `koanf:"issuer" mapstructure:"issuer"`
}

type DispatchConfig struct {
	ClaimTTL time.Duration `koanf:"claim_ttl" mapstructure:"claim_ttl"`
}

type SyncConfig struct {
	Interval time.Duration `koanf:"interval" mapstructure:"interval"`
}

type Config struct {
	ServiceName string         `koanf:"service_name" mapstructure:"service_name"`
	Sso         SsoConfig      `koanf:"sso" mapstructure:"sso"`
	Dispatch    DispatchConfig `koanf:"dispatch" mapstructure:"dispatch"`
	Sync        SyncConfig     `koanf:"sync" mapstructure:"sync"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "crm-bridge",
		Sso: SsoConfig{
			Issuer: "score-crm",
		},
		Dispatch: DispatchConfig{
			ClaimTTL: 10 * time.Minute,
		},
		Sync: SyncConfig{
			Interval: time.Hour,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Sso.Issuer) == "" {
		return fmt.Errorf("core: sso.issuer is required")
	}
	if c.Dispatch.ClaimTTL < 0 {
		return fmt.Errorf("core: dispatch.claim_ttl must not be negative")
	}
	if c.Sync.Interval < 0 {
		return fmt.Errorf("core: sync.interval must not be negative")
	}
	return nil
}
