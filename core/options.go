package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

func NewStaticRawConfigLoader(values map[string]any) RawConfigLoader {
	return staticRawConfigLoader{Values: values}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges configuration layers with deterministic
// precedence: defaults < loaded config < runtime overrides.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	sso := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.Sso.Secret) != "" {
		sso["secret"] = cfg.Sso.Secret
	}
	if includeZero || strings.TrimSpace(cfg.Sso.Issuer) != "" {
		sso["issuer"] = cfg.Sso.Issuer
	}
	if len(sso) > 0 {
		layer["sso"] = sso
	}

	if includeZero || cfg.Dispatch.ClaimTTL > 0 {
		layer["dispatch"] = map[string]any{
			"claim_ttl": cfg.Dispatch.ClaimTTL,
		}
	}
	if includeZero || cfg.Sync.Interval > 0 {
		layer["sync"] = map[string]any{
			"interval": cfg.Sync.Interval,
		}
	}
	return layer
}

// ResolveConfig runs the full provider + resolver pipeline. A nil provider
// resolves defaults merged with runtime overrides only.
func ResolveConfig(
	ctx context.Context,
	provider ConfigProvider,
	resolver OptionsResolver,
	runtime Config,
) (Config, error) {
	defaults := DefaultConfig()
	loaded := defaults
	if provider != nil {
		cfg, err := provider.Load(ctx, defaults)
		if err != nil {
			return Config{}, err
		}
		loaded = cfg
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

// StaticSecretSource adapts a fixed string to the SecretSource contract.
type StaticSecretSource string

func (s StaticSecretSource) SharedSecret(context.Context) (string, error) {
	secret := strings.TrimSpace(string(s))
	if secret == "" {
		return "", fmt.Errorf("core: shared secret is not configured")
	}
	return secret, nil
}

// EnvSecretSource reads the shared secret through a lookup function,
// typically os.LookupEnv, so tests can substitute fixtures.
type EnvSecretSource struct {
	Key    string
	Lookup func(key string) (string, bool)
}

func (s EnvSecretSource) SharedSecret(context.Context) (string, error) {
	key := strings.TrimSpace(s.Key)
	if key == "" || s.Lookup == nil {
		return "", fmt.Errorf("core: secret source is not configured")
	}
	value, ok := s.Lookup(key)
	value = strings.TrimSpace(value)
	if !ok || value == "" {
		return "", fmt.Errorf("core: shared secret %s is not configured", key)
	}
	return value, nil
}

var (
	_ SecretSource = StaticSecretSource("")
	_ SecretSource = EnvSecretSource{}
)
