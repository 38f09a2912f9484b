package bridge

import (
	"context"
	"sync"
	"time"

	job "github.com/goliatone/go-job"

	"github.com/goliatone/go-crm-bridge/adapters/gologger"
	"github.com/goliatone/go-crm-bridge/classify"
	"github.com/goliatone/go-crm-bridge/core"
	"github.com/goliatone/go-crm-bridge/dispatch"
	"github.com/goliatone/go-crm-bridge/providers/score"
	"github.com/goliatone/go-crm-bridge/registry"
	"github.com/goliatone/go-crm-bridge/sso"
)

type Config = core.Config

type Option func(*serviceOptions)

type serviceOptions struct {
	logger         core.Logger
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	listenerStore  core.ListenerStore
	transport      core.DeliveryTransport
	claims         core.IdempotencyClaimStore
	secrets        core.SecretSource
	rules          []classify.Rule
	configProvider core.ConfigProvider
	resolver       core.OptionsResolver
}

func WithLogger(logger core.Logger) Option {
	return func(o *serviceOptions) { o.logger = logger }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *serviceOptions) { o.loggerProvider = provider }
}

func WithMetricsRecorder(metrics core.MetricsRecorder) Option {
	return func(o *serviceOptions) { o.metrics = metrics }
}

// WithListenerStore makes registrations durable; the registry writes through
// to the store and restores from it on Restore.
func WithListenerStore(store core.ListenerStore) Option {
	return func(o *serviceOptions) { o.listenerStore = store }
}

func WithDeliveryTransport(transport core.DeliveryTransport) Option {
	return func(o *serviceOptions) { o.transport = transport }
}

// WithClaimStore enables webhook-level dedupe by delivery id.
func WithClaimStore(claims core.IdempotencyClaimStore) Option {
	return func(o *serviceOptions) { o.claims = claims }
}

// WithSecretSource overrides the config-supplied SSO signing secret.
func WithSecretSource(secrets core.SecretSource) Option {
	return func(o *serviceOptions) { o.secrets = secrets }
}

// WithRules replaces the default Score rule taxonomy.
func WithRules(rules ...classify.Rule) Option {
	return func(o *serviceOptions) { o.rules = rules }
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(o *serviceOptions) { o.configProvider = provider }
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(o *serviceOptions) { o.resolver = resolver }
}

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Service is the assembled bridge: classification, listener registry,
// dispatch, and SSO validation behind one mutating surface. It satisfies
// command.BridgeService.
type Service struct {
	config    Config
	logger    core.Logger
	jobLogger job.Logger
	registry  *registry.Registry
	validator *sso.Validator

	mu     sync.RWMutex
	engine *dispatch.Engine
}

// NewService wires a Service from an already-resolved config. The delivery
// transport is the only dependency without a usable default; a Service built
// without one classifies and matches but fails every delivery.
func NewService(cfg Config, options ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, core.ConfigurationError("bridge: invalid config", map[string]any{
			"error": err.Error(),
		})
	}
	opts := serviceOptions{}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&opts)
	}

	_, logger := gologger.Resolve("crm-bridge", opts.loggerProvider, opts.logger)

	secrets := opts.secrets
	if secrets == nil {
		secrets = core.StaticSecretSource(cfg.Sso.Secret)
	}
	validator, err := sso.NewValidator(secrets, cfg.Sso.Issuer)
	if err != nil {
		return nil, err
	}
	validator.Logger = logger
	if opts.metrics != nil {
		validator.Metrics = opts.metrics
	}

	rules := opts.rules
	if len(rules) == 0 {
		rules = score.Rules()
	}
	ruleSet, err := classify.NewRuleSet(rules...)
	if err != nil {
		return nil, err
	}

	reg := registry.New(registry.WithListenerStore(opts.listenerStore))

	svc := &Service{
		config:    cfg,
		logger:    logger,
		jobLogger: gologger.ToJobLogger(logger),
		registry:  reg,
		validator: validator,
	}
	svc.engine = svc.buildEngine(classify.NewClassifier(ruleSet), opts)
	return svc, nil
}

// Setup resolves configuration through the provider/resolver pipeline and
// then builds the Service. Runtime overrides in cfg win over loaded config.
func Setup(ctx context.Context, cfg Config, options ...Option) (*Service, error) {
	opts := serviceOptions{}
	for _, option := range options {
		if option == nil {
			continue
		}
		option(&opts)
	}
	resolved, err := core.ResolveConfig(ctx, opts.configProvider, opts.resolver, cfg)
	if err != nil {
		return nil, err
	}
	return NewService(resolved, options...)
}

func (s *Service) buildEngine(classifier *classify.Classifier, opts serviceOptions) *dispatch.Engine {
	engine := dispatch.NewEngine(classifier, s.registry, opts.transport)
	engine.Claims = opts.claims
	engine.Logger = s.logger
	if opts.metrics != nil {
		engine.Metrics = opts.metrics
	}
	if s.config.Dispatch.ClaimTTL > 0 {
		engine.ClaimTTL = s.config.Dispatch.ClaimTTL
	}
	return engine
}

// Restore seeds the registry from the durable store. Call once at startup,
// before serving lookups.
func (s *Service) Restore(ctx context.Context) error {
	if s == nil {
		return serviceNilError()
	}
	return s.registry.Restore(ctx)
}

func (s *Service) RegisterListener(ctx context.Context, registration core.ListenerRegistration) error {
	if s == nil {
		return serviceNilError()
	}
	return s.registry.Register(ctx, registration)
}

func (s *Service) UnregisterListener(ctx context.Context, listenerID string) error {
	if s == nil {
		return serviceNilError()
	}
	return s.registry.Unregister(ctx, listenerID)
}

func (s *Service) DispatchEnvelope(ctx context.Context, envelope core.ChangeEnvelope) ([]string, error) {
	if s == nil {
		return nil, serviceNilError()
	}
	return s.currentEngine().Handle(ctx, envelope)
}

// HandleWebhook is the inbound surface for raw CRM webhook bodies.
func (s *Service) HandleWebhook(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if s == nil {
		return core.InboundResult{}, serviceNilError()
	}
	return s.currentEngine().HandleWebhook(ctx, req)
}

func (s *Service) ValidateSsoToken(ctx context.Context, token string) (core.ExternalIdentity, error) {
	if s == nil {
		return core.ExternalIdentity{}, serviceNilError()
	}
	return s.validator.Validate(ctx, token)
}

// InstallRuleSet swaps the live classification rules. Intended as the
// installer callback for sync.Refresher; in-flight dispatches finish against
// the rule set they started with.
func (s *Service) InstallRuleSet(ruleSet *classify.RuleSet) {
	if s == nil || ruleSet == nil {
		return
	}
	classifier := classify.NewClassifier(ruleSet)
	s.mu.Lock()
	next := *s.engine
	next.Classifier = classifier
	s.engine = &next
	s.mu.Unlock()
}

func (s *Service) Registry() *registry.Registry {
	if s == nil {
		return nil
	}
	return s.registry
}

func (s *Service) Validator() *sso.Validator {
	if s == nil {
		return nil
	}
	return s.validator
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

// JobLogger exposes the service logger under the go-job contract for hosts
// wiring queue workers.
func (s *Service) JobLogger() job.Logger {
	if s == nil {
		return nil
	}
	return s.jobLogger
}

// SyncInterval is the resolved metadata-sync cadence.
func (s *Service) SyncInterval() time.Duration {
	if s == nil {
		return 0
	}
	return s.config.Sync.Interval
}

func (s *Service) currentEngine() *dispatch.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

func serviceNilError() error {
	return core.ConfigurationError("bridge: service is not configured", nil)
}
