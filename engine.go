package settings

import (
	"context"
	"fmt"
	"time"

	"github.com/workforcekit/go-settings/pkg/audit"
)

// EffectiveSetting is the resolution result handed to consumers: the live
// value, where it came from, whether a lock pins it, and the catalog
// definition. It is never persisted; callers re-resolve after writes.
type EffectiveSetting struct {
	Value      any
	Source     Ref
	Locked     bool
	Definition Definition
}

// ResolutionCache is an optional performance layer in front of the store.
// Caches must tolerate briefly-stale reads; the write gate invalidates the
// touched scope subtrees on every successful save.
type ResolutionCache interface {
	Get(ctx context.Context, module, key string, scope Context) (EffectiveSetting, bool)
	Set(ctx context.Context, module, key string, scope Context, setting EffectiveSetting)
	Invalidate(ctx context.Context, module string, refs []Ref) error
}

// Engine resolves effective settings and gates writes. It is stateless per
// call and safe for concurrent use; the Store is the single source of
// truth.
type Engine struct {
	catalog *Catalog
	store   Store
	cfg     engineConfig
}

type engineConfig struct {
	evaluator    ConstraintEvaluator
	programCache ProgramCache
	functions    *FunctionRegistry
	logger       EvaluatorLogger
	emitter      *audit.Emitter
	cache        ResolutionCache
	clock        func() time.Time
}

// EngineOption configures an Engine instance.
type EngineOption func(*engineConfig)

// WithConstraintEvaluator overrides the default expr-backed evaluator used
// for write-time constraint expressions.
func WithConstraintEvaluator(evaluator ConstraintEvaluator) EngineOption {
	return func(cfg *engineConfig) {
		cfg.evaluator = evaluator
	}
}

// WithProgramCache registers a cache for compiled constraint programs.
func WithProgramCache(cache ProgramCache) EngineOption {
	return func(cfg *engineConfig) {
		cfg.programCache = cache
	}
}

// WithFunctionRegistry exposes custom functions to constraint expressions.
func WithFunctionRegistry(registry *FunctionRegistry) EngineOption {
	return func(cfg *engineConfig) {
		if registry == nil {
			return
		}
		cfg.functions = registry.Clone()
	}
}

// WithEvaluatorLogger attaches a logger for constraint evaluations.
func WithEvaluatorLogger(logger EvaluatorLogger) EngineOption {
	return func(cfg *engineConfig) {
		if logger == nil {
			cfg.logger = noopEvaluatorLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithAuditEmitter attaches an emitter that fans out audit events on every
// committed change.
func WithAuditEmitter(emitter *audit.Emitter) EngineOption {
	return func(cfg *engineConfig) {
		cfg.emitter = emitter
	}
}

// WithResolutionCache attaches a cache consulted before the store.
func WithResolutionCache(cache ResolutionCache) EngineOption {
	return func(cfg *engineConfig) {
		cfg.cache = cache
	}
}

// WithClock overrides the engine's time source. Intended for tests.
func WithClock(clock func() time.Time) EngineOption {
	return func(cfg *engineConfig) {
		if clock != nil {
			cfg.clock = clock
		}
	}
}

// NewEngine constructs an engine over a catalog and an override store.
func NewEngine(catalog *Catalog, store Store, opts ...EngineOption) (*Engine, error) {
	if catalog == nil {
		return nil, fmt.Errorf("settings: catalog is required")
	}
	if store == nil {
		return nil, fmt.Errorf("settings: store is required")
	}
	cfg := engineConfig{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.evaluator == nil {
		var exprOpts []ExprEvaluatorOption
		if cfg.programCache != nil {
			exprOpts = append(exprOpts, ExprWithProgramCache(cfg.programCache))
		}
		if cfg.functions != nil {
			exprOpts = append(exprOpts, ExprWithFunctionRegistry(cfg.functions))
		}
		cfg.evaluator = NewExprEvaluator(exprOpts...)
	}
	return &Engine{catalog: catalog, store: store, cfg: cfg}, nil
}

// Catalog exposes the engine's catalog for consumers that render screens.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// AffectedFeatures reports the features a (module, key) change touches.
func (e *Engine) AffectedFeatures(module, key string) ([]Feature, error) {
	return e.catalog.AffectedFeatures(module, key)
}

func (e *Engine) evaluatorLogger() EvaluatorLogger {
	if e.cfg.logger != nil {
		return e.cfg.logger
	}
	return noopEvaluatorLogger{}
}

func (e *Engine) resolveEvaluator() ConstraintEvaluator {
	return e.cfg.evaluator
}
