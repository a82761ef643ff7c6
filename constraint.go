package settings

import "time"

// ConstraintContext carries the inputs a constraint expression sees when
// validating one staged write: the staged value, the current effective
// value, the catalog default, and the scope the write targets.
type ConstraintContext struct {
	Module  string
	Key     string
	Value   any
	Current any
	Default any
	Scope   Ref
	Actor   string
	Now     *time.Time
	Args    map[string]any
}

func (ctx ConstraintContext) withDefaults() ConstraintContext {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx ConstraintContext) timestamp() time.Time {
	ctx = ctx.withDefaults()
	return *ctx.Now
}

func (ctx ConstraintContext) settingLabel() string {
	if ctx.Module == "" && ctx.Key == "" {
		return "unknown"
	}
	return ctx.Module + "/" + ctx.Key
}

func (ctx ConstraintContext) scopeBinding() map[string]any {
	if ctx.Scope.isZero() {
		return nil
	}
	return map[string]any{
		"level":    ctx.Scope.Level.String(),
		"instance": ctx.Scope.InstanceID,
	}
}

// bindings flattens the context into the variable environment shared by
// every evaluator engine.
func (ctx ConstraintContext) bindings() map[string]any {
	env := map[string]any{
		"value":   ctx.Value,
		"current": ctx.Current,
		"default": ctx.Default,
		"module":  ctx.Module,
		"key":     ctx.Key,
		"actor":   ctx.Actor,
		"now":     ctx.timestamp(),
		"args":    ctx.Args,
	}
	if scope := ctx.scopeBinding(); scope != nil {
		env["scope"] = scope
	}
	return env
}

// ConstraintEvaluator executes constraint expressions against a context.
type ConstraintEvaluator interface {
	Evaluate(ctx ConstraintContext, expr string) (any, error)
	Compile(expr string) (CompiledConstraint, error)
}

// CompiledConstraint represents a reusable constraint program.
type CompiledConstraint interface {
	Evaluate(ctx ConstraintContext) (any, error)
}
