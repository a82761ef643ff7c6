// Package settings resolves effective configuration values across an
// organizational hierarchy and gates every write to them.
//
// A Catalog declares the known settings: per (module, key) a value type, a
// default, the levels an override may live at, whether an override can be
// locked, and the downstream features a change affects. Overrides live in a
// Store keyed by (module, key, level, instance). Resolution walks the
// requesting scope's path from global down to the most specific level and
// picks the last locked override when one exists, otherwise the most
// specific override, otherwise the catalog default.
//
// Writes go through Engine.SaveSettings, which validates a whole batch
// against the catalog, the actor's capabilities and any ancestor locks, and
// commits it atomically. Lock observations are re-asserted inside the
// store's commit boundary so concurrent lock changes surface as conflicts
// instead of slipping an illegal override through.
//
// Constraint expressions on definitions are evaluated at write time with a
// pluggable expression engine (expr by default, CEL and JavaScript
// available). Committed changes feed both the store's authoritative audit
// trail and optional audit hooks (see pkg/audit).
package settings
