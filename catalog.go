package settings

import (
	"errors"
	"fmt"
	"sort"
)

// Surface names a product surface that enforces a setting.
type Surface string

const (
	SurfaceUI         Surface = "ui"
	SurfaceAPI        Surface = "api"
	SurfaceAutomation Surface = "automation"
	SurfaceAI         Surface = "ai"
)

// Valid reports whether s names a known enforcement surface.
func (s Surface) Valid() bool {
	switch s {
	case SurfaceUI, SurfaceAPI, SurfaceAutomation, SurfaceAI:
		return true
	default:
		return false
	}
}

// Feature names a downstream product feature whose behaviour depends on a
// setting, together with the surfaces that enforce it.
type Feature struct {
	Name     string    `json:"name"`
	Surfaces []Surface `json:"surfaces,omitempty"`
}

// Definition describes one known (module, key) pair: its default, value
// type, where it may be overridden, whether overrides can be locked, an
// optional write-time constraint expression, and the features a change
// affects. Definitions ship with the catalog at process start and are never
// mutated by requests.
type Definition struct {
	Module        string    `json:"module"`
	Key           string    `json:"key"`
	Type          ValueType `json:"type"`
	Default       any       `json:"default"`
	Lockable      bool      `json:"lockable,omitempty"`
	AllowedLevels []Level   `json:"allowed_levels,omitempty"`
	Constraint    string    `json:"constraint,omitempty"`
	Features      []Feature `json:"features,omitempty"`
}

// ID returns the catalog key for the definition.
func (d Definition) ID() string {
	return d.Module + "/" + d.Key
}

// AllowsLevel reports whether the definition permits overrides at level.
func (d Definition) AllowsLevel(level Level) bool {
	for _, allowed := range d.AllowedLevels {
		if allowed == level {
			return true
		}
	}
	return false
}

var (
	// ErrDefinitionInvalid indicates catalog construction rejected a
	// definition.
	ErrDefinitionInvalid = errors.New("settings: invalid definition")
	// ErrDuplicateDefinition indicates two definitions share a (module, key).
	ErrDuplicateDefinition = errors.New("settings: duplicate definition")
)

// Catalog is the immutable registry of setting definitions. Construct it
// once at process start; lookups are safe for concurrent use.
type Catalog struct {
	defs    map[string]Definition
	modules map[string][]string
}

// NewCatalog validates the supplied definitions and builds the registry.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	catalog := &Catalog{
		defs:    make(map[string]Definition, len(defs)),
		modules: map[string][]string{},
	}
	for _, def := range defs {
		normalized, err := validateDefinition(def)
		if err != nil {
			return nil, err
		}
		id := normalized.ID()
		if _, exists := catalog.defs[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateDefinition, id)
		}
		catalog.defs[id] = normalized
		catalog.modules[normalized.Module] = append(catalog.modules[normalized.Module], normalized.Key)
	}
	for module := range catalog.modules {
		sort.Strings(catalog.modules[module])
	}
	return catalog, nil
}

func validateDefinition(def Definition) (Definition, error) {
	if def.Module == "" || def.Key == "" {
		return Definition{}, fmt.Errorf("%w: module and key are required", ErrDefinitionInvalid)
	}
	if !def.Type.Valid() {
		return Definition{}, fmt.Errorf("%w: %s has unsupported type %q", ErrDefinitionInvalid, def.ID(), def.Type)
	}
	coerced, err := def.Type.Coerce(def.Default)
	if err != nil {
		return Definition{}, fmt.Errorf("%w: %s default: %v", ErrDefinitionInvalid, def.ID(), err)
	}
	def.Default = coerced

	if len(def.AllowedLevels) == 0 {
		return Definition{}, fmt.Errorf("%w: %s must allow at least one level", ErrDefinitionInvalid, def.ID())
	}
	seen := make(map[Level]struct{}, len(def.AllowedLevels))
	levels := make([]Level, 0, len(def.AllowedLevels))
	for _, level := range def.AllowedLevels {
		if !level.Valid() || level == LevelGlobal {
			return Definition{}, fmt.Errorf("%w: %s allows invalid level %q", ErrDefinitionInvalid, def.ID(), level)
		}
		if _, dup := seen[level]; dup {
			continue
		}
		seen[level] = struct{}{}
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i] < levels[j] })
	def.AllowedLevels = levels

	for _, feature := range def.Features {
		if feature.Name == "" {
			return Definition{}, fmt.Errorf("%w: %s has a feature without a name", ErrDefinitionInvalid, def.ID())
		}
		for _, surface := range feature.Surfaces {
			if !surface.Valid() {
				return Definition{}, fmt.Errorf("%w: %s feature %q names unknown surface %q",
					ErrDefinitionInvalid, def.ID(), feature.Name, surface)
			}
		}
	}
	return def, nil
}

// Definition looks up a single definition. Unknown pairs fail with
// UnknownSettingError.
func (c *Catalog) Definition(module, key string) (Definition, error) {
	def, ok := c.defs[module+"/"+key]
	if !ok {
		return Definition{}, &UnknownSettingError{Module: module, Key: key}
	}
	return def, nil
}

// ModuleKeys returns the sorted setting keys registered for module.
func (c *Catalog) ModuleKeys(module string) []string {
	keys := c.modules[module]
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

// ModuleDefinitions returns the definitions registered for module, ordered
// by key.
func (c *Catalog) ModuleDefinitions(module string) []Definition {
	keys := c.modules[module]
	out := make([]Definition, 0, len(keys))
	for _, key := range keys {
		out = append(out, c.defs[module+"/"+key])
	}
	return out
}

// Modules returns the sorted module names present in the catalog.
func (c *Catalog) Modules() []string {
	out := make([]string, 0, len(c.modules))
	for module := range c.modules {
		out = append(out, module)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of registered definitions.
func (c *Catalog) Len() int {
	return len(c.defs)
}
