package settings

import "fmt"

// Level identifies one rung of the organizational hierarchy. Levels are
// totally ordered from least specific (global) to most specific (user);
// higher values override lower values during resolution.
type Level int

const (
	// LevelUnknown guards against misconfiguration so call sites can detect
	// missing metadata.
	LevelUnknown Level = iota
	// LevelGlobal represents the implicit root; it has no instance identifier.
	LevelGlobal
	LevelCompany
	LevelLocation
	LevelDepartment
	LevelTeam
	// LevelUser is the most specific level; it has no children.
	LevelUser
)

func (l Level) String() string {
	switch l {
	case LevelGlobal:
		return "global"
	case LevelCompany:
		return "company"
	case LevelLocation:
		return "location"
	case LevelDepartment:
		return "department"
	case LevelTeam:
		return "team"
	case LevelUser:
		return "user"
	default:
		return "unknown"
	}
}

// ParseLevel converts a string representation into the corresponding Level.
// Returns LevelUnknown for unrecognised values.
func ParseLevel(value string) Level {
	switch value {
	case "global", "GLOBAL":
		return LevelGlobal
	case "company", "COMPANY":
		return LevelCompany
	case "location", "LOCATION":
		return LevelLocation
	case "department", "DEPARTMENT":
		return LevelDepartment
	case "team", "TEAM":
		return LevelTeam
	case "user", "USER":
		return LevelUser
	default:
		return LevelUnknown
	}
}

// Levels returns the full hierarchy ordered from least to most specific.
func Levels() []Level {
	return []Level{LevelGlobal, LevelCompany, LevelLocation, LevelDepartment, LevelTeam, LevelUser}
}

// MoreSpecificThan reports whether l sits below other in the hierarchy.
func (l Level) MoreSpecificThan(other Level) bool {
	return l > other
}

// Valid reports whether l names a real hierarchy level.
func (l Level) Valid() bool {
	return l >= LevelGlobal && l <= LevelUser
}

// Ref names a single scope instance: one level plus the identifier of the
// concrete organizational unit at that level. The global level carries no
// instance identifier.
type Ref struct {
	Level      Level
	InstanceID string
}

// GlobalRef is the implicit root every walk starts from.
func GlobalRef() Ref {
	return Ref{Level: LevelGlobal}
}

// Identifier returns a stable slug usable as a deterministic storage key
// component (e.g. "company/acme", "user/u-17", "global").
func (r Ref) Identifier() string {
	if r.Level == LevelGlobal {
		return "global"
	}
	return fmt.Sprintf("%s/%s", r.Level, r.InstanceID)
}

func (r Ref) isZero() bool {
	return r.Level == LevelUnknown && r.InstanceID == ""
}

// Context is the concrete scope path for one resolution request: the
// identifiers of every level the requesting actor belongs to. Levels the
// actor is not assigned to stay empty and are simply skipped during the
// walk. A Context is built once per request from actor identity and is
// read-only afterwards.
type Context struct {
	CompanyID    string
	LocationID   string
	DepartmentID string
	TeamID       string
	UserID       string
}

// InstanceID returns the identifier the context holds for level, and whether
// the level is present. The global level is always present with an empty
// identifier.
func (c Context) InstanceID(level Level) (string, bool) {
	switch level {
	case LevelGlobal:
		return "", true
	case LevelCompany:
		return c.CompanyID, c.CompanyID != ""
	case LevelLocation:
		return c.LocationID, c.LocationID != ""
	case LevelDepartment:
		return c.DepartmentID, c.DepartmentID != ""
	case LevelTeam:
		return c.TeamID, c.TeamID != ""
	case LevelUser:
		return c.UserID, c.UserID != ""
	default:
		return "", false
	}
}

// Path returns the walk sequence implied by the context, ordered from least
// to most specific. Absent levels are skipped; the global root is always
// first.
func (c Context) Path() []Ref {
	path := make([]Ref, 0, len(Levels()))
	for _, level := range Levels() {
		id, ok := c.InstanceID(level)
		if !ok {
			continue
		}
		path = append(path, Ref{Level: level, InstanceID: id})
	}
	return path
}

// MostSpecific returns the deepest level present in the context. A zero
// context answers LevelGlobal.
func (c Context) MostSpecific() Ref {
	path := c.Path()
	return path[len(path)-1]
}

// Subpath returns the walk truncated at level, inclusive. Cache
// invalidation uses it to address the ancestors of a written scope.
func (c Context) Subpath(level Level) []Ref {
	path := c.Path()
	out := make([]Ref, 0, len(path))
	for _, ref := range path {
		if ref.Level.MoreSpecificThan(level) {
			break
		}
		out = append(out, ref)
	}
	return out
}

// Contains reports whether ref lies on the context's path.
func (c Context) Contains(ref Ref) bool {
	id, ok := c.InstanceID(ref.Level)
	return ok && id == ref.InstanceID
}
