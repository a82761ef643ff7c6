package settings

// cloneValue returns a detached copy of a stored settings value so callers
// can never mutate engine or store state through a returned Override or
// EffectiveSetting. Values are JSON-shaped (scalars, []string, []any,
// map[string]any), so a structural copy is sufficient.
func cloneValue(value any) any {
	switch v := value.(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = cloneValue(v[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
