package settings

// AffectedFeatures returns the downstream features an operator should be
// warned about before changing (module, key), with the surfaces that
// enforce each one. Pure catalog lookup; the only failure mode is an
// unknown setting.
func (c *Catalog) AffectedFeatures(module, key string) ([]Feature, error) {
	def, err := c.Definition(module, key)
	if err != nil {
		return nil, err
	}
	out := make([]Feature, len(def.Features))
	for i, feature := range def.Features {
		surfaces := make([]Surface, len(feature.Surfaces))
		copy(surfaces, feature.Surfaces)
		out[i] = Feature{Name: feature.Name, Surfaces: surfaces}
	}
	return out, nil
}
