package settings

import "encoding/json"

// CatalogDocument is a JSON-serialisable snapshot of one module's catalog
// entries, the shape settings screens consume to render fields and
// pre-save advisories.
type CatalogDocument struct {
	Module      string            `json:"module"`
	Definitions []DocumentSetting `json:"definitions"`
}

// DocumentSetting flattens a Definition for transport. Levels render as
// their string names so consumers don't depend on enum values.
type DocumentSetting struct {
	Key           string    `json:"key"`
	Type          ValueType `json:"type"`
	Default       any       `json:"default"`
	Lockable      bool      `json:"lockable,omitempty"`
	AllowedLevels []string  `json:"allowed_levels"`
	Features      []Feature `json:"features,omitempty"`
}

// Document builds the transport document for module. Unknown modules yield
// an empty definition list rather than an error so screens can render
// before their module ships settings.
func (c *Catalog) Document(module string) CatalogDocument {
	defs := c.ModuleDefinitions(module)
	doc := CatalogDocument{
		Module:      module,
		Definitions: make([]DocumentSetting, 0, len(defs)),
	}
	for _, def := range defs {
		levels := make([]string, len(def.AllowedLevels))
		for i, level := range def.AllowedLevels {
			levels[i] = level.String()
		}
		doc.Definitions = append(doc.Definitions, DocumentSetting{
			Key:           def.Key,
			Type:          def.Type,
			Default:       formatValue(def.Default),
			Lockable:      def.Lockable,
			AllowedLevels: levels,
			Features:      def.Features,
		})
	}
	return doc
}

// ToJSON serialises the document for logging or transport helpers.
func (d CatalogDocument) ToJSON() ([]byte, error) {
	type alias CatalogDocument
	return json.Marshal(alias(d))
}
