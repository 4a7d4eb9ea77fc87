// pkg/policyregistry/schema.go
package policyregistry

// PolicyTable is the on-disk shape of an intent policy override file.
type PolicyTable struct {
	Version     string             `json:"version"`
	LastUpdated string             `json:"lastUpdated"`
	Policies    []PolicyDefinition `json:"policies"`
}

// PolicyDefinition is one intent's retrieval knobs as JSON.
type PolicyDefinition struct {
	Intent            string         `json:"intent"`
	UseMultiHop       bool           `json:"useMultiHop"`
	KDocs             int            `json:"kDocs"`
	NarrativeWeight   float64        `json:"narrativeWeight"`
	MetricWeight      float64        `json:"metricWeight"`
	UseReranking      bool           `json:"useReranking"`
	SourceCaps        map[string]int `json:"sourceCaps,omitempty"`
	BiasSections      []string       `json:"biasSections,omitempty"`
	RequireSamePeriod bool           `json:"requireSamePeriod"`
	RequireSameUnits  bool           `json:"requireSameUnits"`
}

// tableSchema validates override files before they replace built-in
// defaults. Bad tables abort startup; they are never patched at runtime.
var tableSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"policies"},
	"properties": map[string]interface{}{
		"version":     map[string]interface{}{"type": "string"},
		"lastUpdated": map[string]interface{}{"type": "string"},
		"policies": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type":     "object",
				"required": []interface{}{"intent", "kDocs"},
				"properties": map[string]interface{}{
					"intent": map[string]interface{}{
						"type": "string",
						"enum": []interface{}{
							"metric_lookup", "why", "compare", "risk", "forecast", "general",
						},
					},
					"useMultiHop": map[string]interface{}{"type": "boolean"},
					"kDocs": map[string]interface{}{
						"type":    "integer",
						"minimum": 1,
						"maximum": 100,
					},
					"narrativeWeight": map[string]interface{}{
						"type":    "number",
						"minimum": 0,
						"maximum": 1,
					},
					"metricWeight": map[string]interface{}{
						"type":    "number",
						"minimum": 0,
						"maximum": 1,
					},
					"useReranking": map[string]interface{}{"type": "boolean"},
					"sourceCaps": map[string]interface{}{
						"type": "object",
						"additionalProperties": map[string]interface{}{
							"type":    "integer",
							"minimum": 1,
						},
					},
					"biasSections": map[string]interface{}{
						"type":  "array",
						"items": map[string]interface{}{"type": "string"},
					},
					"requireSamePeriod": map[string]interface{}{"type": "boolean"},
					"requireSameUnits":  map[string]interface{}{"type": "boolean"},
				},
			},
		},
	},
}
