// pkg/policyregistry/registry.go
package policyregistry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"finqa-retrieval/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

// Registry resolves one immutable RetrievalPolicy per intent. Built-in
// defaults always cover every intent; an override file can replace
// individual entries but can never leave an intent without a policy.
type Registry struct {
	mu       sync.RWMutex
	policies map[models.QueryIntent]models.RetrievalPolicy
}

// New builds a registry from the built-in defaults, overlaid with the
// override file at path if one is configured.
func New(path string) (*Registry, error) {
	r := &Registry{policies: defaultPolicies()}

	if path == "" {
		return r, nil
	}

	table, err := loadTable(path)
	if err != nil {
		return nil, err
	}

	for _, def := range table.Policies {
		policy, err := toPolicy(def)
		if err != nil {
			return nil, fmt.Errorf("policy table %s: %w", path, err)
		}
		r.policies[policy.Intent] = policy
	}

	return r, nil
}

// Get returns the policy for an intent. Unknown intents fall back to the
// general policy so a routing bug can never leave retrieval unconfigured.
func (r *Registry) Get(intent models.QueryIntent) models.RetrievalPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if policy, ok := r.policies[intent]; ok {
		return policy
	}
	return r.policies[models.IntentGeneral]
}

// All returns a copy of every registered policy, for diagnostics.
func (r *Registry) All() map[models.QueryIntent]models.RetrievalPolicy {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[models.QueryIntent]models.RetrievalPolicy, len(r.policies))
	for k, v := range r.policies {
		out[k] = v
	}
	return out
}

func loadTable(path string) (*PolicyTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy table: %w", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse policy table: %w", err)
	}

	schemaLoader := gojsonschema.NewGoLoader(tableSchema)
	documentLoader := gojsonschema.NewGoLoader(raw)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("validate policy table: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("policy table failed validation: %v", errs)
	}

	var table PolicyTable
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse policy table: %w", err)
	}
	return &table, nil
}

func toPolicy(def PolicyDefinition) (models.RetrievalPolicy, error) {
	intent, err := models.ParseQueryIntent(def.Intent)
	if err != nil {
		return models.RetrievalPolicy{}, err
	}

	caps := make(map[models.SourceType]int, len(def.SourceCaps))
	for rawSource, limit := range def.SourceCaps {
		source, err := models.ParseSourceType(rawSource)
		if err != nil {
			return models.RetrievalPolicy{}, fmt.Errorf("intent %s: %w", def.Intent, err)
		}
		caps[source] = limit
	}

	return models.RetrievalPolicy{
		Intent:            intent,
		UseMultiHop:       def.UseMultiHop,
		KDocs:             def.KDocs,
		NarrativeWeight:   def.NarrativeWeight,
		MetricWeight:      def.MetricWeight,
		UseReranking:      def.UseReranking,
		SourceCaps:        caps,
		BiasSections:      def.BiasSections,
		RequireSamePeriod: def.RequireSamePeriod,
		RequireSameUnits:  def.RequireSameUnits,
	}, nil
}

// defaultPolicies is the built-in intent table. Metric lookups stay cheap
// and deterministic; explanatory intents fan out wider and rerank.
func defaultPolicies() map[models.QueryIntent]models.RetrievalPolicy {
	return map[models.QueryIntent]models.RetrievalPolicy{
		models.IntentMetricLookup: {
			Intent:          models.IntentMetricLookup,
			UseMultiHop:     false,
			KDocs:           5,
			NarrativeWeight: 0.3,
			MetricWeight:    1.0,
			UseReranking:    false,
			SourceCaps: map[models.SourceType]int{
				models.SourceSQL:          10,
				models.SourceSECNarrative: 3,
			},
		},
		models.IntentWhy: {
			Intent:          models.IntentWhy,
			UseMultiHop:     true,
			KDocs:           8,
			NarrativeWeight: 1.0,
			MetricWeight:    0.5,
			UseReranking:    true,
			BiasSections:    []string{"MD&A", "Risk Factors"},
			SourceCaps: map[models.SourceType]int{
				models.SourceSECNarrative: 6,
				models.SourceUploaded:     3,
				models.SourceMacro:        3,
			},
		},
		models.IntentCompare: {
			Intent:            models.IntentCompare,
			UseMultiHop:       true,
			KDocs:             8,
			NarrativeWeight:   0.7,
			MetricWeight:      1.0,
			UseReranking:      true,
			RequireSamePeriod: true,
			RequireSameUnits:  true,
			SourceCaps: map[models.SourceType]int{
				models.SourceSQL:          10,
				models.SourceSECNarrative: 4,
			},
		},
		models.IntentRisk: {
			Intent:          models.IntentRisk,
			UseMultiHop:     false,
			KDocs:           8,
			NarrativeWeight: 1.0,
			MetricWeight:    0.3,
			UseReranking:    true,
			BiasSections:    []string{"Risk Factors"},
			SourceCaps: map[models.SourceType]int{
				models.SourceSECNarrative: 6,
				models.SourceUploaded:     3,
			},
		},
		models.IntentForecast: {
			Intent:          models.IntentForecast,
			UseMultiHop:     true,
			KDocs:           6,
			NarrativeWeight: 0.8,
			MetricWeight:    0.6,
			UseReranking:    false,
			SourceCaps: map[models.SourceType]int{
				models.SourceForecast:     4,
				models.SourceMacro:        3,
				models.SourceSECNarrative: 3,
			},
		},
		models.IntentGeneral: {
			Intent:          models.IntentGeneral,
			UseMultiHop:     false,
			KDocs:           6,
			NarrativeWeight: 0.8,
			MetricWeight:    0.8,
			UseReranking:    false,
			SourceCaps: map[models.SourceType]int{
				models.SourceSECNarrative: 4,
				models.SourceUploaded:     2,
			},
		},
	}
}
