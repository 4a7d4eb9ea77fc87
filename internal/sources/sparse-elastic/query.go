// internal/sources/sparse-elastic/query.go
package sparseelastic

// buildSearchBody assembles the bool query for one sparse lookup. The text
// match scores the hit; filter entries narrow it without scoring. Filter
// values map by shape: lists become terms clauses, maps become range
// clauses, scalars become term clauses.
func buildSearchBody(query string, fields []string, filter map[string]interface{}) map[string]interface{} {
	mustClauses := []interface{}{
		map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": fields,
				"type":   "best_fields",
			},
		},
	}

	filterClauses := []interface{}{}
	for field, value := range filter {
		if clause := buildFilterClause(field, value); clause != nil {
			filterClauses = append(filterClauses, clause)
		}
	}

	boolQuery := map[string]interface{}{"must": mustClauses}
	if len(filterClauses) > 0 {
		boolQuery["filter"] = filterClauses
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
	}
}

func buildFilterClause(field string, value interface{}) interface{} {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		if len(v) == 0 {
			return nil
		}
		return map[string]interface{}{"terms": map[string]interface{}{field: v}}
	case []interface{}:
		if len(v) == 0 {
			return nil
		}
		return map[string]interface{}{"terms": map[string]interface{}{field: v}}
	case map[string]interface{}:
		if len(v) == 0 {
			return nil
		}
		return map[string]interface{}{"range": map[string]interface{}{field: v}}
	default:
		return map[string]interface{}{"term": map[string]interface{}{field: v}}
	}
}
