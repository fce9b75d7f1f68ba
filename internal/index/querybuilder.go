package index

import (
	"github.com/homequest/realestate-search/internal/models"
)

var sourceFields = []string{
	"id", "entity_type", "name", "aliases", "city", "city_id",
	"parent_name", "canonical_url", "popularity_score", "status",
}

// popularitySort breaks score ties with popularity so stable entities win.
var popularitySort = []any{
	map[string]any{"_score": map[string]any{"order": "desc"}},
	map[string]any{"popularity_score": map[string]any{"order": "desc", "missing": 0}},
}

// cityFilter scopes to a city while keeping global docs (empty city_id)
// visible everywhere.
func cityFilter(cityID string) []any {
	if cityID == "" {
		return nil
	}
	return []any{
		map[string]any{
			"bool": map[string]any{
				"should": []any{
					map[string]any{"term": map[string]any{"city_id": cityID}},
					map[string]any{"term": map[string]any{"city_id": ""}},
				},
				"minimum_should_match": 1,
			},
		},
	}
}

func baseFilters(cityID string, entityTypes []models.EntityType) []any {
	filters := []any{
		map[string]any{"term": map[string]any{"status": "active"}},
	}
	filters = append(filters, cityFilter(cityID)...)
	if len(entityTypes) > 0 {
		types := make([]string, 0, len(entityTypes))
		for _, t := range entityTypes {
			types = append(types, string(t))
		}
		filters = append(filters, map[string]any{"terms": map[string]any{"entity_type": types}})
	}
	return filters
}

func didYouMeanSuggest(q string) map[string]any {
	return map[string]any{
		"text": q,
		"did_you_mean": map[string]any{
			"term": map[string]any{
				"field":        "name",
				"suggest_mode": "popular",
				"size":         3,
			},
		},
	}
}

// EntityQuery is the strict name match used by resolution: AND semantics so
// every query token has to land.
func EntityQuery(q string, size int, cityID string, entityTypes []models.EntityType) map[string]any {
	return map[string]any{
		"size":    size,
		"_source": sourceFields,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": baseFilters(cityID, entityTypes),
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":     q,
							"type":      "best_fields",
							"fields":    []string{"name^4", "aliases^3", "name_sayt^2"},
							"fuzziness": "AUTO",
							"operator":  "AND",
						},
					},
				},
			},
		},
		"sort": popularitySort,
	}
}

// SerpQuery is EntityQuery with a heavier name boost plus a term suggester
// for did-you-mean.
func SerpQuery(q string, size int, cityID string) map[string]any {
	return map[string]any{
		"size":    size,
		"_source": sourceFields,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": baseFilters(cityID, nil),
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query":     q,
							"type":      "best_fields",
							"fields":    []string{"name^5", "aliases^3", "name_sayt^2"},
							"fuzziness": "AUTO",
							"operator":  "AND",
						},
					},
				},
			},
		},
		"sort":    popularitySort,
		"suggest": didYouMeanSuggest(q),
	}
}

// RelaxedQuery drops AND semantics and leans on search_as_you_type prefixes.
// Used as a second pass when the strict query returns nothing.
func RelaxedQuery(q string, size int, cityID string) map[string]any {
	return map[string]any{
		"size":    size,
		"_source": sourceFields,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": baseFilters(cityID, nil),
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query": q,
							"type":  "bool_prefix",
							"fields": []string{
								"name_sayt",
								"name_sayt._2gram",
								"name_sayt._3gram",
								"aliases^2",
								"name^2",
							},
							"fuzziness": "AUTO",
							"operator":  "OR",
						},
					},
				},
			},
		},
		"sort": popularitySort,
	}
}

// SuggestQuery powers autocomplete. bool_prefix over search_as_you_type is
// filterable, unlike the completion suggester.
func SuggestQuery(q string, size int, cityID string) map[string]any {
	return map[string]any{
		"size":    size,
		"_source": sourceFields,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": baseFilters(cityID, nil),
				"must": []any{
					map[string]any{
						"multi_match": map[string]any{
							"query": q,
							"type":  "bool_prefix",
							"fields": []string{
								"name_sayt",
								"name_sayt._2gram",
								"name_sayt._3gram",
								"aliases",
								"name",
							},
							"fuzziness": "AUTO",
						},
					},
				},
			},
		},
		"sort":    popularitySort,
		"suggest": didYouMeanSuggest(q),
	}
}

// TrendingQuery returns the most popular active entities, optionally scoped
// to a city and a set of entity types.
func TrendingQuery(size int, cityID string, entityTypes []models.EntityType) map[string]any {
	return map[string]any{
		"size":    size,
		"_source": sourceFields,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": baseFilters(cityID, entityTypes),
			},
		},
		"sort": []any{
			map[string]any{"popularity_score": map[string]any{"order": "desc", "missing": 0}},
		},
	}
}

// CanonicalPathQuery looks up the single entity owning a canonical URL path.
func CanonicalPathQuery(path string) map[string]any {
	return map[string]any{
		"size":    1,
		"_source": sourceFields,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []any{
					map[string]any{"term": map[string]any{"status": "active"}},
					map[string]any{"term": map[string]any{"canonical_url": path}},
				},
			},
		},
	}
}

// IndexSettings is the entity index definition: folded analyzers with a
// real-estate synonym graph and a search_as_you_type field for prefix search.
func IndexSettings(numShards, numReplicas int) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   numShards,
			"number_of_replicas": numReplicas,
			"analysis": map[string]any{
				"filter": map[string]any{
					"synonyms_re": map[string]any{
						"type": "synonym_graph",
						"synonyms": []string{
							"bhk, bedroom",
							"society, gated community",
							"builder floor, floor",
							"rtm, ready to move, ready-to-move",
							"uc, under construction, under-construction",
							"rate, price, property rate, property rates",
						},
					},
				},
				"analyzer": map[string]any{
					"folding": map[string]any{
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "asciifolding"},
					},
					"folding_syn": map[string]any{
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "asciifolding", "synonyms_re"},
					},
				},
			},
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"id":               map[string]any{"type": "keyword"},
				"entity_type":      map[string]any{"type": "keyword"},
				"name":             map[string]any{"type": "text", "analyzer": "folding_syn"},
				"name_sayt":        map[string]any{"type": "search_as_you_type", "analyzer": "folding"},
				"aliases":          map[string]any{"type": "text", "analyzer": "folding_syn"},
				"city":             map[string]any{"type": "keyword"},
				"city_id":          map[string]any{"type": "keyword"},
				"parent_name":      map[string]any{"type": "keyword"},
				"canonical_url":    map[string]any{"type": "keyword"},
				"status":           map[string]any{"type": "keyword"},
				"popularity_score": map[string]any{"type": "float"},
				"freshness_ts":     map[string]any{"type": "date"},
				"suggest":          map[string]any{"type": "completion"},
			},
		},
	}
}

// SeedDocs is a minimal multi-city catalogue used by the admin reset flow
// and local development.
func SeedDocs() []map[string]any {
	return []map[string]any{
		{"id": "city_noida", "entity_type": "city", "name": "Noida", "name_sayt": "Noida", "aliases": []string{"New Okhla Industrial Development Authority"}, "city": "Noida", "city_id": "city_noida", "parent_name": "", "canonical_url": "/noida", "status": "active", "popularity_score": 90.0, "freshness_ts": "2025-01-01", "suggest": map[string]any{"input": []string{"Noida"}}},
		{"id": "city_pune", "entity_type": "city", "name": "Pune", "name_sayt": "Pune", "aliases": []string{"Poona"}, "city": "Pune", "city_id": "city_pune", "parent_name": "", "canonical_url": "/pune", "status": "active", "popularity_score": 85.0, "freshness_ts": "2025-01-01", "suggest": map[string]any{"input": []string{"Pune", "Poona"}}},
		{"id": "loc_baner_pune", "entity_type": "locality", "name": "Baner", "name_sayt": "Baner", "aliases": []string{"Baner Pune"}, "city": "Pune", "city_id": "city_pune", "parent_name": "West Pune", "canonical_url": "/pune/baner", "status": "active", "popularity_score": 80.0, "freshness_ts": "2025-03-01", "suggest": map[string]any{"input": []string{"Baner", "Baner Pune"}}},
		{"id": "mm_sector150_noida", "entity_type": "micromarket", "name": "Sector 150", "name_sayt": "Sector 150", "aliases": []string{"Sec 150"}, "city": "Noida", "city_id": "city_noida", "parent_name": "Noida Expressway", "canonical_url": "/noida/sector-150", "status": "active", "popularity_score": 78.0, "freshness_ts": "2025-02-01", "suggest": map[string]any{"input": []string{"Sector 150", "Sec 150"}}},
		{"id": "rate_baner", "entity_type": "rate_page", "name": "Baner Property Rates", "name_sayt": "Baner Property Rates", "aliases": []string{"Baner rates", "Baner price trend"}, "city": "Pune", "city_id": "city_pune", "parent_name": "Baner", "canonical_url": "/property-rates/pune/baner", "status": "active", "popularity_score": 60.0, "freshness_ts": "2025-04-01", "suggest": map[string]any{"input": []string{"Baner property rates", "Baner rates"}}},
		{"id": "proj_godrej_woods", "entity_type": "project", "name": "Godrej Woods", "name_sayt": "Godrej Woods", "aliases": []string{"Godrej Woods Noida"}, "city": "Noida", "city_id": "city_noida", "parent_name": "Sector 43", "canonical_url": "/projects/noida/godrej-woods", "status": "active", "popularity_score": 88.0, "freshness_ts": "2025-05-15", "suggest": map[string]any{"input": []string{"Godrej Woods", "Godrej Woods Noida"}}},
		{"id": "builder_dlf", "entity_type": "builder", "name": "DLF", "name_sayt": "DLF", "aliases": []string{"DLF Limited"}, "city": "", "city_id": "", "parent_name": "", "canonical_url": "/builders/dlf", "status": "active", "popularity_score": 95.0, "freshness_ts": "2025-01-01", "suggest": map[string]any{"input": []string{"DLF", "DLF Limited"}}},
		{"id": "pdp_resale_1", "entity_type": "property_pdp", "name": "2 BHK Resale Apartment in Baner", "name_sayt": "2 BHK Resale Apartment in Baner", "aliases": []string{"2bhk baner resale"}, "city": "Pune", "city_id": "city_pune", "parent_name": "Baner", "canonical_url": "/pune/baner/resale/2-bhk-apartment-123", "status": "active", "popularity_score": 40.0, "freshness_ts": "2025-06-01", "suggest": map[string]any{"input": []string{"2 BHK Baner resale", "2bhk baner resale"}}},
	}
}
