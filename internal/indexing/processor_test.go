package indexing

import (
	"testing"
	"time"

	"github.com/homequest/realestate-search/internal/models"
)

func TestExtractEntityFields(t *testing.T) {
	sp := &StreamProcessor{}

	doc := map[string]any{
		"id":               "loc_baner_pune",
		"entity_type":      "locality",
		"name":             "Baner",
		"aliases":          []string{"Baner Pune"},
		"city":             "Pune",
		"city_id":          "city_pune",
		"parent_name":      "West Pune",
		"canonical_url":    "/pune/baner",
		"status":           "active",
		"popularity_score": 80.0,
		"internal_field":   "should not appear",
	}

	fields := sp.extractEntityFields(doc)

	expectedFields := []string{
		"id", "entity_type", "name", "aliases", "city", "city_id",
		"parent_name", "canonical_url", "status", "popularity_score",
	}
	for _, f := range expectedFields {
		if _, ok := fields[f]; !ok {
			t.Errorf("expected field %q in extracted fields", f)
		}
	}

	if _, ok := fields["freshness_ts"]; !ok {
		t.Error("expected freshness_ts in extracted fields")
	}
	if _, ok := fields["internal_field"]; ok {
		t.Error("internal_field should not be in extracted fields")
	}

	// name_sayt defaults to name when absent.
	if fields["name_sayt"] != "Baner" {
		t.Errorf("expected name_sayt to mirror name, got %v", fields["name_sayt"])
	}
}

func TestExtractEntityFields_ExplicitSayt(t *testing.T) {
	sp := &StreamProcessor{}

	fields := sp.extractEntityFields(map[string]any{
		"name":      "Sector 150",
		"name_sayt": "Sec 150",
	})
	if fields["name_sayt"] != "Sec 150" {
		t.Errorf("explicit name_sayt should win, got %v", fields["name_sayt"])
	}
}

func TestExtractEntityFields_EmptyDoc(t *testing.T) {
	sp := &StreamProcessor{}
	fields := sp.extractEntityFields(map[string]any{})

	if _, ok := fields["freshness_ts"]; !ok {
		t.Error("expected freshness_ts even for empty doc")
	}
	if len(fields) != 1 {
		t.Errorf("expected 1 field for empty doc, got %d", len(fields))
	}
}

func TestTransformEvent_Create(t *testing.T) {
	sp := &StreamProcessor{}

	event := &models.EntityChangeEvent{
		Type:     "CREATE",
		EntityID: "proj_godrej_woods",
		Document: map[string]any{
			"name":        "Godrej Woods",
			"entity_type": "project",
		},
		Timestamp: time.Now(),
	}

	action, err := sp.transformEvent(event)
	if err != nil {
		t.Fatalf("transformEvent: %v", err)
	}
	if action.Action != "index" {
		t.Errorf("expected index action, got %q", action.Action)
	}
	if action.ID != "proj_godrej_woods" {
		t.Errorf("expected entity id as action id, got %q", action.ID)
	}
	if action.Body["name"] != "Godrej Woods" {
		t.Errorf("expected document body carried over, got %v", action.Body)
	}
}

func TestTransformEvent_Delete(t *testing.T) {
	sp := &StreamProcessor{}

	event := &models.EntityChangeEvent{
		Type:      "DELETE",
		EntityID:  "loc_gone",
		Timestamp: time.Now(),
	}

	action, err := sp.transformEvent(event)
	if err != nil {
		t.Fatalf("transformEvent: %v", err)
	}
	if action.Action != "delete" {
		t.Errorf("expected delete action, got %q", action.Action)
	}
	if action.Body != nil {
		t.Errorf("delete action should carry no body, got %v", action.Body)
	}
}

func TestTransformEvent_UnknownType(t *testing.T) {
	sp := &StreamProcessor{}

	_, err := sp.transformEvent(&models.EntityChangeEvent{Type: "UPSERT", EntityID: "x"})
	if err == nil {
		t.Error("expected error for unknown event type")
	}
}
