package resolver

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/homequest/realestate-search/internal/config"
	"github.com/homequest/realestate-search/internal/index"
	"github.com/homequest/realestate-search/internal/models"
	"github.com/homequest/realestate-search/internal/registry"
)

type fakeIndex struct {
	searchFn func(q string, cityID string, types []models.EntityType) ([]models.Entity, error)
	lookupFn func(path string) (*models.Entity, error)
}

func (f *fakeIndex) SearchEntities(_ context.Context, q string, _ int, cityID string, types []models.EntityType) ([]models.Entity, error) {
	if f.searchFn == nil {
		return nil, nil
	}
	return f.searchFn(q, cityID, types)
}

func (f *fakeIndex) LookupByCanonicalPath(_ context.Context, path string) (*models.Entity, error) {
	if f.lookupFn == nil {
		return nil, nil
	}
	return f.lookupFn(path)
}

func score(v float64) *float64 { return &v }

func testConfig() config.ResolverConfig {
	return config.ResolverConfig{
		MinRedirectScore: 7.0,
		MinRedirectGap:   0.35,
		SearchLimit:      10,
	}
}

func newTestResolver(t *testing.T, idx EntityIndex, redirects *registry.Registry) *Resolver {
	t.Helper()
	if redirects == nil {
		redirects = registry.Empty()
	}
	return New(idx, redirects, nil, testConfig(), zap.NewNop())
}

func fileRegistry(t *testing.T, table string) *registry.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "redirects.yaml")
	if err := os.WriteFile(path, []byte(table), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := registry.New(registry.FileSource{Path: path}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

func TestResolve_EmptyQuery(t *testing.T) {
	r := newTestResolver(t, &fakeIndex{}, nil)

	d, err := r.Resolve(context.Background(), "   ", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionSerp {
		t.Errorf("Action = %q, want serp", d.Action)
	}
	if d.Reason != models.ReasonEmpty {
		t.Errorf("Reason = %q, want empty", d.Reason)
	}
	if d.URL == "" {
		t.Error("serp decision must carry a URL")
	}
}

func TestResolve_RegistryRedirect(t *testing.T) {
	reg := fileRegistry(t, "/pune/baner: /pune/baner-west\n")
	r := newTestResolver(t, &fakeIndex{}, reg)

	d, err := r.Resolve(context.Background(), "pune/baner", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionRedirect || d.Reason != models.ReasonRedirectRegistry {
		t.Fatalf("got %s/%s, want redirect/redirect_registry", d.Action, d.Reason)
	}
	if d.URL != "/pune/baner-west" {
		t.Errorf("URL = %q, want /pune/baner-west", d.URL)
	}
}

func TestResolve_CleanPathCanonical(t *testing.T) {
	idx := &fakeIndex{
		lookupFn: func(path string) (*models.Entity, error) {
			if path != "/pune/baner" {
				return nil, nil
			}
			return &models.Entity{
				ID:           "loc_baner_pune",
				EntityType:   models.TypeLocality,
				Name:         "Baner",
				CanonicalURL: "/pune/baner",
			}, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "https://example.com/pune/baner?utm=x", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionRedirect || d.Reason != models.ReasonCleanURL {
		t.Fatalf("got %s/%s, want redirect/clean_url", d.Action, d.Reason)
	}
	if d.URL != "/pune/baner" {
		t.Errorf("URL = %q", d.URL)
	}
}

func TestResolve_CleanPathMissFallsThrough(t *testing.T) {
	idx := &fakeIndex{
		lookupFn: func(string) (*models.Entity, error) { return nil, nil },
		searchFn: func(string, string, []models.EntityType) ([]models.Entity, error) { return nil, nil },
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "pune/nowhere", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionSerp || d.Reason != models.ReasonNoResults {
		t.Fatalf("got %s/%s, want serp/no_results", d.Action, d.Reason)
	}
}

func TestResolve_ConfidentRedirect(t *testing.T) {
	idx := &fakeIndex{
		searchFn: func(string, string, []models.EntityType) ([]models.Entity, error) {
			return []models.Entity{
				{ID: "proj_godrej_woods", EntityType: models.TypeProject, Name: "Godrej Woods", CityID: "city_noida", CanonicalURL: "/noida/godrej-woods", Score: score(12.0)},
				{ID: "proj_other", EntityType: models.TypeProject, Name: "Godrej Hills", CityID: "city_pune", CanonicalURL: "/pune/godrej-hills", Score: score(2.0)},
			}, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "godrej woods", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionRedirect || d.Reason != models.ReasonConfidentRedirect {
		t.Fatalf("got %s/%s, want redirect/confident_redirect", d.Action, d.Reason)
	}
	if d.URL != "/noida/godrej-woods" {
		t.Errorf("URL = %q", d.URL)
	}
	if d.Match == nil || d.Match.ID != "proj_godrej_woods" {
		t.Errorf("Match = %+v", d.Match)
	}
}

func TestResolve_NarrowGapServesSerp(t *testing.T) {
	idx := &fakeIndex{
		searchFn: func(string, string, []models.EntityType) ([]models.Entity, error) {
			return []models.Entity{
				{ID: "a", EntityType: models.TypeProject, Name: "Green Park", CityID: "city_pune", CanonicalURL: "/a", Score: score(8.0)},
				{ID: "b", EntityType: models.TypeLocality, Name: "Green Acres", CityID: "city_pune", CanonicalURL: "/b", Score: score(7.5)},
			}, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "green", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionSerp || d.Reason != models.ReasonAmbiguous {
		t.Fatalf("got %s/%s, want serp/ambiguous", d.Action, d.Reason)
	}
	if !strings.HasPrefix(d.URL, "/search?q=") {
		t.Errorf("URL = %q, want serp URL", d.URL)
	}
}

func TestResolve_SameNameDisambiguates(t *testing.T) {
	idx := &fakeIndex{
		searchFn: func(string, string, []models.EntityType) ([]models.Entity, error) {
			return []models.Entity{
				{ID: "loc_baner_pune", EntityType: models.TypeLocality, Name: "Baner", CityID: "city_pune", CanonicalURL: "/pune/baner", Score: score(9.0)},
				{ID: "loc_baner_nashik", EntityType: models.TypeLocality, Name: "Baner", CityID: "city_nashik", CanonicalURL: "/nashik/baner", Score: score(8.8)},
			}, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "baner", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionDisambiguate || d.Reason != models.ReasonSameName {
		t.Fatalf("got %s/%s, want disambiguate/same_name", d.Action, d.Reason)
	}
	if len(d.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(d.Candidates))
	}
	for _, c := range d.Candidates {
		if c.EntityType != models.TypeLocality {
			t.Errorf("mixed candidate types: %s", c.EntityType)
		}
	}
}

func TestResolve_SameNameCityScoped(t *testing.T) {
	idx := &fakeIndex{
		searchFn: func(string, string, []models.EntityType) ([]models.Entity, error) {
			return []models.Entity{
				{ID: "loc_baner_pune", EntityType: models.TypeLocality, Name: "Baner", CityID: "city_pune", CanonicalURL: "/pune/baner", Score: score(9.0)},
				{ID: "loc_baner_nashik", EntityType: models.TypeLocality, Name: "Baner", CityID: "city_nashik", CanonicalURL: "/nashik/baner", Score: score(8.8)},
			}, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "baner", "city_pune", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionRedirect || d.Reason != models.ReasonCityScopedSameName {
		t.Fatalf("got %s/%s, want redirect/city_scoped_same_name", d.Action, d.Reason)
	}
	if d.URL != "/pune/baner" {
		t.Errorf("URL = %q", d.URL)
	}
}

func TestResolve_BuilderIntentListing(t *testing.T) {
	idx := &fakeIndex{
		searchFn: func(q, cityID string, types []models.EntityType) ([]models.Entity, error) {
			if len(types) == 1 && types[0] == models.TypeBuilder {
				return []models.Entity{
					{ID: "builder_dlf", EntityType: models.TypeBuilder, Name: "DLF", Score: score(11.0)},
				}, nil
			}
			return []models.Entity{
				{ID: "city_noida", EntityType: models.TypeCity, Name: "Noida", CityID: "city_noida", CanonicalURL: "/noida", Score: score(10.0)},
			}, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "projects by dlf in noida", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionRedirect || d.Reason != models.ReasonBuilderIntentListing {
		t.Fatalf("got %s/%s, want redirect/builder_intent_listing", d.Action, d.Reason)
	}
	if d.URL != "/noida/buy?builder_id=builder_dlf" {
		t.Errorf("URL = %q", d.URL)
	}
}

func TestResolve_ConstraintHeavyListing(t *testing.T) {
	var gotTypes []models.EntityType
	idx := &fakeIndex{
		searchFn: func(q, cityID string, types []models.EntityType) ([]models.Entity, error) {
			gotTypes = types
			return []models.Entity{
				{ID: "loc_baner_pune", EntityType: models.TypeLocality, Name: "Baner", CityID: "city_pune", CanonicalURL: "/pune/baner", Score: score(9.5)},
			}, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "2 bhk flat in baner", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionRedirect || d.Reason != models.ReasonConstraintHeavyListing {
		t.Fatalf("got %s/%s, want redirect/constraint_heavy_listing", d.Action, d.Reason)
	}
	if d.URL != "/pune/baner/buy?bhk=2&property_type=apartment" {
		t.Errorf("URL = %q", d.URL)
	}
	// The location search must be scoped to listing entity types at the
	// index, not widened and filtered afterwards.
	if !reflect.DeepEqual(gotTypes, listingScopes) {
		t.Errorf("search entity types = %v, want %v", gotTypes, listingScopes)
	}
}

func TestResolve_ConstraintHeavyCityScope(t *testing.T) {
	idx := &fakeIndex{
		searchFn: func(q, cityID string, types []models.EntityType) ([]models.Entity, error) {
			return []models.Entity{
				{ID: "loc_baner_nashik", EntityType: models.TypeLocality, Name: "Baner", CityID: "city_nashik", CanonicalURL: "/nashik/baner", Score: score(9.9)},
				{ID: "loc_baner_pune", EntityType: models.TypeLocality, Name: "Baner", CityID: "city_pune", CanonicalURL: "/pune/baner", Score: score(9.5)},
			}, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "2 bhk in baner", "city_pune", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionRedirect || d.Reason != models.ReasonConstraintHeavyCityScope {
		t.Fatalf("got %s/%s, want redirect/constraint_heavy_city_scoped_listing", d.Action, d.Reason)
	}
	if !strings.HasPrefix(d.URL, "/pune/baner/buy") {
		t.Errorf("URL = %q, want city-scoped base", d.URL)
	}
}

func TestResolve_ConstraintHeavyWithoutLocation(t *testing.T) {
	idx := &fakeIndex{
		searchFn: func(string, string, []models.EntityType) ([]models.Entity, error) {
			t.Fatal("no search expected without a location phrase")
			return nil, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "2 bhk", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionSerp || d.Reason != models.ReasonConstraintHeavy {
		t.Fatalf("got %s/%s, want serp/constraint_heavy", d.Action, d.Reason)
	}
	if d.URL == "" {
		t.Error("serp decision must carry a URL")
	}
}

func TestResolve_PageIntentCityScoped(t *testing.T) {
	idx := &fakeIndex{
		searchFn: func(q, cityID string, types []models.EntityType) ([]models.Entity, error) {
			if len(types) != 1 || types[0] != models.TypeRatePage {
				t.Fatalf("types = %v, want [rate_page]", types)
			}
			return []models.Entity{
				{ID: "rate_baner", EntityType: models.TypeRatePage, Name: "Baner", CityID: "city_pune", CanonicalURL: "/pune/baner/property-rates", Score: score(8.0)},
			}, nil
		},
	}
	r := newTestResolver(t, idx, nil)

	d, err := r.Resolve(context.Background(), "baner property rates", "city_pune", "")
	if err != nil {
		t.Fatal(err)
	}
	if d.Action != models.ActionRedirect || d.Reason != models.ReasonPageIntentCityScoped {
		t.Fatalf("got %s/%s, want redirect/page_intent_city_scoped", d.Action, d.Reason)
	}
	if d.URL != "/pune/baner/property-rates" {
		t.Errorf("URL = %q", d.URL)
	}
}

func TestResolve_IndexErrorPropagates(t *testing.T) {
	idx := &fakeIndex{
		searchFn: func(string, string, []models.EntityType) ([]models.Entity, error) {
			return nil, fmt.Errorf("search: %w", index.ErrUnavailable)
		},
	}
	r := newTestResolver(t, idx, nil)

	_, err := r.Resolve(context.Background(), "godrej woods", "", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, index.ErrUnavailable) {
		t.Errorf("error chain lost the unavailable sentinel: %v", err)
	}
}
