package resolver

import (
	"testing"

	"github.com/homequest/realestate-search/internal/models"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Godrej Woods", "godrej-woods"},
		{"  Sector 150  ", "sector-150"},
		{"Baner!", "baner"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCitySlugFromID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"city_pune", "pune"},
		{"city_noida", "noida"},
		{"Pune", "pune"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CitySlugFromID(tt.in); got != tt.want {
			t.Errorf("CitySlugFromID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExtractPathCandidate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pune/baner", "/pune/baner"},
		{"/pune/baner", "/pune/baner"},
		{"/pune//baner/", "/pune/baner"},
		{"https://example.com/pune/baner?x=1", "/pune/baner"},
		{"http://example.com/pune/baner#top", "/pune/baner"},
		{"example.com/pune/baner", "/pune/baner"},
		{"https://example.com/", ""},
		{"baner", ""},
		{"2 bhk in baner", ""},
		{"", ""},
		{"/", ""},
	}
	for _, tt := range tests {
		if got := ExtractPathCandidate(tt.in); got != tt.want {
			t.Errorf("ExtractPathCandidate(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildSerpURL(t *testing.T) {
	if got := BuildSerpURL("2 bhk in baner", "city_pune", ""); got != "/search?q=2+bhk+in+baner&city_id=city_pune" {
		t.Errorf("BuildSerpURL = %q", got)
	}
	if got := BuildSerpURL("", "", ""); got != "/search?q=" {
		t.Errorf("BuildSerpURL empty = %q", got)
	}
	if got := BuildSerpURL("x", "", "/pune"); got != "/search?q=x&context_url=%2Fpune" {
		t.Errorf("BuildSerpURL context = %q", got)
	}
}

func TestBuildListingURL(t *testing.T) {
	locality := models.Entity{
		EntityType:   models.TypeLocality,
		ID:           "loc_baner_pune",
		Name:         "Baner",
		CityID:       "city_pune",
		CanonicalURL: "/pune/baner",
	}
	project := models.Entity{
		EntityType: models.TypeProject,
		ID:         "proj_godrej_woods",
		Name:       "Godrej Woods",
		CityID:     "city_noida",
	}
	builder := models.Entity{
		EntityType: models.TypeBuilder,
		ID:         "builder_dlf",
		Name:       "DLF",
	}
	ratePage := models.Entity{
		EntityType:   models.TypeRatePage,
		ID:           "rate_baner",
		CanonicalURL: "/pune/baner/property-rates",
	}

	tests := []struct {
		name        string
		entity      models.Entity
		parsed      models.ParsedQuery
		forceIntent models.Intent
		want        string
	}{
		{
			name:   "locality with filters",
			entity: locality,
			parsed: models.ParsedQuery{Intent: models.IntentRent, BHK: 2},
			want:   "/pune/baner/rent?bhk=2",
		},
		{
			name:   "locality without filters still gets segment",
			entity: locality,
			want:   "/pune/baner/buy",
		},
		{
			name:   "filter order is stable",
			entity: locality,
			parsed: models.ParsedQuery{
				BHK:          2,
				Status:       models.StatusReady,
				PropertyType: "apartment",
				MaxPrice:     5_000_000,
			},
			want: "/pune/baner/buy?bhk=2&status=ready&property_type=apartment&max_price=5000000",
		},
		{
			name:   "project routes through city listing",
			entity: project,
			parsed: models.ParsedQuery{BHK: 3},
			want:   "/noida/buy?project_id=proj_godrej_woods&bhk=3",
		},
		{
			name:   "builder without city scope",
			entity: builder,
			want:   "/buy?builder_id=builder_dlf",
		},
		{
			name:        "force intent overrides parse",
			entity:      locality,
			parsed:      models.ParsedQuery{Intent: models.IntentBuy},
			forceIntent: models.IntentRent,
			want:        "/pune/baner/rent",
		},
		{
			name:   "non-location entity keeps canonical url",
			entity: ratePage,
			want:   "/pune/baner/property-rates",
		},
		{
			name:   "builder id filter rides along",
			entity: locality,
			parsed: models.ParsedQuery{BuilderID: "builder_dlf"},
			want:   "/pune/baner/buy?builder_id=builder_dlf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildListingURL(tt.entity, tt.parsed, tt.forceIntent); got != tt.want {
				t.Errorf("BuildListingURL = %q, want %q", got, tt.want)
			}
		})
	}
}
