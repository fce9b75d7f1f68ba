package resolver

import (
	"testing"

	"github.com/homequest/realestate-search/internal/models"
)

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"Baner", "baner"},
		{"  2  BHK   In Baner ", "2 bhk in baner"},
		{"Godrej\tWoods", "godrej woods"},
	}
	for _, tt := range tests {
		if got := NormalizeQuery(tt.in); got != tt.want {
			t.Errorf("NormalizeQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParse_ConstraintExtraction(t *testing.T) {
	qp := NewQueryParser()

	tests := []struct {
		name  string
		query string
		check func(t *testing.T, p models.ParsedQuery)
	}{
		{
			name:  "bhk and property type with locality",
			query: "2 BHK flat in Baner",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.BHK != 2 {
					t.Errorf("BHK = %d, want 2", p.BHK)
				}
				if p.PropertyType != "apartment" {
					t.Errorf("PropertyType = %q, want apartment", p.PropertyType)
				}
				if p.LocalityHint != "baner" {
					t.Errorf("LocalityHint = %q, want baner", p.LocalityHint)
				}
				if p.PageIntent != models.PageIntentListing {
					t.Errorf("PageIntent = %q, want listing", p.PageIntent)
				}
				if p.LocationQuery != "baner" {
					t.Errorf("LocationQuery = %q, want baner", p.LocationQuery)
				}
			},
		},
		{
			name:  "sale budget in lakhs",
			query: "flat under 50L in Pune",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.MaxPrice != 5_000_000 {
					t.Errorf("MaxPrice = %d, want 5000000", p.MaxPrice)
				}
				if p.MinRent != 0 || p.MaxRent != 0 {
					t.Errorf("rent bounds set on a sale query: %d/%d", p.MinRent, p.MaxRent)
				}
				if p.LocalityHint != "pune" {
					t.Errorf("LocalityHint = %q, want pune", p.LocalityHint)
				}
			},
		},
		{
			name:  "bare number reads as lakhs",
			query: "flat under 50",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.MaxPrice != 5_000_000 {
					t.Errorf("MaxPrice = %d, want 5000000", p.MaxPrice)
				}
			},
		},
		{
			name:  "rent context routes budget to rent bounds",
			query: "office above 20k rent in Baner",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.Intent != models.IntentRent {
					t.Errorf("Intent = %q, want rent", p.Intent)
				}
				if p.MinRent != 20_000 {
					t.Errorf("MinRent = %d, want 20000", p.MinRent)
				}
				if p.MinPrice != 0 {
					t.Errorf("MinPrice = %d, want 0", p.MinPrice)
				}
				if p.PropertyType != "office" {
					t.Errorf("PropertyType = %q, want office", p.PropertyType)
				}
			},
		},
		{
			name:  "between range with mixed units",
			query: "flat between 50l and 1cr in Baner",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.MinPrice != 5_000_000 {
					t.Errorf("MinPrice = %d, want 5000000", p.MinPrice)
				}
				if p.MaxPrice != 10_000_000 {
					t.Errorf("MaxPrice = %d, want 10000000", p.MaxPrice)
				}
			},
		},
		{
			name:  "between range with literal rupee amounts",
			query: "flat between 300000 and 500000",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.MinPrice != 300_000 {
					t.Errorf("MinPrice = %d, want 300000", p.MinPrice)
				}
				if p.MaxPrice != 500_000 {
					t.Errorf("MaxPrice = %d, want 500000", p.MaxPrice)
				}
			},
		},
		{
			name:  "between range with small bare numbers reads as lakhs",
			query: "flat between 50 and 80 in Baner",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.MinPrice != 5_000_000 {
					t.Errorf("MinPrice = %d, want 5000000", p.MinPrice)
				}
				if p.MaxPrice != 8_000_000 {
					t.Errorf("MaxPrice = %d, want 8000000", p.MaxPrice)
				}
			},
		},
		{
			name:  "between range leading unit carries to second bound",
			query: "flat between 50l and 80 in Baner",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.MinPrice != 5_000_000 {
					t.Errorf("MinPrice = %d, want 5000000", p.MinPrice)
				}
				if p.MaxPrice != 8_000_000 {
					t.Errorf("MaxPrice = %d, want 8000000", p.MaxPrice)
				}
			},
		},
		{
			name:  "plural unit spelling",
			query: "villa under 2 crores in Pune",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.MaxPrice != 20_000_000 {
					t.Errorf("MaxPrice = %d, want 20000000", p.MaxPrice)
				}
				if p.LocalityHint != "pune" {
					t.Errorf("LocalityHint = %q, want pune", p.LocalityHint)
				}
			},
		},
		{
			name:  "status and fractional crore budget",
			query: "ready to move 3bhk villa in Pune under 1.5cr",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.Status != models.StatusReady {
					t.Errorf("Status = %q, want ready", p.Status)
				}
				if p.BHK != 3 {
					t.Errorf("BHK = %d, want 3", p.BHK)
				}
				if p.PropertyType != "villa" {
					t.Errorf("PropertyType = %q, want villa", p.PropertyType)
				}
				if p.MaxPrice != 15_000_000 {
					t.Errorf("MaxPrice = %d, want 15000000", p.MaxPrice)
				}
				if p.LocalityHint != "pune" {
					t.Errorf("LocalityHint = %q, want pune", p.LocalityHint)
				}
			},
		},
		{
			name:  "builder floor does not false match apartment",
			query: "builder floor in Saket",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.PropertyType != "builder_floor" {
					t.Errorf("PropertyType = %q, want builder_floor", p.PropertyType)
				}
			},
		},
		{
			name:  "projects by form",
			query: "projects by DLF in Noida",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.BuilderHint != "dlf" {
					t.Errorf("BuilderHint = %q, want dlf", p.BuilderHint)
				}
				if p.LocalityHint != "noida" {
					t.Errorf("LocalityHint = %q, want noida", p.LocalityHint)
				}
			},
		},
		{
			name:  "builder prefix form",
			query: "dlf projects in Gurgaon",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.BuilderHint != "dlf" {
					t.Errorf("BuilderHint = %q, want dlf", p.BuilderHint)
				}
			},
		},
		{
			name:  "rate page intent strips rate vocabulary from location",
			query: "Baner property rates",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.PageIntent != models.PageIntentRate {
					t.Errorf("PageIntent = %q, want rate_page", p.PageIntent)
				}
				if p.LocationQuery != "baner" {
					t.Errorf("LocationQuery = %q, want baner", p.LocationQuery)
				}
			},
		},
		{
			name:  "plain entity query carries no constraints",
			query: "Godrej Woods",
			check: func(t *testing.T, p models.ParsedQuery) {
				if p.PageIntent != "" || p.Intent != "" || p.BHK != 0 {
					t.Errorf("unexpected constraints: %+v", p)
				}
				if p.LocationQuery != "godrej woods" {
					t.Errorf("LocationQuery = %q, want godrej woods", p.LocationQuery)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := qp.Parse(tt.query)
			if p.RawQuery != tt.query {
				t.Errorf("RawQuery = %q, want %q", p.RawQuery, tt.query)
			}
			tt.check(t, p)
		})
	}
}

func TestIsConstraintHeavy(t *testing.T) {
	qp := NewQueryParser()

	heavy := []string{
		"2 bhk in baner",
		"flat under 50l",
		"rent in baner",
		"projects by dlf in noida",
	}
	for _, q := range heavy {
		if !IsConstraintHeavy(qp.Parse(q)) {
			t.Errorf("IsConstraintHeavy(%q) = false, want true", q)
		}
	}

	light := []string{
		"godrej woods",
		"baner property rates",
		"baner overview",
	}
	for _, q := range light {
		if IsConstraintHeavy(qp.Parse(q)) {
			t.Errorf("IsConstraintHeavy(%q) = true, want false", q)
		}
	}
}

func TestMoneyToRupees(t *testing.T) {
	tests := []struct {
		amount string
		unit   string
		want   int64
	}{
		{"50", "l", 5_000_000},
		{"1", "cr", 10_000_000},
		{"1.5", "cr", 15_000_000},
		{"2", "crores", 20_000_000},
		{"75", "lacs", 7_500_000},
		{"20", "k", 20_000},
		{"50", "", 5_000_000},
		{"5000000", "", 5_000_000},
	}
	for _, tt := range tests {
		if got := moneyToRupees(tt.amount, tt.unit); got != tt.want {
			t.Errorf("moneyToRupees(%q, %q) = %d, want %d", tt.amount, tt.unit, got, tt.want)
		}
	}
}
