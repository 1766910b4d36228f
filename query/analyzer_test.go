package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/estate-agent/catalogue"
	"github.com/fabfab/estate-agent/query"
)

func newAnalyzer() *query.Analyzer {
	return query.NewAnalyzer(catalogue.Default())
}

func TestDetailLevelPrecedence(t *testing.T) {
	analyzer := newAnalyzer()

	cases := map[string]query.DetailLevel{
		"my budget is 50 lakh":                 query.DetailDetailed,
		"show me flats under 80 lakh":          query.DetailDetailed,
		"list all 2bhk apartments":             query.DetailBrief,
		"tell me about apartment amenities":    query.DetailDetailed,
		"give me an overview of Baner":         query.DetailBrief,
		"find villas in Kothrud":               query.DetailBrief,
		"which society has a swimming pool":    query.DetailDetailed,
		"villas near the ring road":            query.DetailBrief,
		"Tell me about Evergreen Heights":      query.DetailDetailed,
		"Show me properties in Wakad":          query.DetailBrief,
		"what does the floor plan look like?":  query.DetailDetailed,
		"quick specifications for Blue Ridge": query.DetailDetailed,
	}

	for q, want := range cases {
		assert.Equal(t, want, analyzer.DetailLevel(q), q)
	}
}

func TestLocationsFollowCatalogueOrder(t *testing.T) {
	analysis := newAnalyzer().Analyze("2 BHK in Wakad or Baner")
	assert.Equal(t, []string{"Baner", "Wakad"}, analysis.Locations)
}

func TestActionPicksFirstCatalogueMatch(t *testing.T) {
	analyzer := newAnalyzer()

	assert.Equal(t, query.ActionRent, analyzer.Analyze("flats to rent in Aundh").Action)
	assert.Equal(t, query.ActionBuy, analyzer.Analyze("I want to purchase a villa").Action)
	assert.Equal(t, query.ActionSell, analyzer.Analyze("help me sell my flat").Action)
	assert.Equal(t, query.ActionGeneral, analyzer.Analyze("my parent lives in Baner").Action)
}

func TestGuidanceNeedsAreASet(t *testing.T) {
	analysis := newAnalyzer().Analyze("Compare home loan EMI options and RERA approval process")
	assert.Equal(t, []query.GuidanceNeed{query.GuidanceFinancing, query.GuidancePolicy, query.GuidanceComparison}, analysis.GuidanceNeeds)
	assert.True(t, analysis.HasGuidance(query.GuidancePolicy))
	assert.False(t, analysis.HasGuidance(query.GuidanceEligibility))

	assert.Empty(t, newAnalyzer().Analyze("villas in Baner").GuidanceNeeds)
}

func TestBedrooms(t *testing.T) {
	assert.Equal(t, "2 BHK", query.Bedrooms("list all 2bhk apartments"))
	assert.Equal(t, "1.5 BHK", query.Bedrooms("1.5 BHK in Wakad"))
	assert.Equal(t, "3 BHK", query.Bedrooms("3-bhk flats"))
	assert.Equal(t, "", query.Bedrooms("villas in Baner"))
}

func TestPriceNormalisation(t *testing.T) {
	cases := []struct {
		query    string
		min, max float64
	}{
		{"between 30 and 1 crore", 30, 100},
		{"1 crore or 40 lakh", 40, 100},
		{"my budget is 50 lakh", 50, 50},
		{"from 1 to 2 crore", 100, 200},
		{"50 to 80 lakhs", 50, 80},
		{"1.5 Cr villas", 150, 150},
	}

	for _, tc := range cases {
		price := query.Price(tc.query)
		require.NotNil(t, price.Min, tc.query)
		require.NotNil(t, price.Max, tc.query)
		assert.InDelta(t, tc.min, *price.Min, 1e-9, tc.query)
		assert.InDelta(t, tc.max, *price.Max, 1e-9, tc.query)
	}

	assert.True(t, query.Price("2 BHK in Wakad").IsZero())
}

func TestEnhancedQuery(t *testing.T) {
	analyzer := newAnalyzer()

	analysis := analyzer.Analyze("2 BHK apartment to rent in Wakad")
	assert.Equal(t, "2 BHK properties apartment for rent in Wakad", analysis.Enhanced)

	plain := analyzer.Analyze("Tell me about Evergreen Heights")
	assert.Equal(t, "Tell me about Evergreen Heights", plain.Enhanced)
}

func TestConfigurationsAndAmounts(t *testing.T) {
	text := "2 BHK from ₹85 Lakh, 3BHK at Rs. 1.2 Cr, 2 bhk garden units"
	assert.Equal(t, []string{"2 BHK", "3 BHK"}, query.Configurations(text))
	assert.InDeltaSlice(t, []float64{85, 120}, query.Amounts(text), 1e-9)

	price := query.Price("2 BHK from ₹85 Lakh to ₹1.2 Cr")
	require.NotNil(t, price.Min)
	assert.InDelta(t, 85, *price.Min, 1e-9)
	assert.InDelta(t, 120, *price.Max, 1e-9)
}
