package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_Greeting_FallsBack(t *testing.T) {
	c := Default()

	dec := c.Classify("hello", "")
	assert.Equal(t, CapQA, dec.Capability)
	assert.Equal(t, 0, dec.Confidence)
	assert.True(t, dec.Fallback)
	assert.Empty(t, dec.MatchedRules)
	require.NotNil(t, dec.Params)
	assert.Empty(t, dec.Params)
}

func TestClassify_SiteAnalysisWithCoordinates(t *testing.T) {
	c := Default()

	dec := c.Classify("analyze site at 35.067482, -101.395466", "")
	assert.Equal(t, CapSurvey, dec.Capability)
	assert.GreaterOrEqual(t, dec.Confidence, 70)
	assert.Equal(t, 35.067482, dec.Params["lat"])
	assert.Equal(t, -101.395466, dec.Params["lon"])
	assert.Equal(t, "analysis", dec.Group)
	assert.Contains(t, dec.MatchedRules, "site-analysis")
}

func TestClassify_ExplicitDirectiveWinsOutright(t *testing.T) {
	c := Default()

	// The text would classify as site analysis; the directive overrides.
	dec := c.Classify("analyze site at 35.0, -101.3", "layout-design")
	assert.Equal(t, CapLayout, dec.Capability)
	assert.Equal(t, 100, dec.Confidence)
	assert.True(t, dec.Explicit)
	assert.Empty(t, dec.MatchedRules, "no pattern rule is consulted for an explicit directive")
}

func TestClassify_ExplicitDirectiveSkipsExtractors(t *testing.T) {
	called := false
	c := MustClassifier([]Group{{
		Name: "only",
		Rules: []Rule{{
			ID:         "everything",
			Capability: "cap-a",
			Pattern:    `.`,
			Confidence: 99,
			Extract: func(string) map[string]any {
				called = true
				return map[string]any{"x": 1}
			},
		}},
	}}, "fallback")

	dec := c.Classify("anything at all", "cap-b")
	assert.Equal(t, "cap-b", dec.Capability)
	assert.False(t, called, "extractors must not run when a directive is present")

	dec = c.Classify("anything at all", DirectiveAuto)
	assert.Equal(t, "cap-a", dec.Capability)
	assert.True(t, called, `"auto" means normal pattern evaluation`)
}

func TestClassify_FirstMatchingGroupWins(t *testing.T) {
	c := Default()

	// Matches both the wind-rose rule (workflows group) and the
	// geo-search rule (geography group); workflows has priority.
	dec := c.Classify("show the wind rose near Amarillo", "")
	assert.Equal(t, CapWindRose, dec.Capability)
	assert.Equal(t, "workflows", dec.Group)
}

func TestClassify_LowerGroupOrderIrrelevantOnceMatched(t *testing.T) {
	groups := []Group{
		{Name: "high", Rules: []Rule{{ID: "h", Capability: "high-cap", Pattern: `\balpha\b`, Confidence: 90}}},
		{Name: "low-a", Rules: []Rule{{ID: "a", Capability: "low-a-cap", Pattern: `\balpha\b`, Confidence: 50}}},
		{Name: "low-b", Rules: []Rule{{ID: "b", Capability: "low-b-cap", Pattern: `\balpha\b`, Confidence: 50}}},
	}
	swapped := []Group{groups[0], groups[2], groups[1]}

	c1 := MustClassifier(groups, "fb")
	c2 := MustClassifier(swapped, "fb")

	d1 := c1.Classify("alpha", "")
	d2 := c2.Classify("alpha", "")
	assert.Equal(t, d1.Capability, d2.Capability, "reordering lower groups must not change a higher-group match")
	assert.Equal(t, "high-cap", d1.Capability)
}

func TestClassify_CompanionTokenRequired(t *testing.T) {
	c := Default()

	// "rose" without "wind" anywhere must not fire the wind-rose rule.
	dec := c.Classify("draw a compass rose on the map", "")
	assert.NotEqual(t, CapWindRose, dec.Capability)

	dec = c.Classify("plot the wind rose for the site", "")
	assert.Equal(t, CapWindRose, dec.Capability)
}

func TestClassify_SpecificityBreaksTies(t *testing.T) {
	c := MustClassifier([]Group{{
		Name: "g",
		Rules: []Rule{
			{ID: "loose", Capability: "loose-cap", Pattern: `\bwake\b`, Confidence: 80},
			{ID: "tight", Capability: "tight-cap", Pattern: `\bwake\s+loss\s+analysis\b`, Confidence: 80},
		},
	}}, "fb")

	dec := c.Classify("run the wake loss analysis", "")
	assert.Equal(t, "tight-cap", dec.Capability, "more literal tokens wins")
	assert.ElementsMatch(t, []string{"loose", "tight"}, dec.MatchedRules)
}

func TestClassify_DeclarationOrderBreaksEqualSpecificity(t *testing.T) {
	c := MustClassifier([]Group{{
		Name: "g",
		Rules: []Rule{
			{ID: "first", Capability: "first-cap", Pattern: `\bdelta\b`, Confidence: 70},
			{ID: "second", Capability: "second-cap", Pattern: `\bdelta\b`, Confidence: 70},
		},
	}}, "fb")

	dec := c.Classify("delta", "")
	assert.Equal(t, "first-cap", dec.Capability)
}

func TestClassify_TurbineStatusBeatsOpenQuestion(t *testing.T) {
	c := Default()

	// Starts like a question but names a turbine; the analysis group is
	// consulted before the questions group.
	dec := c.Classify("what is the status of wtg 12?", "")
	assert.Equal(t, CapTurbine, dec.Capability)
	assert.Equal(t, "WTG-012", dec.Params["unit_id"])
}

func TestClassify_OpenQuestion(t *testing.T) {
	c := Default()

	dec := c.Classify("how do capacity factors work?", "")
	assert.Equal(t, CapQA, dec.Capability)
	assert.Equal(t, 60, dec.Confidence)
	assert.Equal(t, "questions", dec.Group)
	assert.False(t, dec.Fallback, "a matched Q&A rule is not the fallback")
}

func TestClassify_FeasibilityWorkflow(t *testing.T) {
	c := Default()

	dec := c.Classify("run a full feasibility study at 35.067482, -101.395466 for 120 MW", "")
	assert.Equal(t, CapFeasibility, dec.Capability)
	assert.Equal(t, "workflows", dec.Group)
	assert.Equal(t, 35.067482, dec.Params["lat"])
	assert.Equal(t, 120.0, dec.Params["capacity_mw"])
}

func TestClassify_GeoSearch(t *testing.T) {
	c := Default()

	dec := c.Classify("find candidate sites near Lubbock", "")
	assert.Equal(t, CapGeoSearch, dec.Capability)
	assert.Equal(t, "Lubbock", dec.Params["place"])
}

func TestClassify_CaseInsensitive(t *testing.T) {
	c := Default()

	dec := c.Classify("ANALYZE SITE AT 35.067482, -101.395466", "")
	assert.Equal(t, CapSurvey, dec.Capability)
}

func TestClassify_NeverErrors(t *testing.T) {
	c := Default()

	for _, text := range []string{"", "   ", "????", "🌬️", "wtg", "rose"} {
		dec := c.Classify(text, "")
		assert.NotEmpty(t, dec.Capability, "input %q", text)
		assert.NotNil(t, dec.Params, "input %q", text)
	}
}

func TestNewClassifier_RejectsBadPattern(t *testing.T) {
	_, err := NewClassifier([]Group{{
		Name:  "g",
		Rules: []Rule{{ID: "bad", Capability: "c", Pattern: `([`}},
	}}, "fb")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}

func TestNewClassifier_RequiresFallback(t *testing.T) {
	_, err := NewClassifier(nil, "")
	require.Error(t, err)
}

func TestCountLiteralTokens(t *testing.T) {
	cases := []struct {
		pattern string
		want    int
	}{
		{`\brose\b`, 1},
		{`\bwake\s+loss\s+analysis\b`, 3},
		{`\b(wtg|mast|turbine)[\s#-]*\d{1,4}\b`, 3},
		{`.`, 0},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, countLiteralTokens(tc.pattern), "pattern %q", tc.pattern)
	}
}
