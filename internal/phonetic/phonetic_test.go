package phonetic_test

import (
	"testing"

	"github.com/MrWong99/tradeledger/internal/phonetic"
)

var attributes = []string{"Mending", "Sharpness", "Silk Touch", "Fortune", "Unbreaking"}

func TestMatcher_Misspelling(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	tests := []struct {
		query string
		want  string
	}{
		{"mendng", "Mending"},
		{"sharpnes", "Sharpness"},
		{"fortun", "Fortune"},
		{"unbraking", "Unbreaking"},
	}
	for _, tc := range tests {
		got, ok := m.Best(tc.query, attributes)
		if !ok {
			t.Errorf("Best(%q): no match, want %q", tc.query, tc.want)
			continue
		}
		if got.Text != tc.want {
			t.Errorf("Best(%q) = %q, want %q", tc.query, got.Text, tc.want)
		}
		if got.Score < 0.7 {
			t.Errorf("Best(%q) score = %f, want >= 0.7", tc.query, got.Score)
		}
	}
}

func TestMatcher_SubstringScoresOne(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	got, ok := m.Best("silk", attributes)
	if !ok || got.Text != "Silk Touch" || got.Score != 1 {
		t.Errorf("Best(\"silk\") = %+v, %v; want Silk Touch with score 1", got, ok)
	}
}

func TestMatcher_RegistryKeyTokens(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	score, _, ok := m.Score("silk touch", "minecraft:silk_touch")
	if !ok {
		t.Errorf("Score(silk touch, minecraft:silk_touch) = %f, not accepted", score)
	}
}

func TestMatcher_NoMatch(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	if got, ok := m.Best("xyzzy", attributes); ok {
		t.Errorf("Best(\"xyzzy\") = %+v, want no match", got)
	}
	if got := m.Rank("", attributes); len(got) != 0 {
		t.Errorf("Rank(\"\") = %v, want empty", got)
	}
}

func TestMatcher_RankOrder(t *testing.T) {
	t.Parallel()

	m := phonetic.New()
	ranked := m.Rank("mending", []string{"Sharpness", "Mending", "Mending"})
	if len(ranked) != 2 {
		t.Fatalf("len(Rank) = %d, want 2", len(ranked))
	}
	if ranked[0].Index != 1 || ranked[1].Index != 2 {
		t.Errorf("equal scores should keep input order, got indexes %d, %d", ranked[0].Index, ranked[1].Index)
	}
}

func TestMatcher_CustomThresholds(t *testing.T) {
	t.Parallel()

	strict := phonetic.New(phonetic.WithPhoneticThreshold(0.999), phonetic.WithFuzzyThreshold(0.999))
	if _, ok := strict.Best("mendng", attributes); ok {
		t.Error("strict matcher accepted a misspelling")
	}
}
