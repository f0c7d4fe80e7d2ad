package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrigramSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "sarah", "sarah", 1},
		{"case insensitive", "Sarah", "sarah", 1},
		{"disjoint", "sarah", "bob", 0},
		{"empty query", "", "sarah", 0},
		{"both empty", "", "", 0},
		{"punctuation only", "---", "sarah", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, trigramSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestTrigramSimilarity_Prefix(t *testing.T) {
	// "sara" yields {"  s", " sa", "sar", "ara", "ra "}; "sarah-chen"
	// splits into two words and yields 11 trigrams, 4 of them shared.
	got := trigramSimilarity("sara", "sarah-chen")
	assert.InDelta(t, 4.0/12.0, got, 1e-9)

	// Above the default cutoff, far below a strict one.
	assert.GreaterOrEqual(t, got, 0.3)
	assert.Less(t, got, 0.9)
}

func TestTrigramSimilarity_Symmetric(t *testing.T) {
	assert.Equal(t, trigramSimilarity("sarah chen", "chen sarah"), 1.0)
	assert.Equal(t,
		trigramSimilarity("sara", "sarah-chen"),
		trigramSimilarity("sarah-chen", "sara"),
	)
}

func TestTrigrams(t *testing.T) {
	set := trigrams("ab")
	// "  a", " ab", "ab "
	assert.Len(t, set, 3)
	assert.Contains(t, set, "  a")
	assert.Contains(t, set, " ab")
	assert.Contains(t, set, "ab ")
}

func TestSplitWords(t *testing.T) {
	assert.Equal(t, []string{"sarah", "chen"}, splitWords("Sarah-Chen"))
	assert.Equal(t, []string{"acme", "corp", "2024"}, splitWords("ACME corp. 2024!"))
	assert.Empty(t, splitWords("..."))
}
