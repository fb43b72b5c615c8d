package textmetrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJaccardSimilarity(t *testing.T) {
	cases := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "καλημέρα σας", "καλημέρα σας", 1.0},
		{"disjoint", "ένα δύο", "τρία τέσσερα", 0.0},
		{"partial overlap", "το γρήγορο καφέ αλεπού", "το γρήγορο καφέ σκυλί", 0.6},
		{"case insensitive", "Καλημέρα", "καλημέρα", 1.0},
		{"both empty", "", "", 1.0},
		{"one empty", "λέξη", "", 0.0},
		{"duplicates collapse", "ναι ναι ναι", "ναι", 1.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, JaccardSimilarity(tc.a, tc.b), 1e-9)
		})
	}
}

func TestWordErrorRate(t *testing.T) {
	cases := []struct {
		name     string
		ref, hyp string
		want     float64
	}{
		{"identical", "ένα δύο τρία", "ένα δύο τρία", 0.0},
		{"one substitution", "ένα δύο τρία τέσσερα", "ένα δύο πέντε τέσσερα", 0.25},
		{"one deletion", "ένα δύο τρία", "ένα δύο", 1.0 / 3.0},
		{"one insertion", "ένα δύο", "ένα δύο τρία", 0.5},
		{"empty reference", "", "ένα", 1.0},
		{"both empty", "", "", 0.0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, WordErrorRate(tc.ref, tc.hyp), 1e-9)
		})
	}
}

func TestCharacterErrorRate(t *testing.T) {
	// Rune-based: Greek characters count as one each.
	assert.InDelta(t, 0.0, CharacterErrorRate("αβγ", "αβγ"), 1e-9)
	assert.InDelta(t, 1.0/3.0, CharacterErrorRate("αβγ", "αβδ"), 1e-9)
	assert.InDelta(t, 1.0, CharacterErrorRate("", "α"), 1e-9)
	assert.InDelta(t, 0.0, CharacterErrorRate("", ""), 1e-9)
}
