package textmetrics

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// JaccardSimilarity computes the word-level Jaccard similarity between
// two texts: |intersection| / |union| of their lowercased word sets.
// Two empty texts are considered identical (1.0).
func JaccardSimilarity(a, b string) float64 {
	setA := wordSet(a)
	setB := wordSet(b)

	if len(setA) == 0 && len(setB) == 0 {
		return 1.0
	}

	intersection := 0
	for w := range setA {
		if _, ok := setB[w]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		set[w] = struct{}{}
	}
	return set
}

// WordErrorRate computes the WER of hypothesis against reference:
// (substitutions + insertions + deletions) / reference word count.
// An empty reference with a non-empty hypothesis is reported as 1.0
// since normalization is undefined.
func WordErrorRate(reference, hypothesis string) float64 {
	refWords := strings.Fields(reference)
	hypWords := strings.Fields(hypothesis)

	if len(refWords) == 0 {
		if len(hypWords) == 0 {
			return 0.0
		}
		return 1.0
	}

	options := levenshtein.Options{
		InsCost: 1,
		DelCost: 1,
		SubCost: 1,
		Matches: func(sourceItem, targetItem rune) bool {
			return sourceItem == targetItem
		},
	}

	// The library operates on runes; encode each distinct word as a
	// distinct rune so word equality becomes rune equality.
	codes := make(map[string]rune)
	distance := levenshtein.DistanceForStrings(wordsToRunes(refWords, codes), wordsToRunes(hypWords, codes), options)
	return float64(distance) / float64(len(refWords))
}

// CharacterErrorRate computes the CER of hypothesis against reference,
// operating on runes.
func CharacterErrorRate(reference, hypothesis string) float64 {
	refRunes := []rune(reference)
	hypRunes := []rune(hypothesis)

	if len(refRunes) == 0 {
		if len(hypRunes) == 0 {
			return 0.0
		}
		return 1.0
	}

	options := levenshtein.Options{
		InsCost: 1,
		DelCost: 1,
		SubCost: 1,
		Matches: func(sourceItem, targetItem rune) bool {
			return sourceItem == targetItem
		},
	}

	distance := levenshtein.DistanceForStrings(refRunes, hypRunes, options)
	return float64(distance) / float64(len(refRunes))
}

func wordsToRunes(words []string, codes map[string]rune) []rune {
	out := make([]rune, len(words))
	for i, w := range words {
		code, ok := codes[w]
		if !ok {
			code = rune(len(codes))
			codes[w] = code
		}
		out[i] = code
	}
	return out
}
