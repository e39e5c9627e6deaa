package normalize

import (
	"strings"
	"unicode"

	"github.com/zatekoja/clinicalorders/internal/vocabulary"
)

// leakedTokens are command, article and qualifier words that lazy captures drag along
// with a lab name.
var leakedTokens = map[string]bool{
	"order": true, "ordering": true, "ordered": true, "get": true, "getting": true,
	"check": true, "checking": true, "draw": true, "drawing": true, "obtain": true,
	"repeat": true, "recheck": true, "run": true, "send": true, "collect": true,
	"a": true, "an": true, "the": true, "some": true, "his": true, "her": true, "their": true,
	"also": true, "and": true, "please": true, "let's": true, "lets": true, "we'll": true,
	"me": true, "us": true, "him": true, "them": true, "new": true,
	"stat": true, "urgent": true, "routine": true, "fasting": true,
	"pharmacy": true, "lab": true, "at": true, "to": true, "for": true,
}

// Normalizer canonicalizes drug and lab names against a vocabulary.
type Normalizer struct {
	vocab      *vocabulary.Vocabulary
	placeWords map[string]bool
}

// NewNormalizer creates a normalizer bound to vocab.
func NewNormalizer(vocab *vocabulary.Vocabulary) *Normalizer {
	places := make(map[string]bool)
	for _, terms := range [][]vocabulary.Term{vocab.Pharmacies(), vocab.LabLocations()} {
		for _, t := range terms {
			for _, w := range strings.Fields(t.Key) {
				places[w] = true
			}
		}
	}
	return &Normalizer{vocab: vocab, placeWords: places}
}

// Vocabulary returns the reference tables the normalizer was built with.
func (n *Normalizer) Vocabulary() *vocabulary.Vocabulary {
	return n.vocab
}

// CanonicalizeDrugName maps a spoken drug name to its canonical vocabulary name. Names
// outside the vocabulary are accepted when they carry a known pharmacologic suffix and
// are not part of a lab name.
func (n *Normalizer) CanonicalizeDrugName(raw string) (string, bool) {
	cleaned := cleanDrugName(raw)
	if name, ok := n.KnownDrugName(cleaned); ok {
		return name, true
	}
	if cleaned == "" || strings.Contains(cleaned, " ") || n.vocab.IsLabWord(cleaned) {
		return "", false
	}
	if n.vocab.HasDrugSuffix(cleaned) {
		return titleWord(cleaned), true
	}
	return "", false
}

// KnownDrugName resolves raw only against the drug vocabulary.
func (n *Normalizer) KnownDrugName(raw string) (string, bool) {
	cleaned := cleanDrugName(raw)
	if cleaned == "" {
		return "", false
	}
	return n.vocab.LookupDrug(cleaned)
}

func cleanDrugName(raw string) string {
	return strings.ToLower(trimPunct(strings.TrimSpace(raw)))
}

// CanonicalizeTestName cleans a captured lab phrase and returns its display name.
func (n *Normalizer) CanonicalizeTestName(raw string) (string, bool) {
	var kept []string
	for _, w := range strings.Fields(strings.ToLower(raw)) {
		w = trimPunct(w)
		if w == "" || leakedTokens[w] || n.placeWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	phrase := strings.Join(kept, " ")
	if phrase == "" {
		return "", false
	}

	if name, ok := n.vocab.LookupLab(phrase); ok {
		return name, true
	}
	if len(phrase) < 2 && !n.vocab.IsAbbreviation(phrase) {
		return "", false
	}
	if n.vocab.IsGenericLabWord(phrase) {
		return "", false
	}
	if _, ok := n.vocab.LookupDrug(phrase); ok || n.vocab.ContainsDrugWord(phrase) {
		return "", false
	}
	for _, w := range kept {
		if n.vocab.HasDrugSuffix(w) {
			return "", false
		}
	}
	return titleCase(phrase, raw), true
}

func trimPunct(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) && r != '/' && r != '-' && r != '\''
	})
}

func titleWord(w string) string {
	if w == "" {
		return w
	}
	r := []rune(w)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// titleCase capitalizes each word, keeping acronyms (short words, words with digits,
// words the speaker wrote in capitals) upper case.
func titleCase(phrase, raw string) string {
	upper := make(map[string]bool)
	for _, w := range strings.Fields(raw) {
		w = trimPunct(w)
		if len(w) > 1 && w == strings.ToUpper(w) && strings.ToLower(w) != w {
			upper[strings.ToLower(w)] = true
		}
	}

	words := strings.Fields(phrase)
	for i, w := range words {
		switch {
		case upper[w], len(w) <= 3 && w != "of" && w != "and", strings.ContainsAny(w, "0123456789"):
			words[i] = strings.ToUpper(w)
		default:
			words[i] = titleWord(w)
		}
	}
	return strings.Join(words, " ")
}
