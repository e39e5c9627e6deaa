package attributes

import (
	"regexp"
	"strings"

	"github.com/zatekoja/clinicalorders/internal/vocabulary"
)

var (
	genericPharmacy = regexp.MustCompile(`(?i)\b(?:send|sent|call|e-?prescribe|to|at)\s+(?:it\s+|them\s+|that\s+|everything\s+)?(?:to\s+)?(?:the\s+)?([A-Za-z][A-Za-z'&-]*(?:\s+[A-Za-z][A-Za-z'&-]*){0,2})\s+pharmacy\b`)
	genericLab      = regexp.MustCompile(`(?i)\bat\s+(?:the\s+)?([A-Za-z][A-Za-z'&-]*(?:\s+[A-Za-z][A-Za-z'&-]*){0,2})\s+lab(?:oratory)?\b`)
	genericStop     = map[string]bool{"the": true, "a": true, "his": true, "her": true, "their": true, "usual": true, "same": true, "local": true, "preferred": true, "your": true, "my": true}
)

type placeMatcher struct {
	pattern *regexp.Regexp
	display string
}

// Extractor holds the vocabulary-backed extractors: pharmacy, lab location and indication.
type Extractor struct {
	pharmacies  []placeMatcher
	locations   []placeMatcher
	indications *regexp.Regexp
	display     map[string]string
}

// NewExtractor compiles the closed lists of vocab into matchers.
func NewExtractor(vocab *vocabulary.Vocabulary) *Extractor {
	x := &Extractor{
		pharmacies: compilePlaces(vocab.Pharmacies()),
		locations:  compilePlaces(vocab.LabLocations()),
		display:    make(map[string]string),
	}
	if inds := vocab.Indications(); len(inds) > 0 {
		alts := make([]string, len(inds))
		for i, ind := range inds {
			alts[i] = regexp.QuoteMeta(ind)
		}
		x.indications = regexp.MustCompile(`(?i)\bfor\s+(?:(?:his|her|their|the|a)\s+)?(` + strings.Join(alts, "|") + `)\b`)
	}
	return x
}

func compilePlaces(terms []vocabulary.Term) []placeMatcher {
	out := make([]placeMatcher, 0, len(terms))
	for _, t := range terms {
		out = append(out, placeMatcher{
			pattern: regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(t.Key) + `\b`),
			display: t.Display,
		})
	}
	return out
}

// Pharmacy searches each window in turn (drug window, sentence, whole transcript) for a
// known chain, then for a generic "send to X pharmacy".
func (x *Extractor) Pharmacy(windows ...string) string {
	for _, w := range windows {
		if name := firstPlace(x.pharmacies, w); name != "" {
			return name
		}
		if sub := genericPharmacy.FindStringSubmatch(w); sub != nil {
			if name := cleanPlace(sub[1]); name != "" {
				return name + " Pharmacy"
			}
		}
	}
	return ""
}

// LabLocation searches each window for a known lab or a generic "at X lab".
func (x *Extractor) LabLocation(windows ...string) string {
	for _, w := range windows {
		if name := firstPlace(x.locations, w); name != "" {
			return name
		}
		if sub := genericLab.FindStringSubmatch(w); sub != nil {
			if name := cleanPlace(sub[1]); name != "" {
				return name + " Lab"
			}
		}
	}
	return ""
}

// Indication returns the condition named in "for <indication>".
func (x *Extractor) Indication(window string) string {
	if x.indications == nil {
		return ""
	}
	sub := x.indications.FindStringSubmatch(window)
	if sub == nil {
		return ""
	}
	return strings.ToLower(sub[1])
}

// firstPlace returns the place mentioned earliest in text.
func firstPlace(places []placeMatcher, text string) string {
	best, bestAt := "", -1
	for _, p := range places {
		if loc := p.pattern.FindStringIndex(text); loc != nil && (bestAt < 0 || loc[0] < bestAt) {
			best, bestAt = p.display, loc[0]
		}
	}
	return best
}

func cleanPlace(raw string) string {
	var kept []string
	for _, w := range strings.Fields(raw) {
		if genericStop[strings.ToLower(w)] {
			continue
		}
		kept = append(kept, strings.ToUpper(w[:1])+strings.ToLower(w[1:]))
	}
	return strings.Join(kept, " ")
}
