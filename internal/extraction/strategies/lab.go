package strategies

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/zatekoja/clinicalorders/internal/extraction/normalize"
	"github.com/zatekoja/clinicalorders/internal/extraction/segment"
)

const (
	StrategyExplicitOrder = "explicit_order"
	StrategyLetsCapture   = "lets_capture"
	StrategyAbbreviation  = "abbreviation_scan"
	StrategyLabVocabulary = "lab_vocabulary_scan"
	StrategyFreeText      = "free_text"
)

var (
	// captureEnd marks where a lazily captured list of tests stops.
	captureEnd = regexp.MustCompile(`(?i)(?:[;:]|,\s*(?:and\s+)?(?:then\s+)?(?:start|stop|continue|refill|increase|decrease|send|we|i|he|she|let's|also|stat)\b|\s(?:for|in|today|tomorrow|next|at|before|prior|by|this|to|so|because|if|when|which|that|please|urgently|asap|with\s+(?:his|her|the)\s+next)\b)`)

	// freeTextCues are the verbs strong enough to accept an unknown test name.
	freeTextCues = map[string]bool{"order": true, "ordering": true, "draw": true, "obtain": true, "send off": true, "send out": true}
)

// captureStrategy reads the text after an order cue up to a terminator and decomposes
// it into individual tests.
type captureStrategy struct {
	name       string
	normalizer *normalize.Normalizer
	cue        *regexp.Regexp
	confidence float64
	freeText   bool
}

func newExplicitOrderCapture(n *normalize.Normalizer) *captureStrategy {
	return &captureStrategy{
		name:       StrategyExplicitOrder,
		normalizer: n,
		cue:        regexp.MustCompile(`(?i)\b(order|ordering|check|checking|draw|drawing|get|getting|obtain|repeat|recheck|run|send\s+off|send\s+out|collect)\b`),
		confidence: 0.9,
		freeText:   true,
	}
}

func newLetsCapture(n *normalize.Normalizer) *captureStrategy {
	return &captureStrategy{
		name:       StrategyLetsCapture,
		normalizer: n,
		cue:        regexp.MustCompile(`(?i)\b(?:let's|lets|let\s+us|we'll|we\s+will|i'll|i\s+will|we\s+should|i'd\s+like\s+to|i\s+want\s+to)\s+(?:also\s+)?(?:go\s+ahead\s+and\s+)?(?:get|check|draw|order|run|do|repeat|recheck|obtain|send)?\b`),
		confidence: 0.85,
	}
}

func (s *captureStrategy) Name() string { return s.name }

func (s *captureStrategy) Match(seg segment.Segment) []LabMatch {
	text := seg.Text
	var out []LabMatch
	for _, loc := range s.cue.FindAllStringSubmatchIndex(text, -1) {
		start := loc[1]
		end := len(text)
		if t := captureEnd.FindStringIndex(text[start:]); t != nil {
			end = start + t[0]
		}
		if end <= start {
			continue
		}

		found := Decompose(s.normalizer, text[start:end], start)
		for i := range found {
			found[i].Strategy = s.name
			found[i].Confidence = s.confidence
		}
		if len(found) == 0 && s.freeText && len(loc) >= 4 && loc[2] >= 0 {
			verb := strings.ToLower(strings.Join(strings.Fields(text[loc[2]:loc[3]]), " "))
			if freeTextCues[verb] {
				if m, ok := s.freeTextTest(text, start, end); ok {
					found = append(found, m)
				}
			}
		}
		out = append(out, found...)
	}
	return out
}

// freeTextTest accepts a short capture that the vocabulary does not know ("order an ESR").
func (s *captureStrategy) freeTextTest(text string, start, end int) (LabMatch, bool) {
	chunk := text[start:end]
	if i := strings.IndexAny(chunk, ","); i >= 0 {
		chunk = chunk[:i]
	}
	trimmed := strings.TrimSpace(chunk)
	if trimmed == "" || len(strings.Fields(trimmed)) > 4 {
		return LabMatch{}, false
	}
	name, ok := s.normalizer.CanonicalizeTestName(trimmed)
	if !ok {
		return LabMatch{}, false
	}
	offset := start + strings.Index(chunk, trimmed)
	return LabMatch{
		Strategy:   StrategyFreeText,
		TestName:   name,
		Start:      offset,
		End:        offset + len(trimmed),
		Confidence: 0.7,
	}, true
}

// Decompose splits a phrase into every lab it names, matching the longest alias first
// at each word. offset is added to the returned positions.
func Decompose(n *normalize.Normalizer, phrase string, offset int) []LabMatch {
	vocab := n.Vocabulary()
	maxWords := 1
	if terms := vocab.LabTerms(); len(terms) > 0 {
		maxWords = terms[0].Words
	}

	toks := tokenize(phrase, 0)
	var out []LabMatch
	for i := 0; i < len(toks); {
		matched := 0
		for w := maxWords; w >= 1; w-- {
			if i+w > len(toks) || !adjacent(phrase, toks[i:i+w]) {
				continue
			}
			if name, ok := vocab.LookupLab(joinTokens(toks[i : i+w])); ok {
				out = append(out, LabMatch{
					Strategy:   StrategyLabVocabulary,
					TestName:   name,
					Start:      offset + toks[i].start,
					End:        offset + toks[i+w-1].end,
					Confidence: 0.6,
				})
				matched = w
				break
			}
		}
		if matched == 0 {
			matched = 1
		}
		i += matched
	}
	return out
}

// abbreviationScan picks up standalone lab codes such as CBC or TSH. Two-letter codes
// must be spoken in capitals to count.
type abbreviationScan struct {
	normalizer *normalize.Normalizer
}

func newAbbreviationScan(n *normalize.Normalizer) *abbreviationScan {
	return &abbreviationScan{normalizer: n}
}

func (s *abbreviationScan) Name() string { return StrategyAbbreviation }

func (s *abbreviationScan) Match(seg segment.Segment) []LabMatch {
	vocab := s.normalizer.Vocabulary()
	var out []LabMatch
	for _, tok := range tokenize(seg.Text, 0) {
		if !vocab.IsAbbreviation(tok.text) {
			continue
		}
		if len(tok.text) < 3 && !isUpper(tok.text) {
			continue
		}
		name, ok := vocab.LookupLab(tok.text)
		if !ok {
			continue
		}
		out = append(out, LabMatch{
			Strategy:   StrategyAbbreviation,
			TestName:   name,
			Start:      tok.start,
			End:        tok.end,
			Confidence: 0.75,
		})
	}
	return out
}

type labVocabularyScan struct {
	normalizer *normalize.Normalizer
}

func newLabVocabularyScan(n *normalize.Normalizer) *labVocabularyScan {
	return &labVocabularyScan{normalizer: n}
}

func (s *labVocabularyScan) Name() string { return StrategyLabVocabulary }

func (s *labVocabularyScan) Match(seg segment.Segment) []LabMatch {
	return Decompose(s.normalizer, seg.Text, 0)
}

func isUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}
