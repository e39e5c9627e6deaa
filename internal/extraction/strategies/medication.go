package strategies

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/extraction/normalize"
	"github.com/zatekoja/clinicalorders/internal/extraction/segment"
)

const (
	StrategyStop         = "stop_command"
	StrategyModify       = "modify_command"
	StrategyStart        = "start_command"
	StrategyDosageFormat = "dosage_format"
	StrategyVocabulary   = "vocabulary_scan"
	StrategyFuzzy        = "vocabulary_fuzzy"
)

// fillers may sit between a command word and the drug it governs.
var fillers = map[string]bool{
	"the": true, "his": true, "her": true, "their": true, "him": true, "them": true,
	"patient": true, "patient's": true, "on": true, "with": true, "a": true, "an": true,
	"some": true, "also": true, "back": true, "prescription": true, "for": true, "new": true,
	"of": true, "taking": true, "again": true, "dose": true, "dosage": true, "current": true,
	"that": true, "to": true, "your": true, "my": true,
}

var (
	dosagePattern = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*(mg|mcg|g|ml|units?|iu)\b`)
	leadingDosage = regexp.MustCompile(`(?i)^\s*\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|units?|iu)\b`)
	listJoin      = regexp.MustCompile(`(?i)^\s*(?:,\s*)?(?:and|or|as\s+well\s+as|plus|,)\s+`)
	modifyTarget  = regexp.MustCompile(`(?i)\bto\s+(\d+(?:\.\d+)?)\s*(mg|mcg|g|ml|units?|iu)\b`)
)

// ParseDosage returns the first dosage in text.
func ParseDosage(text string) (entities.Dosage, bool) {
	sub := dosagePattern.FindStringSubmatch(text)
	if sub == nil {
		return entities.Dosage{}, false
	}
	return toDosage(sub[1], sub[2])
}

func toDosage(value, unit string) (entities.Dosage, bool) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || v <= 0 {
		return entities.Dosage{}, false
	}
	return entities.Dosage{Value: v, Unit: NormalizeUnit(unit)}, true
}

// NormalizeUnit maps unit spellings onto mg, mcg, g, ml or units.
func NormalizeUnit(unit string) string {
	switch u := strings.ToLower(strings.TrimSpace(unit)); u {
	case "unit", "units", "iu", "ius":
		return "units"
	case "µg", "ug", "microgram", "micrograms":
		return "mcg"
	case "milligram", "milligrams":
		return "mg"
	case "gram", "grams":
		return "g"
	case "milliliter", "milliliters", "millilitre", "millilitres":
		return "ml"
	default:
		return u
	}
}

// commandStrategy finds a cue phrase and reads the drug name that follows it. A passive
// pattern ("metformin should be stopped") reads the name in front of the cue instead.
type commandStrategy struct {
	name       string
	normalizer *normalize.Normalizer
	commands   []commandCue
	passive    *regexp.Regexp
	passiveCmd entities.CommandKind
	confidence float64
}

type commandCue struct {
	pattern *regexp.Regexp
	command entities.CommandKind
}

func newStopStrategy(n *normalize.Normalizer) *commandStrategy {
	return &commandStrategy{
		name:       StrategyStop,
		normalizer: n,
		commands: []commandCue{{
			pattern: regexp.MustCompile(`(?i)\b(?:stop|stopping|discontinue|discontinuing|d/c|cancel|cancelling|canceling|hold|holding|quit|come\s+off(?:\s+of)?|get\s+(?:him|her|them)\s+off(?:\s+of)?|take\s+(?:him|her|them)\s+off(?:\s+of)?|taking\s+(?:him|her|them)\s+off(?:\s+of)?)\b`),
			command: entities.CommandCancel,
		}},
		passive:    regexp.MustCompile(`(?i)\b(?:(?:should|will|can|is|to)\s+be\s+)?(?:stopped|discontinued|cancelled|canceled)\b`),
		passiveCmd: entities.CommandCancel,
		confidence: 0.9,
	}
}

func newModifyStrategy(n *normalize.Normalizer) *commandStrategy {
	return &commandStrategy{
		name:       StrategyModify,
		normalizer: n,
		commands: []commandCue{{
			pattern: regexp.MustCompile(`(?i)\b(?:increase|increasing|decrease|decreasing|reduce|reducing|lower|lowering|raise|raising|bump\s+up|bump|titrate\s+up|titrate|change|changing|adjust|adjusting|double|halve|cut\s+back(?:\s+on)?)\b`),
			command: entities.CommandModify,
		}},
		passive:    regexp.MustCompile(`(?i)\b(?:(?:should|will|is|to)\s+be\s+)?(?:increased|decreased|reduced|changed|adjusted|titrated|raised|lowered|doubled)\s+to\b`),
		passiveCmd: entities.CommandModify,
		confidence: 0.9,
	}
}

func newStartStrategy(n *normalize.Normalizer) *commandStrategy {
	return &commandStrategy{
		name:       StrategyStart,
		normalizer: n,
		commands: []commandCue{
			{
				pattern: regexp.MustCompile(`(?i)\b(?:start|starting|begin|initiate|prescribe|prescribing|add|adding|give|giving|resume|restart|put\s+(?:him|her|them|the\s+patient)\s+on|new\s+prescription\s+for|rx)\b`),
				command: entities.CommandCreate,
			},
			{
				pattern: regexp.MustCompile(`(?i)\b(?:refill|refilling|renew|renewing)\b`),
				command: entities.CommandRefill,
			},
			{
				pattern: regexp.MustCompile(`(?i)\b(?:continue|continuing|keep\s+(?:him|her|them)\s+on|stay\s+on|takes|taking|take|is\s+on)\b`),
				command: entities.CommandContinue,
			},
		},
		confidence: 0.85,
	}
}

func (s *commandStrategy) Name() string { return s.name }

func (s *commandStrategy) Match(seg segment.Segment) []MedMatch {
	text := seg.Text
	var out []MedMatch

	for _, cue := range s.commands {
		for _, loc := range cue.pattern.FindAllStringIndex(text, -1) {
			name, start, end, ok := drugAfter(s.normalizer, text, loc[1])
			for ok {
				m := MedMatch{
					Command:    cue.command,
					Strategy:   s.name,
					DrugName:   name,
					Start:      start,
					End:        end,
					Confidence: s.confidence,
				}
				if cue.command == entities.CommandModify {
					m.Dosage = modifyDosage(text[end:windowEnd(text, end, 80)])
				}
				out = append(out, m)

				// "stop metformin and lisinopril" applies the command to both
				next := end
				if d := leadingDosage.FindStringIndex(text[next:]); d != nil {
					next += d[1]
				}
				j := listJoin.FindStringIndex(text[next:])
				if j == nil {
					break
				}
				name, start, end, ok = drugAfter(s.normalizer, text, next+j[1])
			}
		}
	}

	if s.passive != nil {
		for _, loc := range s.passive.FindAllStringIndex(text, -1) {
			name, start, end, ok := drugBefore(s.normalizer, text, loc[0])
			if !ok {
				continue
			}
			m := MedMatch{
				Command:    s.passiveCmd,
				Strategy:   s.name,
				DrugName:   name,
				Start:      start,
				End:        end,
				Confidence: s.confidence,
			}
			if s.passiveCmd == entities.CommandModify {
				m.Dosage = modifyDosage(text[loc[0]:windowEnd(text, loc[0], 80)])
			}
			out = append(out, m)
		}
	}
	return out
}

// modifyDosage prefers the target of "to N unit" over the first dose mentioned, so
// "from 500mg to 1000mg" yields 1000mg.
func modifyDosage(window string) entities.Dosage {
	if sub := modifyTarget.FindStringSubmatch(window); sub != nil {
		if d, ok := toDosage(sub[1], sub[2]); ok {
			return d
		}
	}
	if d, ok := ParseDosage(window); ok {
		return d
	}
	return entities.Dosage{}
}

func windowEnd(text string, from, size int) int {
	if from+size > len(text) {
		return len(text)
	}
	return from + size
}

// drugAfter reads a drug name starting at offset, skipping up to four filler words.
func drugAfter(n *normalize.Normalizer, text string, offset int) (string, int, int, bool) {
	toks := tokenize(text[offset:], offset)
	skipped := 0
	for len(toks) > 0 && fillers[strings.ToLower(toks[0].text)] && skipped < 4 {
		toks = toks[1:]
		skipped++
	}
	if len(toks) == 0 {
		return "", 0, 0, false
	}
	if len(toks) > 1 && adjacent(text, toks[:2]) {
		if name, ok := n.CanonicalizeDrugName(joinTokens(toks[:2])); ok {
			return name, toks[0].start, toks[1].end, true
		}
	}
	if name, ok := n.CanonicalizeDrugName(toks[0].text); ok {
		return name, toks[0].start, toks[0].end, true
	}
	return "", 0, 0, false
}

// drugBefore reads a drug name ending just before offset, skipping "dose" and articles.
func drugBefore(n *normalize.Normalizer, text string, offset int) (string, int, int, bool) {
	toks := tokenize(text[:offset], 0)
	for len(toks) > 0 && fillers[strings.ToLower(toks[len(toks)-1].text)] {
		toks = toks[:len(toks)-1]
	}
	if len(toks) == 0 {
		return "", 0, 0, false
	}
	if len(toks) > 1 && adjacent(text, toks[len(toks)-2:]) {
		pair := toks[len(toks)-2:]
		if name, ok := n.CanonicalizeDrugName(joinTokens(pair)); ok {
			return name, pair[0].start, pair[1].end, true
		}
	}
	last := toks[len(toks)-1]
	if name, ok := n.CanonicalizeDrugName(last.text); ok {
		return name, last.start, last.end, true
	}
	return "", 0, 0, false
}

// dosageFormatStrategy matches "<name> <number><unit>" anywhere in the sentence.
type dosageFormatStrategy struct {
	normalizer *normalize.Normalizer
	pattern    *regexp.Regexp
}

func newDosageFormatStrategy(n *normalize.Normalizer) *dosageFormatStrategy {
	return &dosageFormatStrategy{
		normalizer: n,
		pattern:    regexp.MustCompile(`(?i)\b([A-Za-z][A-Za-z-]{2,})(?:\s+([A-Za-z][A-Za-z-]+))?\s+(\d+(?:\.\d+)?)\s*(mg|mcg|g|ml|units?|iu)\b`),
	}
}

func (s *dosageFormatStrategy) Name() string { return StrategyDosageFormat }

func (s *dosageFormatStrategy) Match(seg segment.Segment) []MedMatch {
	text := seg.Text
	var out []MedMatch
	for _, sub := range s.pattern.FindAllStringSubmatchIndex(text, -1) {
		dose, ok := toDosage(text[sub[6]:sub[7]], text[sub[8]:sub[9]])
		if !ok {
			continue
		}

		var name string
		var start, end int
		switch {
		case sub[4] >= 0:
			if n, ok := s.normalizer.CanonicalizeDrugName(text[sub[2]:sub[5]]); ok {
				name, start, end = n, sub[2], sub[5]
			} else if n, ok := s.normalizer.CanonicalizeDrugName(text[sub[4]:sub[5]]); ok {
				name, start, end = n, sub[4], sub[5]
			}
		default:
			if n, ok := s.normalizer.CanonicalizeDrugName(text[sub[2]:sub[3]]); ok {
				name, start, end = n, sub[2], sub[3]
			}
		}
		if name == "" {
			continue
		}
		out = append(out, MedMatch{
			Command:    entities.CommandCreate,
			Strategy:   StrategyDosageFormat,
			DrugName:   name,
			Start:      start,
			End:        end,
			Dosage:     dose,
			Confidence: 0.75,
		})
	}
	return out
}

// vocabularyScan looks up every word pair and word against the drug vocabulary and
// falls back to an edit-distance match for long words. A suffix alone is not enough
// here since no command or dose backs the word.
type vocabularyScan struct {
	normalizer *normalize.Normalizer
	singles    []string
}

func newVocabularyScan(n *normalize.Normalizer) *vocabularyScan {
	var singles []string
	for _, t := range n.Vocabulary().DrugTerms() {
		if t.Words == 1 && len(t.Key) >= 5 {
			singles = append(singles, t.Key)
		}
	}
	return &vocabularyScan{normalizer: n, singles: singles}
}

func (s *vocabularyScan) Name() string { return StrategyVocabulary }

func (s *vocabularyScan) Match(seg segment.Segment) []MedMatch {
	text := seg.Text
	toks := tokenize(text, 0)
	var out []MedMatch

	for i := 0; i < len(toks); i++ {
		if i+1 < len(toks) && adjacent(text, toks[i:i+2]) {
			if name, ok := s.normalizer.Vocabulary().LookupDrug(joinTokens(toks[i : i+2])); ok {
				out = append(out, s.match(name, toks[i].start, toks[i+1].end, StrategyVocabulary, 0.6))
				i++
				continue
			}
		}
		if name, ok := s.normalizer.KnownDrugName(toks[i].text); ok {
			out = append(out, s.match(name, toks[i].start, toks[i].end, StrategyVocabulary, 0.6))
			continue
		}
		if name, ok := s.fuzzy(toks[i].text); ok {
			out = append(out, s.match(name, toks[i].start, toks[i].end, StrategyFuzzy, 0.5))
		}
	}
	return out
}

func (s *vocabularyScan) match(name string, start, end int, strategy string, confidence float64) MedMatch {
	return MedMatch{
		Command:    entities.CommandVocabulary,
		Strategy:   strategy,
		DrugName:   name,
		Start:      start,
		End:        end,
		Confidence: confidence,
	}
}

// fuzzy tolerates one edit for words of six to eight letters and two for longer words.
// The first letter must agree.
func (s *vocabularyScan) fuzzy(word string) (string, bool) {
	w := strings.ToLower(word)
	if len(w) < 6 || strings.ContainsAny(w, "0123456789'/-") || s.normalizer.Vocabulary().IsLabWord(w) {
		return "", false
	}
	maxDist := 1
	if len(w) >= 9 {
		maxDist = 2
	}

	best, bestDist := "", maxDist+1
	for _, cand := range s.singles {
		if cand[0] != w[0] || abs(len(cand)-len(w)) > maxDist {
			continue
		}
		if d := levenshtein.ComputeDistance(w, cand); d < bestDist {
			best, bestDist = cand, d
		}
	}
	if best == "" {
		return "", false
	}
	return s.normalizer.Vocabulary().LookupDrug(best)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
