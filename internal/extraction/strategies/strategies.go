// Package strategies holds the ordered extractors that turn a sentence into medication
// and lab mentions. Each strategy is independent; Set applies them in precedence order
// and resolves overlaps.
package strategies

import (
	"regexp"
	"sort"
	"strings"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
	"github.com/zatekoja/clinicalorders/internal/extraction/normalize"
	"github.com/zatekoja/clinicalorders/internal/extraction/segment"
)

// MedMatch is a medication mention found by a strategy. Offsets are relative to the
// segment text and cover the drug name only.
type MedMatch struct {
	Command    entities.CommandKind
	Strategy   string
	DrugName   string
	Start      int
	End        int
	Dosage     entities.Dosage
	Confidence float64
}

// Span is a byte range inside a segment.
type Span struct {
	Start int
	End   int
}

// LabMatch is a lab mention found by a strategy.
type LabMatch struct {
	Strategy   string
	TestName   string
	Start      int
	End        int
	Confidence float64
}

// LabMention is every accepted mention of one lab identity within a segment.
type LabMention struct {
	TestName   string
	Strategy   string
	Confidence float64
	Spans      []Span
}

// First returns the earliest span of the mention.
func (m LabMention) First() Span {
	return m.Spans[0]
}

// MedicationStrategy extracts medication mentions from one segment.
type MedicationStrategy interface {
	Name() string
	Match(seg segment.Segment) []MedMatch
}

// LabStrategy extracts lab mentions from one segment.
type LabStrategy interface {
	Name() string
	Match(seg segment.Segment) []LabMatch
}

// Set is the ordered collection of strategies. Earlier strategies win overlaps.
type Set struct {
	normalizer *normalize.Normalizer
	meds       []MedicationStrategy
	labs       []LabStrategy
	validator  *OrderIntentValidator
}

// NewSet wires the default strategies in precedence order.
func NewSet(n *normalize.Normalizer) *Set {
	return &Set{
		normalizer: n,
		meds: []MedicationStrategy{
			newStopStrategy(n),
			newModifyStrategy(n),
			newStartStrategy(n),
			newDosageFormatStrategy(n),
			newVocabularyScan(n),
		},
		labs: []LabStrategy{
			newExplicitOrderCapture(n),
			newLetsCapture(n),
			newAbbreviationScan(n),
			newLabVocabularyScan(n),
		},
		validator: NewOrderIntentValidator(),
	}
}

// MedicationStrategies returns the strategies in precedence order.
func (s *Set) MedicationStrategies() []MedicationStrategy { return s.meds }

// LabStrategies returns the strategies in precedence order.
func (s *Set) LabStrategies() []LabStrategy { return s.labs }

// Medications runs every medication strategy on seg. A match is kept only if no
// higher-precedence match already claimed its span or its identity. The result is
// ordered by position.
func (s *Set) Medications(seg segment.Segment) []MedMatch {
	var accepted []MedMatch
	seen := make(map[string]bool)

	for _, strategy := range s.meds {
		for _, m := range strategy.Match(seg) {
			id := entities.CanonicalKey(m.DrugName)
			if seen[id] || overlapsMed(accepted, m.Start, m.End) {
				continue
			}
			seen[id] = true
			accepted = append(accepted, m)
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}

// Labs runs every lab strategy on seg, validates order intent and merges mentions of
// the same test. The result is ordered by first mention.
func (s *Set) Labs(seg segment.Segment) []LabMention {
	if s.validator.Negated(seg.Text) {
		return nil
	}

	var mentions []LabMention
	index := make(map[string]int)
	var claimed []Span

	for _, strategy := range s.labs {
		for _, m := range strategy.Match(seg) {
			if overlapsSpan(claimed, m.Start, m.End) {
				continue
			}
			if !s.validator.Valid(seg.Text, m.Start, m.End) {
				continue
			}
			claimed = append(claimed, Span{Start: m.Start, End: m.End})

			id := entities.CanonicalKey(m.TestName)
			if i, ok := index[id]; ok {
				mentions[i].Spans = append(mentions[i].Spans, Span{Start: m.Start, End: m.End})
				continue
			}
			index[id] = len(mentions)
			mentions = append(mentions, LabMention{
				TestName:   m.TestName,
				Strategy:   m.Strategy,
				Confidence: m.Confidence,
				Spans:      []Span{{Start: m.Start, End: m.End}},
			})
		}
	}

	for i := range mentions {
		sort.Slice(mentions[i].Spans, func(a, b int) bool { return mentions[i].Spans[a].Start < mentions[i].Spans[b].Start })
	}
	sort.SliceStable(mentions, func(i, j int) bool { return mentions[i].First().Start < mentions[j].First().Start })
	return mentions
}

func overlapsMed(accepted []MedMatch, start, end int) bool {
	for _, a := range accepted {
		if start < a.End && a.Start < end {
			return true
		}
	}
	return false
}

func overlapsSpan(spans []Span, start, end int) bool {
	for _, s := range spans {
		if start < s.End && s.Start < end {
			return true
		}
	}
	return false
}

type token struct {
	text  string
	start int
	end   int
}

var tokenPattern = regexp.MustCompile(`[A-Za-z0-9][A-Za-z0-9'/-]*`)

func tokenize(text string, offset int) []token {
	locs := tokenPattern.FindAllStringIndex(text, -1)
	out := make([]token, 0, len(locs))
	for _, loc := range locs {
		out = append(out, token{text: text[loc[0]:loc[1]], start: offset + loc[0], end: offset + loc[1]})
	}
	return out
}

// adjacent reports whether tokens a..b are separated only by single spaces or hyphens.
func adjacent(text string, toks []token) bool {
	for i := 1; i < len(toks); i++ {
		gap := text[toks[i-1].end:toks[i].start]
		if strings.TrimSpace(gap) != "" || len(gap) > 2 {
			return false
		}
	}
	return true
}

func joinTokens(toks []token) string {
	parts := make([]string, len(toks))
	for i, t := range toks {
		parts[i] = strings.ToLower(t.text)
	}
	return strings.Join(parts, " ")
}
