package attributes

import (
	"regexp"
	"strings"

	"github.com/zatekoja/clinicalorders/internal/domain/entities"
)

// CueKind is a lab qualifier that attaches to a single lab mention.
type CueKind string

const (
	CueStat    CueKind = "stat"
	CueUrgent  CueKind = "urgent"
	CueRoutine CueKind = "routine"
	CueFasting CueKind = "fasting"
)

// Cue is a qualifier found in a segment. Start and End are segment offsets.
type Cue struct {
	Kind  CueKind
	Start int
	End   int
}

// Mention is one spoken occurrence of a lab, owned by the lab at index Owner.
type Mention struct {
	Owner int
	Start int
	End   int
}

var (
	cuePatterns = []struct {
		kind    CueKind
		pattern *regexp.Regexp
	}{
		{CueStat, regexp.MustCompile(`(?i)\bstat\b`)},
		{CueUrgent, regexp.MustCompile(`(?i)\burgent(?:ly)?\b|\basap\b|\bas\s+soon\s+as\s+possible\b`)},
		{CueRoutine, regexp.MustCompile(`(?i)\broutine\b`)},
		{CueFasting, regexp.MustCompile(`(?i)\bfast(?:ing|ed)?\b`)},
	}

	absoluteDates = []rule{
		{regexp.MustCompile(`(?i)\bday\s+after\s+tomorrow\b`), "Day after tomorrow"},
		{regexp.MustCompile(`(?i)\btoday\b|\bthis\s+morning\b|\bthis\s+afternoon\b`), "Today"},
		{regexp.MustCompile(`(?i)\btomorrow\b`), "Tomorrow"},
		{regexp.MustCompile(`(?i)\bnext\s+week\b`), "Next week"},
		{regexp.MustCompile(`(?i)\bnext\s+month\b`), "Next month"},
		{regexp.MustCompile(`(?i)\bthis\s+week\b`), "This week"},
		{regexp.MustCompile(`(?i)\b(?:before|prior\s+to|at|with)\s+(?:the\s+|his\s+|her\s+)?next\s+(?:visit|appointment)\b`), entities.DateRoutine},
	}
	relativeDate    = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(day|week|month)s?\b`)
	relativeArticle = regexp.MustCompile(`(?i)\bin\s+(?:a|an|one)\s+(day|week|month)\b`)

	notesPattern = regexp.MustCompile(`(?i)\b(?:to|for)\s+(monitor|evaluate|assess|rule\s+out|screen\s+for|follow\s+up\s+on|check\s+for|check\s+on)\s+([^,.;]{2,60})`)
	notesStop    = regexp.MustCompile(`(?i)\s+(?:and\s+(?:order|start|stop|check|get|draw|refill|continue)|at|today|tomorrow|next\s+week|in\s+\d+)\b.*$`)
)

// Cues returns every urgency and fasting qualifier in a segment.
func Cues(text string) []Cue {
	var out []Cue
	for _, c := range cuePatterns {
		for _, loc := range c.pattern.FindAllStringIndex(text, -1) {
			out = append(out, Cue{Kind: c.kind, Start: loc[0], End: loc[1]})
		}
	}
	return out
}

// AssignCues attaches each cue to the nearest mention within LabWindow. Ties go to the
// mention that follows the cue, since "STAT the CBC" and "fasting lipid panel" qualify
// forward. The result maps owner index to its cues.
func AssignCues(cues []Cue, mentions []Mention) map[int][]CueKind {
	out := make(map[int][]CueKind)
	for _, c := range cues {
		best, bestDist, bestAfter := -1, LabWindow+1, false
		for _, m := range mentions {
			d, after := gap(c, m)
			if d < bestDist || (d == bestDist && after && !bestAfter) {
				best, bestDist, bestAfter = m.Owner, d, after
			}
		}
		if best >= 0 {
			out[best] = append(out[best], c.Kind)
		}
	}
	return out
}

// gap is the distance between a cue and a mention and whether the mention follows it.
func gap(c Cue, m Mention) (int, bool) {
	switch {
	case m.Start >= c.End:
		return m.Start - c.End, true
	case c.Start >= m.End:
		return c.Start - m.End, false
	default:
		return 0, true
	}
}

// UrgencyFrom folds the cues owned by one lab: stat > urgent > routine.
func UrgencyFrom(kinds []CueKind) entities.Urgency {
	u := entities.UrgencyRoutine
	for _, k := range kinds {
		switch k {
		case CueStat:
			u = entities.UrgencyStat
		case CueUrgent:
			if u != entities.UrgencyStat {
				u = entities.UrgencyUrgent
			}
		}
	}
	return u
}

// FastingFrom reports whether a fasting cue is among kinds.
func FastingFrom(kinds []CueKind) bool {
	for _, k := range kinds {
		if k == CueFasting {
			return true
		}
	}
	return false
}

// DatePhrase returns an explicit date phrase in text. Day words win over relative
// "in N weeks" phrases.
func DatePhrase(text string) string {
	for _, r := range absoluteDates {
		if r.pattern.MatchString(text) {
			return r.value
		}
	}
	if sub := relativeDate.FindStringSubmatch(text); sub != nil {
		return "In " + plural(atoiOr(sub[1], 1), strings.ToLower(sub[2]))
	}
	if sub := relativeArticle.FindStringSubmatch(text); sub != nil {
		return "In " + plural(1, strings.ToLower(sub[1]))
	}
	return ""
}

// OrderDate decides a lab's date: stat is always today, otherwise an explicit phrase,
// otherwise a date synthesized from urgency.
func OrderDate(phrase string, urgency entities.Urgency) string {
	if urgency == entities.UrgencyStat {
		return entities.DateStat
	}
	if phrase != "" {
		return phrase
	}
	return entities.SynthesizedOrderDate(urgency)
}

// Notes captures the purpose of a lab: "to monitor kidney function".
func Notes(window string) string {
	sub := notesPattern.FindStringSubmatch(window)
	if sub == nil {
		return ""
	}
	target := strings.TrimSpace(notesStop.ReplaceAllString(sub[2], ""))
	if target == "" {
		return ""
	}
	verb := strings.Join(strings.Fields(strings.ToLower(sub[1])), " ")
	return strings.ToUpper(verb[:1]) + verb[1:] + " " + target
}

func atoiOr(s string, def int) int {
	if n := atoi(s); n != nil {
		return *n
	}
	return def
}
