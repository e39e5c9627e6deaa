// Package attributes extracts order qualifiers from a bounded text window around a
// matched name. Each extractor is independent and returns the zero value when nothing
// is found.
package attributes

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// MedicationWindow bounds how far past the drug name qualifiers are read.
	MedicationWindow = 150
	// LabWindow bounds how far a cue may sit from the lab it qualifies.
	LabWindow = 150
)

type rule struct {
	pattern *regexp.Regexp
	value   string
}

// frequencyRules are ordered: explicit cadence before the generic "daily".
var frequencyRules = []rule{
	{regexp.MustCompile(`(?i)\bevery\s+(\d+)\s+hours?\b`), "every $1 hours"},
	{regexp.MustCompile(`(?i)\bq\s?(\d+)\s?h(?:rs?)?\b`), "every $1 hours"},
	{regexp.MustCompile(`(?i)\b(?:four|4)\s+times\s+(?:a|per)\s+day\b|\b4\s+times\s+daily\b|\bqid\b`), "four times daily"},
	{regexp.MustCompile(`(?i)\b(?:three|3)\s+times\s+(?:a|per)\s+day\b|\b3\s+times\s+daily\b|\btid\b`), "three times daily"},
	{regexp.MustCompile(`(?i)\btwice\s+(?:a|per)\s+day\b|\btwice\s+daily\b|\b2\s+times\s+(?:a\s+|per\s+)?(?:day|daily)\b|\bbid\b`), "twice daily"},
	{regexp.MustCompile(`(?i)\bat\s+bedtime\b|\bbefore\s+bed\b|\bnightly\b|\bevery\s+night\b|\bat\s+night\b|\bqhs\b`), "at bedtime"},
	{regexp.MustCompile(`(?i)\bevery\s+morning\b|\bin\s+the\s+morning\b|\bqam\b`), "every morning"},
	{regexp.MustCompile(`(?i)\bonce\s+(?:a\s+|per\s+)?week\b|\bweekly\b|\bevery\s+week\b`), "once weekly"},
	{regexp.MustCompile(`(?i)\bonce\s+(?:a\s+|per\s+)?day\b|\bonce\s+daily\b|\b1\s+time\s+(?:a\s+|per\s+)?(?:day|daily)\b|\bdaily\b|\bevery\s+day\b|\bqd\b|\ba\s+day\b`), "once daily"},
	{regexp.MustCompile(`(?i)\bas\s+needed\b|\bprn\b`), "as needed"},
	{regexp.MustCompile(`(?i)\bwith\s+(?:each\s+)?meals?\b`), "with meals"},
}

var routeRules = []rule{
	{regexp.MustCompile(`(?i)\bby\s+mouth\b|\borally\b|\boral\b|\bpo\b|\bp\.o\.`), "PO"},
	{regexp.MustCompile(`(?i)\bintravenous(?:ly)?\b|\biv\b`), "IV"},
	{regexp.MustCompile(`\bIM\b|(?i:\bintramuscular(?:ly)?\b)`), "IM"},
	{regexp.MustCompile(`(?i)\bsubcutaneous(?:ly)?\b|\bsub-?q\b|\bsc\b|\bsq\b|\bunder\s+the\s+skin\b|\binject(?:ion|ed)?\b`), "SC"},
	{regexp.MustCompile(`(?i)\btopical(?:ly)?\b|\bcream\b|\bointment\b|\bapply\b`), "topical"},
	{regexp.MustCompile(`(?i)\bophthalmic\b|\beye\s+drops?\b|\bin\s+(?:each|both|the)\s+eyes?\b`), "ophthalmic"},
	{regexp.MustCompile(`(?i)\botic\b|\bear\s+drops?\b|\bin\s+(?:each|both|the)\s+ears?\b`), "otic"},
	{regexp.MustCompile(`(?i)\brectal(?:ly)?\b|\bsuppository\b`), "rectal"},
	{regexp.MustCompile(`(?i)\bvaginal(?:ly)?\b`), "vaginal"},
	{regexp.MustCompile(`(?i)\binhaled\b|\binhaler\b|\binhalation\b|\bpuffs?\b|\bnebuliz(?:er|ed)\b`), "inhaled"},
	{regexp.MustCompile(`(?i)\bnasal(?:ly)?\b|\bintranasal\b|\bnasal\s+spray\b`), "nasal"},
}

var (
	durationPattern    = regexp.MustCompile(`(?i)\bfor\s+(\d+)\s+(day|week|month)s?\b`)
	durationArticle    = regexp.MustCompile(`(?i)\bfor\s+(?:a|an|one)\s+(day|week|month)\b`)
	refillsCount       = regexp.MustCompile(`(?i)\b(\d+)\s+refills?\b`)
	refillsLabel       = regexp.MustCompile(`(?i)\brefills?\s*(?:x|:|of)\s*(\d+)\b|\brefills\s+(\d+)\b`)
	noRefills          = regexp.MustCompile(`(?i)\bno\s+refills?\b`)
	quantityDispense   = regexp.MustCompile(`(?i)\bdispense\s+(?:#\s*)?(\d+)\b`)
	quantityHash       = regexp.MustCompile(`#\s?(\d+)\b`)
	quantityLabel      = regexp.MustCompile(`(?i)\bquantity\s+(?:of\s+)?(\d+)\b`)
	quantityUnits      = regexp.MustCompile(`(?i)\b(\d+)\s+(tablets|tabs|capsules|caps|pills|pens|vials|inhalers|patches|boxes)\b`)
	quantityDaySupply  = regexp.MustCompile(`(?i)\b(\d+)[- ]day\s+supply\b`)
	contextDosageShape = `\s+(?:of\s+)?(\d+(?:\.\d+)?)\s*(mg|mcg|g|ml|units?|iu)\b`
)

// Frequency returns the first cadence in window, or "" when none is dictated.
func Frequency(window string) string {
	for _, r := range frequencyRules {
		if loc := r.pattern.FindStringSubmatchIndex(window); loc != nil {
			return string(r.pattern.ExpandString(nil, r.value, window, loc))
		}
	}
	return ""
}

// Route returns the first route keyword in window, or "" when none is dictated.
func Route(window string) string {
	for _, r := range routeRules {
		if r.pattern.MatchString(window) {
			return r.value
		}
	}
	return ""
}

// Duration returns "N days|weeks|months" for "for N days" style phrases.
func Duration(window string) string {
	if sub := durationPattern.FindStringSubmatch(window); sub != nil {
		n, _ := strconv.Atoi(sub[1])
		return plural(n, strings.ToLower(sub[2]))
	}
	if sub := durationArticle.FindStringSubmatch(window); sub != nil {
		return plural(1, strings.ToLower(sub[1]))
	}
	return ""
}

// Quantity returns the dispensed amount; the first surface form that matches wins.
func Quantity(window string) string {
	if sub := quantityDispense.FindStringSubmatch(window); sub != nil {
		return sub[1]
	}
	if sub := quantityHash.FindStringSubmatch(window); sub != nil {
		return sub[1]
	}
	if sub := quantityLabel.FindStringSubmatch(window); sub != nil {
		return sub[1]
	}
	if sub := quantityUnits.FindStringSubmatch(window); sub != nil {
		if n, _ := strconv.Atoi(sub[1]); n > 1 {
			return sub[1] + " " + strings.ToLower(sub[2])
		}
	}
	if sub := quantityDaySupply.FindStringSubmatch(window); sub != nil {
		return sub[1] + "-day supply"
	}
	return ""
}

// Refills returns the refill count, or nil when none is dictated.
func Refills(window string) *int {
	if noRefills.MatchString(window) {
		zero := 0
		return &zero
	}
	if sub := refillsCount.FindStringSubmatch(window); sub != nil {
		return atoi(sub[1])
	}
	if sub := refillsLabel.FindStringSubmatch(window); sub != nil {
		if sub[1] != "" {
			return atoi(sub[1])
		}
		return atoi(sub[2])
	}
	return nil
}

// ContextDosage finds the most recent "<name> N unit" spoken before offset, so a refill
// without a dose can reuse the one given earlier.
func ContextDosage(text string, offset int, names ...string) (value, unit string, ok bool) {
	if offset > len(text) {
		offset = len(text)
	}
	before := text[:offset]
	best := -1
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + contextDosageShape)
		if err != nil {
			continue
		}
		for _, loc := range re.FindAllStringSubmatchIndex(before, -1) {
			if loc[0] > best {
				best = loc[0]
				value, unit, ok = before[loc[2]:loc[3]], before[loc[4]:loc[5]], true
			}
		}
	}
	return value, unit, ok
}

// MedicationWindowEnd clips the window that starts at nameStart: it ends at the next
// medication mention, MedicationWindow bytes past the name, or the segment end.
func MedicationWindowEnd(nameEnd, nextStart, segmentEnd int) int {
	end := nameEnd + MedicationWindow
	if nextStart > nameEnd && nextStart < end {
		end = nextStart
	}
	if end > segmentEnd {
		end = segmentEnd
	}
	return end
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return strconv.Itoa(n) + " " + unit + "s"
}

func atoi(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &n
}
