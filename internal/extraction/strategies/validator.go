package strategies

import "regexp"

// OrderIntentValidator separates "order a CBC" from "the CBC was normal".
type OrderIntentValidator struct {
	keyword  *regexp.Regexp
	negation *regexp.Regexp
	before   *regexp.Regexp
	after    *regexp.Regexp
	reach    int
}

// NewOrderIntentValidator returns a validator with the default cue lists.
func NewOrderIntentValidator() *OrderIntentValidator {
	return &OrderIntentValidator{
		keyword:  regexp.MustCompile(`(?i)\b(?:order|ordering|check|checking|draw|drawn|drawing|get|getting|obtain|repeat|recheck|run|let's|lets|we'll|stat|send|collect|labs?|bloodwork|blood\s+work|need|needs|schedule|fasting|urgent)\b`),
		negation: regexp.MustCompile(`(?i)\b(?:nothing\s+to\s+order|no\s+need\s+(?:to|for)|hold\s+off|don't\s+need|do\s+not\s+need|doesn't\s+need|not\s+(?:going\s+to|gonna)\s+(?:order|check|draw|get|repeat)|won't\s+(?:order|need|check|draw)|not\s+ordering|no\s+(?:new\s+)?(?:labs|bloodwork|blood\s+work|orders)|skip\s+the)\b`),
		before:   regexp.MustCompile(`(?i)(?:\blevels?\s+of|\bresults?\s+(?:of|from)|\bvalues?\s+of|\blast|\bprevious|\bprior|\brecent|\bfor\s+high)\s+(?:(?:the|his|her|their|a)\s+)?$`),
		after:    regexp.MustCompile(`(?i)^(?:\s*(?:level|levels|result|results|value|values))?\s*(?:is|was|were|are|came\s+back|come\s+back|comes\s+back|shows?|showed|showing|looked|looks|has\s+been|had\s+been|of\s+\d|at\s+\d|\d)\b`),
		reach:    80,
	}
}

// Negated reports segment-wide refusals ("nothing to order", "hold off on labs") that
// reject every lab in the sentence.
func (v *OrderIntentValidator) Negated(text string) bool {
	return v.negation.MatchString(text)
}

// Valid checks the mention text[start:end] for a nearby order keyword and the absence
// of result-reporting language right before or after it.
func (v *OrderIntentValidator) Valid(text string, start, end int) bool {
	lo, hi := start-v.reach, end+v.reach
	if lo < 0 {
		lo = 0
	}
	if hi > len(text) {
		hi = len(text)
	}
	if !v.keyword.MatchString(text[lo:start]) && !v.keyword.MatchString(text[end:hi]) {
		return false
	}

	beforeLo := start - 30
	if beforeLo < 0 {
		beforeLo = 0
	}
	if v.before.MatchString(text[beforeLo:start]) {
		return false
	}

	afterHi := end + 30
	if afterHi > len(text) {
		afterHi = len(text)
	}
	return !v.after.MatchString(text[end:afterHi])
}
