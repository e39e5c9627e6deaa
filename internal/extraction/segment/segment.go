// Package segment splits a normalized transcript into sentences and decides which of
// them are worth running the extraction strategies on.
package segment

import (
	"regexp"
	"strings"
	"unicode"
)

// Segment is one sentence of the transcript. Start and End are byte offsets into the
// normalized transcript, so positions found inside Text translate with Start+i.
type Segment struct {
	Text  string
	Start int
	End   int
}

var (
	orderCue = regexp.MustCompile(`(?i)\b(start|starting|begin|initiate|prescribe|prescribing|add|adding|continue|continuing|give|giving|takes|taking|take|refill|refills|refilling|renew|resume|restart|put\s+\w+\s+on|stop|stopping|discontinue|discontinuing|cancel|cancelling|canceling|hold|holding|quit|increase|increasing|decrease|decreasing|reduce|reducing|change|adjust|titrate|bump|double|order|ordering|check|draw|get|obtain|repeat|recheck|run|let's|lets|we'll|stat)\b`)
	dosageToken = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:mg|mcg|g|ml|units?|iu)\b`)
)

// Split breaks text on terminal punctuation and newlines. A period between two digits
// ("0.5mg") is not a sentence boundary.
func Split(text string) []Segment {
	var segments []Segment
	start := 0
	add := func(end int) {
		raw := text[start:end]
		trimmedLeft := strings.TrimLeftFunc(raw, unicode.IsSpace)
		s := start + (len(raw) - len(trimmedLeft))
		body := strings.TrimRightFunc(trimmedLeft, unicode.IsSpace)
		if body != "" {
			segments = append(segments, Segment{Text: body, Start: s, End: s + len(body)})
		}
	}

	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '.':
			if i > 0 && i+1 < len(text) && isDigit(text[i-1]) && isDigit(text[i+1]) {
				continue
			}
			add(i)
			start = i + 1
		case '!', '?', '\n':
			add(i)
			start = i + 1
		}
	}
	add(len(text))
	return segments
}

// Gate reports whether a sentence carries an order-intent cue word or a dosage-shaped
// token. Sentences that fail are never handed to the strategies.
func Gate(text string) bool {
	return orderCue.MatchString(text) || dosageToken.MatchString(text)
}

// Attemptable returns the sentences of text that pass Gate.
func Attemptable(text string) []Segment {
	var out []Segment
	for _, s := range Split(text) {
		if Gate(s.Text) {
			out = append(out, s)
		}
	}
	return out
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}
