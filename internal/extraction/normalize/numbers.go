package normalize

import (
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var numberWords = map[string]int{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	"hundred": 100, "thousand": 1000,
}

var (
	wordToken  = regexp.MustCompile(`[A-Za-z]+(?:-[A-Za-z]+)*`)
	spaceRun   = regexp.MustCompile(`[ \t]+`)
	blankLines = regexp.MustCompile(`\s*\n\s*`)

	spelledUnit = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(milligrams?|milligrammes?|mgs|micrograms?|mcgs|milliliters?|millilitres?|mls|grams?|international\s+units?)\b`)
)

var unitAbbreviations = map[string]string{
	"milligram": "mg", "milligrams": "mg", "milligramme": "mg", "milligrammes": "mg", "mgs": "mg",
	"microgram": "mcg", "micrograms": "mcg", "mcgs": "mcg",
	"milliliter": "ml", "milliliters": "ml", "millilitre": "ml", "millilitres": "ml", "mls": "ml",
	"gram": "g", "grams": "g",
}

// NormalizeTranscript applies Unicode NFC, whitespace cleanup, number and unit normalization.
// Offsets reported by later stages refer to the returned string.
func NormalizeTranscript(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n")
	text = spaceRun.ReplaceAllString(text, " ")
	text = NormalizeNumber(text)
	text = NormalizeUnits(text)
	return strings.TrimSpace(text)
}

// NormalizeUnits abbreviates spelled units that follow a number: "10 milligrams" -> "10mg".
// Text that is already abbreviated is left as is.
func NormalizeUnits(text string) string {
	return spelledUnit.ReplaceAllStringFunc(text, func(m string) string {
		sub := spelledUnit.FindStringSubmatch(m)
		unit := strings.ToLower(sub[2])
		if strings.HasPrefix(unit, "international") {
			return sub[1] + " units"
		}
		return sub[1] + unitAbbreviations[unit]
	})
}

type numberToken struct {
	start, end int
	values     []int
	word       string
}

// NormalizeNumber replaces runs of spelled cardinal words with digits.
// "five hundred" becomes "500", "twenty-five" becomes "25". Digits are never touched
// and words that only contain a number word ("someone", "tone") are left alone.
func NormalizeNumber(text string) string {
	locs := wordToken.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0

	var run []numberToken
	flush := func() {
		if len(run) == 0 {
			return
		}
		b.WriteString(text[last:run[0].start])
		b.WriteString(composeRun(run))
		last = run[len(run)-1].end
		run = run[:0]
	}

	for i, loc := range locs {
		tok := text[loc[0]:loc[1]]
		lower := strings.ToLower(tok)

		if lower == "and" && len(run) > 0 && i+1 < len(locs) {
			prev := run[len(run)-1]
			next := strings.ToLower(text[locs[i+1][0]:locs[i+1][1]])
			if (prev.word == "hundred" || prev.word == "thousand") && isBlank(text[prev.end:loc[0]]) && isBlank(text[loc[1]:locs[i+1][0]]) {
				if _, ok := numberValues(next); ok {
					continue
				}
			}
		}

		values, ok := numberValues(lower)
		if !ok {
			flush()
			continue
		}
		if len(run) > 0 && !isBlank(text[run[len(run)-1].end:loc[0]]) && !joinedByAnd(text[run[len(run)-1].end:loc[0]]) {
			flush()
		}
		run = append(run, numberToken{start: loc[0], end: loc[1], values: values, word: lower})
	}
	flush()

	b.WriteString(text[last:])
	return b.String()
}

func numberValues(word string) ([]int, bool) {
	parts := strings.Split(word, "-")
	values := make([]int, 0, len(parts))
	for _, p := range parts {
		v, ok := numberWords[p]
		if !ok {
			return nil, false
		}
		values = append(values, v)
	}
	return values, true
}

func isBlank(s string) bool {
	return s != "" && strings.TrimLeft(s, " \t") == ""
}

func joinedByAnd(gap string) bool {
	return strings.EqualFold(strings.TrimSpace(gap), "and")
}

// composeRun folds a run of number words into one or more numbers. A word that cannot
// extend the current number ("one two") starts a new one.
func composeRun(run []numberToken) string {
	var out []string
	total, current := 0, 0
	started := false

	emit := func() {
		if started {
			out = append(out, strconv.Itoa(total+current))
		}
		total, current, started = 0, 0, false
	}

	for _, tok := range run {
		for _, v := range tok.values {
			switch {
			case v == 1000:
				if total > 0 {
					out = append(out, strconv.Itoa(total))
					total = 0
				}
				if current == 0 {
					current = 1
				}
				total += current * 1000
				current = 0
			case v == 100:
				low := current % 1000
				if low == 0 {
					if started && current > 0 {
						emit()
					}
					current += 100
				} else if low < 100 {
					current = current - low + low*100
				} else {
					emit()
					current = 100
				}
			case v >= 20:
				if started && current%100 != 0 {
					emit()
				}
				current += v
			default:
				rem := current % 100
				canAbsorb := rem == 0 || (rem >= 20 && rem%10 == 0 && v < 10)
				if started && !canAbsorb {
					emit()
				}
				current += v
			}
			started = true
		}
	}
	emit()
	return strings.Join(out, " ")
}
