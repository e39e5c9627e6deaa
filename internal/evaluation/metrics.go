package evaluation

// Precision is the fraction of extracted identities that were expected. Extracting
// nothing scores 1.0 when nothing was expected and 0.0 otherwise.
func Precision(expected, extracted []string) float64 {
	got := toSet(extracted)
	if len(got) == 0 {
		if len(toSet(expected)) == 0 {
			return 1.0
		}
		return 0.0
	}
	return float64(overlap(toSet(expected), got)) / float64(len(got))
}

// Recall is the fraction of expected identities that were extracted. Returns 1.0
// when nothing was expected.
func Recall(expected, extracted []string) float64 {
	want := toSet(expected)
	if len(want) == 0 {
		return 1.0
	}
	return float64(overlap(want, toSet(extracted))) / float64(len(want))
}

// F1 is the harmonic mean of precision and recall.
func F1(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0.0
	}
	return 2 * precision * recall / (precision + recall)
}

// Accuracy returns matched/compared, or 1.0 when nothing was compared.
func Accuracy(matched, compared int) float64 {
	if compared == 0 {
		return 1.0
	}
	return float64(matched) / float64(compared)
}

// Difference returns the members of a that are not in b, in a's order.
func Difference(a, b []string) []string {
	exclude := toSet(b)
	var out []string
	seen := make(map[string]struct{}, len(a))
	for _, v := range a {
		if _, ok := exclude[v]; ok {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for v := range b {
		if _, ok := a[v]; ok {
			n++
		}
	}
	return n
}
