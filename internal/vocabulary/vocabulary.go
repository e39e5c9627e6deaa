package vocabulary

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

//go:embed data/default_vocabulary.json
var defaultVocabularyJSON []byte

// DrugEntry is a canonical drug name plus the synonyms (brand names, spellings) that resolve to it.
type DrugEntry struct {
	Name     string   `json:"name"`
	Synonyms []string `json:"synonyms"`
}

// LabEntry is a lab test display name with every alias a clinician may dictate.
type LabEntry struct {
	Name          string   `json:"name"`
	Aliases       []string `json:"aliases"`
	Abbreviations []string `json:"abbreviations"`
}

// PlaceEntry is a pharmacy chain or lab location.
type PlaceEntry struct {
	Name    string   `json:"name"`
	Aliases []string `json:"aliases"`
}

// Document is the on-disk shape of the reference tables.
type Document struct {
	Drugs           []DrugEntry  `json:"drugs"`
	DrugSuffixes    []string     `json:"drugSuffixes"`
	Labs            []LabEntry   `json:"labs"`
	Pharmacies      []PlaceEntry `json:"pharmacies"`
	LabLocations    []PlaceEntry `json:"labLocations"`
	Indications     []string     `json:"indications"`
	GenericLabWords []string     `json:"genericLabWords"`
}

// Term is a lowercase surface form and the display name it resolves to.
type Term struct {
	Key     string
	Display string
	Words   int
}

// Vocabulary is the immutable, indexed form of a Document.
type Vocabulary struct {
	drugs         map[string]string
	drugTerms     []Term
	drugWords     map[string]bool
	suffixes      []string
	labs          map[string]string
	labWords      map[string]bool
	labTerms      []Term
	abbreviations []Term
	abbrevKeys    map[string]bool
	pharmacies    []Term
	locations     []Term
	indications   []string
	generic       map[string]bool
}

var (
	defaultOnce  sync.Once
	defaultVocab *Vocabulary
	defaultErr   error
)

// Default returns the vocabulary compiled into the binary.
func Default() (*Vocabulary, error) {
	defaultOnce.Do(func() {
		defaultVocab, defaultErr = Parse(defaultVocabularyJSON)
	})
	return defaultVocab, defaultErr
}

// Load reads a vocabulary document from path. An empty path yields the default vocabulary.
func Load(path string) (*Vocabulary, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read vocabulary file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Vocabulary from a JSON document.
func Parse(data []byte) (*Vocabulary, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse vocabulary JSON: %w", err)
	}
	return New(doc)
}

// New indexes a Document.
func New(doc Document) (*Vocabulary, error) {
	if len(doc.Drugs) == 0 {
		return nil, fmt.Errorf("vocabulary has no drugs")
	}
	if len(doc.Labs) == 0 {
		return nil, fmt.Errorf("vocabulary has no labs")
	}

	v := &Vocabulary{
		drugs:      make(map[string]string),
		drugWords:  make(map[string]bool),
		labs:       make(map[string]string),
		labWords:   make(map[string]bool),
		abbrevKeys: make(map[string]bool),
		generic:    make(map[string]bool),
	}

	for _, d := range doc.Drugs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		for _, surface := range append([]string{name}, d.Synonyms...) {
			k := key(surface)
			if k == "" {
				continue
			}
			v.drugs[k] = name
			if !strings.Contains(k, " ") {
				v.drugWords[k] = true
			}
		}
	}
	v.drugTerms = termsFrom(v.drugs)

	seenSuffix := make(map[string]bool)
	for _, s := range doc.DrugSuffixes {
		s = key(s)
		if s != "" && !seenSuffix[s] {
			seenSuffix[s] = true
			v.suffixes = append(v.suffixes, s)
		}
	}
	sort.Slice(v.suffixes, func(i, j int) bool { return len(v.suffixes[i]) > len(v.suffixes[j]) })

	abbrevs := make(map[string]string)
	for _, l := range doc.Labs {
		name := strings.TrimSpace(l.Name)
		if name == "" {
			continue
		}
		v.labs[key(name)] = name
		for _, a := range l.Aliases {
			if k := key(a); k != "" {
				v.labs[k] = name
			}
		}
		for _, a := range l.Abbreviations {
			if k := key(a); k != "" {
				abbrevs[k] = name
				v.abbrevKeys[k] = true
			}
		}
	}
	for k := range v.labs {
		for _, w := range strings.Fields(k) {
			v.labWords[w] = true
		}
	}
	for k := range v.abbrevKeys {
		v.labWords[k] = true
	}
	v.labTerms = termsFrom(v.labs)
	v.abbreviations = termsFrom(abbrevs)

	v.pharmacies = placeTerms(doc.Pharmacies)
	v.locations = placeTerms(doc.LabLocations)

	for _, ind := range doc.Indications {
		if k := key(ind); k != "" {
			v.indications = append(v.indications, k)
		}
	}
	sort.SliceStable(v.indications, func(i, j int) bool { return len(v.indications[i]) > len(v.indications[j]) })

	for _, g := range doc.GenericLabWords {
		v.generic[key(g)] = true
	}
	return v, nil
}

// LookupDrug resolves a drug name or synonym to its canonical name.
func (v *Vocabulary) LookupDrug(phrase string) (string, bool) {
	name, ok := v.drugs[key(phrase)]
	return name, ok
}

// DrugTerms returns every drug surface form, longest first.
func (v *Vocabulary) DrugTerms() []Term { return v.drugTerms }

// ContainsDrugWord reports whether any word of phrase is a single-word drug name or synonym.
func (v *Vocabulary) ContainsDrugWord(phrase string) bool {
	for _, w := range strings.Fields(key(phrase)) {
		if v.drugWords[w] {
			return true
		}
	}
	return false
}

// HasDrugSuffix reports whether word ends in a known pharmacologic suffix and has a stem
// long enough to be a drug rather than an everyday English word.
func (v *Vocabulary) HasDrugSuffix(word string) bool {
	w := key(word)
	if strings.ContainsAny(w, " 0123456789") {
		return false
	}
	for _, s := range v.suffixes {
		if strings.HasSuffix(w, s) && len(w)-len(s) >= 3 {
			return true
		}
	}
	return false
}

// LookupLab resolves a lab alias to its display name.
func (v *Vocabulary) LookupLab(phrase string) (string, bool) {
	name, ok := v.labs[key(phrase)]
	return name, ok
}

// IsLabWord reports whether word appears in any lab name, alias or abbreviation.
func (v *Vocabulary) IsLabWord(word string) bool {
	return v.labWords[key(word)]
}

// LabTerms returns every lab alias, most words first and then longest first.
func (v *Vocabulary) LabTerms() []Term { return v.labTerms }

// Abbreviations returns the short lab codes (CBC, TSH, ...).
func (v *Vocabulary) Abbreviations() []Term { return v.abbreviations }

// IsAbbreviation reports whether phrase is a known lab abbreviation.
func (v *Vocabulary) IsAbbreviation(phrase string) bool {
	return v.abbrevKeys[key(phrase)]
}

// Pharmacies returns the pharmacy surface forms, longest first.
func (v *Vocabulary) Pharmacies() []Term { return v.pharmacies }

// LabLocations returns the lab location surface forms, longest first.
func (v *Vocabulary) LabLocations() []Term { return v.locations }

// Indications returns lowercase indications, longest first.
func (v *Vocabulary) Indications() []string { return v.indications }

// IsGenericLabWord reports phrases like "labs" or "blood work" that never name a specific test.
func (v *Vocabulary) IsGenericLabWord(phrase string) bool {
	return v.generic[key(phrase)]
}

func key(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func termsFrom(m map[string]string) []Term {
	terms := make([]Term, 0, len(m))
	for k, display := range m {
		terms = append(terms, Term{Key: k, Display: display, Words: len(strings.Fields(k))})
	}
	sortTerms(terms)
	return terms
}

func placeTerms(entries []PlaceEntry) []Term {
	m := make(map[string]string)
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			continue
		}
		m[key(name)] = name
		for _, a := range e.Aliases {
			if k := key(a); k != "" {
				m[k] = name
			}
		}
	}
	return termsFrom(m)
}

// sortTerms orders terms so that greedy scans try the longest phrase first.
func sortTerms(terms []Term) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Words != terms[j].Words {
			return terms[i].Words > terms[j].Words
		}
		if len(terms[i].Key) != len(terms[j].Key) {
			return len(terms[i].Key) > len(terms[j].Key)
		}
		return terms[i].Key < terms[j].Key
	})
}
