package vocabulary

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_Loads(t *testing.T) {
	v, err := Default()
	require.NoError(t, err)
	require.NotNil(t, v)

	name, ok := v.LookupDrug("Glucophage")
	assert.True(t, ok)
	assert.Equal(t, "Metformin", name)

	name, ok = v.LookupLab("hba1c")
	assert.True(t, ok)
	assert.Equal(t, "Hemoglobin A1C", name)

	_, ok = v.LookupDrug("vitamin d level")
	assert.False(t, ok)
}

func TestLabTerms_LongestFirst(t *testing.T) {
	v, err := Default()
	require.NoError(t, err)

	terms := v.LabTerms()
	require.NotEmpty(t, terms)
	for i := 1; i < len(terms); i++ {
		assert.GreaterOrEqual(t, terms[i-1].Words, terms[i].Words, "terms must be ordered by word count")
	}
}

func TestHasDrugSuffix(t *testing.T) {
	v, err := Default()
	require.NoError(t, err)

	tests := []struct {
		word string
		want bool
	}{
		{"benazepril", true},
		{"bisoprolol", true},
		{"valsartan", true},
		{"pril", false},
		{"person", false},
		{"500mg", false},
	}
	for _, tt := range tests {
		t.Run(tt.word, func(t *testing.T) {
			assert.Equal(t, tt.want, v.HasDrugSuffix(tt.word))
		})
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vocab.json")
	doc := `{"drugs":[{"name":"Testamab","synonyms":["tmab"]}],"labs":[{"name":"Widget Panel","aliases":["widget panel","wp"],"abbreviations":["wp"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	v, err := Load(path)
	require.NoError(t, err)

	name, ok := v.LookupDrug("TMAB")
	assert.True(t, ok)
	assert.Equal(t, "Testamab", name)
	assert.True(t, v.IsAbbreviation("WP"))
	assert.True(t, v.ContainsDrugWord("more testamab please"))
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"drugs":[]}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestIsGenericLabWord(t *testing.T) {
	v, err := Default()
	require.NoError(t, err)
	assert.True(t, v.IsGenericLabWord("Blood Work"))
	assert.False(t, v.IsGenericLabWord("CBC"))
}

func TestIsLabWord(t *testing.T) {
	v, err := Default()
	require.NoError(t, err)
	assert.True(t, v.IsLabWord("Cholesterol"))
	assert.True(t, v.IsLabWord("cbc"))
	assert.False(t, v.IsLabWord("metformin"))
}
