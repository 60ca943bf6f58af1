package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// PromptSuite is a test suite for Prompt helpers.
type PromptSuite struct {
	suite.Suite
}

func TestPromptSuite(t *testing.T) {
	suite.Run(t, new(PromptSuite))
}

func (s *PromptSuite) TestClone_IsDeep() {
	used := time.Now()
	p := &Prompt{ID: "a", Title: "t", Tags: []string{"x"}, LastUsed: &used}

	c := p.Clone()
	c.Tags[0] = "changed"
	*c.LastUsed = used.Add(time.Hour)

	s.Equal("x", p.Tags[0])
	s.Equal(used, *p.LastUsed)
}

func (s *PromptSuite) TestClone_Nil() {
	var p *Prompt
	s.Nil(p.Clone())
}

func (s *PromptSuite) TestHasCustomModel() {
	s.False((&Prompt{AIModel: "Claude"}).HasCustomModel())
	s.False((&Prompt{AIModel: "claude"}).HasCustomModel())
	s.False((&Prompt{AIModel: ""}).HasCustomModel())
	s.True((&Prompt{AIModel: "GPT-5"}).HasCustomModel())
}

func TestNormalizeTags(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{name: "nil", input: nil, expected: []string{}},
		{name: "lower-cases", input: []string{"Go", "SQL"}, expected: []string{"go", "sql"}},
		{name: "drops duplicates keeping order", input: []string{"b", "a", "B"}, expected: []string{"b", "a"}},
		{name: "drops blanks", input: []string{" ", "x ", ""}, expected: []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTags(tt.input))
		})
	}
}

func TestSettingsEnumerations(t *testing.T) {
	assert.True(t, SortMostUsed.Valid())
	assert.False(t, SortOption("random").Valid())
	assert.True(t, ViewModeList.Valid())
	assert.False(t, ViewMode("table").Valid())
	assert.True(t, ThemeDark.Valid())
	assert.False(t, Theme("sepia").Valid())

	d := DefaultSettings()
	assert.Equal(t, ViewModeGrid, d.ViewMode)
	assert.Equal(t, SortDateAdded, d.SortBy)
	assert.Equal(t, ThemeSystem, d.Theme)
}

func TestDefaultCategories(t *testing.T) {
	cats := DefaultCategories()
	require.Len(t, cats, 7)
	assert.Equal(t, "writing", cats[0].ID)
	assert.Equal(t, "Other", cats[6].Name)
}

func TestFilterPatch_Apply(t *testing.T) {
	fav := true
	q := "review"
	f := FilterPatch{Tags: []string{"go"}, FavoritesOnly: &fav, SearchQuery: &q}.Apply(DefaultFilters())

	assert.Equal(t, []string{"go"}, f.Tags)
	assert.Empty(t, f.Categories)
	assert.True(t, f.FavoritesOnly)
	assert.Equal(t, "review", f.SearchQuery)
}

func TestJSONStringArray_ScanValue(t *testing.T) {
	v, err := JSONStringArray{"a", "b"}.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)

	var a JSONStringArray
	require.NoError(t, a.Scan([]byte(`["x"]`)))
	assert.Equal(t, JSONStringArray{"x"}, a)

	require.NoError(t, a.Scan(nil))
	assert.Empty(t, a)

	assert.Error(t, a.Scan(42))
}
