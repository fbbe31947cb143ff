package findings

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const keyFindingsText = `# Evaluation

### Key Finding #1: Sleep duration and recall
**Criteria:** Sleep duration
**Value:** Eight hours improved recall by 12%
**Evidence Level:** 2
**Methodology Quality:** High, randomized controlled design
**Importance:** Supports sleep hygiene guidance
**Source:** [doi: 10.1000/s1](https://doi.org/10.1000/s1)

### Key Finding #5
The study examines caffeine timing in adolescents. Results showed that late caffeine reduced sleep quality.
Evidence level 3 based on cohort design.

### Key Finding #3
**Value:** Exercise had no measurable effect
`

func TestExtractKeyFindingHeaders(t *testing.T) {
	got := Extract(keyFindingsText)
	require.Len(t, got, 3)

	for i, f := range got {
		assert.Equal(t, i+1, f.Number, "findings are numbered by position")
	}
	assert.Equal(t, "1", got[0].Label)
	assert.Equal(t, "5", got[1].Label)
	assert.Equal(t, "3", got[2].Label)

	first := got[0]
	assert.Equal(t, "Sleep duration", first.Criteria)
	assert.Equal(t, "Eight hours improved recall by 12%", first.Value)
	assert.Equal(t, "2", first.EvidenceLevel)
	assert.Equal(t, "High, randomized controlled design", first.MethodologyQuality)
	assert.Equal(t, "Supports sleep hygiene guidance", first.Importance)
	assert.Equal(t, "[doi: 10.1000/s1](https://doi.org/10.1000/s1)", first.Source)

	second := got[1]
	assert.Equal(t, "caffeine timing in adolescents", second.Criteria)
	assert.Equal(t, "late caffeine reduced sleep quality", second.Value)
	assert.Equal(t, "3", second.EvidenceLevel)
	assert.Equal(t, "cohort design", second.MethodologyQuality)
	assert.Equal(t, DefaultSource, second.Source)

	third := got[2]
	assert.Equal(t, "Key Finding #3", third.Criteria)
	assert.Equal(t, "Exercise had no measurable effect", third.Value)
	assert.Equal(t, DefaultEvidence, third.EvidenceLevel)
	assert.Equal(t, DefaultImportance, third.Importance)
}

func TestExtractRankHeader(t *testing.T) {
	got := Extract("**Rank 1: Smith 2020**\nThe study found that exercise improved mood by a wide margin.\n")
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].Label)
	assert.Equal(t, "Smith 2020", got[0].Criteria)
	assert.Equal(t, "exercise improved mood by a wide margin", got[0].Value)
}

func TestExtractBoldSections(t *testing.T) {
	text := "**Sleep and memory**\nParticipants who slept eight hours showed improved recall.\n**Evidence Level:** 2\n\n" +
		"**Caffeine**\nThe trial found that caffeine delayed sleep onset.\n"

	got := Extract(text)
	require.Len(t, got, 2)
	assert.Equal(t, "Sleep and memory", got[0].Criteria)
	assert.Equal(t, "improved recall", got[0].Value)
	assert.Equal(t, "2", got[0].EvidenceLevel)
	assert.Equal(t, "Caffeine", got[1].Criteria)
	assert.Equal(t, "caffeine delayed sleep onset", got[1].Value)
	assert.Equal(t, 2, got[1].Number)
}

func TestExtractNumberedSections(t *testing.T) {
	text := "1. Sleep duration: longer sleep improved recall in older adults\n" +
		"2. Caffeine timing: late intake was associated with poorer sleep\n"

	got := Extract(text)
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].Label)
	assert.Equal(t, "Sleep duration", got[0].Criteria)
	assert.Equal(t, "longer sleep improved recall in older adults", got[0].Value)
	assert.Equal(t, "2", got[1].Label)
	assert.Equal(t, "Caffeine timing", got[1].Criteria)
	assert.Equal(t, "late intake was associated with poorer sleep", got[1].Value)
}

func TestExtractParagraphFallback(t *testing.T) {
	text := "Participants who slept longer showed better memory consolidation across all tasks.\n\n" +
		"The results suggest that sleep timing matters more than total sleep duration in adults.\n\n" +
		"Short note."

	got := Extract(text)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Number)
	assert.Equal(t, 2, got[1].Number)
	assert.Empty(t, got[0].Label)
	assert.Equal(t, "better memory consolidation across all tasks", got[0].Value)
	assert.Equal(t, "sleep timing matters more than total sleep duration in adults", got[1].Value)
	assert.Equal(t, DefaultCriteria, got[0].Criteria)
}

func TestExtractEmpty(t *testing.T) {
	assert.Empty(t, Extract(""))
	assert.Empty(t, Extract("  \n\t  "))
}

func TestExtractCatchAll(t *testing.T) {
	got := Extract("ok.")
	require.Len(t, got, 1)
	assert.Equal(t, 1, got[0].Number)
	assert.Equal(t, catchAllCriteria, got[0].Criteria)
	assert.Equal(t, "ok.", got[0].Value)
	assert.Equal(t, DefaultSource, got[0].Source)

	long := Extract(strings.Repeat("word ", 100))
	require.Len(t, long, 1)
	assert.Equal(t, catchAllCriteria, long[0].Criteria)
	assert.True(t, strings.HasSuffix(long[0].Value, "..."))
	assert.LessOrEqual(t, utf8.RuneCountInString(long[0].Value), summaryLen+3)
}

func TestExtractEveryFindingHasCriteriaOrValue(t *testing.T) {
	inputs := []string{
		keyFindingsText,
		"## Overview\n\n## Methods\nRandomized trial of 200 adults.\n",
		"### Finding\n\n### Finding\n",
	}
	for _, in := range inputs {
		for _, f := range Extract(in) {
			assert.True(t, f.Criteria != "" || f.Value != "", "finding %d in %q", f.Number, in)
			assert.NotEmpty(t, f.EvidenceLevel)
			assert.NotEmpty(t, f.MethodologyQuality)
			assert.NotEmpty(t, f.Importance)
			assert.NotEmpty(t, f.Source)
		}
	}
}

func TestExtractPlainKeyFindingLines(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		labels   []string
		criteria []string
		values   []string
	}{
		{
			name:     "numbered",
			in:       "Key Finding 1: The study found that exercise reduces risk.\nKey Finding 2: The trial showed improved sleep.",
			labels:   []string{"1", "2"},
			criteria: []string{"The study found that exercise reduces risk", "The trial showed improved sleep"},
			values:   []string{"exercise reduces risk", "improved sleep"},
		},
		{
			name:     "unnumbered",
			in:       "Key Finding: The trial showed improved sleep.\nKey Finding: The review found that naps help.",
			labels:   []string{"", ""},
			criteria: []string{"The trial showed improved sleep", "The review found that naps help"},
			values:   []string{"improved sleep", "naps help"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(tt.in)
			require.Len(t, got, len(tt.values))
			for i, f := range got {
				assert.Equal(t, i+1, f.Number)
				assert.Equal(t, tt.labels[i], f.Label)
				assert.Equal(t, tt.criteria[i], f.Criteria)
				assert.Equal(t, tt.values[i], f.Value)
			}
		})
	}
}

func TestExtractPlainProseIsNotAHeader(t *testing.T) {
	got := Extract("Finding the right dose took two years.\n\nThe trial showed improved sleep in older adults.")
	for _, f := range got {
		assert.Empty(t, f.Label)
	}
}

func TestExtractValueFallbackSkipsOtherFields(t *testing.T) {
	got := Extract("### Key Finding #1: Sleep\nParticipants slept longer on weekends\nEvidence Level: 2\nSource: Smith\n")
	require.Len(t, got, 1)
	assert.Equal(t, "Sleep", got[0].Criteria)
	assert.Equal(t, "Participants slept longer on weekends", got[0].Value)
	assert.Equal(t, "2", got[0].EvidenceLevel)
	assert.Equal(t, "Smith", got[0].Source)
}
