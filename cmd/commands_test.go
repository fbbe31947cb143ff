package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/citation"
	"github.com/sells-group/evidence-cli/internal/model"
)

const evaluationText = "### Key Finding #1: Sleep\n**Criteria:** Sleep duration\n**Value:** Longer sleep improved recall\n**Evidence Level:** 2\n"

func TestLocalDocuments(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	require.NoError(t, os.WriteFile(a, []byte("%PDF"), 0o644))

	docs, err := localDocuments([]string{a}, 5)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.pdf", docs[0].Name)
	assert.Equal(t, a, docs[0].Path)
	assert.NotEmpty(t, docs[0].ID)

	_, err = localDocuments([]string{a, a}, 1)
	assert.ErrorContains(t, err, "at most 1 files")

	_, err = localDocuments([]string{filepath.Join(dir, "missing.pdf")}, 5)
	assert.Error(t, err)

	_, err = localDocuments([]string{dir}, 5)
	assert.ErrorContains(t, err, "is a directory")
}

func TestReportResult_PrintsAndExports(t *testing.T) {
	out := filepath.Join(t.TempDir(), "findings.csv")
	res := &model.BatchResult{
		BatchID: "batch-1",
		Individual: []model.DocumentResult{{
			Document: model.Document{Name: "a.pdf"},
			Detailed: model.EvaluationResult{Success: true, Text: evaluationText},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, reportResult(&buf, res, false, out))
	assert.Equal(t, evaluationText+"\n", buf.String())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Sleep duration")
}

func TestReportResult_JSON(t *testing.T) {
	synth := model.EvaluationResult{Success: true, Text: "overall"}
	res := &model.BatchResult{BatchID: "batch-1", Synthesis: &synth}

	var buf bytes.Buffer
	require.NoError(t, reportResult(&buf, res, true, ""))

	var decoded model.BatchResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "batch-1", decoded.BatchID)
	require.NotNil(t, decoded.Synthesis)
	assert.Equal(t, "overall", decoded.Synthesis.Text)
}

func TestReportResult_FailedPrimary(t *testing.T) {
	synth := model.Failed("failed to evaluate any of the documents")
	res := &model.BatchResult{BatchID: "batch-1", Synthesis: &synth}

	var buf bytes.Buffer
	err := reportResult(&buf, res, false, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to evaluate any of the documents")
	assert.Empty(t, buf.String())
}

func TestRunFindings(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runFindings(&buf, evaluationText, "", ""))

	var got []model.Finding
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "Sleep duration", got[0].Criteria)

	buf.Reset()
	require.NoError(t, runFindings(&buf, evaluationText, "csv", ""))
	assert.True(t, strings.HasPrefix(buf.String(), "Key Finding Number,"))

	assert.Error(t, runFindings(&buf, evaluationText, "pdf", ""))
}

func TestRunFindings_FormatFromOutPath(t *testing.T) {
	out := filepath.Join(t.TempDir(), "findings.xlsx")
	require.NoError(t, runFindings(nil, evaluationText, "", out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("PK")), "xlsx is a zip archive")
}

func TestReadInput(t *testing.T) {
	got, err := readInput(strings.NewReader("from stdin"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", got)

	got, err = readInput(strings.NewReader("dash"), []string{"-"})
	require.NoError(t, err)
	assert.Equal(t, "dash", got)

	path := filepath.Join(t.TempDir(), "eval.md")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))
	got, err = readInput(nil, []string{path})
	require.NoError(t, err)
	assert.Equal(t, "from file", got)

	_, err = readInput(nil, []string{path + ".missing"})
	assert.Error(t, err)
}

func TestRunNormalize(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runNormalize(&buf, citation.Default(), "See 10.1000/xyz for details.", []string{"10.1000/xyz"}))
	assert.Equal(t, "See [doi: 10.1000/xyz](https://doi.org/10.1000/xyz) for details.", buf.String())
}

func TestRunNormalize_DetectsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	text := "Source https://doi.org/10.1000/abc and again 10.1000/abc."
	require.NoError(t, runNormalize(&buf, citation.Default(), text, nil))
	assert.Contains(t, buf.String(), "[doi: 10.1000/abc](https://doi.org/10.1000/abc)")
}
