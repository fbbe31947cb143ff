// Package findings turns free-form evaluation text into structured Finding
// records for tabular export.
package findings

import (
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/model"
)

// Placeholders for fields a fragment does not mention.
const (
	DefaultCriteria    = "Not specified"
	DefaultValue       = "Not specified"
	DefaultEvidence    = "Not determined"
	DefaultMethodology = "Not assessed"
	DefaultImportance  = "Not stated"
	DefaultSource      = "Not cited"

	catchAllCriteria = "General evaluation"
	summaryLen       = 200
)

// Extract splits text into findings numbered by position. It never fails:
// blank input yields no findings, and text with nothing extractable yields a
// single catch-all finding summarizing its opening.
func Extract(text string) []model.Finding {
	if strings.TrimSpace(text) == "" {
		return []model.Finding{}
	}

	frags, how := segment(text)
	out := make([]model.Finding, 0, len(frags))
	for _, frag := range frags {
		f, ok := build(frag)
		if !ok {
			continue
		}
		f.Number = len(out) + 1
		out = append(out, f)
	}

	if len(out) == 0 {
		out = append(out, catchAll(text))
	}

	zap.L().Debug("findings: extracted",
		zap.String("strategy", string(how)),
		zap.Int("fragments", len(frags)),
		zap.Int("findings", len(out)),
	)
	return out
}

// build extracts every field of one fragment. It reports false when the
// fragment has neither criteria nor value.
func build(frag fragment) (model.Finding, bool) {
	criteria := criteriaLabel.find(frag.body)
	if criteria == "" {
		criteria = frag.title
	}
	if criteria == "" {
		criteria = criteriaText.find(frag.body)
	}
	if criteria == "" {
		criteria = frag.heading
	}

	value := valueField.find(frag.body)
	if criteria == "" && value == "" {
		return model.Finding{}, false
	}
	if criteria == "" {
		criteria = DefaultCriteria
	}
	if value == "" {
		value = summarize(stripLabelLines(frag.body))
	}
	if value == "" {
		value = DefaultValue
	}

	return model.Finding{
		Label:              frag.label,
		Criteria:           criteria,
		Value:              value,
		EvidenceLevel:      orDefault(evidenceField.find(frag.body), DefaultEvidence),
		MethodologyQuality: orDefault(methodologyField.find(frag.body), DefaultMethodology),
		Importance:         orDefault(importanceField.find(frag.body), DefaultImportance),
		Source:             orDefault(sourceField.find(frag.body), DefaultSource),
	}, true
}

func catchAll(text string) model.Finding {
	return model.Finding{
		Number:             1,
		Criteria:           catchAllCriteria,
		Value:              summarize(text),
		EvidenceLevel:      DefaultEvidence,
		MethodologyQuality: DefaultMethodology,
		Importance:         DefaultImportance,
		Source:             DefaultSource,
	}
}

func summarize(text string) string {
	return truncate(strings.Join(strings.Fields(text), " "), summaryLen)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
