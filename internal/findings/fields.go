package findings

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxFieldLen    = 500
	minSentenceLen = 15
)

// rule is one pattern shape for a field; group selects the capture holding
// the value (0 for the whole match).
type rule struct {
	re    *regexp.Regexp
	group int
}

// labeled matches "Label: value" lines, tolerating bullets and bold
// markers, such as "- **Evidence Level:** 2" or "Methodology Quality - high".
func labeled(labels string) rule {
	return rule{
		re:    regexp.MustCompile(`(?im)^[ \t]*(?:[-*+•][ \t]+)?(?:\*\*|__)?[ \t]*(?:` + labels + `)[ \t]*(?:\*\*|__)?[ \t]*[:–-][ \t]*(?:\*\*|__)?[ \t]*([^\n]+)`),
		group: 1,
	}
}

func pattern(expr string, group int) rule {
	return rule{re: regexp.MustCompile(expr), group: group}
}

// field is the ordered extraction plan for one Finding attribute. Rules run
// first; keywords drive the sentence heuristic when no rule matches.
type field struct {
	rules    []rule
	keywords []string
}

var (
	criteriaLabels    = labeled(`criteria|criterion|topic|focus|research[ \t]+question|description`)
	valueLabels       = labeled(`value|results?|outcomes?|main[ \t]+finding|key[ \t]+finding|finding`)
	evidenceLabels    = labeled(`evidence[ \t]*level|level[ \t]+of[ \t]+evidence`)
	methodologyLabels = labeled(`methodology[ \t]+quality|context[ \t]*(?:&|and)[ \t]*methodology|methodology|methods?|study[ \t]+design|design`)
	importanceLabels  = labeled(`importance|significance|relevance|implications?|clinical[ \t]+relevance`)
	sourceLabels      = labeled(`sources?|references?|citations?`)

	// allLabels recognizes any field's "Label: value" line.
	allLabels = []rule{criteriaLabels, valueLabels, evidenceLabels, methodologyLabels, importanceLabels, sourceLabels}

	criteriaLabel = field{rules: []rule{criteriaLabels}}

	criteriaText = field{
		rules: []rule{
			pattern(`(?i)\b(?:the[ \t]+)?(?:study|paper|research|trial|review|authors?)[ \t]+(?:examine[sd]?|investigate[sd]?|assess(?:e[sd])?|evaluate[sd]?|explore[sd]?|focus(?:es|ed)?[ \t]+on|aim(?:s|ed)?[ \t]+to)[ \t]+([^.\n]+)`, 1),
		},
		keywords: []string{"study", "examin", "investigat", "assess", "objective", "aim"},
	}

	valueField = field{
		rules: []rule{
			valueLabels,
			pattern(`(?i)\b(?:found|showed|shows|demonstrated|demonstrates|revealed|reveals|reported|reports|concluded|concludes|indicated|indicates|suggest(?:s|ed)?)[ \t]+(?:that[ \t]+)?([^.\n]+)`, 1),
		},
		keywords: []string{"result", "finding", "found", "show", "demonstrat", "increase", "decrease", "reduc", "improv", "associat"},
	}

	evidenceField = field{rules: []rule{
		pattern(`(?i)evidence[ \t]*level[^\n0-9]{0,20}?\b([1-6])\b`, 1),
		pattern(`(?i)level[ \t]+of[ \t]+evidence[^\n0-9]{0,20}?\b([1-6])\b`, 1),
		pattern(`(?i)\blevel[ \t]+([1-6])\b`, 1),
		evidenceLabels,
	}}

	methodologyField = field{
		rules: []rule{
			methodologyLabels,
			pattern(`(?i)\b(?:methodology|study[ \t]+design|design)[ \t]+(?:is|was|appears|seems)[ \t]+([^.\n]+)`, 1),
			pattern(`(?i)\b((?:randomi[sz]ed|controlled|prospective|retrospective|cohort|case[- ]control|cross[- ]sectional|systematic[ \t]+review|meta-analysis|qualitative|observational)[^.\n]*)`, 1),
		},
		keywords: []string{"method", "design", "sample", "bias", "randomi", "cohort"},
	}

	importanceField = field{
		rules: []rule{
			importanceLabels,
			pattern(`(?i)\b(?:this|the[ \t]+finding|these[ \t]+findings|it)[ \t]+(?:is|are)[ \t]+(?:important|significant|relevant)[ \t]+(?:because|as|for)[ \t]+([^.\n]+)`, 1),
		},
		keywords: []string{"important", "significan", "implication", "relevan", "clinical"},
	}

	sourceField = field{rules: []rule{
		sourceLabels,
		pattern(`\[[^\[\]\n]+\]\([^()\s]+\)`, 0),
		pattern(`(?i)\b(?:doi:[ \t]*)?10\.\d{4,9}/[^\s\[\]()<>]+`, 0),
	}}

	sentenceRe = regexp.MustCompile(`[^.!?\n]+[.!?]?`)
)

// find returns the first non-empty rule capture, then the first keyword
// sentence, or "" when the fragment carries nothing for this field.
func (f field) find(text string) string {
	for _, r := range f.rules {
		m := r.re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := cleanValue(m[r.group]); v != "" {
			return v
		}
	}
	if len(f.keywords) == 0 {
		return ""
	}
	for _, s := range sentenceRe.FindAllString(text, -1) {
		s = cleanValue(s)
		if utf8.RuneCountInString(s) < minSentenceLen || isLabelLine(s) {
			continue
		}
		lower := strings.ToLower(s)
		for _, kw := range f.keywords {
			if strings.Contains(lower, kw) {
				return s
			}
		}
	}
	return ""
}

// stripLabelLines drops every "Label: value" line so leftover prose can
// stand in for a missing field.
func stripLabelLines(text string) string {
	for _, r := range allLabels {
		text = r.re.ReplaceAllString(text, "")
	}
	return text
}

func cleanValue(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " *_,;")
	return truncate(s, maxFieldLen)
}

// isLabelLine reports whether s looks like "Label: value" so the heuristic
// does not return another field's line.
func isLabelLine(s string) bool {
	idx := strings.Index(s, ":")
	return idx > 0 && idx < 40 && !strings.Contains(s[:idx], " that ")
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
