// Package citation repairs identifier links in model-generated evaluation text.
package citation

import (
	"regexp"
	"strings"
)

const (
	// DefaultResolverBaseURL resolves DOI identifiers.
	DefaultResolverBaseURL = "https://doi.org/"
	// DefaultLabel prefixes identifier link text: [doi: 10.1000/xyz](...).
	DefaultLabel = "doi"

	// maxRepairPasses bounds the fixed-point loops; every rewrite shrinks the
	// text so real input settles in two or three passes.
	maxRepairPasses = 16
)

// identifierPattern matches a DOI-shaped token: strict numeric prefix, then a
// suffix that stops at whitespace or link syntax.
const identifierPattern = `10\.\d{4,9}/[^\s\[\]()<>"]+`

var (
	linkSpanRe = regexp.MustCompile(`\[[^\[\]]*\]\([^()\s]*\)`)
	bareURLRe  = regexp.MustCompile(`https?://[^\s<>()\[\]]+`)
)

// Normalizer rewrites malformed, missing and duplicated identifier links into
// single well-formed links of the form [label: id](base+id).
//
// A Normalizer is immutable after New and safe for concurrent use.
type Normalizer struct {
	base  string
	label string

	nestedTarget *regexp.Regexp
	nestedLink   *regexp.Regexp
	bareNested   *regexp.Regexp
	bracketRun   *regexp.Regexp
	labeledLink  *regexp.Regexp
	targetToken  *regexp.Regexp
	labeledID    *regexp.Regexp
}

// New builds a Normalizer for the given resolver base URL and link label.
func New(baseURL, label string) *Normalizer {
	if baseURL == "" {
		baseURL = DefaultResolverBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if label == "" {
		label = DefaultLabel
	}

	b := regexp.QuoteMeta(baseURL)
	l := `(?i:` + regexp.QuoteMeta(label) + `)`

	return &Normalizer{
		base:  baseURL,
		label: label,
		// [T](base[[[doi: X]]])
		nestedTarget: regexp.MustCompile(`\[([^\[\]]+)\]\(` + b + `\[+\s*(?:` + l + `\s*:?\s*)?(` + identifierPattern + `)\s*\]+\)`),
		// [T](base[U](base X))
		nestedLink: regexp.MustCompile(`\[([^\[\]]+)\]\(` + b + `\[[^\[\]]*\]\(` + b + `([^()\s]+)\)\)`),
		// (base[[doi: X]])
		bareNested: regexp.MustCompile(`\(` + b + `\[+\s*(?:` + l + `\s*:?\s*)?(` + identifierPattern + `)\s*\]+\)`),
		// [[[doi: X]]]
		bracketRun: regexp.MustCompile(`\[{2,}\s*(` + l + `\s*:?\s*` + identifierPattern + `)\s*\]{2,}`),
		// [doi: X](anything)
		labeledLink: regexp.MustCompile(`\[\s*` + l + `\s*:\s*(` + identifierPattern + `)\s*\]\(([^()\s]*)\)`),
		// [T](base X) or (base X)
		targetToken: regexp.MustCompile(`\[[^\[\]]*\]\((` + b + `[^()\s]+)\)|\((` + b + `[^()\s]+)\)`),
		labeledID:   regexp.MustCompile(`\b` + l + `\s*:\s*(` + identifierPattern + `)`),
	}
}

// Default returns a Normalizer for DOIs resolved through doi.org.
func Default() *Normalizer {
	return New(DefaultResolverBaseURL, DefaultLabel)
}

// Normalize repairs identifier links in text. ids is the ordered list of
// identifiers known to be valid for this text; order only affects which
// identifier is processed first.
//
// The pass is deterministic and idempotent: Normalize(Normalize(t)) equals
// Normalize(t).
func (n *Normalizer) Normalize(text string, ids []string) string {
	out := n.repairNesting(text)
	for _, id := range ids {
		out = n.linkIdentifier(out, id)
	}

	// Insertions above can produce fresh nesting or adjacency, and each
	// repair can expose the other.
	for pass := 0; pass < maxRepairPasses; pass++ {
		before := out
		out = n.repairNesting(n.collapseRuns(out))
		if out == before {
			break
		}
	}
	return n.collapseRuns(out)
}

// Link returns the canonical link for id.
func (n *Normalizer) Link(id string) string {
	return "[" + n.label + ": " + id + "](" + n.base + id + ")"
}

// Mentions returns the labeled identifiers ("doi: 10.x/y") found in text, in
// order of first appearance and without duplicates.
func (n *Normalizer) Mentions(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range n.labeledID.FindAllStringSubmatch(text, -1) {
		id := CleanIdentifier(m[1])
		key := strings.ToLower(id)
		if id == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}

// CleanIdentifier strips a "doi:" style prefix, surrounding whitespace and
// trailing sentence punctuation.
func CleanIdentifier(id string) string {
	id = strings.TrimSpace(id)
	if i := strings.Index(id, ":"); i >= 0 && i < 5 && !strings.HasPrefix(id, "10.") {
		id = strings.TrimSpace(id[i+1:])
	}
	return strings.TrimRight(id, ".,;:\"'}]")
}

// repairNesting collapses link targets that embed link or bracket syntax down
// to the innermost real identifier, until nothing changes.
func (n *Normalizer) repairNesting(text string) string {
	for pass := 0; pass < maxRepairPasses; pass++ {
		before := text
		text = n.nestedTarget.ReplaceAllString(text, "[$1]("+escapeDollar(n.base)+"$2)")
		text = n.nestedLink.ReplaceAllString(text, "[$1]("+escapeDollar(n.base)+"$2)")
		text = n.bareNested.ReplaceAllString(text, "("+escapeDollar(n.base)+"$1)")
		text = n.bracketRun.ReplaceAllString(text, "[$1]")
		text = n.canonicalTargets(text)
		if text == before {
			break
		}
	}
	return text
}

// canonicalTargets points [doi: X](...) links at base+X when they point
// anywhere else.
func (n *Normalizer) canonicalTargets(text string) string {
	return n.labeledLink.ReplaceAllStringFunc(text, func(m string) string {
		sub := n.labeledLink.FindStringSubmatch(m)
		id := CleanIdentifier(sub[1])
		if strings.EqualFold(sub[2], n.base+id) {
			return m
		}
		return n.Link(id)
	})
}

// linkIdentifier wraps the first clean mention of id as a link, unless a
// well-formed link to id already exists.
func (n *Normalizer) linkIdentifier(text, id string) string {
	id = CleanIdentifier(id)
	if id == "" {
		return text
	}

	if n.hasTarget(text, n.base+id) {
		return text
	}

	mention := regexp.MustCompile(`(?i)(\[\s*)?(` + regexp.QuoteMeta(n.label) + `\s*:?\s*)?(` + regexp.QuoteMeta(id) + `)(\s*\])?`)
	protected := protectedSpans(text)

	for _, m := range mention.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[0], m[1]
		idStart, idEnd := m[6], m[7]

		// An opening bracket without its closing partner belongs to
		// surrounding prose, not to the mention.
		hasOpen, hasClose := m[2] >= 0, m[8] >= 0
		if hasOpen && !hasClose {
			if m[4] >= 0 {
				start = m[4]
			} else {
				start = idStart
			}
		}
		if !hasOpen && hasClose {
			end = idEnd
		}

		// Boundaries are checked around the label or identifier itself; a
		// bracket pair is its own delimiter.
		innerStart := idStart
		if m[4] >= 0 {
			innerStart = m[4]
		}
		if !leftBoundary(text, innerStart) || !rightBoundary(text, idEnd) {
			continue
		}
		if overlaps(protected, start, end) {
			continue
		}
		return text[:start] + n.Link(id) + text[end:]
	}
	return text
}

// hasTarget reports whether any link or bare target in text points at url.
func (n *Normalizer) hasTarget(text, url string) bool {
	for _, m := range n.targetToken.FindAllStringSubmatch(text, -1) {
		target := m[1]
		if target == "" {
			target = m[2]
		}
		if strings.EqualFold(target, url) {
			return true
		}
	}
	return false
}

// collapseRuns removes character-adjacent repeats of the same link target,
// keeping the first token of each run. Repeats separated by any text are left
// alone.
func (n *Normalizer) collapseRuns(text string) string {
	matches := n.targetToken.FindAllStringSubmatchIndex(text, -1)
	if len(matches) < 2 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))

	last := 0
	prevEnd := -1
	prevURL := ""
	for _, m := range matches {
		url := ""
		if m[2] >= 0 {
			url = text[m[2]:m[3]]
		} else {
			url = text[m[4]:m[5]]
		}

		if m[0] == prevEnd && strings.EqualFold(url, prevURL) {
			b.WriteString(text[last:m[0]])
			last = m[1]
			prevEnd = m[1]
			continue
		}

		prevEnd = m[1]
		prevURL = url
	}
	b.WriteString(text[last:])
	return b.String()
}

type span struct{ start, end int }

func protectedSpans(text string) []span {
	var spans []span
	for _, re := range []*regexp.Regexp{linkSpanRe, bareURLRe} {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			spans = append(spans, span{loc[0], loc[1]})
		}
	}
	return spans
}

func overlaps(spans []span, start, end int) bool {
	for _, s := range spans {
		if start < s.end && end > s.start {
			return true
		}
	}
	return false
}

func leftBoundary(text string, i int) bool {
	if i == 0 {
		return true
	}
	return !isIDByte(text[i-1]) && text[i-1] != '.'
}

func rightBoundary(text string, i int) bool {
	if i >= len(text) {
		return true
	}
	c := text[i]
	if c == '.' {
		return i+1 >= len(text) || !isAlnum(text[i+1])
	}
	return !isIDByte(c)
}

func isIDByte(c byte) bool {
	return isAlnum(c) || c == '/' || c == '-' || c == '_'
}

func isAlnum(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func escapeDollar(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
