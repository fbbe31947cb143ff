package findings

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// minParagraphLen is the rune count a paragraph must exceed to be treated as
// a finding in the paragraph fallback.
const minParagraphLen = 50

type strategy string

const (
	strategyHeaders    strategy = "headers"
	strategySections   strategy = "sections"
	strategyParagraphs strategy = "paragraphs"
	strategyNone       strategy = "none"
)

// fragment is one finding-sized slice of evaluation text.
type fragment struct {
	label   string // numeral or word from the heading, if any
	title   string // title text carried on the heading line
	heading string // the heading itself; last-resort criteria
	body    string
}

var (
	// Group 1 heading phrase, 2 numeral or number word, 3 remainder of the line.
	explicitHeaderRe = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*|\*\*[ \t]*)((?:key[ \t]+finding|finding|rank)\b[ \t]*#?[ \t]*(\d+|(?:[ivx]{1,4}|one|two|three|four|five|six|seven|eight|nine|ten|first|second|third|fourth|fifth)\b)?)([^\n]*)$`)

	// Same groups as explicitHeaderRe for unmarked lines such as
	// "Key Finding 2: ..." or "Key Finding: ...". A numeral or colon is
	// required so prose starting with "Finding" is left alone.
	plainHeaderRe = regexp.MustCompile(`(?im)^[ \t]*((?:key[ \t]+finding|finding|rank)[ \t]*#?[ \t]*(\d+)\b|key[ \t]+finding[ \t]*:)([^\n]*)$`)

	// Group 1 bold-only title, 2 markdown heading, 3 list number, 4 list item text.
	sectionHeaderRe = regexp.MustCompile(`(?m)^[ \t]*(?:\*\*([^*\n]{3,80})\*\*[ \t]*:?[ \t]*|#{1,6}[ \t]+([^\n]+?)[ \t#]*|(\d{1,2})[.)][ \t]+([^\n]*))$`)

	blankLineRe = regexp.MustCompile(`\n[ \t]*\n`)
)

// segment splits text using the first strategy that yields any fragment:
// explicit finding headers, then generic section headers, then paragraphs.
func segment(text string) ([]fragment, strategy) {
	if frags := byHeaders(text); len(frags) > 0 {
		return frags, strategyHeaders
	}
	if frags := bySections(text); len(frags) > 0 {
		return frags, strategySections
	}
	if frags := byParagraphs(text); len(frags) > 0 {
		return frags, strategyParagraphs
	}
	return nil, strategyNone
}

func byHeaders(text string) []fragment {
	type header struct {
		m     []int
		plain bool
	}
	var headers []header
	for _, m := range explicitHeaderRe.FindAllStringSubmatchIndex(text, -1) {
		headers = append(headers, header{m: m})
	}
	for _, m := range plainHeaderRe.FindAllStringSubmatchIndex(text, -1) {
		headers = append(headers, header{m: m, plain: true})
	}
	sort.Slice(headers, func(i, j int) bool { return headers[i].m[0] < headers[j].m[0] })

	frags := make([]fragment, 0, len(headers))
	for i, h := range headers {
		m := h.m
		end := len(text)
		if i+1 < len(headers) {
			end = headers[i+1].m[0]
		}
		f := fragment{
			heading: cleanTitle(text[m[2]:m[3]]),
			title:   cleanTitle(text[m[6]:m[7]]),
			body:    text[m[1]:end],
		}
		if m[4] >= 0 {
			f.label = text[m[4]:m[5]]
		}
		// Unmarked headers usually carry the finding itself on the line.
		if h.plain {
			f.body = text[m[6]:m[7]] + f.body
		}
		frags = append(frags, f)
	}
	return frags
}

func bySections(text string) []fragment {
	matches := sectionHeaderRe.FindAllStringSubmatchIndex(text, -1)
	frags := make([]fragment, 0, len(matches))
	for i, m := range matches {
		f := fragment{body: text[m[1]:nextStart(matches, i, len(text))]}
		switch {
		case m[2] >= 0:
			f.title = cleanTitle(text[m[2]:m[3]])
		case m[4] >= 0:
			f.title = cleanTitle(text[m[4]:m[5]])
		default:
			f.label = text[m[6]:m[7]]
			item := text[m[8]:m[9]]
			// "1. Topic: detail" carries its title before the colon.
			if idx := strings.Index(item, ": "); idx > 0 && idx <= 80 {
				f.title = cleanTitle(item[:idx])
				f.body = item[idx+2:] + f.body
			} else {
				f.body = item + f.body
			}
		}
		f.heading = f.title
		frags = append(frags, f)
	}
	return frags
}

func byParagraphs(text string) []fragment {
	var frags []fragment
	for _, p := range blankLineRe.Split(text, -1) {
		p = strings.TrimSpace(p)
		if utf8.RuneCountInString(p) > minParagraphLen {
			frags = append(frags, fragment{body: p})
		}
	}
	return frags
}

func nextStart(matches [][]int, i, end int) int {
	if i+1 < len(matches) {
		return matches[i+1][0]
	}
	return end
}

func cleanTitle(s string) string {
	s = strings.ReplaceAll(s, "**", "")
	s = strings.ReplaceAll(s, "__", "")
	return strings.Trim(s, " \t*_:#-–.)")
}
