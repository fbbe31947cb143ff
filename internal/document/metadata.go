package document

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	maxURLs       = 10
	maxReferences = 30
	maxAuthors    = 20
	maxAbstract   = 1500
)

// Metadata is bibliographic context recovered from raw document text. It
// feeds identifier lists to the citation normalizer and hints to prompts.
type Metadata struct {
	Title      string   `json:"title,omitempty"`
	Authors    []string `json:"authors,omitempty"`
	Year       int      `json:"publication_year,omitempty"`
	Abstract   string   `json:"abstract,omitempty"`
	DOIs       []string `json:"dois"`
	URLs       []string `json:"urls,omitempty"`
	References []string `json:"references,omitempty"`
}

const doiBody = `(10\.\d{4,}/[^\s\[\]()<>,;"{}]+)`

var (
	doiPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bdoi:\s*` + doiBody),
		regexp.MustCompile(`(?i)https?://(?:dx\.)?doi\.org/` + doiBody),
		regexp.MustCompile(`(?i)[\[(]doi:?\s*` + doiBody + `[\])]`),
		regexp.MustCompile(`(?i)\bdoi\s*=\s*["{]?` + doiBody + `["}]?`),
		regexp.MustCompile(`(?i)digital\s+object\s+identifier\s*:?\s*` + doiBody),
	}
	validDOIRe = regexp.MustCompile(`^10\.\d{4,}/`)

	urlRe     = regexp.MustCompile(`(?i)https?://[^\s"<>\[\]()]+`)
	doiHostRe = regexp.MustCompile(`(?i)^https?://(?:dx\.)?doi\.org`)

	authorsStartRe = regexp.MustCompile(`(?i)\bauthors?\b[:;\s]*`)
	authorsEndRe   = regexp.MustCompile(`(?i)abstract|introduction|keywords|affiliations`)
	authorSplitRe  = regexp.MustCompile(`,\s*|\s+and\s+|;\s*|\n+`)
	notAuthorRe    = regexp.MustCompile(`(?i)^(?:abstract|introduction|keywords|university|department|received|accepted|revised)`)

	yearPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:©|copyright|published|received|accepted)[^\n]{0,40}?\b((?:19|20)\d{2})\b`),
		regexp.MustCompile(`\(((?:19|20)\d{2})\)`),
		regexp.MustCompile(`\b((?:19|20)\d{2})\b`),
	}

	abstractRe = regexp.MustCompile(`(?i)\babstract\b[\s:.\-–]*`)
	blankRe    = regexp.MustCompile(`\n[ \t]*\n`)

	referencesHeadRe = regexp.MustCompile(`(?im)^[ \t#*]*(?:references|bibliography|works[ \t]+cited)[ \t*:]*$`)
	referencesEndRe  = regexp.MustCompile(`(?i)appendix|supplementary|acknowledg`)
	referenceSplitRe = regexp.MustCompile(`\n\s*(?:\[\d+\]|\d+\.|\[\w+\d+\])\s*`)
)

// ExtractMetadata recovers identifiers, links and bibliographic hints from
// text. Every field is best-effort; missing data is left zero.
func ExtractMetadata(text string) Metadata {
	return Metadata{
		Title:      extractTitle(text),
		Authors:    extractAuthors(text),
		Year:       extractYear(text),
		Abstract:   extractAbstract(text),
		DOIs:       ExtractDOIs(text),
		URLs:       extractURLs(text),
		References: extractReferences(text),
	}
}

// ExtractDOIs returns the distinct DOIs in text in pattern then position
// order, with trailing punctuation removed.
func ExtractDOIs(text string) []string {
	dois := []string{}
	seen := make(map[string]bool)
	for _, re := range doiPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			doi := trimTrailing(m[1])
			key := strings.ToLower(doi)
			if seen[key] || !validDOIRe.MatchString(doi) {
				continue
			}
			seen[key] = true
			dois = append(dois, doi)
		}
	}
	return dois
}

func extractURLs(text string) []string {
	var urls []string
	seen := make(map[string]bool)
	for _, u := range urlRe.FindAllString(text, -1) {
		u = trimTrailing(u)
		if doiHostRe.MatchString(u) || seen[u] {
			continue
		}
		seen[u] = true
		urls = append(urls, u)
		if len(urls) == maxURLs {
			break
		}
	}
	return urls
}

func extractAuthors(text string) []string {
	start := authorsStartRe.FindStringIndex(text)
	if start == nil {
		return nil
	}
	rest := text[start[1]:]
	end := authorsEndRe.FindStringIndex(rest)
	if end == nil {
		return nil
	}

	var authors []string
	for _, a := range authorSplitRe.Split(rest[:end[0]], -1) {
		a = strings.TrimSpace(a)
		if a == "" || len(a) >= 50 || notAuthorRe.MatchString(a) || !strings.ContainsFunc(a, unicode.IsLetter) {
			continue
		}
		authors = append(authors, a)
		if len(authors) == maxAuthors {
			break
		}
	}
	return authors
}

func extractYear(text string) int {
	for _, re := range yearPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			year, err := strconv.Atoi(m[1])
			if err == nil {
				return year
			}
		}
	}
	return 0
}

// extractTitle takes the first line that reads like a title: letters,
// sensible length, not a URL or a page header number.
func extractTitle(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if len(line) < 10 || len(line) > 200 {
			continue
		}
		if strings.HasPrefix(strings.ToLower(line), "http") || !strings.ContainsFunc(line, unicode.IsLetter) {
			continue
		}
		return strings.Trim(line, "#* ")
	}
	return ""
}

func extractAbstract(text string) string {
	loc := abstractRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if end := blankRe.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}
	rest = strings.Join(strings.Fields(rest), " ")
	if r := []rune(rest); len(r) > maxAbstract {
		rest = string(r[:maxAbstract])
	}
	return rest
}

func extractReferences(text string) []string {
	locs := referencesHeadRe.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	// The bibliography heading is the last one; earlier hits are usually a
	// table of contents.
	section := text[locs[len(locs)-1][1]:]
	if end := referencesEndRe.FindStringIndex(section); end != nil {
		section = section[:end[0]]
	}

	var refs []string
	for _, entry := range referenceSplitRe.Split("\n"+section, -1) {
		entry = strings.Join(strings.Fields(entry), " ")
		if len(entry) <= 20 {
			continue
		}
		refs = append(refs, entry)
		if len(refs) == maxReferences {
			break
		}
	}
	return refs
}

func trimTrailing(s string) string {
	return strings.TrimRight(strings.TrimSpace(s), `,.;:"]}'`)
}
