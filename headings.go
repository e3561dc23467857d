package enrichaf

import (
	"regexp"
	"strings"
	"unicode"
)

// headingClassification is the outcome of classifying one line: whether
// to promote it and which rule decided, for debuggability of the
// heuristic.
type headingClassification struct {
	Promote bool
	Rule    string
}

var (
	numberedHeadingPattern = regexp.MustCompile(`^(?:\d+[.)]|[IVXLC]+\.)\s+\S`)
	boldHeadingPattern     = regexp.MustCompile(`^\*\*([^*]+)\*\*$`)
	underlinePattern       = regexp.MustCompile(`^(=+|-+)\s*$`)
	labelLinePattern       = regexp.MustCompile(`^[A-Za-z][A-Za-z .]{0,30}:\s`)
	emailPattern           = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	urlInLinePattern       = regexp.MustCompile(`https?://|www\.`)
	honorificPattern       = regexp.MustCompile(`^(?:Dr|Mr|Mrs|Ms|Prof|Professor|Rev)\.?\s+[A-Z]`)
	dateTimeLinePattern    = regexp.MustCompile(`(?i)^(?:(?:mon|tues|wednes|thurs|fri|satur|sun)day[s]?|jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|jun(?:e)?|jul(?:y)?|aug(?:ust)?|sep(?:tember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?|\d{1,2}[:/.]\d{2}|\d{1,2}/\d{1,2}(?:/\d{2,4})?)[\s\d:/,.apm-]*$`)
)

// contactKeywords mark metadata-like lines (contact info, scheduling)
// that must never become headings.
var contactKeywords = []string{
	"phone", "tel.", "fax", "mobile", "email", "e-mail",
	"office", "room", "building", "zoom", "canvas",
	"semester", "quarter", "lecture", "seminar", "classroom",
	"hours", "meeting", "location", "appointment",
}

// knownSectionTitles are conventional section headings promoted
// regardless of the general heuristic; the general rule would reject
// several of these as too short or as contact-flavored.
var knownSectionTitles = map[string]bool{
	"introduction":          true,
	"overview":              true,
	"summary":               true,
	"abstract":              true,
	"conclusion":            true,
	"references":            true,
	"bibliography":          true,
	"appendix":              true,
	"course description":    true,
	"course objectives":     true,
	"learning objectives":   true,
	"learning outcomes":     true,
	"prerequisites":         true,
	"required texts":        true,
	"required materials":    true,
	"recommended reading":   true,
	"grading":               true,
	"grading policy":        true,
	"course schedule":       true,
	"course policies":       true,
	"attendance policy":     true,
	"academic integrity":    true,
	"assignments":           true,
	"exams":                 true,
	"office hours":          true,
	"contact information":   true,
	"acknowledgements":      true,
	"executive summary":     true,
	"table of contents":     true,
	"glossary":              true,
	"methodology":           true,
	"results":               true,
	"discussion":            true,
}

// normalizeHeadings promotes title-shaped plain-text lines to level-1
// Markdown headings. It is idempotent: promoted lines start with "#"
// and are skipped on later runs. Adjacent duplicate headings produced
// by the pass are collapsed to one.
func normalizeHeadings(content string) string {
	lines := strings.Split(content, "\n")
	out := make([]string, 0, len(lines))
	lastHeading := ""

	appendHeading := func(text string) {
		heading := "# " + text
		if heading == lastHeading && len(out) > 0 {
			return
		}
		out = append(out, heading)
		lastHeading = heading
	}

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			if trimmed != "" {
				lastHeading = trimmed
			}
			out = append(out, line)
			continue
		}

		// Underlined heading: the text line plus its underline line.
		if i+1 < len(lines) && underlinePattern.MatchString(strings.TrimSpace(lines[i+1])) &&
			len(strings.TrimSpace(lines[i+1])) >= 3 && !isExcludedHeading(trimmed) {
			appendHeading(trimmed)
			i++ // consume the underline
			continue
		}

		prevBlank := i == 0 || strings.TrimSpace(lines[i-1]) == ""
		nextBlank := i == len(lines)-1 || strings.TrimSpace(lines[i+1]) == ""

		c := classifyHeading(trimmed, prevBlank, nextBlank)
		if !c.Promote {
			out = append(out, line)
			lastHeading = ""
			continue
		}

		text := trimmed
		if m := boldHeadingPattern.FindStringSubmatch(trimmed); m != nil {
			text = strings.TrimSpace(m[1])
		}
		appendHeading(text)
	}

	return strings.Join(out, "\n")
}

// classifyHeading decides whether a non-heading line is title-shaped.
// The allow-list wins over every other rule; the exclusion set vetoes
// the general patterns.
func classifyHeading(line string, prevBlank, nextBlank bool) headingClassification {
	if knownSectionTitles[normalizeTitleKey(line)] {
		return headingClassification{Promote: true, Rule: "known-section-title"}
	}
	if isExcludedHeading(line) {
		return headingClassification{Promote: false, Rule: "excluded"}
	}

	if numberedHeadingPattern.MatchString(line) && len(strings.Fields(line)) <= 10 &&
		!strings.HasSuffix(line, ".") {
		return headingClassification{Promote: true, Rule: "numbered-section"}
	}
	if boldHeadingPattern.MatchString(line) && len(strings.Fields(line)) <= 10 {
		return headingClassification{Promote: true, Rule: "bold-wrapped"}
	}
	if prevBlank && nextBlank {
		if isAllCaps(line) && len(strings.Fields(line)) <= 10 {
			return headingClassification{Promote: true, Rule: "all-caps"}
		}
		if isShortTitleCase(line) {
			return headingClassification{Promote: true, Rule: "title-case"}
		}
	}

	return headingClassification{Promote: false, Rule: "no-pattern"}
}

// isExcludedHeading reports whether a line matches the exclusion set:
// metadata-like lines that look title-shaped but are not structure.
func isExcludedHeading(line string) bool {
	if honorificPattern.MatchString(line) {
		return true
	}
	if emailPattern.MatchString(line) || urlInLinePattern.MatchString(line) {
		return true
	}
	if labelLinePattern.MatchString(line) {
		return true
	}
	lower := strings.ToLower(line)
	for _, kw := range contactKeywords {
		if containsWord(lower, kw) {
			return true
		}
	}
	if dateTimeLinePattern.MatchString(line) {
		return true
	}
	return false
}

// isAllCaps reports sustained capitalization: at least three letters,
// none of them lowercase.
func isAllCaps(line string) bool {
	letters := 0
	for _, r := range line {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsUpper(r) {
			letters++
		}
	}
	return letters >= 3
}

// isShortTitleCase reports short standalone title-case lines with no
// terminal punctuation: every significant word capitalized, at most
// eight words.
func isShortTitleCase(line string) bool {
	if strings.HasSuffix(line, ".") || strings.HasSuffix(line, ",") ||
		strings.HasSuffix(line, ";") || strings.HasSuffix(line, ":") {
		return false
	}
	words := strings.Fields(line)
	if len(words) < 2 || len(words) > 8 {
		return false
	}
	minor := map[string]bool{
		"a": true, "an": true, "the": true, "and": true, "or": true,
		"of": true, "in": true, "on": true, "for": true, "to": true,
		"with": true, "at": true, "by": true,
	}
	for i, w := range words {
		r := []rune(w)[0]
		if unicode.IsUpper(r) || unicode.IsDigit(r) {
			continue
		}
		if i > 0 && minor[strings.ToLower(w)] {
			continue
		}
		return false
	}
	return true
}

// normalizeTitleKey reduces a line to its allow-list lookup key.
func normalizeTitleKey(line string) string {
	line = strings.TrimSuffix(strings.TrimSpace(line), ":")
	return strings.ToLower(strings.Join(strings.Fields(line), " "))
}

// containsWord reports a whole-word, case-insensitive match of needle
// in haystack (haystack already lowercased).
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], needle)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(rune(haystack[i-1]))
		afterIdx := i + len(needle)
		after := afterIdx >= len(haystack) || !isWordChar(rune(haystack[afterIdx]))
		if before && after {
			return true
		}
		idx = i + len(needle)
	}
}

func isWordChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
