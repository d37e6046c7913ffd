// Package sanitize turns raw model output into text that renders cleanly in
// a constrained mobile view. It only touches formatting artifacts, never
// wording: the same input always yields the same output, and text it does
// not recognize passes through untouched.
package sanitize

import (
	"regexp"
	"strings"
)

var (
	headingMarks  = regexp.MustCompile(`^#{1,6}\s*`)
	boldMarks     = regexp.MustCompile(`(\*\*|__)(.+?)(\*\*|__)`)
	italicMarks   = regexp.MustCompile(`\*([^*]+)\*`)
	bulletMarks   = regexp.MustCompile(`^[\*\+•]\s+`)
	horizontalBar = regexp.MustCompile(`^[-*_=]{3,}$`)
	tableDivider  = regexp.MustCompile(`^\|?[\s:|-]+\|?$`)
	inlineCode    = "`"
)

// Clean strips markup noise from raw agent or tip output.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	var prev string
	blanks := 0

	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		trimmed := strings.TrimSpace(line)

		// Code fences and horizontal rules carry no content on mobile.
		if strings.HasPrefix(trimmed, "```") || horizontalBar.MatchString(trimmed) {
			continue
		}
		// Markdown table divider rows are pure decoration.
		if strings.Contains(trimmed, "|") && tableDivider.MatchString(trimmed) {
			continue
		}

		line = headingMarks.ReplaceAllString(line, "")
		line = strings.TrimRight(line, "#")
		line = strings.TrimRight(line, " ")
		line = bulletMarks.ReplaceAllString(line, "- ")
		line = boldMarks.ReplaceAllString(line, "$2")
		line = italicMarks.ReplaceAllString(line, "$1")
		line = strings.ReplaceAll(line, inlineCode, "")
		line = trimTablePipes(line)

		trimmed = strings.TrimSpace(line)
		if trimmed == "" {
			blanks++
			continue
		}
		// Collapse runs of blank lines into one and drop a line repeated
		// back to back, which is how duplicated headings show up.
		if blanks > 0 && len(cleaned) > 0 {
			cleaned = append(cleaned, "")
		}
		blanks = 0
		if trimmed == prev {
			continue
		}
		prev = trimmed
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

// trimTablePipes removes the outer pipes of a markdown table row so the row
// reads as plain delimited text.
func trimTablePipes(line string) string {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "|") {
		return line
	}
	trimmed = strings.Trim(trimmed, "|")
	cells := strings.Split(trimmed, "|")
	for i, cell := range cells {
		cells[i] = strings.TrimSpace(cell)
	}
	return strings.Join(cells, " | ")
}
