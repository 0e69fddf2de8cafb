package enrich

import (
	"strings"
)

const valueCutset = " :–-\t"

// Lines splits body text into trimmed, non-blank lines.
func Lines(body string) []string {
	raw := strings.Split(body, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// ScanLabeled finds the first line containing any of labels (case-insensitive)
// and returns its value: the rest of the line with the label removed, or,
// when that is empty, the next line within lookahead lines. It returns false
// when no label yields a value.
func ScanLabeled(lines []string, labels []string, lookahead int) (string, bool) {
	for i, line := range lines {
		for _, label := range labels {
			if label == "" {
				continue
			}
			at := indexFold(line, label)
			if at < 0 {
				continue
			}
			rest := line[:at] + line[at+len(label):]
			if value := strings.Trim(rest, valueCutset); value != "" {
				return value, true
			}
			for j := i + 1; j < len(lines) && j <= i+lookahead; j++ {
				if next := strings.TrimSpace(lines[j]); next != "" {
					return next, true
				}
			}
		}
	}
	return "", false
}

// indexFold is a case-insensitive strings.Index for matches of the same byte
// length as substr.
func indexFold(s, substr string) int {
	for at := 0; at+len(substr) <= len(s); at++ {
		if strings.EqualFold(s[at:at+len(substr)], substr) {
			return at
		}
	}
	return -1
}
