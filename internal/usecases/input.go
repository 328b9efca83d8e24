package usecases

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// maxLineLength bounds a single line of an uploaded email list.
const maxLineLength = 64 * 1024

// ParseEmails reads a newline-separated email list. Lines are trimmed and blank
// lines are skipped; addresses are otherwise passed through unchanged.
func ParseEmails(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineLength)

	emails := []string{}
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			line = strings.TrimPrefix(line, "\ufeff")
			first = false
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		emails = append(emails, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read email list: %w", err)
	}
	return emails, nil
}
