package worker

import (
	"bufio"
	"io"
	"strings"
)

// ReadInputs reads one domain per line from r. Surrounding whitespace is trimmed; blank
// lines, "#" comments and repeated entries are dropped. Order of first appearance is kept.
func ReadInputs(r io.Reader) ([]string, error) {
	var inputs []string
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		inputs = append(inputs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return inputs, nil
}
