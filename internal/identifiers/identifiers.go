// Package identifiers loads the raw catalog identifier set consumed by the
// allowlist. The upstream spreadsheet is parsed out of band; this package
// reads its flattened result, one identifier per line.
package identifiers

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadFile reads raw identifiers from path. Blank lines and lines starting
// with '#' are ignored. A missing file is not an error: it returns an empty
// set, which makes the allowlist reject everything rather than failing the
// run.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open identifiers file: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read identifiers file: %w", err)
	}
	return ids, nil
}
