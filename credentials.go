package keyrelay

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadCredentials reads credentials from path, one per line.
// Surrounding whitespace is stripped; blank lines and lines starting with '#' are skipped.
// A missing or empty file is a configuration error.
func LoadCredentials(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open credentials: %w", ErrConfiguration, err)
	}
	defer f.Close()

	var creds []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		creds = append(creds, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("%w: read credentials: %w", ErrConfiguration, err)
	}

	if len(creds) == 0 {
		return nil, fmt.Errorf("%w: no credentials found in %s", ErrConfiguration, path)
	}
	return creds, nil
}
