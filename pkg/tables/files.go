package tables

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load appends keywords and geos read from the configured files. Relative paths
// resolve against baseDir, usually the directory of the config file.
func (c *Config) Load(baseDir string) error {
	if c.KeywordsFile != "" {
		keywords, err := ReadLines(resolve(baseDir, c.KeywordsFile))
		if err != nil {
			return fmt.Errorf("table %q keywords: %w", c.Name, err)
		}

		c.Keywords = append(c.Keywords, keywords...)
	}

	if c.GeosFile != "" {
		geos, err := ReadLines(resolve(baseDir, c.GeosFile))
		if err != nil {
			return fmt.Errorf("table %q geos: %w", c.Name, err)
		}

		c.Geos = append(c.Geos, geos...)
	}

	return nil
}

// ReadLines reads one entry per line, skipping blank lines and # comments
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	var out []string

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		out = append(out, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return out, nil
}

func resolve(baseDir, path string) string {
	if filepath.IsAbs(path) || baseDir == "" {
		return path
	}

	return filepath.Join(baseDir, path)
}
