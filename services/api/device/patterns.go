package device

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// patternFile is the on-disk layout of the name-pattern table:
//
//	slots:
//	  1: [tempA, sensor_suelo_1]
//	  2: [tempB]
type patternFile struct {
	Slots map[int][]string `yaml:"slots"`
}

// LoadPatterns reads the slot table from path.
func LoadPatterns(path string) (map[int][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open device patterns: %w", err)
	}
	defer f.Close()
	return ParsePatterns(f)
}

// ParsePatterns decodes a slot table. Slots must be positive and list at least one name.
func ParsePatterns(r io.Reader) (map[int][]string, error) {
	var pf patternFile
	if err := yaml.NewDecoder(r).Decode(&pf); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode device patterns: %w", err)
	}
	table := make(map[int][]string, len(pf.Slots))
	for slot, names := range pf.Slots {
		if slot < 1 {
			return nil, fmt.Errorf("device patterns: slot %d must be positive", slot)
		}
		clean := make([]string, 0, len(names))
		for _, n := range names {
			if n != "" {
				clean = append(clean, n)
			}
		}
		if len(clean) == 0 {
			return nil, fmt.Errorf("device patterns: slot %d has no sensor names", slot)
		}
		table[slot] = clean
	}
	return table, nil
}
