package pii

import (
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed packs/*.yaml
var packFS embed.FS

// pack is one named set of compiled detection patterns. The default pack is
// always active; domain packs merge on top when the caller selects them.
type pack struct {
	Name     string
	Patterns []pattern
}

type pattern struct {
	Type string
	re   *regexp.Regexp
}

type packFile struct {
	Name     string `yaml:"name"`
	Patterns []struct {
		Type  string `yaml:"type"`
		Regex string `yaml:"regex"`
	} `yaml:"patterns"`
}

// loadPacks parses and compiles every embedded pack, keyed by lowercase
// name. Compilation failures are programmer errors in the shipped packs and
// fail loading outright.
func loadPacks() (map[string]pack, error) {
	entries, err := fs.Glob(packFS, "packs/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(entries)

	packs := make(map[string]pack, len(entries))
	for _, name := range entries {
		raw, err := packFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("reading pattern pack %s: %w", name, err)
		}
		var pf packFile
		if err := yaml.Unmarshal(raw, &pf); err != nil {
			return nil, fmt.Errorf("parsing pattern pack %s: %w", name, err)
		}
		if pf.Name == "" {
			return nil, fmt.Errorf("pattern pack %s has no name", name)
		}

		p := pack{Name: pf.Name}
		for _, pat := range pf.Patterns {
			re, err := regexp.Compile(pat.Regex)
			if err != nil {
				return nil, fmt.Errorf("pattern pack %s, type %s: %w", name, pat.Type, err)
			}
			p.Patterns = append(p.Patterns, pattern{Type: pat.Type, re: re})
		}
		packs[p.Name] = p
	}
	return packs, nil
}
