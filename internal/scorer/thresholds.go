package scorer

import (
	"slices"
	"strconv"
	"strings"

	apperrors "github.com/good-listener/wakelistener/internal/errors"
)

// Phrase is a wake phrase with its trigger threshold.
type Phrase struct {
	Name      string  `yaml:"name"`
	Threshold float64 `yaml:"threshold"`
}

// Thresholds holds the configured phrases in precedence order. Phrases the
// model reports that are not configured use Default.
type Thresholds struct {
	Phrases []Phrase
	Default float64
}

// Match returns the first phrase whose score exceeds its threshold.
// Configured phrases are checked in configured order, then any unconfigured
// phrases in lexical order.
func (t Thresholds) Match(s Scores) (Phrase, float64, bool) {
	seen := make(map[string]bool, len(t.Phrases))
	for _, p := range t.Phrases {
		seen[p.Name] = true
		if v, ok := s[p.Name]; ok && v > p.Threshold {
			return p, v, true
		}
	}

	var extra []string
	for name := range s {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	slices.Sort(extra)
	for _, name := range extra {
		if v := s[name]; v > t.Default {
			return Phrase{Name: name, Threshold: t.Default}, v, true
		}
	}
	return Phrase{}, 0, false
}

// ParsePhrases parses "name[:threshold]" entries. Entries without a
// threshold get def.
func ParsePhrases(entries []string, def float64) ([]Phrase, error) {
	out := make([]Phrase, 0, len(entries))
	for _, e := range entries {
		name, raw, hasThreshold := strings.Cut(strings.TrimSpace(e), ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "empty wake phrase in %q", e)
		}
		p := Phrase{Name: name, Threshold: def}
		if hasThreshold {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return nil, apperrors.Wrapf(err, apperrors.CodeConfigInvalid, "wake phrase %q threshold", name)
			}
			p.Threshold = v
		}
		if p.Threshold < 0 || p.Threshold >= 1 {
			return nil, apperrors.Newf(apperrors.CodeConfigInvalid, "wake phrase %q threshold %v outside [0,1)", name, p.Threshold)
		}
		out = append(out, p)
	}
	return out, nil
}
