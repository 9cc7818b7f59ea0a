package analysis

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Term is a glossary entry found in a report
type Term struct {
	Term        string
	Explanation string
}

// Glossary maps medical terms to plain-language explanations. The file is a
// flat JSON object: {"cardiomegaly": "an enlarged heart", ...}.
type Glossary struct {
	terms    map[string]string
	patterns map[string]*regexp.Regexp
}

func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read glossary %s: %w", path, err)
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse glossary %s: %w", path, err)
	}
	return NewGlossary(raw), nil
}

func NewGlossary(terms map[string]string) *Glossary {
	g := &Glossary{
		terms:    make(map[string]string, len(terms)),
		patterns: make(map[string]*regexp.Regexp, len(terms)),
	}
	for term, explanation := range terms {
		key := strings.ToLower(strings.TrimSpace(term))
		if key == "" {
			continue
		}
		g.terms[key] = explanation
		g.patterns[key] = regexp.MustCompile(`\b` + regexp.QuoteMeta(key) + `\b`)
	}
	return g
}

func (g *Glossary) Len() int {
	if g == nil {
		return 0
	}
	return len(g.terms)
}

// Match returns the glossary terms that occur as whole words in text, sorted
func (g *Glossary) Match(text string) []Term {
	if g == nil {
		return nil
	}
	lower := strings.ToLower(text)
	var found []Term
	for key, pattern := range g.patterns {
		if pattern.MatchString(lower) {
			found = append(found, Term{Term: key, Explanation: g.terms[key]})
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Term < found[j].Term })
	return found
}
