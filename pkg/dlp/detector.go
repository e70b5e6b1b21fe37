package dlp

import (
	"regexp"
	"sort"
)

type compiledRule struct {
	rule Rule
	re   *regexp.Regexp
}

// Detector finds personal-looking values inside documents. It complements the
// key-based Guard during audits; it never sees writes.
type Detector struct {
	rules []compiledRule
}

// ValueFinding locates a suspicious value by path and type, never by the
// value itself.
type ValueFinding struct {
	Path     string `json:"path"`
	Type     string `json:"type"`
	Severity string `json:"severity"`
}

func NewDetector(cfg RulesConfig) (*Detector, error) {
	var compiled []compiledRule
	for _, rule := range cfg.Rules {
		if !rule.Enabled {
			continue
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, err
		}
		compiled = append(compiled, compiledRule{rule: rule, re: re})
	}
	return &Detector{rules: compiled}, nil
}

func (d *Detector) Scan(doc map[string]interface{}) []ValueFinding {
	if d == nil || len(d.rules) == 0 {
		return nil
	}

	var findings []ValueFinding
	var recurse func(path string, value interface{})
	recurse = func(path string, value interface{}) {
		switch v := value.(type) {
		case string:
			for _, rule := range d.rules {
				if rule.re.MatchString(v) {
					findings = append(findings, ValueFinding{Path: path, Type: rule.rule.Type, Severity: rule.rule.Severity})
				}
			}
		case map[string]interface{}:
			for key, nested := range v {
				recurse(joinPath(path, key), nested)
			}
		case []interface{}:
			for _, nested := range v {
				recurse(path, nested)
			}
		case []string:
			for _, nested := range v {
				recurse(path, nested)
			}
		}
	}

	for key, value := range doc {
		recurse(key, value)
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Path != findings[j].Path {
			return findings[i].Path < findings[j].Path
		}
		return findings[i].Type < findings[j].Type
	})
	return findings
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
