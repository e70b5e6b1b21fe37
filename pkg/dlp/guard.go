package dlp

import (
	"sort"
	"strings"

	"github.com/synaptica-ai/medsplit/pkg/common/errs"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
)

// Field is one of the personal attributes that may only live in the PII store.
type Field string

const (
	FieldFullName Field = "full_name"
	FieldName     Field = "name"
	FieldPhone    Field = "phone"
	FieldEmail    Field = "email"
	FieldContact  Field = "contact"
	FieldAddress  Field = "address"
)

// ForbiddenFields is the closed set of personal fields.
var ForbiddenFields = []Field{FieldFullName, FieldName, FieldPhone, FieldEmail, FieldContact, FieldAddress}

func isForbidden(f Field) bool {
	for _, candidate := range ForbiddenFields {
		if candidate == f {
			return true
		}
	}
	return false
}

// Guard decides whether a key names personal data. It is the single check
// every write into the clinical store goes through.
type Guard struct {
	lookup map[string]Field
}

func NewGuard(cfg RulesConfig) *Guard {
	lookup := make(map[string]Field, len(ForbiddenFields)*4)
	for _, f := range ForbiddenFields {
		lookup[string(f)] = f
	}
	for _, fr := range cfg.Fields {
		field := Field(normalizeKey(fr.Field))
		if !isForbidden(field) {
			continue
		}
		for _, alias := range fr.Aliases {
			if key := normalizeKey(alias); key != "" {
				lookup[key] = field
			}
		}
	}
	return &Guard{lookup: lookup}
}

var defaultGuard = NewGuard(DefaultRules())

func DefaultGuard() *Guard {
	return defaultGuard
}

// ContainsPII reports whether any key of fields is personal, using the default guard.
func ContainsPII(fields map[string]interface{}) bool {
	return defaultGuard.ContainsPII(fields)
}

// Match maps a key onto the personal field it names, ignoring case and
// separator style.
func (g *Guard) Match(key string) (Field, bool) {
	f, ok := g.lookup[normalizeKey(key)]
	return f, ok
}

func (g *Guard) ContainsPII(fields map[string]interface{}) bool {
	for key := range fields {
		if _, ok := g.Match(key); ok {
			return true
		}
	}
	return false
}

// PersonalKeys returns the keys of fields that name personal data, sorted.
func (g *Guard) PersonalKeys(fields map[string]interface{}) []string {
	var hits []string
	for key := range fields {
		if _, ok := g.Match(key); ok {
			hits = append(hits, key)
		}
	}
	sort.Strings(hits)
	return hits
}

// PersonalPaths is PersonalKeys applied to nested objects as well. Nested
// hits are dotted paths such as "vital_signs.email".
func (g *Guard) PersonalPaths(fields map[string]interface{}) []string {
	var hits []string
	g.collectPaths("", fields, &hits)
	sort.Strings(hits)
	return hits
}

func (g *Guard) collectPaths(prefix string, fields map[string]interface{}, hits *[]string) {
	for key, value := range fields {
		path := prefix + key
		if _, ok := g.Match(key); ok {
			*hits = append(*hits, path)
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			g.collectPaths(path+".", nested, hits)
		}
	}
}

// Check refuses fields bound for the clinical record of linkingID when any
// key, at any depth, is personal. Every offending path is logged; the first
// one is returned.
func (g *Guard) Check(linkingID string, fields map[string]interface{}) error {
	hits := g.PersonalPaths(fields)
	if len(hits) == 0 {
		return nil
	}
	for _, key := range hits {
		logger.Security(linkingID, key).Error("SECURITY VIOLATION: personal field attempted in clinical data")
	}
	return &errs.SecurityViolation{Field: hits[0], LinkingID: linkingID}
}

func normalizeKey(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	return strings.NewReplacer("-", "_", " ", "_", ".", "_").Replace(key)
}
