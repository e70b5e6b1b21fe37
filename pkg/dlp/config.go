package dlp

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FieldRule lists extra spellings that map onto one of the forbidden fields.
type FieldRule struct {
	Field   string   `yaml:"field" json:"field"`
	Aliases []string `yaml:"aliases" json:"aliases"`
}

// Rule is a value pattern for personal data appearing inside free text.
type Rule struct {
	Name     string `yaml:"name" json:"name"`
	Type     string `yaml:"type" json:"type"`
	Pattern  string `yaml:"pattern" json:"pattern"`
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Severity string `yaml:"severity" json:"severity"`
}

type RulesConfig struct {
	Fields []FieldRule `yaml:"fields" json:"fields"`
	Rules  []Rule      `yaml:"rules" json:"rules"`
}

// LoadRules reads a YAML rules file. An empty path yields the defaults.
// Aliases in the file are added to the default ones, never replacing them.
func LoadRules(path string) (RulesConfig, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultRules(), err
	}

	var cfg RulesConfig
	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return RulesConfig{}, err
	}
	if len(cfg.Fields) == 0 && len(cfg.Rules) == 0 {
		return RulesConfig{}, errors.New("no guard rules configured")
	}
	for _, fr := range cfg.Fields {
		if !isForbidden(Field(normalizeKey(fr.Field))) {
			return RulesConfig{}, fmt.Errorf("unknown personal field %q", fr.Field)
		}
	}

	defaults := DefaultRules()
	merged := RulesConfig{
		Fields: append(defaults.Fields, cfg.Fields...),
		Rules:  cfg.Rules,
	}
	if len(merged.Rules) == 0 {
		merged.Rules = defaults.Rules
	}
	return merged, nil
}

func DefaultRules() RulesConfig {
	return RulesConfig{
		Fields: []FieldRule{
			{Field: string(FieldFullName), Aliases: []string{"fullname", "patient_name"}},
			{Field: string(FieldName), Aliases: []string{"first_name", "last_name", "given_name", "family_name", "surname"}},
			{Field: string(FieldPhone), Aliases: []string{"phone_number", "telephone", "mobile", "cell_phone"}},
			{Field: string(FieldEmail), Aliases: []string{"email_address", "e_mail", "mail"}},
			{Field: string(FieldContact), Aliases: []string{"contact_info", "emergency_contact"}},
			{Field: string(FieldAddress), Aliases: []string{"street", "street_address", "home_address", "postal_address"}},
		},
		Rules: []Rule{
			{Name: "SSN", Type: "ssn", Pattern: `\b\d{3}-\d{2}-\d{4}\b`, Enabled: true, Severity: "high"},
			{Name: "Email", Type: "email", Pattern: `\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`, Enabled: true, Severity: "medium"},
			{Name: "Phone", Type: "phone", Pattern: `\b\d{3}-\d{3}-\d{4}\b|\(\d{3}\)\s?\d{3}-\d{4}\b`, Enabled: true, Severity: "medium"},
		},
	}
}
