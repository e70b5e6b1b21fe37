package verifier

import "sort"

const (
	WarningOrphanPII             = "orphan_pii"
	WarningOrphanClinical        = "orphan_clinical"
	WarningMissingIdentifier     = "missing_identifier"
	WarningMalformedIdentifier   = "malformed_identifier"
	WarningIdentifierMismatch    = "identifier_mismatch"
	WarningMissingMedicalContent = "missing_medical_content"
	WarningSuspectValue          = "suspect_value"
	WarningClinicalUnavailable   = "clinical_unavailable"
)

// Report is the structured result of one verification run. It carries no
// timestamps, so two runs over unchanged stores compare equal.
type Report struct {
	SQLitePersonalCount  int64 `json:"sqlite_personal_count"`
	FirebaseMedicalCount int   `json:"firebase_medical_count"`
	LinkedCount          int   `json:"linked_count"`

	// ClinicalAvailable is false when the clinical store could not be read;
	// only the PII side was audited and no linkage comparison was made.
	ClinicalAvailable bool `json:"clinical_available"`

	SQLiteOnly   IDPreview `json:"sqlite_only"`
	FirebaseOnly IDPreview `json:"firebase_only"`

	PersonalInFirebase bool        `json:"personal_in_firebase"`
	Violations         []Violation `json:"violations"`

	MedicalInSQLite       bool     `json:"medical_in_sqlite"`
	MedicalFieldsInSQLite []string `json:"medical_fields_in_sqlite"`

	LinkageIssues   bool `json:"linkage_issues"`
	IntegrityIssues bool `json:"integrity_issues"`

	// MalformedIdentifiers also counts documents with no linking_id field.
	MalformedIdentifiers  IDPreview `json:"malformed_identifiers"`
	MissingMedicalContent IDPreview `json:"missing_medical_content"`
	SuspectValues         IDPreview `json:"suspect_values"`
	Warnings              []Warning `json:"warnings"`
}

// Violation is one personal field found in one clinical record.
type Violation struct {
	LinkingID string `json:"linking_id"`
	Field     string `json:"field"`
}

// Warning is an integrity finding. It never blocks other checks and is never
// treated as a security violation.
type Warning struct {
	Kind      string `json:"kind"`
	LinkingID string `json:"linking_id"`
	Detail    string `json:"detail,omitempty"`
}

// IDPreview is a bounded, sorted sample of identifiers plus how many were left out.
type IDPreview struct {
	Count    int      `json:"count"`
	Preview  []string `json:"preview"`
	Overflow int      `json:"overflow"`
}

func newPreview(ids []string, limit int) IDPreview {
	sorted := append([]string{}, ids...)
	sort.Strings(sorted)
	sorted = dedupeSorted(sorted)

	p := IDPreview{Count: len(sorted), Preview: sorted}
	if limit >= 0 && len(sorted) > limit {
		p.Preview = sorted[:limit]
		p.Overflow = len(sorted) - limit
	}
	return p
}

// Clean reports whether the run found no separation violation. Integrity
// warnings do not count.
func (r *Report) Clean() bool {
	return !r.PersonalInFirebase && !r.MedicalInSQLite
}

// Findings summarises the report per category for metrics.
func (r *Report) Findings() map[string]int {
	return map[string]int{
		"personal_in_clinical":    len(r.Violations),
		"medical_in_pii":          len(r.MedicalFieldsInSQLite),
		"pii_only":                r.SQLiteOnly.Count,
		"clinical_only":           r.FirebaseOnly.Count,
		"malformed_identifiers":   r.MalformedIdentifiers.Count,
		"missing_medical_content": r.MissingMedicalContent.Count,
		"suspect_values":          r.SuspectValues.Count,
	}
}

func sortViolations(v []Violation) {
	sort.Slice(v, func(i, j int) bool {
		if v[i].LinkingID != v[j].LinkingID {
			return v[i].LinkingID < v[j].LinkingID
		}
		return v[i].Field < v[j].Field
	})
}

func sortWarnings(w []Warning) {
	sort.Slice(w, func(i, j int) bool {
		if w[i].Kind != w[j].Kind {
			return w[i].Kind < w[j].Kind
		}
		if w[i].LinkingID != w[j].LinkingID {
			return w[i].LinkingID < w[j].LinkingID
		}
		return w[i].Detail < w[j].Detail
	})
}

func dedupeSorted(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i > 0 && s == in[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
