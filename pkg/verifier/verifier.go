package verifier

import (
	"context"
	"iter"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/medsplit/pkg/clinical"
	"github.com/synaptica-ai/medsplit/pkg/common/errs"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
	"github.com/synaptica-ai/medsplit/pkg/dlp"
	"github.com/synaptica-ai/medsplit/pkg/identifier"
	"github.com/synaptica-ai/medsplit/pkg/observability/metrics"
)

// PIISource is the read-only audit view of the PII store.
type PIISource interface {
	LinkingIDs(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int64, error)
	ColumnNames(ctx context.Context) ([]string, error)
}

// ClinicalSource yields raw clinical documents, before any read-time filtering.
type ClinicalSource interface {
	Documents(ctx context.Context) iter.Seq2[clinical.Document, error]
}

// Column names in the PII table that suggest medical data leaked into it.
var medicalMarkers = []string{"age", "height", "medical", "risk", "blood", "glucose", "weight", "bmi"}

// Verifier audits both stores. It only reads and never repairs anything.
type Verifier struct {
	pii          PIISource
	clinical     ClinicalSource
	guard        *dlp.Guard
	detector     *dlp.Detector
	previewLimit int
}

// NewVerifier builds a verifier. A nil guard uses the default field set; a nil
// detector skips the value scan.
func NewVerifier(piiSource PIISource, clinicalSource ClinicalSource, guard *dlp.Guard, detector *dlp.Detector, previewLimit int) *Verifier {
	if guard == nil {
		guard = dlp.DefaultGuard()
	}
	if previewLimit < 0 {
		previewLimit = 0
	}
	return &Verifier{
		pii:          piiSource,
		clinical:     clinicalSource,
		guard:        guard,
		detector:     detector,
		previewLimit: previewLimit,
	}
}

func (v *Verifier) Verify(ctx context.Context) (*Report, error) {
	piiIDs, err := v.pii.LinkingIDs(ctx)
	if err != nil {
		return nil, err
	}
	piiCount, err := v.pii.Count(ctx)
	if err != nil {
		return nil, err
	}
	columns, err := v.pii.ColumnNames(ctx)
	if err != nil {
		return nil, err
	}

	report := &Report{
		SQLitePersonalCount:   piiCount,
		Violations:            []Violation{},
		MedicalFieldsInSQLite: medicalColumns(columns),
		Warnings:              []Warning{},
	}
	report.MedicalInSQLite = len(report.MedicalFieldsInSQLite) > 0
	for _, column := range report.MedicalFieldsInSQLite {
		logger.WithField("column", column).Error("SECURITY BREACH: medical column found in personal store")
	}

	scan, err := v.scanClinical(ctx)
	switch {
	case errs.IsUnavailable(err):
		logger.Log.WithError(err).Warn("clinical store unavailable, skipping clinical verification")
		report.Warnings = append(report.Warnings, Warning{Kind: WarningClinicalUnavailable, Detail: err.Error()})
	case err != nil:
		return nil, err
	default:
		report.ClinicalAvailable = true
		report.FirebaseMedicalCount = scan.count
		report.Violations = append(report.Violations, scan.violations...)
		report.Warnings = append(report.Warnings, scan.warnings...)
	}

	var sqliteOnly, firebaseOnly, malformed, missingContent, suspect []string
	if scan != nil {
		sqliteOnly, firebaseOnly = v.compareIDs(report, piiIDs, scan.ids)
		malformed, missingContent, suspect = scan.malformed, scan.missingContent, scan.suspect
	}

	report.SQLiteOnly = newPreview(sqliteOnly, v.previewLimit)
	report.FirebaseOnly = newPreview(firebaseOnly, v.previewLimit)
	for _, id := range sqliteOnly {
		report.Warnings = append(report.Warnings, Warning{Kind: WarningOrphanPII, LinkingID: id})
	}
	for _, id := range firebaseOnly {
		report.Warnings = append(report.Warnings, Warning{Kind: WarningOrphanClinical, LinkingID: id})
	}

	report.MalformedIdentifiers = newPreview(malformed, v.previewLimit)
	report.MissingMedicalContent = newPreview(missingContent, v.previewLimit)
	report.SuspectValues = newPreview(suspect, v.previewLimit)

	report.PersonalInFirebase = len(report.Violations) > 0
	report.LinkageIssues = report.SQLiteOnly.Count > 0 || report.FirebaseOnly.Count > 0
	report.IntegrityIssues = report.MalformedIdentifiers.Count > 0 || report.MissingMedicalContent.Count > 0 ||
		report.SuspectValues.Count > 0

	sortViolations(report.Violations)
	sortWarnings(report.Warnings)

	metrics.ObserveVerification(report.Findings())
	logger.WithFields(logrus.Fields{
		"sqlite_personal_count":  report.SQLitePersonalCount,
		"firebase_medical_count": report.FirebaseMedicalCount,
		"linked_count":           report.LinkedCount,
		"personal_in_firebase":   report.PersonalInFirebase,
		"medical_in_sqlite":      report.MedicalInSQLite,
		"clinical_available":     report.ClinicalAvailable,
		"warnings":               len(report.Warnings),
	}).Info("separation verification complete")

	return report, nil
}

// clinicalScan collects the per-document findings of one pass over the
// clinical store.
type clinicalScan struct {
	count          int
	ids            map[string]bool
	violations     []Violation
	warnings       []Warning
	malformed      []string
	missingContent []string
	suspect        []string
}

func (v *Verifier) scanClinical(ctx context.Context) (*clinicalScan, error) {
	scan := &clinicalScan{ids: map[string]bool{}}
	for doc, err := range v.clinical.Documents(ctx) {
		if err != nil {
			return nil, err
		}
		scan.count++

		id, warnings := v.checkIdentifier(doc)
		scan.warnings = append(scan.warnings, warnings...)
		for _, w := range warnings {
			if w.Kind == WarningMissingIdentifier || w.Kind == WarningMalformedIdentifier {
				scan.malformed = append(scan.malformed, id)
			}
		}
		scan.ids[id] = true

		for _, key := range v.guard.PersonalPaths(doc.Fields) {
			scan.violations = append(scan.violations, Violation{LinkingID: id, Field: key})
			logger.Security(id, key).Error("SECURITY BREACH: personal field found in clinical store")
		}

		if !hasMedicalContent(doc.Fields) {
			scan.missingContent = append(scan.missingContent, id)
			scan.warnings = append(scan.warnings, Warning{
				Kind:      WarningMissingMedicalContent,
				LinkingID: id,
				Detail:    "no recognized medical field",
			})
		}

		for _, finding := range v.detector.Scan(doc.Fields) {
			scan.suspect = append(scan.suspect, id)
			scan.warnings = append(scan.warnings, Warning{
				Kind:      WarningSuspectValue,
				LinkingID: id,
				Detail:    finding.Path + " looks like " + finding.Type,
			})
		}
	}
	return scan, nil
}

// compareIDs fills the linked count and returns the identifiers held by only
// one store.
func (v *Verifier) compareIDs(report *Report, piiIDs []string, clinicalIDs map[string]bool) (sqliteOnly, firebaseOnly []string) {
	piiSet := make(map[string]bool, len(piiIDs))
	for _, id := range piiIDs {
		piiSet[id] = true
		if clinicalIDs[id] {
			report.LinkedCount++
		} else {
			sqliteOnly = append(sqliteOnly, id)
		}
	}
	for id := range clinicalIDs {
		if !piiSet[id] {
			firebaseOnly = append(firebaseOnly, id)
		}
	}
	return sqliteOnly, firebaseOnly
}

// checkIdentifier picks the identifier a document is audited under: its
// linking_id field, or the store key when the field is absent.
func (v *Verifier) checkIdentifier(doc clinical.Document) (string, []Warning) {
	field, _ := doc.Fields[clinical.KeyLinkingID].(string)
	field = strings.TrimSpace(field)

	if field == "" {
		w := Warning{Kind: WarningMissingIdentifier, LinkingID: doc.ID, Detail: "linking_id field absent"}
		if identifier.Valid(doc.ID) {
			return doc.ID, []Warning{w}
		}
		return doc.ID, []Warning{w, {Kind: WarningMalformedIdentifier, LinkingID: doc.ID, Detail: "store key is not a canonical identifier"}}
	}

	var warnings []Warning
	if field != doc.ID {
		warnings = append(warnings, Warning{
			Kind:      WarningIdentifierMismatch,
			LinkingID: field,
			Detail:    "stored under key " + doc.ID,
		})
	}
	if !identifier.Valid(field) {
		warnings = append(warnings, Warning{Kind: WarningMalformedIdentifier, LinkingID: field, Detail: "not a canonical identifier"})
	}
	return field, warnings
}

func hasMedicalContent(fields map[string]interface{}) bool {
	for _, key := range clinical.MedicalFields {
		if _, ok := fields[key]; ok {
			return true
		}
	}
	return false
}

func medicalColumns(columns []string) []string {
	found := []string{}
	for _, column := range columns {
		lower := strings.ToLower(column)
		for _, marker := range medicalMarkers {
			if strings.Contains(lower, marker) {
				found = append(found, column)
				break
			}
		}
	}
	return newPreview(found, -1).Preview
}
