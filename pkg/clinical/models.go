package clinical

import "time"

const (
	KeyLinkingID      = "linking_id"
	KeyAge            = "age"
	KeyHeight         = "height"
	KeyMedicalHistory = "medical_history"
	KeyVitalSigns     = "vital_signs"
	KeyRiskMetrics    = "risk_metrics"
	KeyCreatedAt      = "created_at"
	KeyLastUpdated    = "last_updated"
	KeyIsAnonymous    = "is_anonymous"
	KeyDataType       = "data_type"

	DataTypeAnonymous = "anonymous_medical_only"
	placeholderNote   = "Medical history will be added here"
)

// MedicalFields are the keys that make a document a medical record.
var MedicalFields = []string{KeyAge, KeyHeight, KeyMedicalHistory, KeyVitalSigns, KeyRiskMetrics}

// Record is the anonymized clinical record. It holds no personal fields; the
// linking identifier is its only tie to the PII store.
type Record struct {
	LinkingID       string         `json:"linking_id"`
	Age             *int           `json:"age"`
	Height          *float64       `json:"height"`
	MedicalHistory  MedicalHistory `json:"medical_history"`
	VitalSigns      VitalSigns     `json:"vital_signs"`
	RiskMetrics     RiskMetrics    `json:"risk_metrics"`
	CreatedAt       time.Time      `json:"created_at"`
	LastUpdated     time.Time      `json:"last_updated"`
	IsAnonymous     bool           `json:"is_anonymous"`
	DataType        string         `json:"data_type"`
	SecurityWarning string         `json:"security_warning,omitempty"`
}

type MedicalHistory struct {
	Placeholder bool   `json:"placeholder"`
	Note        string `json:"note"`
}

type VitalSigns struct {
	LastBP      *string  `json:"last_bp"`
	LastGlucose *float64 `json:"last_glucose"`
	LastWeight  *float64 `json:"last_weight"`
}

type RiskMetrics struct {
	CurrentRiskScore *float64   `json:"current_risk_score"`
	LastAssessment   *time.Time `json:"last_assessment"`
	RiskFactors      []string   `json:"risk_factors"`
}

// Summary is the dashboard view of a record.
type Summary struct {
	LinkingID string    `json:"linking_id"`
	Age       *int      `json:"age"`
	Height    *float64  `json:"height"`
	CreatedAt time.Time `json:"created_at"`
	RiskScore *float64  `json:"risk_score"`
}

func (r *Record) Summary() Summary {
	return Summary{
		LinkingID: r.LinkingID,
		Age:       r.Age,
		Height:    r.Height,
		CreatedAt: r.CreatedAt,
		RiskScore: r.RiskMetrics.CurrentRiskScore,
	}
}

// Document is a record as the backend holds it, before any decoding.
type Document struct {
	ID     string
	Fields map[string]interface{}
}

func newRecord(linkingID string, age *int, height *float64, now time.Time) *Record {
	return &Record{
		LinkingID:      linkingID,
		Age:            age,
		Height:         height,
		MedicalHistory: MedicalHistory{Placeholder: true, Note: placeholderNote},
		RiskMetrics:    RiskMetrics{RiskFactors: []string{}},
		CreatedAt:      now,
		LastUpdated:    now,
		IsAnonymous:    true,
		DataType:       DataTypeAnonymous,
	}
}
