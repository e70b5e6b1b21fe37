package dlp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectorFindsPersonalValues(t *testing.T) {
	detector, err := NewDetector(DefaultRules())
	require.NoError(t, err)

	doc := map[string]interface{}{
		"age": 42,
		"medical_history": map[string]interface{}{
			"note": "call back on 555-123-4567 or jane@example.com",
		},
		"risk_metrics": map[string]interface{}{
			"risk_factors": []interface{}{"smoker", "SSN 123-45-6789"},
		},
		"created_at": "2026-10-18T09:30:00Z",
	}

	findings := detector.Scan(doc)
	assert.Equal(t, []ValueFinding{
		{Path: "medical_history.note", Type: "email", Severity: "medium"},
		{Path: "medical_history.note", Type: "phone", Severity: "medium"},
		{Path: "risk_metrics.risk_factors", Type: "ssn", Severity: "high"},
	}, findings)
}

func TestDetectorIgnoresCleanDocuments(t *testing.T) {
	detector, err := NewDetector(DefaultRules())
	require.NoError(t, err)

	doc := map[string]interface{}{
		"linking_id": "6ba7b810-9dad-11d1-80b4-00c04fd430c8",
		"height":     172.5,
		"vital_signs": map[string]interface{}{
			"last_bp": "120/80",
		},
	}
	assert.Empty(t, detector.Scan(doc))
}

func TestNewDetectorRejectsBadPattern(t *testing.T) {
	_, err := NewDetector(RulesConfig{Rules: []Rule{{Name: "broken", Type: "x", Pattern: "(", Enabled: true}}})
	assert.Error(t, err)
}
