package clinical

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Backends hand documents back in different shapes: Firestore returns int64
// and time.Time, JSON-backed stores return float64 and RFC 3339 strings. The
// readers below accept all of them.

func toDocument(r *Record) map[string]interface{} {
	return map[string]interface{}{
		KeyLinkingID: r.LinkingID,
		KeyAge:       optInt(r.Age),
		KeyHeight:    optFloat(r.Height),
		KeyMedicalHistory: map[string]interface{}{
			"placeholder": r.MedicalHistory.Placeholder,
			"note":        r.MedicalHistory.Note,
		},
		KeyVitalSigns: map[string]interface{}{
			"last_bp":      optString(r.VitalSigns.LastBP),
			"last_glucose": optFloat(r.VitalSigns.LastGlucose),
			"last_weight":  optFloat(r.VitalSigns.LastWeight),
		},
		KeyRiskMetrics: map[string]interface{}{
			"current_risk_score": optFloat(r.RiskMetrics.CurrentRiskScore),
			"last_assessment":    optTime(r.RiskMetrics.LastAssessment),
			"risk_factors":       stringsToValues(r.RiskMetrics.RiskFactors),
		},
		KeyCreatedAt:   r.CreatedAt,
		KeyLastUpdated: r.LastUpdated,
		KeyIsAnonymous: r.IsAnonymous,
		KeyDataType:    r.DataType,
	}
}

func fromDocument(fields map[string]interface{}) *Record {
	r := &Record{
		LinkingID:   asString(fields[KeyLinkingID]),
		Age:         CoerceAge(fields[KeyAge]),
		Height:      CoerceHeight(fields[KeyHeight]),
		CreatedAt:   asTime(fields[KeyCreatedAt]),
		LastUpdated: asTime(fields[KeyLastUpdated]),
		DataType:    asString(fields[KeyDataType]),
	}
	r.IsAnonymous, _ = fields[KeyIsAnonymous].(bool)

	if history, ok := fields[KeyMedicalHistory].(map[string]interface{}); ok {
		r.MedicalHistory.Placeholder, _ = history["placeholder"].(bool)
		r.MedicalHistory.Note = asString(history["note"])
	}
	if vitals, ok := fields[KeyVitalSigns].(map[string]interface{}); ok {
		if bp := asString(vitals["last_bp"]); bp != "" {
			r.VitalSigns.LastBP = &bp
		}
		r.VitalSigns.LastGlucose = coerceNonNegative(vitals["last_glucose"])
		r.VitalSigns.LastWeight = coerceNonNegative(vitals["last_weight"])
	}
	r.RiskMetrics.RiskFactors = []string{}
	if risk, ok := fields[KeyRiskMetrics].(map[string]interface{}); ok {
		r.RiskMetrics.CurrentRiskScore = coerceFloat(risk["current_risk_score"])
		if t := asTime(risk["last_assessment"]); !t.IsZero() {
			r.RiskMetrics.LastAssessment = &t
		}
		if factors, ok := asStrings(risk["risk_factors"]); ok {
			r.RiskMetrics.RiskFactors = factors
		}
	}
	return r
}

// CoerceAge turns form or JSON input into an age. Only non-negative whole
// numbers survive; anything else is treated as absent.
func CoerceAge(v interface{}) *int {
	var n int64
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" || strings.TrimLeft(s, "0123456789") != "" {
			return nil
		}
		parsed, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil
		}
		n = parsed
	case int:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case float64:
		if val != math.Trunc(val) || val > math.MaxInt32 {
			return nil
		}
		n = int64(val)
	case json.Number:
		parsed, err := val.Int64()
		if err != nil {
			return nil
		}
		n = parsed
	default:
		return nil
	}
	if n < 0 || n > math.MaxInt32 {
		return nil
	}
	age := int(n)
	return &age
}

// CoerceHeight accepts any finite non-negative real.
func CoerceHeight(v interface{}) *float64 {
	return coerceNonNegative(v)
}

func coerceNonNegative(v interface{}) *float64 {
	f := coerceFloat(v)
	if f == nil || *f < 0 {
		return nil
	}
	return f
}

func coerceFloat(v interface{}) *float64 {
	var f float64
	switch val := v.(type) {
	case nil:
		return nil
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func asTime(v interface{}) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val.UTC()
	case *time.Time:
		if val != nil {
			return val.UTC()
		}
	case string:
		if t, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func asStrings(v interface{}) ([]string, bool) {
	switch val := v.(type) {
	case []string:
		return append([]string{}, val...), true
	case []interface{}:
		out := make([]string, 0, len(val))
		for _, item := range val {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	}
	return nil, false
}

func optInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func optFloat(v *float64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optString(v *string) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func optTime(v *time.Time) interface{} {
	if v == nil {
		return nil
	}
	return v.UTC()
}

func stringsToValues(in []string) []interface{} {
	out := make([]interface{}, 0, len(in))
	for _, s := range in {
		out = append(out, s)
	}
	return out
}
