package clinical

import (
	"sort"
	"strings"
	"time"

	"github.com/synaptica-ai/medsplit/pkg/common/errs"
)

// Optional is a field that an update may set. Set with a nil Value clears it.
type Optional[T any] struct {
	Set   bool
	Value *T
}

func set[T any](v *T) Optional[T] {
	return Optional[T]{Set: true, Value: v}
}

type VitalSignsUpdate struct {
	LastBP      Optional[string]
	LastGlucose Optional[float64]
	LastWeight  Optional[float64]
}

type RiskMetricsUpdate struct {
	CurrentRiskScore Optional[float64]
	LastAssessment   Optional[time.Time]
	RiskFactors      Optional[[]string]
}

// Update is a partial change to the clinical attributes of one record. Only
// the fields below can be changed after creation.
type Update struct {
	Age         Optional[int]
	Height      Optional[float64]
	VitalSigns  VitalSignsUpdate
	RiskMetrics RiskMetricsUpdate
}

// ParseUpdate converts an edit submission into an Update. Keys are matched
// case-insensitively; any key that is not a recognized clinical field is a
// ValidationError. Personal keys must already have been refused by the guard.
func ParseUpdate(fields map[string]interface{}) (Update, error) {
	var u Update
	if len(fields) == 0 {
		return u, errs.Validation("fields", "no clinical fields to update")
	}

	for _, rawKey := range sortedKeys(fields) {
		value := fields[rawKey]
		switch strings.ToLower(strings.TrimSpace(rawKey)) {
		case KeyAge:
			u.Age = set(CoerceAge(value))
		case KeyHeight:
			u.Height = set(CoerceHeight(value))
		case KeyVitalSigns:
			vitals, err := parseVitals(value)
			if err != nil {
				return Update{}, err
			}
			u.VitalSigns = vitals
		case KeyRiskMetrics:
			risk, err := parseRisk(value)
			if err != nil {
				return Update{}, err
			}
			u.RiskMetrics = risk
		case KeyLinkingID, KeyCreatedAt, KeyLastUpdated, KeyIsAnonymous, KeyDataType, KeyMedicalHistory:
			return Update{}, errs.Validation(rawKey, "not updatable")
		default:
			return Update{}, errs.Validation(rawKey, "unknown clinical field")
		}
	}
	return u, nil
}

func parseVitals(value interface{}) (VitalSignsUpdate, error) {
	var vu VitalSignsUpdate
	nested, ok := value.(map[string]interface{})
	if !ok {
		return vu, errs.Validation(KeyVitalSigns, "must be an object")
	}
	for _, key := range sortedKeys(nested) {
		v := nested[key]
		switch key {
		case "last_bp":
			if v == nil {
				vu.LastBP = set[string](nil)
				continue
			}
			bp, ok := v.(string)
			if !ok {
				return vu, errs.Validation("vital_signs.last_bp", "must be a string")
			}
			if bp = strings.TrimSpace(bp); bp == "" {
				vu.LastBP = set[string](nil)
			} else {
				vu.LastBP = set(&bp)
			}
		case "last_glucose":
			vu.LastGlucose = set(coerceNonNegative(v))
		case "last_weight":
			vu.LastWeight = set(coerceNonNegative(v))
		default:
			return vu, errs.Validation("vital_signs."+key, "unknown clinical field")
		}
	}
	return vu, nil
}

func parseRisk(value interface{}) (RiskMetricsUpdate, error) {
	var ru RiskMetricsUpdate
	nested, ok := value.(map[string]interface{})
	if !ok {
		return ru, errs.Validation(KeyRiskMetrics, "must be an object")
	}
	for _, key := range sortedKeys(nested) {
		v := nested[key]
		switch key {
		case "current_risk_score":
			ru.CurrentRiskScore = set(coerceFloat(v))
		case "last_assessment":
			if v == nil || v == "" {
				ru.LastAssessment = set[time.Time](nil)
				continue
			}
			t := asTime(v)
			if t.IsZero() {
				return ru, errs.Validation("risk_metrics.last_assessment", "must be an RFC 3339 timestamp")
			}
			ru.LastAssessment = set(&t)
		case "risk_factors":
			factors, ok := asStrings(v)
			if !ok {
				return ru, errs.Validation("risk_metrics.risk_factors", "must be a list of strings")
			}
			ru.RiskFactors = set(&factors)
		default:
			return ru, errs.Validation("risk_metrics."+key, "unknown clinical field")
		}
	}
	return ru, nil
}

// Empty reports whether the update changes nothing.
func (u Update) Empty() bool {
	return len(u.patch(time.Time{})) == 1
}

// Fields names the document paths the update touches, without values.
func (u Update) Fields() []string {
	p := u.patch(time.Time{})
	delete(p, KeyLastUpdated)
	return sortedKeys(p)
}

// patch flattens the update into dotted document paths. last_updated is
// always refreshed.
func (u Update) patch(now time.Time) map[string]interface{} {
	p := map[string]interface{}{KeyLastUpdated: now}
	if u.Age.Set {
		p[KeyAge] = optInt(u.Age.Value)
	}
	if u.Height.Set {
		p[KeyHeight] = optFloat(u.Height.Value)
	}

	v := u.VitalSigns
	if v.LastBP.Set {
		p[KeyVitalSigns+".last_bp"] = optString(v.LastBP.Value)
	}
	if v.LastGlucose.Set {
		p[KeyVitalSigns+".last_glucose"] = optFloat(v.LastGlucose.Value)
	}
	if v.LastWeight.Set {
		p[KeyVitalSigns+".last_weight"] = optFloat(v.LastWeight.Value)
	}

	r := u.RiskMetrics
	if r.CurrentRiskScore.Set {
		p[KeyRiskMetrics+".current_risk_score"] = optFloat(r.CurrentRiskScore.Value)
	}
	if r.LastAssessment.Set {
		p[KeyRiskMetrics+".last_assessment"] = optTime(r.LastAssessment.Value)
	}
	if r.RiskFactors.Set {
		var factors []string
		if r.RiskFactors.Value != nil {
			factors = *r.RiskFactors.Value
		}
		p[KeyRiskMetrics+".risk_factors"] = stringsToValues(factors)
	}
	return p
}

// applyPatch writes dotted paths into doc, creating intermediate objects.
func applyPatch(doc map[string]interface{}, patch map[string]interface{}) {
	for path, value := range patch {
		parts := strings.Split(path, ".")
		m := doc
		for _, part := range parts[:len(parts)-1] {
			next, ok := m[part].(map[string]interface{})
			if !ok {
				next = map[string]interface{}{}
				m[part] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = value
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
