package linkage

import (
	"context"
	"errors"
	"iter"

	"github.com/sirupsen/logrus"
	"github.com/synaptica-ai/medsplit/pkg/clinical"
	"github.com/synaptica-ai/medsplit/pkg/common/errs"
	"github.com/synaptica-ai/medsplit/pkg/common/logger"
	"github.com/synaptica-ai/medsplit/pkg/dlp"
	"github.com/synaptica-ai/medsplit/pkg/observability/metrics"
)

// PIIStore is the part of the PII adapter the manager uses. Personal records
// are never read back through it.
type PIIStore interface {
	Create(ctx context.Context, fullName, phone, email string) (string, error)
	Delete(ctx context.Context, linkingID string) (bool, error)
}

type ClinicalStore interface {
	Create(ctx context.Context, linkingID string, age *int, height *float64) (*clinical.Record, error)
	Get(ctx context.Context, linkingID string) (*clinical.Record, error)
	Update(ctx context.Context, linkingID string, u clinical.Update) (bool, error)
	Delete(ctx context.Context, linkingID string) (bool, error)
	List(ctx context.Context) iter.Seq2[*clinical.Record, error]
}

// Registration is the result of registering a patient. A registration whose
// clinical write failed still succeeds, with State pii_only and ClinicalError
// set.
type Registration struct {
	LinkingID     string `json:"linking_id"`
	State         State  `json:"state"`
	ClinicalError error  `json:"-"`
}

func (r Registration) ClinicalSaved() bool {
	return r.State == StateLinked
}

// DeleteOutcome reports each store separately. Success only depends on the
// PII side. State is absent when neither store held the identifier and
// unknown when either store failed.
type DeleteOutcome struct {
	PIIDeleted      bool  `json:"pii_deleted"`
	ClinicalDeleted bool  `json:"clinical_deleted"`
	State           State `json:"state"`
	PIIError        error `json:"-"`
	ClinicalError   error `json:"-"`
}

func (o DeleteOutcome) Success() bool {
	return o.PIIError == nil
}

// Manager runs the cross-store operations as a saga: the PII write commits
// first, and a failed clinical step leaves a defined partial state instead of
// rolling back.
type Manager struct {
	pii      PIIStore
	clinical ClinicalStore
	guard    *dlp.Guard
	events   Publisher
}

func NewManager(piiStore PIIStore, clinicalStore ClinicalStore, guard *dlp.Guard, events Publisher) *Manager {
	if guard == nil {
		guard = dlp.DefaultGuard()
	}
	if events == nil {
		events = discardPublisher{}
	}
	return &Manager{pii: piiStore, clinical: clinicalStore, guard: guard, events: events}
}

// RegisterPatient creates the PII record and then its clinical pair. age and
// height are raw form or JSON values; unusable values are stored as absent.
func (m *Manager) RegisterPatient(ctx context.Context, fullName, phone, email string, age, height interface{}) (Registration, error) {
	state := StateAbsent

	linkingID, err := m.pii.Create(ctx, fullName, phone, email)
	if err != nil {
		metrics.ObserveRegistration(string(StateAbsent))
		return Registration{State: state}, err
	}
	if state, err = state.moveTo(StatePIIOnly); err != nil {
		return Registration{State: state}, err
	}
	reg := Registration{LinkingID: linkingID, State: state}

	_, err = m.clinical.Create(ctx, linkingID, clinical.CoerceAge(age), clinical.CoerceHeight(height))
	if err != nil {
		reg.ClinicalError = err
		logger.WithFields(logrus.Fields{
			"linking_id": linkingID,
			"state":      reg.State,
		}).WithError(err).Warn("clinical record not saved, patient left in pii_only state")
		metrics.ObserveRegistration(string(reg.State))
		m.publish(ctx, EventPartial, map[string]interface{}{
			"linking_id": linkingID,
			"state":      string(reg.State),
		})
		return reg, nil
	}

	if reg.State, err = reg.State.moveTo(StateLinked); err != nil {
		return reg, err
	}
	metrics.ObserveRegistration(string(reg.State))
	logger.WithField("linking_id", linkingID).Info("patient registered")
	m.publish(ctx, EventRegistered, map[string]interface{}{
		"linking_id": linkingID,
		"state":      string(reg.State),
	})
	return reg, nil
}

// GetDisplayRecord returns the clinical side only, or clinical.ErrNotFound.
func (m *Manager) GetDisplayRecord(ctx context.Context, linkingID string) (*clinical.Record, error) {
	return m.clinical.Get(ctx, linkingID)
}

// ListDisplayRecords returns the dashboard view of every clinical record.
func (m *Manager) ListDisplayRecords(ctx context.Context) ([]clinical.Summary, error) {
	summaries := []clinical.Summary{}
	for record, err := range m.clinical.List(ctx) {
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, record.Summary())
	}
	return summaries, nil
}

func (m *Manager) ListMedicalData(ctx context.Context) ([]*clinical.Record, error) {
	records := []*clinical.Record{}
	for record, err := range m.clinical.List(ctx) {
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// UpdateClinical checks fields with the guard before anything else; a
// personal key rejects the whole update.
func (m *Manager) UpdateClinical(ctx context.Context, linkingID string, fields map[string]interface{}) (bool, error) {
	if err := m.guard.Check(linkingID, fields); err != nil {
		metrics.ObserveSecurityViolation(metrics.SourceGuard)
		metrics.ObserveClinicalUpdate("rejected")
		var violation *errs.SecurityViolation
		if errors.As(err, &violation) {
			m.publish(ctx, EventSecurityViolation, map[string]interface{}{
				"linking_id": linkingID,
				"field":      violation.Field,
			})
		}
		return false, err
	}

	update, err := clinical.ParseUpdate(fields)
	if err == nil && update.Empty() {
		err = errs.Validation("fields", "no clinical field to update")
	}
	if err != nil {
		metrics.ObserveClinicalUpdate("invalid")
		return false, err
	}

	updated, err := m.clinical.Update(ctx, linkingID, update)
	if err != nil {
		metrics.ObserveClinicalUpdate("error")
		return false, err
	}
	if !updated {
		metrics.ObserveClinicalUpdate("missing")
		return false, nil
	}

	metrics.ObserveClinicalUpdate("updated")
	m.publish(ctx, EventClinicalUpdated, map[string]interface{}{
		"linking_id": linkingID,
		"fields":     update.Fields(),
	})
	return true, nil
}

// DeletePatient deletes from both stores independently. The returned error is
// the PII failure, if any; a clinical failure is only logged and reported in
// the outcome.
func (m *Manager) DeletePatient(ctx context.Context, linkingID string) (DeleteOutcome, error) {
	var out DeleteOutcome
	out.PIIDeleted, out.PIIError = m.pii.Delete(ctx, linkingID)
	out.ClinicalDeleted, out.ClinicalError = m.clinical.Delete(ctx, linkingID)
	state, err := stateAfterDelete(out.PIIDeleted, out.ClinicalDeleted, out.PIIError, out.ClinicalError)
	if err != nil {
		return out, err
	}
	out.State = state

	metrics.ObserveDeletion(errs.StorePII, deletionResult(out.PIIDeleted, out.PIIError))
	metrics.ObserveDeletion(errs.StoreClinical, deletionResult(out.ClinicalDeleted, out.ClinicalError))

	entry := logger.WithFields(logrus.Fields{
		"linking_id":       linkingID,
		"pii_deleted":      out.PIIDeleted,
		"clinical_deleted": out.ClinicalDeleted,
		"state":            out.State,
	})
	if out.ClinicalError != nil {
		entry.WithError(out.ClinicalError).Warn("clinical record not deleted")
	}
	if out.PIIError != nil {
		entry.WithError(out.PIIError).Error("patient deletion failed")
		return out, out.PIIError
	}
	entry.Info("patient deleted")

	m.publish(ctx, EventDeleted, map[string]interface{}{
		"linking_id":       linkingID,
		"pii_deleted":      out.PIIDeleted,
		"clinical_deleted": out.ClinicalDeleted,
		"state":            string(out.State),
	})
	return out, nil
}

func deletionResult(deleted bool, err error) string {
	switch {
	case err != nil:
		return "error"
	case deleted:
		return "deleted"
	default:
		return "absent"
	}
}

func (m *Manager) publish(ctx context.Context, eventType string, data map[string]interface{}) {
	if err := m.events.Publish(ctx, eventType, data); err != nil {
		logger.WithField("event_type", eventType).WithError(err).Warn("failed to publish lifecycle event")
	}
}
