package linkage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/synaptica-ai/medsplit/pkg/clinical"
	"github.com/synaptica-ai/medsplit/pkg/common/errs"
	"github.com/synaptica-ai/medsplit/pkg/dlp"
	"github.com/synaptica-ai/medsplit/pkg/pii"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type recordedEvent struct {
	Type string
	Data map[string]interface{}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, eventType string, data map[string]interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Type: eventType, Data: data})
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type unavailablePII struct{}

func (unavailablePII) Create(context.Context, string, string, string) (string, error) {
	return "", errs.Unavailable(errs.StorePII, "create", errors.New("connection refused"))
}

func (unavailablePII) Delete(context.Context, string) (bool, error) {
	return false, errs.Unavailable(errs.StorePII, "delete", errors.New("connection refused"))
}

type ManagerSuite struct {
	suite.Suite
	piiRepo  *pii.Repository
	clinical *clinical.Store
	events   *recordingPublisher
	manager  *Manager
	ctx      context.Context
}

func TestManagerSuite(t *testing.T) {
	suite.Run(t, new(ManagerSuite))
}

func (s *ManagerSuite) SetupTest() {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	s.Require().NoError(err)
	sqlDB, err := db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	s.T().Cleanup(func() { sqlDB.Close() })

	s.piiRepo = pii.NewRepository(db, 2*time.Second)
	s.Require().NoError(s.piiRepo.AutoMigrate())
	s.clinical = clinical.NewStore(clinical.NewMemoryBackend(), nil, 2*time.Second)
	s.events = &recordingPublisher{}
	s.manager = NewManager(s.piiRepo, s.clinical, nil, s.events)
	s.ctx = context.Background()
}

func (s *ManagerSuite) register(name string) Registration {
	reg, err := s.manager.RegisterPatient(s.ctx, name, "555-0100", "patient@example.com", "42", "171.5")
	s.Require().NoError(err)
	return reg
}

func (s *ManagerSuite) TestRegisterLinksBothStores() {
	reg, err := s.manager.RegisterPatient(s.ctx, "Grace Hopper", "555-0199", "grace@example.com", "85", "160")
	s.Require().NoError(err)
	s.Equal(StateLinked, reg.State)
	s.True(reg.ClinicalSaved())
	s.NoError(reg.ClinicalError)

	person, err := s.piiRepo.Get(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.Equal("Grace Hopper", person.FullName)
	s.Equal("555-0199", person.Phone)
	s.Equal("grace@example.com", person.Email)

	record, err := s.manager.GetDisplayRecord(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.Equal(reg.LinkingID, record.LinkingID)
	s.Require().NotNil(record.Age)
	s.Equal(85, *record.Age)
	s.Require().NotNil(record.Height)
	s.InDelta(160.0, *record.Height, 1e-9)
	s.Empty(record.SecurityWarning)

	for doc, err := range s.clinical.Documents(s.ctx) {
		s.Require().NoError(err)
		s.False(dlp.ContainsPII(doc.Fields), "clinical document %s holds personal keys", doc.ID)
	}
	s.Equal([]string{EventRegistered}, s.events.types())
}

func (s *ManagerSuite) TestRegisterCoercesUnusableMeasurementsToAbsent() {
	reg, err := s.manager.RegisterPatient(s.ctx, "Alan Turing", "555-0101", "alan@example.com", "forty", "")
	s.Require().NoError(err)

	record, err := s.manager.GetDisplayRecord(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.Nil(record.Age)
	s.Nil(record.Height)
}

func (s *ManagerSuite) TestRegisterMintsFreshIdentifiers() {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		reg := s.register(fmt.Sprintf("Patient %d", i))
		s.False(seen[reg.LinkingID], "identifier %s reused", reg.LinkingID)
		seen[reg.LinkingID] = true
	}
}

func (s *ManagerSuite) TestRegisterRejectsMissingPersonalFields() {
	reg, err := s.manager.RegisterPatient(s.ctx, "  ", "555-0100", "x@example.com", "30", "170")
	s.True(errs.IsValidation(err))
	s.Equal(StateAbsent, reg.State)
	s.Empty(reg.LinkingID)

	records, err := s.manager.ListMedicalData(s.ctx)
	s.Require().NoError(err)
	s.Empty(records)
	s.Empty(s.events.types())
}

func (s *ManagerSuite) TestRegisterFailsWhenPIIStoreIsDown() {
	m := NewManager(unavailablePII{}, s.clinical, nil, s.events)

	reg, err := m.RegisterPatient(s.ctx, "Ada", "555", "ada@example.com", "36", "")
	s.True(errs.IsUnavailable(err))
	s.Equal(StateAbsent, reg.State)

	records, err := m.ListMedicalData(s.ctx)
	s.Require().NoError(err)
	s.Empty(records)
}

func (s *ManagerSuite) TestRegisterKeepsPIIWhenClinicalWriteFails() {
	down := clinical.NewStore(clinical.DisabledBackend{}, nil, time.Second)
	m := NewManager(s.piiRepo, down, nil, s.events)

	reg, err := m.RegisterPatient(s.ctx, "Ada", "555-0100", "ada@example.com", "36", "")
	s.Require().NoError(err)
	s.Equal(StatePIIOnly, reg.State)
	s.False(reg.ClinicalSaved())
	s.True(errs.IsUnavailable(reg.ClinicalError))

	person, err := s.piiRepo.Get(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.Equal("Ada", person.FullName)
	s.Equal([]string{EventPartial}, s.events.types())
}

func (s *ManagerSuite) TestRegisterIgnoresPublishFailures() {
	s.events.err = errors.New("broker down")

	reg := s.register("Katherine Johnson")
	s.Equal(StateLinked, reg.State)
}

func (s *ManagerSuite) TestListDisplayRecordsExposesSummariesOnly() {
	first := s.register("One")
	second := s.register("Two")

	summaries, err := s.manager.ListDisplayRecords(s.ctx)
	s.Require().NoError(err)
	s.Len(summaries, 2)

	ids := []string{summaries[0].LinkingID, summaries[1].LinkingID}
	s.ElementsMatch([]string{first.LinkingID, second.LinkingID}, ids)
	for _, summary := range summaries {
		s.Require().NotNil(summary.Age)
		s.Equal(42, *summary.Age)
		s.Nil(summary.RiskScore)
	}
}

func (s *ManagerSuite) TestUpdateClinicalAppliesFields() {
	reg := s.register("Rosalind Franklin")

	updated, err := s.manager.UpdateClinical(s.ctx, reg.LinkingID, map[string]interface{}{
		"age":          "43",
		"risk_metrics": map[string]interface{}{"current_risk_score": 0.4},
	})
	s.Require().NoError(err)
	s.True(updated)

	record, err := s.manager.GetDisplayRecord(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.Equal(43, *record.Age)
	s.InDelta(0.4, *record.RiskMetrics.CurrentRiskScore, 1e-9)
	s.Equal([]string{EventRegistered, EventClinicalUpdated}, s.events.types())
}

func (s *ManagerSuite) TestUpdateClinicalRejectsPersonalKeysWithoutApplying() {
	reg := s.register("Marie Curie")
	before, err := s.manager.GetDisplayRecord(s.ctx, reg.LinkingID)
	s.Require().NoError(err)

	for _, key := range []string{"email", "EMAIL", "Full_Name", "phone", "Address", "contact", "name"} {
		updated, err := s.manager.UpdateClinical(s.ctx, reg.LinkingID, map[string]interface{}{
			"age": "99",
			key:   "leak@example.com",
		})
		s.False(updated)
		s.True(errs.IsSecurityViolation(err), "key %q: %v", key, err)
	}

	after, err := s.manager.GetDisplayRecord(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.Equal(before, after)

	for _, e := range s.events.events {
		for _, v := range e.Data {
			s.NotEqual("leak@example.com", v)
		}
	}
}

func (s *ManagerSuite) TestUpdateClinicalRejectsNestedPersonalKeys() {
	reg := s.register("Dorothy Hodgkin")

	updated, err := s.manager.UpdateClinical(s.ctx, reg.LinkingID, map[string]interface{}{
		"vital_signs": map[string]interface{}{"email": "leak@example.com"},
	})
	s.False(updated)
	s.True(errs.IsSecurityViolation(err), "%v", err)
	s.Equal([]string{EventRegistered, EventSecurityViolation}, s.events.types())
}

func (s *ManagerSuite) TestUpdateClinicalRejectsUnknownFields() {
	reg := s.register("Lise Meitner")

	updated, err := s.manager.UpdateClinical(s.ctx, reg.LinkingID, map[string]interface{}{"shoe_size": 9})
	s.False(updated)
	s.True(errs.IsValidation(err))
}

func (s *ManagerSuite) TestUpdateClinicalRejectsNoOpUpdates() {
	reg := s.register("Vera Rubin")
	before, err := s.manager.GetDisplayRecord(s.ctx, reg.LinkingID)
	s.Require().NoError(err)

	for _, fields := range []map[string]interface{}{
		{},
		{"vital_signs": map[string]interface{}{}},
		{"risk_metrics": map[string]interface{}{}},
	} {
		updated, err := s.manager.UpdateClinical(s.ctx, reg.LinkingID, fields)
		s.False(updated)
		s.True(errs.IsValidation(err), "fields %v: %v", fields, err)
	}

	after, err := s.manager.GetDisplayRecord(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.Equal(before.LastUpdated, after.LastUpdated)
	s.Equal([]string{EventRegistered}, s.events.types())
}

func (s *ManagerSuite) TestUpdateClinicalOnMissingRecord() {
	updated, err := s.manager.UpdateClinical(s.ctx, uuid.NewString(), map[string]interface{}{"age": 30})
	s.NoError(err)
	s.False(updated)
}

func (s *ManagerSuite) TestDeletePatientRemovesBothSides() {
	reg := s.register("Emmy Noether")

	out, err := s.manager.DeletePatient(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.True(out.Success())
	s.True(out.PIIDeleted)
	s.True(out.ClinicalDeleted)
	s.Equal(StateDeleted, out.State)

	_, err = s.piiRepo.Get(s.ctx, reg.LinkingID)
	s.ErrorIs(err, pii.ErrNotFound)
	_, err = s.manager.GetDisplayRecord(s.ctx, reg.LinkingID)
	s.ErrorIs(err, clinical.ErrNotFound)
}

func (s *ManagerSuite) TestDeleteUnknownPatientIsNoop() {
	out, err := s.manager.DeletePatient(s.ctx, uuid.NewString())
	s.Require().NoError(err)
	s.True(out.Success())
	s.False(out.PIIDeleted)
	s.False(out.ClinicalDeleted)
	s.Equal(StateAbsent, out.State)
}

func (s *ManagerSuite) TestDeletePIIOnlyPatient() {
	reg, err := NewManager(s.piiRepo, clinical.NewStore(clinical.DisabledBackend{}, nil, time.Second), nil, nil).
		RegisterPatient(s.ctx, "Hedy Lamarr", "555-0102", "hedy@example.com", "", "")
	s.Require().NoError(err)
	s.Require().Equal(StatePIIOnly, reg.State)

	out, err := s.manager.DeletePatient(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.True(out.PIIDeleted)
	s.False(out.ClinicalDeleted)
	s.Equal(StateDeleted, out.State)
}

func (s *ManagerSuite) TestDeleteClinicalOnlyRecord() {
	id := uuid.NewString()
	_, err := s.clinical.Create(s.ctx, id, nil, nil)
	s.Require().NoError(err)

	out, err := s.manager.DeletePatient(s.ctx, id)
	s.Require().NoError(err)
	s.False(out.PIIDeleted)
	s.True(out.ClinicalDeleted)
	s.Equal(StateDeleted, out.State)
}

func (s *ManagerSuite) TestDeleteUnknownPatientInLocalOnlyMode() {
	m := NewManager(s.piiRepo, clinical.NewStore(clinical.DisabledBackend{}, nil, time.Second), nil, s.events)

	out, err := m.DeletePatient(s.ctx, uuid.NewString())
	s.Require().NoError(err)
	s.False(out.PIIDeleted)
	s.Error(out.ClinicalError)
	s.Equal(StateUnknown, out.State)
}

func (s *ManagerSuite) TestDeleteSucceedsWhenOnlyClinicalFails() {
	reg := s.register("Chien-Shiung Wu")
	m := NewManager(s.piiRepo, clinical.NewStore(clinical.DisabledBackend{}, nil, time.Second), nil, s.events)

	out, err := m.DeletePatient(s.ctx, reg.LinkingID)
	s.Require().NoError(err)
	s.True(out.Success())
	s.True(out.PIIDeleted)
	s.False(out.ClinicalDeleted)
	s.Error(out.ClinicalError)
	s.Equal(StateUnknown, out.State)
}

func (s *ManagerSuite) TestDeleteFailsWhenPIIFails() {
	reg := s.register("Barbara McClintock")
	m := NewManager(unavailablePII{}, s.clinical, nil, s.events)

	out, err := m.DeletePatient(s.ctx, reg.LinkingID)
	s.True(errs.IsUnavailable(err))
	s.False(out.Success())
	s.True(out.ClinicalDeleted)
	s.Equal(StateUnknown, out.State)
}

func TestStateTransitions(t *testing.T) {
	cases := []struct {
		from, to State
		ok       bool
	}{
		{StateAbsent, StatePIIOnly, true},
		{StateAbsent, StateLinked, false},
		{StatePIIOnly, StateLinked, true},
		{StateLinked, StateClinicalOnly, true},
		{StateLinked, StateDeleted, true},
		{StateDeleted, StateLinked, false},
		{StateClinicalOnly, StatePIIOnly, false},
		{StateAbsent, StateDeleted, false},
		{StateUnknown, StateDeleted, false},
	}
	for _, tc := range cases {
		if got := tc.from.CanMoveTo(tc.to); got != tc.ok {
			t.Errorf("%s -> %s: got %v, want %v", tc.from, tc.to, got, tc.ok)
		}
	}
}

func TestStateAfterDelete(t *testing.T) {
	boom := errors.New("boom")
	cases := []struct {
		name                string
		piiGone, clinGone   bool
		piiErr, clinicalErr error
		want                State
	}{
		{"linked", true, true, nil, nil, StateDeleted},
		{"pii only", true, false, nil, nil, StateDeleted},
		{"clinical only", false, true, nil, nil, StateDeleted},
		{"never existed", false, false, nil, nil, StateAbsent},
		{"clinical failed", true, false, nil, boom, StateUnknown},
		{"pii failed", false, true, boom, nil, StateUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := stateAfterDelete(tc.piiGone, tc.clinGone, tc.piiErr, tc.clinicalErr)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}
