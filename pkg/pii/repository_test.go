package pii

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/synaptica-ai/medsplit/pkg/common/errs"
	"github.com/synaptica-ai/medsplit/pkg/identifier"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type RepositorySuite struct {
	suite.Suite
	repo *Repository
	ctx  context.Context
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(RepositorySuite))
}

func (s *RepositorySuite) SetupTest() {
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	s.Require().NoError(err)
	sqlDB, err := db.DB()
	s.Require().NoError(err)
	sqlDB.SetMaxOpenConns(1)
	s.T().Cleanup(func() { sqlDB.Close() })

	s.repo = NewRepository(db, 2*time.Second)
	s.Require().NoError(s.repo.AutoMigrate())
	s.ctx = context.Background()
}

func (s *RepositorySuite) TestCreateStoresTrimmedFields() {
	id, err := s.repo.Create(s.ctx, "  Ada Lovelace ", "555-0100", "ada@example.com ")
	s.Require().NoError(err)
	s.True(identifier.Valid(id))

	record, err := s.repo.Get(s.ctx, id)
	s.Require().NoError(err)
	s.Equal(id, record.LinkingID)
	s.Equal("Ada Lovelace", record.FullName)
	s.Equal("555-0100", record.Phone)
	s.Equal("ada@example.com", record.Email)
	s.False(record.CreatedAt.IsZero())
}

func (s *RepositorySuite) TestCreateRejectsBlankFields() {
	cases := []struct {
		name, phone, email, field string
	}{
		{"", "555", "a@b.c", "full_name"},
		{"Ada", "   ", "a@b.c", "phone"},
		{"Ada", "555", "\t", "email"},
	}
	for _, tc := range cases {
		_, err := s.repo.Create(s.ctx, tc.name, tc.phone, tc.email)
		var ve *errs.ValidationError
		s.Require().ErrorAs(err, &ve)
		s.Equal(tc.field, ve.Field)
	}

	count, err := s.repo.Count(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)
}

func (s *RepositorySuite) TestCreateMintsUniqueIdentifiers() {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id, err := s.repo.Create(s.ctx, "Patient", "555", "p@example.com")
		s.Require().NoError(err)
		s.False(seen[id])
		seen[id] = true
	}

	ids, err := s.repo.LinkingIDs(s.ctx)
	s.Require().NoError(err)
	s.Len(ids, 20)
	s.IsIncreasing(ids)
}

func (s *RepositorySuite) TestGetUnknownIsNotFound() {
	_, err := s.repo.Get(s.ctx, uuid.NewString())
	s.ErrorIs(err, ErrNotFound)
}

func (s *RepositorySuite) TestDeleteIsIdempotent() {
	id, err := s.repo.Create(s.ctx, "Grace Hopper", "555-0101", "grace@example.com")
	s.Require().NoError(err)

	deleted, err := s.repo.Delete(s.ctx, id)
	s.Require().NoError(err)
	s.True(deleted)

	deleted, err = s.repo.Delete(s.ctx, id)
	s.Require().NoError(err)
	s.False(deleted)

	deleted, err = s.repo.Delete(s.ctx, "never-existed")
	s.Require().NoError(err)
	s.False(deleted)
}

func (s *RepositorySuite) TestColumnNamesHoldNoMedicalFields() {
	names, err := s.repo.ColumnNames(s.ctx)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"id", "linking_id", "full_name", "phone", "email", "created_at"}, names)
}
