package pii

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/synaptica-ai/medsplit/pkg/common/errs"
	"github.com/synaptica-ai/medsplit/pkg/identifier"
	"gorm.io/gorm"
)

var ErrNotFound = errors.New("patient not found")

type Repository struct {
	db      *gorm.DB
	newID   identifier.Generator
	timeout time.Duration
}

func NewRepository(db *gorm.DB, timeout time.Duration) *Repository {
	return &Repository{db: db, newID: identifier.New, timeout: timeout}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&PatientRecord{})
}

// Create stores a new personal record under a freshly minted linking
// identifier and returns that identifier.
func (r *Repository) Create(ctx context.Context, fullName, phone, email string) (string, error) {
	fullName = strings.TrimSpace(fullName)
	phone = strings.TrimSpace(phone)
	email = strings.TrimSpace(email)

	switch {
	case fullName == "":
		return "", errs.Validation("full_name", "required")
	case phone == "":
		return "", errs.Validation("phone", "required")
	case email == "":
		return "", errs.Validation("email", "required")
	}

	record := PatientRecord{
		LinkingID: r.newID(),
		FullName:  fullName,
		Phone:     phone,
		Email:     email,
		CreatedAt: time.Now().UTC(),
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return "", errs.Unavailable(errs.StorePII, "create", err)
	}
	return record.LinkingID, nil
}

// Get is for restricted back-office use only.
func (r *Repository) Get(ctx context.Context, linkingID string) (*PatientRecord, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var record PatientRecord
	err := r.db.WithContext(ctx).Where("linking_id = ?", linkingID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errs.Unavailable(errs.StorePII, "get", err)
	}
	return &record, nil
}

// Delete removes the record if present. Deleting an unknown identifier
// returns false without error.
func (r *Repository) Delete(ctx context.Context, linkingID string) (bool, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	result := r.db.WithContext(ctx).Where("linking_id = ?", linkingID).Delete(&PatientRecord{})
	if result.Error != nil {
		return false, errs.Unavailable(errs.StorePII, "delete", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *Repository) Count(ctx context.Context) (int64, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var count int64
	if err := r.db.WithContext(ctx).Model(&PatientRecord{}).Count(&count).Error; err != nil {
		return 0, errs.Unavailable(errs.StorePII, "count", err)
	}
	return count, nil
}

// LinkingIDs lists every identifier in the store, for audits.
func (r *Repository) LinkingIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var ids []string
	if err := r.db.WithContext(ctx).Model(&PatientRecord{}).Order("linking_id").Pluck("linking_id", &ids).Error; err != nil {
		return nil, errs.Unavailable(errs.StorePII, "list", err)
	}
	return ids, nil
}

// ColumnNames reports the live schema of the patients table, for audits.
func (r *Repository) ColumnNames(ctx context.Context) ([]string, error) {
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	columns, err := r.db.WithContext(ctx).Migrator().ColumnTypes(&PatientRecord{})
	if err != nil {
		return nil, errs.Unavailable(errs.StorePII, "schema", err)
	}
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		names = append(names, c.Name())
	}
	return names, nil
}

func (r *Repository) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}
