package clinical

import (
	"context"
	"errors"
	"iter"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type documentRow struct {
	LinkingID   string            `gorm:"primaryKey;column:linking_id;size:64"`
	Document    datatypes.JSONMap `gorm:"column:document"`
	CreatedAt   time.Time         `gorm:"column:created_at;index"`
	LastUpdated time.Time         `gorm:"column:last_updated;autoUpdateTime"`
}

func (documentRow) TableName() string {
	return "patients_medical"
}

// SQLBackend stores each clinical document as one JSON column keyed by the
// linking identifier.
type SQLBackend struct {
	db *gorm.DB
}

func NewSQLBackend(db *gorm.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

func (b *SQLBackend) AutoMigrate() error {
	return b.db.AutoMigrate(&documentRow{})
}

func (b *SQLBackend) Name() string {
	return "sql"
}

func (b *SQLBackend) Insert(ctx context.Context, linkingID string, doc map[string]interface{}) error {
	row := documentRow{
		LinkingID:   linkingID,
		Document:    datatypes.JSONMap(doc),
		CreatedAt:   time.Now().UTC(),
		LastUpdated: time.Now().UTC(),
	}
	result := b.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyExists
	}
	return nil
}

func (b *SQLBackend) Fetch(ctx context.Context, linkingID string) (map[string]interface{}, error) {
	var row documentRow
	err := b.db.WithContext(ctx).Where("linking_id = ?", linkingID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return map[string]interface{}(row.Document), nil
}

// Patch reads, merges and writes back inside one transaction.
func (b *SQLBackend) Patch(ctx context.Context, linkingID string, patch map[string]interface{}) (bool, error) {
	updated := false
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row documentRow
		err := tx.Where("linking_id = ?", linkingID).First(&row).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		doc := map[string]interface{}(row.Document)
		if doc == nil {
			doc = map[string]interface{}{}
		}
		applyPatch(doc, patch)

		result := tx.Model(&documentRow{}).
			Where("linking_id = ?", linkingID).
			Updates(map[string]interface{}{
				"document":     datatypes.JSONMap(doc),
				"last_updated": time.Now().UTC(),
			})
		if result.Error != nil {
			return result.Error
		}
		updated = result.RowsAffected > 0
		return nil
	})
	return updated, err
}

func (b *SQLBackend) Remove(ctx context.Context, linkingID string) (bool, error) {
	result := b.db.WithContext(ctx).Where("linking_id = ?", linkingID).Delete(&documentRow{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// Scan streams rows ordered by creation time.
func (b *SQLBackend) Scan(ctx context.Context) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		rows, err := b.db.WithContext(ctx).Model(&documentRow{}).Order("created_at, linking_id").Rows()
		if err != nil {
			yield(Document{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var row documentRow
			if err := b.db.ScanRows(rows, &row); err != nil {
				yield(Document{}, err)
				return
			}
			if !yield(Document{ID: row.LinkingID, Fields: map[string]interface{}(row.Document)}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Document{}, err)
		}
	}
}
