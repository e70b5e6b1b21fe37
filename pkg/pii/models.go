package pii

import "time"

// PatientRecord is the restricted personal record. It must never be rendered
// alongside medical data or copied into the clinical store.
type PatientRecord struct {
	ID        uint      `gorm:"primaryKey;autoIncrement;column:id" json:"-"`
	LinkingID string    `gorm:"<-:create;column:linking_id;size:36;uniqueIndex;not null" json:"linking_id"`
	FullName  string    `gorm:"column:full_name;not null" json:"-"`
	Phone     string    `gorm:"column:phone;not null" json:"-"`
	Email     string    `gorm:"column:email;not null" json:"-"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (PatientRecord) TableName() string {
	return "patients"
}
