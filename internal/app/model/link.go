package model

import "time"

// SmartLink describes a signed referral link stored in Postgres.
// Records are immutable once issued; there is no update path.
type SmartLink struct {
	Code      string    `db:"code" gorm:"primaryKey;size:16"`
	InviterID string    `db:"inviter_id" gorm:"size:64;not null;index"`
	Loop      Loop      `db:"loop" gorm:"size:32;not null"`
	Params    []byte    `db:"params" gorm:"type:jsonb"`
	Signature string    `db:"signature" gorm:"size:64;not null"`
	ExpiresAt time.Time `db:"expires_at" gorm:"not null;index"`
	CreatedAt time.Time `db:"created_at" gorm:"autoCreateTime"`
}

// TableName keeps the table name stable should the struct ever be renamed.
func (SmartLink) TableName() string { return "smart_links" }
