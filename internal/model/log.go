package model

import "time"

const (
	ActionActivate  = "activate"
	ActionRevoke    = "revoke"
	ActionHeartbeat = "heartbeat"
)

// LicenseEvent is one entry of the lifecycle audit trail.
type LicenseEvent struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	LicenseID  string    `json:"license_id" gorm:"index;size:36"`
	LicenseKey string    `json:"license_key"`
	HWID       string    `json:"hwid" gorm:"column:hwid"`
	Action     string    `json:"action" gorm:"index"`
	Result     string    `json:"result"` // ok, revoked, expired
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

func (LicenseEvent) TableName() string {
	return "license_events"
}
