package model

// License is the durable record behind an issued token. ID equals the token's jti.
type License struct {
	ID         string `json:"id" gorm:"primaryKey;size:36" bson:"_id"`
	LicenseKey string `json:"license_key" gorm:"index;not null" bson:"license_key"`
	HWID       string `json:"hwid" gorm:"column:hwid;not null" bson:"hwid"`
	User       string `json:"user" gorm:"column:user" bson:"user"`
	IssuedAt   int64  `json:"issued_at" gorm:"not null" bson:"issued_at"`
	ExpiresAt  int64  `json:"expires_at" gorm:"not null;index" bson:"expires_at"`
	Revoked    bool   `json:"revoked" gorm:"not null;default:false" bson:"revoked"`
	LastSeen   int64  `json:"last_seen" gorm:"not null;default:0" bson:"last_seen"`
}

func (License) TableName() string {
	return "licenses"
}

// Expired reports whether the license is past its expiry at now (unix seconds).
func (l *License) Expired(now int64) bool {
	return now > l.ExpiresAt
}
