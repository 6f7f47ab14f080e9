package model

// LicenseStatistics aggregates the license table at a point in time.
type LicenseStatistics struct {
	TotalLicenses    int64 `json:"total_licenses"`
	ActiveLicenses   int64 `json:"active_licenses"`
	RevokedLicenses  int64 `json:"revoked_licenses"`
	ExpiredLicenses  int64 `json:"expired_licenses"`
	ExpiringLicenses int64 `json:"expiring_licenses"` // active, expiring within 30 days
	SeenRecently     int64 `json:"seen_recently"`     // heartbeat within 24 hours
	GeneratedAt      int64 `json:"generated_at"`
}

// ActiveRate is the share of licenses that are neither revoked nor expired.
func (ls *LicenseStatistics) ActiveRate() float64 {
	if ls.TotalLicenses == 0 {
		return 0
	}
	return float64(ls.ActiveLicenses) / float64(ls.TotalLicenses)
}
