package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ActivateRequest is the body of POST /activate.
type ActivateRequest struct {
	LicenseKey   string        `json:"license_key"`
	HWID         string        `json:"hwid"`
	User         string        `json:"user"`
	DurationDays *DurationDays `json:"duration_days"`
}

// RevokeRequest is the body of POST /revoke.
type RevokeRequest struct {
	JTI string `json:"jti"`
}

// HeartbeatRequest is the body of POST /heartbeat.
type HeartbeatRequest struct {
	Token string `json:"token"`
}

// DurationDays accepts a JSON number or a numeric string and truncates it to
// whole days, so clients sending "30" or 30.0 behave like clients sending 30.
type DurationDays int

func (d *DurationDays) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		raw = strings.TrimSpace(s)
	}
	if n, err := strconv.Atoi(raw); err == nil {
		*d = DurationDays(n)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("duration_days: %q is not a number", raw)
	}
	if f <= math.MinInt32 || f >= math.MaxInt32 {
		return fmt.Errorf("duration_days: %q is out of range", raw)
	}
	*d = DurationDays(int(f))
	return nil
}

// Int returns nil when d is nil.
func (d *DurationDays) Int() *int {
	if d == nil {
		return nil
	}
	n := int(*d)
	return &n
}
