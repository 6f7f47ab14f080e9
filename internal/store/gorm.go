package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"license-server/internal/model"

	"gorm.io/gorm"
)

// GormStore is the relational engine (sqlite or postgres).
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(ctx context.Context, license *model.License) error {
	err := s.db.WithContext(ctx).Create(license).Error
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueConstraintError(err) {
		return ErrDuplicateKey
	}
	return fmt.Errorf("insert license: %w", err)
}

func (s *GormStore) Lookup(ctx context.Context, id string) (*model.License, error) {
	var license model.License
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&license).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup license: %w", err)
	}
	return &license, nil
}

// Revoke relies on sqlite and postgres counting matched rows, so an already
// revoked record still reports 1.
func (s *GormStore) Revoke(ctx context.Context, id string) (int64, error) {
	result := s.db.WithContext(ctx).
		Model(&model.License{}).
		Where("id = ?", id).
		Update("revoked", true)
	if result.Error != nil {
		return 0, fmt.Errorf("revoke license: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *GormStore) TouchLastSeen(ctx context.Context, id string, ts int64) error {
	err := s.db.WithContext(ctx).
		Model(&model.License{}).
		Where("id = ?", id).
		Update("last_seen", gorm.Expr("CASE WHEN last_seen < ? THEN ? ELSE last_seen END", ts, ts)).
		Error
	if err != nil {
		return fmt.Errorf("touch last_seen: %w", err)
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, page, pageSize int) ([]model.License, int64, error) {
	var (
		licenses []model.License
		total    int64
	)
	db := s.db.WithContext(ctx).Model(&model.License{}).Session(&gorm.Session{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset := (page - 1) * pageSize
	if err := db.Order("issued_at DESC").Offset(offset).Limit(pageSize).Find(&licenses).Error; err != nil {
		return nil, 0, err
	}
	return licenses, total, nil
}

func (s *GormStore) Statistics(ctx context.Context, now int64) (*model.LicenseStatistics, error) {
	db := s.db.WithContext(ctx)
	stats := &model.LicenseStatistics{GeneratedAt: now}

	counts := []struct {
		name  string
		dest  *int64
		query string
		args  []interface{}
	}{
		{"total", &stats.TotalLicenses, "", nil},
		{"revoked", &stats.RevokedLicenses, "revoked = ?", []interface{}{true}},
		{"active", &stats.ActiveLicenses, "revoked = ? AND expires_at >= ?", []interface{}{false, now}},
		{"expired", &stats.ExpiredLicenses, "revoked = ? AND expires_at < ?", []interface{}{false, now}},
		{"expiring", &stats.ExpiringLicenses, "revoked = ? AND expires_at >= ? AND expires_at <= ?", []interface{}{false, now, now + expiringWindow}},
		{"seen_recently", &stats.SeenRecently, "last_seen >= ?", []interface{}{now - recentWindow}},
	}
	for _, c := range counts {
		q := db.Model(&model.License{})
		if c.query != "" {
			q = q.Where(c.query, c.args...)
		}
		if err := q.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("count %s licenses: %w", c.name, err)
		}
	}
	return stats, nil
}

func isUniqueConstraintError(err error) bool {
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint")
}
