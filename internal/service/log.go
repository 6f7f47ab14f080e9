package service

import (
	"context"

	"license-server/internal/model"

	"gorm.io/gorm"
)

// EventLog persists lifecycle events to the license_events table.
type EventLog struct {
	db *gorm.DB
}

func NewEventLog(db *gorm.DB) *EventLog {
	return &EventLog{db: db}
}

func (l *EventLog) Record(ctx context.Context, event model.LicenseEvent) error {
	return l.db.WithContext(ctx).Create(&event).Error
}

// GetEvents pages through all events, newest first.
func (l *EventLog) GetEvents(ctx context.Context, page, pageSize int) ([]model.LicenseEvent, int64, error) {
	return l.query(ctx, l.db.WithContext(ctx).Model(&model.LicenseEvent{}), page, pageSize)
}

// GetLicenseEvents pages through the events of one license, newest first.
func (l *EventLog) GetLicenseEvents(ctx context.Context, licenseID string, page, pageSize int) ([]model.LicenseEvent, int64, error) {
	db := l.db.WithContext(ctx).Model(&model.LicenseEvent{}).Where("license_id = ?", licenseID)
	return l.query(ctx, db, page, pageSize)
}

func (l *EventLog) query(ctx context.Context, db *gorm.DB, page, pageSize int) ([]model.LicenseEvent, int64, error) {
	var (
		events []model.LicenseEvent
		total  int64
	)

	db = db.Session(&gorm.Session{})
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := db.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&events).Error; err != nil {
		return nil, 0, err
	}

	return events, total, nil
}
