package store

import (
	"context"
	"sort"
	"sync"

	"license-server/internal/model"
)

// MemoryStore keeps records in a map. Used by tests and DB_DRIVER=memory.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[string]model.License
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]model.License)}
}

func (s *MemoryStore) Insert(_ context.Context, license *model.License) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[license.ID]; ok {
		return ErrDuplicateKey
	}
	s.rows[license.ID] = *license
	return nil
}

func (s *MemoryStore) Lookup(_ context.Context, id string) (*model.License, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &row, nil
}

func (s *MemoryStore) Revoke(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return 0, nil
	}
	row.Revoked = true
	s.rows[id] = row
	return 1, nil
}

func (s *MemoryStore) TouchLastSeen(_ context.Context, id string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil
	}
	if ts > row.LastSeen {
		row.LastSeen = ts
		s.rows[id] = row
	}
	return nil
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) List(_ context.Context, page, pageSize int) ([]model.License, int64, error) {
	s.mu.RLock()
	all := make([]model.License, 0, len(s.rows))
	for _, row := range s.rows {
		all = append(all, row)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].IssuedAt != all[j].IssuedAt {
			return all[i].IssuedAt > all[j].IssuedAt
		}
		return all[i].ID < all[j].ID
	})

	total := int64(len(all))
	start := (page - 1) * pageSize
	if start < 0 || start >= len(all) {
		return []model.License{}, total, nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (s *MemoryStore) Statistics(_ context.Context, now int64) (*model.LicenseStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &model.LicenseStatistics{GeneratedAt: now}
	for _, row := range s.rows {
		stats.TotalLicenses++
		switch {
		case row.Revoked:
			stats.RevokedLicenses++
		case row.ExpiresAt < now:
			stats.ExpiredLicenses++
		default:
			stats.ActiveLicenses++
			if row.ExpiresAt <= now+expiringWindow {
				stats.ExpiringLicenses++
			}
		}
		if row.LastSeen >= now-recentWindow {
			stats.SeenRecently++
		}
	}
	return stats, nil
}
