package memstore

import (
	"context"
	"sort"
	"time"

	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

func copyAlert(alert models.Alert) models.Alert {
	alert.Channels = append([]string(nil), alert.Channels...)
	return alert
}

func (s *MemStore) CreateAlert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if alert.Status == "" {
		alert.Status = models.ACTIVE_ALERT
	}
	s.stamp(&alert.BaseModel)
	s.alerts[alert.ID] = copyAlert(*alert)
	return nil
}

func (s *MemStore) GetAlert(_ context.Context, id string) (*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, ok := s.alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	alert = copyAlert(alert)
	return &alert, nil
}

func (s *MemStore) ListAlerts(_ context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alerts := []models.Alert{}
	for _, alert := range s.alerts {
		if filter.VillageID != "" && alert.VillageID != filter.VillageID {
			continue
		}
		alerts = append(alerts, copyAlert(alert))
	}
	sort.Slice(alerts, func(i, j int) bool {
		return s.newerFirst(alerts[i].BaseModel, alerts[j].BaseModel)
	})

	limit := models.ClampLimit(filter.Limit, models.DEFAULT_LIST_LIMIT)
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	return alerts, nil
}

func (s *MemStore) UpdateAlert(_ context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[alert.ID]; !ok {
		return store.ErrNotFound
	}
	alert.UpdatedAt = s.now()
	s.alerts[alert.ID] = copyAlert(*alert)
	return nil
}

func (s *MemStore) MarkAlertSent(_ context.Context, id string, at time.Time) error {
	return s.touchAlert(id, func(alert *models.Alert) { alert.LastSentAt = &at })
}

func (s *MemStore) SetAlertNextRun(_ context.Context, id string, at time.Time) error {
	return s.touchAlert(id, func(alert *models.Alert) { alert.NextRunAt = &at })
}

func (s *MemStore) touchAlert(id string, change func(alert *models.Alert)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.alerts[id]
	if !ok {
		return store.ErrNotFound
	}
	change(&alert)
	alert.UpdatedAt = s.now()
	s.alerts[id] = alert
	return nil
}

func (s *MemStore) DeleteAlert(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.alerts, id)
	return nil
}

func (s *MemStore) CountAlerts(_ context.Context, villageID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, alert := range s.alerts {
		if villageID == "" || alert.VillageID == villageID {
			count++
		}
	}
	return count, nil
}

// ---------------------------------------------------------------------------------//
// Deliveries
// --------------------------------------------------------------------------------//

func (s *MemStore) CreateDelivery(_ context.Context, delivery *models.AlertDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if delivery.Status == "" {
		delivery.Status = models.PENDING_DELIVERY
	}
	s.stamp(&delivery.BaseModel)
	s.deliveries[delivery.ID] = *delivery
	return nil
}

func (s *MemStore) UpdateDelivery(_ context.Context, delivery *models.AlertDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deliveries[delivery.ID]; !ok {
		return store.ErrNotFound
	}
	delivery.UpdatedAt = s.now()
	s.deliveries[delivery.ID] = *delivery
	return nil
}

func (s *MemStore) ListDeliveries(_ context.Context, alertID string) ([]models.AlertDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deliveries := []models.AlertDelivery{}
	for _, delivery := range s.deliveries {
		if delivery.AlertID == alertID {
			deliveries = append(deliveries, delivery)
		}
	}
	sort.Slice(deliveries, func(i, j int) bool {
		return s.order[deliveries[i].ID] < s.order[deliveries[j].ID]
	})
	return deliveries, nil
}

func (s *MemStore) DeleteDeliveries(_ context.Context, alertID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, delivery := range s.deliveries {
		if delivery.AlertID == alertID {
			delete(s.deliveries, id)
		}
	}
	return nil
}
