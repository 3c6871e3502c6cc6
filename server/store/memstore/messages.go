package memstore

import (
	"context"
	"sort"

	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

func (s *MemStore) CreateMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if message.Type == "" {
		message.Type = models.TEXT_MESSAGE
	}
	s.stamp(&message.BaseModel)
	s.messages[message.ID] = *message
	return nil
}

func (s *MemStore) GetMessage(_ context.Context, id string) (*models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &message, nil
}

func (s *MemStore) ListMessages(_ context.Context, filter models.MessageFilter) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := []models.Message{}
	for _, message := range s.messages {
		if filter.VillageID != "" && message.VillageID != filter.VillageID {
			continue
		}
		messages = append(messages, message)
	}
	sort.Slice(messages, func(i, j int) bool {
		return s.newerFirst(messages[i].BaseModel, messages[j].BaseModel)
	})

	limit := models.ClampLimit(filter.Limit, models.DEFAULT_MESSAGE_LIMIT)
	if len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}

func (s *MemStore) UpdateMessage(_ context.Context, message *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[message.ID]; !ok {
		return store.ErrNotFound
	}
	message.UpdatedAt = s.now()
	s.messages[message.ID] = *message
	return nil
}

func (s *MemStore) DeleteMessage(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.messages[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.messages, id)
	return nil
}

func (s *MemStore) ClearMessages(_ context.Context, villageID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cleared int64
	for id, message := range s.messages {
		if villageID == "" || message.VillageID == villageID {
			delete(s.messages, id)
			cleared++
		}
	}
	return cleared, nil
}

func (s *MemStore) MarkMessagesRead(_ context.Context, senderID, readerID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var marked int64
	for id, message := range s.messages {
		if message.SenderID != senderID || message.IsRead {
			continue
		}
		if message.ReceiverID != "" && message.ReceiverID != readerID {
			continue
		}
		message.IsRead = true
		message.UpdatedAt = s.now()
		s.messages[id] = message
		marked++
	}
	return marked, nil
}

func (s *MemStore) CountMessages(_ context.Context, villageID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, message := range s.messages {
		if villageID == "" || message.VillageID == villageID {
			count++
		}
	}
	return count, nil
}

// ---------------------------------------------------------------------------------//
// SOS reports
// --------------------------------------------------------------------------------//

func (s *MemStore) CreateSOSReport(_ context.Context, report *models.SOSReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if report.Status == "" {
		report.Status = models.PENDING_SOS
	}
	s.stamp(&report.BaseModel)
	s.sosReports[report.ID] = *report
	return nil
}

func (s *MemStore) GetSOSReport(_ context.Context, id string) (*models.SOSReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report, ok := s.sosReports[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &report, nil
}

func (s *MemStore) ListSOSReports(_ context.Context, filter models.SOSFilter) ([]models.SOSReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports := s.matchingSOSReports(filter)
	sort.Slice(reports, func(i, j int) bool {
		return s.newerFirst(reports[i].BaseModel, reports[j].BaseModel)
	})

	limit := models.ClampLimit(filter.Limit, models.DEFAULT_LIST_LIMIT)
	if len(reports) > limit {
		reports = reports[:limit]
	}
	return reports, nil
}

func (s *MemStore) UpdateSOSReport(_ context.Context, report *models.SOSReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sosReports[report.ID]; !ok {
		return store.ErrNotFound
	}
	report.UpdatedAt = s.now()
	s.sosReports[report.ID] = *report
	return nil
}

func (s *MemStore) DeleteSOSReport(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sosReports[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.sosReports, id)
	return nil
}

func (s *MemStore) CountSOSReports(_ context.Context, filter models.SOSFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.matchingSOSReports(filter))), nil
}

func (s *MemStore) matchingSOSReports(filter models.SOSFilter) []models.SOSReport {
	reports := []models.SOSReport{}
	for _, report := range s.sosReports {
		if filter.VillageID != "" && report.VillageID != filter.VillageID {
			continue
		}
		if filter.Status != "" && report.Status != filter.Status {
			continue
		}
		reports = append(reports, report)
	}
	return reports
}
