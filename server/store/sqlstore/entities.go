package sqlstore

import (
	"context"
	"time"

	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
	"gorm.io/gorm"
)

func (s *SQLStore) CreateUser(ctx context.Context, user *models.User) error {
	taken, err := s.exists(ctx, &models.User{}, "phone_number = ?", user.PhoneNumber)
	if err != nil {
		return err
	}
	if taken {
		return store.ErrDuplicate
	}
	return translate(s.conn(ctx).Create(user).Error)
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*models.User, error) {
	user := models.User{}
	err := s.conn(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *SQLStore) GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error) {
	user := models.User{}
	err := s.conn(ctx).Where("phone_number = ?", phoneNumber).First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *SQLStore) UpdateUser(ctx context.Context, user *models.User) error {
	return s.save(ctx, user)
}

func (s *SQLStore) ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, error) {
	users := []models.User{}
	err := userQuery(s.conn(ctx), filter).Order("name asc").Order("created_at asc").Find(&users).Error
	return users, err
}

func (s *SQLStore) CountUsers(ctx context.Context, filter models.UserFilter) (int64, error) {
	var count int64
	err := userQuery(s.conn(ctx).Model(&models.User{}), filter).Count(&count).Error
	return count, err
}

func userQuery(tx *gorm.DB, filter models.UserFilter) *gorm.DB {
	if filter.VillageID != "" {
		tx = tx.Where("village_id = ?", filter.VillageID)
	}
	if filter.Role != "" {
		tx = tx.Where("role = ?", filter.Role)
	}
	if filter.VerifiedOnly {
		tx = tx.Where("is_verified = ?", true)
	}
	if filter.ExcludeID != "" {
		tx = tx.Where("id <> ?", filter.ExcludeID)
	}
	return tx
}

func (s *SQLStore) CreateVillage(ctx context.Context, village *models.Village) error {
	taken, err := s.exists(ctx, &models.Village{}, "pin_code = ?", village.PinCode)
	if err != nil {
		return err
	}
	if taken {
		return store.ErrDuplicate
	}
	return translate(s.conn(ctx).Create(village).Error)
}

func (s *SQLStore) GetVillage(ctx context.Context, id string) (*models.Village, error) {
	village := models.Village{}
	err := s.conn(ctx).Where("id = ?", id).First(&village).Error
	if err != nil {
		return nil, translate(err)
	}
	return &village, nil
}

func (s *SQLStore) GetVillageByPinCode(ctx context.Context, pinCode string) (*models.Village, error) {
	village := models.Village{}
	err := s.conn(ctx).Where("pin_code = ?", pinCode).First(&village).Error
	if err != nil {
		return nil, translate(err)
	}
	return &village, nil
}

// ---------------------------------------------------------------------------------//
// Alerts & deliveries
// --------------------------------------------------------------------------------//

func (s *SQLStore) CreateAlert(ctx context.Context, alert *models.Alert) error {
	if alert.Status == "" {
		alert.Status = models.ACTIVE_ALERT
	}
	return translate(s.conn(ctx).Create(alert).Error)
}

func (s *SQLStore) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	alert := models.Alert{}
	err := s.conn(ctx).Where("id = ?", id).First(&alert).Error
	if err != nil {
		return nil, translate(err)
	}
	return &alert, nil
}

func (s *SQLStore) ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error) {
	alerts := []models.Alert{}
	tx := s.conn(ctx)
	if filter.VillageID != "" {
		tx = tx.Where("village_id = ?", filter.VillageID)
	}
	err := tx.Order("created_at desc").
		Limit(models.ClampLimit(filter.Limit, models.DEFAULT_LIST_LIMIT)).
		Find(&alerts).Error
	return alerts, err
}

func (s *SQLStore) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	return s.save(ctx, alert)
}

func (s *SQLStore) MarkAlertSent(ctx context.Context, id string, at time.Time) error {
	return s.updateColumn(ctx, &models.Alert{}, id, "last_sent_at", at)
}

func (s *SQLStore) SetAlertNextRun(ctx context.Context, id string, at time.Time) error {
	return s.updateColumn(ctx, &models.Alert{}, id, "next_run_at", at)
}

func (s *SQLStore) DeleteAlert(ctx context.Context, id string) error {
	return s.remove(ctx, &models.Alert{}, id)
}

func (s *SQLStore) CountAlerts(ctx context.Context, villageID string) (int64, error) {
	var count int64
	tx := s.conn(ctx).Model(&models.Alert{})
	if villageID != "" {
		tx = tx.Where("village_id = ?", villageID)
	}
	err := tx.Count(&count).Error
	return count, err
}

func (s *SQLStore) CreateDelivery(ctx context.Context, delivery *models.AlertDelivery) error {
	if delivery.Status == "" {
		delivery.Status = models.PENDING_DELIVERY
	}
	return translate(s.conn(ctx).Create(delivery).Error)
}

func (s *SQLStore) UpdateDelivery(ctx context.Context, delivery *models.AlertDelivery) error {
	return s.save(ctx, delivery)
}

func (s *SQLStore) ListDeliveries(ctx context.Context, alertID string) ([]models.AlertDelivery, error) {
	deliveries := []models.AlertDelivery{}
	err := s.conn(ctx).Where("alert_id = ?", alertID).Order("created_at asc").Find(&deliveries).Error
	return deliveries, err
}

func (s *SQLStore) DeleteDeliveries(ctx context.Context, alertID string) error {
	return s.conn(ctx).Where("alert_id = ?", alertID).Delete(&models.AlertDelivery{}).Error
}

// ---------------------------------------------------------------------------------//
// Messages
// --------------------------------------------------------------------------------//

func (s *SQLStore) CreateMessage(ctx context.Context, message *models.Message) error {
	if message.Type == "" {
		message.Type = models.TEXT_MESSAGE
	}
	return translate(s.conn(ctx).Create(message).Error)
}

func (s *SQLStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	message := models.Message{}
	err := s.conn(ctx).Where("id = ?", id).First(&message).Error
	if err != nil {
		return nil, translate(err)
	}
	return &message, nil
}

func (s *SQLStore) ListMessages(ctx context.Context, filter models.MessageFilter) ([]models.Message, error) {
	messages := []models.Message{}
	tx := s.conn(ctx)
	if filter.VillageID != "" {
		tx = tx.Where("village_id = ?", filter.VillageID)
	}
	err := tx.Order("created_at desc").
		Limit(models.ClampLimit(filter.Limit, models.DEFAULT_MESSAGE_LIMIT)).
		Find(&messages).Error
	return messages, err
}

func (s *SQLStore) UpdateMessage(ctx context.Context, message *models.Message) error {
	return s.save(ctx, message)
}

func (s *SQLStore) DeleteMessage(ctx context.Context, id string) error {
	return s.remove(ctx, &models.Message{}, id)
}

func (s *SQLStore) ClearMessages(ctx context.Context, villageID string) (int64, error) {
	tx := s.conn(ctx)
	if villageID != "" {
		tx = tx.Where("village_id = ?", villageID)
	} else {
		tx = tx.Where("1 = 1")
	}
	res := tx.Delete(&models.Message{})
	return res.RowsAffected, res.Error
}

func (s *SQLStore) MarkMessagesRead(ctx context.Context, senderID, readerID string) (int64, error) {
	res := s.conn(ctx).Model(&models.Message{}).
		Where("sender_id = ? AND is_read = ?", senderID, false).
		Where("receiver_id = ? OR receiver_id = ? OR receiver_id IS NULL", readerID, "").
		Update("is_read", true)
	return res.RowsAffected, res.Error
}

func (s *SQLStore) CountMessages(ctx context.Context, villageID string) (int64, error) {
	var count int64
	tx := s.conn(ctx).Model(&models.Message{})
	if villageID != "" {
		tx = tx.Where("village_id = ?", villageID)
	}
	err := tx.Count(&count).Error
	return count, err
}

// ---------------------------------------------------------------------------------//
// SOS reports
// --------------------------------------------------------------------------------//

func (s *SQLStore) CreateSOSReport(ctx context.Context, report *models.SOSReport) error {
	if report.Status == "" {
		report.Status = models.PENDING_SOS
	}
	return translate(s.conn(ctx).Create(report).Error)
}

func (s *SQLStore) GetSOSReport(ctx context.Context, id string) (*models.SOSReport, error) {
	report := models.SOSReport{}
	err := s.conn(ctx).Where("id = ?", id).First(&report).Error
	if err != nil {
		return nil, translate(err)
	}
	return &report, nil
}

func (s *SQLStore) ListSOSReports(ctx context.Context, filter models.SOSFilter) ([]models.SOSReport, error) {
	reports := []models.SOSReport{}
	err := sosQuery(s.conn(ctx), filter).
		Order("created_at desc").
		Limit(models.ClampLimit(filter.Limit, models.DEFAULT_LIST_LIMIT)).
		Find(&reports).Error
	return reports, err
}

func (s *SQLStore) UpdateSOSReport(ctx context.Context, report *models.SOSReport) error {
	return s.save(ctx, report)
}

func (s *SQLStore) DeleteSOSReport(ctx context.Context, id string) error {
	return s.remove(ctx, &models.SOSReport{}, id)
}

func (s *SQLStore) CountSOSReports(ctx context.Context, filter models.SOSFilter) (int64, error) {
	var count int64
	err := sosQuery(s.conn(ctx).Model(&models.SOSReport{}), filter).Count(&count).Error
	return count, err
}

func sosQuery(tx *gorm.DB, filter models.SOSFilter) *gorm.DB {
	if filter.VillageID != "" {
		tx = tx.Where("village_id = ?", filter.VillageID)
	}
	if filter.Status != "" {
		tx = tx.Where("status = ?", filter.Status)
	}
	return tx
}
