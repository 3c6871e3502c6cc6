package models

import "time"

const (
	PENDING_DELIVERY   = "pending"
	DELIVERED_DELIVERY = "delivered"
	FAILED_DELIVERY    = "failed"
)

type AlertDelivery struct {
	BaseModel
	AlertID     string     `json:"alertId" gorm:"not null;index"`
	UserID      string     `json:"userId" gorm:"not null;index"`
	Channel     string     `json:"channel" gorm:"not null"`
	Status      string     `json:"status" gorm:"default:pending"`
	Error       string     `json:"error,omitempty"`
	SentAt      *time.Time `json:"sentAt,omitempty"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
}

func (delivery *AlertDelivery) MarkDelivered(now time.Time) {
	delivery.Status = DELIVERED_DELIVERY
	delivery.Error = ""
	delivery.SentAt = &now
	delivery.DeliveredAt = &now
}

func (delivery *AlertDelivery) MarkFailed(err error) {
	delivery.Status = FAILED_DELIVERY
	delivery.Error = err.Error()
}
