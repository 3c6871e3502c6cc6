package models

import "time"

const (
	LOW_PRIORITY       = "LOW"
	MEDIUM_PRIORITY    = "MEDIUM"
	HIGH_PRIORITY      = "HIGH"
	EMERGENCY_PRIORITY = "EMERGENCY"

	IN_APP_CHANNEL      = "IN_APP"
	SMS_CHANNEL         = "SMS"
	MISSED_CALL_CHANNEL = "MISSED_CALL"

	ACTIVE_ALERT    = "ACTIVE"
	COMPLETED_ALERT = "COMPLETED"
	ARCHIVED_ALERT  = "ARCHIVED"

	DAILY_REPEAT   = "daily"
	WEEKLY_REPEAT  = "weekly"
	MONTHLY_REPEAT = "monthly"
)

var ChannelNameMap = map[string]bool{
	IN_APP_CHANNEL:      true,
	SMS_CHANNEL:         true,
	MISSED_CALL_CHANNEL: true,
}

type Alert struct {
	BaseModel
	Title          string     `json:"title" gorm:"not null"`
	Message        string     `json:"message" gorm:"not null"`
	Priority       string     `json:"priority" gorm:"not null"`
	VillageID      string     `json:"villageId" gorm:"index"`
	Channels       []string   `json:"channels" gorm:"serializer:json"`
	IsScheduled    bool       `json:"isScheduled"`
	ScheduledAt    *time.Time `json:"scheduledAt,omitempty"`
	IsRepeated     bool       `json:"isRepeated"`
	RepeatInterval string     `json:"repeatInterval"`
	SenderID       string     `json:"senderId" gorm:"index"`
	SenderName     string     `json:"senderName"`
	SenderRole     string     `json:"senderRole"`
	Status         string     `json:"status" gorm:"default:ACTIVE"`
	LastSentAt     *time.Time `json:"lastSentAt,omitempty"`
	NextRunAt      *time.Time `json:"nextRunAt,omitempty"`
}

func (alert *Alert) HasChannel(channel string) bool {
	for _, c := range alert.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// InAppPayload is the reduced alert pushed to a recipient's personal room.
func (alert *Alert) InAppPayload() map[string]interface{} {
	return map[string]interface{}{
		"id":        alert.ID,
		"title":     alert.Title,
		"message":   alert.Message,
		"priority":  alert.Priority,
		"createdAt": alert.CreatedAt,
	}
}

// NextOccurrence adds one repeat interval to 'from'. Unknown intervals repeat daily.
func NextOccurrence(interval string, from time.Time) time.Time {
	switch interval {
	case WEEKLY_REPEAT:
		return from.AddDate(0, 0, 7)
	case MONTHLY_REPEAT:
		return from.AddDate(0, 1, 0)
	default:
		return from.AddDate(0, 0, 1)
	}
}

type AlertFilter struct {
	VillageID string
	Limit     int
}
