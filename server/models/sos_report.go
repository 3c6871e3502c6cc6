package models

import "strings"

const (
	PENDING_SOS      = "PENDING"
	ACKNOWLEDGED_SOS = "ACKNOWLEDGED"
	IN_PROGRESS_SOS  = "IN_PROGRESS"
	RESOLVED_SOS     = "RESOLVED"
	CANCELLED_SOS    = "CANCELLED"
)

var SOSStatusNameMap = map[string]bool{
	PENDING_SOS:      true,
	ACKNOWLEDGED_SOS: true,
	IN_PROGRESS_SOS:  true,
	RESOLVED_SOS:     true,
	CANCELLED_SOS:    true,
}

var SOSTypes = []string{"MEDICAL", "SAFETY", "FIRE", "POLICE", "OTHER"}

type SOSReport struct {
	BaseModel
	Type          string   `json:"type" gorm:"not null"`
	Description   string   `json:"description" gorm:"not null"`
	Location      string   `json:"location" gorm:"not null"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Address       string   `json:"address,omitempty"`
	Priority      string   `json:"priority" gorm:"default:HIGH"`
	Status        string   `json:"status" gorm:"default:PENDING;index"`
	VillageID     string   `json:"villageId" gorm:"index"`
	ReporterID    string   `json:"reporterId" gorm:"index"`
	ReporterName  string   `json:"reporterName"`
	ReporterPhone string   `json:"reporterPhone"`
	ReporterRole  string   `json:"reporterRole"`
}

// NormalizeSOSStatus upper-cases 'status' and reports whether it is a known SOS status.
func NormalizeSOSStatus(status string) (string, bool) {
	normalized := strings.ToUpper(strings.TrimSpace(status))
	return normalized, SOSStatusNameMap[normalized]
}

type SOSFilter struct {
	VillageID string
	Status    string
	Limit     int
}
