package models

import "fmt"

const (
	DEFAULT_DISTRICT = "Guntur"
	DEFAULT_STATE    = "Andhra Pradesh"
)

type Village struct {
	BaseModel
	Name     string `json:"name" gorm:"not null"`
	PinCode  string `json:"pinCode" gorm:"not null;unique"`
	District string `json:"district"`
	State    string `json:"state"`
}

// Room is the real-time room every member of the village can join.
func (village *Village) Room() string {
	return VillageRoom(village.PinCode, village.Name)
}

func VillageRoom(pinCode, villageName string) string {
	return fmt.Sprintf("%s-%s", pinCode, villageName)
}

type VillageStats struct {
	TotalUsers        int64 `json:"totalUsers"`
	TotalVillagers    int64 `json:"totalVillagers"`
	TotalAlerts       int64 `json:"totalAlerts"`
	PendingSOSReports int64 `json:"pendingSOSReports"`
	RecentMessages    int64 `json:"recentMessages"`
}
