package models

type User struct {
	BaseModel
	PhoneNumber string `json:"phoneNumber" gorm:"not null;unique"`
	Name        string `json:"name" gorm:"not null"`
	Role        string `json:"role" gorm:"not null;index"`
	VillageID   string `json:"villageId" gorm:"index"`
	VillageName string `json:"villageName"`
	PinCode     string `json:"pinCode" gorm:"index"`
	IsVerified  bool   `json:"isVerified" gorm:"default:false"`
}

func (user *User) IsSarpanch() bool {
	return user.Role == SARPANCH_ROLE
}

// UserFilter narrows ListUsers/CountUsers. Zero values mean "any".
type UserFilter struct {
	VillageID    string
	Role         string
	VerifiedOnly bool
	ExcludeID    string
}

func (filter UserFilter) Matches(user *User) bool {
	if filter.VillageID != "" && user.VillageID != filter.VillageID {
		return false
	}
	if filter.Role != "" && user.Role != filter.Role {
		return false
	}
	if filter.VerifiedOnly && !user.IsVerified {
		return false
	}
	return filter.ExcludeID == "" || user.ID != filter.ExcludeID
}
