package models

const (
	TEXT_MESSAGE  = "TEXT"
	IMAGE_MESSAGE = "IMAGE"

	DEFAULT_MESSAGE_LIMIT = 50
	IMAGE_MESSAGE_CONTENT = "Shared an image"
)

type Message struct {
	BaseModel
	Content    string `json:"content"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Type       string `json:"type" gorm:"default:TEXT"`
	VillageID  string `json:"villageId" gorm:"index"`
	SenderID   string `json:"senderId" gorm:"index"`
	SenderName string `json:"senderName"`
	SenderRole string `json:"senderRole"`
	ReceiverID string `json:"receiverId,omitempty"`
	IsRead     bool   `json:"isRead" gorm:"default:false"`
}

type MessageFilter struct {
	VillageID string
	Limit     int
}
