package services

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
)

type MessageStore interface {
	store.MessageStore
	store.VillageStore
}

type CreateMessageInput struct {
	Content   string `json:"content" validate:"max=1000"`
	Type      string `json:"type" validate:"omitempty,oneof=TEXT IMAGE"`
	ImageURL  string `json:"imageUrl" validate:"omitempty,url"`
	VillageID string `json:"villageId" validate:"required"`
}

type UpdateMessageInput struct {
	Content *string `json:"content"`
	IsRead  *bool   `json:"isRead"`
}

type MessageService struct {
	messages MessageStore
	emitter  Emitter
}

func NewMessageService(messages MessageStore, emitter Emitter) *MessageService {
	return &MessageService{messages: messages, emitter: emitterOrNop(emitter)}
}

// Create posts a message to the village chat & pushes newMessage to the village
// room once it's persisted.
func (s *MessageService) Create(ctx context.Context, sender *models.User, input CreateMessageInput) (*models.Message, error) {
	if err := validateStruct(input); err != nil {
		return nil, err
	}

	message := &models.Message{
		Content:    strings.TrimSpace(input.Content),
		Type:       input.Type,
		VillageID:  input.VillageID,
		SenderID:   sender.ID,
		SenderName: sender.Name,
		SenderRole: sender.Role,
	}
	if message.Type == "" {
		message.Type = models.TEXT_MESSAGE
	}

	switch message.Type {
	case models.IMAGE_MESSAGE:
		if err := validateField("imageUrl", input.ImageURL, "required,url"); err != nil {
			return nil, err
		}
		message.ImageURL = input.ImageURL
		if message.Content == "" {
			message.Content = models.IMAGE_MESSAGE_CONTENT
		}
	default:
		if err := validateField("content", message.Content, "required,min=1,max=1000"); err != nil {
			return nil, err
		}
	}

	if err := s.messages.CreateMessage(ctx, message); err != nil {
		return nil, errors.Wrap(err, "failed to send message")
	}

	room, err := villageRoom(ctx, s.messages, message.VillageID, sender)
	if err != nil {
		logg.Errorf("%s unable to resolve village room for message %v: %v", colors.Red("[messages]"), message.ID, err)
		return message, nil
	}
	s.emitter.EmitToRoom(room, NEW_MESSAGE_EVENT, message)

	return message, nil
}

// List returns the latest messages of the reader's village. Persistence errors
// are logged & an empty list returned.
func (s *MessageService) List(ctx context.Context, reader *models.User, limit int) []models.Message {
	messages, err := s.messages.ListMessages(ctx, models.MessageFilter{
		VillageID: reader.VillageID,
		Limit:     models.ClampLimit(limit, models.DEFAULT_MESSAGE_LIMIT),
	})
	if err != nil {
		logg.Errorf("%s unable to list messages: %v", colors.Red("[messages]"), err)
		return []models.Message{}
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return messages
}

func (s *MessageService) Get(ctx context.Context, id string) (*models.Message, error) {
	message, err := s.messages.GetMessage(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "Message")
	}
	return message, nil
}

// Update lets the sender or a Sarpanch edit the content or read flag.
func (s *MessageService) Update(ctx context.Context, actor *models.User, id string, input UpdateMessageInput) (*models.Message, error) {
	if input.Content != nil {
		if err := validateField("content", *input.Content, "min=1,max=1000"); err != nil {
			return nil, err
		}
	}

	message, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !canModerate(actor, message) {
		return nil, forbidden("You can only update your own messages")
	}

	if input.Content != nil {
		message.Content = *input.Content
	}
	if input.IsRead != nil {
		message.IsRead = *input.IsRead
	}

	if err := s.messages.UpdateMessage(ctx, message); err != nil {
		return nil, notFoundOr(errors.Wrap(err, "failed to update message"), "Message")
	}
	return message, nil
}

func (s *MessageService) Delete(ctx context.Context, actor *models.User, id string) error {
	message, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if !canModerate(actor, message) {
		return forbidden("You can only delete your own messages")
	}

	if err := s.messages.DeleteMessage(ctx, id); err != nil {
		return notFoundOr(errors.Wrap(err, "failed to delete message"), "Message")
	}
	return nil
}

// Clear wipes the chat of the actor's village. Sarpanch only.
func (s *MessageService) Clear(ctx context.Context, actor *models.User) (int64, error) {
	if !actor.IsSarpanch() {
		return 0, forbidden("Only Sarpanch can clear all messages")
	}

	cleared, err := s.messages.ClearMessages(ctx, actor.VillageID)
	if err != nil {
		return 0, errors.Wrap(err, "failed to clear messages")
	}

	logg.Infof("%s %v cleared %d message(s) in village %v", colors.Blue("[messages]"), actor.ID, cleared, actor.VillageID)
	return cleared, nil
}

// MarkRead flags messages from 'senderID' to 'readerID' (or the whole village) as read.
func (s *MessageService) MarkRead(ctx context.Context, senderID, readerID string) (int64, error) {
	return s.messages.MarkMessagesRead(ctx, senderID, readerID)
}

// canModerate lets senders manage their own messages & a Sarpanch manage any
// message of their own village.
func canModerate(actor *models.User, message *models.Message) bool {
	if message.SenderID == actor.ID {
		return true
	}
	return actor.IsSarpanch() && message.VillageID == actor.VillageID
}
