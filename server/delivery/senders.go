package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/villagevault/villagevault/server/models"
)

const (
	NEW_ALERT_EVENT = "newAlert"

	DEFAULT_SMS_DELAY         = 1 * time.Second
	DEFAULT_MISSED_CALL_DELAY = 2 * time.Second
)

// RoomEmitter pushes an event to every socket in a room.
type RoomEmitter interface {
	EmitToRoom(room, event string, data interface{})
}

// Messenger is the outbound SMS/voice gateway.
type Messenger interface {
	SendMessage(ctx context.Context, to, msg string) error
	MakeCall(ctx context.Context, to, say string) error
}

type InAppSender struct {
	emitter RoomEmitter
}

func NewInAppSender(emitter RoomEmitter) *InAppSender {
	return &InAppSender{emitter: emitter}
}

// Send pushes the reduced alert to the user's personal room.
func (s *InAppSender) Send(ctx context.Context, user *models.User, alert *models.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.emitter.EmitToRoom(user.ID, NEW_ALERT_EVENT, alert.InAppPayload())
	return nil
}

type SMSSender struct {
	messenger Messenger
	delay     time.Duration
}

func NewSMSSender(messenger Messenger, delay time.Duration) *SMSSender {
	return &SMSSender{messenger: messenger, delay: delay}
}

func (s *SMSSender) Send(ctx context.Context, user *models.User, alert *models.Alert) error {
	if err := wait(ctx, s.delay); err != nil {
		return err
	}
	return s.messenger.SendMessage(ctx, user.PhoneNumber, SMSBody(alert))
}

type MissedCallSender struct {
	messenger Messenger
	delay     time.Duration
}

func NewMissedCallSender(messenger Messenger, delay time.Duration) *MissedCallSender {
	return &MissedCallSender{messenger: messenger, delay: delay}
}

func (s *MissedCallSender) Send(ctx context.Context, user *models.User, alert *models.Alert) error {
	if err := wait(ctx, s.delay); err != nil {
		return err
	}
	return s.messenger.MakeCall(ctx, user.PhoneNumber, fmt.Sprintf("VillageVault alert: %s", alert.Title))
}

// DefaultSenders wires one sender per supported channel.
func DefaultSenders(emitter RoomEmitter, messenger Messenger, smsDelay, missedCallDelay time.Duration) map[string]Sender {
	return map[string]Sender{
		models.IN_APP_CHANNEL:      NewInAppSender(emitter),
		models.SMS_CHANNEL:         NewSMSSender(messenger, smsDelay),
		models.MISSED_CALL_CHANNEL: NewMissedCallSender(messenger, missedCallDelay),
	}
}

func SMSBody(alert *models.Alert) string {
	return fmt.Sprintf("VillageVault Alert: %s\n\n%s\n\nPriority: %s", alert.Title, alert.Message, alert.Priority)
}

func wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
