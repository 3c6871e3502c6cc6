// Package delivery fans an alert out to every verified member of its village
// over each of the alert's channels, recording one AlertDelivery per pair.
package delivery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/logger"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
	"golang.org/x/sync/errgroup"
)

var logg = logger.NewLogger()

// Sender delivers 'alert' to 'user' over a single channel.
type Sender interface {
	Send(ctx context.Context, user *models.User, alert *models.Alert) error
}

type Store interface {
	store.AlertStore
	store.UserStore
	store.DeliveryStore
}

type Config struct {
	// ExcludeSender leaves the alert's author out of the recipients.
	ExcludeSender bool
}

type Report struct {
	AlertID    string `json:"alertId"`
	Recipients int    `json:"recipients"`
	Total      int    `json:"total"`
	Delivered  int    `json:"delivered"`
	Failed     int    `json:"failed"`
}

type Engine struct {
	store   Store
	senders map[string]Sender
	config  Config
	now     func() time.Time
}

func NewEngine(st Store, senders map[string]Sender, config Config) *Engine {
	return &Engine{store: st, senders: senders, config: config, now: time.Now}
}

// Dispatch sends alert 'alertID' to all recipients on all of its channels & waits
// for every delivery to settle. Channel failures are recorded on the delivery
// records, only failing to load the alert or its recipients returns an error.
func (e *Engine) Dispatch(ctx context.Context, alertID string) (*Report, error) {
	alert, err := e.store.GetAlert(ctx, alertID)
	if err != nil {
		return nil, fmt.Errorf("dispatch %v: %w", alertID, err)
	}

	filter := models.UserFilter{VillageID: alert.VillageID, VerifiedOnly: true}
	if e.config.ExcludeSender {
		filter.ExcludeID = alert.SenderID
	}
	recipients, err := e.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("dispatch %v: %w", alertID, err)
	}

	report := &Report{AlertID: alert.ID, Recipients: len(recipients)}
	var mu sync.Mutex
	settle := func(delivered bool) {
		mu.Lock()
		defer mu.Unlock()
		if delivered {
			report.Delivered++
		} else {
			report.Failed++
		}
	}

	// Sibling deliveries keep going when one fails, so the group never cancels
	var group errgroup.Group
	for i := range recipients {
		user := &recipients[i]
		for _, channel := range alert.Channels {
			report.Total++

			delivery := &models.AlertDelivery{
				AlertID: alert.ID,
				UserID:  user.ID,
				Channel: channel,
				Status:  models.PENDING_DELIVERY,
			}
			if err := e.store.CreateDelivery(ctx, delivery); err != nil {
				logg.Errorf("%s unable to record %s delivery for user %v: %v", colors.Red("[delivery]"), channel, user.ID, err)
				settle(false)
				continue
			}

			group.Go(func() error {
				settle(e.deliver(ctx, delivery, user, alert))
				return nil
			})
		}
	}
	group.Wait()

	logg.Infof("%s alert %v: %d delivered, %d failed, %d recipient(s)",
		colors.Blue("[delivery]"), alert.ID, report.Delivered, report.Failed, report.Recipients)

	// A dispatch cut short by shutdown is reported so its job goes back to the queue
	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("dispatch %v interrupted: %w", alertID, err)
	}

	if err := e.store.MarkAlertSent(ctx, alert.ID, e.now()); err != nil {
		logg.Errorf("%s unable to stamp lastSentAt on alert %v: %v", colors.Red("[delivery]"), alert.ID, err)
	}

	return report, nil
}

func (e *Engine) deliver(ctx context.Context, delivery *models.AlertDelivery, user *models.User, alert *models.Alert) bool {
	var err error
	sender, ok := e.senders[delivery.Channel]
	if !ok {
		err = fmt.Errorf("unsupported channel %q", delivery.Channel)
	} else {
		err = sender.Send(ctx, user, alert)
	}

	if err != nil {
		delivery.MarkFailed(err)
		logg.Warnf("%s %s to user %v failed: %v", colors.Yellow("[delivery]"), delivery.Channel, user.ID, err)
	} else {
		delivery.MarkDelivered(e.now())
	}

	// The outcome is recorded even if the dispatch context was cancelled mid-send
	updateCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if updateErr := e.store.UpdateDelivery(updateCtx, delivery); updateErr != nil {
		logg.Errorf("%s unable to update delivery %v: %v", colors.Red("[delivery]"), delivery.ID, updateErr)
	}

	return err == nil
}
