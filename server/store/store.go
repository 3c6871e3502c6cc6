// Package store defines the persistence adapter every VillageVault service talks to.
//
// Two implementations exist: sqlstore (gorm over postgres or encrypted sqlite) and
// memstore (in-process maps, used for local development & tests). Both return
// ErrNotFound for missing records so callers never depend on driver errors.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/villagevault/villagevault/server/models"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("record already exists")
)

type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByPhone(ctx context.Context, phoneNumber string) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	ListUsers(ctx context.Context, filter models.UserFilter) ([]models.User, error)
	CountUsers(ctx context.Context, filter models.UserFilter) (int64, error)
}

type VillageStore interface {
	CreateVillage(ctx context.Context, village *models.Village) error
	GetVillage(ctx context.Context, id string) (*models.Village, error)
	GetVillageByPinCode(ctx context.Context, pinCode string) (*models.Village, error)
}

type AlertStore interface {
	CreateAlert(ctx context.Context, alert *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter models.AlertFilter) ([]models.Alert, error)
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	// MarkAlertSent & SetAlertNextRun write a single column, leaving edits made
	// while a dispatch was running untouched.
	MarkAlertSent(ctx context.Context, id string, at time.Time) error
	SetAlertNextRun(ctx context.Context, id string, at time.Time) error
	DeleteAlert(ctx context.Context, id string) error
	CountAlerts(ctx context.Context, villageID string) (int64, error)
}

type DeliveryStore interface {
	CreateDelivery(ctx context.Context, delivery *models.AlertDelivery) error
	UpdateDelivery(ctx context.Context, delivery *models.AlertDelivery) error
	ListDeliveries(ctx context.Context, alertID string) ([]models.AlertDelivery, error)
	DeleteDeliveries(ctx context.Context, alertID string) error
}

type MessageStore interface {
	CreateMessage(ctx context.Context, message *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, filter models.MessageFilter) ([]models.Message, error)
	UpdateMessage(ctx context.Context, message *models.Message) error
	DeleteMessage(ctx context.Context, id string) error
	ClearMessages(ctx context.Context, villageID string) (int64, error)
	// MarkMessagesRead flags unread messages from 'senderID' addressed to 'readerID'
	// (or to the whole village) as read.
	MarkMessagesRead(ctx context.Context, senderID, readerID string) (int64, error)
	CountMessages(ctx context.Context, villageID string) (int64, error)
}

type SOSStore interface {
	CreateSOSReport(ctx context.Context, report *models.SOSReport) error
	GetSOSReport(ctx context.Context, id string) (*models.SOSReport, error)
	ListSOSReports(ctx context.Context, filter models.SOSFilter) ([]models.SOSReport, error)
	UpdateSOSReport(ctx context.Context, report *models.SOSReport) error
	DeleteSOSReport(ctx context.Context, id string) error
	CountSOSReports(ctx context.Context, filter models.SOSFilter) (int64, error)
}

// JobStore persists the work queue. Scheduled jobs carry an EnqueueAt time
// and are moved to the queue by the requeuer once due.
type JobStore interface {
	// CreateJob inserts 'job'. When 'unique' is set and a job with the same name is
	// already enqueued or scheduled, models.ErrDuplicateJob is returned.
	CreateJob(ctx context.Context, job *models.Job, unique bool) error
	NextEnqueuedJob(ctx context.Context) (*models.Job, error)
	// ClaimJob atomically marks an unclaimed job as claimed & in-progress.
	ClaimJob(ctx context.Context, id string) (bool, error)
	UpdateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	NextDueScheduledJob(ctx context.Context, now time.Time) (*models.Job, error)
	// NextStuckJob returns an in-progress job last updated before 'updatedBefore'.
	NextStuckJob(ctx context.Context, updatedBefore time.Time) (*models.Job, error)
	JobStats(ctx context.Context) (*models.JobsStats, error)
}

type Store interface {
	UserStore
	VillageStore
	AlertStore
	DeliveryStore
	MessageStore
	SOSStore
	JobStore

	Close() error
}
