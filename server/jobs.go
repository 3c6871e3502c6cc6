package server

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/gstorage"
	"github.com/villagevault/villagevault/server/store/sqlstore"
	"github.com/villagevault/villagevault/server/work"
	"github.com/villagevault/villagevault/shared"
	"github.com/villagevault/villagevault/utils"
)

const BACKUP_DATABASE_HANDLER = "backupDatabase"

// Uploader is the remote copy of the sqlite file.
type Uploader interface {
	UploadFile(ctx context.Context, filePath string) error
	DownloadFile(ctx context.Context, destFilePath string) error
}

// databaseBackup keeps the encrypted sqlite file in sync with cloud storage.
type databaseBackup struct {
	uploader Uploader
	dbPath   string
}

// newDatabaseBackup returns nil unless the sqlite driver is used & backups are enabled.
func newDatabaseBackup(ctx context.Context, config *shared.ServerConfig, dbRootDir string) (*databaseBackup, error) {
	if config.Database.Driver != sqlstore.SQLITE_DRIVER || !config.Google.Storage.BackupEnabled() {
		return nil, nil
	}

	storage, err := gstorage.NewGStorage(ctx,
		config.Google.ApplicationCredentials,
		config.Google.Storage.Bucket,
		config.Google.Storage.Prefix,
	)
	if err != nil {
		return nil, err
	}

	dbDir, err := sqlstore.DbDirectory(dbRootDir)
	if err != nil {
		return nil, err
	}

	return &databaseBackup{uploader: storage, dbPath: filepath.Join(dbDir, sqlstore.DB_NAME)}, nil
}

// restore pulls the last backup when there's no local database yet.
func (b *databaseBackup) restore(ctx context.Context) error {
	if utils.FileExist(b.dbPath) {
		return nil
	}

	err := b.uploader.DownloadFile(ctx, b.dbPath)
	if errors.Is(err, gstorage.ErrObjectNotExist) {
		logg.Infof("%s no backup found, starting with an empty database", colors.Blue("[backup]"))
		return nil
	}
	return err
}

func (b *databaseBackup) backup(ctx context.Context, _ map[string]interface{}) error {
	if !utils.FileExist(b.dbPath) {
		logg.Warnf("%s %v doesn't exist yet, skipping backup", colors.Yellow("[backup]"), b.dbPath)
		return nil
	}
	return b.uploader.UploadFile(ctx, b.dbPath)
}

// register adds the backup handler & queues it on 'schedule'. Must be called
// before the worker pool starts.
func (b *databaseBackup) register(wpa *work.WorkerPoolAdapter, schedule string) error {
	if err := wpa.Register(BACKUP_DATABASE_HANDLER, b.backup); err != nil {
		return err
	}

	return wpa.PeriodicallyPerform(schedule, work.JobParams{
		Name:    BACKUP_DATABASE_HANDLER,
		Handler: BACKUP_DATABASE_HANDLER,
		Unique:  true,
		Args:    map[string]interface{}{},
	})
}
