// Package sqlstore implements store.Store on top of gorm, either with postgres
// or with an encrypted sqlite file for single node deployments.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	sqliteEncrypt "github.com/Daskott/gorm-sqlite-cipher"
	"github.com/villagevault/villagevault/server/logger"
	"github.com/villagevault/villagevault/server/models"
	"github.com/villagevault/villagevault/server/store"
	"github.com/villagevault/villagevault/utils"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

const (
	DB_NAME = "villagevault.db"

	SQLITE_DRIVER   = "sqlite"
	POSTGRES_DRIVER = "postgres"
)

var logg = logger.NewLogger()

type Config struct {
	Driver      string
	PassPhrase  string
	RootDir     string
	PostgresDSN string
}

type SQLStore struct {
	db     *gorm.DB
	driver string
	dbPath string
}

var _ store.Store = (*SQLStore)(nil)

// Open connects to the configured database & auto-migrates the schema.
func Open(config Config) (*SQLStore, error) {
	s := &SQLStore{driver: config.Driver}

	var dialector gorm.Dialector
	switch config.Driver {
	case SQLITE_DRIVER:
		dsn, dbPath, err := dbDSN(config.PassPhrase, config.RootDir)
		if err != nil {
			return nil, fmt.Errorf("failed to set sqlite DSN: %v", err)
		}
		s.dbPath = dbPath
		dialector = sqliteEncrypt.Open(dsn)
	case POSTGRES_DRIVER:
		dialector = postgres.Open(config.PostgresDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				LogLevel:                  gormLogger.Silent,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %v", err)
	}
	s.db = db

	err = db.AutoMigrate(
		&models.Village{}, &models.User{}, &models.Alert{}, &models.AlertDelivery{},
		&models.Message{}, &models.SOSReport{}, &models.Job{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	logg.Infof("Connected to %s database", config.Driver)
	return s, nil
}

// DBPath is the sqlite file backing the store, empty for postgres.
func (s *SQLStore) DBPath() string {
	return s.dbPath
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func dbDSN(passPhrase string, dbRootDir string) (string, string, error) {
	dbDir, err := DbDirectory(dbRootDir)
	if err != nil {
		return "", "", err
	}

	dbFilePath := filepath.Join(dbDir, DB_NAME)

	return fmt.Sprintf(
		"file:%v?_pragma_key=%s&_pragma_cipher_page_size=4096&_journal_mode=WAL",
		dbFilePath,
		passPhrase,
	), dbFilePath, nil
}

func DbDirectory(dbRootDir string) (string, error) {
	dbDir := filepath.Join(dbRootDir, "db")

	err := utils.CreateDirIfNotExist(dbDir)
	if err != nil {
		return "", err
	}

	return dbDir, nil
}

func (s *SQLStore) conn(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx)
}

// translate maps driver errors onto the store's sentinel errors.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return store.ErrDuplicate
	}
	return err
}

// save writes every column of 'value', returning ErrNotFound when no row matched.
func (s *SQLStore) save(ctx context.Context, value interface{}) error {
	res := s.conn(ctx).Model(value).Select("*").Omit("created_at").Updates(value)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// updateColumn sets one column on the row with 'id', returning ErrNotFound when no row matched.
func (s *SQLStore) updateColumn(ctx context.Context, model interface{}, id, column string, value interface{}) error {
	res := s.conn(ctx).Model(model).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) remove(ctx context.Context, value interface{}, id string) error {
	res := s.conn(ctx).Where("id = ?", id).Delete(value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) exists(ctx context.Context, value interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	err := s.conn(ctx).Model(value).Where(query, args...).Count(&count).Error
	return count > 0, err
}
