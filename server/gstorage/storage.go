// Package gstorage copies files to & from a Google Cloud Storage bucket. It
// backs up the encrypted sqlite database.
package gstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"cloud.google.com/go/storage"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/logger"
	"google.golang.org/api/option"
)

var (
	ErrObjectNotExist = storage.ErrObjectNotExist

	logg = logger.NewLogger()
)

type GStorage struct {
	storageClient *storage.Client
	bucket        string
	prefix        string
}

// NewGStorage connects with the service account in 'credentialsFilePath', or
// with the default application credentials when it's empty.
func NewGStorage(ctx context.Context, credentialsFilePath, bucket, prefix string) (*GStorage, error) {
	var opts []option.ClientOption
	if credentialsFilePath != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFilePath))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGStorage: %v", err)
	}

	return &GStorage{storageClient: client, bucket: bucket, prefix: prefix}, nil
}

// ObjectName is where 'filePath' is stored in the bucket.
func (gs *GStorage) ObjectName(filePath string) string {
	return path.Join(gs.prefix, filepath.Base(filePath))
}

// UploadFile uploads the file at 'filePath' under the storage prefix.
func (gs *GStorage) UploadFile(ctx context.Context, filePath string) error {
	f, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("os.Open: %v", err)
	}
	defer f.Close()

	objectName := gs.ObjectName(filePath)
	wc := gs.storageClient.Bucket(gs.bucket).Object(objectName).NewWriter(ctx)
	if _, err = io.Copy(wc, f); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %v", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %v", err)
	}

	logg.Infof("%s blob %v uploaded", colors.Blue("[gstorage]"), objectName)
	return nil
}

// DownloadFile downloads the object stored for 'destFilePath' into it. The file
// is only replaced once the whole object has been read.
func (gs *GStorage) DownloadFile(ctx context.Context, destFilePath string) error {
	objectName := gs.ObjectName(destFilePath)

	rc, err := gs.storageClient.Bucket(gs.bucket).Object(objectName).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrObjectNotExist
	}
	if err != nil {
		return fmt.Errorf("Object(%q).NewReader: %v", objectName, err)
	}
	defer rc.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(destFilePath), filepath.Base(destFilePath)+".*.download")
	if err != nil {
		return fmt.Errorf("os.CreateTemp: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := io.Copy(tmpFile, rc); err != nil {
		tmpFile.Close()
		return fmt.Errorf("io.Copy: %v", err)
	}
	if err = tmpFile.Close(); err != nil {
		return fmt.Errorf("f.Close: %v", err)
	}
	if err := os.Chmod(tmpFile.Name(), 0600); err != nil {
		return err
	}

	if err := os.Rename(tmpFile.Name(), destFilePath); err != nil {
		return fmt.Errorf("os.Rename: %v", err)
	}

	logg.Infof("%s blob %v downloaded to local file %v", colors.Blue("[gstorage]"), objectName, destFilePath)
	return nil
}

func (gs *GStorage) Close() error {
	return gs.storageClient.Close()
}
