package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/villagevault/villagevault/server/gateway"
	"github.com/villagevault/villagevault/server/services"
	"github.com/villagevault/villagevault/server/store"
	"github.com/villagevault/villagevault/server/work"
	"github.com/villagevault/villagevault/utils"
)

// ---------------------------------------------------------------------------------//
// Handler Helper functions
// --------------------------------------------------------------------------------//

func writeResponse(rw http.ResponseWriter, payload ResponsePayload, statusCode int) {
	if statusCode >= http.StatusBadRequest {
		logg.Info(payload.Message)
	}

	rw.WriteHeader(statusCode)
	json.NewEncoder(rw).Encode(payload)
}

func writeData(rw http.ResponseWriter, message string, data interface{}, statusCode int) {
	writeResponse(rw, ResponsePayload{Success: true, Message: message, Data: data}, statusCode)
}

// writeError maps service errors onto status codes. Anything unexpected is
// logged & answered with 'internalMsg' so no internals leak to the client.
func writeError(rw http.ResponseWriter, err error, internalMsg string) {
	var (
		validationErr   *services.ValidationError
		unauthorizedErr *services.UnauthorizedError
		forbiddenErr    *services.ForbiddenError
		notFoundErr     *services.NotFoundError
	)

	switch {
	case errors.As(err, &validationErr):
		writeResponse(rw, ResponsePayload{Message: validationErr.Message}, http.StatusBadRequest)
	case errors.As(err, &unauthorizedErr):
		writeResponse(rw, ResponsePayload{Message: unauthorizedErr.Message}, http.StatusUnauthorized)
	case errors.As(err, &forbiddenErr):
		writeResponse(rw, ResponsePayload{Message: forbiddenErr.Message}, http.StatusForbidden)
	case errors.As(err, &notFoundErr):
		writeResponse(rw, ResponsePayload{Message: notFoundErr.Message}, http.StatusNotFound)
	case errors.Is(err, store.ErrNotFound):
		writeResponse(rw, ResponsePayload{Message: "Resource not found"}, http.StatusNotFound)
	default:
		logg.Error(err)
		writeResponse(rw, ResponsePayload{Message: internalMsg}, http.StatusInternalServerError)
	}
}

// decodeBody reads a JSON body into 'v'. An empty body leaves 'v' untouched.
func decodeBody(rw http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	writeResponse(rw, ResponsePayload{Message: "Invalid JSON payload"}, http.StatusBadRequest)
	return false
}

// queryLimit parses '?limit=', ignoring malformed values.
func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit < 0 {
		return 0
	}
	return limit
}

// ---------------------------------------------------------------------------------//
// Server Helper functions
// --------------------------------------------------------------------------------//

func serve(server *http.Server) {
	logg.Infof("VillageVault server is listening on port%v", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Fatal(err)
	}
}

func cleanup(workerPool *work.WorkerPoolAdapter, hub *gateway.Hub, server *http.Server, st store.Store, backup *databaseBackup) {
	// Stop all jobs i.e. scheduled alerts & backups
	workerPool.Stop()

	// Shutdown server gracefully
	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	if err := server.Shutdown(ctxShutDown); err != nil {
		logg.Errorf("VillageVault server shutdown failed:%+s", err)
	}

	if backup != nil {
		ctxBackup, cancelBackup := context.WithTimeout(context.Background(), 50*time.Second)
		defer cancelBackup()
		if err := backup.backup(ctxBackup, nil); err != nil {
			logg.Errorf("final database backup failed: %v", err)
		}
	}

	if err := st.Close(); err != nil {
		logg.Error(err)
	}

	logg.Infof("VillageVault server stopped properly")
}

// configDirectory retrieves the directory to store villagevault data
// Or logs an error message and then calls os.Exit if it's unable to.
func configDirectory(devMode bool) string {
	// Use 'villagevault' folder in home directory for prod
	configFolderName := "villagevault"
	rootDir, err := os.UserHomeDir()
	fatalOnError(err)

	// Use 'dev' folder in current directory for dev mode
	if devMode {
		configFolderName = "dev"
		rootDir, err = os.Getwd()
		fatalOnError(err)
	}

	configDir := filepath.Join(rootDir, configFolderName)

	err = utils.CreateDirIfNotExist(configDir)
	fatalOnError(err)

	return configDir
}

func fatalOnError(err error) {
	if err != nil {
		logg.Fatal(err)
	}
}
