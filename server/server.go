// Package server wires VillageVault together: storage, the work queue, the
// real-time gateway & the REST API.
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/villagevault/villagevault/colors"
	"github.com/villagevault/villagevault/server/auth/key"
	"github.com/villagevault/villagevault/server/delivery"
	"github.com/villagevault/villagevault/server/gateway"
	"github.com/villagevault/villagevault/server/logger"
	"github.com/villagevault/villagevault/server/otp"
	"github.com/villagevault/villagevault/server/scheduler"
	"github.com/villagevault/villagevault/server/services"
	"github.com/villagevault/villagevault/server/store"
	"github.com/villagevault/villagevault/server/store/memstore"
	"github.com/villagevault/villagevault/server/store/sqlstore"
	"github.com/villagevault/villagevault/server/twilio"
	"github.com/villagevault/villagevault/server/work"
	"github.com/villagevault/villagevault/shared"
)

const (
	MEMORY_DRIVER = "memory"
	RSA_KEY_BITS  = 2048
)

var logg = logger.NewLogger()

type Options struct {
	Store       store.Store
	Hub         *gateway.Hub
	OTPs        *otp.Manager
	OTPSender   services.OTPSender
	KeyPair     *key.KeyPair
	TokenTTL    time.Duration
	Scheduler   services.AlertScheduler
	FrontendURL string
}

type Server struct {
	store       store.Store
	auth        *services.AuthService
	alerts      *services.AlertService
	sos         *services.SOSService
	messages    *services.MessageService
	directory   *services.DirectoryService
	gateway     *gateway.Gateway
	frontendURL string
}

func NewServer(opts Options) *Server {
	if opts.Hub == nil {
		opts.Hub = gateway.NewHub()
	}

	s := &Server{
		store:       opts.Store,
		auth:        services.NewAuthService(opts.Store, opts.OTPs, opts.OTPSender, opts.KeyPair, opts.TokenTTL),
		alerts:      services.NewAlertService(opts.Store, opts.Hub, opts.Scheduler),
		sos:         services.NewSOSService(opts.Store, opts.Hub),
		messages:    services.NewMessageService(opts.Store, opts.Hub),
		directory:   services.NewDirectoryService(opts.Store),
		frontendURL: opts.FrontendURL,
	}
	s.gateway = gateway.New(opts.Hub, s.auth, opts.Store, s.messages, opts.FrontendURL)

	return s
}

// Handler returns the router with CORS & access logging applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(loggingMiddleware)
	router.NotFoundHandler = http.HandlerFunc(notFoundRoute)
	router.MethodNotAllowedHandler = http.HandlerFunc(notFoundRoute)

	router.HandleFunc("/socket", s.gateway.ServeWS).Methods("GET")
	router.Handle("/.well-known/jwks.json", jsonContentMiddleware(http.HandlerFunc(s.jwks))).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.Use(jsonContentMiddleware)

	api.HandleFunc("/health", health).Methods("GET")

	api.HandleFunc("/auth/register", s.register).Methods("POST")
	api.HandleFunc("/auth/login", s.login).Methods("POST")
	api.HandleFunc("/auth/verify-otp", s.verifyOTP).Methods("POST")
	api.Handle("/auth/profile", s.protect(s.profile)).Methods("GET")
	api.Handle("/auth/profile", s.protect(s.updateProfile)).Methods("PUT")

	api.HandleFunc("/alerts", s.listAlerts).Methods("GET")
	api.Handle("/alerts", s.sarpanchOnly(s.createAlert)).Methods("POST")
	api.HandleFunc("/alerts/{id}", s.findAlert).Methods("GET")
	api.Handle("/alerts/{id}", s.sarpanchOnly(s.updateAlert)).Methods("PUT")
	api.Handle("/alerts/{id}", s.sarpanchOnly(s.deleteAlert)).Methods("DELETE")
	api.Handle("/alerts/{id}/deliveries", s.sarpanchOnly(s.alertDeliveries)).Methods("GET")

	api.Handle("/messages", s.protect(s.listMessages)).Methods("GET")
	api.Handle("/messages", s.protect(s.createMessage)).Methods("POST")
	// Must be registered before /messages/{id}
	api.Handle("/messages/clear", s.protect(s.clearMessages)).Methods("DELETE")
	api.HandleFunc("/messages/{id}", s.findMessage).Methods("GET")
	api.Handle("/messages/{id}", s.protect(s.updateMessage)).Methods("PUT")
	api.Handle("/messages/{id}", s.protect(s.deleteMessage)).Methods("DELETE")

	api.HandleFunc("/sos", s.listSOSReports).Methods("GET")
	api.Handle("/sos", s.protect(s.createSOSReport)).Methods("POST")
	api.HandleFunc("/sos/{id}", s.findSOSReport).Methods("GET")
	api.Handle("/sos/{id}", s.sarpanchOnly(s.updateSOSReport)).Methods("PUT")
	api.Handle("/sos/{id}", s.sarpanchOnly(s.deleteSOSReport)).Methods("DELETE")
	api.Handle("/sos/{id}/status", s.sarpanchOnly(s.updateSOSStatus)).Methods("PATCH")

	api.Handle("/users/village", s.protect(s.villageUsers)).Methods("GET")
	api.Handle("/users/village/stats", s.protect(s.villageStats)).Methods("GET")
	api.Handle("/users/profile", s.protect(s.updateProfile)).Methods("PUT")
	api.Handle("/users/{id}", s.protect(s.villageUser)).Methods("GET")

	api.HandleFunc("/villages/search", s.searchVillages).Methods("GET")
	api.Handle("/villages/current", s.protect(s.currentVillage)).Methods("GET")
	api.Handle("/villages/stats", s.protect(s.villageStats)).Methods("GET")

	api.Handle("/jobs/stats", s.sarpanchOnly(s.jobStats)).Methods("GET")

	return handlers.CORS(
		handlers.AllowedOrigins([]string{allowedOrigin(s.frontendURL)}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)(router)
}

func (s *Server) protect(handler http.HandlerFunc) http.Handler {
	return s.protectedRouteMiddleware(handler)
}

func (s *Server) sarpanchOnly(handler http.HandlerFunc) http.Handler {
	return s.protectedRouteMiddleware(sarpanchRouteMiddleware(handler))
}

func allowedOrigin(frontendURL string) string {
	if frontendURL == "" {
		return "*"
	}
	return frontendURL
}

// ---------------------------------------------------------------------------------//
// Start
// --------------------------------------------------------------------------------//

func Start(config *shared.ServerConfig, devMode bool) {
	ctx := context.Background()
	vv := config.VillageVault

	dbRootDir := config.Database.Sqlite.Dir
	if dbRootDir == "" {
		dbRootDir = configDirectory(devMode)
	}

	backup, err := newDatabaseBackup(ctx, config, dbRootDir)
	fatalOnError(err)
	if backup != nil {
		fatalOnError(backup.restore(ctx))
	}

	st, err := openStore(config.Database, dbRootDir)
	fatalOnError(err)

	if vv.SeedDemoData {
		fatalOnError(store.SeedDemoData(ctx, st))
	}

	keyPair, err := loadKeyPair(vv.PrivateKeyPem)
	fatalOnError(err)

	otpStore, err := newOTPStore(ctx, config.Redis)
	fatalOnError(err)

	twilioClient := twilio.NewClient(config.Twilio)
	hub := gateway.NewHub()

	workerPool := work.NewWorkerAdapter(st, work.AdapterConfig{
		TimeZone:    vv.Cron.TimeZone,
		Concurrency: vv.Workers.Concurrency,
	})

	engine := delivery.NewEngine(st,
		delivery.DefaultSenders(hub, twilioClient, vv.Delivery.SMSDelay, vv.Delivery.MissedCallDelay),
		delivery.Config{ExcludeSender: vv.Delivery.ExcludeSender},
	)

	alertScheduler, err := scheduler.NewAlertScheduler(st, workerPool, engine)
	fatalOnError(err)

	if backup != nil {
		fatalOnError(backup.register(workerPool, config.Google.Storage.SqliteBackupSchedule))
	}

	fatalOnError(workerPool.Start())

	s := NewServer(Options{
		Store: st,
		Hub:   hub,
		OTPs: otp.NewManager(otpStore, otp.Config{
			Length:      vv.OTP.Length,
			TTL:         vv.OTP.TTL,
			MaxAttempts: vv.OTP.MaxAttempts,
		}),
		OTPSender:   twilioClient,
		KeyPair:     keyPair,
		TokenTTL:    vv.TokenTTL,
		Scheduler:   alertScheduler,
		FrontendURL: vv.FrontendURL,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%v", vv.Listener.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go serve(server)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logg.Info("Shutting down VillageVault server...")
	cleanup(workerPool, hub, server, st, backup)
}

func openStore(config shared.DatabaseConfig, dbRootDir string) (store.Store, error) {
	if config.Driver == MEMORY_DRIVER {
		logg.Warn(colors.Yellow("using the in-memory store, data is lost on restart"))
		return memstore.New(), nil
	}

	sqlStore, err := sqlstore.Open(sqlstore.Config{
		Driver:      config.Driver,
		PassPhrase:  config.Sqlite.PassPhrase,
		RootDir:     dbRootDir,
		PostgresDSN: config.Postgres.DSN,
	})
	if err != nil {
		return nil, err
	}
	return sqlStore, nil
}

func loadKeyPair(privateKeyPem string) (*key.KeyPair, error) {
	if privateKeyPem == "" {
		logg.Warn(colors.Yellow("privateKeyPem not set, tokens won't survive a restart"))
		return key.GenerateKeyPair(RSA_KEY_BITS)
	}
	return key.NewKeyPairFromRSAPrivateKeyPem(privateKeyPem)
}

// newOTPStore uses redis when an address is configured, else an in-process store.
func newOTPStore(ctx context.Context, config shared.RedisConfig) (otp.Store, error) {
	if config.Addr == "" {
		logg.Warn(colors.Yellow("redis addr not set, OTPs are kept in memory"))
		return otp.NewMemoryStore(), nil
	}

	redisStore := otp.NewRedisStore(otp.NewRedisClient(config.Addr, config.Password, config.DB))

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisStore.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to reach redis at %v: %v", config.Addr, err)
	}

	return redisStore, nil
}
