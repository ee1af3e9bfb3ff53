package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/propdesk/propdesk/internal/auth"
	"github.com/propdesk/propdesk/internal/backup"
	"github.com/propdesk/propdesk/internal/config"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/events"
	"github.com/propdesk/propdesk/internal/handlers"
	"github.com/propdesk/propdesk/internal/llm"
	"github.com/propdesk/propdesk/internal/logger"
	"github.com/propdesk/propdesk/internal/metrics"
	"github.com/propdesk/propdesk/internal/scheduler"
	"github.com/propdesk/propdesk/internal/secrets"
	"github.com/propdesk/propdesk/internal/server"
	ws "github.com/propdesk/propdesk/internal/websocket"
)

var version = "dev"

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "-v") {
		fmt.Println("propdesk " + version)
		os.Exit(0)
	}

	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	// One-shot backup (e.g. from an external cron) without starting the server.
	if len(os.Args) == 2 && os.Args[1] == "backup" {
		runBackupCommand(cfg)
		return
	}

	logger.Banner()
	handlers.AppVersion = version

	db, err := database.New(cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// JWT secret and settings encryption key: env > database > generate.
	jwtSecret, created, err := secrets.LoadOrCreate(db, "jwt_secret", cfg.JWTSecret)
	if err != nil {
		logger.Fatal("Failed to resolve JWT secret: %v", err)
	}
	if created {
		logger.Success("Generated and persisted JWT secret")
	}
	encKey, created, err := secrets.LoadOrCreate(db, "encryption_key", cfg.EncryptionKey)
	if err != nil {
		logger.Fatal("Failed to resolve encryption key: %v", err)
	}
	if created {
		logger.Success("Generated settings encryption key")
	}
	box, err := secrets.NewBox(encKey)
	if err != nil {
		logger.Fatal("Failed to initialize settings encryption: %v", err)
	}

	authService := auth.NewService(jwtSecret)
	m := metrics.New()
	db.OnAudit = m.AuditLogged

	// Model provider key: OPENAI_API_KEY > sealed DB setting.
	dbKey, err := box.Reveal(db.GetSetting("openai_api_key"))
	if err != nil {
		logger.Warn("Stored API key cannot be decrypted; set it again in settings")
		dbKey = ""
	}
	apiKey, source := llm.ResolveAPIKey(cfg.OpenAIKey, dbKey)
	llmClient := llm.NewClient(cfg.OpenAIBaseURL, apiKey, cfg.LLMModel)
	services := llm.NewServices(llmClient)
	services.OnCall = m.LLMCall
	if source == "none" {
		logger.Warn("No model API key configured; AI features will return fallbacks")
	} else {
		logger.Info("Model %s via %s key", llmClient.Model(), source)
	}

	var origins []string
	if cfg.DevMode {
		origins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	hub := ws.NewHub(authService, origins)
	hub.OnClientsChanged = m.SetWSClients
	go hub.Run()

	bridge := events.NewBridge(hub, m)
	if err := bridge.ConnectNATS(cfg.NATSURL); err != nil {
		logger.Warn("NATS bridge disabled: %v", err)
	}

	var backups *backup.Manager
	schedOpts := scheduler.Options{
		ReminderWindow: cfg.ReminderWindow,
		DeadlineWindow: cfg.DeadlineWindow,
	}
	if cfg.BackupKeep > 0 {
		backups = backup.New(db, cfg.DataDir, version, cfg.BackupKeep)
		schedOpts.Backup = func() error {
			_, err := backups.Run()
			return err
		}
	}
	sched := scheduler.New(db, bridge, schedOpts)
	sched.OnRun = m.SchedulerRun
	sched.Start()

	srv := server.New(server.Config{
		DB:             db,
		Auth:           authService,
		Hub:            hub,
		Metrics:        m,
		Publisher:      bridge,
		LLMClient:      llmClient,
		LLM:            services,
		Secrets:        box,
		Backups:        backups,
		AllowedOrigins: origins,
		DataDir:        cfg.DataDir,
		Port:           cfg.Port,
	})

	hasAdmin, err := db.HasAdminUser()
	if err != nil {
		logger.Fatal("Failed to check admin user: %v", err)
	}
	if !hasAdmin {
		logger.Warn("No admin user found. POST /api/v1/setup/init to create one.")
	}

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	if cfg.BindAddress != "127.0.0.1" && cfg.BindAddress != "localhost" {
		logger.Warn("Binding to %s, reachable from the network. Use PROPDESK_BIND=127.0.0.1 for localhost-only.", cfg.BindAddress)
	}
	httpServer := &http.Server{
		Addr:        addr,
		Handler:     srv.Router,
		ReadTimeout: 15 * time.Second,
		// Zero so websocket connections are not cut off.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Listen(addr, fmt.Sprintf("http://localhost:%d", cfg.Port), cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error: %v", err)
		}
	}()

	<-done
	logger.Shutdown("Shutting down server...")

	sched.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Server shutdown failed: %v", err)
	}
	hub.Stop()
	bridge.Close()

	logger.Bye()
}

func runBackupCommand(cfg *config.Config) {
	db, err := database.New(cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to open database: %v", err)
	}
	defer db.Close()

	keep := cfg.BackupKeep
	if keep <= 0 {
		keep = backup.DefaultKeep
	}
	man, err := backup.New(db, cfg.DataDir, version, keep).Run()
	if err != nil {
		logger.Error("Backup failed: %v", err)
		db.Close()
		os.Exit(1)
	}
	fmt.Printf("Backup %s written (%d leads, %d properties, %d transactions)\n",
		man.ID, man.Stats.Leads, man.Stats.Properties, man.Stats.Transactions)
}
