package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/propdesk/propdesk/internal/auth"
	"github.com/propdesk/propdesk/internal/backup"
	"github.com/propdesk/propdesk/internal/database"
	"github.com/propdesk/propdesk/internal/handlers"
	"github.com/propdesk/propdesk/internal/llm"
	"github.com/propdesk/propdesk/internal/metrics"
	mw "github.com/propdesk/propdesk/internal/middleware"
	"github.com/propdesk/propdesk/internal/secrets"
	ws "github.com/propdesk/propdesk/internal/websocket"
)

type Server struct {
	Router  *chi.Mux
	DB      *database.DB
	Auth    *auth.Service
	WSHub   *ws.Hub
	Metrics *metrics.Metrics
}

type Config struct {
	DB             *database.DB
	Auth           *auth.Service
	Hub            *ws.Hub
	Metrics        *metrics.Metrics
	Publisher      handlers.Publisher
	LLMClient      *llm.Client
	LLM            *llm.Services
	Secrets        *secrets.Box
	Backups        *backup.Manager
	AllowedOrigins []string
	DataDir        string
	Port           int
}

func New(cfg Config) *Server {
	s := &Server{
		Router:  chi.NewRouter(),
		DB:      cfg.DB,
		Auth:    cfg.Auth,
		WSHub:   cfg.Hub,
		Metrics: cfg.Metrics,
	}

	s.setupMiddleware(cfg.AllowedOrigins)
	s.setupRoutes(cfg)

	return s
}

func (s *Server) setupMiddleware(origins []string) {
	var observe mw.ObserveFunc
	if s.Metrics != nil {
		observe = s.Metrics.ObserveHTTP
	}
	s.Router.Use(chiMiddleware.RealIP)
	s.Router.Use(mw.RequestID)
	s.Router.Use(mw.SecurityHeaders)
	s.Router.Use(mw.Logger(observe))
	s.Router.Use(mw.CORS(origins))
	s.Router.Use(chiMiddleware.Recoverer)
}

func (s *Server) setupRoutes(cfg Config) {
	authHandler := handlers.NewAuthHandler(s.DB, s.Auth)
	setupHandler := handlers.NewSetupHandler(s.DB, s.Auth)
	leadsHandler := handlers.NewLeadsHandler(s.DB, cfg.Publisher, cfg.LLM)
	propertiesHandler := handlers.NewPropertiesHandler(s.DB, cfg.Publisher, cfg.LLM)
	conversationsHandler := handlers.NewConversationsHandler(s.DB, cfg.Publisher, cfg.LLM)
	dealsHandler := handlers.NewDealsHandler(s.DB, cfg.Publisher)
	scheduleHandler := handlers.NewScheduleHandler(s.DB, cfg.Publisher)
	analyticsHandler := handlers.NewAnalyticsHandler(s.DB)
	uploadsHandler := handlers.NewUploadsHandler(s.DB, cfg.DataDir)
	var live handlers.ClientCounter
	if s.WSHub != nil {
		live = s.WSHub
	}
	var sealer handlers.Sealer
	if cfg.Secrets != nil {
		sealer = cfg.Secrets
	}
	systemHandler := handlers.NewSystemHandler(s.DB, cfg.DataDir, cfg.LLMClient, live, sealer, cfg.Port)

	if s.Metrics != nil {
		s.Router.Handle("/metrics", s.Metrics.Handler())
	}

	s.Router.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.With(mw.RateLimit(10, time.Minute)).Post("/auth/login", authHandler.Login)

		r.Route("/setup", func(r chi.Router) {
			r.With(mw.RateLimit(5, time.Minute)).Get("/status", setupHandler.Status)
			r.With(mw.RateLimit(5, time.Minute)).Post("/init", setupHandler.Init)
		})

		r.Get("/system/health", systemHandler.Health)

		// WebSocket (auth handled internally)
		if s.WSHub != nil {
			r.Get("/ws", s.WSHub.HandleWS)
		}

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(mw.Auth(s.Auth))
			r.Use(mw.CSRFProtection)

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)
			r.Put("/auth/password", authHandler.ChangePassword)

			r.Route("/leads", func(r chi.Router) {
				r.Get("/", leadsHandler.List)
				r.Post("/", leadsHandler.Create)
				r.Get("/{id}", leadsHandler.Get)
				r.Put("/{id}", leadsHandler.Update)
				r.Delete("/{id}", leadsHandler.Delete)
				r.Post("/{id}/qualify", leadsHandler.Qualify)
			})

			r.Route("/properties", func(r chi.Router) {
				r.Get("/", propertiesHandler.List)
				r.Post("/", propertiesHandler.Create)
				r.Get("/{id}", propertiesHandler.Get)
				r.Put("/{id}", propertiesHandler.Update)
				r.Delete("/{id}", propertiesHandler.Delete)
				r.Post("/{id}/description", propertiesHandler.GenerateDescription)
				r.Post("/{id}/inquiries", propertiesHandler.Inquiry)
			})

			r.Route("/conversations", func(r chi.Router) {
				r.Get("/", conversationsHandler.List)
				r.Post("/", conversationsHandler.Create)
				r.Get("/{id}", conversationsHandler.Get)
				r.Get("/{id}/messages", conversationsHandler.Messages)
				r.Post("/{id}/messages", conversationsHandler.SendMessage)
				r.Post("/{id}/transcribe", conversationsHandler.Transcribe)
			})

			r.Route("/appointments", func(r chi.Router) {
				r.Get("/", scheduleHandler.ListAppointments)
				r.Post("/", scheduleHandler.CreateAppointment)
				r.Put("/{id}", scheduleHandler.UpdateAppointment)
				r.Delete("/{id}", scheduleHandler.DeleteAppointment)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", scheduleHandler.ListTasks)
				r.Post("/", scheduleHandler.CreateTask)
				r.Put("/{id}", scheduleHandler.UpdateTask)
			})

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", dealsHandler.ListTransactions)
				r.Post("/", dealsHandler.CreateTransaction)
				r.Get("/{id}", dealsHandler.GetTransaction)
				r.Put("/{id}", dealsHandler.UpdateTransaction)
			})

			r.Route("/offers", func(r chi.Router) {
				r.Get("/", dealsHandler.ListOffers)
				r.Post("/", dealsHandler.CreateOffer)
				r.Get("/{id}", dealsHandler.GetOffer)
				r.Put("/{id}", dealsHandler.UpdateOffer)
			})

			r.Route("/analytics", func(r chi.Router) {
				r.Get("/dashboard", analyticsHandler.Dashboard)
				r.Get("/leads", analyticsHandler.Leads)
				r.Get("/sales", analyticsHandler.Sales)
			})

			r.Post("/uploads", uploadsHandler.Upload)
			r.Get("/uploads/{filename}", uploadsHandler.Serve)

			r.Get("/system/info", systemHandler.Info)
			r.Get("/system/audit", systemHandler.AuditLog)
			r.Put("/settings/api-key", systemHandler.UpdateAPIKey)

			if cfg.Backups != nil {
				backupsHandler := handlers.NewBackupsHandler(cfg.Backups)
				r.Get("/system/backups", backupsHandler.List)
				r.Post("/system/backups", backupsHandler.Run)
			}
		})
	})

	s.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"not found"}`, http.StatusNotFound)
	})
}
