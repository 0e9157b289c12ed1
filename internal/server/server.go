package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/taskcal/internal/auth"
	"github.com/dukerupert/taskcal/internal/backup"
	"github.com/dukerupert/taskcal/internal/config"
	"github.com/dukerupert/taskcal/internal/gcal"
	"github.com/dukerupert/taskcal/internal/handler"
	"github.com/dukerupert/taskcal/internal/llm"
	"github.com/dukerupert/taskcal/internal/middleware"
	"github.com/dukerupert/taskcal/internal/planner"
	"github.com/dukerupert/taskcal/internal/prompt"
	"github.com/dukerupert/taskcal/internal/push"
	"github.com/dukerupert/taskcal/internal/store"
	"github.com/dukerupert/taskcal/internal/suggest"
	ws "github.com/dukerupert/taskcal/internal/websocket"
)

type Server struct {
	db             *sql.DB
	cfg            *config.Config
	hub            *ws.Hub
	taskH          *handler.TaskHandler
	calendarH      *handler.CalendarHandler
	preferencesH   *handler.PreferencesHandler
	aiH            *handler.AIHandler
	authH          *handler.AuthHandler
	pushH          *handler.PushHandler
	sessionStore   *store.SessionStore
	userStore      *store.UserStore
	pushStore      *store.PushStore
	rateLimiter    *middleware.RateLimiter
	backupManager  *backup.Manager
	pushScheduler  *push.Scheduler
	allowedOrigins []string
	logger         *slog.Logger
}

// New wires stores, services and handlers over db. router serves model
// completions for the suggestion flow.
func New(db *sql.DB, cfg *config.Config, router *llm.Router, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	loc := cfg.Location()

	taskStore := store.NewTaskStore(db)
	eventStore := store.NewEventStore(db)
	prefsStore := store.NewPreferencesStore(db)

	// Auth stores
	userStore := store.NewUserStore(db)
	sessionStore := store.NewSessionStore(db, cfg.Session.TTL)
	tokenStore := store.NewOAuthTokenStore(db)

	oauthCfg := auth.GoogleConfig(cfg.Google.ClientID, cfg.Google.ClientSecret, cfg.Google.RedirectURL)
	var exporter handler.CalendarExporter
	if oauthCfg != nil {
		exporter = gcal.NewExporter(oauthCfg, tokenStore, eventStore, cfg.Google.CalendarID, logger.With("component", "gcal"))
	}

	suggester := suggest.NewService(prompt.NewContextBuilder(eventStore), prefsStore, router, loc, logger.With("component", "suggest"))
	plan := planner.New(taskStore, logger.With("component", "planner"))

	// Backup store + manager
	backupStore := store.NewBackupStore(db)
	backupMgr := backup.NewManager(cfg.BackupConfig(), db, backupStore, logger.With("component", "backup"))

	// Push notification service + scheduler
	pushSt := store.NewPushStore(db)
	pushCfg := cfg.PushConfig()
	var pushSched *push.Scheduler
	var pushH *handler.PushHandler
	if pushCfg.Enabled() {
		pushSvc := push.NewService(pushCfg)
		pushSched = push.NewScheduler(pushSvc, pushSt, eventStore, taskStore, push.SchedulerConfig{
			Interval:     cfg.Push.Interval,
			ReminderLead: cfg.Push.ReminderLead,
			DeadlineLead: cfg.Push.DeadlineLead,
			Location:     loc,
		}, logger.With("component", "push"))
		pushH = handler.NewPushHandler(pushSt, pushSvc, logger.With("component", "push_handler"))
	}

	return &Server{
		db:             db,
		cfg:            cfg,
		hub:            hub,
		taskH:          handler.NewTaskHandler(taskStore, eventStore, hub, logger.With("component", "task")),
		calendarH:      handler.NewCalendarHandler(eventStore, exporter, logger.With("component", "calendar")),
		preferencesH:   handler.NewPreferencesHandler(prefsStore, router, logger.With("component", "preferences")),
		aiH:            handler.NewAIHandler(suggester, plan, router, hub, logger.With("component", "ai")),
		authH:          handler.NewAuthHandler(oauthCfg, userStore, sessionStore, tokenStore, cfg.Server.SecureCookies, logger.With("component", "auth")),
		pushH:          pushH,
		sessionStore:   sessionStore,
		userStore:      userStore,
		pushStore:      pushSt,
		rateLimiter:    middleware.NewRateLimiter(),
		backupManager:  backupMgr,
		pushScheduler:  pushSched,
		allowedOrigins: cfg.Server.AllowedOrigins,
		logger:         logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the push notification scheduler, or nil when push is
// not configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// Hub returns the websocket hub.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /auth/google/login", s.rateLimitedHandler(s.authH.Login))
	outerMux.HandleFunc("GET /auth/google/callback", s.rateLimitedHandler(s.authH.Callback))
	outerMux.HandleFunc("POST /auth/logout", s.authH.Logout)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes, wrapped with RequireAuth
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.sessionStore, s.userStore, s.logger.With("component", "auth"))
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "ok",
		"backup": string(s.backupManager.Status().State),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.RealIP, 10, time.Minute)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

// aiLimitedHandler limits model calls per signed-in user.
func (s *Server) aiLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, middleware.UserOrIP, s.cfg.AI.RateLimit, s.cfg.AI.RateWindow)
	return func(w http.ResponseWriter, r *http.Request) {
		rl(http.HandlerFunc(h)).ServeHTTP(w, r)
	}
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /auth/me", s.authH.Me)

	// Tasks
	mux.HandleFunc("GET /tasks", s.taskH.List)
	mux.HandleFunc("POST /tasks", s.taskH.Create)
	mux.HandleFunc("GET /tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PUT /tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /tasks/{id}", s.taskH.Delete)
	mux.HandleFunc("PATCH /tasks/{id}/reschedule", s.taskH.Reschedule)
	mux.HandleFunc("POST /clear-data", s.taskH.ClearData)

	// Calendar
	mux.HandleFunc("GET /calendar", s.calendarH.List)
	mux.HandleFunc("POST /calendar/export", s.calendarH.Export)

	mux.HandleFunc("GET /user/preferences", s.preferencesH.Get)
	mux.HandleFunc("POST /user/preferences", s.preferencesH.Save)

	// AI
	mux.HandleFunc("POST /ai", s.aiLimitedHandler(s.aiH.Suggest))
	mux.HandleFunc("POST /ai/schedule", s.aiH.Schedule)
	mux.HandleFunc("GET /ai/models", s.aiH.Models)

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /push/subscribe", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /push/subscriptions/{id}", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /push/vapid-key", s.pushH.GetVAPIDKey)
		mux.HandleFunc("GET /push/preferences", s.pushH.GetPreferences)
		mux.HandleFunc("PUT /push/preferences", s.pushH.UpdatePreferences)
		mux.HandleFunc("POST /push/test", s.pushH.TestNotification)
	}

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.allowedOrigins, s.logger.With("component", "websocket")))
}
