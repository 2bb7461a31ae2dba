package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sociogram/internal/config"
	"github.com/sociogram/internal/handler"
	"github.com/sociogram/internal/logger"
	"github.com/sociogram/internal/middleware"
	"github.com/sociogram/internal/model"
	"github.com/sociogram/internal/notify"
	"github.com/sociogram/internal/presence"
	"github.com/sociogram/internal/push"
	"github.com/sociogram/internal/repository"
	"github.com/sociogram/internal/startup"
	"github.com/sociogram/internal/storage"
	"github.com/sociogram/internal/storage/memory"
	"github.com/sociogram/internal/ws"
	"github.com/sociogram/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory sessions (no external services required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}
	logger.Info("database connected, migrations applied")

	var sessionStore storage.SessionStore
	if *dev {
		sessionStore = memory.New()
	} else {
		sessionStore = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)
	}
	defer sessionStore.Close()

	userRepo := repository.NewUserRepository(pool)
	followRepo := repository.NewFollowRepository(pool)
	chatRepo := repository.NewChatRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	postRepo := repository.NewPostRepository(pool)
	commentRepo := repository.NewCommentRepository(pool)
	notifRepo := repository.NewNotificationRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	pushSubRepo := repository.NewPushSubscriptionRepository(pool)

	if *dev {
		if err := seedDevData(pool, userRepo, sessionRepo, sessionStore); err != nil {
			logger.Errorf("seed dev data: %v", err)
			os.Exit(1)
		}
	}

	vapidKeys := &push.VAPIDKeys{
		PublicKey:  cfg.VAPID.PublicKey,
		PrivateKey: cfg.VAPID.PrivateKey,
	}
	if vapidKeys.PublicKey == "" || vapidKeys.PrivateKey == "" {
		keys, err := push.EnsureVAPIDKeys("")
		if err != nil {
			logger.Errorf("VAPID keys unavailable: %v (web push disabled, online delivery unaffected)", err)
			vapidKeys = nil
		} else {
			vapidKeys = keys
		}
	}
	pushSender := push.NewSender(pushSubRepo, vapidKeys, "mailto:admin@sociogram.local")

	table := presence.NewTable()
	hub := ws.NewHub(table, userRepo, chatRepo, msgRepo, postRepo, cfg.MaxWSConnections)
	notifier := notify.NewNotifier(notifRepo, followRepo, table, pushSender)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	msgH := handler.NewMessageHandler(userRepo, chatRepo, msgRepo)
	notifH := handler.NewNotificationHandler(notifRepo)
	postH := handler.NewPostHandler(postRepo, commentRepo, followRepo, notifRepo, notifier)
	userH := handler.NewUserHandler(userRepo, followRepo, notifRepo, notifier, table)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)
	var vapidPub string
	if vapidKeys != nil {
		vapidPub = vapidKeys.PublicKey
	}
	pushH := handler.NewPushHandler(pushSubRepo, vapidPub)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Never compress a WebSocket upgrade, otherwise the wrapped ResponseWriter
	// loses http.Hijacker and the upgrade fails with a 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/api/push/public-key", pushH.PublicKey)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(sessionStore, sessionRepo))
		r.Get("/api/users/me", userH.Me)
		r.Get("/api/users/search", userH.Search)
		r.Get("/api/users/{identifier}", userH.Get)
		r.Post("/api/users/{id}/follow", userH.ToggleFollow)
		r.Get("/api/chats", msgH.ListChats)
		r.Get("/api/messages/{identifier}", msgH.GetConversation)
		r.Post("/api/posts", postH.Create)
		r.Get("/api/posts/{id}", postH.Get)
		r.Post("/api/posts/{id}/like", postH.ToggleLike)
		r.Post("/api/posts/{id}/comments", postH.CreateComment)
		r.Get("/api/notifications", notifH.List)
		r.Get("/api/notifications/unread-count", notifH.UnreadCount)
		r.Put("/api/notifications/read-all", notifH.MarkAllRead)
		r.Put("/api/notifications/{id}/read", notifH.MarkRead)
		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)
		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := migrations.Files.ReadFile(name)
		if err != nil {
			logger.Errorf("read migration %s: %v", name, err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", name, err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

// seedDevData creates two demo users with fixed session tokens (dev-alice,
// dev-bob) so the API and websocket can be exercised without an auth service.
func seedDevData(
	pool *pgxpool.Pool,
	users *repository.UserRepository,
	sessions *repository.SessionRepository,
	store storage.SessionStore,
) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	demo := []struct {
		id, username, email, token string
	}{
		{"00000000-0000-0000-0000-000000000001", "alice", "alice@sociogram.local", "dev-alice"},
		{"00000000-0000-0000-0000-000000000002", "bob", "bob@sociogram.local", "dev-bob"},
	}
	for _, d := range demo {
		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, d.id).Scan(&exists); err != nil {
			return fmt.Errorf("check demo user %s: %w", d.username, err)
		}
		if !exists {
			u := &model.User{
				ID:        d.id,
				Username:  d.username,
				Email:     d.email,
				CreatedAt: time.Now().UTC(),
			}
			if err := users.Create(ctx, u); err != nil {
				return fmt.Errorf("create demo user %s: %w", d.username, err)
			}
		}
		s := &model.Session{ID: d.token, UserID: d.id, CreatedAt: time.Now().UTC(), LastSeenAt: time.Now().UTC()}
		if err := sessions.Create(ctx, s); err != nil {
			return fmt.Errorf("create demo session %s: %w", d.username, err)
		}
		if err := store.SetSession(ctx, d.token, d.id); err != nil {
			return fmt.Errorf("store demo session %s: %w", d.username, err)
		}
		logger.Infof("dev user %s ready (session token %s)", d.username, d.token)
	}
	return nil
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "sociogram"
		password = "sociogram_secret"
		database = "sociogram"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
