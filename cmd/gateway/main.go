package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "github.com/mind-engage/mindengage-school/internal/api/http"
	"github.com/mind-engage/mindengage-school/internal/attempt"
	auth "github.com/mind-engage/mindengage-school/internal/auth/middleware"
	"github.com/mind-engage/mindengage-school/internal/config"
	"github.com/mind-engage/mindengage-school/internal/db"
	"github.com/mind-engage/mindengage-school/internal/drafts"
	"github.com/mind-engage/mindengage-school/internal/gradebook"
	"github.com/mind-engage/mindengage-school/internal/logger"
	"github.com/mind-engage/mindengage-school/internal/notify"
	"github.com/mind-engage/mindengage-school/internal/quiz"
	"github.com/mind-engage/mindengage-school/internal/realtime"
	"github.com/mind-engage/mindengage-school/internal/sweeper"
	syncx "github.com/mind-engage/mindengage-school/internal/sync"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// --- Logging ---
	std := log.New(os.Stderr, "", log.LstdFlags)
	var lg logger.Logger = logger.NewStd(std)
	if cfg.RollbarToken != "" {
		host, _ := os.Hostname()
		rl := logger.NewRollbar(std, logger.RollbarConfig{
			Token:       cfg.RollbarToken,
			Environment: cfg.Env,
			Host:        host,
		})
		defer rl.Close()
		lg = rl
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		log.Fatalf("db driver: %v", err)
	}
	dbh, err := db.Open(openCtx, driver, cfg.DBDSN)
	if err != nil {
		log.Fatalf("db open failed: %v", err)
	}
	defer dbh.Close()
	store := quiz.NewSQLStore(dbh)

	// --- Auth ---
	users := auth.NewUserStore(dbh)
	if cfg.AdminUser != "" && cfg.AdminPassHash != "" {
		if err := users.EnsureAdmin(openCtx, cfg.AdminUser, cfg.AdminEmail, cfg.AdminPassHash); err != nil {
			log.Fatalf("bootstrap admin: %v", err)
		}
	}
	authSvc := auth.NewAuthService(cfg.JWTSecret, cfg.JWTTTL)

	// --- Drafts ---
	var draftStore drafts.Store = drafts.NewMemoryStore()
	ready := dbh.Ping
	if cfg.RedisAddr != "" {
		rdb, err := drafts.Connect(openCtx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("redis: %v", err)
		}
		defer rdb.Close()
		draftStore = drafts.NewRedisStore(rdb, cfg.DraftTTL)
		ready = func() error {
			if err := dbh.Ping(); err != nil {
				return err
			}
			return rdb.Ping(context.Background()).Err()
		}
	}

	// --- Notifications ---
	var notifier notify.Notifier = notify.NewLogNotifier(lg)
	if cfg.SendgridAPIKey != "" {
		notifier = notify.NewSendgridNotifier(notify.SendgridConfig{
			APIKey:    cfg.SendgridAPIKey,
			FromName:  cfg.MailFromName,
			FromEmail: cfg.MailFromEmail,
			AppName:   "MindEngage School",
		}, users, lg)
	}

	// --- Attempts ---
	hub := realtime.NewHub(lg)
	ctrl := attempt.NewController(store,
		attempt.WithDrafts(draftStore),
		attempt.WithPublisher(hub),
		attempt.WithNotifier(notifier),
		attempt.WithLogger(lg),
	)
	defer ctrl.Close()

	sw := sweeper.New(store, ctrl, lg)
	if _, err := sw.Sweep(openCtx); err != nil {
		lg.Warn("startup sweep failed", err)
	}
	if err := sw.Start(cfg.SweepSchedule); err != nil {
		log.Fatalf("sweeper: %v", err)
	}
	defer sw.Stop()

	// --- Router ---
	origins := cfg.CORSOrigins()
	realtime.SetCheckOrigin(func(r *http.Request) bool {
		o := r.Header.Get("Origin")
		if o == "" {
			return true
		}
		for _, allowed := range origins {
			if allowed == "*" || allowed == o {
				return true
			}
		}
		return false
	})
	r := api.NewRouter(api.Deps{
		Auth:              authSvc,
		Users:             users,
		Store:             store,
		Controller:        ctrl,
		Gradebook:         gradebook.NewService(store),
		Hub:               hub,
		Events:            syncx.NewEventRepo(dbh),
		Log:               lg,
		CORSOrigins:       origins,
		RoleClaimFallback: cfg.Mode == config.ModeOffline,
		Ready:             ready,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	log.Printf("listening on %s (mode=%s, db=%s)", cfg.HTTPAddr, cfg.Mode, cfg.DBDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		lg.Error("http server stopped", err)
	}
}
