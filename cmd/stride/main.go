package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dukerupert/stride/internal/auth"
	"github.com/dukerupert/stride/internal/config"
	"github.com/dukerupert/stride/internal/database"
	"github.com/dukerupert/stride/internal/logging"
	"github.com/dukerupert/stride/internal/push"
	"github.com/dukerupert/stride/internal/realtime"
	"github.com/dukerupert/stride/internal/server"
	"github.com/dukerupert/stride/internal/store"
)

const usage = `usage: stride [command]

commands:
  serve                       run the session server (default)
  keys                        print a new VAPID key pair
  profile <name> <district>   create a profile and print its access token
`

func main() {
	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve()
	case "keys":
		err = keys()
	case "profile":
		err = profile(os.Args[2:])
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "stride:", err)
		os.Exit(1)
	}
}

func keys() error {
	pub, priv, err := push.GenerateVAPIDKeys()
	if err != nil {
		return fmt.Errorf("generate vapid keys: %w", err)
	}
	fmt.Printf("STRIDE_VAPID_PUBLIC_KEY=%s\nSTRIDE_VAPID_PRIVATE_KEY=%s\n", pub, priv)
	return nil
}

func profile(args []string) error {
	if len(args) != 2 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("profile requires <name> <district>")
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	secret, hash, err := auth.NewSecret()
	if err != nil {
		return err
	}
	p, err := store.NewProfileStore(db).Create(strings.TrimSpace(args[0]), strings.TrimSpace(args[1]), hash)
	if err != nil {
		return err
	}
	fmt.Printf("profile %d created\ntoken: %s\n", p.ID, auth.FormatToken(p.ID, secret))
	return nil
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	var pushSvc *push.Service
	if cfg.Push().Enabled() {
		pushSvc = push.NewService(cfg.Push())
	} else {
		logger.Warn("web push disabled, set STRIDE_VAPID_PUBLIC_KEY and STRIDE_VAPID_PRIVATE_KEY to enable")
	}

	scheduler := cron.New(cron.WithLogger(logging.CronLogger(logger.With("component", "cron"))))
	feed := realtime.NewFeed(logger.With("component", "realtime"))

	srv := server.New(db, feed, pushSvc, scheduler, cfg, logger)

	if _, err := scheduler.AddFunc("@hourly", func() {
		if n := srv.RateLimiter().Cleanup(); n > 0 {
			logger.Debug("cleaned up rate limiter entries", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule cleanup: %w", err)
	}
	scheduler.Start()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("stride starting", "addr", httpServer.Addr, "push", pushSvc != nil)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	}

	slog.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	srv.Sessions().Close()
	<-scheduler.Stop().Done()
	feed.Close()
	return nil
}
