package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"tapntrack/internal/accounts"
	"tapntrack/internal/attendance"
	"tapntrack/internal/bulk"
	"tapntrack/internal/config"
	"tapntrack/internal/httpapi"
	"tapntrack/internal/mailer"
	"tapntrack/internal/queue"
	"tapntrack/internal/stats"
	"tapntrack/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Production() {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := runHTTP(cfg); err != nil {
		log.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Client.Close()

	records, err := store.Open(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Redis:       redisClient,
	})
	if err != nil {
		return err
	}
	defer records.Close()
	log.Printf("record store: %s", cfg.StoreBackend)

	repo := attendance.NewRepository(records)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		mem := queue.NewInMemory(256)
		q = mem
		// No separate worker reads an in-process queue.
		engine := stats.NewEngine(repo, repo, cfg.StoreCallTimeout)
		go func() {
			if err := engine.Work(ctx, mem); err != nil {
				log.Printf("in-process stats worker stopped: %v", err)
			}
		}()
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "")
	}

	coordinator := bulk.New(cfg.BulkParallelism, cfg.StoreCallTimeout)
	svc := attendance.NewService(repo, attendance.Options{
		DedupWindow:      cfg.DedupWindow,
		LateAfter:        cfg.LateAfter,
		Queue:            q,
		Bulk:             coordinator,
		RateWriteTimeout: cfg.StoreCallTimeout,
	})

	mail := mailer.New(mailer.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.MailFrom,
		ResetURL: cfg.ResetURL,
	})
	providers := func(s *accounts.Session) accounts.Provider {
		p := accounts.NewLocal(records, mail)
		if s != nil {
			p.Resume(*s)
		}
		return p
	}

	if cfg.AdminEmail != "" && cfg.AdminPassword != "" {
		admin, err := accounts.EnsureAdmin(ctx, providers(nil), repo, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName)
		if err != nil {
			return err
		}
		log.Printf("admin account: %s", admin.Email)
	}

	api := httpapi.New(httpapi.Deps{
		Config:   cfg,
		Service:  svc,
		Creator:  accounts.NewCreator(repo),
		Accounts: providers,
		Health: func(ctx context.Context) map[string]bool {
			_, err := records.GetAll(ctx, store.Devices)
			h := map[string]bool{"store": err == nil}
			if cfg.QueueBackend != "memory" || cfg.StoreBackend == "redis" {
				h["redis"] = redisClient.Healthy(ctx)
			}
			return h
		},
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      api.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	// Give outstanding requests 10 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced shutdown: %v", err)
	}

	log.Println("Server exited")
	return nil
}
