package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgate/internal/auth"
	"authgate/internal/config"
	"authgate/internal/crypto"
	"authgate/internal/database"
	"authgate/internal/email"
	"authgate/internal/hydra"
	"authgate/internal/logging"
	"authgate/internal/oauth"
	redisx "authgate/internal/redis"
	"authgate/internal/server"
)

const logMaxSizeBytes = 20 << 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logOutput := io.Writer(os.Stdout)
	if cfg.LogFile != "" {
		fileWriter, err := logging.NewRotatingFileWriter(cfg.LogFile, logMaxSizeBytes, 3)
		if err != nil {
			log.Fatalf("log setup error: %v", err)
		}
		defer fileWriter.Close()
		logOutput = io.MultiWriter(os.Stdout, fileWriter)
	}
	log.SetOutput(logOutput)
	log.SetFlags(log.LstdFlags | log.LUTC | log.Lshortfile)

	key, err := crypto.ParseKey(cfg.EncryptionKey)
	if err != nil {
		log.Fatalf("encryption key error: %v", err)
	}
	box, err := crypto.NewBox(key)
	if err != nil {
		log.Fatalf("encryption key error: %v", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database error: %v", err)
	}
	defer db.Close()

	redisClient, err := redisx.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}
	defer redisClient.Close()

	users := auth.NewUserRepository(db)
	twoFactor := auth.NewTwoFactorRepository(db)
	resetTokens := auth.NewResetTokenRepository(db)
	rateLimiter := &auth.RateLimiter{Redis: redisClient}
	mailer := email.NewSender(cfg.Email)
	totpSvc := auth.NewTOTPService(cfg.TOTPIssuer, box)
	hasher := auth.NewBcryptHasher()
	hydraClient := hydra.NewClient(cfg.HydraAdminURL)
	states := &oauth.StateCodec{Box: box}

	var providers []oauth.Provider
	if cfg.OAuth.Google.Enabled() {
		providers = append(providers, oauth.NewGoogleProvider(cfg.OAuth.Google))
	}
	if cfg.OAuth.GitHub.Enabled() {
		providers = append(providers, oauth.NewGitHubProvider(cfg.OAuth.GitHub))
	}
	registry := oauth.NewRegistry(providers...)

	api := server.NewServer(cfg, users, twoFactor, resetTokens, rateLimiter, mailer, totpSvc, hasher, hydraClient, registry, states)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go sweepExpiredTokens(rootCtx, resetTokens, cfg.TokenSweepPeriod)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-rootCtx.Done()
	log.Printf("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// sweepExpiredTokens periodically clears spent and expired password-reset
// tokens so the table does not grow without bound.
func sweepExpiredTokens(ctx context.Context, tokens *auth.ResetTokenRepository, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, time.Minute)
			n, err := tokens.DeleteExpired(sweepCtx)
			cancel()
			if err != nil {
				log.Printf("token sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("token sweep: removed %d tokens", n)
			}
		}
	}
}
