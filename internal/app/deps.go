package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zoner/backend/internal/accounts"
	"github.com/zoner/backend/internal/auth"
	"github.com/zoner/backend/internal/business"
	"github.com/zoner/backend/internal/config"
	"github.com/zoner/backend/internal/db"
	"github.com/zoner/backend/internal/feed"
	"github.com/zoner/backend/internal/handlers"
	"github.com/zoner/backend/internal/jobs"
	"github.com/zoner/backend/internal/media"
	"github.com/zoner/backend/internal/middleware"
	"github.com/zoner/backend/internal/models"
	"github.com/zoner/backend/internal/notify"
	"github.com/zoner/backend/internal/repositories"
	"github.com/zoner/backend/internal/status"
	"github.com/zoner/backend/internal/storage"
	"github.com/zoner/backend/internal/uploads"
)

const outboundTimeout = 10 * time.Second

// components is everything serve needs: the HTTP collaborators plus the
// services driven by the expiry schedule.
type components struct {
	HTTP     handlers.Dependencies
	Statuses *status.Service
	Sessions *auth.Manager
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// buildDependencies wires together concrete implementations used by the HTTP handlers.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (components, func(context.Context) error, error) {
	store, err := storage.New(ctx, cfg.ObjectStore)
	if err != nil {
		return components{}, nil, err
	}

	tokens, err := auth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience, cfg.Auth.AccessTTL)
	if err != nil {
		return components{}, nil, fmt.Errorf("configure tokens: %w", err)
	}

	checks := map[string]handlers.Pinger{}
	if p, ok := pool.(handlers.Pinger); ok {
		checks["database"] = p
	}

	var (
		redisClient redis.UniversalClient
		revoker     auth.Revoker = auth.NewMemoryRevoker()
		otpLimiter  middleware.RateLimiter
	)
	authLimiter := middleware.NewIPRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window, cfg.RateLimit.Burst, 10*time.Minute)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		revoker = auth.NewRedisRevoker(redisClient, "zoner:revoked")
		otpLimiter, err = middleware.NewRedisFixedWindow(redisClient, "zoner:ratelimit:otp", cfg.RateLimit.OTPLimit, cfg.RateLimit.OTPWindow)
		if err != nil {
			_ = redisClient.Close()
			return components{}, nil, fmt.Errorf("configure otp limiter: %w", err)
		}
		client := redisClient
		checks["redis"] = pingerFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
	} else {
		logger.Warn("redis not configured, using in-process token revocation and rate limits")
		otpLimiter = middleware.NewIPRateLimiter(cfg.RateLimit.OTPLimit, cfg.RateLimit.OTPWindow, cfg.RateLimit.OTPLimit, cfg.RateLimit.OTPWindow)
	}

	mediaPool := jobs.NewPool(jobs.Config{Name: "media", Workers: cfg.Media.Workers, QueueSize: cfg.Media.QueueSize}, logger)
	outbound := jobs.NewPool(jobs.Config{Name: "outbound", Workers: 4, QueueSize: 256, JobTimeout: 30 * time.Second}, logger)

	users := repositories.NewPostgresUserRepository(pool)
	businesses := repositories.NewPostgresBusinessRepository(pool)
	statusRepo := repositories.NewPostgresStatusRepository(pool)
	sessions := auth.NewManager(tokens, cfg.Auth.RefreshTTL, repositories.NewPostgresSessionStore(pool), revoker)

	transcoder := media.NewVideoTranscoder(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, cfg.Media.TranscodeTimeout)
	uploader := &uploads.Service{
		Validator: media.NewValidator(transcoder),
		Images:    media.ImageTranscoder{},
		Videos:    transcoder,
		Store:     store,
		Runner:    mediaPool,
	}

	httpClient := &http.Client{Timeout: outboundTimeout}
	notifications := notify.Service{
		Repo:  repositories.NewPostgresNotificationRepository(pool),
		Users: users,
		Push:  notify.NewPushClient(cfg.Push.Endpoint, cfg.Push.Token, httpClient, logger),
		Queue: outbound,
	}
	mailer := notify.NewMailer(
		notify.NewMailClient(cfg.Mail.Endpoint, cfg.Mail.APIKey, cfg.Mail.FromEmail, cfg.Mail.FromName, httpClient, logger),
		outbound,
	)

	accountService := &accounts.Service{
		Users:    users,
		Codes:    repositories.NewPostgresVerificationRepository(pool),
		Sessions: sessions,
		Mailer:   mailer,
		Images:   uploader,
		Business: businesses,
		Verifiers: map[models.AuthProvider]auth.IdentityVerifier{
			models.ProviderGoogle:   auth.NewGoogleVerifier(cfg.OAuth.GoogleTokenInfoURL, httpClient, logger),
			models.ProviderFacebook: auth.NewFacebookVerifier(cfg.OAuth.FacebookGraphURL, httpClient, logger),
		},
	}

	statuses := &status.Service{
		Statuses: statusRepo,
		Media:    uploader,
		Feed:     feed.NewAggregator(statusRepo, users, businesses),
		Notifier: notifications,
		Users:    users,
	}

	deps := handlers.Dependencies{
		Accounts:  accountService,
		Passwords: accountService,
		Business: &business.Service{
			Profiles: businesses,
			Users:    users,
			Tokens:   sessions,
			Images:   uploader,
			Notifier: notifications,
		},
		Notifications: notifications,
		Statuses:      statuses,
		Authenticator: sessions,
		AuthLimiter:   authLimiter,
		OTPLimiter:    otpLimiter,
		HealthChecks:  checks,
		UploadTimeout: cfg.HTTP.UploadTimeout,
	}

	cleanup := func(ctx context.Context) error {
		var errs []error
		if err := mediaPool.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown media pool: %w", err))
		}
		if err := outbound.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown outbound pool: %w", err))
		}
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close redis: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	return components{HTTP: deps, Statuses: statuses, Sessions: sessions}, cleanup, nil
}
