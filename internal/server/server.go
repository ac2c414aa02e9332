package server

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"authgate/internal/auth"
	"authgate/internal/config"
	"authgate/internal/email"
	"authgate/internal/hydra"
	"authgate/internal/oauth"
)

// Storage surfaces the handlers depend on. *auth.UserRepository and
// friends satisfy these; tests substitute in-memory fakes.
type UserStore interface {
	Create(ctx context.Context, email string, passwordHash *string) (*auth.User, error)
	FindByEmail(ctx context.Context, email string) (*auth.User, error)
	FindByID(ctx context.Context, id string) (*auth.User, error)
	UpdatePassword(ctx context.Context, userID, hashed string) error
}

type TwoFactorStore interface {
	Get(ctx context.Context, userID string) (*auth.TwoFactorSecret, error)
	SavePending(ctx context.Context, userID string, secretEncrypted []byte) error
	Enable(ctx context.Context, userID string) error
	Delete(ctx context.Context, userID string) error
}

type ResetTokenStore interface {
	Create(ctx context.Context, userID, tokenHash string, expiresAt time.Time) (*auth.PasswordResetToken, error)
	FindByHash(ctx context.Context, tokenHash string) (*auth.PasswordResetToken, error)
	MarkUsed(ctx context.Context, id string) (bool, error)
}

type LoginThrottle interface {
	IsIPBanned(ctx context.Context, ip string) bool
	RegisterLoginFailure(ctx context.Context, ip string) error
	ResetLogin(ctx context.Context, ip string)
	Register2FAFailure(ctx context.Context, userID string) (bool, error)
	Reset2FA(ctx context.Context, userID string)
	RegisterResetAttempt(ctx context.Context, email string) (bool, error)
	RegisterRegisterAttempt(ctx context.Context, ip string) (bool, error)
}

type Server struct {
	Users       UserStore
	TwoFactor   TwoFactorStore
	ResetTokens ResetTokenStore
	Verifier    *auth.Verifier
	Resolver    *auth.Resolver
	TOTP        *auth.TOTPService
	Hasher      auth.PasswordHasher
	RateLimiter LoginThrottle
	Hydra       *hydra.Client
	Providers   *oauth.Registry
	States      *oauth.StateCodec
	Mailer      *email.Sender
	Config      config.Config

	trustedProxies []net.IPNet
}

func NewServer(
	cfg config.Config,
	users *auth.UserRepository,
	twoFactor *auth.TwoFactorRepository,
	resetTokens *auth.ResetTokenRepository,
	rl *auth.RateLimiter,
	mailer *email.Sender,
	totp *auth.TOTPService,
	hasher auth.PasswordHasher,
	hydraClient *hydra.Client,
	providers *oauth.Registry,
	states *oauth.StateCodec,
) *Server {
	return &Server{
		Users:          users,
		TwoFactor:      twoFactor,
		ResetTokens:    resetTokens,
		Verifier:       &auth.Verifier{Users: users, Hasher: hasher},
		Resolver:       &auth.Resolver{Store: users},
		TOTP:           totp,
		Hasher:         hasher,
		RateLimiter:    rl,
		Hydra:          hydraClient,
		Providers:      providers,
		States:         states,
		Mailer:         mailer,
		Config:         cfg,
		trustedProxies: parseProxyCIDRs(cfg.TrustedProxies),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	formatter := &middleware.DefaultLogFormatter{
		Logger:  log.New(log.Writer(), "", log.Flags()),
		NoColor: true,
	}
	r.Use(middleware.RequestLogger(formatter))
	r.Use(middleware.Recoverer)
	r.Use(secureHeaders)

	r.Get("/api/health", s.handleHealth)

	r.Post("/api/login", s.handleLogin)
	r.Post("/api/consent", s.handleConsent)
	r.Post("/api/logout", s.handleLogout)

	r.Post("/api/register", s.handleRegister)
	r.Post("/api/password/reset-request", s.handlePasswordResetRequest)
	r.Post("/api/password/reset", s.handlePasswordReset)

	r.Post("/api/2fa/setup", s.handleTwoFactorSetup)
	r.Post("/api/2fa/verify", s.handleTwoFactorVerify)
	r.Post("/api/2fa/disable", s.handleTwoFactorDisable)

	r.Get("/api/oauth/{provider}", s.handleOAuthStart)
	r.Get("/api/oauth/{provider}/callback", s.handleOAuthCallback)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
