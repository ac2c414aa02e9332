package auth

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	Redis *redis.Client
}

const (
	loginMaxAttempts      = 5
	loginAttemptTTL       = 10 * time.Minute
	loginBanTTL           = 1 * time.Hour
	twoFAMaxAttempts      = 5
	twoFAAttemptTTL       = 10 * time.Minute
	resetMaxAttempts      = 5
	resetAttemptTTL       = 15 * time.Minute
	registerMaxAttemptsIP = 10
	registerAttemptTTLIP  = 30 * time.Minute
)

func (r *RateLimiter) loginAttemptKey(ip string) string {
	return "login_attempts:" + ip
}

func (r *RateLimiter) loginBanKey(ip string) string {
	return "login_ban:" + ip
}

func (r *RateLimiter) twoFAKey(userID string) string {
	return "2fa_attempts:" + userID
}

func (r *RateLimiter) resetAttemptKey(email string) string {
	if email == "" {
		return ""
	}
	return "reset_attempts:" + strings.ToLower(email)
}

func (r *RateLimiter) registerAttemptKey(ip string) string {
	if ip == "" {
		return ""
	}
	return "register_attempts_ip:" + ip
}

func (r *RateLimiter) IsIPBanned(ctx context.Context, ip string) bool {
	exists, _ := r.Redis.Exists(ctx, r.loginBanKey(ip)).Result()
	return exists == 1
}

func (r *RateLimiter) RegisterLoginFailure(ctx context.Context, ip string) error {
	key := r.loginAttemptKey(ip)

	attempts, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return err
	}
	if attempts == 1 {
		r.Redis.Expire(ctx, key, loginAttemptTTL)
	}
	if attempts >= loginMaxAttempts {
		r.Redis.Set(ctx, r.loginBanKey(ip), "1", loginBanTTL)
		r.Redis.Expire(ctx, key, loginBanTTL)
	}
	return nil
}

func (r *RateLimiter) ResetLogin(ctx context.Context, ip string) {
	r.Redis.Del(ctx, r.loginAttemptKey(ip))
}

func (r *RateLimiter) Register2FAFailure(ctx context.Context, userID string) (bool, error) {
	key := r.twoFAKey(userID)
	attempts, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if attempts == 1 {
		r.Redis.Expire(ctx, key, twoFAAttemptTTL)
	}
	return attempts >= twoFAMaxAttempts, nil
}

func (r *RateLimiter) Reset2FA(ctx context.Context, userID string) {
	r.Redis.Del(ctx, r.twoFAKey(userID))
}

func (r *RateLimiter) RegisterResetAttempt(ctx context.Context, email string) (bool, error) {
	key := r.resetAttemptKey(email)
	if key == "" {
		return false, nil
	}
	attempts, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if attempts == 1 {
		r.Redis.Expire(ctx, key, resetAttemptTTL)
	}
	return attempts >= resetMaxAttempts, nil
}

func (r *RateLimiter) RegisterRegisterAttempt(ctx context.Context, ip string) (bool, error) {
	key := r.registerAttemptKey(ip)
	if key == "" {
		return false, nil
	}
	attempts, err := r.Redis.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if attempts == 1 {
		r.Redis.Expire(ctx, key, registerAttemptTTLIP)
	}
	return attempts >= registerMaxAttemptsIP, nil
}
