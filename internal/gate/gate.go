package gate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	"github.com/tubita/tubita/internal/ratelimit"
	"github.com/tubita/tubita/internal/settings"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultMinPasswordLength = 4
	maxBcryptPasswordBytes   = 72
)

var (
	ErrWrongPassword    = errors.New("wrong password")
	ErrPasswordTooShort = errors.New("new password is too short")
	ErrPasswordTooLong  = errors.New("new password is too long")
	ErrThrottled        = errors.New("too many attempts, try again later")
)

// Verifier compares a candidate against the stored password value.
type Verifier interface {
	Verify(stored, candidate string) bool
}

// PlainVerifier is an exact, case-sensitive, untrimmed comparison.
type PlainVerifier struct{}

func (PlainVerifier) Verify(stored, candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(candidate)) == 1
}

type BcryptVerifier struct{}

func (BcryptVerifier) Verify(stored, candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(candidate)) == nil
}

func VerifierFor(policy string) Verifier {
	if policy == settings.PolicyBcrypt {
		return BcryptVerifier{}
	}
	return PlainVerifier{}
}

type SettingsStore interface {
	Settings() settings.Settings
	UpdateSettings(ctx context.Context, fn func(settings.Settings) (settings.Settings, error)) (settings.Settings, error)
}

// Gate is the single password check behind unlocking a session and entering
// admin mode.
type Gate struct {
	store     SettingsStore
	minLength int
	policy    string
	throttle  *ratelimit.Limiter
}

func New(store SettingsStore, minLength int) *Gate {
	if minLength <= 0 {
		minLength = DefaultMinPasswordLength
	}
	return &Gate{store: store, minLength: minLength, policy: settings.PolicyPlain}
}

// SetPolicy selects how ChangePassword stores new passwords. Existing
// passwords keep verifying under the policy they were stored with.
func (g *Gate) SetPolicy(policy string) {
	g.policy = policy
}

func (g *Gate) SetThrottle(l *ratelimit.Limiter) {
	g.throttle = l
}

func (g *Gate) Verify(candidate string) bool {
	s := g.store.Settings()
	return VerifierFor(s.Policy()).Verify(s.AdminPassword, candidate)
}

// Attempt records a password attempt for key. Without a throttle every
// attempt is allowed.
func (g *Gate) Attempt(key string) error {
	if g.throttle == nil || g.throttle.Allow(key) {
		return nil
	}
	slog.Warn("gate: attempts throttled", "client", key)
	return ErrThrottled
}

// RetryAfter is the number of seconds a throttled client should wait.
func (g *Gate) RetryAfter() int {
	if g.throttle == nil {
		return 0
	}
	return g.throttle.RetryAfter()
}

func (g *Gate) ChangePassword(ctx context.Context, current, next string) error {
	if !g.Verify(current) {
		return ErrWrongPassword
	}
	if utf8.RuneCountInString(next) < g.minLength {
		return fmt.Errorf("%w: at least %d characters", ErrPasswordTooShort, g.minLength)
	}

	stored := next
	if g.policy == settings.PolicyBcrypt {
		if len(next) > maxBcryptPasswordBytes {
			return fmt.Errorf("%w: at most %d bytes", ErrPasswordTooLong, maxBcryptPasswordBytes)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		stored = string(hash)
	}

	_, err := g.store.UpdateSettings(ctx, func(s settings.Settings) (settings.Settings, error) {
		s.AdminPassword = stored
		s.PasswordPolicy = g.policy
		return s, nil
	})
	if err != nil {
		return fmt.Errorf("save password: %w", err)
	}
	slog.Info("gate: admin password changed", "policy", g.policy)
	return nil
}
