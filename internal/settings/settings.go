package settings

import (
	"errors"
	"fmt"
)

const (
	PolicyPlain  = "plain"
	PolicyBcrypt = "bcrypt"

	DefaultTimeLimitMinutes    = 30
	DefaultWarningLeadMinutes  = 5
	DefaultMaxVideosPerSession = 3
	DefaultAdminPassword       = "admin123"

	// MaxTimeLimitMinutes keeps the budget within a single day.
	MaxTimeLimitMinutes    = 24 * 60
	MaxVideosPerSessionCap = 100
)

var ErrInvalid = errors.New("invalid settings")

// Settings is the process-wide, persisted configuration of the player.
// AdminPassword holds the plaintext password or, under PolicyBcrypt, its hash.
type Settings struct {
	TimeLimitMinutes    int    `json:"timeLimitMinutes"`
	WarningLeadMinutes  int    `json:"warningLeadMinutes"`
	MaxVideosPerSession int    `json:"maxVideosPerSession"`
	AdminPassword       string `json:"adminPassword"`
	PasswordPolicy      string `json:"passwordPolicy,omitempty"`
}

func Defaults() Settings {
	return Settings{
		TimeLimitMinutes:    DefaultTimeLimitMinutes,
		WarningLeadMinutes:  DefaultWarningLeadMinutes,
		MaxVideosPerSession: DefaultMaxVideosPerSession,
		AdminPassword:       DefaultAdminPassword,
		PasswordPolicy:      PolicyPlain,
	}
}

func (s Settings) Validate() error {
	if s.TimeLimitMinutes <= 0 || s.TimeLimitMinutes > MaxTimeLimitMinutes {
		return fmt.Errorf("%w: time limit must be between 1 and %d minutes", ErrInvalid, MaxTimeLimitMinutes)
	}
	if s.WarningLeadMinutes < 0 || s.WarningLeadMinutes > s.TimeLimitMinutes {
		return fmt.Errorf("%w: warning lead must be between 0 and the time limit", ErrInvalid)
	}
	if s.MaxVideosPerSession <= 0 || s.MaxVideosPerSession > MaxVideosPerSessionCap {
		return fmt.Errorf("%w: max videos per session must be between 1 and %d", ErrInvalid, MaxVideosPerSessionCap)
	}
	if s.AdminPassword == "" {
		return fmt.Errorf("%w: admin password is required", ErrInvalid)
	}
	switch s.Policy() {
	case PolicyPlain, PolicyBcrypt:
	default:
		return fmt.Errorf("%w: unknown password policy %q", ErrInvalid, s.PasswordPolicy)
	}
	return nil
}

// Policy returns the password policy, treating an unset value as plain.
func (s Settings) Policy() string {
	if s.PasswordPolicy == "" {
		return PolicyPlain
	}
	return s.PasswordPolicy
}

func (s Settings) LimitSeconds() int {
	return s.TimeLimitMinutes * 60
}

// WarningThresholdSeconds is the watched time at which the warning fires.
func (s Settings) WarningThresholdSeconds() int {
	return (s.TimeLimitMinutes - s.WarningLeadMinutes) * 60
}

// Redacted returns a copy that is safe to hand to the admin UI.
func (s Settings) Redacted() Settings {
	s.AdminPassword = ""
	return s
}

// Update is a partial change to the limits. Nil fields are left untouched.
type Update struct {
	TimeLimitMinutes    *int `json:"timeLimitMinutes"`
	WarningLeadMinutes  *int `json:"warningLeadMinutes"`
	MaxVideosPerSession *int `json:"maxVideosPerSession"`
}

// Apply returns the updated settings, or ErrInvalid if the result breaks a
// range constraint.
func (u Update) Apply(s Settings) (Settings, error) {
	if u.TimeLimitMinutes != nil {
		s.TimeLimitMinutes = *u.TimeLimitMinutes
	}
	if u.WarningLeadMinutes != nil {
		s.WarningLeadMinutes = *u.WarningLeadMinutes
	}
	if u.MaxVideosPerSession != nil {
		s.MaxVideosPerSession = *u.MaxVideosPerSession
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}
