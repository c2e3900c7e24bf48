package types

import (
	"time"
)

// Follow modes
const (
	FollowFirst = "first"
	FollowAll   = "all"
	FollowNone  = "none"
)

// Config holds monitor configuration
type Config struct {
	ConnectTimeout  time.Duration `yaml:"connect_timeout" json:"connect_timeout" validate:"gt=0"`
	ExchangeTimeout time.Duration `yaml:"exchange_timeout" json:"exchange_timeout" validate:"gt=0"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" json:"max_body_bytes" validate:"gt=0"`

	// Follow-up hardening
	MaxHops    int    `yaml:"max_hops" json:"max_hops" validate:"gte=0,lte=50"`
	MaxVisits  int    `yaml:"max_visits" json:"max_visits" validate:"gte=1,lte=1000"`
	FollowMode string `yaml:"follow_mode" json:"follow_mode" validate:"oneof=first all none"`

	TLSProfile    string `yaml:"tls_profile" json:"tls_profile" validate:"tlsprofile"`
	MaxRetries    int    `yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=10"`
	RespectRobots bool   `yaml:"respect_robots" json:"respect_robots"`

	// Optional persistence
	DataDir    string `yaml:"data_dir" json:"data_dir"`
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`

	Log LogConfig `yaml:"log" json:"log"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level      string `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format     string `yaml:"format" json:"format" validate:"omitempty,oneof=console json"`
	File       string `yaml:"file" json:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" json:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"gte=0"`
}

// Results contains batch statistics
type Results struct {
	URLs   int
	Visits int
	Errors int
}

// FollowItem is a URL waiting in the follow frontier
type FollowItem struct {
	URL       string
	Hop       int
	ParentURL string
}

// Visit is the outcome of one request/classify round for a single URL.
type Visit struct {
	URL        string    `json:"url"`
	Hop        int       `json:"hop"`
	ParentURL  string    `json:"parent_url,omitempty"`
	StatusCode int       `json:"status_code"`
	Reason     string    `json:"reason,omitempty"`
	Kind       Kind      `json:"kind"`
	Redirect   string    `json:"redirect,omitempty"`
	Referenced []string  `json:"referenced,omitempty"`
	FollowNote string    `json:"follow_note,omitempty"`
	Error      string    `json:"error,omitempty"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	CheckedAt  time.Time `json:"checked_at"`
}

// HasStatus reports whether a status line was parsed for the visit.
func (v Visit) HasStatus() bool {
	return v.Kind == KindOK || v.Kind == KindMissingRedirect
}

// FollowTargets returns the URLs this visit asks to visit next.
func (v Visit) FollowTargets() []string {
	if v.Redirect != "" {
		return []string{v.Redirect}
	}
	return v.Referenced
}
