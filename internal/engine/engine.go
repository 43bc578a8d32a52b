package engine

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hamasa/internal/config"
	"hamasa/internal/domain"
	"hamasa/internal/engine/auth"
	"hamasa/internal/ingest"
	"hamasa/internal/metrics"
	"hamasa/internal/otp"
	"hamasa/internal/progress"
	"hamasa/internal/repo"
	"hamasa/internal/sms"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Progress progress.Writer
	Tokens   auth.Tokens
	Hasher   auth.Hasher
	OTP      otp.Service
	SMS      sms.Sender
	Fetcher  ingest.Fetcher
	Metrics  *metrics.Metrics
	Log      *zap.Logger
	Config   *config.Config
	Now      func() time.Time
}

// New wires an engine from config. Callers may replace any collaborator afterwards.
func New(db *sql.DB, cfg *config.Config, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	var sender sms.Sender = sms.LogSender{Log: log}
	if cfg.SMS.Provider == "beem" {
		sender = sms.NewBeemClient(cfg.SMS.BaseURL, cfg.SMS.APIKey, cfg.SMS.SecretKey, cfg.SMS.SourceAddr, cfg.SMS.Timeout, log)
	}
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Progress: progress.Writer{DB: db},
		Tokens: auth.Tokens{
			Secret:     cfg.Auth.JWTSecret,
			AccessTTL:  cfg.Auth.AccessTokenTTL,
			RefreshTTL: cfg.Auth.RefreshTokenTTL,
			ServiceTTL: cfg.Auth.ServiceTokenTTL,
		},
		Hasher: auth.BcryptHasher{Cost: cfg.Auth.BcryptCost},
		OTP: otp.Service{
			Store:  otp.NewMemoryStore(cfg.OTP.TTL),
			TTL:    cfg.OTP.TTL,
			Length: cfg.OTP.Length,
		},
		SMS:     sender,
		Fetcher: ingest.NewHTTPFetcher(cfg.Import.Timeout, cfg.Import.MaxBytes),
		Log:     log,
		Config:  cfg,
		Now:     time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func newID() string { return uuid.NewString() }

// ErrConcurrentUpdate reports a lost race on a conditional status update.
var ErrConcurrentUpdate = errors.New("status was changed by another request, retry")

// ValidationError rejects input that is well-formed but unacceptable.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string { return e.Message }

func invalid(field, format string, args ...any) error {
	return ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransitionError carries the rejected move and the legal alternatives.
type InvalidTransitionError struct {
	Entity  string
	From    string
	To      string
	Allowed []string
}

func (e InvalidTransitionError) Error() string {
	allowed := "none"
	if len(e.Allowed) > 0 {
		allowed = strings.Join(e.Allowed, ", ")
	}
	return fmt.Sprintf("Invalid status transition: %s → %s. Allowed transitions: %s", e.From, e.To, allowed)
}

var (
	allRoles = domain.RolesFor(domain.UserTypeStaff)

	// ProjectStatusRoles may move projects and reports through their machines.
	ProjectStatusRoles = []domain.Role{domain.RoleSuperAdmin, domain.RoleOrgAdmin, domain.RoleReviewer}
	ReportStatusRoles  = ProjectStatusRoles

	projectWriteRoles = []domain.Role{domain.RoleSuperAdmin, domain.RoleOrgAdmin}
	reportWriteRoles  = []domain.Role{domain.RoleSuperAdmin, domain.RoleOrgAdmin, domain.RoleReviewer, domain.RoleDataClerk}
	reportDropRoles   = []domain.Role{domain.RoleSuperAdmin, domain.RoleOrgAdmin}
	catalogWriteRoles = []domain.Role{domain.RoleSuperAdmin, domain.RoleOrgAdmin, domain.RoleReviewer}
	mlRoles           = []domain.Role{domain.RoleSuperAdmin, domain.RoleReviewer, domain.RoleMLService}
	dashboardRoles    = []domain.Role{domain.RoleSuperAdmin, domain.RoleReviewer, domain.RoleDataClerk}
	clientAdminRoles  = []domain.Role{domain.RoleSuperAdmin, domain.RoleOrgAdmin}
	clientUserRoles   = []domain.Role{domain.RoleSuperAdmin, domain.RoleOrgAdmin, domain.RoleOrgUser, domain.RoleReviewer, domain.RoleDataClerk}
)

// Paged is one page of a listing.
type Paged[T any] struct {
	Count    int  `json:"count"`
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Next     *int `json:"next"`
	Previous *int `json:"previous"`
	Results  []T  `json:"results"`
}

func paged[T any](items []T, total int, p repo.Page) Paged[T] {
	p = p.Normalize()
	if items == nil {
		items = []T{}
	}
	out := Paged[T]{Count: total, Page: p.Number, PageSize: p.Size, Results: items}
	if p.Number*p.Size < total {
		n := p.Number + 1
		out.Next = &n
	}
	if p.Number > 1 {
		prev := p.Number - 1
		out.Previous = &prev
	}
	return out
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return invalid(field, "%s is required", field)
	}
	return nil
}

// requireAll takes field/value pairs and reports the first empty value.
func requireAll(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if err := required(pairs[i], pairs[i+1]); err != nil {
			return err
		}
	}
	return nil
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"}

// normalizeDate accepts the usual timestamp spellings and returns RFC3339 UTC.
func normalizeDate(field, v string) (string, error) {
	v = strings.TrimSpace(v)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC().Format(time.RFC3339), nil
		}
	}
	return "", invalid(field, "%s must be a date or RFC 3339 timestamp", field)
}
