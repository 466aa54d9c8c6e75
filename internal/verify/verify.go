// Package verify checks Gmail account health over SMTP.
//
// A verification is a full connect + AUTH handshake against Gmail's SMTPS
// endpoint, using either an app password (PLAIN) or an OAuth2 access token
// (XOAUTH2). The verifier owns the side effects of a check: it updates the
// account's status and last-check time in the store and appends a
// verification activity entry. Callers only consume the Result.
package verify

import (
	"context"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"mailwarden/internal/activity"
	"mailwarden/internal/store"
	logx "mailwarden/pkg/logx"
)

// Result is the outcome of one account verification.
type Result struct {
	IsValid bool
	Status  store.AccountStatus
	Message string
}

// Verifier is the SMTP health collaborator consumed by the task executor.
type Verifier interface {
	Verify(ctx context.Context, account store.Account) (Result, error)
}

// Config configures the Gmail SMTP verifier.
type Config struct {
	Host        string        // default smtp.gmail.com
	Port        int           // default 465 (SMTPS)
	DialTimeout time.Duration // default 15s
	// RatePerMin throttles outbound verification attempts so a bulk verify
	// cannot trip Gmail's rate limits. 0 means default (10/min).
	RatePerMin int
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Host) == "" {
		c.Host = "smtp.gmail.com"
	}
	if c.Port <= 0 {
		c.Port = 465
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 15 * time.Second
	}
	if c.RatePerMin <= 0 {
		c.RatePerMin = 10
	}
	return c
}

// Service is the production Verifier.
type Service struct {
	cfg      Config
	accounts store.AccountStore
	sink     activity.Sink
	log      logx.Logger
	limiter  *rate.Limiter

	// handshake is swappable for tests.
	handshake func(ctx context.Context, account store.Account) error
}

func New(cfg Config, accounts store.AccountStore, sink activity.Sink, log logx.Logger) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:      cfg,
		accounts: accounts,
		sink:     sink,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(float64(cfg.RatePerMin)/60.0), 1),
	}
	s.handshake = s.smtpHandshake
	return s
}

// Verify runs one SMTP health check and records its outcome.
//
// Auth/protocol failures are not errors: they come back as an invalid
// Result. The returned error is reserved for the caller's own context being
// canceled.
func (s *Service) Verify(ctx context.Context, account store.Account) (Result, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return Result{}, err
	}

	now := time.Now()
	err := s.handshake(ctx, account)
	if err == nil {
		s.recordOutcome(ctx, account, now, Result{
			IsValid: true,
			Status:  store.AccountActive,
			Message: "SMTP verification successful",
		}, nil)
		return Result{IsValid: true, Status: store.AccountActive, Message: "SMTP verification successful"}, nil
	}
	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	res := classify(err)
	s.recordOutcome(ctx, account, now, res, err)
	return res, nil
}

// classify maps an SMTP failure onto an account status. Rate-limit and quota
// responses are transient, so they degrade to warning instead of error.
func classify(err error) Result {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "quota") || strings.Contains(msg, "rate") {
		return Result{Status: store.AccountWarning, Message: "Rate limit or quota exceeded"}
	}
	return Result{Status: store.AccountError, Message: "Authentication failed"}
}

func (s *Service) recordOutcome(ctx context.Context, account store.Account, at time.Time, res Result, cause error) {
	if _, ok := s.accounts.UpdateAccount(account.ID, func(a *store.Account) {
		a.Status = res.Status
		a.LastCheck = at
	}); !ok {
		s.log.Warn("account vanished during verification", logx.String("account", account.ID))
	}

	entry := activity.Entry{
		OwnerID:   account.OwnerID,
		AccountID: account.ID,
		Type:      "verification",
		Status:    activity.StatusSuccess,
		Message:   res.Message,
		Details:   map[string]any{"verified": res.IsValid},
	}
	if !res.IsValid {
		entry.Status = activity.StatusError
		if cause != nil {
			entry.Details["error"] = cause.Error()
		}
	}
	if err := s.sink.Append(ctx, entry); err != nil {
		s.log.Warn("activity append failed", logx.Err(err))
	}

	if cause != nil {
		s.log.Debug("verification failed",
			logx.String("account", account.Email),
			logx.String("status", string(res.Status)),
			logx.Err(cause))
	}
}

// OwnerSummary aggregates a batch verification across one owner's accounts.
type OwnerSummary struct {
	Total   int             `json:"total"`
	Valid   int             `json:"valid"`
	Results []AccountResult `json:"results"`
}

type AccountResult struct {
	AccountID string              `json:"account_id"`
	Email     string              `json:"email"`
	Status    store.AccountStatus `json:"status"`
	Message   string              `json:"message"`
}

// VerifyOwner checks every account the owner currently has, sequentially.
// One account failing never stops the rest.
func (s *Service) VerifyOwner(ctx context.Context, ownerID string) (OwnerSummary, error) {
	accounts := s.accounts.AccountsByOwner(ownerID)
	sum := OwnerSummary{Total: len(accounts)}
	for _, a := range accounts {
		res, err := s.Verify(ctx, a)
		if err != nil {
			return sum, err
		}
		if res.IsValid {
			sum.Valid++
		}
		sum.Results = append(sum.Results, AccountResult{
			AccountID: a.ID,
			Email:     a.Email,
			Status:    res.Status,
			Message:   res.Message,
		})
	}
	return sum, nil
}
