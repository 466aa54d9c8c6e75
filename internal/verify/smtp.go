package verify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"

	"mailwarden/internal/store"
)

// smtpHandshake dials Gmail's SMTPS endpoint and runs a full AUTH exchange.
// A nil return means the credentials are currently usable.
func (s *Service) smtpHandshake(ctx context.Context, account store.Account) error {
	auth, err := smtpAuth(account, s.cfg.Host)
	if err != nil {
		return err
	}

	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprintf("%d", s.cfg.Port))
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: s.cfg.DialTimeout},
		Config:    &tls.Config{ServerName: s.cfg.Host},
	}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()

	if err := c.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	return c.Quit()
}

func smtpAuth(account store.Account, host string) (smtp.Auth, error) {
	switch account.AuthType {
	case store.AuthPassword:
		if account.Credential == "" {
			return nil, errors.New("account has no app password")
		}
		return smtp.PlainAuth("", account.Email, account.Credential, host), nil
	case store.AuthOAuth:
		if account.Credential == "" {
			return nil, errors.New("account has no access token")
		}
		return xoauth2Auth{user: account.Email, token: account.Credential}, nil
	default:
		return nil, fmt.Errorf("unknown auth type %q", account.AuthType)
	}
}

// xoauth2Auth implements the SASL XOAUTH2 mechanism Gmail expects for OAuth
// accounts. net/smtp only ships PLAIN and CRAM-MD5.
type xoauth2Auth struct {
	user  string
	token string
}

func (a xoauth2Auth) Start(_ *smtp.ServerInfo) (string, []byte, error) {
	resp := []byte("user=" + a.user + "\x01auth=Bearer " + a.token + "\x01\x01")
	return "XOAUTH2", resp, nil
}

func (a xoauth2Auth) Next(fromServer []byte, more bool) ([]byte, error) {
	if more {
		// The server sent an error challenge (base64 JSON). Reply with an
		// empty line so it finishes with a definitive SMTP error code.
		return []byte{}, nil
	}
	return nil, nil
}
