package database

import (
	"net"
	"net/url"

	"github.com/evelynmon/wabot/core/config"
)

// DSN renders the connection URL understood by both lib/pq and golang-migrate.
func DSN(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Host, cfg.Port),
		Path:   "/" + cfg.Name,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			u.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			u.User = url.User(cfg.User)
		}
	}
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Redacted returns the DSN with the password masked, for logs.
func Redacted(cfg config.DatabaseConfig) string {
	u, err := url.Parse(DSN(cfg))
	if err != nil {
		return ""
	}
	return u.Redacted()
}
