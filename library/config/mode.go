package config

import (
	"net/url"

	"github.com/Astemirdum/library-admin/library/internal/errs"
	"github.com/pkg/errors"
)

type Mode string

const (
	ModeMock Mode = "mock"
	ModeReal Mode = "real"
)

const minKeyLen = 20

// Mode decides once at startup which backend serves queries. A half
// configured or malformed real backend is a configuration error.
func (c *Config) Mode() (Mode, error) {
	b := c.Backend
	if b.MockMode {
		return ModeMock, nil
	}
	if unset(b.URL) && unset(b.Key) {
		return ModeMock, nil
	}
	if unset(b.URL) {
		return "", errors.Wrap(errs.ErrConfig, "BACKEND_URL is empty")
	}
	if unset(b.Key) {
		return "", errors.Wrap(errs.ErrConfig, "BACKEND_KEY is empty")
	}
	u, err := url.Parse(b.URL)
	if err != nil {
		return "", errors.Wrap(errs.ErrConfig, "BACKEND_URL: "+err.Error())
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return "", errors.Wrapf(errs.ErrConfig, "BACKEND_URL: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", errors.Wrap(errs.ErrConfig, "BACKEND_URL: missing host")
	}
	if len(b.Key) < minKeyLen {
		return "", errors.Wrapf(errs.ErrConfig, "BACKEND_KEY: shorter than %d characters", minKeyLen)
	}
	return ModeReal, nil
}

func unset(v string) bool {
	return v == "" || v == "undefined"
}
