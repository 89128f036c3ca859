package api

import (
	"context"

	"certdash/internal/core"
)

// Authenticator exchanges credentials for a bearer token and creates accounts.
type Authenticator interface {
	Login(ctx context.Context, creds core.Credentials) (string, error)
	SignUp(ctx context.Context, reg core.Registration) error
}

// CertificateReader lists certificates visible to the token holder.
type CertificateReader interface {
	OwnedCertificates(ctx context.Context, token string) ([]core.Certificate, error)
	CertificatesFor(ctx context.Context, token string, period core.Period) ([]core.Certificate, error)
}

// CertificateTrader prices, buys and mints certificates.
type CertificateTrader interface {
	Quote(ctx context.Context, token string, quantity int) (core.Quote, error)
	Buy(ctx context.Context, token string, purchase core.Purchase) error
	CreateCertificate(ctx context.Context, token string, req core.CertificateRequest) error
}

// ActivityReader returns the raw records the dashboard aggregates.
type ActivityReader interface {
	Consumptions(ctx context.Context, token string, year int) ([]core.ConsumptionRecord, error)
	Sold(ctx context.Context, token string) ([]core.TransactionRecord, error)
	Bought(ctx context.Context, token string) ([]core.TransactionRecord, error)
}

// Backend is the full trading API surface.
type Backend interface {
	Authenticator
	CertificateReader
	CertificateTrader
	ActivityReader
}
