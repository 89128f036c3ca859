package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"certdash/internal/api"
	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/session"
)

// ErrNotBusiness is returned when a consumer tries to create certificates.
var ErrNotBusiness = errors.New("only business accounts can create certificates")

// CertificateService runs certificate lookups and trades for a session.
type CertificateService struct {
	api       api.Backend
	dashboard *DashboardService
	activity  *ActivityRecorder
	now       func() time.Time
	logger    *log.Logger
}

func NewCertificateService(backend api.Backend, dashboard *DashboardService, activity *ActivityRecorder, logger *log.Logger) *CertificateService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if activity == nil {
		activity = NewActivityRecorder(nil, logger)
	}
	return &CertificateService{
		api:       backend,
		dashboard: dashboard,
		activity:  activity,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentCert),
	}
}

func (c *CertificateService) Owned(ctx context.Context, s *session.Session) ([]core.Certificate, error) {
	certs, err := c.api.OwnedCertificates(ctx, s.Token)
	if err != nil {
		return nil, fmt.Errorf("list owned certificates: %w", err)
	}
	return certs, nil
}

// Available lists certificates on offer for period.
func (c *CertificateService) Available(ctx context.Context, s *session.Session, period core.Period) ([]core.Certificate, error) {
	if err := period.Validate(); err != nil {
		return nil, err
	}
	certs, err := c.api.CertificatesFor(ctx, s.Token, period)
	if err != nil {
		return nil, fmt.Errorf("list certificates for %02d-%d: %w", period.Month, period.Year, err)
	}
	return certs, nil
}

func (c *CertificateService) Quote(ctx context.Context, s *session.Session, quantity int) (core.Quote, error) {
	if quantity < 1 {
		return core.Quote{}, core.ErrInvalidQuantity
	}
	q, err := c.api.Quote(ctx, s.Token, quantity)
	if err != nil {
		return core.Quote{}, fmt.Errorf("quote certificates: %w", err)
	}
	return q, nil
}

// Buy purchases certificates and drops the session's cached transactions so
// the dashboard reflects the trade.
func (c *CertificateService) Buy(ctx context.Context, s *session.Session, p core.Purchase) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := c.api.Buy(ctx, s.Token, p); err != nil {
		return fmt.Errorf("buy certificates: %w", err)
	}
	if c.dashboard != nil {
		c.dashboard.Invalidate(s)
	}

	c.logger.InfoContext(ctx, "Certificates bought",
		log.FieldQuantity, p.Quantity,
		log.FieldMonth, p.UsableMonth,
		log.FieldYear, p.UsableYear)
	c.activity.Record(ctx, core.ActivityPurchase, s, func(e *core.ActivityEvent) {
		e.Quantity = p.Quantity
		e.Month = p.UsableMonth
		e.Year = p.UsableYear
	})
	return nil
}

// Create mints a certificate. Only business accounts may call it.
func (c *CertificateService) Create(ctx context.Context, s *session.Session, req core.CertificateRequest) error {
	if !s.IsBusiness() {
		return ErrNotBusiness
	}
	if err := req.ValidateAt(c.now()); err != nil {
		return err
	}
	if err := c.api.CreateCertificate(ctx, s.Token, req); err != nil {
		return fmt.Errorf("create certificate: %w", err)
	}

	c.logger.InfoContext(ctx, "Certificate created",
		log.FieldMonth, req.UsableMonth,
		log.FieldYear, req.UsableYear,
		"authority", req.RegulatoryAuthorityID)
	c.activity.Record(ctx, core.ActivityCertCreated, s, func(e *core.ActivityEvent) {
		e.Quantity = 1
		e.Month = req.UsableMonth
		e.Year = req.UsableYear
	})
	return nil
}
