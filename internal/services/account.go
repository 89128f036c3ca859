package services

import (
	"context"
	"fmt"

	"certdash/internal/api"
	"certdash/internal/core"
	"certdash/internal/log"
	"certdash/internal/session"
)

// AccountService signs users up, in and out.
type AccountService struct {
	auth      api.Authenticator
	sessions  *session.Manager
	dashboard *DashboardService
	activity  *ActivityRecorder
	logger    *log.Logger
}

func NewAccountService(auth api.Authenticator, sessions *session.Manager, dashboard *DashboardService, activity *ActivityRecorder, logger *log.Logger) *AccountService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	if activity == nil {
		activity = NewActivityRecorder(nil, logger)
	}
	return &AccountService{
		auth:      auth,
		sessions:  sessions,
		dashboard: dashboard,
		activity:  activity,
		logger:    logger.WithComponent(log.ComponentSession),
	}
}

func (a *AccountService) Login(ctx context.Context, creds core.Credentials) (*session.Session, error) {
	s, err := a.sessions.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	a.activity.Record(ctx, core.ActivityLogin, s, nil)
	return s, nil
}

// Logout ends s and forgets its cached dashboard data.
func (a *AccountService) Logout(ctx context.Context, s *session.Session) error {
	if !s.IsAuthenticated() {
		return nil
	}
	if a.dashboard != nil {
		a.dashboard.Invalidate(s)
	}
	if err := a.sessions.Logout(ctx, s); err != nil {
		return err
	}
	a.activity.Record(ctx, core.ActivityLogout, s, nil)
	return nil
}

func (a *AccountService) SignUp(ctx context.Context, reg core.Registration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	if err := a.auth.SignUp(ctx, reg); err != nil {
		return fmt.Errorf("sign up: %w", err)
	}
	a.logger.InfoContext(ctx, "Account created", log.FieldUserType, reg.UserType.String())
	a.activity.Record(ctx, core.ActivitySignUp, nil, func(e *core.ActivityEvent) {
		e.Email = reg.Email
	})
	return nil
}
