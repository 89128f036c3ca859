// Package memory is an in-process trading API used for local runs and tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"certdash/internal/api"
	"certdash/internal/core"
)

const (
	DemoConsumerEmail = "demo@certdash.local"
	DemoBusinessEmail = "producer@certdash.local"
	DemoPassword      = "demo"

	defaultUnitPrice = 12.5
	defaultTokenTTL  = 12 * time.Hour
)

type user struct {
	id         string
	email      string
	password   string
	name       string
	userType   core.UserType
	energyType core.EnergyType
}

// Backend implements api.Backend against in-memory state.
type Backend struct {
	mu           sync.Mutex
	secret       []byte
	now          func() time.Time
	tokenTTL     time.Duration
	unitPrice    float64
	users        map[string]*user
	byID         map[string]*user
	market       []core.Certificate
	owned        map[string][]core.Certificate
	consumptions map[string][]core.ConsumptionRecord
	transactions []core.TransactionRecord
}

var _ api.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithClock overrides the time source used for tokens and transactions.
func WithClock(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// WithSecret sets the HMAC key tokens are signed with.
func WithSecret(secret []byte) Option {
	return func(b *Backend) { b.secret = secret }
}

// WithUnitPrice sets the price of one certificate.
func WithUnitPrice(p float64) Option {
	return func(b *Backend) { b.unitPrice = p }
}

// New returns an empty backend with no accounts.
func New(opts ...Option) *Backend {
	b := &Backend{
		secret:       []byte(uuid.NewString()),
		now:          time.Now,
		tokenTTL:     defaultTokenTTL,
		unitPrice:    defaultUnitPrice,
		users:        make(map[string]*user),
		byID:         make(map[string]*user),
		owned:        make(map[string][]core.Certificate),
		consumptions: make(map[string][]core.ConsumptionRecord),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// NewSeeded returns a backend with a demo consumer, a demo producer and two
// years of activity.
func NewSeeded(opts ...Option) *Backend {
	b := New(opts...)
	b.seed()
	return b
}

func statusErr(op string, code int, msg string) error {
	return &api.StatusError{Op: op, StatusCode: code, Body: msg}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (b *Backend) addUser(reg core.Registration, energy core.EnergyType) *user {
	u := &user{
		id:         uuid.NewString(),
		email:      normalizeEmail(reg.Email),
		password:   reg.Password,
		name:       reg.Name,
		userType:   reg.UserType,
		energyType: energy,
	}
	b.users[u.email] = u
	b.byID[u.id] = u
	return u
}

func (b *Backend) issueToken(u *user) (string, error) {
	now := b.now()
	claims := jwt.MapClaims{
		"sub":      u.id,
		"email":    u.email,
		"name":     u.name,
		"userType": int(u.userType),
		"iat":      now.Unix(),
		"exp":      now.Add(b.tokenTTL).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
}

// authenticate must be called with b.mu held.
func (b *Backend) authenticate(op, token string) (*user, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("%s: %w", op, api.ErrMissingToken)
	}
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) {
		return b.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(b.now))
	if err != nil {
		return nil, statusErr(op, http.StatusUnauthorized, "invalid token")
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil {
		return nil, statusErr(op, http.StatusUnauthorized, "invalid token subject")
	}
	u, ok := b.byID[sub]
	if !ok {
		return nil, statusErr(op, http.StatusUnauthorized, "unknown user")
	}
	return u, nil
}

func (b *Backend) Login(_ context.Context, creds core.Credentials) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[normalizeEmail(creds.Email)]
	if !ok || u.password != creds.Password {
		return "", fmt.Errorf("%w: %w", api.ErrInvalidCredentials, statusErr("login", http.StatusUnauthorized, "wrong email or password"))
	}
	return b.issueToken(u)
}

func (b *Backend) SignUp(_ context.Context, reg core.Registration) error {
	if err := reg.Validate(); err != nil {
		return statusErr("signup", http.StatusBadRequest, err.Error())
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.users[normalizeEmail(reg.Email)]; exists {
		return statusErr("signup", http.StatusConflict, "email already registered")
	}
	b.addUser(reg, core.EnergySolar)
	return nil
}

func (b *Backend) OwnedCertificates(_ context.Context, token string) ([]core.Certificate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.authenticate("owned certificates", token)
	if err != nil {
		return nil, err
	}
	return append(make([]core.Certificate, 0, len(b.owned[u.id])), b.owned[u.id]...), nil
}

func (b *Backend) CertificatesFor(_ context.Context, token string, period core.Period) ([]core.Certificate, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.authenticate("certificates for period", token); err != nil {
		return nil, err
	}
	out := make([]core.Certificate, 0)
	for _, c := range b.market {
		if c.Period() == period {
			out = append(out, c)
		}
	}
	return out, nil
}

func (b *Backend) CreateCertificate(_ context.Context, token string, req core.CertificateRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.authenticate("create certificate", token)
	if err != nil {
		return err
	}
	if u.userType != core.UserBusiness {
		return statusErr("create certificate", http.StatusForbidden, "only business accounts can create certificates")
	}
	if err := req.Validate(); err != nil {
		return statusErr("create certificate", http.StatusBadRequest, err.Error())
	}
	b.market = append(b.market, b.mint(u, req.UsableMonth, req.UsableYear, req.RegulatoryAuthorityID, b.now()))
	return nil
}

func (b *Backend) mint(producer *user, month, year int, authority string, at time.Time) core.Certificate {
	return core.Certificate{
		TokenRef:              uuid.NewString(),
		EnergyCertificateID:   uuid.NewString(),
		OwnerID:               producer.id,
		ProducerID:            producer.id,
		EmissionDate:          at.UTC().Format(time.RFC3339),
		UsableMonth:           month,
		UsableYear:            year,
		RegulatoryAuthorityID: authority,
		EnergyTypeID:          int(producer.energyType),
	}
}

func (b *Backend) Quote(_ context.Context, token string, quantity int) (core.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.authenticate("quote", token); err != nil {
		return core.Quote{}, err
	}
	if quantity < 1 {
		return core.Quote{}, statusErr("quote", http.StatusBadRequest, core.ErrInvalidQuantity.Error())
	}
	return core.Quote{Quantity: quantity, Price: round2(float64(quantity) * b.unitPrice)}, nil
}

func (b *Backend) Buy(_ context.Context, token string, p core.Purchase) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.authenticate("buy", token)
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return statusErr("buy", http.StatusBadRequest, err.Error())
	}
	period := core.Period{Month: p.UsableMonth, Year: p.UsableYear}

	var picked []int
	for i, c := range b.market {
		if c.Period() == period && c.ProducerID != u.id {
			picked = append(picked, i)
			if len(picked) == p.Quantity {
				break
			}
		}
	}
	if len(picked) < p.Quantity {
		return statusErr("buy", http.StatusConflict, fmt.Sprintf("only %d certificates available", len(picked)))
	}

	now := b.now()
	taken := make(map[int]struct{}, len(picked))
	for _, i := range picked {
		taken[i] = struct{}{}
		c := b.market[i]
		b.transfer(c, u, b.unitPrice, now)
	}
	remaining := b.market[:0]
	for i, c := range b.market {
		if _, ok := taken[i]; !ok {
			remaining = append(remaining, c)
		}
	}
	b.market = remaining
	return nil
}

func (b *Backend) transfer(c core.Certificate, to *user, price float64, at time.Time) {
	b.transactions = append(b.transactions, core.TransactionRecord{
		FromUserID:      c.ProducerID,
		ToUserID:        to.id,
		TokenRef:        c.TokenRef,
		Price:           price,
		TransactionDate: at.UTC().Format(time.RFC3339),
		TransactionID:   uuid.NewString(),
	})
	c.OwnerID = to.id
	b.owned[to.id] = append(b.owned[to.id], c)
}

func (b *Backend) Consumptions(_ context.Context, token string, year int) ([]core.ConsumptionRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.authenticate("consumptions", token)
	if err != nil {
		return nil, err
	}
	out := make([]core.ConsumptionRecord, 0)
	for _, r := range b.consumptions[u.id] {
		if r.ConsumptionYear == year {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *Backend) Sold(_ context.Context, token string) ([]core.TransactionRecord, error) {
	return b.transactionsFor("sold", token, func(tx core.TransactionRecord, id string) bool {
		return tx.FromUserID == id
	})
}

func (b *Backend) Bought(_ context.Context, token string) ([]core.TransactionRecord, error) {
	return b.transactionsFor("bought", token, func(tx core.TransactionRecord, id string) bool {
		return tx.ToUserID == id
	})
}

func (b *Backend) transactionsFor(op, token string, match func(core.TransactionRecord, string) bool) ([]core.TransactionRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, err := b.authenticate(op, token)
	if err != nil {
		return nil, err
	}
	out := make([]core.TransactionRecord, 0)
	for _, tx := range b.transactions {
		if match(tx, u.id) {
			out = append(out, tx)
		}
	}
	return out, nil
}

// AddConsumption records consumption for the account registered under email.
func (b *Backend) AddConsumption(email string, recs ...core.ConsumptionRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	u, ok := b.users[normalizeEmail(email)]
	if !ok {
		return errors.New("unknown account " + email)
	}
	for _, r := range recs {
		r.UserID = u.id
		b.consumptions[u.id] = append(b.consumptions[u.id], r)
	}
	return nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
