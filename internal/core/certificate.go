package core

import (
	"errors"
	"net/mail"
	"strings"
	"time"
)

// MinCertificateYear is the first year certificates were issued.
const MinCertificateYear = 2023

// UserType is the account kind sent on sign-up.
type UserType int

const (
	UserConsumer UserType = 1
	UserBusiness UserType = 2
)

func (u UserType) String() string {
	if u == UserBusiness {
		return "business"
	}
	return "consumer"
}

type (
	// Certificate is an energy certificate owned by, or offered to, a user.
	Certificate struct {
		TokenRef              string `json:"tokenRef"`
		EnergyCertificateID   string `json:"energyCertificateId,omitempty"`
		OwnerID               string `json:"ownerId"`
		ProducerID            string `json:"producerId"`
		EmissionDate          string `json:"emissionDate"`
		UsableMonth           int    `json:"usableMonth"`
		UsableYear            int    `json:"usableYear"`
		RegulatoryAuthorityID string `json:"regulatoryAuthorityID"`
		EnergyTypeID          int    `json:"energyTypeId,omitempty"`
	}

	// Period identifies a usable month for certificates.
	Period struct {
		Month int
		Year  int
	}

	// CertificateRequest is the payload a business sends to mint a certificate.
	CertificateRequest struct {
		UsableMonth           int    `json:"usableMonth"`
		UsableYear            int    `json:"usableYear"`
		RegulatoryAuthorityID string `json:"regulatoryAuthorityID"`
	}

	// Purchase buys a quantity of certificates usable in a given month.
	Purchase struct {
		Quantity    int `json:"quantity"`
		UsableMonth int `json:"usableMonth"`
		UsableYear  int `json:"usableYear"`
	}

	// Quote is the price the platform asks for a quantity of certificates.
	Quote struct {
		Quantity int     `json:"quantity"`
		Price    float64 `json:"price"`
	}

	Credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	// Registration is the sign-up payload for POST /user/create.
	Registration struct {
		Email      string   `json:"email"`
		Password   string   `json:"password"`
		Name       string   `json:"name"`
		Address    string   `json:"address"`
		City       string   `json:"city"`
		PostalCode string   `json:"postalCode"`
		UserType   UserType `json:"userType"`
	}
)

var (
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrEmptyAuthority    = errors.New("empty regulatory authority")
	ErrInvalidEmail      = errors.New("invalid email")
	ErrEmptyPassword     = errors.New("empty password")
	ErrEmptyName         = errors.New("empty name")
	ErrInvalidUserType   = errors.New("invalid user type")
	ErrMissingAddress    = errors.New("missing address")
	ErrCertificateFuture = errors.New("certificate period too far in the future")
)

func (p Period) Validate() error {
	if p.Month < 1 || p.Month > 12 {
		return ErrInvalidMonth
	}
	if p.Year < MinCertificateYear || p.Year > 9999 {
		return ErrInvalidYear
	}
	return nil
}

// DefaultPeriod is the lookup form's initial selection.
func DefaultPeriod() Period {
	return Period{Month: 12, Year: 2024}
}

// Period returns the usable month of the certificate.
func (c Certificate) Period() Period {
	return Period{Month: c.UsableMonth, Year: c.UsableYear}
}

func (r CertificateRequest) Validate() error {
	if err := (Period{Month: r.UsableMonth, Year: r.UsableYear}).Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.RegulatoryAuthorityID) == "" {
		return ErrEmptyAuthority
	}
	return nil
}

// ValidateAt also rejects periods more than one year after now.
func (r CertificateRequest) ValidateAt(now time.Time) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.UsableYear > now.Year()+1 {
		return ErrCertificateFuture
	}
	return nil
}

func (p Purchase) Validate() error {
	if p.Quantity < 1 {
		return ErrInvalidQuantity
	}
	return (Period{Month: p.UsableMonth, Year: p.UsableYear}).Validate()
}

func (c Credentials) Validate() error {
	if _, err := mail.ParseAddress(strings.TrimSpace(c.Email)); err != nil {
		return ErrInvalidEmail
	}
	if c.Password == "" {
		return ErrEmptyPassword
	}
	return nil
}

func (r Registration) Validate() error {
	if err := (Credentials{Email: r.Email, Password: r.Password}).Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(r.Address) == "" || strings.TrimSpace(r.City) == "" || strings.TrimSpace(r.PostalCode) == "" {
		return ErrMissingAddress
	}
	if r.UserType != UserConsumer && r.UserType != UserBusiness {
		return ErrInvalidUserType
	}
	return nil
}
