package core

import "time"

// ActivityKind names a user action worth recording outside the dashboard.
type ActivityKind string

const (
	ActivityLogin       ActivityKind = "login"
	ActivityLogout      ActivityKind = "logout"
	ActivitySignUp      ActivityKind = "signup"
	ActivityPurchase    ActivityKind = "purchase"
	ActivityCertCreated ActivityKind = "certificate_created"
)

// ActivityEvent describes one user action.
type ActivityEvent struct {
	ID         string       `json:"id"`
	Kind       ActivityKind `json:"kind"`
	UserID     string       `json:"userId,omitempty"`
	Email      string       `json:"email,omitempty"`
	Quantity   int          `json:"quantity,omitempty"`
	Price      float64      `json:"price,omitempty"`
	Month      int          `json:"month,omitempty"`
	Year       int          `json:"year,omitempty"`
	OccurredAt time.Time    `json:"occurredAt"`
}
