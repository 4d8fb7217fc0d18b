package billing

import (
	"context"
	"errors"
)

// ErrNoCustomer is returned when no live customer exists for a lookup.
var ErrNoCustomer = errors.New("billing customer not found")

// Subscription statuses consumed by the entitlement decision. Narrowed from
// the provider's full status set; anything else is treated as not entitling.
const (
	StatusTrialing = "trialing"
	StatusActive   = "active"
)

// Customer is the slice of the provider's customer object this system
// consumes. TrialUsed reflects the trial_used metadata flag; absence means
// not yet used.
type Customer struct {
	ID        string
	Email     string
	Deleted   bool
	TrialUsed bool
}

// Subscription is the slice of the provider's subscription object consumed
// by intent discovery and entitlement resolution.
type Subscription struct {
	ID                string
	Status            string
	TrialEnd          int64
	CancelAtPeriodEnd bool
}

// API is the billing-authority boundary. Implemented by Client against
// Stripe; tests substitute fakes. Mutating calls take an idempotency scope
// derived from the redeemed nonce so client retries never duplicate side
// effects.
type API interface {
	// FindCustomerByEmail searches for an exact email match, returning
	// ErrNoCustomer when none exists.
	FindCustomerByEmail(ctx context.Context, email string) (*Customer, error)
	// GetCustomer loads a customer by id, returning ErrNoCustomer when the
	// record is missing or deleted.
	GetCustomer(ctx context.Context, id string) (*Customer, error)
	// CreateCustomer creates a customer tagged with product/origin metadata.
	CreateCustomer(ctx context.Context, email string) (*Customer, error)
	// ListSubscriptions returns the customer's subscriptions in any status.
	ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error)
	// CreateTrialSubscription starts a trial that auto-cancels at period end
	// when no payment method was added.
	CreateTrialSubscription(ctx context.Context, customerID, idemScope string) (*Subscription, error)
	// MarkTrialUsed sets the customer's trial_used metadata flag.
	MarkTrialUsed(ctx context.Context, customerID, idemScope string) error
	// CreateCheckoutSession returns a hosted checkout URL for the customer.
	CreateCheckoutSession(ctx context.Context, customerID, idemScope string) (string, error)
	// CreatePortalSession returns a hosted billing portal URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)
}
