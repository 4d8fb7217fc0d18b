package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/subscription"
)

const (
	metadataProductKey   = "product"
	metadataOriginKey    = "origin"
	metadataTrialUsedKey = "trial_used"
	productName          = "linklock"
)

// Config holds the Stripe wiring injected at construction.
type Config struct {
	SecretKey    string
	TrialPriceID string
	TrialDays    int64
	// SuccessURL/CancelURL bound checkout back to the canonical origin.
	SuccessURL string
	CancelURL  string
	// Origin is stamped into customer metadata at creation.
	Origin string
}

// Client implements API against Stripe.
type Client struct {
	cfg Config
}

func NewClient(cfg Config) *Client {
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}
}

func (c *Client) FindCustomerByEmail(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("email:'%s'", strings.ReplaceAll(email, "'", "")),
			Context: ctx,
		},
	}
	iter := customer.Search(params)
	for iter.Next() {
		cust := iter.Customer()
		if cust.Deleted {
			continue
		}
		// Search matches are not guaranteed exact; keep only exact email.
		if strings.EqualFold(cust.Email, email) {
			return narrowCustomer(cust), nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("search customer: %w", err)
	}
	return nil, ErrNoCustomer
}

func (c *Client) GetCustomer(ctx context.Context, id string) (*Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := customer.Get(id, params)
	if err != nil {
		if isMissing(err) {
			return nil, ErrNoCustomer
		}
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if cust.Deleted {
		return nil, ErrNoCustomer
	}
	return narrowCustomer(cust), nil
}

func (c *Client) CreateCustomer(ctx context.Context, email string) (*Customer, error) {
	params := &stripe.CustomerParams{
		Email: stripe.String(email),
	}
	params.Context = ctx
	params.AddMetadata(metadataProductKey, productName)
	params.AddMetadata(metadataOriginKey, c.cfg.Origin)
	cust, err := customer.New(params)
	if err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return narrowCustomer(cust), nil
}

func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	var subs []Subscription
	iter := subscription.List(params)
	for iter.Next() {
		subs = append(subs, narrowSubscription(iter.Subscription()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return subs, nil
}

func (c *Client) CreateTrialSubscription(ctx context.Context, customerID, idemScope string) (*Subscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{
				Price:    stripe.String(c.cfg.TrialPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		TrialPeriodDays: stripe.Int64(c.cfg.TrialDays),
		// No card on file at trial end means cancel, never a silent charge.
		TrialSettings: &stripe.SubscriptionTrialSettingsParams{
			EndBehavior: &stripe.SubscriptionTrialSettingsEndBehaviorParams{
				MissingPaymentMethod: stripe.String("cancel"),
			},
		},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("trial-sub-" + idemScope)
	sub, err := subscription.New(params)
	if err != nil {
		return nil, fmt.Errorf("create trial subscription: %w", err)
	}
	narrowed := narrowSubscription(sub)
	return &narrowed, nil
}

func (c *Client) MarkTrialUsed(ctx context.Context, customerID, idemScope string) error {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("trial-mark-" + idemScope)
	params.AddMetadata(metadataTrialUsedKey, "true")
	if _, err := customer.Update(customerID, params); err != nil {
		return fmt.Errorf("mark trial used: %w", err)
	}
	return nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, customerID, idemScope string) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Customer: stripe.String(customerID),
		Mode:     stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.cfg.TrialPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(c.cfg.SuccessURL),
		CancelURL:           stripe.String(c.cfg.CancelURL),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("checkout-" + idemScope)
	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

func narrowCustomer(cust *stripe.Customer) *Customer {
	return &Customer{
		ID:        cust.ID,
		Email:     cust.Email,
		Deleted:   cust.Deleted,
		TrialUsed: cust.Metadata[metadataTrialUsedKey] == "true",
	}
}

func narrowSubscription(sub *stripe.Subscription) Subscription {
	return Subscription{
		ID:                sub.ID,
		Status:            string(sub.Status),
		TrialEnd:          sub.TrialEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
}

func isMissing(err error) bool {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return stripeErr.HTTPStatusCode == http.StatusNotFound
	}
	return false
}
