package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// customerCacheTTL is deliberately long: the email→customer mapping almost
// never changes, and every cached hit is re-confirmed against the authority
// before use.
const customerCacheTTL = 365 * 24 * time.Hour

// KV is the cache contract the resolver needs. Satisfied by cache.Store.
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

// CustomerResolver maps an email to a live billing customer, creating one
// when none exists. The canonical search-by-email before create is what
// keeps a user signing in from a new device (cold cache) from ending up
// with a duplicate customer.
type CustomerResolver struct {
	api API
	kv  KV
}

func NewCustomerResolver(api API, kv KV) *CustomerResolver {
	return &CustomerResolver{api: api, kv: kv}
}

// Resolve returns the customer for the email, consulting the cache first,
// confirming cached ids still point at live records, and falling back to the
// canonical search-then-create path.
func (r *CustomerResolver) Resolve(ctx context.Context, email string) (*Customer, error) {
	key := cacheKey(email)

	cachedID, found, err := r.kv.Get(ctx, key)
	if err != nil {
		// Cache trouble degrades to the canonical path, not to failure.
		log.Warn().Err(err).Msg("customer cache read failed")
		found = false
	}
	if found && cachedID != "" {
		cust, err := r.api.GetCustomer(ctx, cachedID)
		if err == nil {
			return cust, nil
		}
		if !errors.Is(err, ErrNoCustomer) {
			return nil, err
		}
		// Stale cache entry: the record was deleted upstream.
	}

	cust, err := r.api.FindCustomerByEmail(ctx, email)
	if errors.Is(err, ErrNoCustomer) {
		cust, err = r.api.CreateCustomer(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}

	if cust.ID != cachedID {
		if err := r.kv.Set(ctx, key, cust.ID, customerCacheTTL); err != nil {
			log.Warn().Err(err).Msg("customer cache write failed")
		}
	}
	return cust, nil
}

func cacheKey(email string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return "billing:cus:" + hex.EncodeToString(sum[:])[:32]
}
