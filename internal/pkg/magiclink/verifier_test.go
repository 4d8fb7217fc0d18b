package magiclink

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StefanHaas/LinkLock/internal/pkg/billing"
	"github.com/StefanHaas/LinkLock/internal/pkg/config"
	"github.com/StefanHaas/LinkLock/internal/pkg/nonce"
	"github.com/StefanHaas/LinkLock/internal/pkg/ratelimit"
	"github.com/StefanHaas/LinkLock/internal/pkg/session"
	"github.com/StefanHaas/LinkLock/internal/pkg/token"
)

type fakeLedger struct {
	used  map[string]bool
	err   error
	calls int
}

func (f *fakeLedger) TryRedeem(_ context.Context, n string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	if f.used == nil {
		f.used = map[string]bool{}
	}
	if f.used[n] {
		return false, nil
	}
	f.used[n] = true
	return true, nil
}

func newTestVerifier(gate *fakeGate, ledger *fakeLedger, api *fakeBilling) *Verifier {
	sessions := session.NewManager(testSecret, "ll_session", 7*24*time.Hour, config.EnvLocal)
	return NewVerifier(testSecret, gate, ledger, api, sessions, "https://linklock.test")
}

func mintMagicLink(t *testing.T, intent string, expiresAt int64) (string, string) {
	t.Helper()
	n, err := nonce.New()
	require.NoError(t, err)
	tok, err := token.Encode(token.MagicLinkClaims{
		V:          token.Version,
		Typ:        token.TypeMagicLink,
		Intent:     intent,
		Email:      "user@example.com",
		CustomerID: "cus_1",
		IssuedAt:   expiresAt - 900,
		ExpiresAt:  expiresAt,
		Nonce:      n,
	}, testSecret)
	require.NoError(t, err)
	return tok, n
}

func future() int64 { return time.Now().Add(10 * time.Minute).Unix() }

func TestVerifyEnforcesIPBudget(t *testing.T) {
	gate := &fakeGate{denies: map[string]time.Duration{ratelimit.ScopeVerifyByIP: time.Minute}}
	ledger := &fakeLedger{}
	v := newTestVerifier(gate, ledger, &fakeBilling{})

	tok, _ := mintMagicLink(t, token.IntentLogin, future())
	_, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	var rle *RateLimitedError
	require.ErrorAs(t, err, &rle)
	assert.Zero(t, ledger.calls, "a limited request must not burn the nonce")
}

func TestVerifyRejectsGarbageToken(t *testing.T) {
	ledger := &fakeLedger{}
	v := newTestVerifier(&fakeGate{}, ledger, &fakeBilling{})

	for _, raw := range []string{"", "nonsense", "a.b.c", "AAAA.BBBB"} {
		_, err := v.Verify(context.Background(), raw, "ip:1.2.3.4")
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", raw)
	}
	assert.Zero(t, ledger.calls)
}

func TestVerifyRejectsSessionTokenAsMagicLink(t *testing.T) {
	v := newTestVerifier(&fakeGate{}, &fakeLedger{}, &fakeBilling{})
	sess, err := token.Encode(token.SessionClaims{
		V: token.Version, Typ: token.TypeSession,
		Email: "user@example.com", CustomerID: "cus_1",
		IssuedAt: time.Now().Unix(), SID: "abc",
	}, testSecret)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), sess, "ip:1.2.3.4")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpiredTokenBeforeLedger(t *testing.T) {
	ledger := &fakeLedger{}
	v := newTestVerifier(&fakeGate{}, ledger, &fakeBilling{})

	tok, _ := mintMagicLink(t, token.IntentLogin, time.Now().Add(-time.Minute).Unix())
	_, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Zero(t, ledger.calls, "an expired link must not touch the ledger")
}

func TestVerifyLoginIssuesSession(t *testing.T) {
	ledger := &fakeLedger{}
	v := newTestVerifier(&fakeGate{}, ledger, &fakeBilling{})

	tok, n := mintMagicLink(t, token.IntentLogin, future())
	res, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(n))
	wantSID := hex.EncodeToString(sum[:])[:16]
	assert.Equal(t, wantSID, res.Claims.SID)
	assert.Equal(t, "user@example.com", res.Claims.Email)
	assert.Equal(t, "cus_1", res.Claims.CustomerID)
	assert.Zero(t, res.Claims.TrialEndsAt)
	assert.Equal(t, "https://linklock.test/app", res.RedirectTo)

	claims, err := token.DecodeSession(res.CookieValue, testSecret)
	require.NoError(t, err)
	assert.Equal(t, wantSID, claims.SID)
}

func TestVerifyRejectsReplay(t *testing.T) {
	ledger := &fakeLedger{}
	v := newTestVerifier(&fakeGate{}, ledger, &fakeBilling{})

	tok, _ := mintMagicLink(t, token.IntentLogin, future())
	_, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), tok, "ip:5.6.7.8")
	assert.ErrorIs(t, err, ErrLinkAlreadyUsed)
}

func TestVerifyFailsClosedOnLedgerError(t *testing.T) {
	ledger := &fakeLedger{err: errors.New("redis down")}
	v := newTestVerifier(&fakeGate{}, ledger, &fakeBilling{})

	tok, _ := mintMagicLink(t, token.IntentLogin, future())
	_, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLinkAlreadyUsed)
}

func TestVerifyTrialStartsSubscription(t *testing.T) {
	trialEnd := time.Now().Add(14 * 24 * time.Hour).Unix()
	api := &fakeBilling{
		customers: map[string]*billing.Customer{"cus_1": {ID: "cus_1", Email: "user@example.com"}},
		trialSub:  &billing.Subscription{ID: "sub_trial", Status: billing.StatusTrialing, TrialEnd: trialEnd},
	}
	v := newTestVerifier(&fakeGate{}, &fakeLedger{}, api)

	tok, n := mintMagicLink(t, token.IntentTrial, future())
	res, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	require.NoError(t, err)

	sum := sha256.Sum256([]byte(n))
	sid := hex.EncodeToString(sum[:])[:16]
	require.Len(t, api.trialCalls, 1)
	assert.Equal(t, "cus_1|"+sid, api.trialCalls[0], "idempotency scope must come from the redeemed nonce")
	assert.Equal(t, []string{"cus_1|" + sid}, api.marked)
	assert.Equal(t, trialEnd, res.Claims.TrialEndsAt)
	assert.Equal(t, "sub_trial", res.Claims.TrialSubscriptionID)
	assert.Equal(t, "https://linklock.test/app?trial=started", res.RedirectTo)
}

func TestVerifyTrialDisqualifiedStillSignsIn(t *testing.T) {
	api := &fakeBilling{
		customers: map[string]*billing.Customer{"cus_1": {ID: "cus_1", Email: "user@example.com"}},
		subs: map[string][]billing.Subscription{
			"cus_1": {{ID: "sub_old", Status: "canceled"}},
		},
	}
	v := newTestVerifier(&fakeGate{}, &fakeLedger{}, api)

	tok, _ := mintMagicLink(t, token.IntentTrial, future())
	res, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Empty(t, api.trialCalls)
	assert.Zero(t, res.Claims.TrialEndsAt)
	assert.Equal(t, "https://linklock.test/subscribe", res.RedirectTo)
	_, err = token.DecodeSession(res.CookieValue, testSecret)
	assert.NoError(t, err, "disqualified trial still gets a signed-in session")
}

func TestVerifyTrialDisqualifiedByMarker(t *testing.T) {
	api := &fakeBilling{
		customers: map[string]*billing.Customer{"cus_1": {ID: "cus_1", Email: "user@example.com", TrialUsed: true}},
	}
	v := newTestVerifier(&fakeGate{}, &fakeLedger{}, api)

	tok, _ := mintMagicLink(t, token.IntentTrial, future())
	res, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Empty(t, api.trialCalls)
	assert.Equal(t, "https://linklock.test/subscribe", res.RedirectTo)
}

func TestVerifyTrialSurvivesMarkerFailure(t *testing.T) {
	api := &fakeBilling{
		customers: map[string]*billing.Customer{"cus_1": {ID: "cus_1", Email: "user@example.com"}},
		trialSub:  &billing.Subscription{ID: "sub_trial", Status: billing.StatusTrialing, TrialEnd: future()},
		markErr:   errors.New("metadata write failed"),
	}
	v := newTestVerifier(&fakeGate{}, &fakeLedger{}, api)

	tok, _ := mintMagicLink(t, token.IntentTrial, future())
	res, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "sub_trial", res.Claims.TrialSubscriptionID)
}

func TestVerifyTrialCreationFailure(t *testing.T) {
	api := &fakeBilling{
		customers: map[string]*billing.Customer{"cus_1": {ID: "cus_1", Email: "user@example.com"}},
		trialErr:  errors.New("price missing"),
	}
	v := newTestVerifier(&fakeGate{}, &fakeLedger{}, api)

	tok, _ := mintMagicLink(t, token.IntentTrial, future())
	_, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	assert.ErrorIs(t, err, ErrBilling)
}

func TestVerifySubscribeRedirectsToCheckout(t *testing.T) {
	api := &fakeBilling{checkoutURL: "https://checkout.stripe.com/c/pay/cs_test"}
	v := newTestVerifier(&fakeGate{}, &fakeLedger{}, api)

	tok, _ := mintMagicLink(t, token.IntentSubscribe, future())
	res, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test", res.RedirectTo)
	_, err = token.DecodeSession(res.CookieValue, testSecret)
	assert.NoError(t, err, "checkout redirect still carries a session")
}

func TestVerifySubscribeCheckoutFailure(t *testing.T) {
	api := &fakeBilling{checkoutErr: errors.New("stripe 500")}
	v := newTestVerifier(&fakeGate{}, &fakeLedger{}, api)

	tok, _ := mintMagicLink(t, token.IntentSubscribe, future())
	_, err := v.Verify(context.Background(), tok, "ip:1.2.3.4")
	assert.ErrorIs(t, err, ErrBilling)
}
