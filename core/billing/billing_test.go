package billing

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/user"
	dummydb "github.com/codexlms/codex/storage/database/dummy"
)

type gatewayFake struct {
	orders    []Order
	status    string
	cancelled []string
	err       error
}

func (g *gatewayFake) Checkout(_ context.Context, order Order) (Checkout, error) {
	if g.err != nil {
		return Checkout{}, g.err
	}
	g.orders = append(g.orders, order)
	return Checkout{Token: "tok-" + order.ID, RedirectURL: "https://pay.test/" + order.ID}, nil
}

func (g *gatewayFake) Status(context.Context, string) (string, error) { return g.status, g.err }

func (g *gatewayFake) Cancel(_ context.Context, orderID string) error {
	g.cancelled = append(g.cancelled, orderID)
	return g.err
}

var ann = user.User{ID: "ann", Name: "Ann", Email: "ann@test.cd"}

func newTestService(t *testing.T) (*Service, *gatewayFake) {
	t.Helper()
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = func() time.Time { return time.Now().UTC() } })

	gw := &gatewayFake{status: PaymentPending}
	return NewService(dummydb.Open(), gw), gw
}

func TestService_PurchaseConfirm(t *testing.T) {
	tests := []struct {
		name          string
		paymentStatus string
		wantStatus    string
	}{
		{name: "still pending", paymentStatus: PaymentPending, wantStatus: StatusPending},
		{name: "settled", paymentStatus: PaymentSettled, wantStatus: StatusActive},
		{name: "expired", paymentStatus: PaymentExpired, wantStatus: StatusExpired},
		{name: "cancelled", paymentStatus: PaymentCancelled, wantStatus: StatusCancelled},
		{name: "failed", paymentStatus: PaymentFailed, wantStatus: StatusCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, gw := newTestService(t)
			ctx := context.Background()

			sub, err := svc.Purchase(ctx, ann, PlanPro)
			require.NoError(t, err)
			assert.Equal(t, StatusPending, sub.Status)
			assert.Equal(t, "tok-"+sub.OrderID, sub.PaymentToken)
			require.Len(t, gw.orders, 1)
			assert.Equal(t, int64(99000), gw.orders[0].Amount)
			assert.Equal(t, ann.Email, gw.orders[0].CustomerEmail)

			gw.status = tt.paymentStatus
			sub, err = svc.Confirm(ctx, ann.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, sub.Status)

			got, err := svc.Get(ctx, ann.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			if tt.wantStatus == StatusActive {
				require.NotNil(t, got.CurrentPeriodEnd)
				assert.True(t, core.NowFunc().Add(30*24*time.Hour).Equal(*got.CurrentPeriodEnd))
				assert.Equal(t, PlanPro, got.EffectivePlan().ID)
			} else {
				assert.Equal(t, PlanFree, got.EffectivePlan().ID)
			}
		})
	}
}

func TestService_PurchaseErrors(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()

	_, err := svc.Purchase(ctx, ann, "gold")
	assert.Equal(t, ErrUnknownPlan, errors.Cause(err).(*core.ValidationError).Err)

	_, err = svc.Confirm(ctx, ann.ID)
	assert.Equal(t, ErrNotFound, err)

	gw.err = errors.New("gateway down")
	_, err = svc.Purchase(ctx, ann, PlanPro)
	assert.Error(t, err)
	_, err = svc.Get(ctx, ann.ID)
	assert.Equal(t, ErrNotFound, err)

	gw.err = nil
	gw.status = PaymentSettled
	_, err = svc.Purchase(ctx, ann, PlanPro)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, ann.ID)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, ann.ID)
	assert.Equal(t, ErrInvalidTransition, err)
	_, err = svc.Purchase(ctx, ann, PlanTeam)
	assert.Equal(t, ErrAlreadySubscribed, err)

	sub, err := svc.Cancel(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, sub.Status)
	assert.Empty(t, gw.cancelled)
	_, err = svc.Cancel(ctx, ann.ID)
	assert.Equal(t, ErrInvalidTransition, err)
}

func TestService_CancelPending(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()

	sub, err := svc.Purchase(ctx, ann, PlanTeam)
	require.NoError(t, err)
	sub, err = svc.Cancel(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, sub.Status)
	assert.Equal(t, []string{sub.OrderID}, gw.cancelled)
	assert.NotNil(t, sub.CancelledAt)
}

func TestService_IncrementUsage(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()

	free, _ := GetPlan(PlanFree)
	limit, _ := free.Limit(FeatureCourseGeneration)
	for i := 0; i < limit; i++ {
		_, err := svc.IncrementUsage(ctx, ann.ID, FeatureCourseGeneration)
		require.NoError(t, err)
	}
	_, err := svc.IncrementUsage(ctx, ann.ID, FeatureCourseGeneration)
	assert.Equal(t, ErrLimitReached, err)

	_, err = svc.IncrementUsage(ctx, ann.ID, "teleportation")
	assert.Equal(t, ErrUnknownFeature, err)

	// other features are metered separately
	sub, err := svc.IncrementUsage(ctx, ann.ID, FeatureCoaching)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{FeatureCourseGeneration: limit, FeatureCoaching: 1}, sub.Usage)

	n, err := svc.ResetUsage(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = svc.IncrementUsage(ctx, ann.ID, FeatureCourseGeneration)
	require.NoError(t, err)

	// the team plan is unlimited
	gw.status = PaymentSettled
	_, err = svc.Purchase(ctx, ann, PlanTeam)
	require.NoError(t, err)
	_, err = svc.Confirm(ctx, ann.ID)
	require.NoError(t, err)
	for i := 0; i < 50; i++ {
		_, err := svc.IncrementUsage(ctx, ann.ID, FeatureCourseGeneration)
		require.NoError(t, err)
	}
}

func TestService_ExpireOverdue(t *testing.T) {
	svc, gw := newTestService(t)
	ctx := context.Background()
	gw.status = PaymentSettled

	bob := user.User{ID: "bob", Name: "Bob", Email: "bob@test.cd"}
	for _, usr := range []user.User{ann, bob} {
		_, err := svc.Purchase(ctx, usr, PlanPro)
		require.NoError(t, err)
		_, err = svc.Confirm(ctx, usr.ID)
		require.NoError(t, err)
	}
	// a free user is never expired
	_, err := svc.IncrementUsage(ctx, "cid", FeatureCoaching)
	require.NoError(t, err)

	n, err := svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	later := core.NowFunc().Add(31 * 24 * time.Hour)
	core.NowFunc = func() time.Time { return later }
	n, err = svc.ExpireOverdue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sub, err := svc.Get(ctx, ann.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, sub.Status)
	sub, err = svc.Get(ctx, "cid")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, sub.Status)
}
