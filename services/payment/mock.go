package paymentsvc

import (
	"context"
	"sync"

	"github.com/codexlms/codex/core/billing"
)

// GatewayMock approves checkouts locally and reports the status set with SetStatus.
type GatewayMock struct {
	mu        sync.Mutex
	orders    []billing.Order
	statuses  map[string]string
	cancelled []string
}

var _ billing.Gateway = (*GatewayMock)(nil)

func NewGatewayMock() *GatewayMock {
	return &GatewayMock{statuses: map[string]string{}}
}

func (gw *GatewayMock) Checkout(_ context.Context, order billing.Order) (billing.Checkout, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.orders = append(gw.orders, order)
	gw.statuses[order.ID] = billing.PaymentPending
	return billing.Checkout{Token: "token-" + order.ID, RedirectURL: "https://pay.localhost/" + order.ID}, nil
}

func (gw *GatewayMock) Status(_ context.Context, orderID string) (string, error) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	if status, ok := gw.statuses[orderID]; ok {
		return status, nil
	}
	return billing.PaymentFailed, nil
}

func (gw *GatewayMock) Cancel(_ context.Context, orderID string) error {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	gw.cancelled = append(gw.cancelled, orderID)
	gw.statuses[orderID] = billing.PaymentCancelled
	return nil
}

// SetStatus sets the payment status of every known order.
func (gw *GatewayMock) SetStatus(status string) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	for id := range gw.statuses {
		gw.statuses[id] = status
	}
}

func (gw *GatewayMock) Orders() []billing.Order {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return append([]billing.Order(nil), gw.orders...)
}

func (gw *GatewayMock) Cancelled() []string {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return append([]string(nil), gw.cancelled...)
}
