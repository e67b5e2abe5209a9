package paymentsvc

import (
	"context"
	"testing"
	"unicode/utf8"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codexlms/codex/core/billing"
)

func TestPaymentStatus(t *testing.T) {
	tests := []struct {
		transaction, fraud string
		want               string
	}{
		{"capture", "accept", billing.PaymentSettled},
		{"capture", "challenge", billing.PaymentPending},
		{"settlement", "", billing.PaymentSettled},
		{"pending", "", billing.PaymentPending},
		{"expire", "", billing.PaymentExpired},
		{"cancel", "", billing.PaymentCancelled},
		{"deny", "", billing.PaymentFailed},
		{"failure", "", billing.PaymentFailed},
		{"", "", billing.PaymentFailed},
	}
	for _, tc := range tests {
		t.Run(tc.transaction+"/"+tc.fraud, func(t *testing.T) {
			assert.Equal(t, tc.want, paymentStatus(tc.transaction, tc.fraud))
		})
	}
}

func TestTransactionStatus(t *testing.T) {
	tests := []struct {
		name    string
		resp    *coreapi.TransactionStatusResponse
		mErr    *midtrans.Error
		want    string
		wantErr bool
	}{
		{
			name: "settled",
			resp: &coreapi.TransactionStatusResponse{StatusCode: "200", TransactionStatus: "settlement"},
			want: billing.PaymentSettled,
		},
		{
			name: "challenged capture",
			resp: &coreapi.TransactionStatusResponse{StatusCode: "201", TransactionStatus: "capture", FraudStatus: "challenge"},
			want: billing.PaymentPending,
		},
		{
			name: "not paid yet",
			mErr: &midtrans.Error{Message: "Transaction doesn't exist.", StatusCode: 404},
			want: billing.PaymentPending,
		},
		{
			name: "not paid yet, reported in the body",
			resp: &coreapi.TransactionStatusResponse{StatusCode: "404", StatusMessage: "Transaction doesn't exist."},
			want: billing.PaymentPending,
		},
		{
			name:    "unauthorized",
			mErr:    &midtrans.Error{Message: "Unknown Merchant server_key/id", StatusCode: 401},
			wantErr: true,
		},
		{
			name:    "network error",
			mErr:    &midtrans.Error{Message: "connection refused", RawError: errors.New("connection refused")},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := transactionStatus(tc.resp, tc.mErr)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Pro plan", 50, "Pro plan"},
		{"abcdef", 3, "abc"},
		{"Kursus Pemrograman Go", 6, "Kursus"},
		{"日本語のコース", 3, "日本語"},
		{"café crème", 4, "café"},
		{"", 5, ""},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got := truncate(tc.in, tc.n)
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}

func TestSnapRequest(t *testing.T) {
	req := snapRequest(billing.Order{
		ID:            "sub-ann-1",
		Amount:        99000,
		ItemID:        "pro",
		ItemName:      "Pro plan",
		CustomerName:  "Ann Marie Doe",
		CustomerEmail: "ann@test.cd",
	})

	assert.Equal(t, "sub-ann-1", req.TransactionDetails.OrderID)
	assert.Equal(t, int64(99000), req.TransactionDetails.GrossAmt)
	require.NotNil(t, req.CustomerDetail)
	assert.Equal(t, "Ann Marie", req.CustomerDetail.FName)
	assert.Equal(t, "Doe", req.CustomerDetail.LName)
	require.NotNil(t, req.Items)
	require.Len(t, *req.Items, 1)
	assert.Equal(t, int64(99000), (*req.Items)[0].Price)
	assert.Equal(t, int32(1), (*req.Items)[0].Qty)
}

func TestGatewayMock(t *testing.T) {
	ctx := context.Background()
	gw := NewGatewayMock()

	checkout, err := gw.Checkout(ctx, billing.Order{ID: "o1", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, "token-o1", checkout.Token)

	status, err := gw.Status(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, billing.PaymentPending, status)

	gw.SetStatus(billing.PaymentSettled)
	status, _ = gw.Status(ctx, "o1")
	assert.Equal(t, billing.PaymentSettled, status)

	require.NoError(t, gw.Cancel(ctx, "o1"))
	status, _ = gw.Status(ctx, "o1")
	assert.Equal(t, billing.PaymentCancelled, status)
	assert.Equal(t, []string{"o1"}, gw.Cancelled())

	status, _ = gw.Status(ctx, "unknown")
	assert.Equal(t, billing.PaymentFailed, status)
}
