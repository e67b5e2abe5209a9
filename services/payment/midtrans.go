// Package paymentsvc implements billing.Gateway on Midtrans.
package paymentsvc

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/billing"
)

// midtransGateway creates Snap checkouts and pulls their status from the Core API.
type midtransGateway struct {
	snap    snap.Client
	coreapi coreapi.Client
}

var _ billing.Gateway = (*midtransGateway)(nil)

func NewMidtransGateway(conf *core.Config) billing.Gateway {
	env := midtrans.Sandbox
	if conf.Midtrans.Production {
		env = midtrans.Production
	}
	gw := &midtransGateway{}
	gw.snap.New(conf.Midtrans.ServerKey, env)
	gw.coreapi.New(conf.Midtrans.ServerKey, env)
	return gw
}

func (gw *midtransGateway) Checkout(ctx context.Context, order billing.Order) (billing.Checkout, error) {
	if err := ctx.Err(); err != nil {
		return billing.Checkout{}, err
	}
	resp, mErr := gw.snap.CreateTransaction(snapRequest(order))
	if mErr != nil {
		return billing.Checkout{}, errors.Wrap(mErr, "creating snap transaction")
	}
	return billing.Checkout{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

func snapRequest(order billing.Order) *snap.Request {
	fName, lName := splitName(order.CustomerName)
	return &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  order.ID,
			GrossAmt: order.Amount,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: fName,
			LName: lName,
			Email: order.CustomerEmail,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:    order.ItemID,
			Name:  truncate(order.ItemName, 50),
			Price: order.Amount,
			Qty:   1,
		}},
		CreditCard: &snap.CreditCardDetails{Secure: true},
	}
}

func (gw *midtransGateway) Status(ctx context.Context, orderID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return transactionStatus(gw.coreapi.CheckTransaction(orderID))
}

// transactionStatus maps a Core API status check to a billing payment status.
// A checkout the customer has not paid yet has no transaction, which Midtrans reports as 404.
func transactionStatus(resp *coreapi.TransactionStatusResponse, mErr *midtrans.Error) (string, error) {
	if mErr != nil {
		if mErr.GetStatusCode() == 404 {
			return billing.PaymentPending, nil
		}
		return "", errors.Wrap(mErr, "checking transaction")
	}
	if resp == nil || resp.StatusCode == "404" {
		return billing.PaymentPending, nil
	}
	return paymentStatus(resp.TransactionStatus, resp.FraudStatus), nil
}

func (gw *midtransGateway) Cancel(ctx context.Context, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, mErr := gw.coreapi.CancelTransaction(orderID); mErr != nil {
		// a checkout never paid has no transaction to cancel yet
		if mErr.GetStatusCode() == 404 {
			return nil
		}
		return errors.Wrap(mErr, "cancelling transaction")
	}
	return nil
}

// paymentStatus maps a Midtrans transaction status to a billing payment status.
func paymentStatus(transaction, fraud string) string {
	switch transaction {
	case "capture":
		if fraud == "challenge" {
			return billing.PaymentPending
		}
		return billing.PaymentSettled
	case "settlement":
		return billing.PaymentSettled
	case "pending", "authorize":
		return billing.PaymentPending
	case "expire":
		return billing.PaymentExpired
	case "cancel", "refund", "partial_refund":
		return billing.PaymentCancelled
	default: // deny, failure
		return billing.PaymentFailed
	}
}

func splitName(name string) (string, string) {
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, " "); i > 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

// truncate keeps the first n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
