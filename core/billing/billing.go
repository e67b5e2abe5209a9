// Package billing manages subscriptions to the paid plans and meters the AI features they unlock.
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/codexlms/codex/core"
	"github.com/codexlms/codex/core/user"
)

const Collection = "subscriptions"

// Subscription statuses
const (
	StatusPending   = "pending"
	StatusActive    = "active"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// Payment statuses reported by a Gateway.
const (
	PaymentPending   = "pending"
	PaymentSettled   = "settled"
	PaymentExpired   = "expired"
	PaymentCancelled = "cancelled"
	PaymentFailed    = "failed"
)

var (
	ErrNotFound          = errors.New("subscription not found")
	ErrUnknownPlan       = errors.New("unknown plan")
	ErrUnknownFeature    = errors.New("unknown feature")
	ErrLimitReached      = errors.New("monthly usage limit reached for this feature")
	ErrAlreadySubscribed = errors.New("already subscribed to a paid plan")
	ErrInvalidTransition = errors.New("invalid subscription transition")
)

type Subscription struct {
	ID                 string         `json:"id"` // the user ID
	UserID             string         `json:"userId"`
	PlanID             string         `json:"planId"`
	Status             string         `json:"status"`
	Usage              map[string]int `json:"usage"`
	OrderID            string         `json:"orderId"`
	PaymentToken       string         `json:"paymentToken"`
	RedirectURL        string         `json:"redirectUrl"`
	CurrentPeriodStart *time.Time     `json:"currentPeriodStart"`
	CurrentPeriodEnd   *time.Time     `json:"currentPeriodEnd"`
	UsageResetAt       time.Time      `json:"usageResetAt"`
	CancelledAt        *time.Time     `json:"cancelledAt"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// EffectivePlan is the plan whose limits apply: the subscribed one while active, the free one otherwise.
func (s Subscription) EffectivePlan() Plan {
	if s.Status == StatusActive {
		if p, ok := GetPlan(s.PlanID); ok {
			return p
		}
	}
	p, _ := GetPlan(PlanFree)
	return p
}

type (
	Order struct {
		ID            string
		Amount        int64
		ItemID        string
		ItemName      string
		CustomerName  string
		CustomerEmail string
	}

	Checkout struct {
		Token       string
		RedirectURL string
	}

	// Gateway is a payment provider. Transitions are pulled with Status; there is no webhook.
	Gateway interface {
		Checkout(ctx context.Context, order Order) (Checkout, error)
		Status(ctx context.Context, orderID string) (string, error)
		Cancel(ctx context.Context, orderID string) error
	}
)

type Service struct {
	db      core.DocumentStore
	gateway Gateway
}

func NewService(db core.DocumentStore, gateway Gateway) *Service {
	return &Service{db: db, gateway: gateway}
}

func (svc *Service) Plans() []Plan { return Plans() }

func (svc *Service) Get(ctx context.Context, userID string) (Subscription, error) {
	if userID == "" {
		return Subscription{}, ErrNotFound
	}
	doc, err := svc.db.Get(ctx, Collection, userID)
	if err != nil {
		if errors.Cause(err) == core.ErrDocNotFound {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, errors.Wrap(err, "getting subscription")
	}
	var sub Subscription
	if err := doc.DataTo(&sub); err != nil {
		return Subscription{}, err
	}
	if sub.Usage == nil {
		sub.Usage = map[string]int{}
	}
	return sub, nil
}

// Current returns the user's subscription, or an unsaved free one.
func (svc *Service) Current(ctx context.Context, userID string) (Subscription, error) {
	sub, err := svc.Get(ctx, userID)
	if err == ErrNotFound {
		now := core.NowFunc()
		return Subscription{
			ID:           userID,
			UserID:       userID,
			PlanID:       PlanFree,
			Status:       StatusActive,
			Usage:        map[string]int{},
			UsageResetAt: now,
			CreatedAt:    now,
			UpdatedAt:    now,
		}, nil
	}
	return sub, err
}

func (svc *Service) save(ctx context.Context, sub Subscription) error {
	sub.UpdatedAt = core.NowFunc()
	data, err := core.EncodeDocument(sub)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.db.Set(ctx, Collection, sub.ID, data), "saving subscription")
}

// Purchase starts the checkout of a paid plan; the subscription stays pending until confirmed.
// Choosing the free plan downgrades right away.
func (svc *Service) Purchase(ctx context.Context, usr user.User, planID string) (Subscription, error) {
	plan, ok := GetPlan(planID)
	if !ok {
		return Subscription{}, core.NewValidationError(ErrUnknownPlan, core.FieldError{Field: "planId", Error: ErrUnknownPlan.Error()})
	}
	sub, err := svc.Current(ctx, usr.ID)
	if err != nil {
		return Subscription{}, err
	}
	if sub.Status == StatusActive && !sub.EffectivePlan().IsFree() {
		return Subscription{}, ErrAlreadySubscribed
	}

	now := core.NowFunc()
	sub.PlanID = plan.ID
	sub.CancelledAt = nil
	sub.OrderID, sub.PaymentToken, sub.RedirectURL = "", "", ""
	if plan.IsFree() {
		sub.Status = StatusActive
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = nil, nil
		return sub, svc.save(ctx, sub)
	}

	sub.Status = StatusPending
	sub.OrderID = fmt.Sprintf("sub-%s-%d", usr.ID, now.Unix())
	checkout, err := svc.gateway.Checkout(ctx, Order{
		ID:            sub.OrderID,
		Amount:        plan.Price,
		ItemID:        plan.ID,
		ItemName:      plan.Name + " plan",
		CustomerName:  usr.Name,
		CustomerEmail: usr.Email,
	})
	if err != nil {
		return Subscription{}, errors.Wrap(err, "creating checkout")
	}
	sub.PaymentToken, sub.RedirectURL = checkout.Token, checkout.RedirectURL
	return sub, svc.save(ctx, sub)
}

// Confirm checks the payment of a pending subscription and applies its outcome.
func (svc *Service) Confirm(ctx context.Context, userID string) (Subscription, error) {
	sub, err := svc.Get(ctx, userID)
	if err != nil {
		return Subscription{}, err
	}
	if sub.Status != StatusPending {
		return Subscription{}, ErrInvalidTransition
	}

	status, err := svc.gateway.Status(ctx, sub.OrderID)
	if err != nil {
		return Subscription{}, errors.Wrap(err, "checking payment")
	}
	now := core.NowFunc()
	switch status {
	case PaymentPending:
		return sub, nil
	case PaymentSettled:
		end := now.Add(billingPeriod)
		sub.Status = StatusActive
		sub.CurrentPeriodStart, sub.CurrentPeriodEnd = &now, &end
		sub.Usage, sub.UsageResetAt = map[string]int{}, now
	case PaymentExpired:
		sub.Status = StatusExpired
	default:
		sub.Status = StatusCancelled
		sub.CancelledAt = &now
	}
	return sub, svc.save(ctx, sub)
}

// Cancel stops a pending checkout or an active paid subscription.
func (svc *Service) Cancel(ctx context.Context, userID string) (Subscription, error) {
	sub, err := svc.Get(ctx, userID)
	if err != nil {
		return Subscription{}, err
	}
	switch {
	case sub.Status == StatusPending:
		if err := svc.gateway.Cancel(ctx, sub.OrderID); err != nil {
			return Subscription{}, errors.Wrap(err, "cancelling payment")
		}
	case sub.Status == StatusActive && !sub.EffectivePlan().IsFree():
	default:
		return Subscription{}, ErrInvalidTransition
	}
	now := core.NowFunc()
	sub.Status = StatusCancelled
	sub.CancelledAt = &now
	return sub, svc.save(ctx, sub)
}

// IncrementUsage records one use of a feature, failing with ErrLimitReached once the
// monthly limit of the effective plan is used up.
func (svc *Service) IncrementUsage(ctx context.Context, userID, feature string) (Subscription, error) {
	sub, err := svc.Current(ctx, userID)
	if err != nil {
		return Subscription{}, err
	}
	limit, ok := sub.EffectivePlan().Limit(feature)
	if !ok {
		return Subscription{}, ErrUnknownFeature
	}
	if limit != Unlimited && sub.Usage[feature] >= limit {
		return Subscription{}, ErrLimitReached
	}
	sub.Usage[feature]++
	return sub, svc.save(ctx, sub)
}

// ResetUsage zeroes the usage counters of every subscription and returns how many were reset.
func (svc *Service) ResetUsage(ctx context.Context) (int, error) {
	docs, err := svc.db.Query(ctx, core.NewQuery(Collection))
	if err != nil {
		return 0, errors.Wrap(err, "querying subscriptions")
	}
	data, err := core.NormalizeData(map[string]interface{}{"usage": map[string]int{}, "usageResetAt": core.NowFunc()})
	if err != nil {
		return 0, err
	}
	writes := make([]core.Write, 0, len(docs))
	for _, doc := range docs {
		writes = append(writes, core.Write{Op: core.WriteUpdate, Collection: Collection, ID: doc.ID, Data: data})
	}
	if len(writes) == 0 {
		return 0, nil
	}
	return len(writes), errors.Wrap(svc.db.Batch(ctx, writes...), "resetting usage")
}

// ExpireOverdue expires the active subscriptions whose billing period ended.
func (svc *Service) ExpireOverdue(ctx context.Context) (int, error) {
	now := core.NowFunc()
	q := core.NewQuery(Collection).
		Where("status", core.OpEqual, StatusActive).
		Where("currentPeriodEnd", core.OpLess, now)
	docs, err := svc.db.Query(ctx, q)
	if err != nil {
		return 0, errors.Wrap(err, "querying subscriptions")
	}
	data, err := core.NormalizeData(map[string]interface{}{"status": StatusExpired, "updatedAt": now})
	if err != nil {
		return 0, err
	}
	writes := make([]core.Write, 0, len(docs))
	for _, doc := range docs {
		writes = append(writes, core.Write{Op: core.WriteUpdate, Collection: Collection, ID: doc.ID, Data: data})
	}
	if len(writes) == 0 {
		return 0, nil
	}
	return len(writes), errors.Wrap(svc.db.Batch(ctx, writes...), "expiring subscriptions")
}
