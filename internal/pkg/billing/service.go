package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v72"
	"github.com/stripe/stripe-go/v72/sub"
	"github.com/stripe/stripe-go/v72/webhook"
	"gorm.io/gorm"

	"github.com/flowdeck-app/flowdeck/app/models"
	"github.com/flowdeck-app/flowdeck/internal/pkg/apperr"
)

// relevantEvents is the fixed allow-list of webhook event types this service
// acts upon. Everything else is acknowledged without a state change so new
// Stripe event types never break the endpoint.
var relevantEvents = map[string]bool{
	"checkout.session.completed":    true,
	"customer.subscription.created": true,
	"customer.subscription.updated": true,
	"customer.subscription.deleted": true,
	"invoice.payment_succeeded":     true,
	"invoice.payment_failed":        true,
}

// IsRelevantEvent reports whether the event type is on the allow-list.
func IsRelevantEvent(eventType string) bool {
	return relevantEvents[eventType]
}

// VerifyWebhook authenticates a delivery by checking the Stripe signature over
// the raw body. It must run before any event interpretation.
func VerifyWebhook(payload []byte, sigHeader, secret string) (stripe.Event, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, secret)
	if err != nil {
		return stripe.Event{}, apperr.Wrap(err, apperr.ErrSignature, "")
	}
	return event, nil
}

// Service reconciles local customer/subscription records from Stripe webhook
// events. Every handler is an idempotent upsert keyed by provider-assigned
// ids, safe to re-run on redelivery.
type Service struct {
	repo Repository
	now  func() time.Time

	// fetchSubscription covers the checkout metadata fallback; it is a Stripe
	// API call in production and a stub in tests.
	fetchSubscription func(id string) (*stripe.Subscription, error)
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{
		repo: repo,
		now:  time.Now,
		fetchSubscription: func(id string) (*stripe.Subscription, error) {
			return sub.Get(id, nil)
		},
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// ProcessEvent dispatches one verified event to its handler. A returned error
// means processing failed and the caller should answer non-2xx so Stripe
// redelivers; handlers are safe to re-run.
func (s *Service) ProcessEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("decode checkout session: %w", err)
		}
		return s.handleCheckoutCompleted(ctx, &session)
	case "customer.subscription.created", "customer.subscription.updated":
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.handleSubscriptionUpdated(ctx, &subscription)
	case "customer.subscription.deleted":
		var subscription stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &subscription); err != nil {
			return fmt.Errorf("decode subscription: %w", err)
		}
		return s.handleSubscriptionDeleted(ctx, &subscription)
	case "invoice.payment_succeeded":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return s.handleInvoicePaymentSucceeded(ctx, &invoice)
	case "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return fmt.Errorf("decode invoice: %w", err)
		}
		return s.handleInvoicePaymentFailed(ctx, &invoice)
	default:
		// Outside the allow-list; acknowledged upstream, nothing to do here.
		return nil
	}
}

// handleCheckoutCompleted links the local user to the Stripe customer created
// by checkout. The user id comes from session metadata, falling back to the
// created subscription's metadata; if neither resolves, the event is skipped
// silently and the subsequent subscription-updated event heals the linkage.
func (s *Service) handleCheckoutCompleted(_ context.Context, session *stripe.CheckoutSession) error {
	if session.Customer == nil || session.Customer.ID == "" {
		log.Printf("billing: checkout session %s has no customer, skipping", session.ID)
		return nil
	}

	userID := userIDFromMetadata(session.Metadata)
	if userID == 0 && session.Subscription != nil && session.Subscription.ID != "" {
		if subscription, err := s.fetchSubscription(session.Subscription.ID); err != nil {
			log.Printf("billing: subscription lookup for checkout %s failed: %v", session.ID, err)
		} else {
			userID = userIDFromMetadata(subscription.Metadata)
		}
	}
	if userID == 0 {
		log.Printf("billing: checkout session %s carries no user id, skipping", session.ID)
		return nil
	}

	return s.repo.UpsertCustomer(&models.BillingCustomer{
		UserID:           userID,
		StripeCustomerID: session.Customer.ID,
	})
}

// handleSubscriptionUpdated upserts the event's full subscription snapshot.
// Replaying the identical event is a no-op; a canceled record is terminal and
// never revived by a late snapshot.
func (s *Service) handleSubscriptionUpdated(_ context.Context, subscription *stripe.Subscription) error {
	userID, err := s.resolveUser(subscription)
	if err != nil || userID == 0 {
		return err
	}

	existing, err := s.repo.GetSubscriptionByStripeID(subscription.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	if existing != nil && existing.Status == models.BillingStatusCanceled {
		log.Printf("billing: subscription %s is canceled, ignoring late snapshot", subscription.ID)
		return nil
	}

	return s.repo.UpsertSubscription(snapshotOf(subscription, userID))
}

// handleSubscriptionDeleted marks the record canceled with the processing
// time, regardless of its prior status.
func (s *Service) handleSubscriptionDeleted(_ context.Context, subscription *stripe.Subscription) error {
	existing, err := s.repo.GetSubscriptionByStripeID(subscription.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: deleted subscription %s is unknown locally, skipping", subscription.ID)
			return nil
		}
		return err
	}

	existing.Status = models.BillingStatusCanceled
	now := s.now()
	existing.CanceledAt = &now
	return s.repo.SaveSubscription(existing)
}

// handleInvoicePaymentSucceeded flips past_due back to active; any other
// status is left alone (the subscription events own those transitions).
func (s *Service) handleInvoicePaymentSucceeded(_ context.Context, invoice *stripe.Invoice) error {
	record, ok, err := s.subscriptionForInvoice(invoice)
	if err != nil || !ok {
		return err
	}
	if record.Status != models.BillingStatusPastDue {
		return nil
	}
	record.Status = models.BillingStatusActive
	return s.repo.SaveSubscription(record)
}

// handleInvoicePaymentFailed moves the subscription to past_due. Canceled
// stays canceled; it is terminal.
func (s *Service) handleInvoicePaymentFailed(_ context.Context, invoice *stripe.Invoice) error {
	record, ok, err := s.subscriptionForInvoice(invoice)
	if err != nil || !ok {
		return err
	}
	if record.Status == models.BillingStatusCanceled {
		return nil
	}
	record.Status = models.BillingStatusPastDue
	return s.repo.SaveSubscription(record)
}

// resolveUser maps the event's customer id to a local user via the customer
// linkage table. A missing linkage is a race with checkout processing and is
// skip-and-logged; the sender's redelivery or the next lifecycle event heals it.
func (s *Service) resolveUser(subscription *stripe.Subscription) (uint, error) {
	if subscription.Customer == nil || subscription.Customer.ID == "" {
		log.Printf("billing: subscription %s has no customer, skipping", subscription.ID)
		return 0, nil
	}
	customer, err := s.repo.GetCustomerByStripeID(subscription.Customer.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: no local user for customer %s, skipping subscription %s",
				subscription.Customer.ID, subscription.ID)
			return 0, nil
		}
		return 0, err
	}
	return customer.UserID, nil
}

func (s *Service) subscriptionForInvoice(invoice *stripe.Invoice) (*models.BillingSubscription, bool, error) {
	if invoice.Subscription == nil || invoice.Subscription.ID == "" {
		return nil, false, nil
	}
	record, err := s.repo.GetSubscriptionByStripeID(invoice.Subscription.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Printf("billing: invoice %s references unknown subscription %s, skipping",
				invoice.ID, invoice.Subscription.ID)
			return nil, false, nil
		}
		return nil, false, err
	}
	return record, true, nil
}

// snapshotOf maps a Stripe subscription object to the local record shape.
func snapshotOf(subscription *stripe.Subscription, userID uint) *models.BillingSubscription {
	record := &models.BillingSubscription{
		UserID:               userID,
		StripeSubscriptionID: subscription.ID,
		StripeCustomerID:     subscription.Customer.ID,
		Status:               string(subscription.Status),
		CurrentPeriodStart:   unixTime(subscription.CurrentPeriodStart),
		CurrentPeriodEnd:     unixTime(subscription.CurrentPeriodEnd),
		CancelAtPeriodEnd:    subscription.CancelAtPeriodEnd,
		CanceledAt:           unixTime(subscription.CanceledAt),
		TrialStart:           unixTime(subscription.TrialStart),
		TrialEnd:             unixTime(subscription.TrialEnd),
	}
	if subscription.Items != nil && len(subscription.Items.Data) > 0 && subscription.Items.Data[0].Price != nil {
		record.PriceID = subscription.Items.Data[0].Price.ID
	}
	if !models.IsValidBillingStatus(record.Status) {
		record.Status = models.BillingStatusIncomplete
	}
	return record
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0)
	return &t
}

func userIDFromMetadata(metadata map[string]string) uint {
	raw, ok := metadata["user_id"]
	if !ok {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
