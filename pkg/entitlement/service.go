package entitlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vuraweg/prepgate/pkg/observability"
	"github.com/vuraweg/prepgate/pkg/payment"
)

// DefaultDuration is the canonical paid-access window.
const DefaultDuration = time.Hour

// Service is the entitlement engine over a Store. Opposite polarity to
// the rate limiter: any store failure on the read path fails CLOSED — an
// unreadable grant store means "not entitled".
type Service struct {
	store           Store
	verifier        payment.Verifier
	defaultDuration time.Duration
	logger          *observability.Logger
	metrics         *observability.Metrics
	now             func() time.Time
}

// NewService creates the entitlement service. Metrics may be nil;
// defaultDuration <= 0 selects the canonical one hour.
func NewService(store Store, verifier payment.Verifier, defaultDuration time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Service{
		store:           store,
		verifier:        verifier,
		defaultDuration: defaultDuration,
		logger:          logger.WithComponent("entitlement"),
		metrics:         metrics,
		now:             time.Now,
	}
}

// Create writes a grant after checking the payment confirmation is
// well-formed. duration <= 0 selects the default window.
func (s *Service) Create(ctx context.Context, userID, resourceID string, duration time.Duration, conf payment.Confirmation) (Grant, error) {
	if userID == "" || resourceID == "" {
		return Grant{}, fmt.Errorf("user and resource are required")
	}
	if err := s.verifier.Verify(conf); err != nil {
		return Grant{}, fmt.Errorf("payment confirmation rejected: %w", err)
	}
	if duration <= 0 {
		duration = s.defaultDuration
	}

	now := s.now()
	grant := Grant{
		ID:          uuid.NewString(),
		UserID:      userID,
		ResourceID:  resourceID,
		StartsAt:    now,
		ExpiresAt:   now.Add(duration),
		PaymentRef:  conf.Ref,
		AmountCents: conf.AmountCents,
	}
	if err := s.store.Insert(ctx, grant); err != nil {
		return Grant{}, fmt.Errorf("failed to store grant: %w", err)
	}

	if s.metrics != nil {
		kind := "paid"
		if conf.AmountCents == 0 {
			kind = "coupon"
		}
		s.metrics.GrantsCreatedTotal.WithLabelValues(kind).Inc()
		s.metrics.GrantAmountCentsTotal.Add(float64(conf.AmountCents))
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id":     userID,
		"resource_id": resourceID,
		"expires_at":  grant.ExpiresAt,
	}).Info("Entitlement granted")
	return grant, nil
}

// Check recomputes validity for the pair from the newest grant's expiry.
// Store errors are logged and denied (fail closed); the returned error
// carries the cause for observability, but Valid is already false.
func (s *Service) Check(ctx context.Context, userID, resourceID string) (Verdict, error) {
	grant, err := s.store.Newest(ctx, userID, resourceID)
	if err != nil {
		s.failClosed(err)
		return Verdict{}, fmt.Errorf("grant store unavailable: %w", err)
	}
	if grant == nil {
		s.observe("none")
		return Verdict{}, nil
	}

	now := s.now()
	verdict := Verdict{
		Valid:     grant.Valid(now),
		Grant:     grant,
		Remaining: grant.Remaining(now),
	}
	if verdict.Valid {
		s.observe("valid")
	} else {
		s.observe("expired")
	}
	return verdict, nil
}

// Remaining returns the time left on the newest valid grant for the
// pair; (0, false) when none.
func (s *Service) Remaining(ctx context.Context, userID, resourceID string) (time.Duration, bool) {
	verdict, err := s.Check(ctx, userID, resourceID)
	if err != nil || !verdict.Valid {
		return 0, false
	}
	return verdict.Remaining, true
}

// ListByUser returns the user's grant history, newest first.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Grant, error) {
	grants, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list grants: %w", err)
	}
	return grants, nil
}

func (s *Service) failClosed(err error) {
	s.logger.WithError(err).Error("Grant store unavailable, denying access")
	if s.metrics != nil {
		s.metrics.EntitlementStoreErrors.Inc()
		s.metrics.EntitlementChecksTotal.WithLabelValues("error").Inc()
	}
}

func (s *Service) observe(verdict string) {
	if s.metrics != nil {
		s.metrics.EntitlementChecksTotal.WithLabelValues(verdict).Inc()
	}
}
