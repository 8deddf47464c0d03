// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/nst-ai/lesson-hub/internal/domain/access"
	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/settings"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST CONTENT COMMAND
// Resolves a lesson artifact: cache hit is served free, a miss is gated by the
// access policy, generated remotely, then stored and charged as one unit.
// ══════════════════════════════════════════════════════════════════════════════

// WarningStoreUnavailable is set when the artifact was delivered but not cached.
const WarningStoreUnavailable = "STORE_UNAVAILABLE"

// RequestContentCommand contains the data to resolve a lesson artifact.
type RequestContentCommand struct {
	Selector    curriculum.Selector
	Language    curriculum.Language
	ContentType curriculum.ContentType

	// UserID is the requester whose policy and balance apply.
	UserID shared.UserID

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c RequestContentCommand) Validate() error {
	if err := c.Selector.Validate(); err != nil {
		return err
	}
	if !c.Language.IsValid() {
		return fmt.Errorf("language %q: %w", c.Language, shared.ErrInvalidInput)
	}
	if !c.ContentType.IsRequestable() {
		return shared.ErrUnknownContent
	}
	if c.UserID.IsEmpty() {
		return shared.ErrInvalidUserID
	}
	return nil
}

// RequestContentResult contains the resolved artifact.
type RequestContentResult struct {
	Record *curriculum.ContentRecord
	Key    curriculum.ContentKey

	// CacheHit is true when the artifact came from the store (never charged).
	CacheHit bool

	// SharedGeneration is true when this request joined another requester's
	// in-flight generation and received the artifact free.
	SharedGeneration bool

	// Charged is the number of credits taken (0 for hits and privileged users).
	Charged int

	// Balance is the requester's balance after the request.
	Balance int

	// Warning is WarningStoreUnavailable when the artifact was not cached.
	Warning string
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// BalanceStore is the part of the account repository the orchestrator uses.
type BalanceStore interface {
	GetByID(ctx context.Context, id shared.UserID) (*account.User, error)
	AdjustBalance(ctx context.Context, id shared.UserID, delta int) (int, error)
}

// SettingsSource provides the live system settings (content prices).
type SettingsSource interface {
	Load(ctx context.Context) (*settings.SystemSettings, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// RequestContentHandlerConfig contains configuration for the handler.
type RequestContentHandlerConfig struct {
	// GenerationTimeout bounds a single remote generation.
	GenerationTimeout time.Duration
}

// DefaultRequestContentHandlerConfig returns default configuration.
func DefaultRequestContentHandlerConfig() RequestContentHandlerConfig {
	return RequestContentHandlerConfig{
		GenerationTimeout: 60 * time.Second,
	}
}

// RequestContentHandler is the content orchestrator.
type RequestContentHandler struct {
	store          curriculum.ContentStore
	unitOfWork     curriculum.LessonUnitOfWork
	generator      curriculum.Generator
	accounts       BalanceStore
	settings       SettingsSource
	eventPublisher shared.EventPublisher
	log            *logger.Logger

	flights singleflight.Group
	config  RequestContentHandlerConfig
}

// NewRequestContentHandler creates a new RequestContentHandler.
func NewRequestContentHandler(
	store curriculum.ContentStore,
	unitOfWork curriculum.LessonUnitOfWork,
	generator curriculum.Generator,
	accounts BalanceStore,
	settingsSource SettingsSource,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
	config RequestContentHandlerConfig,
) *RequestContentHandler {
	if config.GenerationTimeout <= 0 {
		config = DefaultRequestContentHandlerConfig()
	}
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &RequestContentHandler{
		store:          store,
		unitOfWork:     unitOfWork,
		generator:      generator,
		accounts:       accounts,
		settings:       settingsSource,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("orchestrator")),
		config:         config,
	}
}

// flightResult is what one generation produces for everyone waiting on it.
type flightResult struct {
	record  *curriculum.ContentRecord
	balance int
	charged int
	warning string
	latency time.Duration
}

// Handle executes the request content command.
func (h *RequestContentHandler) Handle(ctx context.Context, cmd RequestContentCommand) (*RequestContentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("request_content: validation failed: %w", err)
	}

	sel := cmd.Selector.Normalize()
	key := curriculum.ComposeKey(sel, cmd.Language, cmd.ContentType)
	log := h.log.With(
		logger.ContentKey(key.String()),
		logger.UserID(cmd.UserID.String()),
		logger.ContentType(string(cmd.ContentType)),
	)

	h.publish(shared.WithCorrelation(shared.NewContentRequestedEvent(key.String(), cmd.UserID.String(), string(cmd.ContentType)), cmd.CorrelationID))

	// 1. Cache lookup. Hits are free: no policy, no charge.
	if rec, ok := h.lookup(ctx, key, log); ok {
		h.publish(shared.WithCorrelation(shared.NewContentCacheHitEvent(key.String(), cmd.UserID.String()), cmd.CorrelationID))
		log.Debug("content served from cache")

		balance := -1
		if u, err := h.accounts.GetByID(ctx, cmd.UserID); err == nil {
			balance = u.Credits
		}
		return &RequestContentResult{Record: rec, Key: key, CacheHit: true, Balance: balance}, nil
	}

	// 2. Policy on miss.
	user, err := h.accounts.GetByID(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("request_content: load requester: %w", err)
	}
	costs, err := h.settings.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("request_content: load settings: %w", err)
	}
	grant := access.NewEvaluator(costs).Evaluate(user.Requester(), cmd.ContentType)
	if !grant.Allowed {
		h.publish(shared.WithCorrelation(shared.NewContentAccessDeniedEvent(key.String(), cmd.UserID.String(), string(grant.Reason)), cmd.CorrelationID))
		log.Info("content request denied", logger.String("reason", string(grant.Reason)), logger.Credits(user.Credits))
		return nil, fmt.Errorf("request_content: %w", grant.Err())
	}

	// 3. Generate, store and charge. Identical concurrent misses share one generation.
	req := curriculum.GenerationRequest{Selector: sel, Language: cmd.Language, ContentType: cmd.ContentType}
	res, leader, err := h.generateShared(ctx, key, req, user, grant)
	if err != nil {
		reason := curriculum.FailureReasonOf(err)
		if shared.IsGenerationFailed(err) {
			h.publish(shared.WithCorrelation(shared.NewContentGenerationFailedEvent(key.String(), cmd.UserID.String(), string(reason)), cmd.CorrelationID))
			log.Warn("content generation failed", logger.String("reason", string(reason)), logger.Err(err))
		} else {
			log.Error("content request failed", logger.Err(err))
		}
		return nil, fmt.Errorf("request_content: %w", err)
	}

	result := &RequestContentResult{
		Record:           res.record.Clone(),
		Key:              key,
		SharedGeneration: !leader,
		Warning:          res.warning,
		Balance:          user.Credits,
	}
	if leader {
		result.Charged = res.charged
		result.Balance = res.balance
		h.publish(shared.WithCorrelation(shared.NewContentGeneratedEvent(key.String(), cmd.UserID.String(), string(cmd.ContentType), res.latency, res.warning == ""), cmd.CorrelationID))
		if res.charged > 0 {
			h.publish(shared.WithCorrelation(shared.NewCreditsChargedEvent(cmd.UserID.String(), res.charged, res.balance, key.String()), cmd.CorrelationID))
		}
		log.Info("content generated",
			logger.Latency(res.latency),
			logger.Int("charged", res.charged),
			logger.Credits(res.balance),
			logger.Bool("persisted", res.warning == ""),
		)
	}
	return result, nil
}

// lookup treats every store read error as a miss.
func (h *RequestContentHandler) lookup(ctx context.Context, key curriculum.ContentKey, log *logger.Logger) (*curriculum.ContentRecord, bool) {
	rec, err := h.store.Get(ctx, key)
	if err == nil && rec != nil {
		return rec, true
	}
	if err != nil && !shared.IsNotFound(err) {
		log.Warn("content store read failed, treating as miss", logger.Err(err))
	}
	return nil, false
}

// errRequesterGone marks a flight that stopped because its leader's context
// ended. Followers with time left start a new flight.
var errRequesterGone = errors.New("requester went away")

// generateShared joins or leads the flight for key. The leader is the caller
// whose closure ran; only the leader is charged. A leader never abandons its
// flight: generateAndStore stops on ctx before persisting, and once the
// store+charge unit has started its outcome is the caller's outcome.
func (h *RequestContentHandler) generateShared(
	ctx context.Context,
	key curriculum.ContentKey,
	req curriculum.GenerationRequest,
	user *account.User,
	grant access.AccessGrant,
) (*flightResult, bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		var leader atomic.Bool
		ch := h.flights.DoChan(string(key), func() (any, error) {
			leader.Store(true)
			return h.generateAndStore(ctx, key, req, user, grant)
		})

		var r singleflight.Result
		select {
		case r = <-ch:
		case <-ctx.Done():
			if !leader.Load() {
				return nil, false, curriculum.NewGenerationFailure(curriculum.FailureReasonOf(ctx.Err()), ctx.Err())
			}
			r = <-ch
		}

		if r.Err != nil {
			if !leader.Load() && errors.Is(r.Err, errRequesterGone) && ctx.Err() == nil {
				continue
			}
			return nil, leader.Load(), r.Err
		}
		return r.Val.(*flightResult), leader.Load(), nil
	}
	return nil, false, curriculum.NewGenerationFailure(curriculum.FailureUpstream, errors.New("shared generation was abandoned twice"))
}

// requesterGone reports the caller's context error as a generation failure.
func requesterGone(ctx context.Context) error {
	return curriculum.NewGenerationFailure(curriculum.FailureReasonOf(ctx.Err()),
		fmt.Errorf("%w: %w", errRequesterGone, ctx.Err()))
}

// generateAndStore runs the remote generation and the store+charge unit.
func (h *RequestContentHandler) generateAndStore(
	ctx context.Context,
	key curriculum.ContentKey,
	req curriculum.GenerationRequest,
	user *account.User,
	grant access.AccessGrant,
) (*flightResult, error) {
	start := time.Now()

	genCtx, cancel := context.WithTimeout(ctx, h.config.GenerationTimeout)
	defer cancel()

	rec, err := h.generator.Generate(genCtx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, requesterGone(ctx)
		}
		if genCtx.Err() != nil {
			return nil, curriculum.NewGenerationFailure(curriculum.FailureTimeout, err)
		}
		var gf *curriculum.GenerationFailure
		if errors.As(err, &gf) {
			return nil, err
		}
		return nil, curriculum.NewGenerationFailure(curriculum.FailureReasonOf(err), err)
	}

	record := h.stamp(rec, key, req)
	if err := record.Validate(); err != nil {
		return nil, curriculum.NewGenerationFailure(curriculum.FailureEmptyResponse, err)
	}
	latency := time.Since(start)

	// A caller that left before the store+charge unit is neither stored nor
	// charged. Once the unit starts it runs to completion and its result is
	// returned to the caller.
	if ctx.Err() != nil {
		return nil, requesterGone(ctx)
	}
	persistCtx := context.WithoutCancel(ctx)
	charged := -grant.CreditDelta

	balance, err := h.unitOfWork.PutAndCharge(persistCtx, record, user.ID, grant.CreditDelta)
	if err == nil {
		return &flightResult{record: record, balance: balance, charged: charged, latency: latency}, nil
	}
	if !shared.IsStoreUnavailable(err) {
		return nil, fmt.Errorf("store and charge: %w", err)
	}

	// Store half failed: deliver uncached, but charge exactly when delivering.
	h.log.Warn("content store write failed, delivering uncached",
		logger.ContentKey(key.String()), logger.Err(err))
	balance = user.Credits
	if grant.CreditDelta != 0 {
		balance, err = h.accounts.AdjustBalance(persistCtx, user.ID, grant.CreditDelta)
		if err != nil {
			return nil, fmt.Errorf("charge after store failure: %w", err)
		}
	}
	return &flightResult{
		record:  record,
		balance: balance,
		charged: charged,
		warning: WarningStoreUnavailable,
		latency: latency,
	}, nil
}

// stamp fills the fields owned by the orchestrator.
func (h *RequestContentHandler) stamp(rec *curriculum.ContentRecord, key curriculum.ContentKey, req curriculum.GenerationRequest) *curriculum.ContentRecord {
	out := rec.Clone()
	if out == nil {
		out = &curriculum.ContentRecord{}
	}
	out.ID = uuid.NewString()
	out.Key = key
	out.ContentType = req.ContentType
	out.Language = req.Language
	out.Selector = req.Selector
	out.Source = curriculum.SourceGenerated
	out.CreatedAt = time.Now().UTC()
	if strings.TrimSpace(out.Subtitle) == "" {
		out.Subtitle = req.ContentType.Label()
	}
	if strings.TrimSpace(out.SubjectName) == "" {
		out.SubjectName = req.Selector.Subject
	}
	if strings.TrimSpace(out.Title) == "" {
		out.Title = req.Selector.Chapter
	}
	return out
}

func (h *RequestContentHandler) publish(event shared.Event) {
	if err := h.eventPublisher.Publish(event); err != nil {
		h.log.Warn("failed to publish event", logger.String("event_type", string(event.EventType())), logger.Err(err))
	}
}
