package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nst-ai/lesson-hub/internal/domain/account"
	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// OVERWRITE CONTENT COMMAND
// Operator override: writes a hand-edited artifact under the same key the
// orchestrator would use. Never charged, never generated. Last write wins.
// ══════════════════════════════════════════════════════════════════════════════

// OverwriteContentCommand contains the replacement artifact.
type OverwriteContentCommand struct {
	Selector    curriculum.Selector
	Language    curriculum.Language
	ContentType curriculum.ContentType

	Title    string
	Subtitle string
	Body     string

	// OperatorID must belong to an ADMIN account.
	OperatorID shared.UserID

	CorrelationID string
}

// Validate validates the command.
func (c OverwriteContentCommand) Validate() error {
	if err := c.Selector.Validate(); err != nil {
		return err
	}
	if !c.Language.IsValid() {
		return fmt.Errorf("language %q: %w", c.Language, shared.ErrInvalidInput)
	}
	if !c.ContentType.IsRequestable() {
		return shared.ErrUnknownContent
	}
	if strings.TrimSpace(c.Body) == "" {
		return shared.ErrEmptyContentBody
	}
	if c.OperatorID.IsEmpty() {
		return shared.ErrInvalidUserID
	}
	return nil
}

// OverwriteContentResult contains the stored record.
type OverwriteContentResult struct {
	Record *curriculum.ContentRecord

	// Replaced is true when a previous artifact existed under the key.
	Replaced bool
}

// OperatorDirectory resolves operator accounts.
type OperatorDirectory interface {
	GetByID(ctx context.Context, id shared.UserID) (*account.User, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// OverwriteContentHandler handles OverwriteContentCommand.
type OverwriteContentHandler struct {
	store          curriculum.ContentStore
	operators      OperatorDirectory
	eventPublisher shared.EventPublisher
	log            *logger.Logger
}

// NewOverwriteContentHandler creates a new OverwriteContentHandler.
func NewOverwriteContentHandler(
	store curriculum.ContentStore,
	operators OperatorDirectory,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *OverwriteContentHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &OverwriteContentHandler{
		store:          store,
		operators:      operators,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("overwrite_content")),
	}
}

// Handle executes the overwrite.
func (h *OverwriteContentHandler) Handle(ctx context.Context, cmd OverwriteContentCommand) (*OverwriteContentResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("overwrite_content: validation failed: %w", err)
	}

	op, err := h.operators.GetByID(ctx, cmd.OperatorID)
	if err != nil {
		return nil, fmt.Errorf("overwrite_content: load operator: %w", err)
	}
	if !op.IsAdmin() {
		return nil, fmt.Errorf("overwrite_content: %w", shared.ErrNotAdmin)
	}

	sel := cmd.Selector.Normalize()
	key := curriculum.ComposeKey(sel, cmd.Language, cmd.ContentType)

	replaced := false
	if _, err := h.store.Get(ctx, key); err == nil {
		replaced = true
	}

	title := strings.TrimSpace(cmd.Title)
	if title == "" {
		title = sel.Chapter
	}
	subtitle := strings.TrimSpace(cmd.Subtitle)
	if subtitle == "" {
		subtitle = cmd.ContentType.Label()
	}

	record := &curriculum.ContentRecord{
		ID:          uuid.NewString(),
		Key:         key,
		Title:       title,
		Subtitle:    subtitle,
		Body:        cmd.Body,
		ContentType: cmd.ContentType,
		Language:    cmd.Language,
		SubjectName: sel.Subject,
		Selector:    sel,
		Source:      curriculum.SourceManual,
		CreatedAt:   time.Now().UTC(),
	}

	if err := h.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("overwrite_content: store: %w", err)
	}

	event := shared.WithCorrelation(shared.NewContentOverwrittenEvent(key.String(), cmd.OperatorID.String(), title), cmd.CorrelationID)
	if err := h.eventPublisher.Publish(event); err != nil {
		h.log.Warn("failed to publish event", logger.Err(err))
	}

	h.log.Info("content overwritten",
		logger.ContentKey(key.String()),
		logger.UserID(cmd.OperatorID.String()),
		logger.Bool("replaced", replaced),
	)

	return &OverwriteContentResult{Record: record, Replaced: replaced}, nil
}
