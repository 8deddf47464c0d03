package command

import (
	"context"
	"fmt"

	"github.com/nst-ai/lesson-hub/internal/domain/settings"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
	"github.com/nst-ai/lesson-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE SETTINGS COMMAND
// Replaces the system settings. Prices take effect on the next miss.
// ══════════════════════════════════════════════════════════════════════════════

// UpdateSettingsCommand contains the full replacement settings.
type UpdateSettingsCommand struct {
	OperatorID shared.UserID
	Settings   *settings.SystemSettings

	CorrelationID string
}

// UpdateSettingsHandler handles UpdateSettingsCommand.
type UpdateSettingsHandler struct {
	repo           settings.Repository
	operators      OperatorDirectory
	eventPublisher shared.EventPublisher
	log            *logger.Logger
}

// NewUpdateSettingsHandler creates a new UpdateSettingsHandler.
func NewUpdateSettingsHandler(
	repo settings.Repository,
	operators OperatorDirectory,
	eventPublisher shared.EventPublisher,
	log *logger.Logger,
) *UpdateSettingsHandler {
	if eventPublisher == nil {
		eventPublisher = shared.NopPublisher{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &UpdateSettingsHandler{
		repo:           repo,
		operators:      operators,
		eventPublisher: eventPublisher,
		log:            log.With(logger.Component("update_settings")),
	}
}

// Handle validates and persists the settings.
func (h *UpdateSettingsHandler) Handle(ctx context.Context, cmd UpdateSettingsCommand) (*settings.SystemSettings, error) {
	if cmd.Settings == nil {
		return nil, fmt.Errorf("update_settings: %w", shared.ErrInvalidInput)
	}
	if err := cmd.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("update_settings: %w", err)
	}
	if err := requireAdmin(ctx, h.operators, cmd.OperatorID); err != nil {
		return nil, fmt.Errorf("update_settings: %w", err)
	}

	next := cmd.Settings.Clone()
	if err := h.repo.Save(ctx, next); err != nil {
		return nil, fmt.Errorf("update_settings: save: %w", err)
	}

	event := shared.WithCorrelation(shared.NewSettingsUpdatedEvent(cmd.OperatorID.String(), next.MaintenanceMode), cmd.CorrelationID)
	if err := h.eventPublisher.Publish(event); err != nil {
		h.log.Warn("failed to publish event", logger.Err(err))
	}
	h.log.Info("system settings updated", logger.Bool("maintenance", next.MaintenanceMode))
	return next, nil
}
