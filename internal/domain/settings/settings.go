// Package settings содержит системные настройки, которые оператор меняет
// во время работы: режим обслуживания, регистрация, бонусы, цены контента.
package settings

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// DefaultContentCost - цена для типа, которого нет в таблице.
const DefaultContentCost = 1

// SystemSettings - агрегат системных настроек.
type SystemSettings struct {
	AppName         string                         `toml:"app_name" json:"app_name"`
	MaintenanceMode bool                           `toml:"maintenance_mode" json:"maintenance_mode"`
	AllowSignup     bool                           `toml:"allow_signup" json:"allow_signup"`
	SignupBonus     int                            `toml:"signup_bonus" json:"signup_bonus"`
	DailyReward     int                            `toml:"daily_reward" json:"daily_reward"`
	ChatCost        int                            `toml:"chat_cost" json:"chat_cost"`
	AllowedClasses  []int                          `toml:"allowed_classes" json:"allowed_classes"`
	ContentCosts    map[curriculum.ContentType]int `toml:"content_costs" json:"content_costs"`
}

// Defaults возвращает настройки первого запуска.
func Defaults() *SystemSettings {
	return &SystemSettings{
		AppName:        "NST",
		AllowSignup:    true,
		SignupBonus:    2,
		DailyReward:    3,
		ChatCost:       1,
		AllowedClasses: []int{6, 7, 8, 9, 10, 11, 12},
		ContentCosts: map[curriculum.ContentType]int{
			curriculum.ContentNotesSimple:  1,
			curriculum.ContentExplanation:  1,
			curriculum.ContentMCQ:          1,
			curriculum.ContentAudioScript:  2,
			curriculum.ContentNotesPremium: 3,
			curriculum.ContentPDFNotes:     3,
		},
	}
}

// Cost реализует access.CostTable.
func (s *SystemSettings) Cost(ct curriculum.ContentType) int {
	if c, ok := s.ContentCosts[ct]; ok {
		return c
	}
	return DefaultContentCost
}

// IsClassAllowed - предлагается ли класс.
func (s *SystemSettings) IsClassAllowed(level int) bool {
	return slices.Contains(s.AllowedClasses, level)
}

// Clone возвращает глубокую копию.
func (s *SystemSettings) Clone() *SystemSettings {
	c := *s
	c.AllowedClasses = slices.Clone(s.AllowedClasses)
	c.ContentCosts = make(map[curriculum.ContentType]int, len(s.ContentCosts))
	for k, v := range s.ContentCosts {
		c.ContentCosts[k] = v
	}
	return &c
}

// Validate собирает все ошибки настроек.
func (s *SystemSettings) Validate() error {
	var errs []string

	if strings.TrimSpace(s.AppName) == "" {
		errs = append(errs, "app_name is required")
	}
	if s.SignupBonus < 0 {
		errs = append(errs, "signup_bonus cannot be negative")
	}
	if s.DailyReward < 0 {
		errs = append(errs, "daily_reward cannot be negative")
	}
	if s.ChatCost < 0 {
		errs = append(errs, "chat_cost cannot be negative")
	}
	if len(s.AllowedClasses) == 0 {
		errs = append(errs, "allowed_classes cannot be empty")
	}
	for _, c := range s.AllowedClasses {
		if c < curriculum.MinClassLevel || c > curriculum.MaxClassLevel {
			errs = append(errs, fmt.Sprintf("allowed class %d out of range", c))
		}
	}
	for ct, cost := range s.ContentCosts {
		if !ct.IsRequestable() {
			errs = append(errs, fmt.Sprintf("unknown content type %q in content_costs", ct))
		}
		if cost < 0 {
			errs = append(errs, fmt.Sprintf("cost of %s cannot be negative", ct))
		}
	}

	if len(errs) > 0 {
		slices.Sort(errs)
		return shared.NewDomainError("settings", "Validate", shared.ErrValidation,
			"invalid settings:\n  - "+strings.Join(errs, "\n  - "))
	}
	return nil
}

// Repository - хранилище настроек.
type Repository interface {
	// Load возвращает сохранённые настройки или Defaults(), если их ещё нет.
	Load(ctx context.Context) (*SystemSettings, error)
	// Save сохраняет настройки целиком.
	Save(ctx context.Context, s *SystemSettings) error
}
