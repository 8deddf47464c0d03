package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

func TestDefaults(t *testing.T) {
	s := Defaults()

	assert.NoError(t, s.Validate())
	assert.Equal(t, 2, s.SignupBonus)
	assert.Equal(t, 1, s.Cost(curriculum.ContentNotesSimple))
	assert.Equal(t, 3, s.Cost(curriculum.ContentNotesPremium))
	assert.True(t, s.IsClassAllowed(6))
	assert.False(t, s.IsClassAllowed(5))
}

func TestCostFallsBackToDefault(t *testing.T) {
	s := Defaults()
	delete(s.ContentCosts, curriculum.ContentMCQ)
	assert.Equal(t, DefaultContentCost, s.Cost(curriculum.ContentMCQ))
}

func TestCloneIsDeep(t *testing.T) {
	s := Defaults()
	c := s.Clone()
	c.ContentCosts[curriculum.ContentMCQ] = 9
	c.AllowedClasses[0] = 1

	assert.Equal(t, 1, s.Cost(curriculum.ContentMCQ))
	assert.Equal(t, 6, s.AllowedClasses[0])
}

func TestValidateCollectsErrors(t *testing.T) {
	s := Defaults()
	s.AppName = ""
	s.SignupBonus = -1
	s.AllowedClasses = []int{13}

	err := s.Validate()
	assert.ErrorIs(t, err, shared.ErrValidation)
	assert.Contains(t, err.Error(), "app_name is required")
	assert.Contains(t, err.Error(), "signup_bonus cannot be negative")
	assert.Contains(t, err.Error(), "allowed class 13 out of range")
}
