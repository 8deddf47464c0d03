package toml

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/settings"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

func TestSettingsRepository_MissingFileGivesDefaults(t *testing.T) {
	repo, err := NewSettingsRepository(filepath.Join(t.TempDir(), "settings.toml"))
	require.NoError(t, err)

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(settings.Defaults(), got); diff != "" {
		t.Errorf("defaults mismatch (-want +got):\n%s", diff)
	}
}

func TestSettingsRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "conf", "settings.toml")
	repo, err := NewSettingsRepository(path)
	require.NoError(t, err)

	s := settings.Defaults()
	s.MaintenanceMode = true
	s.SignupBonus = 10
	s.AllowedClasses = []int{9, 10}
	s.ContentCosts[curriculum.ContentMCQ] = 4
	require.NoError(t, repo.Save(ctx, s))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "maintenance_mode = true")
	assert.Contains(t, string(raw), "MCQ = 4")

	got, err := repo.Load(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(s, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestSettingsRepository_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte("app_name = \"NST Pilot\"\n[content_costs]\nPDF_NOTES = 5\n"), 0o644))

	repo, err := NewSettingsRepository(path)
	require.NoError(t, err)

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "NST Pilot", got.AppName)
	assert.Equal(t, 5, got.Cost(curriculum.ContentPDFNotes))
	assert.Equal(t, 1, got.Cost(curriculum.ContentNotesSimple))
	assert.Equal(t, 3, got.DailyReward)
	assert.True(t, got.AllowSignup)
}

func TestSettingsRepository_RejectsInvalid(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.toml")
	repo, err := NewSettingsRepository(path)
	require.NoError(t, err)

	s := settings.Defaults()
	s.SignupBonus = -1
	assert.ErrorIs(t, repo.Save(ctx, s), shared.ErrValidation)

	require.NoError(t, os.WriteFile(path, []byte("allowed_classes = [13]\n"), 0o644))
	_, err = repo.Load(ctx)
	assert.ErrorIs(t, err, shared.ErrValidation)

	require.NoError(t, os.WriteFile(path, []byte("version = 9\n"), 0o644))
	_, err = repo.Load(ctx)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("app_name = \n"), 0o644))
	_, err = repo.Load(ctx)
	assert.Error(t, err)
}
