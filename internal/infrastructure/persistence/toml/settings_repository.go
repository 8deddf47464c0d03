// Package toml stores system settings in a TOML file that operators can also
// edit by hand.
package toml

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/settings"
)

const (
	schemaVersion    = 1
	settingsDirMode  = 0o755
	settingsFileMode = 0o644
	tempFilePattern  = "settings-*.toml"
)

var (
	lockRegistryMu sync.Mutex
	pathLockMap    = map[string]*sync.RWMutex{}
)

// SettingsRepository implements settings.Repository over one TOML file.
type SettingsRepository struct {
	path string
	mu   *sync.RWMutex
}

// NewSettingsRepository creates a repository for path. Repositories on the
// same path share a lock.
func NewSettingsRepository(path string) (*SettingsRepository, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}
	abs = filepath.Clean(abs)
	return &SettingsRepository{path: abs, mu: lockForPath(abs)}, nil
}

// Path returns the resolved file path.
func (r *SettingsRepository) Path() string { return r.path }

type fileSchema struct {
	Version         int            `toml:"version"`
	AppName         string         `toml:"app_name"`
	MaintenanceMode bool           `toml:"maintenance_mode"`
	AllowSignup     bool           `toml:"allow_signup"`
	SignupBonus     int            `toml:"signup_bonus"`
	DailyReward     int            `toml:"daily_reward"`
	ChatCost        int            `toml:"chat_cost"`
	AllowedClasses  []int          `toml:"allowed_classes"`
	ContentCosts    map[string]int `toml:"content_costs"`
}

// Load implements settings.Repository. A missing file yields defaults;
// keys absent from the file keep their default values.
func (r *SettingsRepository) Load(_ context.Context) (*settings.SystemSettings, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return settings.Defaults(), nil
		}
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	file := toSchema(settings.Defaults())
	file.ContentCosts = nil
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode settings file: %w", err)
	}
	if file.Version > schemaVersion {
		return nil, fmt.Errorf("settings file version %d is newer than supported %d", file.Version, schemaVersion)
	}

	s := fromSchema(file)
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings file %s: %w", r.path, err)
	}
	return s, nil
}

// Save implements settings.Repository with an atomic replace.
func (r *SettingsRepository) Save(_ context.Context, s *settings.SystemSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(r.path), settingsDirMode); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	data, err := toml.Marshal(toSchema(s))
	if err != nil {
		return fmt.Errorf("encode settings file: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(r.path), tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp settings file: %w", err)
	}

	tempName := tempFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tempName)
		}
	}()

	if _, err := tempFile.Write(data); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp settings file: %w", err)
	}
	if err := tempFile.Chmod(settingsFileMode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp settings file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp settings file: %w", err)
	}
	if err := os.Rename(tempName, r.path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}

	cleanup = false
	return nil
}

func lockForPath(path string) *sync.RWMutex {
	lockRegistryMu.Lock()
	defer lockRegistryMu.Unlock()

	if mu, ok := pathLockMap[path]; ok {
		return mu
	}
	mu := &sync.RWMutex{}
	pathLockMap[path] = mu
	return mu
}

func toSchema(s *settings.SystemSettings) fileSchema {
	costs := make(map[string]int, len(s.ContentCosts))
	for ct, c := range s.ContentCosts {
		costs[string(ct)] = c
	}
	return fileSchema{
		Version:         schemaVersion,
		AppName:         s.AppName,
		MaintenanceMode: s.MaintenanceMode,
		AllowSignup:     s.AllowSignup,
		SignupBonus:     s.SignupBonus,
		DailyReward:     s.DailyReward,
		ChatCost:        s.ChatCost,
		AllowedClasses:  append([]int(nil), s.AllowedClasses...),
		ContentCosts:    costs,
	}
}

func fromSchema(f fileSchema) *settings.SystemSettings {
	s := &settings.SystemSettings{
		AppName:         f.AppName,
		MaintenanceMode: f.MaintenanceMode,
		AllowSignup:     f.AllowSignup,
		SignupBonus:     f.SignupBonus,
		DailyReward:     f.DailyReward,
		ChatCost:        f.ChatCost,
		AllowedClasses:  f.AllowedClasses,
		ContentCosts:    settings.Defaults().ContentCosts,
	}
	for ct, c := range f.ContentCosts {
		s.ContentCosts[curriculum.ContentType(ct)] = c
	}
	return s
}

var _ settings.Repository = (*SettingsRepository)(nil)
