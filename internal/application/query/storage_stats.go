// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/pkg/logger"
	"github.com/nst-ai/lesson-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE STATS QUERY
// Сводка по хранилищу контента для панели администратора:
// сколько артефактов, какого типа и сколько примерно занимают.
// ══════════════════════════════════════════════════════════════════════════════

// StorageStatsQuery - параметров нет, запрос всегда по всему хранилищу.
type StorageStatsQuery struct{}

// TypeStatsDTO - статистика по одному типу контента.
type TypeStatsDTO struct {
	ContentType string `json:"content_type"`
	Label       string `json:"label"`
	Count       int    `json:"count"`
	Bytes       int64  `json:"bytes"`
}

// StorageStatsDTO - итоговая статистика.
type StorageStatsDTO struct {
	// TotalItems - количество артефактов уроков (без оглавлений).
	TotalItems int `json:"total_items"`

	// ChapterIndexes - количество закэшированных оглавлений.
	ChapterIndexes int `json:"chapter_indexes"`

	// TotalBytes - приблизительный размер.
	TotalBytes int64 `json:"total_bytes"`

	// FormattedSize - размер для человека ("12.4 KB").
	FormattedSize string `json:"formatted_size"`

	// ManualOverrides - сколько записей перезаписано оператором.
	ManualOverrides int `json:"manual_overrides"`

	// ByType - разбивка по типам, отсортирована по убыванию количества.
	ByType []TypeStatsDTO `json:"by_type"`

	// LastUpdated - время самой свежей записи.
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
	LastUpdatedText string     `json:"last_updated_text,omitempty"`

	// Unreadable - ключи, которые не удалось прочитать.
	Unreadable int `json:"unreadable"`
}

// StorageStatsHandler обрабатывает запрос статистики.
type StorageStatsHandler struct {
	store curriculum.ContentStore
	clock timeutil.Clock
	log   *logger.Logger
}

// NewStorageStatsHandler создаёт обработчик.
func NewStorageStatsHandler(store curriculum.ContentStore, clock timeutil.Clock, log *logger.Logger) *StorageStatsHandler {
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &StorageStatsHandler{store: store, clock: clock, log: log.With(logger.Component("storage_stats"))}
}

// Handle выполняет запрос.
func (h *StorageStatsHandler) Handle(ctx context.Context, _ StorageStatsQuery) (*StorageStatsDTO, error) {
	keys, err := h.store.Enumerate(ctx, curriculum.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("storage_stats: enumerate: %w", err)
	}
	indexes, err := h.store.Enumerate(ctx, curriculum.ChapterIndexPrefix)
	if err != nil {
		return nil, fmt.Errorf("storage_stats: enumerate chapters: %w", err)
	}

	dto := &StorageStatsDTO{ChapterIndexes: len(indexes)}
	byType := make(map[curriculum.ContentType]*TypeStatsDTO)
	var latest time.Time

	for _, key := range keys {
		rec, err := h.store.Get(ctx, key)
		if err != nil {
			dto.Unreadable++
			h.log.Debug("storage stats: skip unreadable key", logger.ContentKey(key.String()), logger.Err(err))
			continue
		}

		size := int64(rec.Size())
		dto.TotalItems++
		dto.TotalBytes += size
		if rec.Source == curriculum.SourceManual {
			dto.ManualOverrides++
		}
		if rec.CreatedAt.After(latest) {
			latest = rec.CreatedAt
		}

		ts, ok := byType[rec.ContentType]
		if !ok {
			ts = &TypeStatsDTO{ContentType: string(rec.ContentType), Label: rec.ContentType.Label()}
			byType[rec.ContentType] = ts
		}
		ts.Count++
		ts.Bytes += size
	}

	for _, ts := range byType {
		dto.ByType = append(dto.ByType, *ts)
	}
	sort.Slice(dto.ByType, func(i, j int) bool {
		if dto.ByType[i].Count != dto.ByType[j].Count {
			return dto.ByType[i].Count > dto.ByType[j].Count
		}
		return dto.ByType[i].ContentType < dto.ByType[j].ContentType
	})

	dto.FormattedSize = FormatBytes(dto.TotalBytes)
	if !latest.IsZero() {
		dto.LastUpdated = &latest
		dto.LastUpdatedText = timeutil.FormatRelative(latest, h.clock.Now())
	}
	return dto, nil
}

// FormatBytes форматирует размер в B/KB/MB.
func FormatBytes(n int64) string {
	switch {
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.2f MB", float64(n)/(1024*1024))
	}
}
