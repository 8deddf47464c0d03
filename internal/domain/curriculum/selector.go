// Package curriculum содержит доменную модель учебной программы:
// селектор (board → class → stream → subject → chapter), типы контента,
// записи контента и канонический ключ кэша.
// Здесь нет внешних зависимостей.
package curriculum

import (
	"fmt"
	"strings"

	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LANGUAGE
// ══════════════════════════════════════════════════════════════════════════════

// Language - язык, на котором генерируется урок.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
)

// IsValid проверяет, что язык поддерживается.
func (l Language) IsValid() bool {
	return l == LanguageEnglish || l == LanguageHindi
}

// DisplayName возвращает название языка для промптов.
func (l Language) DisplayName() string {
	if l == LanguageHindi {
		return "Hindi"
	}
	return "English"
}

// hindiBoards - доски, для которых по умолчанию выбирается хинди.
var hindiBoards = map[string]struct{}{
	"bseb": {},
}

// LanguageForBoard возвращает язык по умолчанию для доски.
func LanguageForBoard(board string) Language {
	if _, ok := hindiBoards[NormalizeText(board)]; ok {
		return LanguageHindi
	}
	return LanguageEnglish
}

// ══════════════════════════════════════════════════════════════════════════════
// SELECTOR
// ══════════════════════════════════════════════════════════════════════════════

const (
	MinClassLevel = 1
	MaxClassLevel = 12
)

// IsStreamedClass - только 11 и 12 классы выбирают поток (science/commerce/arts).
func IsStreamedClass(level int) bool {
	return level == 11 || level == 12
}

// Selector - неизменяемый кортеж, описывающий "о чём" контент.
// Stream пустой для классов без потоков.
// Селектор никогда не мутируется: методы With* возвращают новый
// селектор и очищают все поля ниже изменённого.
type Selector struct {
	Board      string `json:"board" toml:"board"`
	ClassLevel int    `json:"class_level" toml:"class_level"`
	Stream     string `json:"stream,omitempty" toml:"stream"`
	Subject    string `json:"subject" toml:"subject"`
	Chapter    string `json:"chapter" toml:"chapter"`
}

// NewSelector создаёт нормализованный селектор.
func NewSelector(board string, classLevel int, stream, subject, chapter string) Selector {
	return Selector{
		Board:      board,
		ClassLevel: classLevel,
		Stream:     stream,
		Subject:    subject,
		Chapter:    chapter,
	}.Normalize()
}

// HasStream - выбран ли поток.
func (s Selector) HasStream() bool {
	return NormalizeText(s.Stream) != ""
}

// Normalize приводит все свободные текстовые поля к канонической форме.
func (s Selector) Normalize() Selector {
	return Selector{
		Board:      NormalizeText(s.Board),
		ClassLevel: s.ClassLevel,
		Stream:     NormalizeText(s.Stream),
		Subject:    NormalizeText(s.Subject),
		Chapter:    NormalizeText(s.Chapter),
	}
}

// Equal сравнивает селекторы по нормализованным полям.
func (s Selector) Equal(other Selector) bool {
	return s.Normalize() == other.Normalize()
}

// WithBoard заменяет доску и сбрасывает всё ниже.
func (s Selector) WithBoard(board string) Selector {
	return Selector{Board: board}
}

// WithClass заменяет класс и сбрасывает всё ниже.
func (s Selector) WithClass(level int) Selector {
	return Selector{Board: s.Board, ClassLevel: level}
}

// WithStream заменяет поток и сбрасывает предмет и главу.
func (s Selector) WithStream(stream string) Selector {
	return Selector{Board: s.Board, ClassLevel: s.ClassLevel, Stream: stream}
}

// WithSubject заменяет предмет и сбрасывает главу.
func (s Selector) WithSubject(subject string) Selector {
	return Selector{Board: s.Board, ClassLevel: s.ClassLevel, Stream: s.Stream, Subject: subject}
}

// WithChapter заменяет главу.
func (s Selector) WithChapter(chapter string) Selector {
	s.Chapter = chapter
	return s
}

// ValidateSubject проверяет поля до предмета включительно (для списка глав).
func (s Selector) ValidateSubject() error {
	n := s.Normalize()
	if n.Board == "" {
		return shared.WrapError("curriculum", "Validate", shared.ErrEmptyValue, "board is required", shared.ErrInvalidSelector)
	}
	if n.ClassLevel < MinClassLevel || n.ClassLevel > MaxClassLevel {
		return shared.WrapError("curriculum", "Validate", shared.ErrValueOutOfRange,
			fmt.Sprintf("class level %d outside %d..%d", n.ClassLevel, MinClassLevel, MaxClassLevel), shared.ErrInvalidSelector)
	}
	if IsStreamedClass(n.ClassLevel) && n.Stream == "" {
		return shared.WrapError("curriculum", "Validate", shared.ErrEmptyValue, "stream is required for class 11 and 12", shared.ErrInvalidSelector)
	}
	if n.Subject == "" {
		return shared.WrapError("curriculum", "Validate", shared.ErrEmptyValue, "subject is required", shared.ErrInvalidSelector)
	}
	return nil
}

// Validate проверяет, что селектор полный.
func (s Selector) Validate() error {
	if err := s.ValidateSubject(); err != nil {
		return err
	}
	if NormalizeText(s.Chapter) == "" {
		return shared.WrapError("curriculum", "Validate", shared.ErrEmptyValue, "chapter is required", shared.ErrInvalidSelector)
	}
	return nil
}

// String - человекочитаемое представление для логов и CLI.
func (s Selector) String() string {
	n := s.Normalize()
	parts := []string{n.Board, fmt.Sprintf("class %d", n.ClassLevel)}
	if n.Stream != "" {
		parts = append(parts, n.Stream)
	}
	if n.Subject != "" {
		parts = append(parts, n.Subject)
	}
	if n.Chapter != "" {
		parts = append(parts, n.Chapter)
	}
	return strings.Join(parts, " / ")
}

// NormalizeText: trim, схлопывание пробелов, нижний регистр (с учётом Unicode).
func NormalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
