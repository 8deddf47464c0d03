package curriculum

import (
	"strconv"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONTENT KEY
// ══════════════════════════════════════════════════════════════════════════════

// ContentKey - каноническая адресация кэша.
//
// Формат: <prefix><field>|<field>|... где каждое поле закодировано как
// "<длина в байтах>:<значение>", а отсутствующий поток как "-".
// Разбор однозначен, поэтому разные кортежи не могут дать один ключ.
type ContentKey string

const (
	// KeyPrefix - префикс всех артефактов уроков.
	KeyPrefix = "lesson/"
	// ChapterIndexPrefix - префикс закэшированных списков глав.
	ChapterIndexPrefix = "chapters/"

	fieldSep  = "|"
	noneField = "-"
)

// String возвращает ключ как строку.
func (k ContentKey) String() string {
	return string(k)
}

// HasPrefix проверяет префикс ключа.
func (k ContentKey) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(k), prefix)
}

// ComposeKey - чистая тотальная функция (selector, language, type) → ключ.
// Свободный текст нормализуется до кодирования, поэтому
// "  Physics " и "physics" дают один ключ.
func ComposeKey(sel Selector, lang Language, ct ContentType) ContentKey {
	n := sel.Normalize()

	var b strings.Builder
	b.WriteString(KeyPrefix)
	writeField(&b, n.Board)
	b.WriteString(fieldSep)
	writeField(&b, strconv.Itoa(n.ClassLevel))
	b.WriteString(fieldSep)
	if n.Stream == "" {
		b.WriteString(noneField)
	} else {
		writeField(&b, n.Stream)
	}
	b.WriteString(fieldSep)
	writeField(&b, n.Subject)
	b.WriteString(fieldSep)
	writeField(&b, n.Chapter)
	b.WriteString(fieldSep)
	writeField(&b, NormalizeText(string(lang)))
	b.WriteString(fieldSep)
	writeField(&b, string(ct))

	return ContentKey(b.String())
}

// ChapterIndexKey - ключ списка глав предмета. Глава в селекторе игнорируется.
func ChapterIndexKey(sel Selector, lang Language) ContentKey {
	k := ComposeKey(sel.WithChapter(""), lang, ContentChapterIndex)
	return ContentKey(ChapterIndexPrefix + strings.TrimPrefix(string(k), KeyPrefix))
}

func writeField(b *strings.Builder, v string) {
	b.WriteString(strconv.Itoa(len(v)))
	b.WriteByte(':')
	b.WriteString(v)
}
