package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// ContentStore implements curriculum.ContentStore.
type ContentStore struct {
	db *DB
}

// NewContentStore creates a ContentStore.
func NewContentStore(db *DB) *ContentStore {
	return &ContentStore{db: db}
}

const contentColumns = `key, id, title, subtitle, body, content_type, language,
	subject_name, selector, source, created_at`

// Get implements curriculum.ContentStore.
func (s *ContentStore) Get(ctx context.Context, key curriculum.ContentKey) (*curriculum.ContentRecord, error) {
	row := s.db.db.QueryRowContext(ctx, `SELECT `+contentColumns+` FROM content_records WHERE key = ?`, key.String())
	rec, err := scanContent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, shared.ErrContentNotFound
		}
		return nil, shared.WrapError("sqlite", "GetContent", shared.ErrStoreUnavailable, key.String(), err)
	}
	return rec, nil
}

// Put implements curriculum.ContentStore.
func (s *ContentStore) Put(ctx context.Context, record *curriculum.ContentRecord) error {
	if err := upsertContent(ctx, s.db.db, record); err != nil {
		return shared.WrapError("sqlite", "PutContent", shared.ErrStoreUnavailable, record.Key.String(), err)
	}
	return nil
}

// Enumerate implements curriculum.ContentStore.
func (s *ContentStore) Enumerate(ctx context.Context, prefix string) ([]curriculum.ContentKey, error) {
	// substr avoids LIKE wildcards in keys.
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT key FROM content_records WHERE substr(key, 1, length(?1)) = ?1 ORDER BY key`, prefix)
	if err != nil {
		return nil, shared.WrapError("sqlite", "Enumerate", shared.ErrStoreUnavailable, prefix, err)
	}
	defer rows.Close()

	var keys []curriculum.ContentKey
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan content key: %w", err)
		}
		keys = append(keys, curriculum.ContentKey(k))
	}
	return keys, rows.Err()
}

func upsertContent(ctx context.Context, q querier, rec *curriculum.ContentRecord) error {
	selector, err := json.Marshal(rec.Selector)
	if err != nil {
		return fmt.Errorf("failed to marshal selector: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO content_records (`+contentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET
			id = excluded.id,
			title = excluded.title,
			subtitle = excluded.subtitle,
			body = excluded.body,
			content_type = excluded.content_type,
			language = excluded.language,
			subject_name = excluded.subject_name,
			selector = excluded.selector,
			source = excluded.source,
			created_at = excluded.created_at
	`,
		rec.Key.String(),
		rec.ID,
		rec.Title,
		rec.Subtitle,
		rec.Body,
		string(rec.ContentType),
		string(rec.Language),
		rec.SubjectName,
		string(selector),
		string(rec.Source),
		formatTime(rec.CreatedAt),
	)
	return err
}

func scanContent(row scanner) (*curriculum.ContentRecord, error) {
	var (
		rec                                      curriculum.ContentRecord
		key, ct, lang, selector, source, created string
	)
	err := row.Scan(
		&key,
		&rec.ID,
		&rec.Title,
		&rec.Subtitle,
		&rec.Body,
		&ct,
		&lang,
		&rec.SubjectName,
		&selector,
		&source,
		&created,
	)
	if err != nil {
		return nil, err
	}

	rec.Key = curriculum.ContentKey(key)
	rec.ContentType = curriculum.ContentType(ct)
	rec.Language = curriculum.Language(lang)
	rec.Source = curriculum.Source(source)
	rec.CreatedAt = parseTime(created)
	if err := json.Unmarshal([]byte(selector), &rec.Selector); err != nil {
		return nil, fmt.Errorf("failed to unmarshal selector: %w", err)
	}
	return &rec, nil
}

var _ curriculum.ContentStore = (*ContentStore)(nil)
