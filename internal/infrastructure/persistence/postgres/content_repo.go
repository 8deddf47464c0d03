package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nst-ai/lesson-hub/internal/domain/curriculum"
	"github.com/nst-ai/lesson-hub/internal/domain/shared"
)

// ContentRepository implements curriculum.ContentStore on the content_records table.
type ContentRepository struct {
	conn *Connection
}

// NewContentRepository creates a new ContentRepository.
func NewContentRepository(conn *Connection) *ContentRepository {
	return &ContentRepository{conn: conn}
}

const contentColumns = `key, id, title, subtitle, body, content_type, language,
	subject_name, selector, source, created_at`

// Get implements curriculum.ContentStore.
func (r *ContentRepository) Get(ctx context.Context, key curriculum.ContentKey) (*curriculum.ContentRecord, error) {
	query := `SELECT ` + contentColumns + ` FROM content_records WHERE key = $1`

	rec, err := scanContent(r.conn.QueryRow(ctx, query, key.String()))
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrContentNotFound
		}
		return nil, shared.WrapError("postgres", "GetContent", shared.ErrStoreUnavailable, key.String(), err)
	}
	return rec, nil
}

// Put implements curriculum.ContentStore. Last write wins.
func (r *ContentRepository) Put(ctx context.Context, record *curriculum.ContentRecord) error {
	if err := upsertContent(ctx, r.conn, record); err != nil {
		return shared.WrapError("postgres", "PutContent", shared.ErrStoreUnavailable, record.Key.String(), err)
	}
	return nil
}

// Enumerate implements curriculum.ContentStore.
func (r *ContentRepository) Enumerate(ctx context.Context, prefix string) ([]curriculum.ContentKey, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT key FROM content_records WHERE starts_with(key, $1) ORDER BY key COLLATE "C"`, prefix)
	if err != nil {
		return nil, shared.WrapError("postgres", "Enumerate", shared.ErrStoreUnavailable, prefix, err)
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

func upsertContent(ctx context.Context, q Querier, rec *curriculum.ContentRecord) error {
	selector, err := json.Marshal(rec.Selector)
	if err != nil {
		return fmt.Errorf("failed to marshal selector: %w", err)
	}

	_, err = q.Exec(ctx, `
		INSERT INTO content_records (`+contentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (key) DO UPDATE SET
			id = EXCLUDED.id,
			title = EXCLUDED.title,
			subtitle = EXCLUDED.subtitle,
			body = EXCLUDED.body,
			content_type = EXCLUDED.content_type,
			language = EXCLUDED.language,
			subject_name = EXCLUDED.subject_name,
			selector = EXCLUDED.selector,
			source = EXCLUDED.source,
			created_at = EXCLUDED.created_at
	`,
		rec.Key.String(),
		rec.ID,
		rec.Title,
		rec.Subtitle,
		rec.Body,
		string(rec.ContentType),
		string(rec.Language),
		rec.SubjectName,
		selector,
		string(rec.Source),
		rec.CreatedAt,
	)
	return err
}

func scanContent(row pgx.Row) (*curriculum.ContentRecord, error) {
	var (
		rec                   curriculum.ContentRecord
		key, ct, lang, source string
		selector              []byte
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
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Key = curriculum.ContentKey(key)
	rec.ContentType = curriculum.ContentType(ct)
	rec.Language = curriculum.Language(lang)
	rec.Source = curriculum.Source(source)
	rec.CreatedAt = rec.CreatedAt.UTC()
	if len(selector) > 0 {
		if err := json.Unmarshal(selector, &rec.Selector); err != nil {
			return nil, fmt.Errorf("failed to unmarshal selector: %w", err)
		}
	}
	return &rec, nil
}

var _ curriculum.ContentStore = (*ContentRepository)(nil)
