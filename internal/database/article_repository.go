package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/news-ingestor/internal/domain"
)

var (
	// ErrArticleNotFound is returned when no row matches the lookup.
	ErrArticleNotFound = errors.New("article not found")
	// ErrDuplicateArticle is returned by Create when the publisher URL is already stored.
	ErrDuplicateArticle = errors.New("article already exists")
)

const uniqueViolation = "23505"

const articleSelectColumns = `id, image_url, title, description, content, publisher_id, publisher_url,
	imported_at, created_at, created_at_unix, updated_at`

// ArticleRepository persists articles in the news table.
type ArticleRepository struct {
	db *sqlx.DB
}

// NewArticleRepository creates a new article repository.
func NewArticleRepository(db *sqlx.DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

// FindByPublisherURL returns the article stored for url.
func (r *ArticleRepository) FindByPublisherURL(ctx context.Context, url string) (*domain.Article, error) {
	query := `SELECT ` + articleSelectColumns + ` FROM news WHERE publisher_url = $1`

	var a domain.Article
	if err := r.db.GetContext(ctx, &a, query, url); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("find article by publisher url: %w", err)
	}

	return &a, nil
}

// Create inserts a new article.
func (r *ArticleRepository) Create(ctx context.Context, draft domain.ArticleDraft) (*domain.Article, error) {
	draft.Normalize()

	query := `
		INSERT INTO news (image_url, title, description, content, publisher_id, publisher_url,
			imported_at, created_at, created_at_unix)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + articleSelectColumns

	var a domain.Article
	if err := r.db.GetContext(ctx, &a, query, draftArgs(draft)...); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateArticle, draft.PublisherURL)
		}
		return nil, fmt.Errorf("create article: %w", err)
	}

	return &a, nil
}

// Update overwrites every field of the article with id. created_at_unix is re-derived from
// the draft's created time.
func (r *ArticleRepository) Update(ctx context.Context, id int64, draft domain.ArticleDraft) (*domain.Article, error) {
	draft.Normalize()

	query := `
		UPDATE news
		SET image_url = $1, title = $2, description = $3, content = $4, publisher_id = $5,
			publisher_url = $6, imported_at = $7, created_at = $8, created_at_unix = $9,
			updated_at = NOW()
		WHERE id = $10
		RETURNING ` + articleSelectColumns

	args := append(draftArgs(draft), id)

	var a domain.Article
	if err := r.db.GetContext(ctx, &a, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("update article %d: %w", id, err)
	}

	return &a, nil
}

// Upsert stores draft keyed by its publisher URL in a single statement. Repeating the call with
// the same draft leaves exactly one row, and concurrent calls for one URL never create a second.
func (r *ArticleRepository) Upsert(ctx context.Context, draft domain.ArticleDraft) (*domain.Article, error) {
	draft.Normalize()

	query := `
		INSERT INTO news (image_url, title, description, content, publisher_id, publisher_url,
			imported_at, created_at, created_at_unix)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (publisher_url) DO UPDATE SET
			image_url = EXCLUDED.image_url,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			content = EXCLUDED.content,
			publisher_id = EXCLUDED.publisher_id,
			imported_at = EXCLUDED.imported_at,
			created_at = EXCLUDED.created_at,
			created_at_unix = EXCLUDED.created_at_unix,
			updated_at = NOW()
		RETURNING ` + articleSelectColumns

	var a domain.Article
	if err := r.db.GetContext(ctx, &a, query, draftArgs(draft)...); err != nil {
		return nil, fmt.Errorf("upsert article %s: %w", draft.PublisherURL, err)
	}

	return &a, nil
}

// CountByPublisherURL returns how many rows hold url. Anything above one is a broken index.
func (r *ArticleRepository) CountByPublisherURL(ctx context.Context, url string) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM news WHERE publisher_url = $1`, url); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return n, nil
}

// Ping checks the database is reachable.
func (r *ArticleRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func draftArgs(d domain.ArticleDraft) []any {
	return []any{
		d.ImageURL, d.Title, d.Description, d.Content, d.PublisherID, d.PublisherURL,
		d.ImportedAt, d.CreatedAt, d.CreatedAtUnix,
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}
