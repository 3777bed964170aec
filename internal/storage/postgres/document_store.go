// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agriveille/prefecture-crawler/internal/store"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// defaultListLimit bounds List/ListRuns when the caller passes no limit.
const defaultListLimit = 50

// querier captures the subset of pgxpool.Pool the stores use. pgxmock
// implements the same surface, which keeps the SQL under test without a
// live database.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DocumentStoreConfig controls the Postgres connection pool used for
// document rows.
type DocumentStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DocumentStore persists notices in Postgres. It assumes a schema like:
//
//	CREATE TABLE documents (
//		id UUID PRIMARY KEY,
//		title TEXT NOT NULL,
//		link TEXT NOT NULL UNIQUE,
//		description TEXT NOT NULL DEFAULT '',
//		date_updated TIMESTAMPTZ NOT NULL,
//		full_text TEXT NOT NULL DEFAULT '',
//		summary TEXT NOT NULL DEFAULT '',
//		is_animal_project BOOLEAN NOT NULL DEFAULT FALSE,
//		animal_type TEXT NOT NULL DEFAULT '',
//		animal_number INTEGER,
//		is_intensive_farming BOOLEAN NOT NULL DEFAULT FALSE,
//		prefecture_name TEXT NOT NULL DEFAULT '',
//		prefecture_code TEXT NOT NULL DEFAULT '',
//		region_name TEXT NOT NULL DEFAULT '',
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
//
//	CREATE TABLE negative_keywords (
//		keyword TEXT PRIMARY KEY,
//		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
//	);
type DocumentStore struct {
	pool  querier
	table string
}

const documentColumns = `id, title, link, description, date_updated, full_text, summary,
	is_animal_project, animal_type, animal_number, is_intensive_farming,
	prefecture_name, prefecture_code, region_name, created_at, updated_at`

// NewDocumentStore creates a Postgres-backed DocumentStore using the provided config.
func NewDocumentStore(ctx context.Context, cfg DocumentStoreConfig) (*DocumentStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "documents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DocumentStore{pool: pool, table: table}, nil
}

// NewDocumentStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewDocumentStoreWithPool(pool querier, table string) (*DocumentStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "documents"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &DocumentStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *DocumentStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// FindByLink loads the document with the given link.
func (s *DocumentStore) FindByLink(ctx context.Context, link string) (store.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE link = $1`, documentColumns, s.table)
	doc, err := scanDocument(s.pool.QueryRow(ctx, query, link))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, fmt.Errorf("find document by link: %w", err)
	}
	return doc, nil
}

// GetByID loads a document by primary key.
func (s *DocumentStore) GetByID(ctx context.Context, id uuid.UUID) (store.Document, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, documentColumns, s.table)
	doc, err := scanDocument(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// Create inserts a new document row. created_at/updated_at are set by the
// database.
func (s *DocumentStore) Create(ctx context.Context, doc store.Document) error {
	if doc.ID == uuid.Nil {
		return fmt.Errorf("document id is required")
	}
	if doc.Link == "" {
		return fmt.Errorf("document link is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	title,
	link,
	description,
	date_updated,
	full_text,
	summary,
	is_animal_project,
	animal_type,
	animal_number,
	is_intensive_farming,
	prefecture_name,
	prefecture_code,
	region_name
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)`, s.table)

	args := []any{
		doc.ID,
		doc.Title,
		doc.Link,
		doc.Description,
		doc.DateUpdated,
		doc.FullText,
		doc.Summary,
		doc.IsAnimalProject,
		doc.AnimalType,
		doc.AnimalNumber,
		doc.IsIntensiveFarming,
		doc.PrefectureName,
		doc.PrefectureCode,
		doc.RegionName,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// Update rewrites the row identified by doc.Link.
func (s *DocumentStore) Update(ctx context.Context, doc store.Document) error {
	if doc.Link == "" {
		return fmt.Errorf("document link is required")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	title = $1,
	description = $2,
	date_updated = $3,
	full_text = $4,
	summary = $5,
	is_animal_project = $6,
	animal_type = $7,
	animal_number = $8,
	is_intensive_farming = $9,
	prefecture_name = $10,
	prefecture_code = $11,
	region_name = $12,
	updated_at = NOW()
WHERE link = $13`, s.table)

	args := []any{
		doc.Title,
		doc.Description,
		doc.DateUpdated,
		doc.FullText,
		doc.Summary,
		doc.IsAnimalProject,
		doc.AnimalType,
		doc.AnimalNumber,
		doc.IsIntensiveFarming,
		doc.PrefectureName,
		doc.PrefectureCode,
		doc.RegionName,
		doc.Link,
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Delete removes the document with the given link.
func (s *DocumentStore) Delete(ctx context.Context, link string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE link = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, link)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// List returns documents matching the filter, newest first. A non-positive
// limit falls back to defaultListLimit.
func (s *DocumentStore) List(ctx context.Context, filter store.DocumentFilter) ([]store.Document, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1::text = '' OR region_name = $1)
  AND ($2::text = '' OR animal_type = $2)
  AND (NOT $3::bool OR is_intensive_farming)
ORDER BY date_updated DESC, id
LIMIT $4 OFFSET $5`, documentColumns, s.table)

	rows, err := s.pool.Query(ctx, query,
		filter.Region, filter.AnimalType, filter.IntensiveOnly, limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// Count returns the number of documents matching the filter.
func (s *DocumentStore) Count(ctx context.Context, filter store.DocumentFilter) (int64, error) {
	query := fmt.Sprintf(`
SELECT COUNT(*) FROM %s
WHERE ($1::text = '' OR region_name = $1)
  AND ($2::text = '' OR animal_type = $2)
  AND (NOT $3::bool OR is_intensive_farming)`, s.table)

	var count int64
	err := s.pool.QueryRow(ctx, query,
		filter.Region, filter.AnimalType, filter.IntensiveOnly).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

// StreamAll iterates every document in creation order. The caller owns the
// returned iterator and must Close it.
func (s *DocumentStore) StreamAll(ctx context.Context) (store.DocumentIterator, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY created_at, id`, documentColumns, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("stream documents: %w", err)
	}
	return &documentIterator{rows: rows}, nil
}

// CountByAttribution counts documents attributed to one prefecture.
func (s *DocumentStore) CountByAttribution(ctx context.Context, prefectureName string) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE prefecture_name = $1`, s.table)
	var count int64
	if err := s.pool.QueryRow(ctx, query, prefectureName).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents by attribution: %w", err)
	}
	return count, nil
}

// AttributionCounts aggregates document counts per prefecture, busiest first.
func (s *DocumentStore) AttributionCounts(ctx context.Context) ([]store.AttributionCount, error) {
	query := fmt.Sprintf(`
SELECT prefecture_name, prefecture_code, region_name, COUNT(*), MAX(updated_at)
FROM %s
GROUP BY prefecture_name, prefecture_code, region_name
ORDER BY COUNT(*) DESC, prefecture_name`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregate attributions: %w", err)
	}
	defer rows.Close()

	var counts []store.AttributionCount
	for rows.Next() {
		var c store.AttributionCount
		if err := rows.Scan(&c.PrefectureName, &c.PrefectureCode, &c.RegionName, &c.Documents, &c.LastUpdated); err != nil {
			return nil, fmt.Errorf("scan attribution row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("aggregate attributions: %w", err)
	}
	return counts, nil
}

// ListNegativeKeywords returns the exclusion terms in alphabetical order.
func (s *DocumentStore) ListNegativeKeywords(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT keyword FROM negative_keywords ORDER BY keyword`)
	if err != nil {
		return nil, fmt.Errorf("list negative keywords: %w", err)
	}
	defer rows.Close()

	var keywords []string
	for rows.Next() {
		var kw string
		if err := rows.Scan(&kw); err != nil {
			return nil, fmt.Errorf("scan keyword row: %w", err)
		}
		keywords = append(keywords, kw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list negative keywords: %w", err)
	}
	return keywords, nil
}

// AddNegativeKeyword inserts an exclusion term. Terms are stored lowercased;
// re-adding an existing term is a no-op.
func (s *DocumentStore) AddNegativeKeyword(ctx context.Context, keyword string) error {
	kw := normalizeKeyword(keyword)
	if kw == "" {
		return fmt.Errorf("keyword is required")
	}
	query := `INSERT INTO negative_keywords (keyword) VALUES ($1) ON CONFLICT (keyword) DO NOTHING`
	if _, err := s.pool.Exec(ctx, query, kw); err != nil {
		return fmt.Errorf("add negative keyword: %w", err)
	}
	return nil
}

// RemoveNegativeKeyword deletes an exclusion term.
func (s *DocumentStore) RemoveNegativeKeyword(ctx context.Context, keyword string) error {
	kw := normalizeKeyword(keyword)
	if kw == "" {
		return fmt.Errorf("keyword is required")
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM negative_keywords WHERE keyword = $1`, kw)
	if err != nil {
		return fmt.Errorf("remove negative keyword: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func normalizeKeyword(keyword string) string {
	return strings.ToLower(strings.TrimSpace(keyword))
}

// documentIterator adapts pgx.Rows to store.DocumentIterator.
type documentIterator struct {
	rows pgx.Rows
	cur  store.Document
	err  error
}

func (it *documentIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	doc, err := scanDocument(it.rows)
	if err != nil {
		it.err = fmt.Errorf("scan document row: %w", err)
		return false
	}
	it.cur = doc
	return true
}

func (it *documentIterator) Document() store.Document { return it.cur }

func (it *documentIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *documentIterator) Close() { it.rows.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (store.Document, error) {
	var doc store.Document
	err := row.Scan(
		&doc.ID,
		&doc.Title,
		&doc.Link,
		&doc.Description,
		&doc.DateUpdated,
		&doc.FullText,
		&doc.Summary,
		&doc.IsAnimalProject,
		&doc.AnimalType,
		&doc.AnimalNumber,
		&doc.IsIntensiveFarming,
		&doc.PrefectureName,
		&doc.PrefectureCode,
		&doc.RegionName,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	return doc, err
}
