// Package sqlite implements the local catalog store on an embedded SQLite
// database using the pure-Go driver, so the service cross-compiles without a
// C toolchain.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/normalize"
)

const driverName = "sqlite"

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the catalog database at path and applies pending
// migrations. SQLite works best with a single writer, so the pool is pinned
// to one connection.
func Open(path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const entryColumns = `id, external_id, name, category, developer, publisher, summary, cover_url,
	rating, rating_count, follows, hypes, released_at, platforms, franchise,
	parent_external_id, official, last_synced_at`

// FindByText matches entries whose normalized name contains the folded query,
// with the filter predicates pushed into SQL. Results come back in rating
// order so truncation at the limit keeps the strongest candidates.
func (s *Store) FindByText(ctx context.Context, text string, filters domain.SearchFilters, limit int) ([]domain.CatalogEntry, error) {
	folded := normalize.Fold(text)
	if folded == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var sb strings.Builder
	// Folded text cannot contain LIKE wildcards: % and _ both fold to a
	// space, so the pattern needs no escaping.
	sb.WriteString(`SELECT ` + entryColumns + ` FROM catalog_entries WHERE normalized_name LIKE ?`)
	args := []any{"%" + folded + "%"}

	if len(filters.Categories) > 0 {
		sb.WriteString(` AND category IN (` + placeholders(len(filters.Categories)) + `)`)
		for _, category := range filters.Categories {
			args = append(args, int(category))
		}
	}
	if len(filters.DenyCategories) > 0 {
		sb.WriteString(` AND category NOT IN (` + placeholders(len(filters.DenyCategories)) + `)`)
		for _, category := range filters.DenyCategories {
			args = append(args, int(category))
		}
	}
	if filters.MinRating > 0 {
		sb.WriteString(` AND rating >= ?`)
		args = append(args, filters.MinRating)
	}
	minFollows := filters.MinFollows
	if floor := filters.Tier.FollowFloor(); floor > minFollows {
		minFollows = floor
	}
	if minFollows > 0 && !filters.IncludeObscure {
		sb.WriteString(` AND follows >= ?`)
		args = append(args, minFollows)
	}

	sb.WriteString(` ORDER BY rating_count DESC NULLS LAST, id ASC LIMIT ?`)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("find by text: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func (s *Store) FindByExternalID(ctx context.Context, ids []int64) (map[int64]domain.CatalogEntry, error) {
	if len(ids) == 0 {
		return map[int64]domain.CatalogEntry{}, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM catalog_entries WHERE external_id IN (`+placeholders(len(ids))+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("find by external id: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]domain.CatalogEntry, len(entries))
	for _, entry := range entries {
		out[entry.ExternalID] = entry
	}
	return out, nil
}

// UpsertBatch inserts or refreshes entries keyed by external identifier.
// Refreshes never erase known metadata with an absent field, and the rating
// count only moves forward so a partial external payload cannot shrink it.
func (s *Store) UpsertBatch(ctx context.Context, entries []domain.CatalogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO catalog_entries (
			external_id, name, normalized_name, category, developer, publisher,
			summary, cover_url, rating, rating_count, follows, hypes,
			released_at, platforms, franchise, parent_external_id, official,
			last_synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) WHERE external_id IS NOT NULL DO UPDATE SET
			name = excluded.name,
			normalized_name = excluded.normalized_name,
			category = CASE WHEN excluded.category >= 0 THEN excluded.category ELSE category END,
			developer = CASE WHEN excluded.developer != '' THEN excluded.developer ELSE developer END,
			publisher = CASE WHEN excluded.publisher != '' THEN excluded.publisher ELSE publisher END,
			summary = CASE WHEN excluded.summary != '' THEN excluded.summary ELSE summary END,
			cover_url = CASE WHEN excluded.cover_url != '' THEN excluded.cover_url ELSE cover_url END,
			rating = COALESCE(excluded.rating, rating),
			rating_count = MAX(COALESCE(excluded.rating_count, 0), COALESCE(rating_count, 0)),
			follows = COALESCE(excluded.follows, follows),
			hypes = COALESCE(excluded.hypes, hypes),
			released_at = COALESCE(excluded.released_at, released_at),
			platforms = CASE WHEN excluded.platforms != '[]' THEN excluded.platforms ELSE platforms END,
			franchise = CASE WHEN excluded.franchise != '' THEN excluded.franchise ELSE franchise END,
			parent_external_id = COALESCE(excluded.parent_external_id, parent_external_id),
			official = COALESCE(excluded.official, official),
			last_synced_at = excluded.last_synced_at
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range entries {
		entry := &entries[i]
		// A nil slice would marshal to the literal null, which the merge
		// guard above does not treat as absent.
		platforms := []byte("[]")
		if len(entry.Platforms) > 0 {
			var err error
			if platforms, err = json.Marshal(entry.Platforms); err != nil {
				return fmt.Errorf("encode platforms for %q: %w", entry.Name, err)
			}
		}
		syncedAt := now
		if entry.LastSyncedAt != nil {
			syncedAt = entry.LastSyncedAt.UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			nullableID(entry.ExternalID),
			entry.Name,
			normalize.Fold(entry.Name),
			int(entry.Category),
			entry.Developer,
			entry.Publisher,
			entry.Summary,
			entry.CoverURL,
			entry.Rating,
			entry.RatingCount,
			entry.Follows,
			entry.Hypes,
			nullableTime(entry.ReleasedAt),
			string(platforms),
			entry.Franchise,
			entry.ParentID,
			nullableBool(entry.Official),
			syncedAt,
		); err != nil {
			return fmt.Errorf("upsert %q: %w", entry.Name, err)
		}
	}
	return tx.Commit()
}

// ListStale returns entries whose last refresh is older than the cutoff,
// oldest first, for the backfill syncer. Entries never synced sort first.
func (s *Store) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]domain.CatalogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM catalog_entries
		 WHERE external_id IS NOT NULL
		   AND (last_synced_at IS NULL OR last_synced_at < ?)
		 ORDER BY last_synced_at ASC NULLS FIRST
		 LIMIT ?`,
		cutoff.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("list stale: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// Count reports the total number of catalog entries, used by the health
// endpoint and the syncer's startup log.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM catalog_entries`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return count, nil
}

func scanEntries(rows *sql.Rows) ([]domain.CatalogEntry, error) {
	var entries []domain.CatalogEntry
	for rows.Next() {
		var (
			entry      domain.CatalogEntry
			externalID sql.NullInt64
			rating     sql.NullFloat64
			ratingCnt  sql.NullInt64
			follows    sql.NullInt64
			hypes      sql.NullInt64
			releasedAt sql.NullTime
			platforms  string
			parentID   sql.NullInt64
			official   sql.NullBool
			syncedAt   sql.NullTime
		)
		if err := rows.Scan(
			&entry.LocalID, &externalID, &entry.Name, &entry.Category,
			&entry.Developer, &entry.Publisher, &entry.Summary, &entry.CoverURL,
			&rating, &ratingCnt, &follows, &hypes, &releasedAt, &platforms,
			&entry.Franchise, &parentID, &official, &syncedAt,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if externalID.Valid {
			entry.ExternalID = externalID.Int64
		}
		if rating.Valid {
			entry.Rating = &rating.Float64
		}
		if ratingCnt.Valid {
			value := int(ratingCnt.Int64)
			entry.RatingCount = &value
		}
		if follows.Valid {
			value := int(follows.Int64)
			entry.Follows = &value
		}
		if hypes.Valid {
			value := int(hypes.Int64)
			entry.Hypes = &value
		}
		if releasedAt.Valid {
			value := releasedAt.Time.UTC()
			entry.ReleasedAt = &value
		}
		if parentID.Valid {
			entry.ParentID = &parentID.Int64
		}
		if official.Valid {
			entry.Official = &official.Bool
		}
		if syncedAt.Valid {
			value := syncedAt.Time.UTC()
			entry.LastSyncedAt = &value
		}
		if platforms != "" && platforms != "[]" {
			if err := json.Unmarshal([]byte(platforms), &entry.Platforms); err != nil {
				return nil, fmt.Errorf("decode platforms for %q: %w", entry.Name, err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}
