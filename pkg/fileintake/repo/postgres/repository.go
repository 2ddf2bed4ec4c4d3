// Package postgres provides a PostgreSQL-backed Repository.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resumekit/fileintake/pkg/fileintake"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx, so the
// repository can run inside or outside a transaction.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements fileintake.Repository using PostgreSQL. The
// files_owner_digest_seq_key unique index is the cross-process
// serialization point for duplicate sequence assignment.
type Repository struct {
	db DBTX
}

var _ fileintake.Repository = (*Repository)(nil)

// New creates a PostgreSQL repository on the given querier.
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a PostgreSQL repository on a connection pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

func (r *Repository) handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "owner_digest_seq") {
				return fileintake.ErrDuplicateSequenceConflict
			}
			return fmt.Errorf("duplicate entry in %s: %s", operation, pgErr.ConstraintName)
		case "23514": // check_violation
			return fmt.Errorf("constraint violated in %s: %s", operation, pgErr.ConstraintName)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fileintake.ErrFileNotFound
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

const fileColumns = `
	id, owner_id, display_name, physical_key, size_bytes, media_type,
	content_digest, duplicate_sequence, original_record_id,
	processing_status, processing_error, extracted_text, text_preview,
	thumbnail_status, thumbnail_key, thumbnail_error,
	mirror_status, mirror_external_id, mirror_doc_id, mirror_error,
	is_shared_with_owner,
	category, category_updated_at, category_updated_by,
	is_active, deleted_at, deleted_by, created_at, updated_at`

func scanFile(row pgx.Row) (*fileintake.FileRecord, error) {
	var f fileintake.FileRecord
	err := row.Scan(
		&f.ID, &f.OwnerID, &f.DisplayName, &f.PhysicalKey, &f.SizeBytes, &f.MediaType,
		&f.ContentDigest, &f.DuplicateSequence, &f.OriginalRecordID,
		&f.ProcessingStatus, &f.ProcessingError, &f.ExtractedText, &f.TextPreview,
		&f.ThumbnailStatus, &f.ThumbnailKey, &f.ThumbnailError,
		&f.MirrorStatus, &f.MirrorExternalID, &f.MirrorDocID, &f.MirrorError,
		&f.SharedWithOwner,
		&f.Category, &f.CategoryUpdatedAt, &f.CategoryUpdatedBy,
		&f.IsActive, &f.DeletedAt, &f.DeletedBy, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *Repository) CreateFile(ctx context.Context, record *fileintake.FileRecord) error {
	query := `
		INSERT INTO files (
			id, owner_id, display_name, physical_key, size_bytes, media_type,
			content_digest, duplicate_sequence, original_record_id,
			processing_status, thumbnail_status, mirror_status, category,
			is_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		record.ID, record.OwnerID, record.DisplayName, record.PhysicalKey,
		record.SizeBytes, record.MediaType,
		record.ContentDigest, record.DuplicateSequence, record.OriginalRecordID,
		record.ProcessingStatus, record.ThumbnailStatus, record.MirrorStatus,
		record.Category, record.IsActive,
	).Scan(&record.CreatedAt, &record.UpdatedAt)
	if err != nil {
		return r.handlePostgresError("create file", err)
	}
	return nil
}

func (r *Repository) GetFile(ctx context.Context, id uuid.UUID, includeDeleted bool) (*fileintake.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1`
	if !includeDeleted {
		query += ` AND is_active`
	}

	record, err := scanFile(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, r.handlePostgresError("get file", err)
	}
	return record, nil
}

func (r *Repository) ListFiles(ctx context.Context, ownerID uuid.UUID, filters fileintake.FileListFilters) ([]*fileintake.FileRecord, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1`
	args := []interface{}{ownerID}

	if !filters.IncludeDeleted {
		query += ` AND is_active`
	}
	if filters.Category != nil {
		args = append(args, *filters.Category)
		query += fmt.Sprintf(` AND category = $%d`, len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`
	if filters.Limit != nil {
		args = append(args, *filters.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filters.Offset != nil {
		args = append(args, *filters.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError("list files", err)
	}
	defer rows.Close()

	var result []*fileintake.FileRecord
	for rows.Next() {
		record, err := scanFile(rows)
		if err != nil {
			return nil, r.handlePostgresError("list files", err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// MaxSequenceByOwnerAndDigest reports the highest duplicate sequence in use
// for the digest, active or not; soft-deleted records still occupy their
// slots and purged ones free theirs.
func (r *Repository) MaxSequenceByOwnerAndDigest(ctx context.Context, ownerID uuid.UUID, digest string) (int, bool, error) {
	var maxSeq *int
	err := r.db.QueryRow(ctx,
		`SELECT MAX(duplicate_sequence) FROM files WHERE owner_id = $1 AND content_digest = $2`,
		ownerID, digest,
	).Scan(&maxSeq)
	if err != nil {
		return 0, false, r.handlePostgresError("max sequence by digest", err)
	}
	if maxSeq == nil {
		return 0, false, nil
	}
	return *maxSeq, true, nil
}

// GetOriginalByOwnerAndDigest returns the surviving record with the lowest
// sequence. After the sequence-zero record is purged that is the next copy up.
func (r *Repository) GetOriginalByOwnerAndDigest(ctx context.Context, ownerID uuid.UUID, digest string) (*fileintake.FileRecord, error) {
	query := `SELECT ` + fileColumns + `
		FROM files
		WHERE owner_id = $1 AND content_digest = $2
		ORDER BY duplicate_sequence ASC
		LIMIT 1`

	record, err := scanFile(r.db.QueryRow(ctx, query, ownerID, digest))
	if err != nil {
		return nil, r.handlePostgresError("get original", err)
	}
	return record, nil
}

func (r *Repository) DisplayNameTaken(ctx context.Context, ownerID uuid.UUID, name string) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM files
			WHERE owner_id = $1 AND is_active AND lower(display_name) = lower($2)
		)`,
		ownerID, name,
	).Scan(&taken)
	if err != nil {
		return false, r.handlePostgresError("display name taken", err)
	}
	return taken, nil
}

func (r *Repository) RenameFile(ctx context.Context, id uuid.UUID, displayName string) error {
	return r.exec(ctx, "rename file",
		`UPDATE files SET display_name = $2, updated_at = NOW()
		 WHERE id = $1 AND is_active`,
		id, displayName)
}

func (r *Repository) SoftDeleteFile(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	return r.exec(ctx, "soft delete file",
		`UPDATE files
		 SET is_active = FALSE, deleted_at = NOW(), deleted_by = $2, updated_at = NOW()
		 WHERE id = $1`,
		id, actorID)
}

func (r *Repository) RestoreFile(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "restore file",
		`UPDATE files
		 SET is_active = TRUE, deleted_at = NULL, deleted_by = NULL, updated_at = NOW()
		 WHERE id = $1`,
		id)
}

func (r *Repository) HardDeleteFile(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "hard delete file", `DELETE FROM files WHERE id = $1`, id)
}

func (r *Repository) SetCategory(ctx context.Context, id uuid.UUID, actorID uuid.UUID, category fileintake.Category) error {
	return r.exec(ctx, "set category",
		`UPDATE files
		 SET category = $2, category_updated_at = NOW(), category_updated_by = $3,
		     updated_at = NOW()
		 WHERE id = $1 AND is_active`,
		id, category, actorID)
}

func (r *Repository) CategoryStats(ctx context.Context, ownerID uuid.UUID) (*fileintake.CategoryStats, error) {
	rows, err := r.db.Query(ctx,
		`SELECT category, COUNT(*)
		 FROM files
		 WHERE owner_id = $1 AND is_active
		 GROUP BY category`,
		ownerID)
	if err != nil {
		return nil, r.handlePostgresError("category stats", err)
	}
	defer rows.Close()

	stats := &fileintake.CategoryStats{ByCategory: make(map[fileintake.Category]int64)}
	for _, cat := range fileintake.Categories() {
		stats.ByCategory[cat] = 0
	}
	for rows.Next() {
		var cat fileintake.Category
		var count int64
		if err := rows.Scan(&cat, &count); err != nil {
			return nil, r.handlePostgresError("category stats", err)
		}
		stats.ByCategory[cat] = count
		stats.Total += count
	}
	return stats, rows.Err()
}

func (r *Repository) UpdateThumbnail(ctx context.Context, id uuid.UUID, update fileintake.ThumbnailUpdate) error {
	if update.Status == fileintake.ThumbnailStatusCompleted {
		return r.exec(ctx, "update thumbnail",
			`UPDATE files
			 SET thumbnail_status = $2, thumbnail_key = $3, thumbnail_error = '',
			     updated_at = NOW()
			 WHERE id = $1`,
			id, update.Status, update.Key)
	}
	// The key is present iff generation completed.
	return r.exec(ctx, "update thumbnail",
		`UPDATE files
		 SET thumbnail_status = $2, thumbnail_error = $3, thumbnail_key = NULL,
		     updated_at = NOW()
		 WHERE id = $1`,
		id, update.Status, update.ErrorMsg)
}

func (r *Repository) UpdateMirror(ctx context.Context, id uuid.UUID, update fileintake.MirrorUpdate) error {
	if update.Status == fileintake.MirrorStatusMirrored {
		return r.exec(ctx, "update mirror",
			`UPDATE files
			 SET mirror_status = $2, mirror_external_id = $3, mirror_doc_id = $4,
			     is_shared_with_owner = $5, mirror_error = '', updated_at = NOW()
			 WHERE id = $1`,
			id, update.Status, update.ExternalID, update.DocID, update.Shared)
	}
	return r.exec(ctx, "update mirror",
		`UPDATE files
		 SET mirror_status = $2, mirror_error = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, update.Status, update.ErrorMsg)
}

func (r *Repository) UpdateProcessing(ctx context.Context, id uuid.UUID, update fileintake.ProcessingUpdate) error {
	if update.Status == fileintake.ProcessingStatusCompleted {
		return r.exec(ctx, "update processing",
			`UPDATE files
			 SET processing_status = $2, extracted_text = $3, text_preview = $4,
			     processing_error = '', updated_at = NOW()
			 WHERE id = $1`,
			id, update.Status, update.Text, update.Preview)
	}
	return r.exec(ctx, "update processing",
		`UPDATE files
		 SET processing_status = $2, processing_error = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, update.Status, update.ErrorMsg)
}

func (r *Repository) ListByMirrorStatus(ctx context.Context, status fileintake.MirrorStatus, limit int) ([]*fileintake.FileRecord, error) {
	return r.listByStatus(ctx, "list by mirror status",
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE mirror_status = $1 AND is_active
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		status, limit)
}

func (r *Repository) ListByThumbnailStatus(ctx context.Context, status fileintake.ThumbnailStatus, limit int) ([]*fileintake.FileRecord, error) {
	return r.listByStatus(ctx, "list by thumbnail status",
		`SELECT `+fileColumns+`
		 FROM files
		 WHERE thumbnail_status = $1 AND is_active
		 ORDER BY updated_at ASC
		 LIMIT $2`,
		status, limit)
}

func (r *Repository) listByStatus(ctx context.Context, operation, query string, args ...interface{}) ([]*fileintake.FileRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, r.handlePostgresError(operation, err)
	}
	defer rows.Close()

	var result []*fileintake.FileRecord
	for rows.Next() {
		record, err := scanFile(rows)
		if err != nil {
			return nil, r.handlePostgresError(operation, err)
		}
		result = append(result, record)
	}
	return result, rows.Err()
}

// exec runs a single-row statement and maps "no rows touched" to
// ErrFileNotFound.
func (r *Repository) exec(ctx context.Context, operation, query string, args ...interface{}) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return r.handlePostgresError(operation, err)
	}
	if tag.RowsAffected() == 0 {
		return fileintake.ErrFileNotFound
	}
	return nil
}

// Ping verifies connectivity on pool-backed repositories.
func (r *Repository) Ping(ctx context.Context) error {
	pool, ok := r.db.(*pgxpool.Pool)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return pool.Ping(ctx)
}
