package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"

	"github.com/iago/studyhub-back/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pg: %w", err)
	}
	return pool, nil
}

// Migrate applies the embedded schema files in name order. Every statement
// is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		statement, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(statement)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

type PostgresJobsRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresJobsRepository(pool *pgxpool.Pool) *PostgresJobsRepository {
	return &PostgresJobsRepository{pool: pool}
}

func (r *PostgresJobsRepository) CreateJob(ctx context.Context, job *domain.Job) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO jobs (
			id,
			kind,
			user_id,
			file_id,
			payload,
			status,
			result,
			error_code,
			error_message,
			attempts,
			created_at,
			updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`,
		job.ID,
		string(job.Kind),
		job.UserID,
		job.FileID,
		string(job.Payload),
		string(job.Status),
		nullableJSON(job.Result),
		job.ErrorCode,
		job.ErrorMessage,
		job.Attempts,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *PostgresJobsRepository) UpdateJob(ctx context.Context, job *domain.Job) error {
	command, err := r.pool.Exec(ctx, `
		UPDATE jobs
		SET status = $2,
			result = $3,
			error_code = $4,
			error_message = $5,
			attempts = $6,
			updated_at = $7
		WHERE id = $1
	`, job.ID, string(job.Status), nullableJSON(job.Result), job.ErrorCode, job.ErrorMessage, job.Attempts, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresJobsRepository) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	var (
		job    domain.Job
		kind   string
		status string
	)

	err := r.pool.QueryRow(ctx, `
		SELECT id, kind, user_id, file_id, payload, status, result, error_code, error_message, attempts, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`, jobID).Scan(
		&job.ID,
		&kind,
		&job.UserID,
		&job.FileID,
		&job.Payload,
		&status,
		&job.Result,
		&job.ErrorCode,
		&job.ErrorMessage,
		&job.Attempts,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query job: %w", err)
	}

	job.Kind = domain.JobKind(kind)
	job.Status = domain.JobStatus(status)
	return &job, nil
}

// PostgresLibraryRepository implements FilesRepository and ChatRepository
// over the uploaded_files and chat_messages tables.
type PostgresLibraryRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresLibraryRepository(pool *pgxpool.Pool) *PostgresLibraryRepository {
	return &PostgresLibraryRepository{pool: pool}
}

const fileColumns = `id, user_id, name, type, extracted_text, summary, transcript, quiz, created_at, updated_at`

func (r *PostgresLibraryRepository) SaveFile(ctx context.Context, file *domain.UploadedFile) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO uploaded_files (id, user_id, name, type, extracted_text, summary, transcript, quiz)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8::jsonb)
		RETURNING created_at, updated_at
	`,
		file.ID,
		file.UserID,
		file.Name,
		string(file.Type),
		file.ExtractedText,
		file.Summary,
		file.Transcript,
		nullableJSON(file.Quiz),
	).Scan(&file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

func (r *PostgresLibraryRepository) UpdateFile(
	ctx context.Context,
	userID string,
	fileID string,
	update domain.FileUpdate,
) (*domain.UploadedFile, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE uploaded_files
		SET extracted_text = COALESCE($3, extracted_text),
			summary = COALESCE($4, summary),
			transcript = COALESCE($5, transcript),
			quiz = COALESCE($6::jsonb, quiz),
			updated_at = now()
		WHERE id = $1 AND user_id = $2
		RETURNING `+fileColumns,
		fileID,
		userID,
		update.ExtractedText,
		update.Summary,
		update.Transcript,
		nullableJSON(update.Quiz),
	)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("update file: %w", err)
	}
	return file, nil
}

func (r *PostgresLibraryRepository) GetFile(ctx context.Context, userID, fileID string) (*domain.UploadedFile, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM uploaded_files WHERE id = $1 AND user_id = $2`, fileID, userID)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("query file: %w", err)
	}
	return file, nil
}

func (r *PostgresLibraryRepository) ListFiles(ctx context.Context, userID string) ([]domain.UploadedFile, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+fileColumns+`
		FROM uploaded_files
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]domain.UploadedFile, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, *file)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate files: %w", rows.Err())
	}
	return files, nil
}

func (r *PostgresLibraryRepository) DeleteFile(ctx context.Context, userID, fileID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete file: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM chat_messages WHERE file_id = $1 AND user_id = $2`, fileID, userID); err != nil {
		return fmt.Errorf("delete chat messages: %w", err)
	}
	command, err := tx.Exec(ctx, `DELETE FROM uploaded_files WHERE id = $1 AND user_id = $2`, fileID, userID)
	if err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete file: %w", err)
	}
	return nil
}

func (r *PostgresLibraryRepository) SaveMessage(ctx context.Context, message *domain.ChatMessage) error {
	command, err := r.pool.Exec(ctx, `
		INSERT INTO chat_messages (id, file_id, user_id, role, content, created_at)
		SELECT $1, f.id, $3, $4, $5, COALESCE($6, now())
		FROM uploaded_files f
		WHERE f.id = $2 AND f.user_id = $3
	`,
		message.ID,
		message.FileID,
		message.UserID,
		string(message.Role),
		message.Content,
		nullableTime(message),
	)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	if command.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresLibraryRepository) ListMessages(ctx context.Context, userID, fileID string) ([]domain.ChatMessage, error) {
	if _, err := r.GetFile(ctx, userID, fileID); err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, file_id, user_id, role, content, created_at
		FROM chat_messages
		WHERE file_id = $1 AND user_id = $2
		ORDER BY created_at ASC
	`, fileID, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()

	messages := make([]domain.ChatMessage, 0)
	for rows.Next() {
		var (
			message domain.ChatMessage
			role    string
		)
		if err := rows.Scan(&message.ID, &message.FileID, &message.UserID, &role, &message.Content, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan chat message: %w", err)
		}
		message.Role = domain.ChatRole(role)
		messages = append(messages, message)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate chat messages: %w", rows.Err())
	}
	return messages, nil
}

func scanFile(row pgx.Row) (*domain.UploadedFile, error) {
	var (
		file          domain.UploadedFile
		fileType      string
		extractedText *string
		summary       *string
		transcript    *string
	)
	err := row.Scan(
		&file.ID,
		&file.UserID,
		&file.Name,
		&fileType,
		&extractedText,
		&summary,
		&transcript,
		&file.Quiz,
		&file.CreatedAt,
		&file.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	file.Type = domain.FileType(fileType)
	file.ExtractedText = derefString(extractedText)
	file.Summary = derefString(summary)
	file.Transcript = derefString(transcript)
	return &file, nil
}

func nullableJSON(value []byte) any {
	if len(value) == 0 {
		return nil
	}
	return string(value)
}

func nullableTime(message *domain.ChatMessage) any {
	if message.CreatedAt.IsZero() {
		return nil
	}
	return message.CreatedAt
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
