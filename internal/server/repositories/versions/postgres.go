package versions

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, v *models.DocumentVersion) (*models.DocumentVersion, error) {
	query := `
		INSERT INTO document_versions (id, document_id, version_number, file_key, file_size, file_hash, encrypted_change_notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		v.ID, v.DocumentID, v.VersionNumber, v.FileKey, v.FileSize, v.FileHash, v.EncryptedChangeNotes,
	).Scan(&v.CreatedAt)
	if err != nil {
		if constraint, ok := dbx.UniqueViolation(err); ok {
			return nil, fmt.Errorf("%w: %s", common.ErrorAlreadyExists, constraint)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return v, nil
}

func (r *PostgresRepository) ListByDocument(ctx context.Context, documentID string) ([]*models.DocumentVersion, error) {
	query := `
		SELECT id, document_id, version_number, file_key, file_size, file_hash, encrypted_change_notes, created_at
		FROM document_versions
		WHERE document_id = $1
		ORDER BY version_number DESC
	`
	rows, err := r.db.QueryContext(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.DocumentVersion, 0)
	for rows.Next() {
		v := &models.DocumentVersion{}
		if err := rows.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.FileKey, &v.FileSize,
			&v.FileHash, &v.EncryptedChangeNotes, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) MaxVersion(ctx context.Context, documentID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM document_versions WHERE document_id = $1`, documentID).
		Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
