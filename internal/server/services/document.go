package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/cryptox"
	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/blobstore"
	"github.com/dmitrijs2005/privylock/internal/server/metrics"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

var (
	ErrNoDocumentsFound = fmt.Errorf("no documents found: %w", common.ErrorNotFound)
	ErrFolderNotFound   = fmt.Errorf("folder not found: %w", common.ErrorNotFound)
	ErrFileNotFound     = fmt.Errorf("file not found: %w", common.ErrorNotFound)
)

const (
	msgFolderNotOwned  = "Folder must belong to you"
	msgFolderCategory  = "Folder must be in same category as document"
	msgStorageExceeded = "Storage limit exceeded. Available: %d bytes"
)

// Upload is an encrypted file received from a client.
type Upload struct {
	Data        []byte
	FileName    string
	ContentType string
}

// Extension returns the text after the last dot of the file name.
func (u *Upload) Extension() string {
	i := strings.LastIndex(u.FileName, ".")
	if i < 0 || i == len(u.FileName)-1 {
		return ""
	}
	return u.FileName[i+1:]
}

func (u *Upload) MimeType() string {
	if u.ContentType == "" {
		return models.DefaultMimeType
	}
	return u.ContentType
}

// DocumentInput carries create and update fields. Nil fields are left
// unchanged; SetCategory and SetFolder allow clearing the reference.
type DocumentInput struct {
	SetCategory bool
	CategoryID  *int64
	SetFolder   bool
	FolderID    *string

	EncryptedTitle               *string
	EncryptedDescription         *string
	EncryptedDocType             *string
	EncryptedIssueDate           *string
	EncryptedExpiryDate          *string
	HasExpiry                    *bool
	NotificationTriggerTimestamp *time.Time

	File        *Upload
	ChangeNotes string
}

// DocumentService stores document metadata, versions and blobs, keeps the
// owner's storage counter in step and triggers storage and expiry alerts.
type DocumentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	blobs       blobstore.Store
	categories  *CategoryService
	alerts      *AlertService
	logger      logging.Logger
	now         func() time.Time
}

func NewDocumentService(db *sql.DB, m repomanager.RepositoryManager, blobs blobstore.Store,
	categories *CategoryService, alerts *AlertService, logger logging.Logger) *DocumentService {
	return &DocumentService{
		db:          db,
		repomanager: m,
		blobs:       blobs,
		categories:  categories,
		alerts:      alerts,
		logger:      logger,
		now:         time.Now,
	}
}

func applyDocumentInput(d *models.Document, in *DocumentInput) {
	if in.SetCategory {
		d.CategoryID = in.CategoryID
	}
	if in.SetFolder {
		d.FolderID = in.FolderID
	}
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	set(&d.EncryptedTitle, in.EncryptedTitle)
	set(&d.EncryptedDescription, in.EncryptedDescription)
	set(&d.EncryptedDocType, in.EncryptedDocType)
	set(&d.EncryptedIssueDate, in.EncryptedIssueDate)
	set(&d.EncryptedExpiryDate, in.EncryptedExpiryDate)
	if in.HasExpiry != nil {
		d.HasExpiry = *in.HasExpiry
	}
	if in.NotificationTriggerTimestamp != nil {
		d.NotificationTriggerTimestamp = in.NotificationTriggerTimestamp
	}
}

// checkReferences validates the category and folder of d.
func (s *DocumentService) checkReferences(ctx context.Context, v *common.ValidationError, d *models.Document) error {
	if d.CategoryID != nil {
		_, err := s.categories.Lookup(ctx, *d.CategoryID)
		if errors.Is(err, common.ErrorNotFound) {
			v.Add("category", fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", *d.CategoryID))
		} else if err != nil {
			return err
		}
	}

	if d.FolderID == nil {
		return nil
	}
	if !validID(*d.FolderID) {
		v.Add("folder", msgFolderNotOwned)
		return nil
	}
	f, err := s.repomanager.Folders(s.db).GetByID(ctx, d.UserID, *d.FolderID)
	if errors.Is(err, common.ErrorNotFound) {
		v.Add("folder", msgFolderNotOwned)
		return nil
	}
	if err != nil {
		return err
	}
	if d.CategoryID != nil && f.CategoryID != *d.CategoryID {
		v.Add("folder", msgFolderCategory)
	}
	return nil
}

func storageError(available int64) error {
	return common.NewValidationError("file", fmt.Sprintf(msgStorageExceeded, available))
}

func (s *DocumentService) removeBlob(ctx context.Context, key string) {
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Error(ctx, "orphan blob not removed", "key", key, "error", err)
	}
}

// Create stores the blob, then writes the document, its first version and
// the storage increment in one transaction. The blob is removed when the
// transaction fails.
func (s *DocumentService) Create(ctx context.Context, userID string, in DocumentInput) (*models.Document, error) {
	v := &common.ValidationError{}
	if in.File == nil {
		v.Add("encrypted_file", msgRequired)
		return nil, v
	}

	d := &models.Document{ID: uuid.NewString(), UserID: userID}
	applyDocumentInput(d, &in)

	if err := s.checkReferences(ctx, v, d); err != nil {
		return nil, err
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("error loading user: %w", err)
	}
	size := int64(len(in.File.Data))
	if user.StorageUsed+size > user.StorageLimit() {
		return nil, storageError(user.AvailableStorage())
	}

	d.FileKey = blobstore.DocumentKey(userID, in.File.Extension())
	d.FileSize = size
	d.FileExtension = in.File.Extension()
	d.MimeType = in.File.MimeType()
	d.FileHash = cryptox.SHA256Hex(in.File.Data)

	if err := s.blobs.Save(ctx, d.FileKey, in.File.Data); err != nil {
		return nil, fmt.Errorf("error storing file: %w", err)
	}

	var used int64
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Documents(tx).Create(ctx, d); err != nil {
			return fmt.Errorf("error creating document: %w", err)
		}
		if _, err := s.repomanager.Versions(tx).Create(ctx, &models.DocumentVersion{
			ID:                   uuid.NewString(),
			DocumentID:           d.ID,
			VersionNumber:        1,
			FileKey:              d.FileKey,
			FileSize:             d.FileSize,
			FileHash:             d.FileHash,
			EncryptedChangeNotes: in.ChangeNotes,
		}); err != nil {
			return fmt.Errorf("error creating version: %w", err)
		}
		var err error
		used, err = s.repomanager.Users(tx).AdjustStorage(ctx, userID, size)
		if err != nil {
			return fmt.Errorf("error updating storage: %w", err)
		}
		return nil
	})
	if err != nil {
		s.removeBlob(ctx, d.FileKey)
		return nil, err
	}

	metrics.UploadedBytes.Add(float64(size))
	s.logger.Info(ctx, "document created", "user_id", userID, "document_id", d.ID, "size", size)

	user.StorageUsed = used
	if _, err := s.alerts.CheckStorage(ctx, user); err != nil {
		s.logger.Error(ctx, "storage check failed", "user_id", userID, "error", err)
	}
	if d.HasExpiry {
		if _, err := s.alerts.CheckDocumentExpiry(ctx, d); err != nil {
			s.logger.Warn(ctx, "expiry check failed", "document_id", d.ID, "error", err)
		}
	}

	return s.repomanager.Documents(s.db).GetByID(ctx, userID, d.ID)
}

func (s *DocumentService) List(ctx context.Context, userID string, q models.DocumentQuery) ([]*models.Document, error) {
	if q.FolderID != nil && !validID(*q.FolderID) {
		return []*models.Document{}, nil
	}
	if !models.ValidOrdering(q.Ordering) {
		q.Ordering = models.OrderCreatedDesc
	}
	return s.repomanager.Documents(s.db).List(ctx, userID, q)
}

func (s *DocumentService) Get(ctx context.Context, userID, id string) (*models.Document, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	return s.repomanager.Documents(s.db).GetByID(ctx, userID, id)
}

// Update changes metadata and, when a new file is supplied, stores it as
// the next version. A changed expiry date drops unread expiry alerts.
func (s *DocumentService) Update(ctx context.Context, userID, id string, in DocumentInput) (*models.Document, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	oldExpiry, oldHasExpiry, oldSize := d.EncryptedExpiryDate, d.HasExpiry, d.FileSize

	applyDocumentInput(d, &in)

	v := &common.ValidationError{}
	if in.SetCategory || in.SetFolder {
		if err := s.checkReferences(ctx, v, d); err != nil {
			return nil, err
		}
	}
	if err := v.OrNil(); err != nil {
		return nil, err
	}

	var user *models.User
	if in.File != nil {
		user, err = s.repomanager.Users(s.db).GetByID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("error loading user: %w", err)
		}
		delta := int64(len(in.File.Data)) - oldSize
		if delta > 0 && user.StorageUsed+delta > user.StorageLimit() {
			return nil, storageError(user.AvailableStorage())
		}
		if err := s.replaceFile(ctx, user, d, in.File, in.ChangeNotes); err != nil {
			return nil, err
		}
	} else if _, err := s.repomanager.Documents(s.db).Update(ctx, d); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "document updated", "user_id", userID, "document_id", d.ID)

	if d.EncryptedExpiryDate != oldExpiry || d.HasExpiry != oldHasExpiry {
		if _, err := s.alerts.InvalidateExpiryAlerts(ctx, d.ID); err != nil {
			s.logger.Error(ctx, "expiry alert invalidation failed", "document_id", d.ID, "error", err)
		}
		if d.HasExpiry {
			if _, err := s.alerts.CheckDocumentExpiry(ctx, d); err != nil {
				s.logger.Warn(ctx, "expiry check failed", "document_id", d.ID, "error", err)
			}
		}
	}
	if user != nil && d.FileSize > oldSize {
		if _, err := s.alerts.CheckStorage(ctx, user); err != nil {
			s.logger.Error(ctx, "storage check failed", "user_id", userID, "error", err)
		}
	}

	return s.repomanager.Documents(s.db).GetByID(ctx, userID, d.ID)
}

// replaceFile stores f as a new blob and records version N+1. Earlier
// blobs stay referenced by their versions.
func (s *DocumentService) replaceFile(ctx context.Context, user *models.User, d *models.Document, f *Upload, notes string) error {
	oldSize := d.FileSize

	d.FileKey = blobstore.DocumentKey(d.UserID, f.Extension())
	d.FileSize = int64(len(f.Data))
	d.FileExtension = f.Extension()
	d.MimeType = f.MimeType()
	d.FileHash = cryptox.SHA256Hex(f.Data)

	if err := s.blobs.Save(ctx, d.FileKey, f.Data); err != nil {
		return fmt.Errorf("error storing file: %w", err)
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		versions := s.repomanager.Versions(tx)
		last, err := versions.MaxVersion(ctx, d.ID)
		if err != nil {
			return fmt.Errorf("error reading versions: %w", err)
		}
		if _, err := versions.Create(ctx, &models.DocumentVersion{
			ID:                   uuid.NewString(),
			DocumentID:           d.ID,
			VersionNumber:        last + 1,
			FileKey:              d.FileKey,
			FileSize:             d.FileSize,
			FileHash:             d.FileHash,
			EncryptedChangeNotes: notes,
		}); err != nil {
			return fmt.Errorf("error creating version: %w", err)
		}
		if _, err := s.repomanager.Documents(tx).Update(ctx, d); err != nil {
			return err
		}
		used, err := s.repomanager.Users(tx).AdjustStorage(ctx, d.UserID, d.FileSize-oldSize)
		if err != nil {
			return fmt.Errorf("error updating storage: %w", err)
		}
		user.StorageUsed = used
		return nil
	})
	if err != nil {
		s.removeBlob(ctx, d.FileKey)
		return err
	}
	metrics.UploadedBytes.Add(float64(d.FileSize))
	return nil
}

// Delete soft-deletes the document and releases its size from the
// owner's storage counter. The blob is kept.
func (s *DocumentService) Delete(ctx context.Context, userID, id string) error {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.Documents(tx).SoftDelete(ctx, userID, id, s.now()); err != nil {
			return err
		}
		if _, err := s.repomanager.Users(tx).AdjustStorage(ctx, userID, -d.FileSize); err != nil {
			return fmt.Errorf("error updating storage: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	s.logger.Info(ctx, "document deleted", "user_id", userID, "document_id", id)
	return nil
}

// Download opens the current blob of the document. The caller closes it.
func (s *DocumentService) Download(ctx context.Context, userID, id string) (*models.Document, io.ReadCloser, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.blobs.Open(ctx, d.FileKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			s.logger.Error(ctx, "document blob missing", "document_id", d.ID, "key", d.FileKey)
			return nil, nil, ErrFileNotFound
		}
		return nil, nil, fmt.Errorf("error opening file: %w", err)
	}
	return d, body, nil
}

// Versions returns the document's upload history, newest first.
func (s *DocumentService) Versions(ctx context.Context, userID, id string) ([]*models.DocumentVersion, error) {
	d, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Versions(s.db).ListByDocument(ctx, d.ID)
}

// Move puts the caller's documents among ids into folderID, or outside any
// folder when folderID is nil, and returns how many moved.
func (s *DocumentService) Move(ctx context.Context, userID string, ids []string, folderID *string) (int64, error) {
	seen := make(map[string]bool, len(ids))
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if validID(id) && !seen[id] {
			seen[id] = true
			valid = append(valid, id)
		}
	}

	docs := s.repomanager.Documents(s.db)
	owned, err := docs.CountOwned(ctx, userID, valid)
	if err != nil {
		return 0, err
	}
	if owned == 0 {
		return 0, ErrNoDocumentsFound
	}

	if folderID != nil {
		if !validID(*folderID) {
			return 0, ErrFolderNotFound
		}
		if _, err := s.repomanager.Folders(s.db).GetByID(ctx, userID, *folderID); err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return 0, ErrFolderNotFound
			}
			return 0, err
		}
	}

	moved, err := docs.Move(ctx, userID, valid, folderID)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "documents moved", "user_id", userID, "count", moved)
	return moved, nil
}
