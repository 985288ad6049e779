package models

import "time"

// Category is static reference data used to tag folders and documents.
type Category struct {
	ID           int64
	Name         string
	Icon         string
	DisplayOrder int
}

// Folder default appearance.
const (
	DefaultFolderColor = "#3b82f6"
	DefaultFolderIcon  = "📁"
)

type Folder struct {
	ID            string
	UserID        string
	CategoryID    int64
	EncryptedName string
	ParentID      *string
	Color         string
	Icon          string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

const DefaultMimeType = "application/octet-stream"

// Document metadata. Encrypted* fields hold base64 client ciphertext and are
// never interpreted, except EncryptedExpiryDate which the expiry scan hands
// to an ExpiryDateResolver.
type Document struct {
	ID                           string
	UserID                       string
	CategoryID                   *int64
	FolderID                     *string
	EncryptedTitle               string
	EncryptedDescription         string
	EncryptedDocType             string
	EncryptedIssueDate           string
	EncryptedExpiryDate          string
	FileKey                      string
	FileSize                     int64
	FileExtension                string
	MimeType                     string
	FileHash                     string
	HasExpiry                    bool
	NotificationTriggerTimestamp *time.Time
	IsDeleted                    bool
	DeletedAt                    *time.Time
	CreatedAt                    time.Time
	UpdatedAt                    time.Time

	// Encrypted name of the containing folder, joined on read.
	FolderName *string
}

type DocumentVersion struct {
	ID                   string
	DocumentID           string
	VersionNumber        int
	FileKey              string
	FileSize             int64
	FileHash             string
	EncryptedChangeNotes string
	CreatedAt            time.Time
}
