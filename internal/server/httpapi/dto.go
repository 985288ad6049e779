package httpapi

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/services"
)

type userResponse struct {
	ID               string                  `json:"id"`
	Username         string                  `json:"username"`
	Email            string                  `json:"email"`
	MobileNumber     string                  `json:"mobile_number"`
	EmailVerified    bool                    `json:"email_verified"`
	AuthProvider     models.AuthProvider     `json:"auth_provider"`
	SubscriptionTier models.SubscriptionTier `json:"subscription_tier"`
	StorageUsed      int64                   `json:"storage_used"`
	StorageLimit     int64                   `json:"storage_limit"`
	CreatedAt        time.Time               `json:"created_at"`
	LastLoginAt      *time.Time              `json:"last_login_at"`
}

func newUserResponse(u *models.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		MobileNumber:     u.MobileNumber,
		EmailVerified:    u.EmailVerified,
		AuthProvider:     u.AuthProvider,
		SubscriptionTier: u.SubscriptionTier,
		StorageUsed:      u.StorageUsed,
		StorageLimit:     u.StorageLimit(),
		CreatedAt:        u.CreatedAt,
		LastLoginAt:      u.LastLoginAt,
	}
}

type tokenResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type deviceResponse struct {
	ID         string            `json:"id"`
	DeviceName string            `json:"device_name"`
	DeviceType models.DeviceType `json:"device_type"`
	IsTrusted  bool              `json:"is_trusted"`
	LastActive time.Time         `json:"last_active"`
	CreatedAt  time.Time         `json:"created_at"`
}

func newDeviceResponse(d *models.Device) deviceResponse {
	return deviceResponse{
		ID:         d.ID,
		DeviceName: d.DeviceName,
		DeviceType: d.DeviceType,
		IsTrusted:  d.IsTrusted,
		LastActive: d.LastActive,
		CreatedAt:  d.CreatedAt,
	}
}

type categoryResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Icon          string `json:"icon"`
	DisplayOrder  int    `json:"display_order"`
	DocumentCount *int64 `json:"document_count,omitempty"`
}

func newCategoryResponse(c *models.Category) *categoryResponse {
	return &categoryResponse{ID: c.ID, Name: c.Name, Icon: c.Icon, DisplayOrder: c.DisplayOrder}
}

func newCategoryCountResponse(c *services.CategoryCount) *categoryResponse {
	r := newCategoryResponse(c.Category)
	n := c.DocumentCount
	r.DocumentCount = &n
	return r
}

type folderResponse struct {
	ID            string    `json:"id"`
	User          string    `json:"user"`
	Category      int64     `json:"category"`
	CategoryName  string    `json:"category_name"`
	CategoryIcon  string    `json:"category_icon"`
	EncryptedName string    `json:"encrypted_name"`
	Parent        *string   `json:"parent"`
	Color         string    `json:"color"`
	Icon          string    `json:"icon"`
	DocumentCount int64     `json:"document_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func newFolderResponse(f *services.FolderDetail) folderResponse {
	r := folderResponse{
		ID:            f.ID,
		User:          f.UserID,
		Category:      f.CategoryID,
		EncryptedName: f.EncryptedName,
		Parent:        f.ParentID,
		Color:         f.Color,
		Icon:          f.Icon,
		DocumentCount: f.DocumentCount,
		CreatedAt:     f.CreatedAt,
		UpdatedAt:     f.UpdatedAt,
	}
	if f.Category != nil {
		r.CategoryName = f.Category.Name
		r.CategoryIcon = f.Category.Icon
	}
	return r
}

type documentResponse struct {
	ID                           string            `json:"id"`
	Category                     *int64            `json:"category"`
	CategoryDetails              *categoryResponse `json:"category_details"`
	Folder                       *string           `json:"folder"`
	FolderName                   *string           `json:"folder_name"`
	EncryptedTitle               string            `json:"encrypted_title"`
	EncryptedDescription         string            `json:"encrypted_description"`
	EncryptedDocType             string            `json:"encrypted_doc_type"`
	FileSize                     int64             `json:"file_size"`
	FileExtension                string            `json:"file_extension"`
	MimeType                     string            `json:"mime_type"`
	FileHash                     string            `json:"file_hash"`
	HasExpiry                    bool              `json:"has_expiry"`
	EncryptedIssueDate           string            `json:"encrypted_issue_date"`
	EncryptedExpiryDate          string            `json:"encrypted_expiry_date"`
	NotificationTriggerTimestamp *time.Time        `json:"notification_trigger_timestamp"`
	IsDeleted                    bool              `json:"is_deleted"`
	CreatedAt                    time.Time         `json:"created_at"`
	UpdatedAt                    time.Time         `json:"updated_at"`
}

func newDocumentResponse(d *models.Document, category *models.Category) documentResponse {
	r := documentResponse{
		ID:                           d.ID,
		Category:                     d.CategoryID,
		Folder:                       d.FolderID,
		FolderName:                   d.FolderName,
		EncryptedTitle:               d.EncryptedTitle,
		EncryptedDescription:         d.EncryptedDescription,
		EncryptedDocType:             d.EncryptedDocType,
		FileSize:                     d.FileSize,
		FileExtension:                d.FileExtension,
		MimeType:                     d.MimeType,
		FileHash:                     d.FileHash,
		HasExpiry:                    d.HasExpiry,
		EncryptedIssueDate:           d.EncryptedIssueDate,
		EncryptedExpiryDate:          d.EncryptedExpiryDate,
		NotificationTriggerTimestamp: d.NotificationTriggerTimestamp,
		IsDeleted:                    d.IsDeleted,
		CreatedAt:                    d.CreatedAt,
		UpdatedAt:                    d.UpdatedAt,
	}
	if category != nil {
		r.CategoryDetails = newCategoryResponse(category)
	}
	return r
}

// documentResponse resolves the category through the cached category list.
// A lookup failure leaves category_details empty.
func (s *Server) documentResponse(ctx context.Context, d *models.Document) documentResponse {
	var cat *models.Category
	if d.CategoryID != nil {
		c, err := s.svc.Categories.Lookup(ctx, *d.CategoryID)
		if err != nil {
			s.logger.Debug(ctx, "category lookup failed", "category_id", *d.CategoryID, "error", err)
		} else {
			cat = c
		}
	}
	return newDocumentResponse(d, cat)
}

type versionResponse struct {
	ID                   string    `json:"id"`
	VersionNumber        int       `json:"version_number"`
	FileSize             int64     `json:"file_size"`
	FileHash             string    `json:"file_hash"`
	EncryptedChangeNotes string    `json:"encrypted_change_notes"`
	CreatedAt            time.Time `json:"created_at"`
}

type folderTreeResponse struct {
	ID            string               `json:"id"`
	EncryptedName string               `json:"encrypted_name"`
	Icon          string               `json:"icon"`
	Color         string               `json:"color"`
	DocumentCount int64                `json:"document_count"`
	CreatedAt     time.Time            `json:"created_at"`
	Subfolders    []folderTreeResponse `json:"subfolders"`
	Documents     []documentResponse   `json:"documents"`
}

func (s *Server) folderTreeResponse(ctx context.Context, t *services.FolderTree) folderTreeResponse {
	r := folderTreeResponse{
		ID:            t.Folder.ID,
		EncryptedName: t.Folder.EncryptedName,
		Icon:          t.Folder.Icon,
		Color:         t.Folder.Color,
		DocumentCount: t.DocumentCount,
		CreatedAt:     t.Folder.CreatedAt,
		Subfolders:    make([]folderTreeResponse, 0, len(t.Subfolders)),
		Documents:     make([]documentResponse, 0, len(t.Documents)),
	}
	for _, sub := range t.Subfolders {
		r.Subfolders = append(r.Subfolders, s.folderTreeResponse(ctx, sub))
	}
	for _, d := range t.Documents {
		r.Documents = append(r.Documents, s.documentResponse(ctx, d))
	}
	return r
}

// notificationResponse carries title and body as base64 of the stored bytes.
type notificationResponse struct {
	ID               string                  `json:"id"`
	NotificationType models.NotificationType `json:"notification_type"`
	Priority         models.Priority         `json:"priority"`
	EncryptedTitle   string                  `json:"encrypted_title"`
	EncryptedBody    string                  `json:"encrypted_body"`
	DocumentID       *string                 `json:"document_id"`
	DocumentTitle    *string                 `json:"document_title"`
	DeviceID         *string                 `json:"device_id"`
	DeviceName       *string                 `json:"device_name"`
	IsRead           bool                    `json:"is_read"`
	ReadAt           *time.Time              `json:"read_at"`
	ActionURL        string                  `json:"action_url"`
	EmailSent        bool                    `json:"email_sent"`
	PushSent         bool                    `json:"push_sent"`
	ExpiresAt        *time.Time              `json:"expires_at"`
	CreatedAt        time.Time               `json:"created_at"`
	IsExpired        bool                    `json:"is_expired"`
}

func newNotificationResponse(n *models.Notification, now time.Time) notificationResponse {
	return notificationResponse{
		ID:               n.ID,
		NotificationType: n.Type,
		Priority:         n.Priority,
		EncryptedTitle:   base64.StdEncoding.EncodeToString(n.EncryptedTitle),
		EncryptedBody:    base64.StdEncoding.EncodeToString(n.EncryptedBody),
		DocumentID:       n.DocumentID,
		DocumentTitle:    n.DocumentTitle,
		DeviceID:         n.DeviceID,
		DeviceName:       n.DeviceName,
		IsRead:           n.IsRead,
		ReadAt:           n.ReadAt,
		ActionURL:        n.ActionURL,
		EmailSent:        n.EmailSent,
		PushSent:         n.PushSent,
		ExpiresAt:        n.ExpiresAt,
		CreatedAt:        n.CreatedAt,
		IsExpired:        n.IsExpired(now),
	}
}

type preferenceResponse struct {
	InAppEnabled             bool `json:"in_app_enabled"`
	EmailEnabled             bool `json:"email_enabled"`
	EmailExpiryAlerts        bool `json:"email_expiry_alerts"`
	EmailStorageAlerts       bool `json:"email_storage_alerts"`
	EmailSecurityAlerts      bool `json:"email_security_alerts"`
	PushEnabled              bool `json:"push_enabled"`
	PushExpiryAlerts         bool `json:"push_expiry_alerts"`
	PushStorageAlerts        bool `json:"push_storage_alerts"`
	PushSecurityAlerts       bool `json:"push_security_alerts"`
	Alert30Days              bool `json:"alert_30_days"`
	Alert15Days              bool `json:"alert_15_days"`
	Alert7Days               bool `json:"alert_7_days"`
	Alert1Day                bool `json:"alert_1_day"`
	AlertOnExpiry            bool `json:"alert_on_expiry"`
	StorageWarningThreshold  int  `json:"storage_warning_threshold"`
	StorageCriticalThreshold int  `json:"storage_critical_threshold"`
}

func newPreferenceResponse(p *models.NotificationPreference) preferenceResponse {
	return preferenceResponse{
		InAppEnabled:             p.InAppEnabled,
		EmailEnabled:             p.EmailEnabled,
		EmailExpiryAlerts:        p.EmailExpiryAlerts,
		EmailStorageAlerts:       p.EmailStorageAlerts,
		EmailSecurityAlerts:      p.EmailSecurityAlerts,
		PushEnabled:              p.PushEnabled,
		PushExpiryAlerts:         p.PushExpiryAlerts,
		PushStorageAlerts:        p.PushStorageAlerts,
		PushSecurityAlerts:       p.PushSecurityAlerts,
		Alert30Days:              p.Alert30Days,
		Alert15Days:              p.Alert15Days,
		Alert7Days:               p.Alert7Days,
		Alert1Day:                p.Alert1Day,
		AlertOnExpiry:            p.AlertOnExpiry,
		StorageWarningThreshold:  p.StorageWarningThreshold,
		StorageCriticalThreshold: p.StorageCriticalThreshold,
	}
}

// preferenceRequest is a partial update; omitted or null fields are kept.
type preferenceRequest struct {
	InAppEnabled             *bool `json:"in_app_enabled"`
	EmailEnabled             *bool `json:"email_enabled"`
	EmailExpiryAlerts        *bool `json:"email_expiry_alerts"`
	EmailStorageAlerts       *bool `json:"email_storage_alerts"`
	EmailSecurityAlerts      *bool `json:"email_security_alerts"`
	PushEnabled              *bool `json:"push_enabled"`
	PushExpiryAlerts         *bool `json:"push_expiry_alerts"`
	PushStorageAlerts        *bool `json:"push_storage_alerts"`
	PushSecurityAlerts       *bool `json:"push_security_alerts"`
	Alert30Days              *bool `json:"alert_30_days"`
	Alert15Days              *bool `json:"alert_15_days"`
	Alert7Days               *bool `json:"alert_7_days"`
	Alert1Day                *bool `json:"alert_1_day"`
	AlertOnExpiry            *bool `json:"alert_on_expiry"`
	StorageWarningThreshold  *int  `json:"storage_warning_threshold"`
	StorageCriticalThreshold *int  `json:"storage_critical_threshold"`
}

func (r *preferenceRequest) input() services.PreferenceInput {
	return services.PreferenceInput{
		InAppEnabled:             r.InAppEnabled,
		EmailEnabled:             r.EmailEnabled,
		EmailExpiryAlerts:        r.EmailExpiryAlerts,
		EmailStorageAlerts:       r.EmailStorageAlerts,
		EmailSecurityAlerts:      r.EmailSecurityAlerts,
		PushEnabled:              r.PushEnabled,
		PushExpiryAlerts:         r.PushExpiryAlerts,
		PushStorageAlerts:        r.PushStorageAlerts,
		PushSecurityAlerts:       r.PushSecurityAlerts,
		Alert30Days:              r.Alert30Days,
		Alert15Days:              r.Alert15Days,
		Alert7Days:               r.Alert7Days,
		Alert1Day:                r.Alert1Day,
		AlertOnExpiry:            r.AlertOnExpiry,
		StorageWarningThreshold:  r.StorageWarningThreshold,
		StorageCriticalThreshold: r.StorageCriticalThreshold,
	}
}
