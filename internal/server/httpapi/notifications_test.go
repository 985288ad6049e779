package httpapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListNotifications(t *testing.T) {
	f := newFixture(t)
	title := "Passport"
	past := time.Now().Add(-time.Hour)
	f.notes.list = []*models.Notification{
		{ID: "n1", Type: models.NotificationDocumentExpiry, Priority: models.PriorityHigh,
			EncryptedTitle: []byte("hello"), EncryptedBody: []byte{0xff, 0x00}, DocumentTitle: &title},
		{ID: "n2", Type: models.NotificationSystem, ExpiresAt: &past},
	}

	w := f.do(http.MethodGet, "/api/notifications?unread_only=TRUE&notification_type=DOCUMENT_EXPIRY&priority=HIGH", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.NotificationQuery{
		UnreadOnly: true,
		Type:       models.NotificationDocumentExpiry,
		Priority:   models.PriorityHigh,
	}, *f.notes.query)

	list := decode[[]notificationResponse](t, w)
	require.Len(t, list, 2)
	assert.Equal(t, "aGVsbG8=", list[0].EncryptedTitle)
	assert.Equal(t, "/wA=", list[0].EncryptedBody)
	assert.Equal(t, "Passport", *list[0].DocumentTitle)
	assert.False(t, list[0].IsExpired)
	assert.True(t, list[1].IsExpired)

	w = f.do(http.MethodGet, "/api/notifications", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.NotificationQuery{}, *f.notes.query)
}

func TestGetNotification(t *testing.T) {
	f := newFixture(t)
	f.notes.err = common.ErrorNotFound

	w := f.do(http.MethodGet, "/api/notifications/n1", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"Notification not found"}`, w.Body.String())

	f.notes.err = nil
	f.notes.one = &models.Notification{ID: "n1", IsRead: true}
	w = f.do(http.MethodGet, "/api/notifications/n1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[notificationResponse](t, w).IsRead)
}

func TestUpdateNotification(t *testing.T) {
	f := newFixture(t)
	f.notes.one = &models.Notification{ID: "n1"}

	w := f.do(http.MethodPatch, "/api/notifications/n1", map[string]any{"is_read": true})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, f.notes.setRead)
	assert.True(t, *f.notes.setRead)

	f.notes.setRead = nil
	w = f.do(http.MethodPatch, "/api/notifications/n1", map[string]any{"priority": "LOW"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, f.notes.setRead, "only is_read is writable")

	w = f.do(http.MethodDelete, "/api/notifications/n1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestBulkNotificationActions(t *testing.T) {
	f := newFixture(t)
	f.notes.count = 3

	w := f.do(http.MethodPost, "/api/notifications/mark_read", map[string]any{"notification_ids": []string{"a", "b", "c"}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Marked 3 notifications as read","count":3}`, w.Body.String())
	assert.Equal(t, []string{"a", "b", "c"}, f.notes.ids)

	w = f.do(http.MethodPost, "/api/notifications/mark_all_read", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Marked 3 notifications as read","count":3}`, w.Body.String())

	w = f.do(http.MethodDelete, "/api/notifications/delete_all_read", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Deleted 3 read notifications","count":3}`, w.Body.String())

	w = f.do(http.MethodGet, "/api/notifications/unread_count", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":3}`, w.Body.String())

	f.notes.err = common.NewValidationError("notification_ids", "Invalid notification IDs")
	w = f.do(http.MethodPost, "/api/notifications/mark_read", map[string]any{"notification_ids": []string{"zzz"}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"notification_ids":["Invalid notification IDs"]}`, w.Body.String())
}

func TestPreferences(t *testing.T) {
	f := newFixture(t)
	f.notes.prefs = &models.NotificationPreference{InAppEnabled: true, StorageWarningThreshold: 80, StorageCriticalThreshold: 95}

	w := f.do(http.MethodGet, "/api/notifications/preferences", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[preferenceResponse](t, w)
	assert.True(t, got.InAppEnabled)
	assert.Equal(t, 80, got.StorageWarningThreshold)

	w = f.do(http.MethodPatch, "/api/notifications/preferences", map[string]any{
		"push_enabled": false, "storage_critical_threshold": 90,
	})
	require.Equal(t, http.StatusOK, w.Code)
	in := f.notes.prefIn
	require.NotNil(t, in)
	assert.False(t, *in.PushEnabled)
	assert.Equal(t, 90, *in.StorageCriticalThreshold)
	assert.Nil(t, in.EmailEnabled)

	f.notes.err = errBoom
	w = f.do(http.MethodPut, "/api/notifications/preferences", map[string]any{})
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, w.Body.String())
}

func TestNotificationsRequireAuth(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/api/notifications", "/api/notifications/unread_count", "/api/vault/documents"} {
		w := f.send(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}
