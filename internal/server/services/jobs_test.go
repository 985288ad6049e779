package services

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/joblock"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJobService(e *env, email, push notify.Transport) (*JobService, *joblock.MemoryLocker) {
	locker := joblock.NewMemoryLocker()
	s := NewJobService(e.db, e.rm, e.alerts, locker, email, push, logging.Discard())
	s.now = e.clock
	return s, locker
}

func TestJobService_UnknownJob(t *testing.T) {
	e := newEnv(t)
	s, _ := newJobService(e, nil, nil)
	_, err := s.Run(context.Background(), "reindex")
	require.Error(t, err)
}

func TestJobService_SkipsWhenLocked(t *testing.T) {
	e := newEnv(t)
	s, locker := newJobService(e, nil, nil)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, JobStorage, time.Minute)
	require.NoError(t, err)

	_, err = s.Run(ctx, JobStorage)
	require.ErrorIs(t, err, common.ErrJobLocked)

	require.NoError(t, release(ctx))
	_, err = s.Run(ctx, JobStorage)
	require.NoError(t, err)

	_, err = s.Run(ctx, JobStorage)
	require.NoError(t, err, "lock released after each run")
}

func TestJobService_ScanExpiringDocuments(t *testing.T) {
	e := newEnv(t)
	s, _ := newJobService(e, nil, nil)

	for id, in := range map[string]time.Duration{"d1": 30 * day, "d2": 10 * day, "d3": -day} {
		d := expiringDoc(e, id, in)
		e.store.documents[id] = d
	}
	// unresolvable document is skipped
	e.store.documents["d4"] = &models.Document{ID: "d4", UserID: "u1", HasExpiry: true, EncryptedExpiryDate: "?"}
	e.store.documents["d5"] = &models.Document{ID: "d5", UserID: "u1", HasExpiry: true, EncryptedExpiryDate: "x", IsDeleted: true}
	e.resolver["d5"] = e.now

	n, err := s.Run(context.Background(), JobExpiry)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.Run(context.Background(), JobExpiry)
	require.NoError(t, err)
	assert.Zero(t, n, "second run on the same day creates nothing")
}

func TestJobService_CheckAllStorage(t *testing.T) {
	e := newEnv(t)
	s, _ := newJobService(e, nil, nil)
	limit := models.TierFree.StorageLimit()
	e.addUser("u1", limit*7/8)
	e.addUser("u2", 1)
	e.addUser("u3", 0)

	n, err := s.Run(context.Background(), JobStorage)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, e.store.byType("u1", models.NotificationStorageWarning), 1)
}

func TestJobService_DispatchEmail(t *testing.T) {
	e := newEnv(t)
	e.addUser("u1", 0)
	e.addUser("u2", 0)
	p := models.DefaultPreferences("u2")
	p.EmailStorageAlerts = false
	e.store.prefs["u2"] = p

	ok := e.addNotification("u1", models.NotificationSystem, time.Hour)
	failing := e.addNotification("u1", models.NotificationDocumentExpiry, time.Hour)
	optedOut := e.addNotification("u2", models.NotificationStorageWarning, time.Hour)
	stale := e.addNotification("u1", models.NotificationSystem, 8*day)
	read := e.addNotification("u1", models.NotificationSystem, time.Hour)
	read.IsRead = true

	tr := &fakeTransport{name: "email", fail: map[string]error{failing.ID: errBoom}}
	s, _ := newJobService(e, tr, nil)

	n, err := s.Run(context.Background(), JobEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{ok.ID}, tr.sent)

	assert.True(t, e.store.notifications[ok.ID].EmailSent)
	require.NotNil(t, e.store.notifications[ok.ID].EmailSentAt)
	assert.False(t, e.store.notifications[failing.ID].EmailSent, "failed send stays pending")
	assert.False(t, e.store.notifications[optedOut.ID].EmailSent)
	assert.False(t, e.store.notifications[stale.ID].EmailSent)
	assert.False(t, e.store.notifications[ok.ID].PushSent)

	delete(tr.fail, failing.ID)
	n, err = s.Run(context.Background(), JobEmail)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "retried on the next run")
	assert.True(t, e.store.notifications[failing.ID].EmailSent)
}

func TestJobService_DispatchNotConfigured(t *testing.T) {
	e := newEnv(t)
	e.addUser("u1", 0)
	a := e.addNotification("u1", models.NotificationSystem, time.Hour)

	tr := &fakeTransport{name: "push", err: notify.ErrNotConfigured}
	s, _ := newJobService(e, nil, tr)

	n, err := s.Run(context.Background(), JobPush)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, e.store.notifications[a.ID].PushSent)

	n, err = s.Run(context.Background(), JobEmail)
	require.NoError(t, err)
	assert.Zero(t, n, "nil transport skips the channel")
}

func TestJobService_DispatchPushWindow(t *testing.T) {
	e := newEnv(t)
	e.addUser("u1", 0)
	fresh := e.addNotification("u1", models.NotificationSystem, time.Hour)
	e.addNotification("u1", models.NotificationSystem, 2*day)

	tr := &fakeTransport{name: "push"}
	s, _ := newJobService(e, nil, tr)

	n, err := s.Run(context.Background(), JobPush)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{fresh.ID}, tr.sent)
}

func TestJobService_Cleanup(t *testing.T) {
	e := newEnv(t)
	s, _ := newJobService(e, nil, nil)
	ctx := context.Background()

	expired := e.addNotification("u1", models.NotificationSystem, time.Hour)
	past := e.now.Add(-time.Minute)
	expired.ExpiresAt = &past

	oldRead := e.addNotification("u1", models.NotificationSystem, 40*day)
	oldReadAt := e.now.Add(-31 * day)
	oldRead.IsRead, oldRead.ReadAt = true, &oldReadAt

	recentRead := e.addNotification("u1", models.NotificationSystem, 40*day)
	recentReadAt := e.now.Add(-day)
	recentRead.IsRead, recentRead.ReadAt = true, &recentReadAt

	keep := e.addNotification("u1", models.NotificationSystem, 40*day)

	require.NoError(t, e.rm.RefreshTokens(nil).Create(ctx, "u1", "stale", e.now.Add(-time.Hour)))
	require.NoError(t, e.rm.RefreshTokens(nil).Create(ctx, "u1", "live", e.now.Add(time.Hour)))

	n, err := s.Run(ctx, JobCleanup)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, e.store.notifications, recentRead.ID)
	assert.Contains(t, e.store.notifications, keep.ID)
	assert.NotContains(t, e.store.refresh, "stale")
	assert.Contains(t, e.store.refresh, "live")
}
