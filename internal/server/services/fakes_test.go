package services

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/blobstore"
	"github.com/dmitrijs2005/privylock/internal/server/googleauth"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/categories"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/devices"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/documents"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/folders"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/notifications"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/preferences"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/users"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/versions"
)

var errBoom = errors.New("boom")

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func ptr[T any](v T) *T { return &v }

// memStore backs every fake repository, so cross-table reads such as
// folder document counts see the same rows the services wrote. Rows are
// copied in and out so services cannot mutate stored state by accident.
type memStore struct {
	now func() time.Time

	users         map[string]*models.User
	refresh       map[string]*models.RefreshToken
	devices       map[string]*models.Device
	categories    map[int64]*models.Category
	folders       map[string]*models.Folder
	documents     map[string]*models.Document
	versions      []*models.DocumentVersion
	notifications map[string]*models.Notification
	prefs         map[string]*models.NotificationPreference

	nextCategoryID int64

	// fail maps "Repo.Method" to an error the fake returns instead of
	// doing the work.
	fail map[string]error
}

func newMemStore(now func() time.Time) *memStore {
	return &memStore{
		now:           now,
		users:         map[string]*models.User{},
		refresh:       map[string]*models.RefreshToken{},
		devices:       map[string]*models.Device{},
		categories:    map[int64]*models.Category{},
		folders:       map[string]*models.Folder{},
		documents:     map[string]*models.Document{},
		notifications: map[string]*models.Notification{},
		prefs:         map[string]*models.NotificationPreference{},
		fail:          map[string]error{},
	}
}

func (s *memStore) failing(op string) error {
	return s.fail[op]
}

type fakeRepoManager struct {
	s *memStore
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository               { return &memUsers{m.s} }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return &memRefresh{m.s}
}
func (m *fakeRepoManager) Devices(dbx.DBTX) devices.Repository         { return &memDevices{m.s} }
func (m *fakeRepoManager) Categories(dbx.DBTX) categories.Repository   { return &memCategories{m.s} }
func (m *fakeRepoManager) Folders(dbx.DBTX) folders.Repository         { return &memFolders{m.s} }
func (m *fakeRepoManager) Documents(dbx.DBTX) documents.Repository     { return &memDocuments{m.s} }
func (m *fakeRepoManager) Versions(dbx.DBTX) versions.Repository       { return &memVersions{m.s} }
func (m *fakeRepoManager) Preferences(dbx.DBTX) preferences.Repository { return &memPrefs{m.s} }
func (m *fakeRepoManager) Notifications(dbx.DBTX) notifications.Repository {
	return &memNotifications{m.s}
}

// --- users ---

type memUsers struct{ s *memStore }

func cloneUser(u *models.User) *models.User { c := *u; return &c }

func (r *memUsers) Create(_ context.Context, u *models.User) (*models.User, error) {
	if err := r.s.failing("Users.Create"); err != nil {
		return nil, err
	}
	for _, e := range r.s.users {
		if e.Username == u.Username || e.Email == u.Email || e.MobileNumber == u.MobileNumber ||
			(u.GoogleID != nil && e.GoogleID != nil && *e.GoogleID == *u.GoogleID) {
			return nil, common.ErrorAlreadyExists
		}
	}
	u.CreatedAt = r.s.now()
	r.s.users[u.ID] = cloneUser(u)
	return u, nil
}

func (r *memUsers) find(match func(u *models.User) bool) (*models.User, error) {
	for _, u := range r.s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memUsers) GetByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r *memUsers) GetByUsername(_ context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Username == username })
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *memUsers) GetByGoogleID(_ context.Context, googleID string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.GoogleID != nil && *u.GoogleID == googleID })
}

func (r *memUsers) GetByVerificationSelector(_ context.Context, selector string) (*models.User, error) {
	return r.find(func(u *models.User) bool {
		return u.VerificationSelector != nil && *u.VerificationSelector == selector
	})
}

func (r *memUsers) Exists(_ context.Context, field, value string) (bool, error) {
	_, err := r.find(func(u *models.User) bool {
		switch field {
		case users.FieldUsername:
			return u.Username == value
		case users.FieldEmail:
			return u.Email == value
		case users.FieldMobile:
			return u.MobileNumber == value
		}
		return false
	})
	return err == nil, nil
}

func (r *memUsers) update(id string, fn func(u *models.User)) error {
	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func (r *memUsers) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *models.User) { u.LastLoginAt = &at })
}

func (r *memUsers) SetVerificationToken(_ context.Context, id, selector, hash string) error {
	return r.update(id, func(u *models.User) {
		u.VerificationSelector, u.VerificationHash = &selector, &hash
	})
}

func (r *memUsers) MarkEmailVerified(_ context.Context, id string) error {
	return r.update(id, func(u *models.User) {
		u.EmailVerified = true
		u.VerificationSelector, u.VerificationHash = nil, nil
	})
}

func (r *memUsers) LinkGoogleID(_ context.Context, id, googleID string) error {
	return r.update(id, func(u *models.User) { u.GoogleID = &googleID })
}

func (r *memUsers) AdjustStorage(_ context.Context, id string, delta int64) (int64, error) {
	if err := r.s.failing("Users.AdjustStorage"); err != nil {
		return 0, err
	}
	var used int64
	err := r.update(id, func(u *models.User) {
		u.StorageUsed += delta
		if u.StorageUsed < 0 {
			u.StorageUsed = 0
		}
		used = u.StorageUsed
	})
	return used, err
}

func (r *memUsers) ListWithStorage(context.Context) ([]*models.User, error) {
	var out []*models.User
	for _, u := range r.s.users {
		if u.StorageUsed > 0 {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- refresh tokens ---

type memRefresh struct{ s *memStore }

func (r *memRefresh) Create(_ context.Context, userID, token string, expiresAt time.Time) error {
	if err := r.s.failing("RefreshTokens.Create"); err != nil {
		return err
	}
	r.s.refresh[token] = &models.RefreshToken{UserID: userID, Token: token, Expires: expiresAt}
	return nil
}

func (r *memRefresh) Consume(_ context.Context, token string) (*models.RefreshToken, error) {
	if err := r.s.failing("RefreshTokens.Consume"); err != nil {
		return nil, err
	}
	t, ok := r.s.refresh[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(r.s.refresh, token)
	return t, nil
}

func (r *memRefresh) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for k, t := range r.s.refresh {
		if t.Expires.Before(now) {
			delete(r.s.refresh, k)
			n++
		}
	}
	return n, nil
}

// --- devices ---

type memDevices struct{ s *memStore }

func (r *memDevices) Create(_ context.Context, d *models.Device) (*models.Device, error) {
	for _, e := range r.s.devices {
		if e.UserID == d.UserID && e.DeviceID == d.DeviceID {
			return nil, common.ErrorAlreadyExists
		}
	}
	d.CreatedAt = r.s.now()
	d.LastActive = d.CreatedAt
	c := *d
	r.s.devices[d.ID] = &c
	return d, nil
}

func (r *memDevices) find(match func(d *models.Device) bool) (*models.Device, error) {
	for _, d := range r.s.devices {
		if match(d) {
			c := *d
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memDevices) GetByDeviceID(_ context.Context, userID, deviceID string) (*models.Device, error) {
	return r.find(func(d *models.Device) bool { return d.UserID == userID && d.DeviceID == deviceID })
}

func (r *memDevices) GetByID(_ context.Context, userID, id string) (*models.Device, error) {
	return r.find(func(d *models.Device) bool { return d.UserID == userID && d.ID == id })
}

func (r *memDevices) ListByUser(_ context.Context, userID string) ([]*models.Device, error) {
	out := []*models.Device{}
	for _, d := range r.s.devices {
		if d.UserID == userID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActive.After(out[j].LastActive) })
	return out, nil
}

func (r *memDevices) CountByUser(ctx context.Context, userID string) (int64, error) {
	list, _ := r.ListByUser(ctx, userID)
	return int64(len(list)), nil
}

func (r *memDevices) Touch(_ context.Context, id string, at time.Time) error {
	d, ok := r.s.devices[id]
	if !ok {
		return common.ErrorNotFound
	}
	d.LastActive = at
	return nil
}

func (r *memDevices) Delete(_ context.Context, userID, id string) error {
	d, ok := r.s.devices[id]
	if !ok || d.UserID != userID {
		return common.ErrorNotFound
	}
	delete(r.s.devices, id)
	return nil
}

// --- categories ---

type memCategories struct{ s *memStore }

func (r *memCategories) List(context.Context) ([]*models.Category, error) {
	if err := r.s.failing("Categories.List"); err != nil {
		return nil, err
	}
	out := []*models.Category{}
	for _, c := range r.s.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (r *memCategories) GetByID(_ context.Context, id int64) (*models.Category, error) {
	c, ok := r.s.categories[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCategories) DocumentCounts(_ context.Context, userID string) (map[int64]int64, error) {
	out := map[int64]int64{}
	for _, d := range r.s.documents {
		if d.UserID == userID && !d.IsDeleted && d.CategoryID != nil {
			out[*d.CategoryID]++
		}
	}
	return out, nil
}

func (r *memCategories) GetOrCreate(_ context.Context, c *models.Category) (bool, error) {
	for _, e := range r.s.categories {
		if e.Name == c.Name {
			c.ID = e.ID
			return false, nil
		}
	}
	r.s.nextCategoryID++
	c.ID = r.s.nextCategoryID
	cp := *c
	r.s.categories[c.ID] = &cp
	return true, nil
}

// addCategory inserts a category directly and returns its id.
func (s *memStore) addCategory(name string, order int) int64 {
	c := &models.Category{Name: name, DisplayOrder: order}
	(&memCategories{s}).GetOrCreate(context.Background(), c)
	return c.ID
}

// --- folders ---

type memFolders struct{ s *memStore }

func cloneFolder(f *models.Folder) *models.Folder { c := *f; return &c }

func (r *memFolders) Create(_ context.Context, f *models.Folder) (*models.Folder, error) {
	f.CreatedAt = r.s.now()
	f.UpdatedAt = f.CreatedAt
	r.s.folders[f.ID] = cloneFolder(f)
	return f, nil
}

func (r *memFolders) GetByID(_ context.Context, userID, id string) (*models.Folder, error) {
	f, ok := r.s.folders[id]
	if !ok || f.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return cloneFolder(f), nil
}

func (r *memFolders) List(_ context.Context, userID string, q models.FolderQuery) ([]*models.Folder, error) {
	out := []*models.Folder{}
	for _, f := range r.s.folders {
		if f.UserID != userID {
			continue
		}
		if q.CategoryID != nil && f.CategoryID != *q.CategoryID {
			continue
		}
		if q.RootOnly && f.ParentID != nil {
			continue
		}
		if !q.RootOnly && q.ParentID != nil && (f.ParentID == nil || *f.ParentID != *q.ParentID) {
			continue
		}
		out = append(out, cloneFolder(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EncryptedName < out[j].EncryptedName })
	return out, nil
}

func (r *memFolders) Update(_ context.Context, f *models.Folder) (*models.Folder, error) {
	e, ok := r.s.folders[f.ID]
	if !ok || e.UserID != f.UserID {
		return nil, common.ErrorNotFound
	}
	f.UpdatedAt = r.s.now()
	r.s.folders[f.ID] = cloneFolder(f)
	return f, nil
}

func (r *memFolders) Delete(ctx context.Context, userID, id string) error {
	f, ok := r.s.folders[id]
	if !ok || f.UserID != userID {
		return common.ErrorNotFound
	}
	subtree, _ := r.Subtree(ctx, userID, id)
	for _, sf := range subtree {
		delete(r.s.folders, sf.ID)
		for _, d := range r.s.documents {
			if d.FolderID != nil && *d.FolderID == sf.ID {
				d.FolderID = nil
			}
		}
	}
	return nil
}

func (r *memFolders) Subtree(_ context.Context, userID, rootID string) ([]*models.Folder, error) {
	root, ok := r.s.folders[rootID]
	if !ok || root.UserID != userID {
		return nil, common.ErrorNotFound
	}
	seen := map[string]bool{rootID: true}
	out := []*models.Folder{cloneFolder(root)}
	queue := []string{rootID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, f := range r.s.folders {
			if f.UserID == userID && f.ParentID != nil && *f.ParentID == id && !seen[f.ID] {
				seen[f.ID] = true
				out = append(out, cloneFolder(f))
				queue = append(queue, f.ID)
			}
		}
	}
	return out, nil
}

func (r *memFolders) HasContent(_ context.Context, id string) (bool, error) {
	for _, f := range r.s.folders {
		if f.ParentID != nil && *f.ParentID == id {
			return true, nil
		}
	}
	for _, d := range r.s.documents {
		if !d.IsDeleted && d.FolderID != nil && *d.FolderID == id {
			return true, nil
		}
	}
	return false, nil
}

func (r *memFolders) DirectDocumentCounts(_ context.Context, userID string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, d := range r.s.documents {
		if d.UserID == userID && !d.IsDeleted && d.FolderID != nil {
			out[*d.FolderID]++
		}
	}
	return out, nil
}

// --- documents ---

type memDocuments struct{ s *memStore }

func (r *memDocuments) out(d *models.Document) *models.Document {
	c := *d
	c.FolderName = nil
	if d.FolderID != nil {
		if f, ok := r.s.folders[*d.FolderID]; ok {
			c.FolderName = ptr(f.EncryptedName)
		}
	}
	return &c
}

func (r *memDocuments) Create(_ context.Context, d *models.Document) (*models.Document, error) {
	if err := r.s.failing("Documents.Create"); err != nil {
		return nil, err
	}
	d.CreatedAt = r.s.now()
	d.UpdatedAt = d.CreatedAt
	c := *d
	r.s.documents[d.ID] = &c
	return d, nil
}

func (r *memDocuments) GetByID(_ context.Context, userID, id string) (*models.Document, error) {
	d, ok := r.s.documents[id]
	if !ok || d.UserID != userID || d.IsDeleted {
		return nil, common.ErrorNotFound
	}
	return r.out(d), nil
}

func (r *memDocuments) List(_ context.Context, userID string, q models.DocumentQuery) ([]*models.Document, error) {
	out := []*models.Document{}
	for _, d := range r.s.documents {
		if d.UserID != userID || d.IsDeleted {
			continue
		}
		if q.CategoryID != nil && (d.CategoryID == nil || *d.CategoryID != *q.CategoryID) {
			continue
		}
		if q.RootOnly && d.FolderID != nil {
			continue
		}
		if !q.RootOnly && q.FolderID != nil && (d.FolderID == nil || *d.FolderID != *q.FolderID) {
			continue
		}
		out = append(out, r.out(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memDocuments) ListByFolders(_ context.Context, userID string, folderIDs []string) ([]*models.Document, error) {
	in := map[string]bool{}
	for _, id := range folderIDs {
		in[id] = true
	}
	out := []*models.Document{}
	for _, d := range r.s.documents {
		if d.UserID == userID && !d.IsDeleted && d.FolderID != nil && in[*d.FolderID] {
			out = append(out, r.out(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memDocuments) Update(_ context.Context, d *models.Document) (*models.Document, error) {
	if err := r.s.failing("Documents.Update"); err != nil {
		return nil, err
	}
	e, ok := r.s.documents[d.ID]
	if !ok || e.UserID != d.UserID || e.IsDeleted {
		return nil, common.ErrorNotFound
	}
	d.UpdatedAt = r.s.now()
	c := *d
	r.s.documents[d.ID] = &c
	return d, nil
}

func (r *memDocuments) SoftDelete(_ context.Context, userID, id string, at time.Time) error {
	d, ok := r.s.documents[id]
	if !ok || d.UserID != userID || d.IsDeleted {
		return common.ErrorNotFound
	}
	d.IsDeleted = true
	d.DeletedAt = &at
	return nil
}

func (r *memDocuments) CountOwned(_ context.Context, userID string, ids []string) (int64, error) {
	var n int64
	for _, id := range ids {
		if d, ok := r.s.documents[id]; ok && d.UserID == userID && !d.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (r *memDocuments) Move(_ context.Context, userID string, ids []string, folderID *string) (int64, error) {
	var n int64
	for _, id := range ids {
		if d, ok := r.s.documents[id]; ok && d.UserID == userID && !d.IsDeleted {
			d.FolderID = folderID
			n++
		}
	}
	return n, nil
}

func (r *memDocuments) ListWithExpiry(context.Context) ([]*models.Document, error) {
	out := []*models.Document{}
	for _, d := range r.s.documents {
		if d.HasExpiry && !d.IsDeleted {
			out = append(out, r.out(d))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- versions ---

type memVersions struct{ s *memStore }

func (r *memVersions) Create(_ context.Context, v *models.DocumentVersion) (*models.DocumentVersion, error) {
	if err := r.s.failing("Versions.Create"); err != nil {
		return nil, err
	}
	for _, e := range r.s.versions {
		if e.DocumentID == v.DocumentID && e.VersionNumber == v.VersionNumber {
			return nil, common.ErrorAlreadyExists
		}
	}
	v.CreatedAt = r.s.now()
	c := *v
	r.s.versions = append(r.s.versions, &c)
	return v, nil
}

func (r *memVersions) ListByDocument(_ context.Context, documentID string) ([]*models.DocumentVersion, error) {
	out := []*models.DocumentVersion{}
	for _, v := range r.s.versions {
		if v.DocumentID == documentID {
			c := *v
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber > out[j].VersionNumber })
	return out, nil
}

func (r *memVersions) MaxVersion(ctx context.Context, documentID string) (int, error) {
	list, _ := r.ListByDocument(ctx, documentID)
	if len(list) == 0 {
		return 0, nil
	}
	return list[0].VersionNumber, nil
}

// --- notifications ---

type memNotifications struct{ s *memStore }

func cloneNotification(n *models.Notification) *models.Notification { c := *n; return &c }

func (r *memNotifications) Create(_ context.Context, n *models.Notification) (*models.Notification, error) {
	if err := r.s.failing("Notifications.Create"); err != nil {
		return nil, err
	}
	n.CreatedAt = r.s.now()
	n.UpdatedAt = n.CreatedAt
	r.s.notifications[n.ID] = cloneNotification(n)
	return n, nil
}

func (r *memNotifications) owned(userID, id string) (*models.Notification, bool) {
	n, ok := r.s.notifications[id]
	return n, ok && n.UserID == userID
}

func (r *memNotifications) GetByID(_ context.Context, userID, id string) (*models.Notification, error) {
	n, ok := r.owned(userID, id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneNotification(n), nil
}

func (r *memNotifications) List(_ context.Context, userID string, q models.NotificationQuery, now time.Time) ([]*models.Notification, error) {
	out := []*models.Notification{}
	for _, n := range r.s.notifications {
		if n.UserID != userID || n.IsExpired(now) {
			continue
		}
		if q.UnreadOnly && n.IsRead {
			continue
		}
		if q.Type != "" && n.Type != q.Type {
			continue
		}
		if q.Priority != "" && n.Priority != q.Priority {
			continue
		}
		out = append(out, cloneNotification(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memNotifications) SetRead(_ context.Context, userID, id string, read bool, at time.Time) error {
	n, ok := r.owned(userID, id)
	if !ok {
		return common.ErrorNotFound
	}
	n.IsRead = read
	if !read {
		n.ReadAt = nil
	} else if n.ReadAt == nil {
		n.ReadAt = &at
	}
	return nil
}

func (r *memNotifications) Delete(_ context.Context, userID, id string) error {
	if _, ok := r.owned(userID, id); !ok {
		return common.ErrorNotFound
	}
	delete(r.s.notifications, id)
	return nil
}

func (r *memNotifications) OwnedIDs(_ context.Context, userID string, ids []string) ([]string, error) {
	var out []string
	for _, id := range ids {
		if _, ok := r.owned(userID, id); ok {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memNotifications) MarkRead(_ context.Context, userID string, ids []string, at time.Time) (int64, error) {
	var n int64
	for _, id := range ids {
		if x, ok := r.owned(userID, id); ok && !x.IsRead {
			x.IsRead, x.ReadAt = true, &at
			n++
		}
	}
	return n, nil
}

func (r *memNotifications) MarkAllRead(_ context.Context, userID string, at time.Time) (int64, error) {
	var n int64
	for _, x := range r.s.notifications {
		if x.UserID == userID && !x.IsRead {
			x.IsRead, x.ReadAt = true, &at
			n++
		}
	}
	return n, nil
}

func (r *memNotifications) deleteWhere(match func(n *models.Notification) bool) int64 {
	var c int64
	for id, n := range r.s.notifications {
		if match(n) {
			delete(r.s.notifications, id)
			c++
		}
	}
	return c
}

func (r *memNotifications) DeleteAllRead(_ context.Context, userID string) (int64, error) {
	return r.deleteWhere(func(n *models.Notification) bool { return n.UserID == userID && n.IsRead }), nil
}

func (r *memNotifications) UnreadCount(_ context.Context, userID string, now time.Time) (int64, error) {
	var c int64
	for _, n := range r.s.notifications {
		if n.UserID == userID && !n.IsRead && !n.IsExpired(now) {
			c++
		}
	}
	return c, nil
}

func (r *memNotifications) any(match func(n *models.Notification) bool) bool {
	for _, n := range r.s.notifications {
		if match(n) {
			return true
		}
	}
	return false
}

func (r *memNotifications) ExistsForDocumentSince(_ context.Context, documentID string, t models.NotificationType, since time.Time) (bool, error) {
	return r.any(func(n *models.Notification) bool {
		return n.DocumentID != nil && *n.DocumentID == documentID && n.Type == t && !n.CreatedAt.Before(since)
	}), nil
}

func (r *memNotifications) ExistsUnreadForDocument(_ context.Context, documentID string, t models.NotificationType) (bool, error) {
	return r.any(func(n *models.Notification) bool {
		return n.DocumentID != nil && *n.DocumentID == documentID && n.Type == t && !n.IsRead
	}), nil
}

func (r *memNotifications) ExistsUnreadSince(_ context.Context, userID string, t models.NotificationType, since time.Time) (bool, error) {
	return r.any(func(n *models.Notification) bool {
		return n.UserID == userID && n.Type == t && !n.IsRead && !n.CreatedAt.Before(since)
	}), nil
}

func (r *memNotifications) DeleteUnreadExpiryAlerts(_ context.Context, documentID string) (int64, error) {
	return r.deleteWhere(func(n *models.Notification) bool {
		return n.DocumentID != nil && *n.DocumentID == documentID && !n.IsRead && n.Type.IsExpiryAlert()
	}), nil
}

func (r *memNotifications) pending(sent func(n *models.Notification) bool, since, now time.Time, limit int) []*models.Notification {
	out := []*models.Notification{}
	for _, n := range r.s.notifications {
		if !sent(n) && !n.IsRead && !n.CreatedAt.Before(since) && !n.IsExpired(now) {
			out = append(out, cloneNotification(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *memNotifications) ListPendingEmail(_ context.Context, since, now time.Time, limit int) ([]*models.Notification, error) {
	return r.pending(func(n *models.Notification) bool { return n.EmailSent }, since, now, limit), nil
}

func (r *memNotifications) ListPendingPush(_ context.Context, since, now time.Time, limit int) ([]*models.Notification, error) {
	return r.pending(func(n *models.Notification) bool { return n.PushSent }, since, now, limit), nil
}

func (r *memNotifications) MarkEmailSent(_ context.Context, id string, at time.Time) error {
	n, ok := r.s.notifications[id]
	if !ok || n.EmailSent {
		return common.ErrorNotFound
	}
	n.EmailSent, n.EmailSentAt = true, &at
	return nil
}

func (r *memNotifications) MarkPushSent(_ context.Context, id string, at time.Time) error {
	n, ok := r.s.notifications[id]
	if !ok || n.PushSent {
		return common.ErrorNotFound
	}
	n.PushSent, n.PushSentAt = true, &at
	return nil
}

func (r *memNotifications) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	return r.deleteWhere(func(n *models.Notification) bool { return n.IsExpired(now) }), nil
}

func (r *memNotifications) DeleteReadBefore(_ context.Context, cutoff time.Time) (int64, error) {
	return r.deleteWhere(func(n *models.Notification) bool {
		return n.IsRead && n.ReadAt != nil && n.ReadAt.Before(cutoff)
	}), nil
}

// byType returns stored notifications of type t for the user.
func (s *memStore) byType(userID string, t models.NotificationType) []*models.Notification {
	var out []*models.Notification
	for _, n := range s.notifications {
		if n.UserID == userID && n.Type == t {
			out = append(out, n)
		}
	}
	return out
}

// --- preferences ---

type memPrefs struct{ s *memStore }

func (r *memPrefs) Get(_ context.Context, userID string) (*models.NotificationPreference, error) {
	p, ok := r.s.prefs[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *p
	return &c, nil
}

func (r *memPrefs) Create(ctx context.Context, p *models.NotificationPreference) (*models.NotificationPreference, error) {
	if _, ok := r.s.prefs[p.UserID]; !ok {
		c := *p
		r.s.prefs[p.UserID] = &c
	}
	return r.Get(ctx, p.UserID)
}

func (r *memPrefs) Update(ctx context.Context, p *models.NotificationPreference) (*models.NotificationPreference, error) {
	if _, ok := r.s.prefs[p.UserID]; !ok {
		return nil, common.ErrorNotFound
	}
	c := *p
	r.s.prefs[p.UserID] = &c
	return r.Get(ctx, p.UserID)
}

// --- collaborators ---

type memBlobs struct {
	data    map[string][]byte
	saveErr error
}

func newMemBlobs() *memBlobs { return &memBlobs{data: map[string][]byte{}} }

func (b *memBlobs) Save(_ context.Context, key string, content []byte) error {
	if b.saveErr != nil {
		return b.saveErr
	}
	b.data[key] = append([]byte(nil), content...)
	return nil
}

func (b *memBlobs) Open(_ context.Context, key string) (io.ReadCloser, error) {
	c, ok := b.data[key]
	if !ok {
		return nil, blobstore.ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(c)), nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	delete(b.data, key)
	return nil
}

type fakeVerifier struct {
	id  *googleauth.Identity
	err error
}

func (f *fakeVerifier) Verify(context.Context, string) (*googleauth.Identity, error) {
	return f.id, f.err
}

type sentMail struct{ to, subject, body string }

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

type fakeTransport struct {
	name string
	sent []string
	// fail maps notification id to the error Send returns for it.
	fail map[string]error
	err  error
}

func (f *fakeTransport) Name() string { return f.name }

func (f *fakeTransport) Send(_ context.Context, n *models.Notification, _ *models.User) error {
	if f.err != nil {
		return f.err
	}
	if err := f.fail[n.ID]; err != nil {
		return err
	}
	f.sent = append(f.sent, n.ID)
	return nil
}

// fixedResolver maps document ids to expiry dates.
type fixedResolver map[string]time.Time

func (r fixedResolver) Resolve(_ context.Context, d *models.Document) (time.Time, error) {
	t, ok := r[d.ID]
	if !ok {
		return time.Time{}, errors.New("cannot decrypt")
	}
	return t, nil
}

// constResolver resolves every document to the same date.
type constResolver time.Time

func (r constResolver) Resolve(context.Context, *models.Document) (time.Time, error) {
	return time.Time(r), nil
}

// env wires every service over one memStore with a fixed clock.
type env struct {
	t     *testing.T
	now   time.Time
	store *memStore
	rm    *fakeRepoManager
	db    *sql.DB
	mock  sqlmock.Sqlmock
	blobs *memBlobs

	resolver fixedResolver
	alerts   *AlertService
	cats     *CategoryService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{t: t, now: time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)}
	e.store = newMemStore(func() time.Time { return e.now })
	e.rm = &fakeRepoManager{s: e.store}
	e.db, e.mock = newSQLMockDB(t)
	e.blobs = newMemBlobs()
	e.resolver = fixedResolver{}

	e.alerts = NewAlertService(e.db, e.rm, e.resolver, logging.Discard())
	e.alerts.now = e.clock
	e.cats = NewCategoryService(e.db, e.rm, time.Minute, logging.Discard())
	return e
}

func (e *env) clock() time.Time { return e.now }

// expectTx queues one committed transaction on the mock DB.
func (e *env) expectTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

// addUser stores a verified FREE user.
func (e *env) addUser(id string, storage int64) *models.User {
	u := &models.User{
		ID:               id,
		Username:         "u" + id,
		Email:            id + "@example.com",
		MobileNumber:     "+1000" + id,
		EmailVerified:    true,
		SubscriptionTier: models.TierFree,
		StorageUsed:      storage,
		AuthProvider:     models.AuthProviderLocal,
	}
	e.store.users[id] = cloneUser(u)
	return u
}
