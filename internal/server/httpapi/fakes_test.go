package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/auth"
	"github.com/dmitrijs2005/privylock/internal/server/config"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

const testUser = "11111111-1111-1111-1111-111111111111"

// ---- fakes ----

type fakeUsers struct {
	registered *services.RegisterInput
	registerU  *models.User
	registerE  error

	login  *services.LoginInput
	tokens *services.TokenPair
	err    error

	google    *services.GoogleLoginInput
	googleRes *services.GoogleLoginResult

	verifiedToken string
	already       bool

	resentTo string
	refresh  string
	me       *models.User
}

func (f *fakeUsers) Register(_ context.Context, in services.RegisterInput) (*models.User, error) {
	f.registered = &in
	return f.registerU, f.registerE
}
func (f *fakeUsers) Login(_ context.Context, in services.LoginInput) (*services.TokenPair, error) {
	f.login = &in
	return f.tokens, f.err
}
func (f *fakeUsers) GoogleLogin(_ context.Context, in services.GoogleLoginInput) (*services.GoogleLoginResult, error) {
	f.google = &in
	return f.googleRes, f.err
}
func (f *fakeUsers) VerifyEmail(_ context.Context, token string) (bool, error) {
	f.verifiedToken = token
	return f.already, f.err
}
func (f *fakeUsers) ResendVerification(_ context.Context, email string) error {
	f.resentTo = email
	return f.err
}
func (f *fakeUsers) RefreshToken(_ context.Context, refresh string) (*services.TokenPair, error) {
	f.refresh = refresh
	return f.tokens, f.err
}
func (f *fakeUsers) Me(_ context.Context, userID string) (*models.User, error) {
	return f.me, f.err
}

type fakeDevices struct {
	list    []*models.Device
	deleted string
	err     error
}

func (f *fakeDevices) List(context.Context, string) ([]*models.Device, error) { return f.list, f.err }
func (f *fakeDevices) Delete(_ context.Context, _, id string) error {
	f.deleted = id
	return f.err
}

type fakeCategories struct {
	list []services.CategoryCount
	err  error
}

func (f *fakeCategories) List(context.Context, string) ([]services.CategoryCount, error) {
	return f.list, f.err
}
func (f *fakeCategories) Get(_ context.Context, _ string, id int64) (*services.CategoryCount, error) {
	for i := range f.list {
		if f.list[i].ID == id {
			return &f.list[i], nil
		}
	}
	return nil, fmt.Errorf("category %d: %w", id, common.ErrorNotFound)
}
func (f *fakeCategories) Lookup(_ context.Context, id int64) (*models.Category, error) {
	c, err := f.Get(context.Background(), "", id)
	if err != nil {
		return nil, err
	}
	return c.Category, nil
}

type fakeFolders struct {
	query  *models.FolderQuery
	input  *services.FolderInput
	detail *services.FolderDetail
	tree   *services.FolderTree
	err    error
}

func (f *fakeFolders) List(_ context.Context, _ string, q models.FolderQuery) ([]*services.FolderDetail, error) {
	f.query = &q
	if f.detail == nil {
		return nil, f.err
	}
	return []*services.FolderDetail{f.detail}, f.err
}
func (f *fakeFolders) Get(context.Context, string, string) (*services.FolderDetail, error) {
	return f.detail, f.err
}
func (f *fakeFolders) Create(_ context.Context, _ string, in services.FolderInput) (*services.FolderDetail, error) {
	f.input = &in
	return f.detail, f.err
}
func (f *fakeFolders) Update(_ context.Context, _, _ string, in services.FolderInput) (*services.FolderDetail, error) {
	f.input = &in
	return f.detail, f.err
}
func (f *fakeFolders) Delete(context.Context, string, string) error { return f.err }
func (f *fakeFolders) Tree(context.Context, string, string) (*services.FolderTree, error) {
	return f.tree, f.err
}

type fakeDocuments struct {
	query    *models.DocumentQuery
	input    *services.DocumentInput
	doc      *models.Document
	blob     []byte
	versions []*models.DocumentVersion
	moveIDs  []string
	moveTo   *string
	moved    int64
	err      error
}

func (f *fakeDocuments) List(_ context.Context, _ string, q models.DocumentQuery) ([]*models.Document, error) {
	f.query = &q
	if f.doc == nil {
		return nil, f.err
	}
	return []*models.Document{f.doc}, f.err
}
func (f *fakeDocuments) Get(context.Context, string, string) (*models.Document, error) {
	return f.doc, f.err
}
func (f *fakeDocuments) Create(_ context.Context, _ string, in services.DocumentInput) (*models.Document, error) {
	f.input = &in
	return f.doc, f.err
}
func (f *fakeDocuments) Update(_ context.Context, _, _ string, in services.DocumentInput) (*models.Document, error) {
	f.input = &in
	return f.doc, f.err
}
func (f *fakeDocuments) Delete(context.Context, string, string) error { return f.err }
func (f *fakeDocuments) Download(context.Context, string, string) (*models.Document, io.ReadCloser, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.doc, io.NopCloser(bytes.NewReader(f.blob)), nil
}
func (f *fakeDocuments) Versions(context.Context, string, string) ([]*models.DocumentVersion, error) {
	return f.versions, f.err
}
func (f *fakeDocuments) Move(_ context.Context, _ string, ids []string, folderID *string) (int64, error) {
	f.moveIDs, f.moveTo = ids, folderID
	return f.moved, f.err
}

type fakeNotifications struct {
	query   *models.NotificationQuery
	list    []*models.Notification
	one     *models.Notification
	setRead *bool
	ids     []string
	count   int64
	prefs   *models.NotificationPreference
	prefIn  *services.PreferenceInput
	err     error
}

func (f *fakeNotifications) List(_ context.Context, _ string, q models.NotificationQuery) ([]*models.Notification, error) {
	f.query = &q
	return f.list, f.err
}
func (f *fakeNotifications) Get(context.Context, string, string) (*models.Notification, error) {
	return f.one, f.err
}
func (f *fakeNotifications) SetRead(_ context.Context, _, _ string, read bool) (*models.Notification, error) {
	f.setRead = &read
	return f.one, f.err
}
func (f *fakeNotifications) Delete(context.Context, string, string) error { return f.err }
func (f *fakeNotifications) MarkRead(_ context.Context, _ string, ids []string) (int64, error) {
	f.ids = ids
	return f.count, f.err
}
func (f *fakeNotifications) MarkAllRead(context.Context, string) (int64, error) { return f.count, f.err }
func (f *fakeNotifications) DeleteAllRead(context.Context, string) (int64, error) {
	return f.count, f.err
}
func (f *fakeNotifications) UnreadCount(context.Context, string) (int64, error) { return f.count, f.err }
func (f *fakeNotifications) Preferences(context.Context, string) (*models.NotificationPreference, error) {
	return f.prefs, f.err
}
func (f *fakeNotifications) UpdatePreferences(_ context.Context, _ string, in services.PreferenceInput) (*models.NotificationPreference, error) {
	f.prefIn = &in
	return f.prefs, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }

// ---- helpers ----

type fixture struct {
	t      *testing.T
	cfg    *config.Config
	users  *fakeUsers
	devs   *fakeDevices
	cats   *fakeCategories
	dirs   *fakeFolders
	docs   *fakeDocuments
	notes  *fakeNotifications
	pinger *fakePinger
	h      http.Handler
}

func newFixture(t *testing.T, opts ...func(*config.Config)) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.AuthRateLimit = 0
	for _, o := range opts {
		o(cfg)
	}

	f := &fixture{
		t:      t,
		cfg:    cfg,
		users:  &fakeUsers{},
		devs:   &fakeDevices{},
		cats:   &fakeCategories{},
		dirs:   &fakeFolders{},
		docs:   &fakeDocuments{},
		notes:  &fakeNotifications{},
		pinger: &fakePinger{},
	}
	s := NewServer(cfg, Services{
		Users:         f.users,
		Devices:       f.devs,
		Categories:    f.cats,
		Folders:       f.dirs,
		Documents:     f.docs,
		Notifications: f.notes,
		DB:            f.pinger,
	}, logging.Discard())
	f.h = s.Handler()
	return f
}

func (f *fixture) token() string {
	f.t.Helper()
	tok, err := auth.GenerateToken(testUser, []byte(f.cfg.SecretKey), time.Hour)
	require.NoError(f.t, err)
	return tok
}

// do sends body (JSON-encoded unless it is already a string) with a valid
// bearer token.
func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	f.t.Helper()
	return f.send(method, path, body, "Bearer "+f.token())
}

func (f *fixture) send(method, path string, body any, authz string) *httptest.ResponseRecorder {
	f.t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(f.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func ptr[T any](v T) *T { return &v }
