// Package httpapi exposes the PrivyLock REST API over gin.
//
// Routes are grouped under /api/auth, /api/vault and /api/notifications.
// Every handler works on behalf of the user named by the bearer token and
// delegates to the service layer; this package only decodes requests,
// renders responses and maps errors to status codes.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/privylock/internal/logging"
	"github.com/dmitrijs2005/privylock/internal/server/config"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/services"
	"github.com/gin-gonic/gin"
)

type UserService interface {
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, in services.LoginInput) (*services.TokenPair, error)
	GoogleLogin(ctx context.Context, in services.GoogleLoginInput) (*services.GoogleLoginResult, error)
	VerifyEmail(ctx context.Context, token string) (bool, error)
	ResendVerification(ctx context.Context, email string) error
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Me(ctx context.Context, userID string) (*models.User, error)
}

type DeviceService interface {
	List(ctx context.Context, userID string) ([]*models.Device, error)
	Delete(ctx context.Context, userID, id string) error
}

type CategoryService interface {
	List(ctx context.Context, userID string) ([]services.CategoryCount, error)
	Get(ctx context.Context, userID string, id int64) (*services.CategoryCount, error)
	Lookup(ctx context.Context, id int64) (*models.Category, error)
}

type FolderService interface {
	List(ctx context.Context, userID string, q models.FolderQuery) ([]*services.FolderDetail, error)
	Get(ctx context.Context, userID, id string) (*services.FolderDetail, error)
	Create(ctx context.Context, userID string, in services.FolderInput) (*services.FolderDetail, error)
	Update(ctx context.Context, userID, id string, in services.FolderInput) (*services.FolderDetail, error)
	Delete(ctx context.Context, userID, id string) error
	Tree(ctx context.Context, userID, id string) (*services.FolderTree, error)
}

type DocumentService interface {
	List(ctx context.Context, userID string, q models.DocumentQuery) ([]*models.Document, error)
	Get(ctx context.Context, userID, id string) (*models.Document, error)
	Create(ctx context.Context, userID string, in services.DocumentInput) (*models.Document, error)
	Update(ctx context.Context, userID, id string, in services.DocumentInput) (*models.Document, error)
	Delete(ctx context.Context, userID, id string) error
	Download(ctx context.Context, userID, id string) (*models.Document, io.ReadCloser, error)
	Versions(ctx context.Context, userID, id string) ([]*models.DocumentVersion, error)
	Move(ctx context.Context, userID string, ids []string, folderID *string) (int64, error)
}

type NotificationService interface {
	List(ctx context.Context, userID string, q models.NotificationQuery) ([]*models.Notification, error)
	Get(ctx context.Context, userID, id string) (*models.Notification, error)
	SetRead(ctx context.Context, userID, id string, read bool) (*models.Notification, error)
	Delete(ctx context.Context, userID, id string) error
	MarkRead(ctx context.Context, userID string, ids []string) (int64, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	DeleteAllRead(ctx context.Context, userID string) (int64, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	Preferences(ctx context.Context, userID string) (*models.NotificationPreference, error)
	UpdatePreferences(ctx context.Context, userID string, in services.PreferenceInput) (*models.NotificationPreference, error)
}

// Pinger reports database reachability for /healthz. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Services bundles the collaborators the handlers call.
type Services struct {
	Users         UserService
	Devices       DeviceService
	Categories    CategoryService
	Folders       FolderService
	Documents     DocumentService
	Notifications NotificationService
	DB            Pinger
}

type Server struct {
	address       string
	maxUploadSize int64
	jwtSecret     []byte
	svc           Services
	logger        logging.Logger
	engine        *gin.Engine
}

func NewServer(cfg *config.Config, svc Services, l logging.Logger) *Server {
	s := &Server{
		address:       cfg.EndpointAddrHTTP,
		maxUploadSize: cfg.MaxUploadSize,
		jwtSecret:     []byte(cfg.SecretKey),
		svc:           svc,
		logger:        l.With("module", "http_server"),
	}
	s.engine = s.routes(cfg)
	return s
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes(cfg *config.Config) *gin.Engine {
	r := gin.New()
	r.Use(requestID(), s.recovery(), s.accessLog(), metricsMiddleware())
	if h := corsMiddleware(cfg.CORSOrigins); h != nil {
		r.Use(h)
	}

	r.GET("/healthz", s.healthz)
	r.GET("/metrics", metricsHandler())

	limit := rateLimit(cfg.AuthRateLimit, cfg.AuthRateWindow)
	authed := s.requireAuth()

	a := r.Group("/api/auth")
	a.POST("/register", limit, s.register)
	a.POST("/login", limit, s.login)
	a.POST("/google", limit, s.googleLogin)
	a.GET("/verify-email/:token", s.verifyEmail)
	a.POST("/verify-email", s.verifyEmail)
	a.POST("/resend-verification", limit, s.resendVerification)
	a.POST("/token/refresh", s.refreshToken)
	a.GET("/me", authed, s.me)
	a.GET("/devices", authed, s.listDevices)
	a.DELETE("/devices/:id", authed, s.deleteDevice)

	v := r.Group("/api/vault", authed)
	v.GET("/categories", s.listCategories)
	v.GET("/categories/:id", s.getCategory)
	v.GET("/folders", s.listFolders)
	v.POST("/folders", s.createFolder)
	v.GET("/folders/:id", s.getFolder)
	v.PUT("/folders/:id", s.updateFolder)
	v.PATCH("/folders/:id", s.updateFolder)
	v.DELETE("/folders/:id", s.deleteFolder)
	v.GET("/folders/:id/tree", s.folderTree)
	v.GET("/documents", s.listDocuments)
	v.POST("/documents", s.createDocument)
	v.POST("/documents/move", s.moveDocuments)
	v.GET("/documents/:id", s.getDocument)
	v.PUT("/documents/:id", s.updateDocument)
	v.PATCH("/documents/:id", s.updateDocument)
	v.DELETE("/documents/:id", s.deleteDocument)
	v.GET("/documents/:id/download", s.downloadDocument)
	v.GET("/documents/:id/versions", s.documentVersions)

	n := r.Group("/api/notifications", authed)
	n.GET("", s.listNotifications)
	n.GET("/unread_count", s.unreadCount)
	n.POST("/mark_read", s.markRead)
	n.POST("/mark_all_read", s.markAllRead)
	n.DELETE("/delete_all_read", s.deleteAllRead)
	n.GET("/preferences", s.getPreferences)
	n.PUT("/preferences", s.updatePreferences)
	n.PATCH("/preferences", s.updatePreferences)
	n.GET("/:id", s.getNotification)
	n.PATCH("/:id", s.updateNotification)
	n.DELETE("/:id", s.deleteNotification)

	return r
}

func (s *Server) healthz(c *gin.Context) {
	if s.svc.DB != nil {
		if err := s.svc.DB.PingContext(c.Request.Context()); err != nil {
			s.logger.Warn(c.Request.Context(), "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "http shutdown", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
