package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/gin-gonic/gin"
)

const msgNotificationNotFound = "Notification not found"

// notificationQuery reads ?unread_only=true, ?notification_type= and
// ?priority=.
func notificationQuery(c *gin.Context) models.NotificationQuery {
	return models.NotificationQuery{
		UnreadOnly: strings.EqualFold(c.Query("unread_only"), "true"),
		Type:       models.NotificationType(c.Query("notification_type")),
		Priority:   models.Priority(c.Query("priority")),
	}
}

func (s *Server) listNotifications(c *gin.Context) {
	list, err := s.svc.Notifications.List(c.Request.Context(), userID(c), notificationQuery(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	now := time.Now()
	out := make([]notificationResponse, 0, len(list))
	for _, n := range list {
		out = append(out, newNotificationResponse(n, now))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) getNotification(c *gin.Context) {
	n, err := s.svc.Notifications.Get(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		s.writeError(c, withNotFound(err, msgNotificationNotFound))
		return
	}
	c.JSON(http.StatusOK, newNotificationResponse(n, time.Now()))
}

// updateNotification only honours is_read; other fields are read-only.
func (s *Server) updateNotification(c *gin.Context) {
	var req struct {
		IsRead *bool `json:"is_read"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}

	ctx := c.Request.Context()
	var (
		n   *models.Notification
		err error
	)
	if req.IsRead != nil {
		n, err = s.svc.Notifications.SetRead(ctx, userID(c), c.Param("id"), *req.IsRead)
	} else {
		n, err = s.svc.Notifications.Get(ctx, userID(c), c.Param("id"))
	}
	if err != nil {
		s.writeError(c, withNotFound(err, msgNotificationNotFound))
		return
	}
	c.JSON(http.StatusOK, newNotificationResponse(n, time.Now()))
}

func (s *Server) deleteNotification(c *gin.Context) {
	if err := s.svc.Notifications.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.writeError(c, withNotFound(err, msgNotificationNotFound))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) markRead(c *gin.Context) {
	var req struct {
		NotificationIDs []string `json:"notification_ids"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	count, err := s.svc.Notifications.MarkRead(c.Request.Context(), userID(c), req.NotificationIDs)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Marked %d notifications as read", count),
		"count":   count,
	})
}

func (s *Server) markAllRead(c *gin.Context) {
	count, err := s.svc.Notifications.MarkAllRead(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Marked %d notifications as read", count),
		"count":   count,
	})
}

func (s *Server) deleteAllRead(c *gin.Context) {
	count, err := s.svc.Notifications.DeleteAllRead(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Deleted %d read notifications", count),
		"count":   count,
	})
}

func (s *Server) unreadCount(c *gin.Context) {
	count, err := s.svc.Notifications.UnreadCount(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (s *Server) getPreferences(c *gin.Context) {
	p, err := s.svc.Notifications.Preferences(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPreferenceResponse(p))
}

func (s *Server) updatePreferences(c *gin.Context) {
	var req preferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	p, err := s.svc.Notifications.UpdatePreferences(c.Request.Context(), userID(c), req.input())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newPreferenceResponse(p))
}
