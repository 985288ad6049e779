package httpapi

import (
	"errors"
	"net/http"

	"github.com/dmitrijs2005/privylock/internal/common"
	"github.com/dmitrijs2005/privylock/internal/server/models"
	"github.com/dmitrijs2005/privylock/internal/server/services"
	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	MobileNumber    string `json:"mobile_number"`
	Password        string `json:"password"`
	RecoveryKeyHash string `json:"recovery_key_hash"`
	DeviceID        string `json:"device_id"`
	DeviceName      string `json:"device_name"`
	DeviceType      string `json:"device_type"`
}

type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	DeviceType string `json:"device_type"`
}

type googleLoginRequest struct {
	GoogleToken  string `json:"google_token"`
	MobileNumber string `json:"mobile_number"`
	DeviceID     string `json:"device_id"`
	DeviceName   string `json:"device_name"`
}

func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}

	u, err := s.svc.Users.Register(c.Request.Context(), services.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		MobileNumber:    req.MobileNumber,
		PasswordHash:    req.Password,
		RecoveryKeyHash: req.RecoveryKeyHash,
		Device: services.DeviceInput{
			DeviceID:   req.DeviceID,
			DeviceName: req.DeviceName,
			DeviceType: models.DeviceType(req.DeviceType),
		},
	})
	if err != nil {
		var v *common.ValidationError
		if errors.As(err, &v) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "errors": v.Fields})
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":         true,
		"user_id":         u.ID,
		"email_verified":  u.EmailVerified,
		"mobile_verified": true,
		"message":         "Registration successful. Please check your email to verify your account, then login.",
	})
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	if req.Username == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "Username and password are required"})
		return
	}

	in := services.LoginInput{Username: req.Username, PasswordHash: req.Password}
	if req.DeviceID != "" {
		in.Device = &services.DeviceInput{
			DeviceID:   req.DeviceID,
			DeviceName: req.DeviceName,
			DeviceType: models.DeviceType(req.DeviceType),
		}
	}

	tokens, err := s.svc.Users.Login(c.Request.Context(), in)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Access: tokens.AccessToken, Refresh: tokens.RefreshToken})
}

func (s *Server) googleLogin(c *gin.Context) {
	var req googleLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}

	res, err := s.svc.Users.GoogleLogin(c.Request.Context(), services.GoogleLoginInput{
		IDToken:      req.GoogleToken,
		MobileNumber: req.MobileNumber,
		DeviceID:     req.DeviceID,
		DeviceName:   req.DeviceName,
	})
	if err != nil {
		var v *common.ValidationError
		if errors.As(err, &v) {
			c.JSON(http.StatusBadRequest, gin.H{"error": v.Fields})
			return
		}
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access":      res.Tokens.AccessToken,
		"refresh":     res.Tokens.RefreshToken,
		"user":        newUserResponse(res.User),
		"is_new_user": res.IsNewUser,
	})
}

// verifyEmail takes the token from the path on GET and from the body on POST.
func (s *Server) verifyEmail(c *gin.Context) {
	token := c.Param("token")
	if c.Request.Method == http.MethodPost {
		var req struct {
			Token string `json:"token"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			badJSON(c)
			return
		}
		token = req.Token
	}
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Verification token is required"})
		return
	}

	already, err := s.svc.Users.VerifyEmail(c.Request.Context(), token)
	if err != nil {
		s.writeError(c, err)
		return
	}
	if already {
		s.writeError(c, common.ErrEmailAlreadyVerified)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Email verified successfully! You can now login.",
	})
}

func (s *Server) resendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	if req.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"email": []string{"This field is required."}}})
		return
	}

	err := s.svc.Users.ResendVerification(c.Request.Context(), req.Email)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Verification email sent! Please check your inbox.",
		})
	case errors.Is(err, common.ErrorNotFound):
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"email": []string{"User not found"}}})
	case errors.Is(err, common.ErrEmailAlreadyVerified):
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"email": []string{"Email already verified"}}})
	default:
		s.writeError(c, err)
	}
}

func (s *Server) refreshToken(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	if req.Refresh == "" {
		c.JSON(http.StatusBadRequest, gin.H{"refresh": []string{"This field is required."}})
		return
	}

	tokens, err := s.svc.Users.RefreshToken(c.Request.Context(), req.Refresh)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{Access: tokens.AccessToken, Refresh: tokens.RefreshToken})
}

func (s *Server) me(c *gin.Context) {
	u, err := s.svc.Users.Me(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newUserResponse(u))
}

func (s *Server) listDevices(c *gin.Context) {
	devices, err := s.svc.Devices.List(c.Request.Context(), userID(c))
	if err != nil {
		s.writeError(c, err)
		return
	}
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, newDeviceResponse(d))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteDevice(c *gin.Context) {
	if err := s.svc.Devices.Delete(c.Request.Context(), userID(c), c.Param("id")); err != nil {
		s.writeError(c, withNotFound(err, "Device not found"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Device removed successfully"})
}
