package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/peerfolio/backend/internal/notifications"
	"github.com/peerfolio/backend/internal/profiles"
	"github.com/peerfolio/backend/internal/validation"
	"go.uber.org/zap"
)

const profileIDContextKey = "peerfolio_profile_id"

var (
	errMissingProfileService      = errors.New("profile service dependency required")
	errMissingNotificationService = errors.New("notification service dependency required")
	errMissingTokenManager        = errors.New("token manager dependency required")
	errInvalidAuthorization       = errors.New("authorization header missing or invalid")
)

// SessionTokenManager issues and validates session tokens for profile ids.
type SessionTokenManager interface {
	IssueSessionToken(profileID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies carries the collaborators the HTTP layer needs.
type Dependencies struct {
	ProfileService      *profiles.Service
	NotificationService *notifications.Service
	TokenManager        SessionTokenManager
	Logger              *zap.Logger
	// BioMaxLength caps the bio field on create and update. Zero means the
	// default of 300.
	BioMaxLength int
}

// NewHTTPHandler wires the REST surface over the profile and notification
// stores.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.ProfileService == nil {
		return nil, errMissingProfileService
	}
	if deps.NotificationService == nil {
		return nil, errMissingNotificationService
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	if engine, ok := binding.Validator.Engine().(*validator.Validate); ok {
		validation.RegisterValidators(engine)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	bioMaxLength := deps.BioMaxLength
	if bioMaxLength <= 0 {
		bioMaxLength = validation.DefaultBioMaxLength
	}

	handler := &httpHandler{
		profileService:      deps.ProfileService,
		notificationService: deps.NotificationService,
		tokens:              deps.TokenManager,
		logger:              logger,
		bioMaxLength:        bioMaxLength,
	}

	router.GET("/healthz", handler.handleHealth)
	router.POST("/profiles", handler.handleCreateProfile)
	router.GET("/profiles", handler.optionalAuthorize, handler.handleListProfiles)
	router.GET("/profiles/:id", handler.optionalAuthorize, handler.handleGetProfile)
	router.POST("/profiles/:id/view", handler.handleViewProfile)
	router.POST("/profiles/:id/follow", handler.handleToggleFollow)
	router.GET("/profiles/:id/following", handler.handleIsFollowing)
	router.GET("/search", handler.optionalAuthorize, handler.handleSearch)
	router.POST("/session", handler.handleLogin)
	router.DELETE("/session", handler.handleLogout)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.PATCH("/profiles/:id", handler.handleUpdateProfile)
	protected.DELETE("/profiles/:id", handler.handleDeleteProfile)
	protected.GET("/profiles/:id/analytics", handler.handleProfileAnalytics)
	protected.GET("/notifications", handler.handleListNotifications)
	protected.GET("/notifications/unread-count", handler.handleUnreadCount)
	protected.POST("/notifications/:id/read", handler.handleMarkRead)
	protected.POST("/notifications/read-all", handler.handleMarkAllRead)

	return router, nil
}

type httpHandler struct {
	profileService      *profiles.Service
	notificationService *notifications.Service
	tokens              SessionTokenManager
	logger              *zap.Logger
	bioMaxLength        int
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bearerToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errInvalidAuthorization
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errInvalidAuthorization
	}
	return strings.TrimSpace(parts[1]), nil
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := bearerToken(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	profileID, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("session token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(profileIDContextKey, profileID)
	c.Next()
}

// optionalAuthorize resolves the session identity when a valid token is
// supplied but lets anonymous requests through.
func (h *httpHandler) optionalAuthorize(c *gin.Context) {
	token, err := bearerToken(c)
	if err == nil {
		if profileID, err := h.tokens.ValidateToken(token); err == nil {
			c.Set(profileIDContextKey, profileID)
		}
	}
	c.Next()
}

func sessionProfileID(c *gin.Context) string {
	return c.GetString(profileIDContextKey)
}

type createProfileRequest struct {
	Name      string   `json:"name" binding:"required,profile_name"`
	Email     string   `json:"email" binding:"required,profile_email"`
	Password  string   `json:"password" binding:"required"`
	Bio       string   `json:"bio"`
	ImageURL  string   `json:"imageUrl"`
	Skills    []string `json:"skills"`
	IsPrivate bool     `json:"isPrivate"`
}

type sessionPayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type createProfileResponse struct {
	Profile          profiles.UserProfile `json:"profile"`
	PasswordStrength string               `json:"passwordStrength"`
	Session          sessionPayload       `json:"session"`
}

func (h *httpHandler) handleCreateProfile(c *gin.Context) {
	var request createProfileRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if !validation.ValidatePassword(request.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "weak_password"})
		return
	}
	if !validation.ValidateBio(request.Bio, h.bioMaxLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_bio"})
		return
	}

	profile, err := h.profileService.Create(c.Request.Context(), profiles.CreateInput{
		Name:      request.Name,
		Email:     request.Email,
		Bio:       request.Bio,
		ImageURL:  request.ImageURL,
		Skills:    request.Skills,
		IsPrivate: request.IsPrivate,
	})
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(profile.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusCreated, createProfileResponse{
		Profile:          profile,
		PasswordStrength: string(validation.PasswordStrength(request.Password)),
		Session: sessionPayload{
			AccessToken: token,
			ExpiresIn:   expiresIn,
			TokenType:   "Bearer",
		},
	})
}

func (h *httpHandler) handleListProfiles(c *gin.Context) {
	all, err := h.profileService.List(c.Request.Context())
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	viewerID := sessionProfileID(c)
	redacted := make([]profiles.UserProfile, 0, len(all))
	for _, profile := range all {
		redacted = append(redacted, redactProfile(profile, viewerID))
	}
	c.JSON(http.StatusOK, redacted)
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.profileService.ByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, redactProfile(*profile, sessionProfileID(c)))
}

type updateProfileRequest struct {
	Name      *string  `json:"name"`
	Email     *string  `json:"email"`
	Bio       *string  `json:"bio"`
	ImageURL  *string  `json:"imageUrl"`
	Skills    []string `json:"skills"`
	IsPrivate *bool    `json:"isPrivate"`
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	id := c.Param("id")
	if sessionProfileID(c) != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	var request updateProfileRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if request.Name != nil && !validation.ValidateName(*request.Name) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_name"})
		return
	}
	if request.Email != nil && !validation.ValidateEmail(*request.Email) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email"})
		return
	}
	if request.Bio != nil && !validation.ValidateBio(*request.Bio, h.bioMaxLength) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_bio"})
		return
	}

	updated, err := h.profileService.Update(c.Request.Context(), profiles.Patch{
		ID:        id,
		Name:      request.Name,
		Email:     request.Email,
		Bio:       request.Bio,
		ImageURL:  request.ImageURL,
		Skills:    request.Skills,
		IsPrivate: request.IsPrivate,
	})
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteProfile(c *gin.Context) {
	id := c.Param("id")
	if sessionProfileID(c) != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	if err := h.profileService.Delete(c.Request.Context(), id); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleViewProfile(c *gin.Context) {
	if err := h.profileService.View(c.Request.Context(), c.Param("id")); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleToggleFollow(c *gin.Context) {
	following, err := h.profileService.ToggleFollow(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

func (h *httpHandler) handleIsFollowing(c *gin.Context) {
	following, err := h.profileService.IsFollowing(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

func (h *httpHandler) handleSearch(c *gin.Context) {
	results, err := h.profileService.Search(c.Request.Context(), c.Query("q"))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}

	viewerID := sessionProfileID(c)
	redacted := make([]profiles.UserProfile, 0, len(results))
	for _, profile := range results {
		redacted = append(redacted, redactProfile(profile, viewerID))
	}
	c.JSON(http.StatusOK, redacted)
}

func (h *httpHandler) handleProfileAnalytics(c *gin.Context) {
	id := c.Param("id")
	if sessionProfileID(c) != id {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	analytics, err := h.profileService.Analytics(c.Request.Context(), id)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, analytics)
}

type loginRequest struct {
	ProfileID string `json:"profileId" binding:"required"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	profile, err := h.profileService.ByID(c.Request.Context(), request.ProfileID)
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	if err := h.profileService.SetCurrentUser(c.Request.Context(), profile.ID); err != nil {
		h.respondStoreError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(profile.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}
	c.JSON(http.StatusOK, sessionPayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if err := h.profileService.ClearCurrentUser(c.Request.Context()); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleListNotifications(c *gin.Context) {
	forUser, err := h.notificationService.ForUser(c.Request.Context(), sessionProfileID(c))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, forUser)
}

func (h *httpHandler) handleUnreadCount(c *gin.Context) {
	count, err := h.notificationService.UnreadCount(c.Request.Context(), sessionProfileID(c))
	if err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	if err := h.notificationService.MarkRead(c.Request.Context(), c.Param("id")); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	if err := h.notificationService.MarkAllRead(c.Request.Context(), sessionProfileID(c)); err != nil {
		h.respondStoreError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, profiles.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_email"})
	case errors.Is(err, profiles.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, profiles.ErrNotLoggedIn):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not_logged_in"})
	default:
		h.logger.Error("store operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal"})
	}
}

// redactProfile hides the detail fields of a private profile from everyone
// but its owner. The id, name, image and privacy flag stay visible so
// listings can still render a card.
func redactProfile(profile profiles.UserProfile, viewerID string) profiles.UserProfile {
	if !profile.IsPrivate || profile.ID == viewerID {
		return profile
	}
	profile.Email = ""
	profile.Bio = ""
	profile.ImageURL = ""
	profile.Skills = []string{}
	profile.Following = []string{}
	profile.Followers = []string{}
	profile.ViewCount = 0
	return profile
}
