package parties

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/otgil/rethread/internal/middleware"
	"github.com/otgil/rethread/internal/models"
	"github.com/otgil/rethread/pkg/response"
	"github.com/otgil/rethread/pkg/storage"
)

// ImageStore is the object storage used for party images. *storage.S3 implements it.
type ImageStore interface {
	PresignPartyImageUpload(ctx context.Context, key, contentType string) (string, error)
	UploadPartyImage(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error)
	PublicURL(key string) string
	PresignExpire() time.Duration
}

// ImpactRequest carries the impact metrics group. All three values are required.
type ImpactRequest struct {
	ItemsExchanged *int `json:"items_exchanged" binding:"required,min=0"`
	WaterSaved     *int `json:"water_saved" binding:"required,min=0"`
	CO2Reduced     *int `json:"co2_reduced" binding:"required,min=0"`
}

func (r *ImpactRequest) model() *models.ImpactStats {
	if r == nil {
		return nil
	}
	return &models.ImpactStats{ItemsExchanged: *r.ItemsExchanged, WaterSaved: *r.WaterSaved, CO2Reduced: *r.CO2Reduced}
}

// KitRequest carries the kit details group. All three values are required.
type KitRequest struct {
	Participants   *int `json:"participants" binding:"required,min=0"`
	ItemsPerPerson *int `json:"items_per_person" binding:"required,min=0"`
	Cost           *int `json:"cost" binding:"required,min=0"`
}

func (r *KitRequest) model() *models.KitDetails {
	if r == nil {
		return nil
	}
	return &models.KitDetails{Participants: *r.Participants, ItemsPerPerson: *r.ItemsPerPerson, Cost: *r.Cost}
}

// CreateRequest is the body for POST /parties.
type CreateRequest struct {
	Title       string         `json:"title" binding:"required,max=200"`
	Description string         `json:"description"`
	Date        time.Time      `json:"date" binding:"required"`
	Location    string         `json:"location" binding:"required"`
	ImageURL    string         `json:"image_url"`
	Details     []string       `json:"details"`
	Impact      *ImpactRequest `json:"impact"`
	KitDetails  *KitRequest    `json:"kit_details"`
}

// PatchRequest is the body for PATCH /parties/:id. Absent fields are left untouched.
type PatchRequest struct {
	Title       *string        `json:"title" binding:"omitempty,min=1,max=200"`
	Description *string        `json:"description"`
	Date        *time.Time     `json:"date"`
	Location    *string        `json:"location" binding:"omitempty,min=1"`
	ImageURL    *string        `json:"image_url"`
	Details     *[]string      `json:"details"`
	Status      *string        `json:"status"`
	Impact      *ImpactRequest `json:"impact"`
	KitDetails  *KitRequest    `json:"kit_details"`
}

// StatusRequest is the body of the status-setting endpoints.
type StatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UploadURLRequest is the body for POST /parties/:id/image/upload-url.
type UploadURLRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"content_type"`
}

// Handler handles party HTTP endpoints.
type Handler struct {
	parties      *Controller
	participants *ParticipationManager
	images       ImageStore
	logger       *zap.Logger
}

// NewHandler creates a party handler. images may be nil when S3 is not configured.
func NewHandler(parties *Controller, participants *ParticipationManager, images ImageStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{parties: parties, participants: participants, images: images, logger: logger}
}

// Routes mounts the party endpoints. authn resolves the caller on protected
// routes; viewer resolves it when present on the public reads.
func (h *Handler) Routes(r gin.IRouter, authn, viewer gin.HandlerFunc) {
	g := r.Group("/parties")
	g.GET("", viewer, h.List)
	g.GET("/:id", viewer, h.Get)

	g.POST("", authn, h.Create)
	g.GET("/me/my-parties", authn, h.ListMine)
	g.PATCH("/:id", authn, h.Update)
	g.POST("/:id/join", authn, h.Join)
	g.DELETE("/:id/leave", authn, h.Leave)
	g.GET("/:id/dashboard/participants", authn, h.ListParticipants)
	g.PATCH("/:id/participants/:user_id", authn, h.SetParticipantStatus)
	g.DELETE("/:id/participants/:user_id", authn, h.RemoveParticipant)
	g.POST("/:id/image/upload-url", authn, h.ImageUploadURL)
	g.POST("/:id/image", authn, h.UploadImage)

	admin := g.Group("/admin", authn, middleware.RequireRole(string(models.RoleAdmin)))
	admin.POST("/:id/approve", h.Approve)
	admin.POST("/:id/reject", h.Reject)
	admin.PUT("/:id/status", h.ForceStatus)
}

// writeError maps service errors to the response envelope.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTooManyAttempts):
		response.TooManyRequests(c, err.Error())
	case errors.Is(err, ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, ErrHostRemoval):
		response.Fail(c, http.StatusForbidden, "host_removal", err.Error())
	case errors.Is(err, ErrHostLeave):
		response.Fail(c, http.StatusBadRequest, "host_cannot_leave", err.Error())
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrInvalidState):
		response.Fail(c, http.StatusBadRequest, "invalid_state", err.Error())
	case errors.Is(err, ErrInvalidOperation):
		response.Fail(c, http.StatusBadRequest, "invalid_operation", err.Error())
	case errors.Is(err, ErrConflict):
		response.Conflict(c, err.Error())
	default:
		h.logger.Error("party request failed",
			zap.Error(err),
			zap.String("route", c.FullPath()),
			zap.String("party_id", c.Param("id")),
		)
		response.Internal(c, "internal error")
	}
}

// view projects a party for the caller. Only the host and admins see the
// invitation code and the participant list.
func view(c *gin.Context, p models.Party) models.Party {
	if id, ok := middleware.OptionalIdentity(c); ok && (id.UserID == p.HostID || id.IsAdmin()) {
		return p
	}
	return p.Public()
}

func viewList(c *gin.Context, list []models.Party) []models.Party {
	out := make([]models.Party, 0, len(list))
	for _, p := range list {
		out = append(out, view(c, p))
	}
	return out
}

func (h *Handler) partyID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.NotFound(c, ErrNotFound.Error())
		return uuid.Nil, false
	}
	return id, true
}

// List handles GET /parties?status_filter=&search_query=.
func (h *Handler) List(c *gin.Context) {
	status := models.PartyStatusUpcoming
	if raw := c.Query("status_filter"); raw != "" {
		st, err := models.ParsePartyStatus(strings.ToUpper(raw))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		status = st
	}
	list, err := h.parties.List(c.Request.Context(), status, c.Query("search_query"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, viewList(c, list))
}

// Get handles GET /parties/:id.
func (h *Handler) Get(c *gin.Context) {
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	p, err := h.parties.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, view(c, *p))
}

// Create handles POST /parties. The caller becomes the host.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	p, err := h.parties.Create(c.Request.Context(), CreateInput{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Date:        req.Date,
		Location:    strings.TrimSpace(req.Location),
		ImageURL:    req.ImageURL,
		Details:     req.Details,
		Impact:      req.Impact.model(),
		KitDetails:  req.KitDetails.model(),
	}, middleware.CurrentIdentity(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Created(c, view(c, *p))
}

// ListMine handles GET /parties/me/my-parties.
func (h *Handler) ListMine(c *gin.Context) {
	list, err := h.parties.ListForUser(c.Request.Context(), middleware.CurrentIdentity(c).UserID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, viewList(c, list))
}

// Update handles PATCH /parties/:id (host only).
func (h *Handler) Update(c *gin.Context) {
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	var req PatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	patch := Patch{
		Title:       req.Title,
		Description: req.Description,
		Date:        req.Date,
		Location:    req.Location,
		ImageURL:    req.ImageURL,
		Details:     req.Details,
		Impact:      req.Impact.model(),
		KitDetails:  req.KitDetails.model(),
	}
	if req.Status != nil {
		st, err := models.ParsePartyStatus(strings.ToUpper(*req.Status))
		if err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		patch.Status = &st
	}
	p, err := h.parties.HostUpdate(c.Request.Context(), id, middleware.CurrentIdentity(c), patch)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, view(c, *p))
}

// Join handles POST /parties/:id/join?invitation_code=.
func (h *Handler) Join(c *gin.Context) {
	// A malformed id becomes uuid.Nil, which never matches a code, so it fails
	// exactly like a wrong code.
	id, _ := uuid.Parse(c.Param("id"))
	row, err := h.participants.Join(c.Request.Context(), id, c.Query("invitation_code"), middleware.CurrentIdentity(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, row)
}

// Leave handles DELETE /parties/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	if _, err := h.participants.Leave(c.Request.Context(), id, middleware.CurrentIdentity(c)); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

// ListParticipants handles GET /parties/:id/dashboard/participants (host only).
func (h *Handler) ListParticipants(c *gin.Context) {
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	list, err := h.participants.ListParticipants(c.Request.Context(), id, middleware.CurrentIdentity(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, list)
}

func (h *Handler) targetUser(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("user_id"))
	if err != nil {
		response.NotFound(c, ErrNotFound.Error())
		return uuid.Nil, false
	}
	return id, true
}

// RemoveParticipant handles DELETE /parties/:id/participants/:user_id (host only).
func (h *Handler) RemoveParticipant(c *gin.Context) {
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	target, ok := h.targetUser(c)
	if !ok {
		return
	}
	if _, err := h.participants.Remove(c.Request.Context(), id, middleware.CurrentIdentity(c), target); err != nil {
		h.writeError(c, err)
		return
	}
	response.NoContent(c)
}

// SetParticipantStatus handles PATCH /parties/:id/participants/:user_id (host only).
func (h *Handler) SetParticipantStatus(c *gin.Context) {
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	target, ok := h.targetUser(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	st, err := models.ParseParticipationStatus(strings.ToUpper(req.Status))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	row, err := h.participants.SetStatus(c.Request.Context(), id, middleware.CurrentIdentity(c), target, st)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, row)
}

// Approve handles POST /parties/admin/:id/approve (admin only).
func (h *Handler) Approve(c *gin.Context) {
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	p, err := h.parties.Approve(c.Request.Context(), id, middleware.CurrentIdentity(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, view(c, *p))
}

// Reject handles POST /parties/admin/:id/reject (admin only).
func (h *Handler) Reject(c *gin.Context) {
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	p, err := h.parties.Reject(c.Request.Context(), id, middleware.CurrentIdentity(c))
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, view(c, *p))
}

// ForceStatus handles PUT /parties/admin/:id/status (admin only).
func (h *Handler) ForceStatus(c *gin.Context) {
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	var req StatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	st, err := models.ParsePartyStatus(strings.ToUpper(req.Status))
	if err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	p, err := h.parties.ForceStatus(c.Request.Context(), id, middleware.CurrentIdentity(c), st)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, view(c, *p))
}

// ImageUploadURL handles POST /parties/:id/image/upload-url (host only). The
// client PUTs the file to upload_url and then PATCHes image_url.
func (h *Handler) ImageUploadURL(c *gin.Context) {
	if h.images == nil {
		response.ServiceUnavailable(c, "image storage not configured")
		return
	}
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	if _, err := h.parties.EditableParty(c.Request.Context(), id, middleware.CurrentIdentity(c)); err != nil {
		h.writeError(c, err)
		return
	}
	var req UploadURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !storage.ValidateImageType(req.ContentType, req.Filename) {
		response.BadRequest(c, "invalid file type: only jpg, png and webp images allowed")
		return
	}
	contentType := storage.ImageContentType(req.ContentType, req.Filename)
	key := storage.PartyImageKey(id, req.Filename)
	url, err := h.images.PresignPartyImageUpload(c.Request.Context(), key, contentType)
	if err != nil {
		h.logger.Error("presign party image upload failed", zap.Error(err), zap.String("party_id", id.String()))
		response.Internal(c, "image upload unavailable")
		return
	}
	response.OK(c, gin.H{
		"upload_url":   url,
		"s3_key":       key,
		"image_url":    h.images.PublicURL(key),
		"content_type": contentType,
		"expires_in":   int(h.images.PresignExpire().Seconds()),
	})
}

// UploadImage handles POST /parties/:id/image (host only, multipart field "file").
// The stored image becomes the party's image_url.
func (h *Handler) UploadImage(c *gin.Context) {
	if h.images == nil {
		response.ServiceUnavailable(c, "image storage not configured")
		return
	}
	id, ok := h.partyID(c)
	if !ok {
		return
	}
	caller := middleware.CurrentIdentity(c)
	if _, err := h.parties.EditableParty(c.Request.Context(), id, caller); err != nil {
		h.writeError(c, err)
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		response.BadRequest(c, "missing file (form field: file)")
		return
	}
	if file.Size > storage.MaxPartyImageSize {
		response.BadRequest(c, "file size exceeds 5MB limit")
		return
	}
	declared := file.Header.Get("Content-Type")
	if !storage.ValidateImageType(declared, file.Filename) {
		response.BadRequest(c, "invalid file type: only jpg, png and webp images allowed")
		return
	}
	rc, err := file.Open()
	if err != nil {
		h.logger.Error("open uploaded file failed", zap.Error(err))
		response.Internal(c, "failed to read file")
		return
	}
	defer rc.Close()

	key := storage.PartyImageKey(id, file.Filename)
	url, err := h.images.UploadPartyImage(c.Request.Context(), key, storage.ImageContentType(declared, file.Filename), rc, file.Size)
	if err != nil {
		h.logger.Error("party image upload failed", zap.Error(err), zap.String("party_id", id.String()), zap.String("key", key))
		response.Internal(c, "failed to upload file to storage")
		return
	}
	p, err := h.parties.HostUpdate(c.Request.Context(), id, caller, Patch{ImageURL: &url})
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.OK(c, view(c, *p))
}
