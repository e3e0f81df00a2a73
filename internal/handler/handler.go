package handler

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"invigilation/internal/allocation"
	"invigilation/internal/apperrors"
	"invigilation/internal/attendance"
	"invigilation/internal/auth"
	"invigilation/internal/logger"
	"invigilation/internal/model"
	"invigilation/internal/registry"
)

const callerKey = "caller"

// Handler serves the REST API.
type Handler struct {
	registry   *registry.Service
	allocation *allocation.Service
	attendance *attendance.Service
	tokens     *auth.Issuer
}

// New wires a Handler.
func New(reg *registry.Service, alloc *allocation.Service, att *attendance.Service, tokens *auth.Issuer) *Handler {
	return &Handler{registry: reg, allocation: alloc, attendance: att, tokens: tokens}
}

// Register mounts every /api route on r. loginGuard runs in front of login
// only and may be nil.
func (h *Handler) Register(r gin.IRouter, loginGuard gin.HandlerFunc) {
	api := r.Group("/api")
	if loginGuard != nil {
		api.POST("/login", loginGuard, h.login)
	} else {
		api.POST("/login", h.login)
	}

	authed := api.Group("", auth.Bearer(h.tokens), h.identify)
	authed.POST("/logout", h.logout)
	authed.GET("/current_user", h.currentUser)
	authed.GET("/venues", h.listVenues)
	authed.GET("/allocations", h.listAllocations)
	authed.POST("/attendance", h.markAttendance)

	admin := authed.Group("", requireAdmin)
	admin.GET("/faculty", h.listFaculty)
	admin.POST("/faculty", h.addFaculty)
	admin.DELETE("/faculty/:id", h.deleteFaculty)
	admin.POST("/venues", h.addVenue)
	admin.DELETE("/venues/:id", h.deleteVenue)
	admin.POST("/allocations/generate", h.generate)
	admin.GET("/attendance_records", h.attendanceRecords)
	admin.POST("/bulk-import/:kind", h.bulkImport)
}

// fail answers {"success": false, "message": ...} with the status of err.
func fail(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	message := apperrors.Message(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		message = apperrors.GenericMessage
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "message": message})
}

func (h *Handler) identify(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		fail(c, apperrors.New(apperrors.ErrUnauthenticated, "Missing or invalid token"))
		return
	}
	f, err := h.registry.Faculty(c.Request.Context(), claims.FacultyID)
	if err != nil {
		if apperrors.HTTPStatus(err) == http.StatusNotFound {
			err = apperrors.New(apperrors.ErrUnauthenticated, "User not found")
		}
		fail(c, err)
		return
	}
	c.Set(callerKey, *f)
	c.Next()
}

func caller(c *gin.Context) model.Faculty {
	v, _ := c.Get(callerKey)
	f, _ := v.(model.Faculty)
	return f
}

func requireAdmin(c *gin.Context) {
	if !caller(c).IsAdmin {
		fail(c, apperrors.Forbidden("Unauthorized"))
		return
	}
	c.Next()
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, apperrors.Validation(fmt.Sprintf("Invalid id %q", c.Param("id"))))
		return 0, false
	}
	return id, true
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Validation("Email and password are required"))
		return
	}
	f, err := h.registry.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	tok, err := h.tokens.Issue(f.ID, f.IsAdmin)
	if err != nil {
		fail(c, fmt.Errorf("issue token: %w", err))
		return
	}
	c.JSON(http.StatusOK, model.LoginResult{
		Success: true,
		Token:   tok.AccessToken,
		IsAdmin: f.IsAdmin,
		User:    model.User{ID: f.ID, Name: f.Name, Email: f.Email},
	})
}

func (h *Handler) logout(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Logged out successfully"})
}

func (h *Handler) currentUser(c *gin.Context) {
	f := caller(c)
	c.JSON(http.StatusOK, model.User{ID: f.ID, Name: f.Name, Email: f.Email, IsAdmin: f.IsAdmin})
}

func (h *Handler) listFaculty(c *gin.Context) {
	out, err := h.registry.ListFaculty(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type facultyRequest struct {
	Name         string `json:"name" binding:"required"`
	MobileNumber string `json:"mobile_number" binding:"required"`
	Email        string `json:"email_id" binding:"required,email"`
	RFIDTag      string `json:"rfid_tag" binding:"omitempty,rfid"`
	IsAdmin      bool   `json:"is_admin"`
}

func (h *Handler) addFaculty(c *gin.Context) {
	var req facultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Validation(bindingMessage(err)))
		return
	}
	id, err := h.registry.AddFaculty(c.Request.Context(), model.Faculty{
		Name:         req.Name,
		MobileNumber: req.MobileNumber,
		Email:        req.Email,
		RFIDTag:      req.RFIDTag,
		IsAdmin:      req.IsAdmin,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Faculty added successfully", "faculty_id": id})
}

func (h *Handler) deleteFaculty(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.registry.DeleteFaculty(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Faculty deleted successfully"})
}

func (h *Handler) listVenues(c *gin.Context) {
	out, err := h.registry.ListVenues(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

type venueRequest struct {
	Name     string `json:"name" binding:"required"`
	Location string `json:"location" binding:"required"`
	Capacity int    `json:"capacity" binding:"required,gt=0"`
}

func (h *Handler) addVenue(c *gin.Context) {
	var req venueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Validation(bindingMessage(err)))
		return
	}
	id, err := h.registry.AddVenue(c.Request.Context(), model.Venue{Name: req.Name, Location: req.Location, Capacity: req.Capacity})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Venue added successfully", "venue_id": id})
}

func (h *Handler) deleteVenue(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.registry.DeleteVenue(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Venue deleted successfully"})
}

func (h *Handler) listAllocations(c *gin.Context) {
	out, err := h.allocation.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) generate(c *gin.Context) {
	var req model.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, apperrors.Validation(bindingMessage(err)))
		return
	}
	count, err := h.allocation.Generate(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Successfully generated %d allocations", count),
		"count":   count,
	})
}

func (h *Handler) bulkImport(c *gin.Context) {
	kind := c.Param("kind")
	if kind != "faculty" && kind != "venues" {
		fail(c, apperrors.NotFound("Unknown import type"))
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		fail(c, apperrors.Validation("No file part in the request"))
		return
	}
	defer file.Close()

	var res model.ImportResult
	if kind == "faculty" {
		res, err = h.registry.ImportFaculty(c.Request.Context(), header.Filename, file)
	} else {
		res, err = h.registry.ImportVenues(c.Request.Context(), header.Filename, file)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  registry.ImportMessage(kind, res),
		"imported": res.Imported,
		"updated":  res.Updated,
	})
}
