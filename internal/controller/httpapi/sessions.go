package httpapi

import (
	"net/http"
	"time"

	"github.com/Freeeeeet/mentor_scheduler/internal/model"
	"github.com/Freeeeeet/mentor_scheduler/internal/schedule"
	"github.com/Freeeeeet/mentor_scheduler/internal/service"
	"github.com/gin-gonic/gin"
)

type generateSessionsRequest struct {
	Rules            []model.AvailabilityRule `json:"rules"`
	HorizonWeeks     int                      `json:"horizon_weeks" binding:"required"`
	Timezone         string                   `json:"timezone"`
	Start            *time.Time               `json:"start"`
	End              *time.Time               `json:"end"`
	Capacity         int                      `json:"capacity"`
	Title            string                   `json:"title"`
	Description      string                   `json:"description"`
	Price            int64                    `json:"price"`
	Currency         string                   `json:"currency"`
	ProgramID        *int64                   `json:"program_id"`
	RequiresApproval bool                     `json:"requires_approval"`
}

// POST /sessions/generate
func (h *Handler) GenerateSessions(c *gin.Context) {
	var in generateSessionsRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	req := service.GenerateRequest{
		Rules:            in.Rules,
		HorizonWeeks:     in.HorizonWeeks,
		Price:            in.Price,
		Currency:         in.Currency,
		ProgramID:        in.ProgramID,
		RequiresApproval: in.RequiresApproval,
	}

	if in.Timezone != "" {
		loc, err := time.LoadLocation(in.Timezone)
		if err != nil {
			h.respondError(c, model.NewValidationError("timezone", "unknown IANA time zone"))
			return
		}
		req.Location = loc
	}

	if in.Start != nil && in.End != nil {
		req.Fallback = &schedule.Fallback{
			Start:       *in.Start,
			End:         *in.End,
			Capacity:    in.Capacity,
			Title:       in.Title,
			Description: in.Description,
		}
	}

	sessions, err := h.schedule.GenerateSessions(c.Request.Context(), currentUser(c), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"sessions": sessions})
}

// GET /mentors/:id/sessions
func (h *Handler) ListMentorSessions(c *gin.Context) {
	mentorID, ok := pathID(c, "id")
	if !ok {
		return
	}

	sessions, err := h.schedule.ListMentorSessions(c.Request.Context(), mentorID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if sessions == nil {
		sessions = []*model.SessionInstance{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GET /sessions/:id
func (h *Handler) GetSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	session, err := h.schedule.GetSession(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// PATCH /sessions/:id/capacity
func (h *Handler) UpdateCapacity(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var in struct {
		Capacity int `json:"capacity" binding:"required"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	session, err := h.schedule.UpdateCapacity(c.Request.Context(), currentUser(c), id, in.Capacity)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// DELETE /sessions/:id
func (h *Handler) DeleteSession(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.schedule.DeleteSession(c.Request.Context(), currentUser(c), id); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// POST /programs
func (h *Handler) CreateProgram(c *gin.Context) {
	var in struct {
		Title      string `json:"title" binding:"required"`
		TotalPrice int64  `json:"total_price"`
		Currency   string `json:"currency"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}

	program, err := h.schedule.CreateProgram(c.Request.Context(), currentUser(c), in.Title, in.TotalPrice, in.Currency)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, program)
}
