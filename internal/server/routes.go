package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/kpiyard/internal/apperr"
	"github.com/zulandar/kpiyard/internal/contenthash"
	"github.com/zulandar/kpiyard/internal/cycle"
	"github.com/zulandar/kpiyard/internal/gate"
	"github.com/zulandar/kpiyard/internal/notify"
	"github.com/zulandar/kpiyard/internal/scoring"
)

type handlers struct {
	opts StartOpts
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api", authenticate(h.opts.Secret))

	api.GET("/cycles/:id/gates", h.getGates)

	api.POST("/assignments/:id/plan", h.ensurePlan)
	api.POST("/assignments/:id/submit", h.submitEvaluation)
	api.GET("/assignments/:id/summary", h.summary)
	api.PUT("/assignments/:id/summary-note", h.summaryNote)

	api.GET("/plans/:id", h.getPlan)
	api.PUT("/plans/:id/draft", h.saveDraft)
	api.POST("/plans/:id/request-confirm", h.requestConfirm)
	api.POST("/plans/:id/cancel-request", h.cancelRequest)
	api.POST("/plans/:id/confirm", h.confirm)
	api.POST("/plans/:id/reject", h.reject)
	api.POST("/plans/:id/reopen", h.reopen)

	api.POST("/nodes/:id/submissions", h.scoreNode)

	api.GET("/notifications", h.inbox)
	api.POST("/notifications/:id/ack", h.acknowledge)
}

// bind decodes the JSON body into dest, reporting malformed input as a
// ValidationError.
func bind(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		writeError(c, apperr.Validation("malformed request body: %v", err))
		return false
	}
	return true
}

func (h *handlers) getGates(c *gin.Context) {
	cy, err := cycle.Get(c.Request.Context(), h.opts.DB, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"cycleId": cy.ID,
		"closed":  cy.ClosedAt != nil,
		"gates":   gate.Status(cy, h.opts.Now()),
	})
}

func (h *handlers) ensurePlan(c *gin.Context) {
	p, created, err := h.opts.Plans.EnsurePlan(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"planId": p.ID, "version": p.Version, "created": created})
}

func (h *handlers) getPlan(c *gin.Context) {
	view, err := h.opts.Plans.GetPlan(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type draftRequest struct {
	Nodes []contenthash.DraftNode `json:"nodes"`
	Note  string                  `json:"note"`
}

func (h *handlers) saveDraft(c *gin.Context) {
	var req draftRequest
	if !bind(c, &req) {
		return
	}
	res, err := h.opts.Plans.SaveDraft(c.Request.Context(), actorFrom(c), c.Param("id"), req.Nodes, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *handlers) requestConfirm(c *gin.Context) {
	h.respondOK(c, h.opts.Plans.RequestConfirm(c.Request.Context(), actorFrom(c), c.Param("id")))
}

func (h *handlers) cancelRequest(c *gin.Context) {
	h.respondOK(c, h.opts.Plans.CancelRequestConfirm(c.Request.Context(), actorFrom(c), c.Param("id")))
}

func (h *handlers) confirm(c *gin.Context) {
	h.respondOK(c, h.opts.Plans.Confirm(c.Request.Context(), actorFrom(c), c.Param("id")))
}

type noteRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

func (h *handlers) reject(c *gin.Context) {
	var req noteRequest
	if !bind(c, &req) {
		return
	}
	h.respondOK(c, h.opts.Plans.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req.Reason))
}

func (h *handlers) reopen(c *gin.Context) {
	var req noteRequest
	if c.Request.ContentLength != 0 && !bind(c, &req) {
		return
	}
	res, err := h.opts.Plans.Reopen(c.Request.Context(), actorFrom(c), c.Param("id"), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *handlers) scoreNode(c *gin.Context) {
	var payload scoring.Payload
	if !bind(c, &payload) {
		return
	}
	res, err := h.opts.Scoring.ScoreNode(c.Request.Context(), actorFrom(c), c.Param("id"), payload)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (h *handlers) submitEvaluation(c *gin.Context) {
	sum, err := h.opts.Scoring.SubmitEvaluation(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *handlers) summary(c *gin.Context) {
	sum, err := h.opts.Scoring.Summary(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *handlers) summaryNote(c *gin.Context) {
	var req noteRequest
	if !bind(c, &req) {
		return
	}
	h.respondOK(c, h.opts.Scoring.WriteSummaryNote(c.Request.Context(), actorFrom(c), c.Param("id"), req.Note))
}

func (h *handlers) inbox(c *gin.Context) {
	rows, err := notify.Inbox(h.opts.DB.WithContext(c.Request.Context()), actorFrom(c).EmployeeID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": rows})
}

func (h *handlers) acknowledge(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, apperr.NotFound("notification", c.Param("id")))
		return
	}
	h.respondOK(c, notify.Acknowledge(h.opts.DB.WithContext(c.Request.Context()), actorFrom(c).EmployeeID, uint(id)))
}

func (h *handlers) respondOK(c *gin.Context, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
