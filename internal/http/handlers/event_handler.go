package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/engine"
	"github.com/tbourn/thread-commands/internal/http/middleware"
)

// EventResult is the outcome of one ingested event.
type EventResult struct {
	EventID    string              `json:"event_id"`
	Outcome    domain.Outcome      `json:"outcome"              example:"success"`
	Duplicate  bool                `json:"duplicate"`
	RuleID     *int64              `json:"rule_id,omitempty"`
	Tier       domain.Scope        `json:"tier,omitempty"       example:"thread"`
	Policy     string              `json:"policy,omitempty"     example:"normal"`
	Executed   []domain.ActionKind `json:"executed,omitempty"`
	Suppressed []domain.ActionKind `json:"suppressed,omitempty"`
	Detail     string              `json:"detail,omitempty"`
}

func toEventResult(r engine.Result) EventResult {
	out := EventResult{
		EventID:    r.EventID,
		Outcome:    r.Outcome,
		Duplicate:  r.Duplicate,
		RuleID:     r.RuleID,
		Tier:       r.Tier,
		Executed:   r.Executed,
		Suppressed: r.Suppressed,
		Detail:     r.Detail,
	}
	if !r.Duplicate {
		out.Policy = r.Policy.String()
	}
	return out
}

// ResolveRequest is a dry-run event: the resolver is consulted but nothing
// is claimed, rate limited or dispatched.
type ResolveRequest struct {
	Text        string `json:"text"         binding:"required" example:"!ping"`
	ContainerID string `json:"container_id" binding:"required"`
	ThreadID    string `json:"thread_id,omitempty"`
	GroupingID  string `json:"grouping_id,omitempty"`
}

// ResolveResponse names the rule an event would fire.
type ResolveResponse struct {
	Tier    domain.Scope    `json:"tier"`
	Builtin bool            `json:"builtin"`
	Rule    *domain.Rule    `json:"rule"`
	Trigger *domain.Trigger `json:"trigger"`
}

// IngestEvent godoc
// @ID          ingestEvent
// @Summary     Process a live event
// @Description Claims the event id and runs it through the engine. A second delivery of the same event id is a no-op reported with duplicate=true.
// @Tags        Events
// @Accept      json
// @Produce     json
// @Param       body  body  domain.EventContext  true  "Event"
// @Success     200  {object}  handlers.EventResult
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Ledger unavailable"
// @Router      /events [post]
func (h *Handlers) IngestEvent(c *gin.Context) {
	var ev domain.EventContext
	if err := c.ShouldBindJSON(&ev); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid event: "+err.Error())
		return
	}
	middleware.LoggerFrom(c).Debug().
		Str("event", ev.EventID).
		Str("text", middleware.Preview(ev.Text, 64)).
		Msg("event received")

	res, err := h.events.HandleEvent(c.Request.Context(), ev, domain.SourceLive)
	if err != nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeClaimFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, toEventResult(res))
}

// ResolveEvent godoc
// @ID          resolveEvent
// @Summary     Dry-run rule resolution
// @Description Reports which rule and tier would answer the text, without side effects.
// @Tags        Events
// @Accept      json
// @Produce     json
// @Param       tenant  path  string                    true  "Tenant ID"
// @Param       body    body  handlers.ResolveRequest  true  "Event"
// @Success     200  {object}  handlers.ResolveResponse
// @Failure     404  {object}  handlers.ErrorResponse  "No rule matches"
// @Router      /tenants/{tenant}/resolve [post]
func (h *Handlers) ResolveEvent(c *gin.Context) {
	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	m, err := h.resolver.Resolve(c.Request.Context(), domain.EventContext{
		TenantID:    c.Param("tenant"),
		ContainerID: req.ContainerID,
		ThreadID:    req.ThreadID,
		GroupingID:  req.GroupingID,
		Text:        req.Text,
	})
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if m == nil {
		fail(c, http.StatusNotFound, ErrCodeNoMatch, "no rule matches")
		return
	}
	ok(c, http.StatusOK, ResolveResponse{Tier: m.Tier, Builtin: m.Rule.Builtin(), Rule: m.Rule, Trigger: m.Trigger})
}

// ScanAll godoc
// @ID          scanAll
// @Summary     Run one reconciliation pass over every opted-in tenant
// @Tags        Scan
// @Produce     json
// @Success     200  {object}  scanner.Report
// @Failure     503  {object}  handlers.ErrorResponse  "Scanning disabled"
// @Router      /scan [post]
func (h *Handlers) ScanAll(c *gin.Context) {
	if h.scan == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeScanDisabled, "scanning is disabled")
		return
	}
	rep, err := h.scan.ScanOnce(c.Request.Context())
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, rep)
}

// ScanTenant godoc
// @ID          scanTenant
// @Summary     Run one reconciliation pass for a tenant
// @Tags        Scan
// @Produce     json
// @Param       tenant  path  string  true  "Tenant ID"
// @Success     200  {object}  scanner.TenantReport
// @Failure     502  {object}  scanner.TenantReport  "Event source failed"
// @Failure     503  {object}  handlers.ErrorResponse
// @Router      /tenants/{tenant}/scan [post]
func (h *Handlers) ScanTenant(c *gin.Context) {
	if h.scan == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeScanDisabled, "scanning is disabled")
		return
	}
	rep := h.scan.ScanTenant(c.Request.Context(), c.Param("tenant"))
	status := http.StatusOK
	if rep.Err != "" {
		status = http.StatusBadGateway
	}
	ok(c, status, rep)
}
