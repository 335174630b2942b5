// Rule HTTP handlers.
//
// Endpoints, all under /tenants/{tenant}:
//   - POST   /rules              (create, honors Idempotency-Key)
//   - GET    /rules              (list, optional ?scope=)
//   - POST   /rules/default      (create the built-in go-to-top rule)
//   - GET    /rules/{id}
//   - PUT    /rules/{id}
//   - DELETE /rules/{id}
//   - GET    /rules/{id}/usage   (per-actor usage counters)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/http/middleware"
	"github.com/tbourn/thread-commands/internal/services"
	"github.com/tbourn/thread-commands/internal/utils"
)

// ListRulesResponse wraps a tenant's stored rules.
type ListRulesResponse struct {
	Rules []domain.Rule `json:"rules"`
	Count int           `json:"count"`
}

// UsageResponse wraps usage counters of one rule.
type UsageResponse struct {
	RuleID int64                  `json:"rule_id"`
	Usage  []domain.RuleUsageStat `json:"usage"`
}

func ruleID(c *gin.Context) (int64, bool) {
	id, valid := utils.ParseID(c.Param("id"))
	if !valid {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "rule id must be a positive integer")
	}
	return id, valid
}

// CreateRule godoc
// @ID          createRule
// @Summary     Create a rule
// @Description Validates and stores a rule, then refreshes the target's cache. A repeated Idempotency-Key returns the original rule with Idempotency-Replayed: true.
// @Tags        Rules
// @Accept      json
// @Produce     json
// @Param       tenant           path    string              true  "Tenant ID"
// @Param       X-Actor-ID       header  string              false "Author recorded as created_by"
// @Param       Idempotency-Key  header  string              false "Idempotency key"
// @Param       body             body    services.RuleInput  true  "Rule"
// @Success     201  {object}  domain.Rule
// @Success     200  {object}  domain.Rule  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse  "Rule limit reached"
// @Failure     500  {object}  handlers.ErrorResponse
// @Router      /tenants/{tenant}/rules [post]
func (h *Handlers) CreateRule(c *gin.Context) {
	var in services.RuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	rule, replayed, err := h.rules.CreateRule(c.Request.Context(), c.Param("tenant"), middleware.ActorFrom(c), key, in)
	if err != nil {
		failService(c, err)
		return
	}
	if replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
		ok(c, http.StatusOK, rule)
		return
	}
	ok(c, http.StatusCreated, rule)
}

// ListRules godoc
// @ID          listRules
// @Summary     List rules
// @Tags        Rules
// @Produce     json
// @Param       tenant  path   string  true   "Tenant ID"
// @Param       scope   query  string  false  "thread, channel, category or server"
// @Success     200  {object}  handlers.ListRulesResponse
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /tenants/{tenant}/rules [get]
func (h *Handlers) ListRules(c *gin.Context) {
	rules, err := h.rules.ListRules(c.Request.Context(), c.Param("tenant"), domain.Scope(c.Query("scope")))
	if err != nil {
		failService(c, err)
		return
	}
	if rules == nil {
		rules = []domain.Rule{}
	}
	ok(c, http.StatusOK, ListRulesResponse{Rules: rules, Count: len(rules)})
}

// GetRule godoc
// @ID          getRule
// @Summary     Get a rule
// @Tags        Rules
// @Produce     json
// @Param       tenant  path  string  true  "Tenant ID"
// @Param       id      path  int     true  "Rule ID"
// @Success     200  {object}  domain.Rule
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /tenants/{tenant}/rules/{id} [get]
func (h *Handlers) GetRule(c *gin.Context) {
	id, valid := ruleID(c)
	if !valid {
		return
	}
	rule, err := h.rules.GetRule(c.Request.Context(), c.Param("tenant"), id)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, rule)
}

// UpdateRule godoc
// @ID          updateRule
// @Summary     Replace a rule
// @Description Replaces the rule and its triggers. Both the old and the new target caches are refreshed.
// @Tags        Rules
// @Accept      json
// @Produce     json
// @Param       tenant  path  string              true  "Tenant ID"
// @Param       id      path  int                 true  "Rule ID"
// @Param       body    body  services.RuleInput  true  "Rule"
// @Success     200  {object}  domain.Rule
// @Failure     400  {object}  handlers.ErrorResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Failure     409  {object}  handlers.ErrorResponse
// @Router      /tenants/{tenant}/rules/{id} [put]
func (h *Handlers) UpdateRule(c *gin.Context) {
	id, valid := ruleID(c)
	if !valid {
		return
	}
	var in services.RuleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	rule, err := h.rules.UpdateRule(c.Request.Context(), c.Param("tenant"), id, in)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, rule)
}

// DeleteRule godoc
// @ID          deleteRule
// @Summary     Delete a rule
// @Tags        Rules
// @Param       tenant  path  string  true  "Tenant ID"
// @Param       id      path  int     true  "Rule ID"
// @Success     204
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /tenants/{tenant}/rules/{id} [delete]
func (h *Handlers) DeleteRule(c *gin.Context) {
	id, valid := ruleID(c)
	if !valid {
		return
	}
	if err := h.rules.DeleteRule(c.Request.Context(), c.Param("tenant"), id); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}

// CreateDefaultRule godoc
// @ID          createDefaultRule
// @Summary     Store the built-in go-to-top rule
// @Tags        Rules
// @Produce     json
// @Param       tenant      path    string  true   "Tenant ID"
// @Param       X-Actor-ID  header  string  false  "Author recorded as created_by"
// @Success     201  {object}  domain.Rule
// @Failure     409  {object}  handlers.ErrorResponse  "Already present"
// @Router      /tenants/{tenant}/rules/default [post]
func (h *Handlers) CreateDefaultRule(c *gin.Context) {
	rule, err := h.rules.CreateDefaultRule(c.Request.Context(), c.Param("tenant"), middleware.ActorFrom(c))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusCreated, rule)
}

// RuleUsage godoc
// @ID          ruleUsage
// @Summary     Usage counters of a rule
// @Tags        Rules
// @Produce     json
// @Param       tenant  path   string  true   "Tenant ID"
// @Param       id      path   int     true   "Rule ID"
// @Param       limit   query  int     false  "Max rows (1..500, default 100)"
// @Success     200  {object}  handlers.UsageResponse
// @Failure     404  {object}  handlers.ErrorResponse
// @Router      /tenants/{tenant}/rules/{id}/usage [get]
func (h *Handlers) RuleUsage(c *gin.Context) {
	id, valid := ruleID(c)
	if !valid {
		return
	}
	limit := utils.Clamp(utils.AtoiDefault(c.Query("limit"), 100), 1, 500)
	usage, err := h.rules.Usage(c.Request.Context(), c.Param("tenant"), id, limit)
	if err != nil {
		failService(c, err)
		return
	}
	if usage == nil {
		usage = []domain.RuleUsageStat{}
	}
	ok(c, http.StatusOK, UsageResponse{RuleID: id, Usage: usage})
}
