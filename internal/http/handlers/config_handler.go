package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/thread-commands/internal/cache"
	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/services"
)

// GetServerConfig godoc
// @ID          getServerConfig
// @Summary     Get server configuration
// @Description Returns the tenant's configuration, creating the default one on first use.
// @Tags        Config
// @Produce     json
// @Param       tenant  path  string  true  "Tenant ID"
// @Success     200  {object}  domain.ServerConfig
// @Router      /tenants/{tenant}/config [get]
func (h *Handlers) GetServerConfig(c *gin.Context) {
	cfg, err := h.configs.GetServerConfig(c.Request.Context(), c.Param("tenant"))
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, cfg)
}

// PatchServerConfig godoc
// @ID          patchServerConfig
// @Summary     Change server configuration
// @Description Applies only the fields present in the body. The cached configuration is refreshed before the response.
// @Tags        Config
// @Accept      json
// @Produce     json
// @Param       tenant  path  string                      true  "Tenant ID"
// @Param       body    body  services.ServerConfigPatch  true  "Patch"
// @Success     200  {object}  domain.ServerConfig
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /tenants/{tenant}/config [patch]
func (h *Handlers) PatchServerConfig(c *gin.Context) {
	var p services.ServerConfigPatch
	if err := c.ShouldBindJSON(&p); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	cfg, err := h.configs.SetServerConfig(c.Request.Context(), c.Param("tenant"), p)
	if err != nil {
		failService(c, err)
		return
	}
	ok(c, http.StatusOK, cfg)
}

// CacheStats godoc
// @ID          cacheStats
// @Summary     Resolver cache counters per tier
// @Tags        Cache
// @Produce     json
// @Success     200  {object}  map[string]cache.Snapshot
// @Router      /cache/stats [get]
func (h *Handlers) CacheStats(c *gin.Context) {
	stats := h.resolver.Stats()
	if stats == nil {
		stats = map[string]cache.Snapshot{}
	}
	ok(c, http.StatusOK, stats)
}

// ForgetTarget godoc
// @ID          forgetTarget
// @Summary     Drop a cached target
// @Description Used when the platform reports a thread, channel or category deleted.
// @Tags        Cache
// @Param       scope   path  string  true  "thread, channel, category or server"
// @Param       target  path  string  true  "Target ID"
// @Success     204
// @Failure     400  {object}  handlers.ErrorResponse
// @Router      /cache/{scope}/{target} [delete]
func (h *Handlers) ForgetTarget(c *gin.Context) {
	if err := h.rules.ForgetTarget(domain.Scope(c.Param("scope")), c.Param("target")); err != nil {
		failService(c, err)
		return
	}
	noContent(c)
}
