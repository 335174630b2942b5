package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/repo"
)

// ServerConfigPatch changes only the fields that are set. Cooldown fields
// replace the stored default when non-nil.
type ServerConfigPatch struct {
	Enabled            *bool             `json:"enabled,omitempty"`
	ScanEnabled        *bool             `json:"scan_enabled,omitempty"`
	DefaultRuleEnabled *bool             `json:"default_rule_enabled,omitempty"`
	AllowedContainers  *[]string         `json:"allowed_containers,omitempty"`
	Defaults           *domain.Cooldowns `json:"defaults,omitempty"`
}

// ConfigService manages per-tenant server configuration.
type ConfigService struct {
	DB    *gorm.DB
	Cache CacheSync
}

// GetServerConfig returns tenantID's configuration, creating the default one
// on first use.
func (s *ConfigService) GetServerConfig(ctx context.Context, tenantID string) (*domain.ServerConfig, error) {
	tr := otel.Tracer("services/ConfigService")
	ctx, span := tr.Start(ctx, "GetServerConfig", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	return repo.LoadServerConfig(ctx, s.DB, tenantID)
}

// SetServerConfig applies p to tenantID's configuration and refreshes the
// cached configuration and server tier before returning.
func (s *ConfigService) SetServerConfig(ctx context.Context, tenantID string, p ServerConfigPatch) (*domain.ServerConfig, error) {
	tr := otel.Tracer("services/ConfigService")
	ctx, span := tr.Start(ctx, "SetServerConfig", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	if p.Defaults != nil {
		if err := validateCooldowns("defaults", *p.Defaults); err != nil {
			return nil, err
		}
	}

	var cfg *domain.ServerConfig
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := repo.LoadServerConfig(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		apply(c, p)
		cfg = c
		return repo.SaveServerConfig(ctx, tx, c)
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	if s.Cache != nil {
		if err := s.Cache.RefreshConfig(ctx, tenantID); err != nil {
			log.Warn().Err(err).Str("tenant", tenantID).Msg("config write-through failed; entry invalidated")
		}
	}
	return cfg, nil
}

func apply(c *domain.ServerConfig, p ServerConfigPatch) {
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.ScanEnabled != nil {
		c.ScanEnabled = *p.ScanEnabled
	}
	if p.DefaultRuleEnabled != nil {
		c.DefaultRuleEnabled = *p.DefaultRuleEnabled
	}
	if p.AllowedContainers != nil {
		ids := make(domain.StringList, 0, len(*p.AllowedContainers))
		for _, id := range *p.AllowedContainers {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		c.AllowedContainers = ids
	}
	if d := p.Defaults; d != nil {
		set := func(dst **int, v *int) {
			if v != nil {
				n := *v
				*dst = &n
			}
		}
		set(&c.Defaults.UserReply, d.UserReply)
		set(&c.Defaults.ThreadReply, d.ThreadReply)
		set(&c.Defaults.ChannelReply, d.ChannelReply)
		set(&c.Defaults.UserDelete, d.UserDelete)
		set(&c.Defaults.ThreadDelete, d.ThreadDelete)
		set(&c.Defaults.ChannelDelete, d.ChannelDelete)
	}
}
