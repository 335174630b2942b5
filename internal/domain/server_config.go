package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ServerConfig is the per-tenant switchboard for the engine.
//
// Fields:
//   - Enabled: master switch; when false no event is acted upon.
//   - ScanEnabled: include the tenant in reconciliation scans.
//   - DefaultRuleEnabled: synthesize the built-in go-to-top rule when the
//     tenant has no server rule of its own.
//   - AllowedContainers: when non-empty, events inside threads whose
//     container is not listed are ignored.
//   - Defaults: cooldowns applied when a rule leaves a field nil.
type ServerConfig struct {
	TenantID           string     `json:"tenant_id"            gorm:"type:varchar(32);primaryKey"`
	Enabled            bool       `json:"enabled"              gorm:"not null"`
	ScanEnabled        bool       `json:"scan_enabled"         gorm:"not null"`
	DefaultRuleEnabled bool       `json:"default_rule_enabled" gorm:"not null"`
	AllowedContainers  StringList `json:"allowed_containers"   gorm:"type:text"`
	Defaults           Cooldowns  `json:"defaults"             gorm:"embedded;embeddedPrefix:default_"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName returns the database table name for ServerConfig.
func (ServerConfig) TableName() string { return "server_configs" }

// NewServerConfig returns the configuration a tenant gets on first use.
func NewServerConfig(tenantID string) *ServerConfig {
	return &ServerConfig{
		TenantID:    tenantID,
		Enabled:     true,
		ScanEnabled: true,
		Defaults: Cooldowns{
			UserReply:     intp(60),
			ThreadReply:   intp(30),
			ChannelReply:  intp(0),
			UserDelete:    intp(0),
			ThreadDelete:  intp(0),
			ChannelDelete: intp(0),
		},
	}
}

// ContainerAllowed reports whether events in containerID may be processed.
func (c *ServerConfig) ContainerAllowed(containerID string) bool {
	if len(c.AllowedContainers) == 0 {
		return true
	}
	for _, id := range c.AllowedContainers {
		if id == containerID {
			return true
		}
	}
	return false
}

// StringList is a []string persisted as a JSON array in a TEXT column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*l = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return errors.New("StringList: unsupported column type")
	}
	if len(raw) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(raw, (*[]string)(l))
}

func intp(v int) *int { return &v }
