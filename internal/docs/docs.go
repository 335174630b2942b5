// Package docs registers the OpenAPI description served by the swagger UI.
// Regenerate with `swag init -g cmd/threadcmd/main.go -o internal/docs`
// after changing handler annotations.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/events": {
            "post": {
                "description": "Claims the event id and runs it through the engine. A second delivery of the same event id is a no-op reported with duplicate=true.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Process a live event",
                "operationId": "ingestEvent",
                "parameters": [
                    {"description": "Event", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.EventContext"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.EventResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Ledger unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/scan": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Scan"],
                "summary": "Run one reconciliation pass over every opted-in tenant",
                "operationId": "scanAll",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/scanner.Report"}},
                    "503": {"description": "Scanning disabled", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/cache/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Cache"],
                "summary": "Resolver cache counters per tier",
                "operationId": "cacheStats",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"$ref": "#/definitions/cache.Snapshot"}}}
                }
            }
        },
        "/cache/{scope}/{target}": {
            "delete": {
                "description": "Used when the platform reports a thread, channel or category deleted.",
                "tags": ["Cache"],
                "summary": "Drop a cached target",
                "operationId": "forgetTarget",
                "parameters": [
                    {"type": "string", "description": "thread, channel, category or server", "name": "scope", "in": "path", "required": true},
                    {"type": "string", "description": "Target ID", "name": "target", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tenants/{tenant}/rules": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Rules"],
                "summary": "List rules",
                "operationId": "listRules",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "thread, channel, category or server", "name": "scope", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListRulesResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Validates and stores a rule, then refreshes the target's cache. A repeated Idempotency-Key returns the original rule with Idempotency-Replayed: true.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Rules"],
                "summary": "Create a rule",
                "operationId": "createRule",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Author recorded as created_by", "name": "X-Actor-ID", "in": "header"},
                    {"type": "string", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header"},
                    {"description": "Rule", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.RuleInput"}}
                ],
                "responses": {
                    "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/domain.Rule"}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Rule"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Rule limit reached", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tenants/{tenant}/rules/default": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Rules"],
                "summary": "Store the built-in go-to-top rule",
                "operationId": "createDefaultRule",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true},
                    {"type": "string", "description": "Author recorded as created_by", "name": "X-Actor-ID", "in": "header"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.Rule"}},
                    "409": {"description": "Already present", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tenants/{tenant}/rules/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Rules"],
                "summary": "Get a rule",
                "operationId": "getRule",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true},
                    {"type": "integer", "description": "Rule ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Rule"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "description": "Replaces the rule and its triggers. Both the old and the new target caches are refreshed.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Rules"],
                "summary": "Replace a rule",
                "operationId": "updateRule",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true},
                    {"type": "integer", "description": "Rule ID", "name": "id", "in": "path", "required": true},
                    {"description": "Rule", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.RuleInput"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.Rule"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Rules"],
                "summary": "Delete a rule",
                "operationId": "deleteRule",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true},
                    {"type": "integer", "description": "Rule ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tenants/{tenant}/rules/{id}/usage": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Rules"],
                "summary": "Usage counters of a rule",
                "operationId": "ruleUsage",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true},
                    {"type": "integer", "description": "Rule ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Max rows (1..500, default 100)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UsageResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tenants/{tenant}/config": {
            "get": {
                "description": "Returns the tenant's configuration, creating the default one on first use.",
                "produces": ["application/json"],
                "tags": ["Config"],
                "summary": "Get server configuration",
                "operationId": "getServerConfig",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ServerConfig"}}
                }
            },
            "patch": {
                "description": "Applies only the fields present in the body. The cached configuration is refreshed before the response.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Config"],
                "summary": "Change server configuration",
                "operationId": "patchServerConfig",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true},
                    {"description": "Patch", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.ServerConfigPatch"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ServerConfig"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tenants/{tenant}/resolve": {
            "post": {
                "description": "Reports which rule and tier would answer the text, without side effects.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Events"],
                "summary": "Dry-run rule resolution",
                "operationId": "resolveEvent",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true},
                    {"description": "Event", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ResolveRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ResolveResponse"}},
                    "404": {"description": "No rule matches", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/tenants/{tenant}/scan": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Scan"],
                "summary": "Run one reconciliation pass for a tenant",
                "operationId": "scanTenant",
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "tenant", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/scanner.TenantReport"}},
                    "502": {"description": "Event source failed", "schema": {"$ref": "#/definitions/scanner.TenantReport"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "cache.Snapshot": {
            "type": "object",
            "properties": {
                "hits": {"type": "integer"},
                "misses": {"type": "integer"},
                "stale": {"type": "integer"},
                "loads": {"type": "integer"},
                "load_errors": {"type": "integer"},
                "evictions": {"type": "integer"},
                "size": {"type": "integer"}
            }
        },
        "domain.Cooldowns": {
            "type": "object",
            "properties": {
                "user_reply": {"type": "integer"},
                "thread_reply": {"type": "integer"},
                "channel_reply": {"type": "integer"},
                "user_delete": {"type": "integer"},
                "thread_delete": {"type": "integer"},
                "channel_delete": {"type": "integer"}
            }
        },
        "domain.EventContext": {
            "type": "object",
            "required": ["actor_id", "container_id", "event_id", "tenant_id"],
            "properties": {
                "event_id": {"type": "string"},
                "tenant_id": {"type": "string"},
                "container_id": {"type": "string"},
                "thread_id": {"type": "string"},
                "grouping_id": {"type": "string"},
                "actor_id": {"type": "string"},
                "text": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "domain.Trigger": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "rule_id": {"type": "integer"},
                "position": {"type": "integer"},
                "text": {"type": "string"},
                "mode": {"type": "string", "enum": ["exact", "prefix", "contains", "regex"]},
                "enabled": {"type": "boolean"}
            }
        },
        "domain.Rule": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "tenant_id": {"type": "string"},
                "scope": {"type": "string", "enum": ["thread", "channel", "category", "server"]},
                "thread_id": {"type": "string"},
                "channel_id": {"type": "string"},
                "category_id": {"type": "string"},
                "action": {"type": "string", "enum": ["reply", "go_to_top", "reply_and_react", "react", "delete"]},
                "reply_text": {"type": "string"},
                "reaction": {"type": "string"},
                "delete_trigger_after": {"type": "integer"},
                "delete_reply_after": {"type": "integer"},
                "cooldowns": {"$ref": "#/definitions/domain.Cooldowns"},
                "enabled": {"type": "boolean"},
                "priority": {"type": "integer"},
                "created_by": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "triggers": {"type": "array", "items": {"$ref": "#/definitions/domain.Trigger"}}
            }
        },
        "domain.RuleUsageStat": {
            "type": "object",
            "properties": {
                "tenant_id": {"type": "string"},
                "actor_id": {"type": "string"},
                "rule_id": {"type": "integer"},
                "last_trigger": {"type": "string"},
                "usage_count": {"type": "integer"},
                "last_used_at": {"type": "string"}
            }
        },
        "domain.ServerConfig": {
            "type": "object",
            "properties": {
                "tenant_id": {"type": "string"},
                "enabled": {"type": "boolean"},
                "scan_enabled": {"type": "boolean"},
                "default_rule_enabled": {"type": "boolean"},
                "allowed_containers": {"type": "array", "items": {"type": "string"}},
                "defaults": {"$ref": "#/definitions/domain.Cooldowns"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"},
                "code": {"type": "string", "example": "validation_failed"},
                "message": {"type": "string", "example": "triggers[0].text: invalid repetition"},
                "field": {"type": "string", "example": "triggers[0].text"},
                "suggestion": {"type": "string", "example": "a{1,5}"}
            }
        },
        "handlers.EventResult": {
            "type": "object",
            "properties": {
                "event_id": {"type": "string"},
                "outcome": {"type": "string", "example": "dispatched"},
                "duplicate": {"type": "boolean"},
                "rule_id": {"type": "integer"},
                "tier": {"type": "string", "example": "thread"},
                "policy": {"type": "string", "example": "normal"},
                "executed": {"type": "array", "items": {"type": "string"}},
                "suppressed": {"type": "array", "items": {"type": "string"}},
                "detail": {"type": "string"}
            }
        },
        "handlers.ListRulesResponse": {
            "type": "object",
            "properties": {
                "rules": {"type": "array", "items": {"$ref": "#/definitions/domain.Rule"}},
                "count": {"type": "integer"}
            }
        },
        "handlers.ResolveRequest": {
            "type": "object",
            "required": ["container_id", "text"],
            "properties": {
                "text": {"type": "string", "example": "!ping"},
                "container_id": {"type": "string"},
                "thread_id": {"type": "string"},
                "grouping_id": {"type": "string"}
            }
        },
        "handlers.ResolveResponse": {
            "type": "object",
            "properties": {
                "tier": {"type": "string"},
                "builtin": {"type": "boolean"},
                "rule": {"$ref": "#/definitions/domain.Rule"},
                "trigger": {"$ref": "#/definitions/domain.Trigger"}
            }
        },
        "handlers.UsageResponse": {
            "type": "object",
            "properties": {
                "rule_id": {"type": "integer"},
                "usage": {"type": "array", "items": {"$ref": "#/definitions/domain.RuleUsageStat"}}
            }
        },
        "scanner.Report": {
            "type": "object",
            "properties": {
                "started": {"type": "string"},
                "since": {"type": "string"},
                "tenants": {"type": "array", "items": {"$ref": "#/definitions/scanner.TenantReport"}},
                "failed_tenants": {"type": "integer"}
            }
        },
        "scanner.TenantReport": {
            "type": "object",
            "properties": {
                "tenant_id": {"type": "string"},
                "listed": {"type": "integer"},
                "claimed": {"type": "integer"},
                "duplicates": {"type": "integer"},
                "errors": {"type": "integer"},
                "outcomes": {"type": "object", "additionalProperties": {"type": "integer"}},
                "error": {"type": "string"},
                "took_ns": {"type": "integer"}
            }
        },
        "services.TriggerInput": {
            "type": "object",
            "required": ["text"],
            "properties": {
                "text": {"type": "string"},
                "mode": {"type": "string", "enum": ["exact", "prefix", "contains", "regex"]},
                "enabled": {"type": "boolean"}
            }
        },
        "services.RuleInput": {
            "type": "object",
            "required": ["action", "scope", "triggers"],
            "properties": {
                "scope": {"type": "string", "enum": ["thread", "channel", "category", "server"]},
                "target_id": {"type": "string"},
                "action": {"type": "string", "enum": ["reply", "go_to_top", "reply_and_react", "react", "delete"]},
                "reply_text": {"type": "string"},
                "reaction": {"type": "string"},
                "delete_trigger_after": {"type": "integer"},
                "delete_reply_after": {"type": "integer"},
                "cooldowns": {"$ref": "#/definitions/domain.Cooldowns"},
                "enabled": {"type": "boolean"},
                "priority": {"type": "integer"},
                "triggers": {"type": "array", "items": {"$ref": "#/definitions/services.TriggerInput"}}
            }
        },
        "services.ServerConfigPatch": {
            "type": "object",
            "properties": {
                "enabled": {"type": "boolean"},
                "scan_enabled": {"type": "boolean"},
                "default_rule_enabled": {"type": "boolean"},
                "allowed_containers": {"type": "array", "items": {"type": "string"}},
                "defaults": {"$ref": "#/definitions/domain.Cooldowns"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "thread-commands API",
	Description:      "Admin and ingest API of the thread command rule engine.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
