// Package gateway talks to the chat-platform gateway: it lists recent events
// for the reconciliation scanner and executes action steps for the engine.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/tbourn/thread-commands/internal/domain"
	"github.com/tbourn/thread-commands/internal/engine"
)

// ErrNoBaseURL is returned by NewClient when no gateway address is set.
var ErrNoBaseURL = errors.New("gateway: base url is required")

// StatusError is a non-2xx gateway response.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("gateway %s: status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("gateway %s: status %d: %s", e.Op, e.Status, e.Body)
}

// Client is an HTTP gateway client. It is safe for concurrent use.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   zerolog.Logger
}

// NewClient returns a Client for baseURL. token, when non-empty, is sent as a
// bearer credential. A zero timeout defaults to 10s.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, ErrNoBaseURL
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway: parse base url: %w", err)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:  u,
		token: token,
		http:  &http.Client{Timeout: timeout},
		log:   log.With().Str("component", "gateway").Logger(),
	}, nil
}

// RecentEvents lists tenantID's events created at or after since.
//
//	GET {base}/tenants/{tenant}/events?since=<RFC3339>
func (c *Client) RecentEvents(ctx context.Context, tenantID string, since time.Time) ([]domain.EventContext, error) {
	tr := otel.Tracer("gateway/Client")
	ctx, span := tr.Start(ctx, "RecentEvents", trace.WithAttributes(attribute.String("tenant.id", tenantID)))
	defer span.End()

	u := c.base.JoinPath("tenants", tenantID, "events")
	q := u.Query()
	q.Set("since", since.UTC().Format(time.RFC3339Nano))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	var out []domain.EventContext
	if _, err := c.do(req, "events", &out); err != nil {
		span.RecordError(err)
		return nil, err
	}
	for i := range out {
		if out[i].TenantID == "" {
			out[i].TenantID = tenantID
		}
	}
	span.SetAttributes(attribute.Int("events.count", len(out)))
	return out, nil
}

type actionRequest struct {
	Kind             domain.ActionKind `json:"kind"`
	TenantID         string            `json:"tenant_id"`
	ContainerID      string            `json:"container_id"`
	ThreadID         string            `json:"thread_id,omitempty"`
	EventID          string            `json:"event_id"`
	ActorID          string            `json:"actor_id"`
	ReplyText        string            `json:"reply_text,omitempty"`
	Reaction         string            `json:"reaction,omitempty"`
	DelaySeconds     int64             `json:"delay_seconds,omitempty"`
	DeleteReplyAfter int64             `json:"delete_reply_after_seconds,omitempty"`
}

type actionResponse struct {
	Executed bool `json:"executed"`
}

// Execute posts one action step.
//
//	POST {base}/actions
//
// A 2xx response reports executed from the body; 404 and 409 mean the target
// message is gone and report (false, nil). Anything else is an error.
func (c *Client) Execute(ctx context.Context, kind domain.ActionKind, t engine.Target, p engine.Params) (bool, error) {
	tr := otel.Tracer("gateway/Client")
	ctx, span := tr.Start(ctx, "Execute", trace.WithAttributes(
		attribute.String("action.kind", string(kind)),
		attribute.String("event.id", t.EventID),
	))
	defer span.End()

	body, err := json.Marshal(actionRequest{
		Kind:             kind,
		TenantID:         t.TenantID,
		ContainerID:      t.ContainerID,
		ThreadID:         t.ThreadID,
		EventID:          t.EventID,
		ActorID:          t.ActorID,
		ReplyText:        p.ReplyText,
		Reaction:         p.Reaction,
		DelaySeconds:     int64(p.Delay / time.Second),
		DeleteReplyAfter: int64(p.DeleteReplyAfter / time.Second),
	})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath("actions").String(), bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out actionResponse
	status, err := c.do(req, "actions", &out)
	switch {
	case status == http.StatusNotFound || status == http.StatusConflict:
		c.log.Debug().Str("event_id", t.EventID).Str("kind", string(kind)).Int("status", status).Msg("action target gone")
		return false, nil
	case err != nil:
		span.RecordError(err)
		return false, err
	}
	return out.Executed, nil
}

// do sends req and decodes a 2xx JSON body into out. The status code is
// returned alongside any StatusError.
func (c *Client) do(req *http.Request, op string, out any) (int, error) {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	otel.GetTextMapPropagator().Inject(req.Context(), propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("gateway %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{Op: op, Status: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return resp.StatusCode, fmt.Errorf("gateway %s: decode: %w", op, err)
	}
	return resp.StatusCode, nil
}
