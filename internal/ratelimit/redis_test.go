package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tbourn/thread-commands/internal/clock"
	"github.com/tbourn/thread-commands/internal/domain"
)

// scriptSim plays admitScript against an in-memory hash map so the argument
// layout and result handling can be checked without a server.
type scriptSim struct {
	mu    sync.Mutex
	last  map[string]int64
	calls int
}

func newScriptSim() *scriptSim { return &scriptSim{last: map[string]int64{}} }

func (s *scriptSim) run(ctx context.Context, keys []string, args []any) *redis.Cmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	cmd := redis.NewCmd(ctx)
	now, _ := strconv.ParseInt(args[0].(string), 10, 64)
	for i, k := range keys {
		cd, _ := strconv.ParseInt(args[i+1].(string), 10, 64)
		if last, ok := s.last[k]; ok && now-last < cd {
			cmd.SetVal(int64(0))
			return cmd
		}
	}
	for _, k := range keys {
		s.last[k] = now
	}
	cmd.SetVal(int64(1))
	return cmd
}

func (s *scriptSim) Eval(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return s.run(ctx, keys, args)
}

func (s *scriptSim) EvalSha(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return s.run(ctx, keys, args)
}

func (s *scriptSim) EvalRO(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return s.run(ctx, keys, args)
}

func (s *scriptSim) EvalShaRO(ctx context.Context, _ string, keys []string, args ...any) *redis.Cmd {
	return s.run(ctx, keys, args)
}

func (s *scriptSim) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal(make([]bool, len(hashes)))
	return cmd
}

func (s *scriptSim) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("sha")
	return cmd
}

func TestRedisBackend_KeyLayoutUsesTenantHashTag(t *testing.T) {
	b := NewRedisBackend(newScriptSim(), "")
	k := domain.RateLimitKey{TenantID: "g1", RuleID: 7, Tier: domain.PerThread, TargetID: "t9", Family: domain.FamilyDelete}
	got := b.Key(k)
	assert.Equal(t, "threadcmd:rl:{g1}:7:thread:delete:t9", got)
	assert.True(t, strings.Contains(got, "{g1}"))
}

func TestRedisBackend_ScriptArgs(t *testing.T) {
	b := NewRedisBackend(newScriptSim(), "p")
	r := testRule(domain.Cooldowns{UserReply: secs(60), ChannelReply: secs(5)})
	ws := Windows(r, domain.FamilyReply, event("u1"), zeroConfig())

	keys, args := b.scriptArgs(ws, t0)
	require.Len(t, keys, 2)
	require.Len(t, args, 3)
	assert.Equal(t, strconv.FormatInt(t0.UnixMilli(), 10), args[0])
	for i, w := range ws {
		assert.Equal(t, b.Key(w.Key), keys[i])
		assert.Equal(t, strconv.FormatInt(w.Cooldown.Milliseconds(), 10), args[i+1])
	}
}

func TestRedisBackend_AdmitThroughScript(t *testing.T) {
	sim := newScriptSim()
	fc := clock.NewFake(t0)
	l := New(NewRedisBackend(sim, ""), fc)
	r := testRule(domain.Cooldowns{UserReply: secs(60)})
	ctx := context.Background()

	d, err := l.Allow(ctx, r, domain.FamilyReply, event("u1"), zeroConfig())
	require.NoError(t, err)
	assert.True(t, d.Allowed)

	fc.Advance(30 * time.Second)
	d, err = l.Allow(ctx, r, domain.FamilyReply, event("u1"), zeroConfig())
	require.NoError(t, err)
	assert.False(t, d.Allowed)

	fc.Advance(31 * time.Second)
	d, err = l.Allow(ctx, r, domain.FamilyReply, event("u1"), zeroConfig())
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, sim.calls)

	n, err := l.Sweep(ctx, "g1", time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewRedisClient_BadURL(t *testing.T) {
	_, err := NewRedisClient("not a url")
	assert.Error(t, err)
}
