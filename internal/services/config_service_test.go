package services

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/thread-commands/internal/domain"
)

func TestConfigService_GetCreatesDefaults(t *testing.T) {
	_, cfgs, _ := newServices(t, newSvcDB(t))
	c, err := cfgs.GetServerConfig(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !c.Enabled || !c.ScanEnabled || c.DefaultRuleEnabled {
		t.Fatalf("flags = %+v", c)
	}
	if c.Defaults.UserReply == nil || *c.Defaults.UserReply != 60 || *c.Defaults.ThreadReply != 30 {
		t.Fatalf("defaults = %+v", c.Defaults)
	}
}

func TestConfigService_PatchAndWriteThrough(t *testing.T) {
	db := newSvcDB(t)
	_, cfgs, res := newServices(t, db)
	ctx := context.Background()

	// Prime the cached config.
	if _, err := res.ServerConfig(ctx, "g1"); err != nil {
		t.Fatalf("prime: %v", err)
	}

	containers := []string{" f1 ", "", "f2"}
	got, err := cfgs.SetServerConfig(ctx, "g1", ServerConfigPatch{
		ScanEnabled:       boolp(false),
		AllowedContainers: &containers,
		Defaults:          &domain.Cooldowns{UserReply: intp(10)},
	})
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if got.ScanEnabled || !got.Enabled {
		t.Fatalf("flags = %+v", got)
	}
	if *got.Defaults.UserReply != 10 || *got.Defaults.ThreadReply != 30 {
		t.Fatalf("defaults not patched field-wise: %+v", got.Defaults)
	}
	if len(got.AllowedContainers) != 2 || got.AllowedContainers[0] != "f1" {
		t.Fatalf("containers = %v", got.AllowedContainers)
	}

	cached, err := res.ServerConfig(ctx, "g1")
	if err != nil {
		t.Fatalf("cached: %v", err)
	}
	if *cached.Defaults.UserReply != 10 || cached.ScanEnabled {
		t.Fatalf("cache not refreshed: %+v", cached)
	}
}

func TestConfigService_DefaultRuleToggle(t *testing.T) {
	db := newSvcDB(t)
	_, cfgs, res := newServices(t, db)
	ctx := context.Background()
	ev := event("回顶")

	if m, _ := res.Resolve(ctx, ev); m != nil {
		t.Fatal("default rule active before enabling")
	}
	if _, err := cfgs.SetServerConfig(ctx, "g1", ServerConfigPatch{DefaultRuleEnabled: boolp(true)}); err != nil {
		t.Fatalf("set: %v", err)
	}
	m, err := res.Resolve(ctx, ev)
	if err != nil || m == nil {
		t.Fatalf("want default rule match, got %v, %v", m, err)
	}
	if !m.Rule.Builtin() || m.Tier != domain.ScopeServer {
		t.Fatalf("match = %+v", m)
	}
}

func TestConfigService_RejectsNegativeDefaults(t *testing.T) {
	_, cfgs, _ := newServices(t, newSvcDB(t))
	_, err := cfgs.SetServerConfig(context.Background(), "g1", ServerConfigPatch{
		Defaults: &domain.Cooldowns{ThreadDelete: intp(-5)},
	})
	if !errors.Is(err, ErrInvalidCooldown) {
		t.Fatalf("want ErrInvalidCooldown, got %v", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "defaults.thread_delete" {
		t.Fatalf("field = %v", err)
	}
}
