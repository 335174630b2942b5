package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/thread-commands/internal/domain"
)

func mkRule(tenant string, scope domain.Scope, target string, prio int, triggers ...string) *domain.Rule {
	r := &domain.Rule{
		TenantID:  tenant,
		Scope:     scope,
		Action:    domain.ActionReply,
		ReplyText: "reply",
		Enabled:   true,
		Priority:  prio,
	}
	r.SetTarget(target)
	for _, tx := range triggers {
		r.Triggers = append(r.Triggers, domain.Trigger{Text: tx, Mode: domain.MatchExact, Enabled: true})
	}
	return r
}

func TestCreateRule_PersistsTriggersInOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	r := mkRule("g1", domain.ScopeThread, "t1", 0, "!a", "!b", "!c")
	if err := CreateRule(ctx, db, r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if r.ID == 0 {
		t.Fatal("expected id to be assigned")
	}

	got, err := GetRule(ctx, db, "g1", r.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if len(got.Triggers) != 3 {
		t.Fatalf("expected 3 triggers, got %d", len(got.Triggers))
	}
	for i, want := range []string{"!a", "!b", "!c"} {
		if got.Triggers[i].Text != want || got.Triggers[i].Position != i {
			t.Fatalf("trigger %d = %+v, want text %q position %d", i, got.Triggers[i], want, i)
		}
	}
	if got.TargetID() != "t1" || got.ChannelID != nil || got.CategoryID != nil {
		t.Fatalf("unexpected target columns: %+v", got)
	}
}

func TestLoadRules_FiltersAndOrders(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	low := mkRule("g1", domain.ScopeChannel, "c1", 1, "x")
	high := mkRule("g1", domain.ScopeChannel, "c1", 5, "y")
	tie := mkRule("g1", domain.ScopeChannel, "c1", 5, "z")
	off := mkRule("g1", domain.ScopeChannel, "c1", 9, "w")
	off.Enabled = false
	other := mkRule("g1", domain.ScopeChannel, "c2", 9, "v")
	for _, r := range []*domain.Rule{low, high, tie, off, other} {
		if err := CreateRule(ctx, db, r); err != nil {
			t.Fatalf("CreateRule: %v", err)
		}
	}

	rules, err := LoadRules(ctx, db, domain.ScopeChannel, "c1")
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if len(rules) != 3 {
		t.Fatalf("expected 3 enabled rules for c1, got %d", len(rules))
	}
	if rules[0].ID != high.ID || rules[1].ID != tie.ID || rules[2].ID != low.ID {
		t.Fatalf("unexpected order: %d %d %d", rules[0].ID, rules[1].ID, rules[2].ID)
	}
	if len(rules[0].Triggers) != 1 || rules[0].Triggers[0].Text != "y" {
		t.Fatalf("triggers not preloaded: %+v", rules[0].Triggers)
	}
}

func TestLoadRules_ServerScopeUsesTenant(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if err := CreateRule(ctx, db, mkRule("g1", domain.ScopeServer, "", 0, "!help")); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := CreateRule(ctx, db, mkRule("g2", domain.ScopeServer, "", 0, "!help")); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	rules, err := LoadRules(ctx, db, domain.ScopeServer, "g1")
	if err != nil || len(rules) != 1 || rules[0].TenantID != "g1" {
		t.Fatalf("expected one g1 rule, got %v err=%v", rules, err)
	}
}

func TestLoadRules_UnknownScope(t *testing.T) {
	db := newTestDB(t)
	if _, err := LoadRules(context.Background(), db, domain.Scope("galaxy"), "x"); err == nil {
		t.Fatal("expected error for unknown scope")
	}
}

func TestUpdateRule_ReplacesColumnsAndTriggers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	r := mkRule("g1", domain.ScopeThread, "t1", 0, "old1", "old2")
	r.Cooldowns.UserReply = intp(60)
	if err := CreateRule(ctx, db, r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}

	r.ReplyText = "new reply"
	r.Enabled = false
	r.Cooldowns.UserReply = nil
	r.Triggers = []domain.Trigger{{Text: "new", Mode: domain.MatchPrefix, Enabled: true}}
	if err := UpdateRule(ctx, db, r); err != nil {
		t.Fatalf("UpdateRule: %v", err)
	}

	got, err := GetRule(ctx, db, "g1", r.ID)
	if err != nil {
		t.Fatalf("GetRule: %v", err)
	}
	if got.ReplyText != "new reply" || got.Enabled {
		t.Fatalf("columns not updated: %+v", got)
	}
	if got.Cooldowns.UserReply != nil {
		t.Fatalf("expected cooldown cleared to NULL, got %d", *got.Cooldowns.UserReply)
	}
	if len(got.Triggers) != 1 || got.Triggers[0].Text != "new" || got.Triggers[0].Mode != domain.MatchPrefix {
		t.Fatalf("triggers not replaced: %+v", got.Triggers)
	}
}

func TestUpdateRule_WrongTenantIsNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	r := mkRule("g1", domain.ScopeThread, "t1", 0, "a")
	if err := CreateRule(ctx, db, r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	r.TenantID = "g2"
	if err := UpdateRule(ctx, db, r); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteRule_ReturnsRowAndRemovesTriggers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	r := mkRule("g1", domain.ScopeCategory, "cat", 0, "a", "b")
	if err := CreateRule(ctx, db, r); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	deleted, err := DeleteRule(ctx, db, "g1", r.ID)
	if err != nil {
		t.Fatalf("DeleteRule: %v", err)
	}
	if deleted.TargetID() != "cat" || deleted.Scope != domain.ScopeCategory {
		t.Fatalf("unexpected deleted row: %+v", deleted)
	}
	var n int64
	db.Model(&domain.Trigger{}).Where("rule_id = ?", r.ID).Count(&n)
	if n != 0 {
		t.Fatalf("expected triggers removed, got %d", n)
	}
	if _, err := DeleteRule(ctx, db, "g1", r.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestCountRules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := CreateRule(ctx, db, mkRule("g1", domain.ScopeThread, "t1", i, "a")); err != nil {
			t.Fatalf("CreateRule: %v", err)
		}
	}
	n, err := CountRules(ctx, db, domain.ScopeThread, "t1")
	if err != nil || n != 3 {
		t.Fatalf("CountRules = %d, %v; want 3", n, err)
	}
}

func TestForeignRules(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := CreateRule(ctx, db, mkRule("g1", domain.ScopeChannel, "c1", 0, "a")); err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if got, err := ForeignRules(ctx, db, "g1", domain.ScopeChannel, "c1"); err != nil || got {
		t.Fatalf("owner sees foreign rules: %v, %v", got, err)
	}
	if got, err := ForeignRules(ctx, db, "g2", domain.ScopeChannel, "c1"); err != nil || !got {
		t.Fatalf("other tenant not reported: %v, %v", got, err)
	}
	if got, err := ForeignRules(ctx, db, "g2", domain.ScopeChannel, "c2"); err != nil || got {
		t.Fatalf("empty target reported foreign: %v, %v", got, err)
	}
}

func TestListRules_ScopeFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	_ = CreateRule(ctx, db, mkRule("g1", domain.ScopeThread, "t1", 0, "a"))
	_ = CreateRule(ctx, db, mkRule("g1", domain.ScopeServer, "", 0, "b"))

	all, err := ListRules(ctx, db, "g1", "")
	if err != nil || len(all) != 2 {
		t.Fatalf("ListRules all = %d, %v", len(all), err)
	}
	srv, err := ListRules(ctx, db, "g1", domain.ScopeServer)
	if err != nil || len(srv) != 1 || srv[0].Scope != domain.ScopeServer {
		t.Fatalf("ListRules server = %v, %v", srv, err)
	}
}

func TestMaxRuleCooldown(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	if m, err := MaxRuleCooldown(ctx, db, "g1"); err != nil || m != 0 {
		t.Fatalf("empty tenant: got %d, %v", m, err)
	}

	a := mkRule("g1", domain.ScopeThread, "t1", 0, "a")
	a.Cooldowns.ThreadReply = intp(90)
	b := mkRule("g1", domain.ScopeServer, "", 0, "b")
	b.Cooldowns.ChannelDelete = intp(400)
	c := mkRule("g2", domain.ScopeServer, "", 0, "c")
	c.Cooldowns.UserReply = intp(9999)
	for _, r := range []*domain.Rule{a, b, c} {
		if err := CreateRule(ctx, db, r); err != nil {
			t.Fatalf("CreateRule: %v", err)
		}
	}
	m, err := MaxRuleCooldown(ctx, db, "g1")
	if err != nil || m != 400 {
		t.Fatalf("MaxRuleCooldown = %d, %v; want 400", m, err)
	}
}
