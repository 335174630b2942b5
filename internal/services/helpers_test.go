package services

import (
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/thread-commands/internal/repo"
	"github.com/tbourn/thread-commands/internal/resolver"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// newServices wires both services to one resolver over db.
func newServices(t *testing.T, db *gorm.DB) (*RuleService, *ConfigService, *resolver.Resolver) {
	t.Helper()
	res, err := resolver.New(repo.NewStore(db), resolver.DefaultOptions())
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	return &RuleService{DB: db, Cache: res}, &ConfigService{DB: db, Cache: res}, res
}

func boolp(b bool) *bool { return &b }
func intp(v int) *int    { return &v }

func replyRule(scope string, target string, triggers ...string) RuleInput {
	in := RuleInput{
		Scope:     domainScope(scope),
		TargetID:  target,
		Action:    "reply",
		ReplyText: "pong",
	}
	for _, t := range triggers {
		in.Triggers = append(in.Triggers, TriggerInput{Text: t})
	}
	return in
}
