package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/amishk599/jobrelay/internal/classify"
	"github.com/amishk599/jobrelay/internal/config"
	"github.com/amishk599/jobrelay/internal/lock"
	"github.com/amishk599/jobrelay/internal/retry"
)

func loadTestConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestSetupClassifier(t *testing.T) {
	cfg := loadTestConfig(t, "classifier:\n  type: keyword\n")
	c, err := setupClassifier(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*classify.KeywordClassifier); !ok {
		t.Errorf("got %T, want *classify.KeywordClassifier", c)
	}

	cfg = loadTestConfig(t, "classifier:\n  type: openai\n  openai:\n    api_key: sk-test\n")
	c, err = setupClassifier(cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := c.(*retry.Classifier); !ok {
		t.Errorf("got %T, want the retrying classifier", c)
	}
}

func TestSetupLocker_Memory(t *testing.T) {
	cfg := loadTestConfig(t, "store:\n  path: test.db\n")
	l, closeFn, err := setupLocker(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := l.(*lock.KeyedMutex); !ok {
		t.Errorf("got %T, want *lock.KeyedMutex", l)
	}
}

func TestSetupLocker_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := loadTestConfig(t, "lock:\n  backend: redis\n  redis:\n    addr: "+mr.Addr()+"\n")

	l, closeFn, err := setupLocker(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	unlock, err := l.Lock(context.Background(), "contact:@hr_team")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if !mr.Exists("jobrelay:lock:contact:@hr_team") {
		t.Error("lock key not set in redis")
	}
	unlock()
}

func TestSetupLocker_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := loadTestConfig(t, "lock:\n  backend: redis\n  redis:\n    addr: "+addr+"\n")
	if _, _, err := setupLocker(context.Background(), cfg, discardLogger()); err == nil {
		t.Error("expected error for unreachable redis")
	}
}

func TestSetupEmail_Disabled(t *testing.T) {
	cfg := loadTestConfig(t, "email:\n  provider: none\n")
	email, err := setupEmail(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if email != nil {
		t.Errorf("got %T, want nil sender when email is disabled", email)
	}
}

func TestSetupEmail_SMTP(t *testing.T) {
	cfg := loadTestConfig(t, "email:\n  provider: smtp\n  from: me@example.com\n  smtp:\n    host: localhost\n")
	email, err := setupEmail(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if email == nil {
		t.Error("expected an email sender")
	}
}

func TestSetupLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobrelay.log")
	logger := setupLogger(false, config.LogConfig{File: path, MaxSizeMB: 1})
	logger.Info("hello file")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Errorf("log file missing message: %q", data)
	}
}
