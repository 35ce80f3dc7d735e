package model

import (
	"testing"
	"time"
)

func TestFileRecord_IsExpired(t *testing.T) {
	now := time.Now().UTC()
	rec := &FileRecord{ExpiresAt: now}

	if !rec.IsExpired(now) {
		t.Error("файл с ExpiresAt == now должен считаться истёкшим")
	}
	if rec.IsExpired(now.Add(-time.Second)) {
		t.Error("файл до ExpiresAt не должен считаться истёкшим")
	}
}

func TestSessionRecord_IsStale(t *testing.T) {
	now := time.Now().UTC()
	ttl := 24 * time.Hour

	idle := &SessionRecord{LastSeenAt: now.Add(-25 * time.Hour)}
	if !idle.IsStale(now, ttl) {
		t.Error("пустая сессия, простаивающая дольше ttl, должна быть stale")
	}

	withFiles := &SessionRecord{LastSeenAt: now.Add(-25 * time.Hour), FileIDs: []string{"f1"}}
	if withFiles.IsStale(now, ttl) {
		t.Error("сессия с файлами не может быть stale")
	}

	fresh := &SessionRecord{LastSeenAt: now.Add(-time.Hour)}
	if fresh.IsStale(now, ttl) {
		t.Error("недавно активная сессия не может быть stale")
	}
}
