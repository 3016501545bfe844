package liveness

import (
	"testing"
	"time"
)

type fixedSource struct {
	lastSync        time.Time
	lastReauthorize time.Time
}

func (f fixedSource) LastSync() time.Time        { return f.lastSync }
func (f fixedSource) LastReauthorize() time.Time { return f.lastReauthorize }

func TestGetProviderIndicatorsTrueWhenBothFresh(t *testing.T) {
	now := time.Now()
	c := New("slavebanker", 3*time.Second, fixedSource{lastSync: now.Add(-1 * time.Second), lastReauthorize: now.Add(-1 * time.Second)})
	c.now = func() time.Time { return now }

	got := c.GetProviderIndicators()
	if !got.Status {
		t.Fatalf("expected status true, got %+v", got)
	}
}

func TestGetProviderIndicatorsFalseWhenSyncStale(t *testing.T) {
	now := time.Now()
	c := New("slavebanker", 3*time.Second, fixedSource{lastSync: now.Add(-5 * time.Second), lastReauthorize: now.Add(-1 * time.Second)})
	c.now = func() time.Time { return now }

	got := c.GetProviderIndicators()
	if got.Status {
		t.Fatal("expected status false when lastSync is stale")
	}
}

func TestGetProviderIndicatorsFalseWhenNeverSynced(t *testing.T) {
	c := New("slavebanker", 3*time.Second, fixedSource{})
	got := c.GetProviderIndicators()
	if got.Status {
		t.Fatal("expected status false before any sync has occurred")
	}
}
