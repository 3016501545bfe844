package account

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"slavebanker/internal/money"
)

func TestCreateAccountAtomicOnce(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())
	key := NewKey("campaign", "stratA")

	var wg sync.WaitGroup
	results := make([]bool, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.CreateAccountAtomic(key)
		}(i)
	}
	wg.Wait()

	trueCount := 0
	for _, r := range results {
		if r {
			trueCount++
		}
	}
	if trueCount != 1 {
		t.Fatalf("expected exactly one true, got %d", trueCount)
	}
}

func TestHappyPathMergeScenario(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())
	key := NewKey("campaign", "stratA")

	s.CreateAccountAtomic(key)

	initial := Account{
		Key:        key,
		Authorized: money.NewPool(money.USD(10)),
	}
	sh, err := s.InitializeAndMergeState(key, initial)
	if err != nil {
		t.Fatalf("InitializeAndMergeState: %v", err)
	}
	if !sh.Initialized {
		t.Fatal("expected initialized")
	}

	sh, err = s.CommitSpend(key, money.NewPool(money.USD(3)))
	if err != nil {
		t.Fatalf("CommitSpend: %v", err)
	}
	if got := sh.Committed.Get("USD").Decimal(); got != 3 {
		t.Fatalf("committed = %v, want 3", got)
	}

	master := Account{
		Key:         key,
		Authorized:  money.NewPool(money.USD(10.10)),
		Commitments: money.NewPool(money.USD(3)),
	}
	sh, err = s.SyncFromMaster(key, master)
	if err != nil {
		t.Fatalf("SyncFromMaster: %v", err)
	}

	if got := sh.Authorized.Get("USD").Decimal(); got != 10.10 {
		t.Fatalf("authorized = %v, want 10.10", got)
	}
	if got := sh.Committed.Get("USD").Decimal(); got != 0 {
		t.Fatalf("committed = %v, want 0", got)
	}
	if got := sh.AcknowledgedSpend.Get("USD").Decimal(); got != 3 {
		t.Fatalf("acknowledgedSpend = %v, want 3", got)
	}
	if got := sh.Available().Get("USD").Decimal(); got != 7.10 {
		t.Fatalf("available = %v, want 7.10", got)
	}
}

func TestSyncFromMasterRejectsAckRegression(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())
	key := NewKey("campaign", "stratB")
	s.CreateAccountAtomic(key)
	s.InitializeAndMergeState(key, Account{
		Authorized:  money.NewPool(money.USD(10)),
		Commitments: money.NewPool(money.USD(5)),
	})

	_, err := s.SyncFromMaster(key, Account{
		Authorized:  money.NewPool(money.USD(10)),
		Commitments: money.NewPool(money.USD(4)),
	})
	if err == nil {
		t.Fatal("expected merge invariant violation for decreasing acknowledgedSpend")
	}

	sh, _ := s.GetAccount(key)
	if got := sh.AcknowledgedSpend.Get("USD").Decimal(); got != 5 {
		t.Fatalf("account state mutated despite rejected sync: ack = %v", got)
	}
}

func TestCommitSpendRejectsOverdraft(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())
	key := NewKey("campaign", "stratC")
	s.CreateAccountAtomic(key)
	s.InitializeAndMergeState(key, Account{Authorized: money.NewPool(money.USD(1))})

	if _, err := s.CommitSpend(key, money.NewPool(money.USD(2))); err == nil {
		t.Fatal("expected overdraft to be rejected")
	}
}

func TestInitializeAndMergeStateIdempotent(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())
	key := NewKey("campaign", "stratD")
	s.CreateAccountAtomic(key)

	snap := Account{Authorized: money.NewPool(money.USD(5)), Commitments: money.NewPool(money.USD(1))}
	first, err := s.InitializeAndMergeState(key, snap)
	if err != nil {
		t.Fatalf("first init: %v", err)
	}
	second, err := s.InitializeAndMergeState(key, snap)
	if err != nil {
		t.Fatalf("second init: %v", err)
	}
	if first.Authorized.Get("USD") != second.Authorized.Get("USD") ||
		first.AcknowledgedSpend.Get("USD") != second.AcknowledgedSpend.Get("USD") {
		t.Fatal("InitializeAndMergeState is not idempotent")
	}
}

func TestForEachInitializedAccountSkipsUninitialized(t *testing.T) {
	s := NewStore(nil, zerolog.Nop())
	initKey := NewKey("campaign", "init")
	pendingKey := NewKey("campaign", "pending")

	s.CreateAccountAtomic(initKey)
	s.InitializeAndMergeState(initKey, Account{Authorized: money.NewPool(money.USD(1))})
	s.CreateAccountAtomic(pendingKey)

	seen := map[Key]bool{}
	s.ForEachInitializedAccount(func(k Key, _ ShadowAccount) {
		seen[k] = true
	})

	if !seen[initKey] || seen[pendingKey] {
		t.Fatalf("unexpected iteration set: %v", seen)
	}
}

func TestOnNewAccountFiresOnFirstCreationOnly(t *testing.T) {
	var fired []Key
	s := NewStore(func(k Key) { fired = append(fired, k) }, zerolog.Nop())
	key := NewKey("campaign", "notify")

	s.CreateAccountAtomic(key)
	s.CreateAccountAtomic(key)
	s.CommitSpend(NewKey("campaign", "viaCommit"), money.NewPool(money.USD(1)))

	if len(fired) != 2 {
		t.Fatalf("expected 2 notifications, got %d: %v", len(fired), fired)
	}
}
