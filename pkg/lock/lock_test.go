package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/newtron-network/newtcli/pkg/util"
)

func TestLocal_AcquireRelease(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	if err := l.Acquire(ctx, "pe1", "alice@host", time.Minute); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	err := l.Acquire(ctx, "pe1", "bob@host", time.Minute)
	if !errors.Is(err, util.ErrDeviceLocked) {
		t.Errorf("second Acquire() error = %v, want ErrDeviceLocked", err)
	}

	holder, acquired, err := l.Holder(ctx, "pe1")
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if holder != "alice@host" {
		t.Errorf("Holder() = %q, want alice@host", holder)
	}
	if acquired.IsZero() {
		t.Error("Holder() acquired time is zero")
	}

	if err := l.Release(ctx, "pe1", "bob@host"); err == nil {
		t.Error("Release() by non-holder should fail")
	}
	if err := l.Release(ctx, "pe1", "alice@host"); err != nil {
		t.Errorf("Release() error = %v", err)
	}
	if err := l.Release(ctx, "pe1", "alice@host"); err != nil {
		t.Errorf("Release() of free device error = %v", err)
	}

	// Other devices are independent.
	if err := l.Acquire(ctx, "pe2", "bob@host", time.Minute); err != nil {
		t.Errorf("Acquire(pe2) error = %v", err)
	}
}

func TestLocal_Expiry(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	if err := l.Acquire(ctx, "pe1", "alice", 10*time.Millisecond); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if holder, _, _ := l.Holder(ctx, "pe1"); holder != "" {
		t.Errorf("Holder() after expiry = %q, want empty", holder)
	}
	if err := l.Acquire(ctx, "pe1", "bob", time.Minute); err != nil {
		t.Errorf("Acquire() after expiry error = %v", err)
	}
}

func TestLockKey(t *testing.T) {
	if got := lockKey("pe1"); got != "NEWTCLI_LOCK|pe1" {
		t.Errorf("lockKey() = %q", got)
	}
}
