package approvalstore

import (
	"errors"
	"testing"
	"time"

	"github.com/wardd-org/wardd/internal/types"
)

func TestResolveApprove(t *testing.T) {
	store := New()
	store.Create(types.Approval{ID: "a1", Command: "systemctl restart nginx"})

	got, err := store.Resolve("a1", true, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != types.ApprovalApproved {
		t.Fatalf("status = %q", got.Status)
	}
	if got.DecidedAt == nil {
		t.Fatal("decided_at not set")
	}

	done, ok := store.Done("a1")
	if !ok {
		t.Fatal("done channel missing")
	}
	select {
	case d := <-done:
		if !d.Approved || d.EffectiveCommand != "systemctl restart nginx" {
			t.Fatalf("decision: %+v", d)
		}
	case <-time.After(time.Second):
		t.Fatal("decision not delivered")
	}
}

func TestResolveRejectIsTerminal(t *testing.T) {
	store := New()
	store.Create(types.Approval{ID: "a1", Command: "rm -rf /tmp/x"})

	if _, err := store.Resolve("a1", false, ""); err != nil {
		t.Fatal(err)
	}
	_, err := store.Resolve("a1", true, "")
	if !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("want ErrAlreadyResolved, got %v", err)
	}
	got, _ := store.Get("a1")
	if got.Status != types.ApprovalRejected {
		t.Fatalf("second decision mutated status: %q", got.Status)
	}
}

func TestResolveWithEditedCommand(t *testing.T) {
	store := New()
	store.Create(types.Approval{ID: "a1", Command: "rm -rf /tmp/cache"})

	got, err := store.Resolve("a1", true, "rm -rf /tmp/cache/old")
	if err != nil {
		t.Fatal(err)
	}
	if got.EffectiveCommand() != "rm -rf /tmp/cache/old" {
		t.Fatalf("effective = %q", got.EffectiveCommand())
	}

	done, _ := store.Done("a1")
	d := <-done
	if d.EffectiveCommand != "rm -rf /tmp/cache/old" {
		t.Fatalf("decision command = %q", d.EffectiveCommand)
	}
}

func TestResolveUnknown(t *testing.T) {
	store := New()
	if _, err := store.Resolve("nope", true, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestListFiltersByStatus(t *testing.T) {
	store := New()
	store.Create(types.Approval{ID: "a1", Command: "x"})
	store.Create(types.Approval{ID: "a2", Command: "y"})
	if _, err := store.Resolve("a1", true, ""); err != nil {
		t.Fatal(err)
	}

	pending := store.List(types.ApprovalPending)
	if len(pending) != 1 || pending[0].ID != "a2" {
		t.Fatalf("pending: %+v", pending)
	}
	all := store.List("")
	if len(all) != 2 {
		t.Fatalf("all: %d", len(all))
	}
}
