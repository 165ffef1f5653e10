package notify

import (
	"fmt"
	"testing"

	"github.com/zawajapp/zawaj/internal/model"
)

func TestAddNewestFirst(t *testing.T) {
	r := NewRelay(10)
	r.Add(model.Notification{ID: "n-1", Type: "new_like"})
	r.Add(model.Notification{ID: "n-2", Type: "new_match"})

	got := r.List()
	if len(got) != 2 {
		t.Fatalf("Len = %d, want 2", len(got))
	}
	if got[0].ID != "n-2" || got[1].ID != "n-1" {
		t.Errorf("order = [%s %s], want newest first", got[0].ID, got[1].ID)
	}
}

func TestCapDropsOldest(t *testing.T) {
	r := NewRelay(3)
	for i := 1; i <= 5; i++ {
		r.Add(model.Notification{ID: fmt.Sprintf("n-%d", i)})
	}

	got := r.List()
	if len(got) != 3 {
		t.Fatalf("Len = %d, want 3", len(got))
	}
	want := []string{"n-5", "n-4", "n-3"}
	for i := range want {
		if got[i].ID != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, got[i].ID, want[i])
		}
	}
}

func TestZeroCapacityFallsBackToDefault(t *testing.T) {
	r := NewRelay(0)
	for i := 0; i < DefaultCap+10; i++ {
		r.Add(model.Notification{ID: fmt.Sprintf("n-%d", i)})
	}
	if r.Len() != DefaultCap {
		t.Errorf("Len = %d, want %d", r.Len(), DefaultCap)
	}
}

func TestClear(t *testing.T) {
	r := NewRelay(10)
	r.Add(model.Notification{ID: "n-1"})
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len = %d after Clear, want 0", r.Len())
	}
}

func TestListReturnsCopy(t *testing.T) {
	r := NewRelay(10)
	r.Add(model.Notification{ID: "n-1", Title: "original"})

	got := r.List()
	got[0].Title = "mutated"

	if r.List()[0].Title != "original" {
		t.Error("mutating the returned slice leaked into the relay")
	}
}
