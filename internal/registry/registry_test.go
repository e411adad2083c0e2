package registry

import (
	"database/sql"
	"errors"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nerrad567/syncgate/internal/store"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func TestActivateCachesHandle(t *testing.T) {
	r := New(setupTestDB(t))

	a := r.Activate("t1")
	b := r.Activate("t1")
	if a != b {
		t.Error("Activate() returned distinct handles for the same tenant")
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestActivateIsolatesTenants(t *testing.T) {
	r := New(setupTestDB(t))

	a := r.Activate("t1")
	b := r.Activate("t2")
	if a == b {
		t.Error("Activate() shared a handle across tenants")
	}
	if a.TenantID() != "t1" || b.TenantID() != "t2" {
		t.Errorf("handle tenant ids = %q, %q", a.TenantID(), b.TenantID())
	}
}

func TestStoreForRequiresActivation(t *testing.T) {
	r := New(setupTestDB(t))

	if _, err := r.StoreFor("t1"); !errors.Is(err, ErrNotActivated) {
		t.Errorf("StoreFor() before activation error = %v, want ErrNotActivated", err)
	}

	r.Activate("t1")
	h, err := r.StoreFor("t1")
	if err != nil {
		t.Fatalf("StoreFor() after activation error = %v", err)
	}
	if h.TenantID() != "t1" {
		t.Errorf("StoreFor() tenant id = %q, want t1", h.TenantID())
	}
}

func TestConcurrentActivateConverges(t *testing.T) {
	r := New(setupTestDB(t))

	const workers = 32
	handles := make([]store.Store, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = r.Activate("t1")
		}(i)
	}
	wg.Wait()

	for i := 1; i < workers; i++ {
		if handles[i] != handles[0] {
			t.Fatalf("worker %d got a distinct handle", i)
		}
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}
