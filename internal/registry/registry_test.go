package registry_test

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/PaulBabatuyi/collab-chat/internal/event"
	"github.com/PaulBabatuyi/collab-chat/internal/registry"
	"github.com/PaulBabatuyi/collab-chat/internal/registry/registrytest"
)

func newRegistry() *registry.Registry {
	return registry.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_BindAndUnbind(t *testing.T) {
	r := newRegistry()
	s := registrytest.NewSession()

	if prev := r.Bind("u1", s); prev != nil {
		t.Fatalf("first bind should not replace anything, got %v", prev.ID())
	}
	got, ok := r.Lookup("u1")
	if !ok || got.ID() != s.ID() {
		t.Fatalf("lookup after bind returned %v, %v", got, ok)
	}

	r.Unbind("u1")
	if _, ok := r.Lookup("u1"); ok {
		t.Fatalf("lookup after unbind should be absent")
	}

	// unbinding an unknown user is a no-op
	r.Unbind("nobody")
	if r.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Count())
	}
}

func TestRegistry_RebindReplaces(t *testing.T) {
	r := newRegistry()
	first := registrytest.NewSession()
	second := registrytest.NewSession()

	r.Bind("u1", first)
	prev := r.Bind("u1", second)
	if prev == nil || prev.ID() != first.ID() {
		t.Fatalf("rebind should return the evicted session")
	}

	got, _ := r.Lookup("u1")
	if got.ID() != second.ID() {
		t.Fatalf("lookup should return the newest session")
	}
	if r.Count() != 1 {
		t.Fatalf("one user should hold one binding, got %d", r.Count())
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := newRegistry()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("u%d", i%10)
			r.Bind(id, registrytest.NewSession())
			r.Lookup(id)
			if i%3 == 0 {
				r.Unbind(id)
			}
		}(i)
	}
	wg.Wait()
	if r.Count() > 10 {
		t.Fatalf("registry holds more users than were bound: %d", r.Count())
	}
}

func TestEmitRecoversPanic(t *testing.T) {
	if err := registry.Emit(registrytest.Panicking(), event.Envelope{Event: event.Error}); err == nil {
		t.Fatalf("expected an error from a panicking session")
	}
	s := registrytest.NewSession()
	if err := registry.Emit(s, event.Envelope{Event: event.Error}); err != nil || len(s.Frames()) != 1 {
		t.Fatalf("emit failed: %v", err)
	}
}
