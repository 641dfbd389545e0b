package registry

import "testing"

func TestRegisterLookupUnregister(t *testing.T) {
	r := New[string]()
	h := r.Register(1, TagAudio, "source-a")

	e, ok := r.Lookup(h)
	if !ok || e.Source != "source-a" || e.Tag != TagAudio {
		t.Fatalf("lookup = %+v, %v", e, ok)
	}

	r.Unregister(h)
	if _, ok := r.Lookup(h); ok {
		t.Fatalf("expected handle to be gone after unregister")
	}
}

func TestSnapshotFiltersByTag(t *testing.T) {
	r := New[string]()
	r.Register(1, TagAudio, "a1")
	r.Register(1, TagAsyncVideo, "v1")
	r.Register(2, TagAudio, "a2")

	audio := r.Snapshot(TagAudio)
	if len(audio) != 2 {
		t.Fatalf("audio snapshot len = %d, want 2", len(audio))
	}

	all := r.Snapshot()
	if len(all) != 3 {
		t.Fatalf("unfiltered snapshot len = %d, want 3", len(all))
	}
}

func TestSourceAppearsUnderSingleOwner(t *testing.T) {
	r := New[string]()
	h1 := r.Register(1, TagAudio, "x")
	h2 := r.Register(2, TagAudio, "y")
	if h1.Owner == h2.Owner {
		t.Fatalf("expected distinct owners")
	}
	if r.Count() != 2 {
		t.Fatalf("count = %d, want 2", r.Count())
	}
}
