package pager

import "testing"

func TestVictimEmptyReplacer(t *testing.T) {
	r := NewLRUReplacer()
	if _, ok := r.Victim(); ok {
		t.Error("expected no victim from an empty replacer")
	}
}

func TestVictimOrderFollowsUnpinOrder(t *testing.T) {
	r := NewLRUReplacer()

	// frames unpinned f1..f5 must come back as victims in that order
	for i := 1; i <= 5; i++ {
		r.Unpin(FrameID(i))
	}
	if r.Size() != 5 {
		t.Fatalf("expected size 5, got %d", r.Size())
	}

	for i := 1; i <= 5; i++ {
		fid, ok := r.Victim()
		if !ok {
			t.Fatalf("expected victim %d, replacer empty", i)
		}
		if fid != FrameID(i) {
			t.Errorf("victim %d: expected frame %d, got %d", i, i, fid)
		}
	}
	if r.Size() != 0 {
		t.Errorf("expected empty replacer, size %d", r.Size())
	}
}

func TestPinRemovesFrame(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	r.Unpin(3)

	r.Pin(2)
	if r.Size() != 2 {
		t.Fatalf("expected size 2 after pin, got %d", r.Size())
	}

	fid, _ := r.Victim()
	if fid != 1 {
		t.Errorf("expected victim 1, got %d", fid)
	}
	fid, _ = r.Victim()
	if fid != 3 {
		t.Errorf("expected victim 3, got %d", fid)
	}
}

func TestPinUntrackedFrameIsNoop(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Pin(99)
	if r.Size() != 1 {
		t.Errorf("expected size 1, got %d", r.Size())
	}
}

func TestUnpinTwiceKeepsPosition(t *testing.T) {
	r := NewLRUReplacer()
	r.Unpin(1)
	r.Unpin(2)
	// a second unpin of 1 must not move it to the fresh end
	r.Unpin(1)

	if r.Size() != 2 {
		t.Fatalf("expected size 2, got %d", r.Size())
	}
	fid, _ := r.Victim()
	if fid != 1 {
		t.Errorf("expected victim 1, got %d", fid)
	}
}
