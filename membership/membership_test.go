package membership

import (
	"testing"

	"github.com/nymtech/ephemera/identity"
)

func makePeer(id string) Peer {
	_, pub, _ := identity.GenerateKeyPair()
	return Peer{ID: identity.PeerID(id), PublicKey: pub, Address: id + ":9000"}
}

func TestQuorumDefaultThreshold(t *testing.T) {
	cases := []struct {
		n    int
		want int
	}{
		{1, 1},
		{2, 2}, // ceil(0.67*2) = 2
		{3, 2},
		{4, 3},
		{7, 5},
		{0, 1},
	}
	for _, c := range cases {
		got := Quorum(c.n, DefaultThresholdFraction)
		if got != c.want {
			t.Errorf("Quorum(%d, %v) = %d, want %d", c.n, DefaultThresholdFraction, got, c.want)
		}
	}
}

func TestQuorumNeverBelowOne(t *testing.T) {
	if Quorum(0, 0.9) != 1 {
		t.Error("Quorum must be at least 1 regardless of n")
	}
}

func TestSnapshotContainsAndGet(t *testing.T) {
	p1, p2 := makePeer("p1"), makePeer("p2")
	snap := NewSnapshot([]Peer{p1, p2})

	if !snap.Contains(p1.ID) || !snap.Contains(p2.ID) {
		t.Error("snapshot should contain both seeded peers")
	}
	if snap.Contains("ghost") {
		t.Error("snapshot should not contain an unseeded peer")
	}
	got, ok := snap.Get(p1.ID)
	if !ok || got.Address != p1.Address {
		t.Errorf("Get(%s) = %+v, %v; want %+v, true", p1.ID, got, ok, p1)
	}
	if snap.Len() != 2 {
		t.Errorf("Len() = %d, want 2", snap.Len())
	}
}

func TestSnapshotValidateRejectsEmpty(t *testing.T) {
	empty := NewSnapshot(nil)
	if err := empty.Validate(); err != ErrInsufficientMembership {
		t.Errorf("Validate() on empty snapshot = %v, want ErrInsufficientMembership", err)
	}
	nonEmpty := NewSnapshot([]Peer{makePeer("p1")})
	if err := nonEmpty.Validate(); err != nil {
		t.Errorf("Validate() on non-empty snapshot = %v, want nil", err)
	}
}

func TestSnapshotIsImmutableAfterMutatingInputSlice(t *testing.T) {
	peers := []Peer{makePeer("p1"), makePeer("p2")}
	snap := NewSnapshot(peers)
	peers[0] = makePeer("replaced")

	if !snap.Contains("p1") {
		t.Error("snapshot must not be affected by later mutation of the input slice")
	}
}

func TestStaticProviderCurrentAndReplace(t *testing.T) {
	p1 := makePeer("p1")
	sp := NewStaticProvider([]Peer{p1})

	snap, err := sp.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if snap.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", snap.Len())
	}

	notified := false
	sp.OnChange(func(Snapshot) { notified = true })

	p2 := makePeer("p2")
	sp.Replace([]Peer{p1, p2})

	snap2, err := sp.Current()
	if err != nil {
		t.Fatalf("Current after Replace: %v", err)
	}
	if snap2.Len() != 2 {
		t.Errorf("Len() after Replace = %d, want 2", snap2.Len())
	}
	if !notified {
		t.Error("OnChange callback should fire when membership actually changes")
	}
}

func TestStaticProviderReplaceSameMembersNoNotify(t *testing.T) {
	p1 := makePeer("p1")
	sp := NewStaticProvider([]Peer{p1})

	notified := false
	sp.OnChange(func(Snapshot) { notified = true })
	sp.Replace([]Peer{p1}) // identical membership, no change

	if notified {
		t.Error("OnChange must not fire when the member set is unchanged")
	}
}
