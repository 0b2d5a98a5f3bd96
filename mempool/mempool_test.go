package mempool

import (
	"testing"

	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
)

type acceptHook struct{ accept bool }

func (h acceptHook) CheckMessage(core.Message) bool { return h.accept }

func signedMsg(t *testing.T, priv identity.PrivateKey, nonce uint64) core.Message {
	t.Helper()
	m := core.Message{Label: "l", Data: []byte("d"), Nonce: nonce}
	if err := m.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return m
}

func TestSubmitAndDrainFIFOOrder(t *testing.T) {
	priv, _, _ := identity.GenerateKeyPair()
	mp := New(10, acceptHook{accept: true})

	m1 := signedMsg(t, priv, 1)
	m2 := signedMsg(t, priv, 2)
	m3 := signedMsg(t, priv, 3)
	for _, m := range []core.Message{m1, m2, m3} {
		if err := mp.Submit(m); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if mp.Size() != 3 {
		t.Fatalf("Size = %d, want 3", mp.Size())
	}
	drained := mp.Drain(2)
	if len(drained) != 2 {
		t.Fatalf("Drain returned %d, want 2", len(drained))
	}
	if drained[0].Nonce != 1 || drained[1].Nonce != 2 {
		t.Errorf("Drain did not preserve insertion order: %+v", drained)
	}
	if mp.Size() != 1 {
		t.Errorf("Size after drain = %d, want 1", mp.Size())
	}
}

func TestSubmitIdempotentOnDuplicateID(t *testing.T) {
	priv, _, _ := identity.GenerateKeyPair()
	mp := New(10, acceptHook{accept: true})
	m := signedMsg(t, priv, 1)

	if err := mp.Submit(m); err != nil {
		t.Fatalf("first Submit: %v", err)
	}
	if err := mp.Submit(m); err != nil {
		t.Fatalf("duplicate Submit should succeed idempotently: %v", err)
	}
	if mp.Size() != 1 {
		t.Errorf("Size after duplicate submit = %d, want 1 (spec invariant 5)", mp.Size())
	}
}

func TestSubmitRejectsBadSignature(t *testing.T) {
	mp := New(10, acceptHook{accept: true})
	m := core.Message{Label: "l", Data: []byte("d"), CreatorPublicKey: "not-a-real-key", Nonce: 1, Signature: "aa"}
	if err := mp.Submit(m); err != ErrBadSignature {
		t.Errorf("Submit(bad sig) = %v, want ErrBadSignature", err)
	}
}

func TestSubmitRejectsAppHook(t *testing.T) {
	priv, _, _ := identity.GenerateKeyPair()
	mp := New(10, acceptHook{accept: false})
	m := signedMsg(t, priv, 1)
	if err := mp.Submit(m); err != ErrRejectedByApp {
		t.Errorf("Submit = %v, want ErrRejectedByApp", err)
	}
	if mp.Size() != 0 {
		t.Errorf("rejected message must not be enqueued, Size = %d", mp.Size())
	}
}

func TestSubmitRejectsOnOverflowWithoutEvicting(t *testing.T) {
	priv, _, _ := identity.GenerateKeyPair()
	mp := New(1, acceptHook{accept: true})
	first := signedMsg(t, priv, 1)
	second := signedMsg(t, priv, 2)

	if err := mp.Submit(first); err != nil {
		t.Fatalf("Submit first: %v", err)
	}
	if err := mp.Submit(second); err != ErrFull {
		t.Fatalf("Submit second = %v, want ErrFull", err)
	}
	// The existing entry must survive; oldest-first eviction is forbidden.
	drained := mp.Drain(10)
	if len(drained) != 1 || drained[0].Nonce != 1 {
		t.Errorf("overflow must reject the newcomer, not evict the incumbent: got %+v", drained)
	}
}

func TestReinsertAtHeadPreservesOrderAndSkipsDuplicates(t *testing.T) {
	priv, _, _ := identity.GenerateKeyPair()
	mp := New(10, acceptHook{accept: true})
	kept := signedMsg(t, priv, 3)
	if err := mp.Submit(kept); err != nil {
		t.Fatal(err)
	}

	reinserted := []core.Message{signedMsg(t, priv, 1), signedMsg(t, priv, 2)}
	mp.ReinsertAtHead(reinserted)

	drained := mp.Drain(10)
	if len(drained) != 3 {
		t.Fatalf("expected 3 messages after reinsert, got %d", len(drained))
	}
	if drained[0].Nonce != 1 || drained[1].Nonce != 2 || drained[2].Nonce != 3 {
		t.Errorf("reinsert must place messages at head preserving their order: %+v", drained)
	}

	// Reinserting a message that is still present must not duplicate it.
	mp2 := New(10, acceptHook{accept: true})
	m := signedMsg(t, priv, 9)
	if err := mp2.Submit(m); err != nil {
		t.Fatal(err)
	}
	mp2.ReinsertAtHead([]core.Message{m})
	if mp2.Size() != 1 {
		t.Errorf("reinserting an already-present message must not duplicate it, Size = %d", mp2.Size())
	}
}
