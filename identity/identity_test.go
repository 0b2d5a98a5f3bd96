package identity

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	data := []byte("ephemera envelope bytes")
	sig := Sign(priv, data)
	if err := Verify(pub, data, sig); err != nil {
		t.Errorf("valid signature failed to verify: %v", err)
	}
	if err := Verify(pub, []byte("tampered"), sig); err == nil {
		t.Error("tampered data should fail verification")
	}
}

func TestVerifyRejectsMalformedSignature(t *testing.T) {
	_, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	if err := Verify(pub, []byte("x"), "not-hex!!"); err != ErrBadSignature {
		t.Errorf("got %v, want ErrBadSignature", err)
	}
}

func TestPeerIDStableAcrossRuns(t *testing.T) {
	_, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	id1 := pub.PeerID()
	id2 := pub.PeerID()
	if id1 != id2 {
		t.Errorf("PeerID not stable: %s vs %s", id1, id2)
	}
}

func TestPeerIDDistinctForDistinctKeys(t *testing.T) {
	_, pub1, _ := GenerateKeyPair()
	_, pub2, _ := GenerateKeyPair()
	if pub1.PeerID() == pub2.PeerID() {
		t.Error("distinct public keys derived the same PeerID")
	}
}

func TestHashDeterministic(t *testing.T) {
	data := []byte("block header bytes")
	if Hash(data) != Hash(data) {
		t.Error("Hash is not deterministic for identical input")
	}
	if Hash(data) == Hash([]byte("different")) {
		t.Error("Hash collided for distinct input")
	}
}

func TestHashListOrderSensitive(t *testing.T) {
	a := HashList([]string{"one", "two"})
	b := HashList([]string{"two", "one"})
	if a == b {
		t.Error("HashList should be order-sensitive")
	}
}

func TestHashListBoundaryUnambiguous(t *testing.T) {
	// "ab","c" must not hash the same as "a","bc": length-prefixing
	// prevents concatenation-boundary collisions.
	a := HashList([]string{"ab", "c"})
	b := HashList([]string{"a", "bc"})
	if a == b {
		t.Error("HashList must not collide across id-boundary reshuffles")
	}
}

func TestHashFromHexRoundTrip(t *testing.T) {
	h := Hash([]byte("round trip"))
	parsed, err := HashFromHex(h.String())
	if err != nil {
		t.Fatalf("HashFromHex: %v", err)
	}
	if parsed != h {
		t.Errorf("round trip mismatch: got %s want %s", parsed, h)
	}
}

func TestHashFromHexRejectsMalformed(t *testing.T) {
	if _, err := HashFromHex("not-hex"); err == nil {
		t.Error("expected error for malformed hex")
	}
	if _, err := HashFromHex("abcd"); err == nil {
		t.Error("expected error for short hash")
	}
}

func TestZeroHashIsZero(t *testing.T) {
	var h Hash256
	if !h.IsZero() {
		t.Error("zero-value Hash256 should report IsZero")
	}
	if Hash([]byte("x")).IsZero() {
		t.Error("non-zero hash should not report IsZero")
	}
}

func TestPubPrivKeyHexRoundTrip(t *testing.T) {
	priv, pub, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	priv2, err := PrivKeyFromHex(priv.Hex())
	if err != nil {
		t.Fatalf("PrivKeyFromHex: %v", err)
	}
	if priv2.Public().Hex() != pub.Hex() {
		t.Error("private key round trip lost public key correspondence")
	}
	pub2, err := PubKeyFromHex(pub.Hex())
	if err != nil {
		t.Fatalf("PubKeyFromHex: %v", err)
	}
	if pub2.PeerID() != pub.PeerID() {
		t.Error("public key round trip changed derived PeerID")
	}
}
