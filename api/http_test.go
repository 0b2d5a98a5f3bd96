package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nymtech/ephemera/core"
	"github.com/nymtech/ephemera/identity"
	"github.com/nymtech/ephemera/internal/testutil"
	"github.com/nymtech/ephemera/mempool"
	"github.com/nymtech/ephemera/membership"
)

type fakeMempool struct {
	acceptedCount int
	err           error
}

func (m *fakeMempool) Submit(msg core.Message) error {
	if m.err != nil {
		return m.err
	}
	m.acceptedCount++
	return nil
}

func newTestServer(t *testing.T, mp Mempool) (*Server, *fakeMembers) {
	t.Helper()
	priv, pub, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	members := &fakeMembers{snap: membership.NewSnapshot([]membership.Peer{{ID: pub.PeerID(), PublicKey: pub}})}
	store := testutil.NewBlockStore()
	srv := NewServer(Config{
		Addr:              "127.0.0.1:0",
		LocalPeerID:       pub.PeerID(),
		ThresholdFraction: 0.67,
		BlockIntervalMs:   1000,
		TickIntervalMs:    500,
		StaleTimeoutMs:    30000,
	}, mp, store, members)
	_ = priv
	return srv, members
}

type fakeMembers struct {
	snap membership.Snapshot
	err  error
}

func (f *fakeMembers) Current() (membership.Snapshot, error) { return f.snap, f.err }
func (f *fakeMembers) OnChange(func(membership.Snapshot))    {}

func doRequest(t *testing.T, srv *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec, req)
	return rec
}

func TestSubmitMessageSuccess(t *testing.T) {
	mp := &fakeMempool{}
	srv, _ := newTestServer(t, mp)

	priv, _, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	msg := core.Message{Label: "l", Data: []byte("d"), Nonce: 1}
	if err := msg.Sign(priv); err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}

	rec := doRequest(t, srv, http.MethodPost, "/broadcast/submit_message", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	if mp.acceptedCount != 1 {
		t.Errorf("mempool.Submit not called, count = %d", mp.acceptedCount)
	}
}

func TestSubmitMessageMalformedBody(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMempool{})
	rec := doRequest(t, srv, http.MethodPost, "/broadcast/submit_message", []byte("not json"))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestSubmitMessageMempoolFullReturns503(t *testing.T) {
	priv, _, _ := identity.GenerateKeyPair()
	msg := core.Message{Label: "l", Data: []byte("d"), Nonce: 1}
	if err := msg.Sign(priv); err != nil {
		t.Fatal(err)
	}
	body, _ := json.Marshal(msg)

	srv, _ := newTestServer(t, &fakeMempool{err: mempool.ErrFull})
	rec := doRequest(t, srv, http.MethodPost, "/broadcast/submit_message", body)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// TestSubmitMessageDuplicateReturns409 covers spec §6's documented "409 on
// duplicate" response: resubmitting a message already certified into a
// delivered block, after it has been drained out of the mempool.
func TestSubmitMessageDuplicateReturns409(t *testing.T) {
	priv, pub, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	msg := core.Message{Label: "l", Data: []byte("d"), Nonce: 1}
	if err := msg.Sign(priv); err != nil {
		t.Fatal(err)
	}

	members := &fakeMembers{snap: membership.NewSnapshot([]membership.Peer{{ID: pub.PeerID(), PublicKey: pub}})}
	store := testutil.NewBlockStore()
	srv := NewServer(Config{Addr: "127.0.0.1:0", LocalPeerID: pub.PeerID()}, &fakeMempool{}, store, members)

	block, err := core.NewBlock(1, 1000, pub.PeerID(), identity.Hash256{}, []core.Message{msg})
	if err != nil {
		t.Fatal(err)
	}
	if err := block.Sign(priv); err != nil {
		t.Fatal(err)
	}
	hash, err := block.Hash()
	if err != nil {
		t.Fatal(err)
	}
	cert := core.NewCertificate(hash)
	cert.Add(pub.PeerID(), "sig")
	if err := store.PutBlock(block, cert); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	rec := doRequest(t, srv, http.MethodPost, "/broadcast/submit_message", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409, body=%s", rec.Code, rec.Body.String())
	}
}

func TestGetBlockByHashNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMempool{})
	rec := doRequest(t, srv, http.MethodGet, "/broadcast/block/"+identity.Hash([]byte("x")).String(), nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404, body=%s", rec.Code, rec.Body.String())
	}
}

func TestGetBlockByHashMalformed(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMempool{})
	rec := doRequest(t, srv, http.MethodGet, "/broadcast/block/not-a-hash", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestLastBlockEmptyReturns404(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMempool{})
	rec := doRequest(t, srv, http.MethodGet, "/broadcast/blocks/last", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMempool{})
	rec := doRequest(t, srv, http.MethodGet, "/node/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.MembersKnown != 1 {
		t.Errorf("MembersKnown = %d, want 1", resp.MembersKnown)
	}
}

func TestAuthGateRejectsMissingToken(t *testing.T) {
	priv, pub, err := identity.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	_ = priv
	members := &fakeMembers{snap: membership.NewSnapshot([]membership.Peer{{ID: pub.PeerID(), PublicKey: pub}})}
	store := testutil.NewBlockStore()
	srv := NewServer(Config{Addr: "127.0.0.1:0", AuthToken: "secret-token", LocalPeerID: pub.PeerID()}, &fakeMempool{}, store, members)

	rec := doRequest(t, srv, http.MethodGet, "/broadcast/blocks/last", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without bearer token", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/broadcast/blocks/last", nil)
	req.Header.Set("Authorization", "Bearer secret-token")
	rec2 := httptest.NewRecorder()
	srv.routes().ServeHTTP(rec2, req)
	if rec2.Code == http.StatusUnauthorized {
		t.Error("a valid bearer token must not be rejected")
	}
}
