package transport

import (
	"net"
	"testing"
	"time"

	"github.com/nymtech/ephemera/broadcast"
	"github.com/nymtech/ephemera/identity"
)

func TestPeerSendReceiveRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sender := NewPeer("server", "pipe", server)
	receiver := NewPeer("client", "pipe", client)

	envelope, _ := signedEnvelope(t, broadcast.PhaseCommit, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- sender.Send(envelope) }()

	got, err := receiver.Receive()
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got.BlockHash != envelope.BlockHash || got.Phase != envelope.Phase || got.Sender != envelope.Sender {
		t.Errorf("round-tripped envelope mismatch: got %+v want %+v", got, envelope)
	}
}

func TestPeerSendAfterCloseFails(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	p := NewPeer("server", "pipe", server)
	p.Close()

	envelope := Envelope{BlockHash: identity.Hash([]byte("x")), Phase: broadcast.PhasePrepare, Sender: "peer"}
	if err := p.Send(envelope); err == nil {
		t.Error("Send must fail on a closed peer")
	}
}

func TestPeerReceiveRejectsOversizedFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	receiver := NewPeer("client", "pipe", client)

	go func() {
		header := []byte{0xFF, 0xFF, 0xFF, 0xFF} // length far beyond maxEnvelopeBytes
		_, _ = server.Write(header)
	}()

	server.SetWriteDeadline(time.Now().Add(time.Second))
	if _, err := receiver.Receive(); err == nil {
		t.Error("Receive must reject a frame whose declared length exceeds maxEnvelopeBytes")
	}
}
