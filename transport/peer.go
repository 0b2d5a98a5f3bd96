package transport

import (
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// Peer wraps a connection to a remote node, framing each Envelope with a
// 4-byte big-endian length prefix, grounded on teacher's network/peer.go.
type Peer struct {
	ID   string
	Addr string

	conn   net.Conn
	mu     sync.Mutex
	closed bool
}

// NewPeer wraps an established connection as a Peer.
func NewPeer(id, addr string, conn net.Conn) *Peer {
	return &Peer{ID: id, Addr: addr, conn: conn}
}

// Dial connects to addr, optionally over TLS if tlsCfg is non-nil.
func Dial(id, addr string, tlsCfg *tls.Config) (*Peer, error) {
	var conn net.Conn
	var err error
	if tlsCfg != nil {
		conn, err = tls.Dial("tcp", addr, tlsCfg)
	} else {
		conn, err = net.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewPeer(id, addr, conn), nil
}

// Send writes a length-prefixed Envelope to the peer.
func (p *Peer) Send(e Envelope) error {
	frame, err := Encode(e)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("peer %s closed", p.ID)
	}
	_, err = p.conn.Write(frame)
	return err
}

// Receive reads the next length-prefixed Envelope. A 30-second read
// deadline prevents a stalled peer from blocking indefinitely (matches
// teacher's network/peer.go).
func (p *Peer) Receive() (Envelope, error) {
	_ = p.conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	var header [4]byte
	if _, err := io.ReadFull(p.conn, header[:]); err != nil {
		return Envelope{}, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxEnvelopeBytes {
		return Envelope{}, fmt.Errorf("envelope too large: %d bytes", length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(p.conn, buf); err != nil {
		return Envelope{}, err
	}
	return Decode(buf)
}

// Close terminates the peer connection.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.conn.Close()
	}
}
