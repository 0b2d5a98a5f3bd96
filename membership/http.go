package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/nymtech/ephemera/identity"
)

// peerDTO is the wire shape an external membership provider serves at its
// polling endpoint.
type peerDTO struct {
	ID        string `json:"id"`
	PublicKey string `json:"public_key"`
	Address   string `json:"address"`
}

// HTTPProvider polls an external HTTP endpoint on an interval for the
// current peer set (spec §4.B: "populated from a static file or polled
// periodically from an external HTTP provider").
type HTTPProvider struct {
	base     baseProvider
	url      string
	interval time.Duration
	client   *http.Client
}

// NewHTTPProvider creates an HTTPProvider for url, polling every interval.
// It does not poll; call Start, whose first poll happens synchronously so
// Current() is usable as soon as Start returns nil (Start returns an error
// if that first poll fails).
func NewHTTPProvider(url string, interval time.Duration) *HTTPProvider {
	return &HTTPProvider{
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Current returns the most recently polled snapshot.
func (p *HTTPProvider) Current() (Snapshot, error) {
	return p.base.Current()
}

// OnChange registers cb for future membership changes.
func (p *HTTPProvider) OnChange(cb func(Snapshot)) {
	p.base.OnChange(cb)
}

// Start polls once synchronously, then launches a background poller that
// runs until ctx is cancelled.
func (p *HTTPProvider) Start(ctx context.Context) error {
	if err := p.poll(ctx); err != nil {
		return fmt.Errorf("membership: initial poll: %w", err)
	}
	go p.loop(ctx)
	return nil
}

func (p *HTTPProvider) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.poll(ctx); err != nil {
				log.Printf("[membership] poll %s: %v", p.url, err)
			}
		}
	}
}

func (p *HTTPProvider) poll(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var dtos []peerDTO
	if err := json.NewDecoder(resp.Body).Decode(&dtos); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	peers := make([]Peer, 0, len(dtos))
	for _, d := range dtos {
		pub, err := identity.PubKeyFromHex(d.PublicKey)
		if err != nil {
			log.Printf("[membership] skipping peer %s: %v", d.ID, err)
			continue
		}
		peers = append(peers, Peer{ID: identity.PeerID(d.ID), PublicKey: pub, Address: d.Address})
	}
	p.base.set(NewSnapshot(peers))
	return nil
}
