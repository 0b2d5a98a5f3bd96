package membership

// StaticProvider serves a fixed peer list loaded once from configuration,
// generalized from teacher's config.Config.Validators hex list (validated
// 32-byte ed25519 keys) into the richer {PeerID, PublicKey, Address} triple
// spec §4.B describes.
type StaticProvider struct {
	base baseProvider
}

// NewStaticProvider creates a StaticProvider seeded with peers.
func NewStaticProvider(peers []Peer) *StaticProvider {
	p := &StaticProvider{}
	p.base.set(NewSnapshot(peers))
	return p
}

// Current returns the fixed snapshot.
func (p *StaticProvider) Current() (Snapshot, error) {
	return p.base.Current()
}

// OnChange registers cb, called only if Replace is used later.
func (p *StaticProvider) OnChange(cb func(Snapshot)) {
	p.base.OnChange(cb)
}

// Replace swaps the peer set, e.g. on config reload, notifying subscribers
// if membership actually changed.
func (p *StaticProvider) Replace(peers []Peer) {
	p.base.set(NewSnapshot(peers))
}
