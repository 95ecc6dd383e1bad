// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"math"
	"net/netip"
	"slices"
	"sync"

	"github.com/tsdasari9/firewall/internal/errors"
)

// DefaultPortBase is the first public port handed out by NAT.
const DefaultPortBase = 10000

// Translation pairs a private endpoint with its public endpoint.
type Translation struct {
	Private netip.AddrPort `json:"private"`
	Public  netip.AddrPort `json:"public"`
	// New is set when no mapping existed at the time of the lookup.
	New bool `json:"-"`
}

// NATOption configures an AddressTranslator.
type NATOption func(*AddressTranslator)

// WithPortBase sets the first public port to allocate.
func WithPortBase(base uint16) NATOption {
	return func(t *AddressTranslator) {
		t.base = base
		t.next = uint32(base)
	}
}

// AddressTranslator maps private endpoints to ports on a single public
// address. Ports are handed out sequentially and never reclaimed, so the
// forward and reverse tables stay a bijection for the translator's lifetime.
type AddressTranslator struct {
	mu      sync.RWMutex
	public  netip.Addr
	base    uint16
	next    uint32
	forward map[netip.AddrPort]netip.AddrPort
	reverse map[netip.AddrPort]netip.AddrPort
}

// NewAddressTranslator returns a translator for the given IPv4 public address.
func NewAddressTranslator(public netip.Addr, opts ...NATOption) (*AddressTranslator, error) {
	public = public.Unmap()
	if !public.Is4() {
		return nil, errors.Errorf(errors.KindValidation, "nat public address %q is not IPv4", public)
	}
	t := &AddressTranslator{
		public:  public,
		base:    DefaultPortBase,
		next:    DefaultPortBase,
		forward: make(map[netip.AddrPort]netip.AddrPort),
		reverse: make(map[netip.AddrPort]netip.AddrPort),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Plan reports the public endpoint private would use without recording
// anything. It fails with KindExhausted when private is unmapped and no
// ports remain.
func (t *AddressTranslator) Plan(private netip.AddrPort) (Translation, error) {
	private = normalize(private)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if public, ok := t.forward[private]; ok {
		return Translation{Private: private, Public: public}, nil
	}
	if t.next > math.MaxUint16 {
		return Translation{}, t.exhausted(private)
	}
	return Translation{
		Private: private,
		Public:  netip.AddrPortFrom(t.public, uint16(t.next)),
		New:     true,
	}, nil
}

// Commit records a planned translation and returns what was actually
// stored. Translate is idempotent, so committing the same plan twice is
// harmless.
func (t *AddressTranslator) Commit(plan Translation) (Translation, error) {
	public, created, err := t.translate(plan.Private)
	if err != nil {
		return Translation{}, err
	}
	return Translation{Private: normalize(plan.Private), Public: public, New: created}, nil
}

// Translate returns the public endpoint for private, allocating the next
// port on first use.
func (t *AddressTranslator) Translate(private netip.AddrPort) (netip.AddrPort, error) {
	public, _, err := t.translate(private)
	return public, err
}

func (t *AddressTranslator) translate(private netip.AddrPort) (netip.AddrPort, bool, error) {
	private = normalize(private)

	t.mu.Lock()
	defer t.mu.Unlock()

	if public, ok := t.forward[private]; ok {
		return public, false, nil
	}
	if t.next > math.MaxUint16 {
		return netip.AddrPort{}, false, t.exhausted(private)
	}

	public := netip.AddrPortFrom(t.public, uint16(t.next))
	t.next++
	t.forward[private] = public
	t.reverse[public] = private
	return public, true, nil
}

// ReverseTranslate returns the private endpoint behind public.
func (t *AddressTranslator) ReverseTranslate(public netip.AddrPort) (netip.AddrPort, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	private, ok := t.reverse[normalize(public)]
	return private, ok
}

// Mappings returns every translation ordered by public port.
func (t *AddressTranslator) Mappings() []Translation {
	t.mu.RLock()
	out := make([]Translation, 0, len(t.forward))
	for private, public := range t.forward {
		out = append(out, Translation{Private: private, Public: public})
	}
	t.mu.RUnlock()

	slices.SortFunc(out, func(a, b Translation) int { return int(a.Public.Port()) - int(b.Public.Port()) })
	return out
}

// PublicAddress is the address every translation maps onto.
func (t *AddressTranslator) PublicAddress() netip.Addr {
	return t.public
}

// Len is the number of live mappings.
func (t *AddressTranslator) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.forward)
}

// Remaining is the number of ports still available for new mappings.
func (t *AddressTranslator) Remaining() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.next > math.MaxUint16 {
		return 0
	}
	return math.MaxUint16 - int(t.next) + 1
}

func (t *AddressTranslator) exhausted(private netip.AddrPort) error {
	err := errors.Errorf(errors.KindExhausted, "nat port space exhausted on %s", t.public)
	err = errors.Attr(err, "private", private.String())
	return errors.Attr(err, "port_base", int(t.base))
}

func normalize(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}
