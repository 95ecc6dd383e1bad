// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"bytes"
	"net/netip"
	"testing"
	"time"

	"github.com/gopacket/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsdasari9/firewall/internal/clock"
	"github.com/tsdasari9/firewall/internal/errors"
	"github.com/tsdasari9/firewall/internal/logging"
	"github.com/tsdasari9/firewall/internal/testutil"
)

type recorder struct {
	events []Event
}

func (r *recorder) Record(ev Event) { r.events = append(r.events, ev) }

func (r *recorder) stages() []Stage {
	out := make([]Stage, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Stage)
	}
	return out
}

type fixture struct {
	clock      *clock.MockClock
	policies   *Policies
	dispatcher *Dispatcher
	events     *recorder
}

func newFixture(t *testing.T, natOpts ...NATOption) *fixture {
	t.Helper()
	clk := clock.NewMockClock(epoch)
	nat, err := NewAddressTranslator(netip.MustParseAddr("203.0.113.1"), natOpts...)
	require.NoError(t, err)

	acl := NewAccessControlList()
	acl.AddRule(netip.MustParseAddr("10.0.0.5"), []uint16{22, 443})

	p := &Policies{
		Intrusion: NewIntrusionDetector(100, 100, time.Minute, WithClock(clk)),
		RateLimit: NewRateLimiter(100, time.Minute, WithClock(clk)),
		Shaper:    NewTrafficShaper(1<<20, time.Minute, WithClock(clk)),
		NAT:       nat,
		ACL:       acl,
	}
	rec := &recorder{}
	d, err := NewDispatcher(p, layers.LinkTypeRaw, WithSink(rec), WithEventClock(clk))
	require.NoError(t, err)
	return &fixture{clock: clk, policies: p, dispatcher: d, events: rec}
}

func syn(t *testing.T, src string, srcPort, dstPort uint16) []byte {
	return testutil.TCPv4(t, testutil.TCPOptions{Src: src, Dst: "93.184.216.34", SrcPort: srcPort, DstPort: dstPort, SYN: true})
}

func TestDispatcher_EndToEnd(t *testing.T) {
	fx := newFixture(t)

	out := fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22))
	require.True(t, out.Forwarded(), "outcome %s", out)
	assert.Equal(t, ReasonAllowed, out.Reason)
	assert.Equal(t, "203.0.113.1:10000", out.Translation.String())
	assert.True(t, out.NewMapping)

	private, ok := fx.policies.NAT.ReverseTranslate(out.Translation)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.5:40000", private.String())

	blocked := fx.dispatcher.Handle(syn(t, "10.0.0.5", 40001, 80))
	assert.False(t, blocked.Forwarded())
	assert.Equal(t, ReasonACLBlocked, blocked.Reason)
	assert.Equal(t, "dropped(acl_blocked)", blocked.String())
	assert.Equal(t, 1, fx.policies.NAT.Len(), "no mapping for the blocked exchange")
	_, err := fx.policies.NAT.Plan(netip.MustParseAddrPort("10.0.0.5:40001"))
	require.NoError(t, err)
}

func TestDispatcher_StageOrderAndEvents(t *testing.T) {
	fx := newFixture(t)

	fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22))
	assert.Equal(t, []Stage{StageIntrusion, StageRateLimit, StageShaping, StageTranslate, StageACL, StageVerdict}, fx.events.stages())
	for _, ev := range fx.events.events {
		assert.True(t, ev.Allowed, "stage %s", ev.Stage)
		assert.Equal(t, epoch, ev.Time)
	}
}

func TestDispatcher_IntrusionShortCircuits(t *testing.T) {
	fx := newFixture(t)
	fx.policies.Intrusion = NewIntrusionDetector(2, 100, time.Minute, WithClock(fx.clock))
	src := netip.MustParseAddr("10.0.0.5")

	require.True(t, fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22)).Forwarded())
	rate, _ := fx.policies.RateLimit.Usage(src)
	natBefore := fx.policies.NAT.Len()

	fx.events.events = nil
	out := fx.dispatcher.Handle(syn(t, "10.0.0.5", 40002, 443))
	assert.Equal(t, ReasonIntrusion, out.Reason)
	assert.Equal(t, []Stage{StageIntrusion, StageVerdict}, fx.events.stages())
	assert.False(t, fx.events.events[0].Allowed)

	rateAfter, _ := fx.policies.RateLimit.Usage(src)
	assert.Equal(t, rate.Used, rateAfter.Used, "rate limiter untouched")
	shaped, _ := fx.policies.Shaper.Usage(netip.MustParseAddr("93.184.216.34"))
	assert.Equal(t, uint64(40), shaped.Used, "shaper only saw the first packet")
	assert.Equal(t, natBefore, fx.policies.NAT.Len(), "nat untouched")
}

func TestDispatcher_SYNACKFloodTripsIntrusion(t *testing.T) {
	fx := newFixture(t)
	fx.policies.Intrusion = NewIntrusionDetector(5, 100, time.Minute, WithClock(fx.clock))

	var got []string
	for range 6 {
		raw := testutil.TCPv4(t, testutil.TCPOptions{Src: "10.0.0.5", Dst: "93.184.216.34", SrcPort: 40000, DstPort: 22, SYN: true, ACK: true})
		got = append(got, fx.dispatcher.Handle(raw).String())
	}
	assert.Equal(t, []string{
		"forwarded(allowed)",
		"forwarded(allowed)",
		"forwarded(allowed)",
		"forwarded(allowed)",
		"dropped(intrusion)",
		"dropped(intrusion)",
	}, got)
}

func TestDispatcher_RateLimited(t *testing.T) {
	fx := newFixture(t)
	fx.policies.RateLimit = NewRateLimiter(1, time.Minute, WithClock(fx.clock))

	require.True(t, fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22)).Forwarded())
	out := fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22))
	assert.Equal(t, ReasonRateLimited, out.Reason)
	shaped, _ := fx.policies.Shaper.Usage(netip.MustParseAddr("93.184.216.34"))
	assert.Equal(t, uint64(40), shaped.Used, "shaper saw only the first packet")

	fx.clock.Advance(61 * time.Second)
	assert.True(t, fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22)).Forwarded())
}

func TestDispatcher_TrafficShaped(t *testing.T) {
	fx := newFixture(t)
	fx.policies.Shaper = NewTrafficShaper(50, time.Minute, WithClock(fx.clock))

	require.True(t, fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22)).Forwarded())
	out := fx.dispatcher.Handle(syn(t, "10.0.0.5", 40001, 22))
	assert.Equal(t, ReasonTrafficShaped, out.Reason)
	assert.Equal(t, 1, fx.policies.NAT.Len())
}

func TestDispatcher_NonTransportSkipsNATAndACL(t *testing.T) {
	fx := newFixture(t)

	// 10.0.0.99 has no ACL rule at all.
	out := fx.dispatcher.Handle(testutil.ICMPv4(t, "10.0.0.99", "10.0.0.1"))
	assert.True(t, out.Forwarded())
	assert.Equal(t, ReasonNonTransport, out.Reason)
	assert.False(t, out.Translation.IsValid())
	assert.Equal(t, 0, fx.policies.NAT.Len())
	assert.Equal(t, []Stage{StageIntrusion, StageRateLimit, StageShaping, StageVerdict}, fx.events.stages())
}

func TestDispatcher_Malformed(t *testing.T) {
	fx := newFixture(t)

	out := fx.dispatcher.Handle([]byte{0x00, 0x01, 0x02})
	assert.False(t, out.Forwarded())
	assert.Equal(t, ReasonMalformed, out.Reason)
	assert.Equal(t, errors.KindMalformed, errors.GetKind(out.Err))
	assert.Equal(t, []Stage{StageParse, StageVerdict}, fx.events.stages())
	assert.Equal(t, 0, fx.policies.RateLimit.Len())
}

func TestDispatcher_FragmentDropped(t *testing.T) {
	fx := newFixture(t)

	out := fx.dispatcher.Handle(fragment(t, layers.IPProtocolTCP))
	assert.False(t, out.Forwarded())
	assert.Equal(t, ReasonFragment, out.Reason)
	assert.NoError(t, out.Err)
	assert.Equal(t, []Stage{StageIntrusion, StageRateLimit, StageShaping, StageACL, StageVerdict}, fx.events.stages())
	assert.Equal(t, 0, fx.policies.NAT.Len())
	assert.Equal(t, 1, fx.policies.RateLimit.Len(), "fragments still count toward the source's rate")
}

func TestDispatcher_NATExhaustion(t *testing.T) {
	fx := newFixture(t, WithPortBase(65535))

	require.True(t, fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22)).Forwarded())
	out := fx.dispatcher.Handle(syn(t, "10.0.0.5", 40001, 22))
	assert.False(t, out.Forwarded())
	assert.Equal(t, ReasonResourceExhausted, out.Reason)
	assert.Equal(t, errors.KindExhausted, errors.GetKind(out.Err))

	// The existing mapping keeps working.
	assert.True(t, fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22)).Forwarded())
}

func TestDispatcher_NATExhaustionReportsACLBlockFirst(t *testing.T) {
	fx := newFixture(t, WithPortBase(65535))
	require.True(t, fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 22)).Forwarded())

	fx.events.events = nil
	out := fx.dispatcher.Handle(syn(t, "10.0.0.5", 40001, 80))
	assert.Equal(t, ReasonACLBlocked, out.Reason)
	assert.NoError(t, out.Err)
	assert.Equal(t, []Stage{StageIntrusion, StageRateLimit, StageShaping, StageACL, StageVerdict}, fx.events.stages())

	out = fx.dispatcher.Handle(syn(t, "10.0.0.9", 40000, 22))
	assert.Equal(t, ReasonACLBlocked, out.Reason, "unknown source is blocked, not exhausted")
}

func TestDispatcher_DisabledStages(t *testing.T) {
	fx := newFixture(t)
	fx.policies.Intrusion = nil
	fx.policies.RateLimit = nil
	fx.policies.Shaper = nil

	out := fx.dispatcher.Handle(syn(t, "10.0.0.5", 40000, 443))
	assert.True(t, out.Forwarded())
	assert.Equal(t, []Stage{StageTranslate, StageACL, StageVerdict}, fx.events.stages())
}

func TestNewDispatcher_RequiresNATAndACL(t *testing.T) {
	_, err := NewDispatcher(&Policies{ACL: NewAccessControlList()}, layers.LinkTypeRaw)
	require.Error(t, err)
	assert.Equal(t, errors.KindValidation, errors.GetKind(err))

	_, err = NewDispatcher(nil, layers.LinkTypeRaw)
	require.Error(t, err)
}

func TestLogSink(t *testing.T) {
	fx := newFixture(t)
	var buf bytes.Buffer
	logger := logging.New(logging.Config{Output: &buf, Level: logging.LevelInfo, NoColor: true})
	d, err := NewDispatcher(fx.policies, layers.LinkTypeRaw, WithSink(NewLogSink(logger)))
	require.NoError(t, err)

	d.Handle(syn(t, "10.0.0.5", 40000, 22))
	d.Handle(syn(t, "10.0.0.5", 40001, 80))

	out := buf.String()
	assert.Contains(t, out, "NAT mapping created")
	assert.Contains(t, out, "Packet allowed")
	assert.Contains(t, out, "Packet dropped")
	assert.Contains(t, out, "reason=acl_blocked")
	assert.NotContains(t, out, "Stage passed packet", "per-stage passes are debug only")
}
