package endpoint

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwire/meshwire/address"
	"github.com/meshwire/meshwire/bus"
	"github.com/meshwire/meshwire/internal/transport"
	"github.com/meshwire/meshwire/wire"
)

type echoRequest struct {
	Text string `json:"text"`
}

func recvOne(t *testing.T, sess transport.Session) wire.Frame {
	t.Helper()
	select {
	case ev := <-sess.Events():
		require.NoError(t, ev.Err)
		return ev.Frame
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
		return wire.Frame{}
	}
}

func TestSendToWithoutRouterUsesDestAsHop(t *testing.T) {
	connA, connB := net.Pipe()
	defer connB.Close()

	tbl := New[string, address.ServiceName]()
	defer tbl.Close()

	source := address.FromString("alice")
	dest := address.FromString("bob")

	cfg := bus.Config[address.ServiceName]{
		Role:    bus.RoleRequest,
		Carrier: bus.Carrier{Socket: connA},
	}
	require.NoError(t, tbl.Add(context.Background(), "b1", cfg, source))

	peer := transport.AdoptP2P(bus.RoleReply, connB)
	defer peer.Close()

	require.NoError(t, tbl.SendTo(context.Background(), "b1", source, dest, wire.JSONCodec{}, echoRequest{Text: "hi"}))

	f := recvOne(t, peer)
	assert.Equal(t, dest.Bytes(), f.Via)
	assert.Equal(t, dest.Bytes(), f.Dst)
	assert.Equal(t, source.Bytes(), f.Src)
}

func TestSendToWithRouterEqualToSourceUsesDestAsHop(t *testing.T) {
	connA, connB := net.Pipe()
	defer connB.Close()

	tbl := New[string, address.ServiceName]()
	defer tbl.Close()

	source := address.FromString("alice")
	dest := address.FromString("bob")

	cfg := bus.Config[address.ServiceName]{
		Role:    bus.RoleRequest,
		Carrier: bus.Carrier{Socket: connA},
		Router:  &source,
	}
	require.NoError(t, tbl.Add(context.Background(), "b1", cfg, source))

	peer := transport.AdoptP2P(bus.RoleReply, connB)
	defer peer.Close()

	require.NoError(t, tbl.SendTo(context.Background(), "b1", source, dest, wire.JSONCodec{}, echoRequest{Text: "hi"}))

	f := recvOne(t, peer)
	assert.Equal(t, dest.Bytes(), f.Via)
	assert.Equal(t, dest.Bytes(), f.Dst)
}

func TestSendToWithDistinctRouterUsesRouterAsHop(t *testing.T) {
	connA, connB := net.Pipe()
	defer connB.Close()

	tbl := New[string, address.ServiceName]()
	defer tbl.Close()

	source := address.FromString("alice")
	dest := address.FromString("bob")
	router := address.FromString("relay")

	cfg := bus.Config[address.ServiceName]{
		Role:    bus.RoleRequest,
		Carrier: bus.Carrier{Socket: connA},
		Router:  &router,
	}
	require.NoError(t, tbl.Add(context.Background(), "b1", cfg, source))

	peer := transport.AdoptP2P(bus.RoleReply, connB)
	defer peer.Close()

	require.NoError(t, tbl.SendTo(context.Background(), "b1", source, dest, wire.JSONCodec{}, echoRequest{Text: "hi"}))

	f := recvOne(t, peer)
	assert.Equal(t, router.Bytes(), f.Via)
	assert.Equal(t, dest.Bytes(), f.Dst, "dest stays the logical final recipient even when relayed")
}

func TestSendToUnknownBusIDReturnsUnknownBusIDError(t *testing.T) {
	tbl := New[string, address.ServiceName]()
	defer tbl.Close()

	source := address.FromString("alice")
	dest := address.FromString("bob")

	err := tbl.SendTo(context.Background(), "nope", source, dest, wire.JSONCodec{}, echoRequest{Text: "hi"})
	var unknown UnknownBusIDError[string]
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "nope", unknown.Bus)
}

// Property 5: a non-queued (mandatory) bus with no reachable peer fails
// Send within a bounded time instead of queuing silently. RoleRouter is
// the only role where this is actually live: RoleRequest's p2pSession has
// exactly one conn fixed at construction, so its mandatory check never
// observes a missing peer once opened.
func TestSendToOnMandatoryRouterWithNoPeerFailsImmediately(t *testing.T) {
	tbl := New[string, address.ServiceName]()
	defer tbl.Close()

	source := address.FromString("alice")
	dest := address.FromString("ghost")

	cfg := bus.Config[address.ServiceName]{
		Role:    bus.RoleRouter,
		Carrier: bus.Carrier{URI: "127.0.0.1:0"},
		Queued:  false,
	}
	require.NoError(t, tbl.Add(context.Background(), "b1", cfg, source))

	start := time.Now()
	err := tbl.SendTo(context.Background(), "b1", source, dest, wire.JSONCodec{}, echoRequest{Text: "hi"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 200*time.Millisecond)
	var sendErr SendError[address.ServiceName]
	require.ErrorAs(t, err, &sendErr)
}

func TestSetIdentityUnknownBusIDReturnsUnknownBusIDError(t *testing.T) {
	tbl := New[string, address.ServiceName]()
	defer tbl.Close()

	err := tbl.SetIdentity("nope", address.FromString("alice"))
	var unknown UnknownBusIDError[string]
	require.ErrorAs(t, err, &unknown)
}
