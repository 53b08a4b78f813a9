package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshwire/meshwire/wire"
)

func subCount(t *testing.T, pub Session) int {
	t.Helper()
	p := pub.(*pubSession)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.subs)
}

// A publish session fans every Send out to all connected subscribers,
// and each subscriber only receives frames matching its own topic
// prefix (or everything, for an empty prefix).
func TestPubSubDeliversAndFiltersByTopicPrefix(t *testing.T) {
	ctx := context.Background()

	pub, err := ListenPub(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer pub.Close()
	addr := pub.(*pubSession).listener.Addr().String()

	subAll, err := DialSub(ctx, addr)
	require.NoError(t, err)
	defer subAll.Close()

	subFoo, err := DialSub(ctx, addr)
	require.NoError(t, err)
	defer subFoo.Close()
	require.NoError(t, subFoo.Subscribe([]byte("foo:")))

	require.Eventually(t, func() bool { return subCount(t, pub) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, pub.Send(ctx, wire.Frame{Payload: []byte("foo:hello")}))
	require.NoError(t, pub.Send(ctx, wire.Frame{Payload: []byte("bar:world")}))

	var gotAll []string
	for i := 0; i < 2; i++ {
		select {
		case ev := <-subAll.Events():
			require.NoError(t, ev.Err)
			gotAll = append(gotAll, string(ev.Frame.Payload))
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for subAll frame")
		}
	}
	assert.ElementsMatch(t, []string{"foo:hello", "bar:world"}, gotAll, "an empty topic prefix must match every frame")

	select {
	case ev := <-subFoo.Events():
		require.NoError(t, ev.Err)
		assert.Equal(t, "foo:hello", string(ev.Frame.Payload))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subFoo frame")
	}
	select {
	case ev := <-subFoo.Events():
		t.Fatalf("subFoo must not receive a frame outside its topic prefix, got %q", ev.Frame.Payload)
	case <-time.After(150 * time.Millisecond):
	}
}

// A subscriber going away is pruned from the publisher's fan-out set
// without making a subsequent Send fail.
func TestPubSubPrunesDisconnectedSubscriber(t *testing.T) {
	ctx := context.Background()

	pub, err := ListenPub(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer pub.Close()
	addr := pub.(*pubSession).listener.Addr().String()

	sub, err := DialSub(ctx, addr)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return subCount(t, pub) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, sub.Close())

	require.Eventually(t, func() bool { return subCount(t, pub) == 0 }, time.Second, 5*time.Millisecond)
	assert.NoError(t, pub.Send(ctx, wire.Frame{Payload: []byte("anyone?")}))
}

// A subscribe-role session is receive-only, matching every other
// receive-only role in this package.
func TestSubSessionSendNotSupported(t *testing.T) {
	ctx := context.Background()

	pub, err := ListenPub(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer pub.Close()
	addr := pub.(*pubSession).listener.Addr().String()

	sub, err := DialSub(ctx, addr)
	require.NoError(t, err)
	defer sub.Close()

	err = sub.Send(ctx, wire.Frame{Payload: []byte("nope")})
	require.ErrorIs(t, err, ErrSendNotSupported)
}

// A publish-role session cannot subscribe; roles are fixed at open time.
func TestPubSessionSubscribeUnsupported(t *testing.T) {
	ctx := context.Background()

	pub, err := ListenPub(ctx, "127.0.0.1:0")
	require.NoError(t, err)
	defer pub.Close()

	require.Error(t, pub.Subscribe([]byte("x")))
}
