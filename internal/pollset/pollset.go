// Package pollset builds the ESB controller's and RPC server's "one poll
// across all buses" primitive. There is no zmq_poll to call through to
// (see internal/transport's package doc), so readiness is modeled the
// idiomatic-Go way: each session feeds a channel, and Poll fans those
// channels in via reflect.Select in a caller-supplied deterministic
// order, blocking until at least one is ready and then draining whatever
// else is already ready without blocking further.
package pollset

import (
	"reflect"

	"github.com/meshwire/meshwire/internal/transport"
)

// Ready pairs a bus id with the event that made it ready.
type Ready[B comparable] struct {
	Bus   B
	Event transport.Event
}

// Poll waits indefinitely for at least one of the receive-capable
// sessions named in order to become ready, then returns every session
// that is ready at that moment, in order's sequence. Sessions with a nil
// Events channel (send-only roles) are skipped.
func Poll[B comparable](order []B, sessions map[B]transport.Session) ([]Ready[B], error) {
	type slot struct {
		bus B
		ch  <-chan transport.Event
	}
	slots := make([]slot, 0, len(order))
	cases := make([]reflect.SelectCase, 0, len(order))
	for _, id := range order {
		sess, ok := sessions[id]
		if !ok {
			continue
		}
		ch := sess.Events()
		if ch == nil {
			continue
		}
		slots = append(slots, slot{bus: id, ch: ch})
		cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)})
	}
	if len(cases) == 0 {
		return nil, ErrNoReceivers
	}

	// Block until the first case fires.
	chosen, recv, ok := reflect.Select(cases)
	ready := make([]Ready[B], 0, len(slots))
	if ok {
		ready = append(ready, Ready[B]{Bus: slots[chosen].bus, Event: recv.Interface().(transport.Event)})
	}

	// Non-blocking sweep for anything else already ready, preserving
	// order's sequence rather than select's pseudo-random pick order.
	for i, s := range slots {
		if i == chosen {
			continue
		}
		select {
		case ev, ok := <-s.ch:
			if ok {
				ready = append(ready, Ready[B]{Bus: s.bus, Event: ev})
			}
		default:
		}
	}

	// Re-sort into order's sequence (the blocking pick may have been
	// out of position relative to the sweep above).
	sorted := make([]Ready[B], 0, len(ready))
	for _, id := range order {
		for _, r := range ready {
			if r.Bus == id {
				sorted = append(sorted, r)
				break
			}
		}
	}
	return sorted, nil
}

// ErrNoReceivers is returned by Poll when no session in the table can
// ever produce an event (e.g. a table of publish-only buses).
var ErrNoReceivers = noReceiversError{}

type noReceiversError struct{}

func (noReceiversError) Error() string { return "pollset: no receive-capable sessions to poll" }
