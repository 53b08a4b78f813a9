package uservice

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// doubleRequest is a message carrying its own reply channel, the shape
// a service with request/reply semantics enqueues onto a Thread.
type doubleRequest struct {
	n    int
	resp Responder[int]
}

type doublingService struct {
	self SelfSender[doubleRequest]
}

func (s *doublingService) Name() string { return "doubler" }
func (s *doublingService) Tick()        {}
func (s *doublingService) Process(msg doubleRequest) ControlFlow {
	msg.resp.Respond(msg.n*2, nil)
	return Continue()
}
func (s *doublingService) Terminate()                               {}
func (s *doublingService) Monitor() chan<- Report                    { return nil }
func (s *doublingService) SetSelfSender(sender SelfSender[doubleRequest]) { s.self = sender }

func TestResponderDeliversReplyAcrossThreadBoundary(t *testing.T) {
	th := Spawn[doubleRequest](&doublingService{}, 0)
	defer th.Close()

	resp, replies := NewResponder[int]()
	require.NoError(t, th.Send(doubleRequest{n: 21, resp: resp}))

	select {
	case r := <-replies:
		require.NoError(t, r.Err)
		assert.Equal(t, 42, r.Value)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for reply")
	}
}

func TestResponderZeroValueDiscardsReply(t *testing.T) {
	var r Responder[int]
	assert.NoError(t, r.Respond(1, nil))
}

func TestResponderRespondTwiceReportsFull(t *testing.T) {
	resp, _ := NewResponder[int]()
	require.NoError(t, resp.Respond(1, nil))
	assert.ErrorIs(t, resp.Respond(2, nil), ErrResponderFull)
}
