package uservice

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingService struct {
	name        string
	ticks       int32
	processed   []int
	mu          sync.Mutex
	terminated  int32
	breakOn     int
	breakCode   uint8
	self        SelfSender[int]
	monitor     chan Report
}

func newCountingService(name string) *countingService {
	return &countingService{name: name, monitor: make(chan Report, 16), breakOn: -1}
}

func (s *countingService) Name() string { return s.name }
func (s *countingService) Tick()        { atomic.AddInt32(&s.ticks, 1) }

func (s *countingService) Process(msg int) ControlFlow {
	s.mu.Lock()
	s.processed = append(s.processed, msg)
	s.mu.Unlock()
	if s.breakOn >= 0 && msg == s.breakOn {
		return Break(s.breakCode)
	}
	return Continue()
}

func (s *countingService) Terminate()                      { atomic.AddInt32(&s.terminated, 1) }
func (s *countingService) Monitor() chan<- Report           { return s.monitor }
func (s *countingService) SetSelfSender(sender SelfSender[int]) { s.self = sender }

func (s *countingService) Ticks() int { return int(atomic.LoadInt32(&s.ticks)) }
func (s *countingService) Terminated() int { return int(atomic.LoadInt32(&s.terminated)) }

func (s *countingService) Processed() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.processed...)
}

func TestThreadTicksAndProcessesInOrder(t *testing.T) {
	svc := newCountingService("ticker")
	th := Spawn[int](svc, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		require.NoError(t, th.Send(i))
		time.Sleep(60 * time.Millisecond)
	}

	time.Sleep(100 * time.Millisecond)
	th.Close()

	assert.Equal(t, []int{0, 1, 2}, svc.Processed())
	assert.GreaterOrEqual(t, svc.Ticks(), 3)
	assert.Equal(t, 1, svc.Terminated())
}

func TestThreadBreakStopsLoopAndTerminatesOnce(t *testing.T) {
	svc := newCountingService("breaker")
	svc.breakOn = 0
	svc.breakCode = 2
	th := Spawn[int](svc, 0)

	require.NoError(t, th.Send(0))

	// Wait for the worker loop itself to exit, not just for Terminate:
	// Terminate runs before the loop returns and closes done.
	require.Eventually(t, func() bool {
		select {
		case <-th.done:
			return svc.Terminated() == 1
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	assert.Panics(t, func() { th.Close() })
}

// Once a worker loop has exited on its own, a later Send reports
// ErrDisconnected rather than silently buffering into a channel
// nothing will ever drain.
func TestThreadSendAfterBreakReportsDisconnected(t *testing.T) {
	svc := newCountingService("disconnector")
	svc.breakOn = 0
	svc.breakCode = 0
	th := Spawn[int](svc, 0)

	require.NoError(t, th.Send(0))

	require.Eventually(t, func() bool {
		select {
		case <-th.done:
			return svc.Terminated() == 1
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	err := th.Send(1)
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestThreadCloseSendsTerminateAndJoins(t *testing.T) {
	svc := newCountingService("closer")
	th := Spawn[int](svc, 0)
	th.Close()
	assert.Equal(t, 1, svc.Terminated())
}

func TestSelfSenderEnqueuesToOwnChannel(t *testing.T) {
	svc := newCountingService("selfer")
	th := Spawn[int](svc, 0)
	svc.self.Send(7)

	require.Eventually(t, func() bool {
		processed := svc.Processed()
		return len(processed) == 1 && processed[0] == 7
	}, time.Second, 5*time.Millisecond)

	th.Close()
}
