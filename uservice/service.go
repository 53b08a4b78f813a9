// Package uservice implements the in-process microservice runtime: a
// bounded, channel-driven actor (Service) owned by a background worker
// (Thread), with error reporting fanned out to an optional monitor
// channel.
package uservice

// ControlFlow is the result of processing one message: either keep
// looping, or stop with an exit code.
type ControlFlow struct {
	stop bool
	code uint8
}

// Continue keeps the worker loop running.
func Continue() ControlFlow { return ControlFlow{} }

// Break stops the worker loop with the given exit code.
func Break(code uint8) ControlFlow { return ControlFlow{stop: true, code: code} }

// Stop reports whether this ControlFlow requests termination.
func (c ControlFlow) Stop() bool { return c.stop }

// Code returns the exit code carried by a Break value.
func (c ControlFlow) Code() uint8 { return c.code }

// Report is one error observed by a service, fanned out to its monitor.
type Report struct {
	Service string
	Err     error
}

// SelfSender lets a service enqueue a message to itself, after the
// worker's channel exists but before its loop starts.
type SelfSender[M any] interface {
	Send(msg M)
}

// Service is the contract every µservice value implements.
type Service[M any] interface {
	// Name identifies the service in logs and monitor reports.
	Name() string
	// Tick is the optional periodic hook, invoked on every tick-interval
	// idle timeout.
	Tick()
	// Process handles one message, returning Continue or Break(code).
	Process(msg M) ControlFlow
	// Terminate runs exactly once when the worker loop ends, however it
	// ended.
	Terminate()
	// Monitor is the optional channel error reports are sent to. A nil
	// return means no monitor is attached.
	Monitor() chan<- Report
	// SetSelfSender installs the sender the service can use to enqueue
	// messages to itself.
	SetSelfSender(sender SelfSender[M])
}

// envelope is the internal wrapper around every message placed on a
// worker's channel: either an application message or a terminate
// signal. Only Msg is reachable from the public Send; Terminate is
// emitted exactly once, by Close.
type envelope[M any] struct {
	msg       M
	terminate bool
}

type selfSender[M any] struct {
	ch chan<- envelope[M]
}

func (s selfSender[M]) Send(msg M) {
	s.ch <- envelope[M]{msg: msg}
}
