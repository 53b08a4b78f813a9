package uservice

import (
	"errors"
	"fmt"
	"log"
)

// ErrSender formats and logs error reports under a service name, and
// forwards them to an optional monitor channel. A full or absent
// monitor never blocks or fails the caller.
type ErrSender struct {
	name    string
	monitor chan<- Report
	logger  *log.Logger
}

// NewErrSender builds a reporter for the named service, grounded on the
// stdlib-only logging convention used throughout this codebase.
func NewErrSender(name string, monitor chan<- Report) *ErrSender {
	return &ErrSender{
		name:    name,
		monitor: monitor,
		logger:  log.New(log.Writer(), fmt.Sprintf("[%s] ", name), log.LstdFlags),
	}
}

// Report logs "{context} - {err}" and, if a monitor is attached, forwards
// {service, error}. Monitor-channel failure is logged but never
// propagated.
func (e *ErrSender) Report(context string, err error) {
	msg := fmt.Sprintf("%s - %s", context, err)
	e.logger.Print(msg)
	e.forward(msg)
}

// Brief logs err without a context prefix and forwards it the same way.
func (e *ErrSender) Brief(err error) {
	e.logger.Print(err)
	e.forward(err.Error())
}

func (e *ErrSender) forward(msg string) {
	if e.monitor == nil {
		return
	}
	select {
	case e.monitor <- Report{Service: e.name, Err: errors.New(msg)}:
	default:
		e.logger.Printf("monitor channel full, dropping report: %s", msg)
	}
}

// Info logs an informational line under the service name.
func (e *ErrSender) Info(msg string) { e.logger.Print(msg) }

// Debug logs a low-priority line under the service name. Backed by the
// same logger as Info: this codebase does not carry a leveled logging
// dependency (see DESIGN.md).
func (e *ErrSender) Debug(msg string) { e.logger.Print(msg) }
