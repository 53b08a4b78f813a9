// Package launcher abstracts spawning a named daemon either as an
// in-process goroutine or as a child OS process, behind one
// DaemonHandle with uniform join semantics.
package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// Launcher describes a named daemon: how to locate its process binary,
// how to build its argv, and how to run it in-process.
type Launcher[C any] interface {
	// Name identifies the daemon in join errors and logs.
	Name() string
	// BinName is the executable name looked up next to the current
	// binary when spawning as a process.
	BinName() string
	// CmdArgs configures cmd (argv, env, working directory) for cfg.
	CmdArgs(cmd *exec.Cmd, cfg C)
	// RunImpl runs the daemon in-process. A clean return is treated as
	// a bug: daemons are expected to loop forever.
	RunImpl(cfg C) error
}

// ThreadJoinError means the thread-spawned daemon panicked.
type ThreadJoinError struct{ Name string }

func (e ThreadJoinError) Error() string { return fmt.Sprintf("launcher: %s: worker panicked", e.Name) }

// ThreadAbortedError means RunImpl returned an error.
type ThreadAbortedError struct {
	Name  string
	Cause error
}

func (e ThreadAbortedError) Error() string {
	return fmt.Sprintf("launcher: %s: aborted: %v", e.Name, e.Cause)
}
func (e ThreadAbortedError) Unwrap() error { return e.Cause }

// ProcessAbortedError means the child process exited with a non-zero
// status.
type ProcessAbortedError struct {
	Name   string
	Status int
}

func (e ProcessAbortedError) Error() string {
	return fmt.Sprintf("launcher: %s: process exited with status %d", e.Name, e.Status)
}

// ThreadLaunchError means the goroutine could not even start. It exists
// for symmetry with ProcessLaunchError; goroutine spawn itself cannot
// fail in Go, and nothing in this package returns it.
type ThreadLaunchError struct {
	Name  string
	Cause error
}

func (e ThreadLaunchError) Error() string {
	return fmt.Sprintf("launcher: %s: failed to launch thread: %v", e.Name, e.Cause)
}
func (e ThreadLaunchError) Unwrap() error { return e.Cause }

// ProcessLaunchError means the child process could not be started.
type ProcessLaunchError struct {
	Name  string
	Cause error
}

func (e ProcessLaunchError) Error() string {
	return fmt.Sprintf("launcher: %s: failed to launch process: %v", e.Name, e.Cause)
}
func (e ProcessLaunchError) Unwrap() error { return e.Cause }

type mode int

const (
	modeThread mode = iota
	modeProcess
)

type threadResult struct {
	err      error
	panicked bool
}

// DaemonHandle is the uniform join target for either spawn mode.
type DaemonHandle struct {
	name string
	mode mode

	done chan threadResult
	cmd  *exec.Cmd
}

// SpawnThread runs l.RunImpl(cfg) on a background goroutine; l.Name()
// labels the handle and its join errors. A clean return from RunImpl is a programming error and
// panics the goroutine (daemons are expected to loop forever); Join
// reports that as ThreadJoinError just like any other panic.
func SpawnThread[C any](l Launcher[C], cfg C) *DaemonHandle {
	name := l.Name()
	done := make(chan threadResult, 1)
	h := &DaemonHandle{name: name, mode: modeThread, done: done}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- threadResult{panicked: true}
			}
		}()
		err := l.RunImpl(cfg)
		if err == nil {
			panic(fmt.Sprintf("launcher: %s: run_impl returned without error; daemons must loop forever", name))
		}
		done <- threadResult{err: err}
	}()
	return h
}

// SpawnProcess locates l.BinName() next to the current executable
// (appending .exe on Windows), builds argv via l.CmdArgs, and starts it.
func SpawnProcess[C any](l Launcher[C], cfg C) (*DaemonHandle, error) {
	name := l.Name()
	binName := l.BinName()
	if runtime.GOOS == "windows" {
		binName += ".exe"
	}

	exe, err := os.Executable()
	if err != nil {
		return nil, ProcessLaunchError{Name: name, Cause: err}
	}
	path := filepath.Join(filepath.Dir(exe), binName)

	cmd := exec.Command(path)
	cmd.SysProcAttr = sysProcAttr()
	l.CmdArgs(cmd, cfg)
	if err := cmd.Start(); err != nil {
		return nil, ProcessLaunchError{Name: name, Cause: err}
	}
	return &DaemonHandle{name: name, mode: modeProcess, cmd: cmd}, nil
}

// Stop signals a process-mode daemon's whole process group to terminate.
// It has no effect on a thread-mode daemon beyond returning an error,
// since an in-process goroutine is stopped by the service's own control
// flow (see uservice.Thread.Close), not by an OS signal.
func (h *DaemonHandle) Stop() error {
	if h.mode != modeProcess {
		return fmt.Errorf("launcher: %s: Stop is only meaningful for a process-mode daemon", h.name)
	}
	return stopProcessGroup(h.cmd)
}

// Join blocks until the daemon exits and reports how.
func (h *DaemonHandle) Join() error {
	switch h.mode {
	case modeThread:
		r := <-h.done
		if r.panicked {
			return ThreadJoinError{Name: h.name}
		}
		if r.err != nil {
			return ThreadAbortedError{Name: h.name, Cause: r.err}
		}
		return nil
	case modeProcess:
		err := h.cmd.Wait()
		if err == nil {
			return nil
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return ProcessAbortedError{Name: h.name, Status: exitErr.ExitCode()}
		}
		return ProcessLaunchError{Name: h.name, Cause: err}
	default:
		return nil
	}
}
