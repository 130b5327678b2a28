package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/mikaelmello/rawping/core"
)

// Runner is the struct that is responsible for running the program
type Runner struct {
	session     *core.Session
	sigch       chan os.Signal
	endch       chan error
	interrupted atomic.Bool
}

// newRunner creates a runner probing tgt through conn, printing to out
func newRunner(tgt *target, conn core.PacketConn, settings *core.Settings, out io.Writer) (*Runner, error) {
	session, err := core.NewSession(tgt.addr, conn, settings)
	if err != nil {
		return nil, err
	}

	p := newPrinter(out, tgt.name)
	session.AddOnStart(p.printOnStart)
	session.AddOnRecv(p.printOnRoundTrip)
	session.AddOnFinish(p.printOnEnd)

	return &Runner{
		session: session,
		sigch:   make(chan os.Signal, 1),
		endch:   make(chan error, 1),
	}, nil
}

// Start starts the runner
func (r *Runner) Start() {
	r.handleSignals()

	go func() {
		err := r.session.Run(context.Background())
		signal.Stop(r.sigch)
		r.endch <- err
	}()
}

// RequestStop requests the stop of the session
func (r *Runner) RequestStop() {
	r.session.RequestStop()
}

// Wait blocks the caller until the runner finishes
func (r *Runner) Wait() error {
	return <-r.endch
}

// exitCode is the process exit status once the runner finished
func (r *Runner) exitCode() int {
	if r.interrupted.Load() {
		return exitInterrupted
	}
	if r.session.Stats.GetTotalRecv() == 0 {
		return exitFailure
	}
	return exitOK
}

// handleSignals turns an interrupt or termination signal into a stop request
func (r *Runner) handleSignals() {
	signal.Notify(r.sigch, os.Interrupt, syscall.SIGTERM)
	go func() {
		if _, ok := <-r.sigch; !ok {
			return
		}
		r.interrupted.Store(true)
		r.RequestStop()
	}()
}
