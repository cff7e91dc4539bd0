package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mattjoyce/kolibrid/internal/bus"
	"github.com/mattjoyce/kolibrid/internal/log"
	"github.com/mattjoyce/kolibrid/internal/protocol"
	"github.com/mattjoyce/kolibrid/internal/state"
	"github.com/mattjoyce/kolibrid/internal/webapp"
)

// Service is the managed webapp as the supervisor sees it. *webapp.App
// satisfies it; tests substitute fakes.
type Service interface {
	Bootstrap(ctx context.Context) error
	Transition(target webapp.Target) error
	Bus() *bus.Bus
	ResolveURLs(port int) (internal string, external []string)
	AppKey() string
	HomePath() string
	Alive() bool
}

// Supervisor runs the managed webapp and mediates all external control over
// it. Commands arrive over the command channel; webapp lifecycle events come
// back asynchronously through the bus and are folded into the shared context
// by the event adapter.
type Supervisor struct {
	svc         Service
	shared      *state.Context
	commands    *protocol.Reader
	pollTimeout time.Duration
	logger      *slog.Logger

	keepAlive bool
}

// New wires a supervisor. pollTimeout is the command-poll cadence used as a
// webapp liveness check; it does not affect protocol behavior.
func New(svc Service, shared *state.Context, commands *protocol.Reader, pollTimeout time.Duration) *Supervisor {
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Second
	}
	return &Supervisor{
		svc:         svc,
		shared:      shared,
		commands:    commands,
		pollTimeout: pollTimeout,
		logger:      log.WithComponent("supervisor"),
	}
}

type commandResult struct {
	cmd protocol.Command
	err error
}

// Run bootstraps the webapp and blocks in the command loop until SHUTDOWN,
// channel closure, a protocol error, or a failed webapp transition. On every
// exit path the shared context ends in its reset/stopped state so no
// controller can observe a stale "starting" or "serving" after Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	defer s.shared.Reset()

	if err := s.svc.Bootstrap(ctx); err != nil {
		s.shared.SetError()
		return err
	}

	s.shared.SetAppKey(s.svc.AppKey())
	s.shared.SetHomePath(s.svc.HomePath())
	attachEventAdapter(s.svc, s.shared)

	// The reader goroutine owns all channel reads. It parks on the pipe and
	// exits with the worker process once the channel drains or breaks.
	results := make(chan commandResult)
	go func() {
		for {
			cmd, err := s.commands.Next()
			results <- commandResult{cmd: cmd, err: err}
			if errors.Is(err, protocol.ErrChannelClosed) {
				return
			}
		}
	}()

	s.keepAlive = true
	s.logger.Info("command loop started", "poll_timeout", s.pollTimeout)
	defer s.logger.Info("command loop stopped")

	for s.keepAlive {
		select {
		case res := <-results:
			if err := s.handle(res); err != nil {
				return err
			}
		case <-time.After(s.pollTimeout):
			if !s.svc.Alive() {
				s.logger.Warn("webapp is unreachable, shutting down")
				if err := s.shutdown(); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// handle processes one poll result. A non-nil return is fatal to Run.
func (s *Supervisor) handle(res commandResult) error {
	switch {
	case res.err == nil:
		return s.dispatch(res.cmd)
	case errors.Is(res.err, protocol.ErrChannelClosed):
		s.logger.Info("command channel closed, shutting down")
		return s.shutdown()
	default:
		var unknown *protocol.UnknownCommandError
		var payload *protocol.PayloadError
		switch {
		case errors.As(res.err, &unknown):
			// Protocol violation: the controller and worker disagree about
			// the command set. Stop cleanly rather than guess.
			s.logger.Error("unknown command, shutting down", "command", unknown.Name)
			return s.shutdown()
		case errors.As(res.err, &payload):
			// Same class of violation, one layer down in the envelope.
			s.logger.Error("malformed command payload, shutting down", "error", payload.Err)
			return s.shutdown()
		default:
			// Transport read failure for a single command: skip it.
			s.logger.Warn("dropping unreadable command", "error", res.err)
			return nil
		}
	}
}

func (s *Supervisor) dispatch(cmd protocol.Command) error {
	s.logger.Debug("dispatching command", "command", string(cmd))

	switch cmd {
	case protocol.CommandStartKolibri:
		// MarkStarting completes before the transition is issued so a
		// controller can never observe "not starting" after the command
		// has been accepted.
		s.shared.MarkStarting()
		if err := s.svc.Transition(webapp.TargetServing); err != nil {
			s.shared.SetError()
			return err
		}
		return nil
	case protocol.CommandStopKolibri:
		return s.svc.Transition(webapp.TargetIdle)
	case protocol.CommandShutdown:
		return s.shutdown()
	default:
		// Unreachable while the Reader validates command names.
		s.logger.Error("unhandled command, shutting down", "command", string(cmd))
		return s.shutdown()
	}
}

func (s *Supervisor) shutdown() error {
	s.keepAlive = false
	return s.svc.Transition(webapp.TargetIdle)
}
