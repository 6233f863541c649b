package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dmcooke/ftactive/internal/dirfs"
	"github.com/dmcooke/ftactive/internal/observability"
	"github.com/dmcooke/ftactive/internal/protocol/packet"
	"github.com/dmcooke/ftactive/internal/protocol/session"
)

var (
	ErrListenAddrRequired = errors.New("server: listen address required")
)

// Config configures the transfer service runtime.
type Config struct {
	ListenAddr      string
	Dir             dirfs.Dir
	Session         session.Config
	AdminListenAddr string
}

// Service accepts one control connection at a time and drives it through
// the control session, the active-mode data session, and the final close
// handshake. Session faults are logged and scoped to the session; the
// accept loop keeps running until the context is cancelled.
type Service struct {
	cfg      Config
	rng      *rand.Rand
	started  time.Time
	sessions atomic.Uint64
}

func NewService(cfg Config) (*Service, error) {
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return nil, ErrListenAddrRequired
	}
	if cfg.Dir == nil {
		cfg.Dir = dirfs.OS(".")
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Service{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Run blocks serving sessions until ctx is cancelled. A listen failure is
// returned immediately; there is nothing to serve without the endpoint.
func (s *Service) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the accept loop on an already-bound listener.
func (s *Service) Serve(ctx context.Context, ln net.Listener) error {
	defer ln.Close()
	s.started = time.Now()
	log.Info().Str("addr", ln.Addr().String()).Msg("server: listening")

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	adminErr := make(chan error, 1)
	if strings.TrimSpace(s.cfg.AdminListenAddr) != "" {
		go func() {
			adminErr <- s.serveAdmin(ctx, s.cfg.AdminListenAddr)
		}()
	}

	for {
		select {
		case err := <-adminErr:
			if err != nil {
				return err
			}
		default:
		}

		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("server: shutdown")
				return nil
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		// Strictly sequential: the next accept happens only after this
		// session's data connection is closed.
		s.handleSession(ctx, conn)
	}
}

// SessionCount reports how many sessions have completed or failed so far.
func (s *Service) SessionCount() uint64 {
	return s.sessions.Load()
}

func (s *Service) handleSession(ctx context.Context, control net.Conn) {
	defer control.Close()
	defer s.sessions.Add(1)
	start := time.Now()
	remote := control.RemoteAddr().String()
	log.Info().Str("remote", remote).Msg("server: control connection established")

	ctl := session.NewControl(control)
	cmd, err := ctl.Run()
	if err != nil {
		outcome := "rejected"
		if errors.Is(err, packet.ErrConnectionClosed) {
			outcome = "transport_error"
		}
		log.Warn().Err(err).Str("remote", remote).Str("state", string(ctl.State())).
			Msg("server: control session failed")
		observability.RecordSession("none", outcome, time.Since(start))
		return
	}
	log.Info().Str("remote", remote).Str("command", cmd.Tag).
		Str("file", cmd.Filename).Int("data_port", cmd.DataPort).
		Msg("server: command accepted")

	data, err := s.dialData(ctx, remote, cmd.DataPort)
	if err != nil {
		log.Error().Err(err).Str("remote", remote).Int("data_port", cmd.DataPort).
			Msg("server: data connection failed")
		observability.RecordSession(cmd.Tag, "connect_failed", time.Since(start))
		return
	}
	defer data.Close()
	log.Info().Str("remote", data.RemoteAddr().String()).Msg("server: data connection established")

	result, err := session.RunData(control, data, cmd, s.cfg.Dir)
	observability.RecordTransferBytes(int(result.Bytes))
	if err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("server: data session transport failure")
		observability.RecordSession(cmd.Tag, "transport_error", time.Since(start))
		return
	}

	// Synchronization barrier: the client acknowledges it consumed all data
	// before the server tears the sockets down.
	if err := s.awaitAck(control); err != nil {
		log.Warn().Err(err).Str("remote", remote).Msg("server: final acknowledgement not received")
		observability.RecordSession(cmd.Tag, "transport_error", time.Since(start))
		return
	}

	outcome := "ok"
	if result.Failed {
		outcome = "failed"
		log.Warn().Str("remote", remote).Str("reason", result.Reason).Msg("server: session failed")
	} else {
		log.Info().Str("remote", remote).Str("command", cmd.Tag).
			Int("files", result.FileCount).Int64("bytes", result.Bytes).
			Msg("server: session complete")
	}
	observability.RecordSession(cmd.Tag, outcome, time.Since(start))
}

func (s *Service) awaitAck(control net.Conn) error {
	_ = control.SetReadDeadline(time.Now().Add(s.cfg.Session.ReadTimeout))
	defer control.SetReadDeadline(time.Time{})
	_, _, err := packet.Read(control)
	return err
}
