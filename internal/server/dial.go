package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dmcooke/ftactive/internal/observability"
	"github.com/dmcooke/ftactive/internal/protocol/session"
)

var (
	ErrDataConnectExhausted = errors.New("server: data connect attempts exhausted")
)

// dialData opens the active-mode data connection: the server dials the
// client's address on the port it advertised during negotiation. Attempts
// are bounded by the session config, with backoff between attempts;
// exhausting the bound fails only the current session.
func (s *Service) dialData(ctx context.Context, controlRemote string, dataPort int) (net.Conn, error) {
	host, _, err := net.SplitHostPort(controlRemote)
	if err != nil {
		return nil, fmt.Errorf("server: resolve data address from %q: %w", controlRemote, err)
	}
	addr := net.JoinHostPort(host, strconv.Itoa(dataPort))

	var lastErr error
	for attempt := 1; attempt <= s.cfg.Session.MaxConnectAttempts; attempt++ {
		observability.RecordDataConnectAttempt()
		dialer := net.Dialer{Timeout: s.cfg.Session.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		log.Debug().Err(err).Str("addr", addr).Int("attempt", attempt).
			Msg("server: data connect attempt failed")

		if attempt == s.cfg.Session.MaxConnectAttempts {
			break
		}
		if err := s.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: addr=%s attempts=%d: %v",
		ErrDataConnectExhausted, addr, s.cfg.Session.MaxConnectAttempts, lastErr)
}

func (s *Service) sleepBackoff(ctx context.Context, attempt int) error {
	delay := session.NextBackoffDelay(s.cfg.Session.Backoff, attempt, s.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
