package session

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/dmcooke/ftactive/internal/protocol/packet"
)

// ControlState tracks control session progress through negotiation.
type ControlState string

const (
	StateAwaitDataPort ControlState = "await_data_port"
	StateAwaitCommand  ControlState = "await_command"
	StateAccepted      ControlState = "accepted"
	StateRejected      ControlState = "rejected"
)

var (
	ErrExpectedDataPort = errors.New("session: expected data-port negotiation")
	ErrInvalidDataPort  = errors.New("session: invalid data port")
	ErrUnknownCommand   = errors.New("session: unknown command tag")
)

// Command is the client request negotiated over one control connection.
type Command struct {
	Tag      string
	Filename string
	DataPort int
}

// ControlSession drives the server side of one control connection from
// accept through command validation.
type ControlSession struct {
	conn  io.ReadWriter
	state ControlState
}

func NewControl(conn io.ReadWriter) *ControlSession {
	return &ControlSession{conn: conn, state: StateAwaitDataPort}
}

func (s *ControlSession) State() ControlState {
	return s.state
}

// Run advances AwaitDataPort -> AwaitCommand -> {Accepted, Rejected}.
// Protocol violations emit one ERROR packet to the peer and reject the
// session; transport failures are returned as-is.
func (s *ControlSession) Run() (Command, error) {
	port, err := s.awaitDataPort()
	if err != nil {
		return Command{}, err
	}

	cmd, err := s.awaitCommand()
	if err != nil {
		return Command{}, err
	}
	cmd.DataPort = port

	if err := packet.Write(s.conn, packet.TagOkay, nil); err != nil {
		return Command{}, err
	}
	s.state = StateAccepted
	return cmd, nil
}

func (s *ControlSession) awaitDataPort() (int, error) {
	tag, payload, err := packet.Read(s.conn)
	if err != nil {
		return 0, err
	}
	if tag != packet.TagDataPort {
		return 0, s.reject(ErrExpectedDataPort, "Expected DPORT before command")
	}
	port, err := strconv.Atoi(string(payload))
	if err != nil {
		return 0, s.reject(ErrInvalidDataPort, "Data port must be an integer")
	}
	if port <= 0 || port > 65535 {
		return 0, s.reject(ErrInvalidDataPort, "Data port out of range")
	}
	s.state = StateAwaitCommand
	return port, nil
}

func (s *ControlSession) awaitCommand() (Command, error) {
	tag, payload, err := packet.Read(s.conn)
	if err != nil {
		return Command{}, err
	}
	switch tag {
	case packet.TagList:
		return Command{Tag: packet.TagList}, nil
	case packet.TagGet:
		return Command{Tag: packet.TagGet, Filename: string(payload)}, nil
	default:
		return Command{}, s.reject(fmt.Errorf("%w: %q", ErrUnknownCommand, tag), "Command must be either -l or -g")
	}
}

// reject informs the peer, marks the session terminal, and surfaces cause.
// A write failure during rejection is secondary to the protocol error.
func (s *ControlSession) reject(cause error, message string) error {
	_ = packet.Write(s.conn, packet.TagError, []byte(message))
	s.state = StateRejected
	return cause
}
