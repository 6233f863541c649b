// Package client drives the peer side of one transfer session: it
// negotiates over the control connection, listens for the server's
// active-mode data connection, and consumes a listing or file stream.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dmcooke/ftactive/internal/protocol/packet"
	"github.com/dmcooke/ftactive/internal/protocol/session"
)

var (
	ErrServerAddrRequired = errors.New("client: server address required")
	ErrServerRejected     = errors.New("client: server rejected command")
	ErrFileExists         = errors.New("client: refusing to overwrite existing file")
	ErrUnexpectedStream   = errors.New("client: unexpected first data packet")
)

// Config configures one client session.
type Config struct {
	ServerAddr string
	// DataPort is the advertised data port; 0 picks an ephemeral port.
	DataPort int
	// OutputDir receives fetched files; defaults to the working directory.
	OutputDir string
	Session   session.Config
}

// Result reports what one session delivered.
type Result struct {
	Listing  []string
	Saved    string
	Bytes    int64
	Messages []string
}

type Client struct {
	cfg Config
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ServerAddr) == "" {
		return nil, ErrServerAddrRequired
	}
	if strings.TrimSpace(cfg.OutputDir) == "" {
		cfg.OutputDir = "."
	}
	cfg.Session = cfg.Session.WithDefaults()
	return &Client{cfg: cfg}, nil
}

// List requests the server's file listing.
func (c *Client) List(ctx context.Context) (Result, error) {
	return c.run(ctx, packet.TagList, "")
}

// Get requests one file and writes it under the output directory. An
// existing local file of the same name is never overwritten.
func (c *Client) Get(ctx context.Context, filename string) (Result, error) {
	if strings.TrimSpace(filename) == "" {
		return Result{}, fmt.Errorf("client: filename required for GET")
	}
	return c.run(ctx, packet.TagGet, filename)
}

func (c *Client) run(ctx context.Context, tag, filename string) (Result, error) {
	dialer := net.Dialer{Timeout: c.cfg.Session.ConnectTimeout}
	control, err := dialer.DialContext(ctx, "tcp", c.cfg.ServerAddr)
	if err != nil {
		return Result{}, fmt.Errorf("client: dial control %s: %w", c.cfg.ServerAddr, err)
	}
	defer control.Close()
	log.Info().Str("addr", c.cfg.ServerAddr).Msg("client: control connection established")

	// Listen before advertising the port so the server's first data
	// connect attempt can already succeed.
	lc := net.ListenConfig{}
	dataListener, err := lc.Listen(ctx, "tcp", ":"+strconv.Itoa(c.cfg.DataPort))
	if err != nil {
		return Result{}, fmt.Errorf("client: listen data port: %w", err)
	}
	defer dataListener.Close()
	dataPort := dataListener.Addr().(*net.TCPAddr).Port

	if err := packet.Write(control, packet.TagDataPort, []byte(strconv.Itoa(dataPort))); err != nil {
		return Result{}, err
	}
	var payload []byte
	if tag == packet.TagGet {
		payload = []byte(filename)
	}
	if err := packet.Write(control, tag, payload); err != nil {
		return Result{}, err
	}

	replyTag, replyPayload, err := c.readControl(control)
	if err != nil {
		return Result{}, err
	}
	if replyTag == packet.TagError {
		return Result{}, fmt.Errorf("%w: %s", ErrServerRejected, replyPayload)
	}
	if replyTag != packet.TagOkay {
		return Result{}, fmt.Errorf("client: unexpected control reply %q", replyTag)
	}

	data, err := c.acceptData(ctx, dataListener)
	if err != nil {
		return Result{}, err
	}
	defer data.Close()
	log.Info().Str("remote", data.RemoteAddr().String()).Msg("client: data connection established")

	// A local overwrite refusal still completes the ACK/CLOSE handshake;
	// only transport faults abandon the session.
	result, consumeErr := c.consumeData(data)
	if consumeErr != nil && !errors.Is(consumeErr, ErrFileExists) {
		return result, consumeErr
	}

	if err := packet.Write(control, packet.TagAck, nil); err != nil {
		return result, err
	}
	if err := c.drainControl(control, &result); err != nil {
		return result, err
	}
	return result, consumeErr
}

func (c *Client) acceptData(ctx context.Context, ln net.Listener) (net.Conn, error) {
	type accepted struct {
		conn net.Conn
		err  error
	}
	ch := make(chan accepted, 1)
	go func() {
		conn, err := ln.Accept()
		ch <- accepted{conn: conn, err: err}
	}()
	select {
	case <-ctx.Done():
		_ = ln.Close()
		return nil, ctx.Err()
	case a := <-ch:
		if a.err != nil {
			return nil, fmt.Errorf("client: accept data connection: %w", a.err)
		}
		return a.conn, nil
	}
}

// consumeData dispatches on the first data packet: FNAME starts a listing,
// FILE starts a transfer, DONE means the server reported an application
// fault on the control connection instead.
func (c *Client) consumeData(data net.Conn) (Result, error) {
	var result Result
	tag, payload, err := c.readData(data)
	if err != nil {
		return result, err
	}

	switch tag {
	case packet.TagDone:
		return result, nil
	case packet.TagFileName:
		result.Listing = append(result.Listing, string(payload))
		for {
			tag, payload, err = c.readData(data)
			if err != nil {
				return result, err
			}
			if tag == packet.TagDone {
				return result, nil
			}
			result.Listing = append(result.Listing, string(payload))
		}
	case packet.TagFile:
		return c.receiveFile(data, string(payload))
	default:
		return result, fmt.Errorf("%w: %q", ErrUnexpectedStream, tag)
	}
}

func (c *Client) receiveFile(data net.Conn, filename string) (Result, error) {
	result := Result{Saved: filename}
	target := filepath.Join(c.cfg.OutputDir, filepath.Base(filename))

	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			c.discardUntilDone(data)
			return result, fmt.Errorf("%w: %s", ErrFileExists, target)
		}
		return result, fmt.Errorf("client: create %s: %w", target, err)
	}
	defer out.Close()

	for {
		tag, payload, err := c.readData(data)
		if err != nil {
			return result, err
		}
		if tag == packet.TagDone {
			log.Info().Str("file", target).Int64("bytes", result.Bytes).Msg("client: transfer complete")
			return result, nil
		}
		if len(payload) == 0 {
			continue // terminal zero-length chunk precedes DONE
		}
		if _, err := out.Write(payload); err != nil {
			return result, fmt.Errorf("client: write %s: %w", target, err)
		}
		result.Bytes += int64(len(payload))
	}
}

// discardUntilDone keeps the stream aligned after a local refusal so the
// close handshake still completes.
func (c *Client) discardUntilDone(data net.Conn) {
	for {
		tag, _, err := c.readData(data)
		if err != nil || tag == packet.TagDone {
			return
		}
	}
}

// drainControl consumes queued control packets through the CLOSE handshake,
// collecting any ERROR messages for the caller.
func (c *Client) drainControl(control net.Conn, result *Result) error {
	for {
		tag, payload, err := c.readControl(control)
		if err != nil {
			return err
		}
		switch tag {
		case packet.TagError:
			result.Messages = append(result.Messages, string(payload))
		case packet.TagClose:
			return nil
		}
	}
}

func (c *Client) readControl(conn net.Conn) (string, []byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Session.ReadTimeout))
	defer conn.SetReadDeadline(time.Time{})
	return packet.Read(conn)
}

func (c *Client) readData(conn net.Conn) (string, []byte, error) {
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.Session.ReadTimeout))
	defer conn.SetReadDeadline(time.Time{})
	return packet.Read(conn)
}
