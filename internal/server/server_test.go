package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/dmcooke/ftactive/internal/client"
	"github.com/dmcooke/ftactive/internal/dirfs"
	"github.com/dmcooke/ftactive/internal/protocol/packet"
	"github.com/dmcooke/ftactive/internal/protocol/session"
	"github.com/dmcooke/ftactive/internal/testutil/testlog"
)

func fastSession() session.Config {
	return session.Config{
		ConnectTimeout:     time.Second,
		ReadTimeout:        5 * time.Second,
		WriteTimeout:       5 * time.Second,
		MaxConnectAttempts: 4,
		Backoff: session.BackoffConfig{
			InitialDelay: time.Millisecond,
			Multiplier:   1.0,
			MaxDelay:     5 * time.Millisecond,
			Jitter:       false,
		},
	}
}

// startService serves sessions on an ephemeral loopback port and returns
// the control address plus a shutdown func.
func startService(t *testing.T, dir dirfs.Dir) (*Service, string, func()) {
	t.Helper()
	svc, err := NewService(Config{
		ListenAddr: "127.0.0.1:0",
		Dir:        dir,
		Session:    fastSession(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- svc.Serve(ctx, ln)
	}()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("serve returned error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Errorf("serve did not stop")
		}
	}
	return svc, ln.Addr().String(), stop
}

func newClient(t *testing.T, addr, outputDir string) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{
		ServerAddr: addr,
		OutputDir:  outputDir,
		Session:    fastSession(),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func TestListSessionsSequentialAndIdempotent(t *testing.T) {
	testlog.Start(t)
	dir := dirfs.Mem(map[string][]byte{
		"a.txt": []byte("alpha"),
		"b.txt": []byte("beta"),
	})
	svc, addr, stop := startService(t, dir)
	defer stop()

	c := newClient(t, addr, t.TempDir())
	first, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("first list: %v", err)
	}
	if len(first.Listing) != 2 || first.Listing[0] != "a.txt" || first.Listing[1] != "b.txt" {
		t.Fatalf("unexpected listing: %v", first.Listing)
	}

	second, err := c.List(context.Background())
	if err != nil {
		t.Fatalf("second list: %v", err)
	}
	if len(second.Listing) != len(first.Listing) {
		t.Fatalf("listings differ: %v vs %v", first.Listing, second.Listing)
	}
	for i := range first.Listing {
		if first.Listing[i] != second.Listing[i] {
			t.Fatalf("listings differ: %v vs %v", first.Listing, second.Listing)
		}
	}
	if got := svc.SessionCount(); got != 2 {
		t.Fatalf("session count=%d", got)
	}
}

func TestGetSessionTransfersFile(t *testing.T) {
	testlog.Start(t)
	content := bytes.Repeat([]byte{0xcd}, 1024)
	dir := dirfs.Mem(map[string][]byte{"blob.bin": content})
	_, addr, stop := startService(t, dir)
	defer stop()

	outDir := t.TempDir()
	result, err := newClient(t, addr, outDir).Get(context.Background(), "blob.bin")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if result.Bytes != 1024 {
		t.Fatalf("bytes=%d", result.Bytes)
	}

	saved, err := os.ReadFile(filepath.Join(outDir, "blob.bin"))
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}
	if !bytes.Equal(saved, content) {
		t.Fatalf("saved content mismatch: %d bytes", len(saved))
	}
}

func TestGetMissingFileReportsControlError(t *testing.T) {
	testlog.Start(t)
	dir := dirfs.Mem(map[string][]byte{"a.txt": []byte("alpha")})
	_, addr, stop := startService(t, dir)
	defer stop()

	outDir := t.TempDir()
	result, err := newClient(t, addr, outDir).Get(context.Background(), "missing.txt")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(result.Messages) != 1 || result.Messages[0] != "File not found" {
		t.Fatalf("unexpected messages: %v", result.Messages)
	}
	if result.Bytes != 0 {
		t.Fatalf("no content expected, got %d bytes", result.Bytes)
	}
	if _, err := os.Stat(filepath.Join(outDir, "missing.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("no file should be created: %v", err)
	}
}

func TestGetRefusesLocalOverwrite(t *testing.T) {
	testlog.Start(t)
	dir := dirfs.Mem(map[string][]byte{"a.txt": []byte("fresh")})
	svc, addr, stop := startService(t, dir)
	defer stop()

	outDir := t.TempDir()
	target := filepath.Join(outDir, "a.txt")
	if err := os.WriteFile(target, []byte("stale"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	_, err := newClient(t, addr, outDir).Get(context.Background(), "a.txt")
	if !errors.Is(err, client.ErrFileExists) {
		t.Fatalf("expected ErrFileExists, got %v", err)
	}

	stale, err := os.ReadFile(target)
	if err != nil || string(stale) != "stale" {
		t.Fatalf("existing file must be untouched: %q %v", stale, err)
	}
	if got := svc.SessionCount(); got != 1 {
		t.Fatalf("handshake should still complete one session, got count=%d", got)
	}
}

func TestRejectedCommandSkipsDataPhase(t *testing.T) {
	testlog.Start(t)
	_, addr, stop := startService(t, dirfs.Mem(nil))
	defer stop()

	dataListener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen data port: %v", err)
	}
	defer dataListener.Close()
	dataPort := dataListener.Addr().(*net.TCPAddr).Port

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial control: %v", err)
	}
	defer conn.Close()

	if err := packet.Write(conn, packet.TagDataPort, []byte(strconv.Itoa(dataPort))); err != nil {
		t.Fatalf("send DPORT: %v", err)
	}
	if err := packet.Write(conn, "FOO", nil); err != nil {
		t.Fatalf("send FOO: %v", err)
	}

	tag, payload, err := packet.Read(conn)
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if tag != packet.TagError {
		t.Fatalf("expected ERROR, got %q payload=%q", tag, payload)
	}

	// The rejected session must not open a data connection.
	if tcp, ok := dataListener.(*net.TCPListener); ok {
		_ = tcp.SetDeadline(time.Now().Add(200 * time.Millisecond))
	}
	if c, err := dataListener.Accept(); err == nil {
		c.Close()
		t.Fatalf("data connection attempted after rejection")
	}
}

func TestDataConnectExhaustionAbortsOnlySession(t *testing.T) {
	testlog.Start(t)
	dir := dirfs.Mem(map[string][]byte{"a.txt": []byte("alpha")})
	_, addr, stop := startService(t, dir)
	defer stop()

	// A port with no listener: connect attempts are refused immediately.
	probe, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("probe listen: %v", err)
	}
	deadPort := probe.Addr().(*net.TCPAddr).Port
	probe.Close()

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial control: %v", err)
	}
	defer conn.Close()

	if err := packet.Write(conn, packet.TagDataPort, []byte(strconv.Itoa(deadPort))); err != nil {
		t.Fatalf("send DPORT: %v", err)
	}
	if err := packet.Write(conn, packet.TagList, nil); err != nil {
		t.Fatalf("send LIST: %v", err)
	}
	tag, _, err := packet.Read(conn)
	if err != nil || tag != packet.TagOkay {
		t.Fatalf("expected OKAY, got tag=%q err=%v", tag, err)
	}

	// Retry exhaustion closes the control connection without CLOSE.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := packet.Read(conn); !errors.Is(err, packet.ErrConnectionClosed) {
		t.Fatalf("expected connection closed after exhaustion, got %v", err)
	}

	// The service keeps accepting sessions afterwards.
	result, err := newClient(t, addr, t.TempDir()).List(context.Background())
	if err != nil {
		t.Fatalf("follow-up list: %v", err)
	}
	if len(result.Listing) != 1 {
		t.Fatalf("unexpected listing: %v", result.Listing)
	}
}

func TestNewServiceRequiresListenAddr(t *testing.T) {
	testlog.Start(t)
	if _, err := NewService(Config{}); !errors.Is(err, ErrListenAddrRequired) {
		t.Fatalf("expected ErrListenAddrRequired, got %v", err)
	}
}
