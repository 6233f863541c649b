package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dmcooke/ftactive/internal/dirfs"
	"github.com/dmcooke/ftactive/internal/logging"
	"github.com/dmcooke/ftactive/internal/observability"
	"github.com/dmcooke/ftactive/internal/protocol/session"
	"github.com/dmcooke/ftactive/internal/server"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ftserver [-config file.toml] <port>")
}

func main() {
	configPath := flag.String("config", "", "optional TOML config path")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() != 1 {
		usage()
		os.Exit(1)
	}
	port, err := parsePort(flag.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ftserver: %v\n", err)
		os.Exit(1)
	}

	logging.ConfigureRuntime()
	observability.InitLogger("ftserver")

	cfg := server.Config{
		ListenAddr: ":" + strconv.Itoa(port),
		Dir:        dirfs.OS("."),
		Session:    session.DefaultConfig(),
	}
	if *configPath != "" {
		cfg, err = applyFileConfig(*configPath, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ftserver: %v\n", err)
			os.Exit(1)
		}
	}

	svc, err := server.NewService(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ftserver: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := svc.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "ftserver: %v\n", err)
		os.Exit(1)
	}
}

func parsePort(raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("port number must be an integer: %q", raw)
	}
	if port < 1024 || port > 65535 {
		return 0, fmt.Errorf("port number must be in the range [1024, 65535]: %d", port)
	}
	return port, nil
}
