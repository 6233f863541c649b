package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dmcooke/ftactive/internal/client"
	"github.com/dmcooke/ftactive/internal/config"
	"github.com/dmcooke/ftactive/internal/logging"
	"github.com/dmcooke/ftactive/internal/protocol/session"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ftclient [-config file.toml] <server-host> <server-port> -l|-g [filename] <data-port>")
}

func main() {
	configPath := flag.String("config", "", "optional TOML config path")
	flag.Usage = usage
	flag.Parse()

	req, err := parseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "ftclient: %v\n", err)
		usage()
		os.Exit(1)
	}

	logging.ConfigureRuntime()

	cfg := client.Config{
		ServerAddr: net.JoinHostPort(req.host, strconv.Itoa(req.serverPort)),
		DataPort:   req.dataPort,
		OutputDir:  ".",
		Session:    session.DefaultConfig(),
	}
	if *configPath != "" {
		cfg, err = applyFileConfig(*configPath, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ftclient: %v\n", err)
			os.Exit(1)
		}
	}

	c, err := client.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ftclient: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var result client.Result
	switch req.command {
	case "-l":
		result, err = c.List(ctx)
	case "-g":
		result, err = c.Get(ctx, req.filename)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "ftclient: %v\n", err)
		os.Exit(1)
	}

	for _, name := range result.Listing {
		fmt.Println(name)
	}
	if result.Saved != "" && len(result.Messages) == 0 {
		fmt.Printf("received %q (%d bytes)\n", result.Saved, result.Bytes)
	}
	for _, message := range result.Messages {
		fmt.Fprintf(os.Stderr, "ftclient: %s\n", message)
	}
	if len(result.Messages) > 0 {
		os.Exit(1)
	}
}

type request struct {
	host       string
	serverPort int
	command    string
	filename   string
	dataPort   int
}

func parseArgs(args []string) (request, error) {
	if len(args) != 4 && len(args) != 5 {
		return request{}, fmt.Errorf("wrong number of arguments")
	}

	req := request{host: args[0], command: args[2]}
	serverPort, err := parsePort("server port", args[1])
	if err != nil {
		return request{}, err
	}
	req.serverPort = serverPort

	switch req.command {
	case "-l":
		if len(args) != 4 {
			return request{}, fmt.Errorf("-l takes no filename")
		}
	case "-g":
		if len(args) != 5 {
			return request{}, fmt.Errorf("-g requires a filename")
		}
		req.filename = strings.TrimSpace(args[3])
		if req.filename == "" {
			return request{}, fmt.Errorf("-g requires a filename")
		}
	default:
		return request{}, fmt.Errorf("command must be either -l or -g")
	}

	dataPort, err := parsePort("data port", args[len(args)-1])
	if err != nil {
		return request{}, err
	}
	req.dataPort = dataPort

	if req.serverPort == req.dataPort {
		return request{}, fmt.Errorf("server port and data port cannot match")
	}
	return req, nil
}

func parsePort(name, raw string) (int, error) {
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %q", name, raw)
	}
	if port < 1024 || port > 65535 {
		return 0, fmt.Errorf("%s must be in the range [1024, 65535]: %d", name, port)
	}
	return port, nil
}

func applyFileConfig(path string, cfg client.Config) (client.Config, error) {
	raw, err := config.LoadClientConfig(path)
	if err != nil {
		return client.Config{}, err
	}
	if strings.TrimSpace(raw.OutputDir) != "" {
		cfg.OutputDir = strings.TrimSpace(raw.OutputDir)
	}
	if raw.DataPort > 0 && cfg.DataPort == 0 {
		cfg.DataPort = raw.DataPort
	}
	if err := overlayDuration(&cfg.Session.ConnectTimeout, raw.ConnectTimeout); err != nil {
		return client.Config{}, err
	}
	if err := overlayDuration(&cfg.Session.ReadTimeout, raw.ReadTimeout); err != nil {
		return client.Config{}, err
	}
	return cfg, nil
}

func overlayDuration(dst *time.Duration, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
