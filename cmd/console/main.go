package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"invigilation/internal/client"
	"invigilation/internal/config"
	"invigilation/internal/logger"
	"invigilation/internal/session"
)

// Console is the operator front-end: admin CRUD, allocation generation,
// attendance views and the RFID kiosk.
func main() {
	path := os.Getenv("INVIGILATION_CONFIG")
	if path == "" {
		path = config.DefaultConsolePath()
	}
	cfg, err := config.LoadConsole(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger.Configure(logger.Config{Level: cfg.LogLevel, Pretty: true, Output: os.Stderr})

	sess, err := session.New(session.FileStore{Path: cfg.SessionFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := &commandLine{
		cfg:    cfg,
		sess:   sess,
		api:    client.New(cfg.BaseURL, sess, cfg.RequestTimeout),
		out:    os.Stdout,
		errOut: os.Stderr,
		in:     os.Stdin,
	}
	if err := cli.run(ctx, os.Args); err != nil {
		if err != errHelp {
			cli.report(err)
		}
		stop()
		os.Exit(1)
	}
}
