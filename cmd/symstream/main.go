// Command symstream serves a bounded symbol stream device.
//
// With SYMSTREAM_LISTEN set it serves the HTTP transport (and /metrics);
// otherwise it drains one session to stdout like `cat /dev/foxes`. All
// settings come from SYMSTREAM_* environment variables.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ggoodman/symstream"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout may carry the stream itself, so logs go to stderr.
	log := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	cfg, err := symstream.LoadConfig()
	if err != nil {
		log.Error("config.load.fail", slog.String("err", err.Error()))
		os.Exit(2)
	}

	if err := run(ctx, cfg, log, os.Stdout); err != nil {
		log.Error("symstream.run.fail", slog.String("err", err.Error()))
		os.Exit(1)
	}
}
