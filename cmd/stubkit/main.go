package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sophialabs/stubkit/internal/app"
)

func main() {
	cfg := app.DefaultConfig()
	flag.StringVar(&cfg.RootDir, "root", cfg.RootDir, "root directory for stub definitions")
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.IntVar(&cfg.TraceSize, "trace-size", cfg.TraceSize, "number of trace entries to keep")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flag.StringVar(&cfg.DefaultEngine, "default-engine", cfg.DefaultEngine, "template engine for text bodies that declare none (expr, jinja2)")
	flag.BoolVar(&cfg.Watch, "watch", cfg.Watch, "reload stubs when files under the root directory change")
	flag.Parse()

	a, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(1)
	}

	if err := a.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
