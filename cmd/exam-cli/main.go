package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
	"k8s.io/utils/clock"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/debounce"
	"github.com/stemsi/exstem-attempt/internal/examclient"
	"github.com/stemsi/exstem-attempt/internal/logger"
	"github.com/stemsi/exstem-attempt/internal/poller"
	"github.com/stemsi/exstem-attempt/internal/session"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.LoadClient()

	// ─── Initialize Logger ─────────────────────────────────────────────
	// Logs go to stderr so they never interleave with the exam view.
	log := logger.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	ui := newConsole(cfg, log, os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
	code := ui.main(ctx)

	// os.Exit skips deferred calls, so everything is released before it.
	stop()
	os.Exit(code)
}

// newConsole wires the exam client, the session Store and the result poller.
func newConsole(cfg *config.ClientConfig, log zerolog.Logger, in io.Reader, out io.Writer, interactive bool) *console {
	client := examclient.New(cfg.APIURL, &http.Client{Timeout: cfg.HTTPTimeout}, log)
	client.SetToken(cfg.APIToken)

	ui := &console{
		in:          bufio.NewScanner(in),
		out:         bufio.NewWriter(out),
		interactive: interactive,
		client:      client,
	}

	realClock := clock.RealClock{}
	ui.newStore = func() *session.Store {
		return session.New(client, session.Options{
			Clock:      realClock,
			SaveDelay:  cfg.AutosaveDelay,
			TickPeriod: cfg.CountdownTick,
			Logger:     log,
			Events: session.Events{
				OnSaveStatus: func(key string, status debounce.Status, err error) {
					if status == debounce.StatusFailed {
						ui.notify("save %s failed: %v", key, err)
					}
				},
				OnExpire: func() {
					ui.notify("time is up, the attempt no longer accepts changes")
				},
				OnUnauthorized: func(err error) {
					ui.notify("session ended (%v); log in again", err)
				},
			},
		})
	}
	ui.store = ui.newStore()

	ui.poller = poller.New(client, poller.Options{
		Clock:    realClock,
		Interval: cfg.ResultPollInterval,
		Logger:   log,
	})
	ui.log = log
	return ui
}

// main runs the session and returns the process exit code. The Store is
// closed on every path.
func (c *console) main(ctx context.Context) int {
	defer func() { c.store.Close() }()
	defer c.poller.Stop()
	defer c.flush()

	if c.client.Token() != "" {
		if err := c.store.Load(ctx); err != nil {
			c.printf("could not load attempt: %v\n", err)
		}
	}

	c.printf("exam client ready; type \"help\" for commands\n")
	if err := c.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		c.printf("error: %v\n", err)
		return 1
	}

	// Unsaved edits get a last chance before exit.
	if n := c.store.Unsaved(); n > 0 {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.store.Flush(flushCtx); err != nil {
			c.log.Warn().Err(err).Int("unsaved", n).Msg("Exiting with unsaved edits")
		}
	}
	return 0
}
