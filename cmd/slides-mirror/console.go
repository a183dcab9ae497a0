package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/smorand/slides-mirror/internal/cache"
	"github.com/smorand/slides-mirror/internal/host"
	"github.com/smorand/slides-mirror/internal/session"
)

// showController drives the slide show from the console.
type showController interface {
	Begin() error
	End() error
	Next() error
	Prev() error
	First() error
	Last() error
	Goto(n int) error
}

type slideSession interface {
	Recache() (cache.PassResult, error)
	Snapshot(ctx context.Context) (host.Snapshot, error)
}

type cacheClearer interface {
	Clear() error
	LogStats()
}

type addressLister interface {
	ListeningAddresses() []string
}

type consoleConfig struct {
	In      io.Reader
	Out     io.Writer
	Show    showController
	Session slideSession
	Cache   cacheClearer
	Server  addressLister
	Logger  *slog.Logger
}

type console struct {
	config consoleConfig
	logger *slog.Logger
	outMu  sync.Mutex
}

const consoleHelp = `Commands:
  next, prev, first, last  move through the running show
  goto <n>                 jump to slide n
  begin                    start the slide show
  end                      stop the slide show
  recache                  cache the running show again
  status                   show the current slide and cache contents
  clear                    remove every cached presentation
  help                     print this help
  quit                     exit`

func newConsole(config consoleConfig) *console {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &console{config: config, logger: config.Logger}
}

// Run reads commands until quit, end of input or ctx is done.
func (c *console) Run(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.config.In)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	c.printf("Type 'help' for the list of commands.\n")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := c.execute(ctx, line); quit {
				return nil
			}
		}
	}
}

func (c *console) execute(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]

	switch cmd {
	case "quit", "exit":
		return true
	case "next":
		c.report(c.config.Show.Next())
	case "prev":
		c.report(c.config.Show.Prev())
	case "first":
		c.report(c.config.Show.First())
	case "last":
		c.report(c.config.Show.Last())
	case "goto":
		if len(args) != 1 {
			c.printf("Usage: goto <n>\n")
			return false
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			c.printf("Invalid slide number: %s\n", args[0])
			return false
		}
		c.report(c.config.Show.Goto(n))
	case "begin":
		// Begin blocks for the whole cache pass.
		go func() { c.report(c.config.Show.Begin()) }()
	case "end":
		c.report(c.config.Show.End())
	case "recache":
		go c.recache()
	case "status":
		c.status(ctx)
	case "clear":
		c.report(c.config.Cache.Clear())
	case "help":
		c.printf("%s\n", consoleHelp)
	default:
		c.logger.Debug("unknown console command", slog.String("command", cmd))
		c.printf("Unknown command: %s\n", cmd)
	}
	return false
}

func (c *console) recache() {
	result, err := c.config.Session.Recache()
	if err != nil {
		c.report(err)
		return
	}
	c.printf("Cached %d of %d slides (%d skipped, %d failed)\n",
		result.Exported, result.Total, result.Skipped, result.Failed)
}

func (c *console) status(ctx context.Context) {
	if c.config.Server != nil {
		for _, url := range c.config.Server.ListeningAddresses() {
			c.printf("Serving on %s\n", url)
		}
	}

	snap, err := c.config.Session.Snapshot(ctx)
	switch {
	case errors.Is(err, session.ErrNoActiveSlideShow):
		c.printf("No active slide show\n")
	case err != nil:
		c.report(err)
	default:
		c.printf("Current slide: %d of %d\n", snap.CurrentSlideNumber, snap.NumberOfSlides)
	}
	c.config.Cache.LogStats()
}

func (c *console) report(err error) {
	if err != nil {
		c.printf("Error: %v\n", err)
	}
}

func (c *console) printf(format string, args ...any) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	fmt.Fprintf(c.config.Out, format, args...)
}
