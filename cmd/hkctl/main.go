// hkctl is a ground console for the housekeeping service.
//
// On a terminal it runs an interactive prompt with completion. Otherwise it
// reads one command per line from stdin, which makes it scriptable:
//
//	echo "get-hk 5" | hkctl -addr sat:9170
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/c-bata/go-prompt"
	"golang.org/x/term"

	"github.com/arrooney/ex2-services/internal/client"
	"github.com/arrooney/ex2-services/internal/logging"
	"github.com/arrooney/ex2-services/internal/storage/export"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg := client.DefaultConfig()
	var (
		command     string
		timeout     time.Duration
		compression string
		verbose     bool
		version     bool
	)
	flag.StringVar(&cfg.Addr, "addr", cfg.Addr, "service address")
	flag.BoolVar(&cfg.TLS, "tls", false, "connect with TLS")
	flag.BoolVar(&cfg.TLSSkipVerify, "tls-skip-verify", false, "skip certificate verification")
	flag.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "end a record stream after this much silence")
	flag.DurationVar(&timeout, "timeout", 30*time.Second, "per-command timeout")
	flag.StringVar(&command, "c", "", "run one command and exit")
	flag.StringVar(&compression, "compression", "zstd", "export codec: none, snappy, gzip, zstd")
	flag.BoolVar(&verbose, "v", false, "print every field of each record")
	flag.BoolVar(&version, "version", false, "print version and exit")
	flag.Parse()

	if version {
		fmt.Println("hkctl", Version)
		return
	}

	logging.Init(slog.LevelWarn, false)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "hkctl: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	sh := &shell{
		remote:  c,
		out:     os.Stdout,
		timeout: timeout,
		verbose: verbose,
		export:  export.Options{Compression: export.ParseCompressionType(compression)},
	}

	switch {
	case command != "":
		if err := sh.exec(ctx, command); err != nil && !errors.Is(err, errExit) {
			fmt.Fprintf(os.Stderr, "hkctl: %s\n", statusText(err))
			os.Exit(1)
		}
	case term.IsTerminal(int(os.Stdin.Fd())):
		interactive(ctx, sh, c.Addr())
	default:
		if failed := script(ctx, sh, os.Stdin, os.Stderr); failed > 0 {
			os.Exit(1)
		}
	}
}

func interactive(ctx context.Context, sh *shell, addr string) {
	fmt.Printf("hkctl %s connected to %s, type help for commands\n", Version, addr)

	quit := false
	executor := func(line string) {
		if err := sh.exec(ctx, line); err != nil {
			if errors.Is(err, errExit) {
				quit = true
				return
			}
			fmt.Fprintf(sh.out, "error: %s\n", statusText(err))
		}
	}

	p := prompt.New(executor, sh.complete,
		prompt.OptionPrefix("hk> "),
		prompt.OptionTitle("hkctl "+addr),
		prompt.OptionSetExitCheckerOnInput(func(string, bool) bool { return quit }),
	)
	p.Run()
}

// script runs commands from r and returns how many failed.
func script(ctx context.Context, sh *shell, r io.Reader, errOut io.Writer) int {
	failed := 0
	sc := bufio.NewScanner(r)
	for line := 1; sc.Scan(); line++ {
		if ctx.Err() != nil {
			return failed + 1
		}
		err := sh.exec(ctx, sc.Text())
		if errors.Is(err, errExit) {
			break
		}
		if err != nil {
			failed++
			fmt.Fprintf(errOut, "line %d: %s\n", line, statusText(err))
		}
	}
	return failed
}
