package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/c-bata/go-prompt"

	"github.com/arrooney/ex2-services/internal/client"
	"github.com/arrooney/ex2-services/internal/storage/export"
	"github.com/arrooney/ex2-services/internal/storage/record"
	"github.com/arrooney/ex2-services/internal/wire"
)

var errExit = errors.New("exit")

// remote is the part of the client the shell drives.
type remote interface {
	GetMaxFiles(ctx context.Context) (uint16, error)
	SetMaxFiles(ctx context.Context, n uint16) error
	Records(ctx context.Context, q wire.HKRequest) ([]record.Record, error)
}

type shell struct {
	remote  remote
	out     io.Writer
	timeout time.Duration
	verbose bool
	export  export.Options
}

var commands = []prompt.Suggest{
	{Text: "get-max-files", Description: "show the archive capacity"},
	{Text: "set-max-files", Description: "resize the archive: set-max-files N"},
	{Text: "get-hk", Description: "page records: get-hk [LIMIT] [before-id=N] [before-time=T]"},
	{Text: "export", Description: "fetch records into Parquet: export PATH [LIMIT]"},
	{Text: "verbose", Description: "toggle printing every field"},
	{Text: "help", Description: "list commands"},
	{Text: "exit", Description: "leave the console"},
}

func (s *shell) complete(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commands, d.GetWordBeforeCursor(), true)
}

// exec runs one command line. It returns errExit when the user asks to leave.
func (s *shell) exec(ctx context.Context, line string) error {
	args := strings.Fields(line)
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	switch args[0] {
	case "exit", "quit":
		return errExit

	case "help":
		tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
		for _, c := range commands {
			fmt.Fprintf(tw, "  %s\t%s\n", c.Text, c.Description)
		}
		return tw.Flush()

	case "verbose":
		s.verbose = !s.verbose
		fmt.Fprintf(s.out, "verbose %v\n", s.verbose)
		return nil

	case "get-max-files":
		n, err := s.remote.GetMaxFiles(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.out, "max files: %d\n", n)
		return nil

	case "set-max-files":
		if len(args) != 2 {
			return fmt.Errorf("usage: set-max-files N")
		}
		n, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return fmt.Errorf("bad slot count %q", args[1])
		}
		if err := s.remote.SetMaxFiles(ctx, uint16(n)); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "max files set to %d\n", n)
		return nil

	case "get-hk":
		q, err := parseHKRequest(args[1:])
		if err != nil {
			return err
		}
		recs, err := s.remote.Records(ctx, q)
		s.printRecords(recs)
		return err

	case "export":
		if len(args) < 2 || len(args) > 3 {
			return fmt.Errorf("usage: export PATH [LIMIT]")
		}
		q, err := parseHKRequest(args[2:])
		if err != nil {
			return err
		}
		recs, err := s.remote.Records(ctx, q)
		if err != nil && len(recs) == 0 {
			return err
		}
		n, werr := export.WriteFile(ctx, export.NewRecords(recs), args[1], s.export)
		if werr != nil {
			return werr
		}
		fmt.Fprintf(s.out, "wrote %d records, %d rows to %s\n", len(recs), n, args[1])
		return err

	default:
		return fmt.Errorf("unknown command %q, try help", args[0])
	}
}

// parseHKRequest reads "[LIMIT] [before-id=N] [before-time=T]". The limit
// defaults to 1.
func parseHKRequest(args []string) (wire.HKRequest, error) {
	q := wire.HKRequest{Limit: 1}
	for _, a := range args {
		key, val, ok := strings.Cut(a, "=")
		if !ok {
			n, err := strconv.ParseUint(a, 10, 16)
			if err != nil {
				return q, fmt.Errorf("bad limit %q", a)
			}
			q.Limit = uint16(n)
			continue
		}
		switch key {
		case "before-id":
			n, err := strconv.ParseUint(val, 10, 16)
			if err != nil {
				return q, fmt.Errorf("bad slot id %q", val)
			}
			q.BeforeID = uint16(n)
		case "before-time":
			n, err := strconv.ParseUint(val, 10, 32)
			if err != nil {
				return q, fmt.Errorf("bad timestamp %q", val)
			}
			q.BeforeTime = uint32(n)
		default:
			return q, fmt.Errorf("unknown option %q", key)
		}
	}
	return q, nil
}

func (s *shell) printRecords(recs []record.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(s.out, "no records")
		return
	}
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tTIMESTAMP\tUTC")
	for i := range recs {
		h := recs[i].Header
		fmt.Fprintf(tw, "%d\t%d\t%s\n", h.SlotID, h.Timestamp,
			time.Unix(int64(h.Timestamp), 0).UTC().Format(time.RFC3339))
		if s.verbose {
			for _, f := range record.Fields(&recs[i]) {
				if f.Subsystem == "header" {
					continue
				}
				fmt.Fprintf(tw, "\t%s.%s\t%g\n", f.Subsystem, f.Name, f.Value)
			}
		}
	}
	tw.Flush()
}

// statusText renders command errors for the console.
func statusText(err error) string {
	var se *client.StatusError
	if errors.As(err, &se) {
		return fmt.Sprintf("rejected: %s", se)
	}
	return err.Error()
}
