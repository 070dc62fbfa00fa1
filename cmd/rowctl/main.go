package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/alecthomas/kong"
	"github.com/dgallion1/treerows/internal/rowserver"
	"github.com/dgallion1/treerows/internal/rowtree"
	"github.com/dgallion1/treerows/internal/source"
)

// Source selects where the tree comes from. Exactly one of File or URL is used.
type Source struct {
	File    string        `short:"f" type:"existingfile" help:"Tree fixture (.json, .yaml or .yml)." xor:"source"`
	URL     string        `short:"u" help:"HTTP endpoint returning a JSON array of records." xor:"source"`
	Timeout time.Duration `default:"30s" help:"Fetch timeout for --url."`
}

func (s Source) load(ctx context.Context) (*rowtree.Tree, error) {
	switch {
	case s.File != "":
		return source.NewFileLoader(nil).Load(s.File)
	case s.URL != "":
		c := source.NewClient(s.URL, s.Timeout, 0, slog.Default())
		defer c.Close()
		return c.Fetch(ctx)
	default:
		return nil, errors.New("one of --file or --url is required")
	}
}

type CLI struct {
	Debug bool     `help:"Enable debug logging."`
	Rows  RowsCmd  `cmd:"" help:"Print the rows under a group path as JSON."`
	Stats StatsCmd `cmd:"" help:"Print the size and depth of a tree."`
}

// RowsCmd resolves a group path the way the HTTP endpoint does.
type RowsCmd struct {
	Source `embed:""`

	Path  []string      `short:"p" sep:"none" help:"Group key, repeat to descend further."`
	Start *int          `help:"First row of the window."`
	End   *int          `help:"Row after the last row of the window."`
	Delay time.Duration `default:"0s" help:"Simulated latency before printing."`
}

func (cmd *RowsCmd) Run(out io.Writer) error {
	ctx := context.Background()
	tree, err := cmd.load(ctx)
	if err != nil {
		return err
	}
	srv, err := rowserver.NewLoaded(tree, rowserver.WithDelay(cmd.Delay), rowserver.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	resp, err := srv.GetRows(ctx, rowserver.Request{
		GroupKeys: rowtree.GroupPath(cmd.Path),
		StartRow:  cmd.Start,
		EndRow:    cmd.End,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

type StatsCmd struct {
	Source `embed:""`
}

func (cmd *StatsCmd) Run(out io.Writer) error {
	tree, err := cmd.load(context.Background())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "roots: %d\nnodes: %d\ndepth: %d\n", tree.Len(), tree.Count(), tree.Depth())
	return err
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("rowctl"),
		kong.Description("Query a record tree the way the treerows server does."),
		kong.UsageOnError(),
		kong.BindTo(os.Stdout, (*io.Writer)(nil)),
	)
	setupLogger(cli.Debug)
	ctx.FatalIfErrorf(ctx.Run())
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
