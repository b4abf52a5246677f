// Command discover is a terminal client for a running gateway. It pages
// through listings the way the web client scrolls and keeps favorites and
// custom links in a local file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"freestream-gateway/internal/browse"
	"freestream-gateway/internal/catalog"
	"freestream-gateway/internal/favorites"
	"freestream-gateway/internal/tmdb"
	"freestream-gateway/pkg/logging/logging"
)

const usage = `usage: discover [flags] <command> [args]

commands:
  list                    page through listings (see -region, -types, -query)
  providers               show the provider directory
  sources <title-id>      show where a title streams for free
  fav <id> <type> <year> <title...>
                          toggle a favorite
  favorites               list favorites and custom links
  link add <name> <url>   save a custom link
  link rm <id>            remove a custom link
`

type options struct {
	gateway   string
	dataFile  string
	region    string
	types     string
	genre     int
	query     string
	pages     int
	timeout   time.Duration
	tmdbToken string

	local browse.LocalFilter
}

func main() {
	var opts options
	fs := flag.NewFlagSet("discover", flag.ExitOnError)
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage, "\nflags:\n"); fs.PrintDefaults() }
	fs.StringVar(&opts.gateway, "gateway", envOr("FREESTREAM_GATEWAY_URL", "http://localhost:8080"), "gateway base URL")
	fs.StringVar(&opts.dataFile, "data", defaultDataFile(), "favorites database file")
	fs.StringVar(&opts.region, "region", catalog.DefaultRegion, "region code")
	fs.StringVar(&opts.types, "types", catalog.DefaultTypes, "comma separated title types")
	fs.IntVar(&opts.genre, "genre", 0, "genre id (ignored with -query)")
	fs.StringVar(&opts.query, "query", "", "search text")
	fs.IntVar(&opts.pages, "pages", 1, "number of pages to load")
	fs.DurationVar(&opts.timeout, "timeout", 20*time.Second, "gateway request timeout")
	fs.StringVar(&opts.tmdbToken, "tmdb-token", os.Getenv("FREESTREAM_TMDB_READ_TOKEN"), "TMDB read token for poster backfill")
	fs.StringVar(&opts.local.Text, "filter", "", "fuzzy filter over loaded titles")
	fs.StringVar(&opts.local.Type, "only", "", "keep only this type (movie, tv_series)")
	fs.IntVar(&opts.local.YearFrom, "year-from", 0, "minimum release year")
	fs.IntVar(&opts.local.YearTo, "year-to", 0, "maximum release year")
	fs.Float64Var(&opts.local.MinRating, "min-rating", 0, "minimum vote average")
	_ = fs.Parse(os.Args[1:])

	logger := logging.NewLogger()
	defer logger.Sync()

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, opts, fs.Args(), os.Stdout); err != nil {
		logger.Error("discover failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, opts options, args []string, out io.Writer) error {
	client := browse.NewGatewayClient(opts.gateway, opts.timeout, logger)

	switch args[0] {
	case "list":
		favs, err := favorites.Open(opts.dataFile)
		if err != nil {
			return err
		}
		defer favs.Close()
		return runList(ctx, logger, client, favs, opts, out)

	case "providers":
		providers, err := client.Providers(ctx)
		if err != nil {
			return err
		}
		for _, p := range providers {
			fmt.Fprintln(out, p.Name)
		}
		return nil

	case "sources":
		if len(args) < 2 {
			return errors.New("sources: title id required")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("sources: bad title id: %w", err)
		}
		sources, err := client.Sources(ctx, id, opts.region)
		if err != nil {
			return err
		}
		if len(sources) == 0 {
			fmt.Fprintln(out, "no free sources in", opts.region)
		}
		for _, s := range sources {
			fmt.Fprintf(out, "%s\t%s\n", s.Name, s.WebURL)
		}
		return nil

	case "fav", "favorites", "link":
		favs, err := favorites.Open(opts.dataFile)
		if err != nil {
			return err
		}
		defer favs.Close()
		return runFavorites(favs, args, out)

	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runList(ctx context.Context, logger *zap.Logger, client *browse.GatewayClient, favs *favorites.Store, opts options, out io.Writer) error {
	var enricher browse.Enricher
	if opts.tmdbToken != "" {
		tc, err := tmdb.NewClient(tmdb.Config{ReadToken: opts.tmdbToken}, logger)
		if err != nil {
			return err
		}
		enricher = tc
	}

	session := browse.NewSession(client, enricher, browse.Options{Logger: logger})
	defer session.Close()

	session.Reset(ctx, browse.Filter{
		Region: opts.region,
		Types:  strings.Split(opts.types, ","),
		Genre:  opts.genre,
		Query:  opts.query,
	})
	for i := 1; i < opts.pages; i++ {
		if !session.LoadMore(ctx) {
			break
		}
	}
	session.WaitBackfill()

	v := session.View()
	if v.Message != "" {
		fmt.Fprintln(out, v.Message)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, t := range opts.local.Apply(v.Titles) {
		mark := " "
		if favs.Contains(t.ID) {
			mark = "*"
		}
		year := ""
		if t.Year > 0 {
			year = strconv.Itoa(int(t.Year))
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n", mark, t.ID, t.Title, year, t.Type, tmdb.PosterURL(t.PosterPath))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d titles, page %d, more: %v\n", len(v.Titles), v.Page, v.HasMore)
	return nil
}

func runFavorites(favs *favorites.Store, args []string, out io.Writer) error {
	switch args[0] {
	case "fav":
		if len(args) < 5 {
			return errors.New("fav: want <id> <type> <year> <title>")
		}
		id, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("fav: bad id: %w", err)
		}
		year, err := strconv.Atoi(args[3])
		if err != nil {
			return fmt.Errorf("fav: bad year: %w", err)
		}
		on, err := favs.Toggle(catalog.Title{
			ID:    id,
			Type:  args[2],
			Year:  catalog.Year(year),
			Title: strings.Join(args[4:], " "),
		})
		if err != nil {
			return err
		}
		if on {
			fmt.Fprintln(out, "added", id)
		} else {
			fmt.Fprintln(out, "removed", id)
		}
		return nil

	case "favorites":
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, f := range favs.List() {
			fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", f.ID, f.Title, f.Year, f.Type)
		}
		for _, l := range favs.Links() {
			fmt.Fprintf(tw, "link\t%s\t%s\t%s\n", l.Name, l.URL, l.ID)
		}
		return tw.Flush()

	case "link":
		if len(args) >= 4 && args[1] == "add" {
			l, err := favs.AddLink(args[2], args[3])
			if err != nil {
				return err
			}
			fmt.Fprintln(out, l.ID)
			return nil
		}
		if len(args) >= 3 && args[1] == "rm" {
			return favs.RemoveLink(args[2])
		}
		return errors.New("link: want add <name> <url> or rm <id>")
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "freestream", "favorites.db")
}
