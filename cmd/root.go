package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/lepinkainen/libsearch/cmd/search"
	"github.com/lepinkainen/libsearch/internal/cache"
	"github.com/lepinkainen/libsearch/internal/cmdutil"
	"github.com/lepinkainen/libsearch/internal/config"
	"github.com/lepinkainen/libsearch/internal/library"
)

var (
	runSearch = search.Run
	runLookup = search.Lookup
	runBatch  = search.RunBatch

	runBookmarkAdd    = search.AddBookmark
	runBookmarkRemove = search.RemoveBookmark
	runBookmarkList   = search.ListBookmarks
)

// CLI represents the complete command structure for the libsearch application
type CLI struct {
	// Global flags
	Verbose bool   `short:"v" help:"Enable debug logging"`
	Region  string `help:"Catalog region to search (overrides aggregator.region)"`

	// Datasette flags
	Datasette   bool   `help:"Export completed searches to Datasette"`
	DatasetteDB string `help:"Path to SQLite database file for Datasette export"`

	// Cache flags
	CacheBackend string `help:"Query cache backend (sqlite, redis or memory)"`
	CacheDBFile  string `help:"Path to cache SQLite database file"`
	CacheTTL     string `help:"Cache time-to-live duration (e.g., 720h for 30 days)"`
	RedisAddr    string `help:"Redis address for the redis cache backend"`

	BookmarksDB string `help:"Path to bookmark SQLite database file"`

	Search   SearchCmd   `cmd:"" help:"Search library catalogs"`
	Book     BookCmd     `cmd:"" help:"Look up which libraries hold an ISBN"`
	Bookmark BookmarkCmd `cmd:"" help:"Manage bookmarked books"`
	Cache    CacheCmd    `cmd:"" help:"Manage the query cache"`
}

// OutputFlags are shared by every command that prints search results.
type OutputFlags struct {
	Format         string        `short:"F" help:"Output format" enum:"text,json,yaml,markdown" default:"text"`
	JSON           bool          `help:"Also write results to a JSON file"`
	JSONOutput     string        `help:"Path to JSON output file (defaults to json/<slot>.json)"`
	Markdown       bool          `help:"Also write results to a markdown file"`
	MarkdownOutput string        `help:"Path to markdown output file (defaults to markdown/<slot>.md)"`
	Overwrite      bool          `help:"Overwrite existing output files"`
	Interactive    bool          `short:"i" help:"Watch results arrive in an interactive viewer"`
	Timeout        time.Duration `help:"Give up on a search after this long (0 waits until the aggregator finishes)"`
	NoCache        bool          `help:"Bypass the query cache"`
}

func (o OutputFlags) options() search.Options {
	return search.Options{
		Format:      o.Format,
		Interactive: o.Interactive,
		Timeout:     o.Timeout,
		NoCache:     o.NoCache,
		Output: cmdutil.OutputConfig{
			WriteJSON:      o.JSON,
			JSONOutput:     o.JSONOutput,
			WriteMarkdown:  o.Markdown,
			MarkdownOutput: o.MarkdownOutput,
			Overwrite:      o.Overwrite,
		},
	}
}

// SearchCmd represents the search command and its subcommands
type SearchCmd struct {
	Free   FreeCmd   `cmd:"" help:"Free-text search across all catalogs"`
	Detail DetailCmd `cmd:"" help:"Search by title, author and other fields"`
	Params ParamsCmd `cmd:"" help:"Search using an address-bar query string such as 'free=robot'"`
	Batch  BatchCmd  `cmd:"" help:"Run every query in a CSV file whose columns are query parameters"`
}

// FreeCmd represents the free-text search command
type FreeCmd struct {
	OutputFlags `embed:""`

	Terms []string `arg:"" help:"Search terms"`
}

// DetailCmd represents the structured search command
type DetailCmd struct {
	OutputFlags `embed:""`

	Title     string `help:"Title contains"`
	Author    string `help:"Author contains"`
	Publisher string `help:"Publisher contains"`
	NDC       string `name:"ndc" help:"Nippon Decimal Classification prefix"`
	YearStart string `help:"Published in or after this year"`
	YearEnd   string `help:"Published in or before this year"`
}

// ParamsCmd represents the query-string search command
type ParamsCmd struct {
	OutputFlags `embed:""`

	Query string `arg:"" help:"Query string, e.g. 'title=go&author=pike'"`
}

// BatchCmd represents the batch search command
type BatchCmd struct {
	OutputFlags `embed:""`

	File string `arg:"" type:"existingfile" help:"CSV file with a header row of query parameters (free, isbn, title, author, ...)"`
}

// BookCmd represents the ISBN lookup command
type BookCmd struct {
	OutputFlags `embed:""`

	ISBN string `arg:"" name:"isbn" help:"ISBN to look up"`
}

// BookmarkCmd represents the bookmark command and its subcommands
type BookmarkCmd struct {
	Add    BookmarkAddCmd    `cmd:"" help:"Bookmark an ISBN"`
	Remove BookmarkRemoveCmd `cmd:"" help:"Remove a bookmarked ISBN"`
	List   BookmarkListCmd   `cmd:"" help:"Look up every bookmarked ISBN"`
}

// BookmarkAddCmd represents the bookmark add command
type BookmarkAddCmd struct {
	ISBN string `arg:"" name:"isbn" help:"ISBN to bookmark"`
}

// BookmarkRemoveCmd represents the bookmark remove command
type BookmarkRemoveCmd struct {
	ISBN string `arg:"" name:"isbn" help:"ISBN to remove"`
}

// BookmarkListCmd represents the bookmark list command
type BookmarkListCmd struct {
	OutputFlags `embed:""`
}

// CacheCmd represents the cache command and its subcommands
type CacheCmd struct {
	Invalidate cache.InvalidateCacheCmd `cmd:"" help:"Remove every cached search"`
	Prune      cache.PruneCacheCmd      `cmd:"" help:"Remove expired cache entries"`
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(false)
	initConfig()

	// Create CLI instance
	var cli CLI

	// Parse command line with Kong
	ctx := kong.Parse(&cli,
		kong.Name("libsearch"),
		kong.Description("Search many library catalogs at once through the Unitrad aggregator."),
		kong.UsageOnError(),
	)

	initLogging(cli.Verbose)

	// Update global config based on parsed flags
	updateGlobalConfig(&cli)

	// Execute the selected command
	if err := ctx.Run(); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func initConfig() {
	config.SetDefaults()
	viper.SetDefault("markdownoutputdir", "./markdown/")
	viper.SetDefault("jsonoutputdir", "./json/")

	// Enable environment variable support, e.g. LIBSEARCH_AGGREGATOR_REGION
	viper.SetEnvPrefix("libsearch")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			slog.Info("Config file not found, writing default config file")
			if err := viper.SafeWriteConfig(); err != nil {
				slog.Warn("Error writing config file", "error", err)
			}
		} else {
			slog.Error("Fatal error config file", "error", err)
			os.Exit(1)
		}
	}

	// Initialize global config
	config.InitConfig()
}

// updateGlobalConfig applies flags on top of the config file. Only flags
// that were given override it.
func updateGlobalConfig(cli *CLI) {
	if cli.Region != "" {
		viper.Set("aggregator.region", cli.Region)
	}

	// Update datasette config
	if cli.Datasette {
		viper.Set("datasette.enabled", true)
	}
	if cli.DatasetteDB != "" {
		viper.Set("datasette.dbfile", cli.DatasetteDB)
	}

	// Update cache config
	if cli.CacheBackend != "" {
		viper.Set("cache.backend", cli.CacheBackend)
	}
	if cli.CacheDBFile != "" {
		viper.Set("cache.dbfile", cli.CacheDBFile)
	}
	if cli.CacheTTL != "" {
		viper.Set("cache.ttl", cli.CacheTTL)
	}
	if cli.RedisAddr != "" {
		viper.Set("cache.redis.addr", cli.RedisAddr)
	}

	if cli.BookmarksDB != "" {
		viper.Set("bookmarks.dbfile", cli.BookmarksDB)
	}

	config.InitConfig()
}

// signalContext is cancelled on SIGINT or SIGTERM so a running search
// ends as cancelled and its partial results are still written.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// Run methods for each command

func (f *FreeCmd) Run() error {
	term := strings.TrimSpace(strings.Join(f.Terms, " "))
	if term == "" {
		return fmt.Errorf("search terms are required")
	}

	ctx, stop := signalContext()
	defer stop()

	opts := f.options()
	opts.Query = library.FreeText(term)
	return runSearch(ctx, opts)
}

func (d *DetailCmd) Run() error {
	q := library.Detail(library.Filters{
		Title:     d.Title,
		Author:    d.Author,
		Publisher: d.Publisher,
		NDC:       d.NDC,
		YearStart: d.YearStart,
		YearEnd:   d.YearEnd,
	})
	if q.Filters.IsZero() {
		return fmt.Errorf("at least one of --title, --author, --publisher, --ndc, --year-start or --year-end is required")
	}

	ctx, stop := signalContext()
	defer stop()

	opts := d.options()
	opts.Query = q
	return runSearch(ctx, opts)
}

func (p *ParamsCmd) Run() error {
	q, err := library.ParseQueryString(p.Query)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	opts := p.options()
	opts.Query = q
	opts.Slot = library.SlotFor(q.Mode)
	return runSearch(ctx, opts)
}

func (b *BatchCmd) Run() error {
	if b.Interactive {
		return fmt.Errorf("--interactive is not supported for batch searches")
	}

	ctx, stop := signalContext()
	defer stop()

	return runBatch(ctx, b.File, b.options())
}

func (b *BookCmd) Run() error {
	ctx, stop := signalContext()
	defer stop()

	return runLookup(ctx, b.ISBN, b.options())
}

func (b *BookmarkAddCmd) Run() error {
	return runBookmarkAdd(context.Background(), b.ISBN)
}

func (b *BookmarkRemoveCmd) Run() error {
	return runBookmarkRemove(context.Background(), b.ISBN)
}

func (b *BookmarkListCmd) Run() error {
	if b.Interactive {
		return fmt.Errorf("--interactive is not supported for bookmark lists")
	}

	ctx, stop := signalContext()
	defer stop()

	return runBookmarkList(ctx, b.options())
}

func initLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	// Results go to stdout, so logs go to stderr
	handler := humanlog.NewHandler(os.Stderr, &humanlog.Options{
		Level: level,
	})

	// Set the default logger
	slog.SetDefault(slog.New(handler))
}
