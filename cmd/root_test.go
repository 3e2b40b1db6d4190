package cmd

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/libsearch/cmd/search"
	"github.com/lepinkainen/libsearch/internal/cache"
	"github.com/lepinkainen/libsearch/internal/config"
	liberrors "github.com/lepinkainen/libsearch/internal/errors"
	"github.com/lepinkainen/libsearch/internal/library"
	"github.com/lepinkainen/libsearch/internal/testutil"
)

func resetCmdState(t *testing.T) {
	t.Helper()
	testutil.ResetConfig(t)
	config.SetDefaults()
	config.InitConfig()
}

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()

	originalArgs := os.Args
	os.Args = append([]string{"libsearch"}, args...)
	t.Cleanup(func() { os.Args = originalArgs })

	cli := &CLI{}
	ctx := kong.Parse(cli,
		kong.Name("libsearch"),
		kong.Description("Search many library catalogs at once through the Unitrad aggregator."),
		kong.UsageOnError(),
		kong.Exit(func(code int) {
			t.Fatalf("unexpected Kong exit %d", code)
		}),
	)

	return cli, ctx
}

// captureRuns replaces the search entry points and records what they got; the string is the ISBN or batch file.
func captureRuns(t *testing.T) (*search.Options, *string) {
	t.Helper()

	var gotOpts search.Options
	var gotArg string

	origSearch, origLookup, origBatch := runSearch, runLookup, runBatch
	runSearch = func(ctx context.Context, opts search.Options) error {
		gotOpts = opts
		return nil
	}
	runLookup = func(ctx context.Context, isbn string, opts search.Options) error {
		gotArg = isbn
		gotOpts = opts
		return nil
	}
	runBatch = func(ctx context.Context, path string, opts search.Options) error {
		gotArg = path
		gotOpts = opts
		return nil
	}
	t.Cleanup(func() { runSearch, runLookup, runBatch = origSearch, origLookup, origBatch })

	return &gotOpts, &gotArg
}

func TestFreeCommandJoinsTerms(t *testing.T) {
	resetCmdState(t)
	got, _ := captureRuns(t)

	_, ctx := parseCLI(t, "search", "free", "robot", "dreams", "--format", "json")
	require.NoError(t, ctx.Run())

	assert.Equal(t, library.FreeText("robot dreams"), got.Query)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Interactive)
}

func TestDetailCommandParsing(t *testing.T) {
	resetCmdState(t)
	got, _ := captureRuns(t)

	_, ctx := parseCLI(t, "search", "detail",
		"--title", "Go",
		"--author", "Pike",
		"--ndc", "007",
		"--year-start", "2010",
		"-i",
		"--timeout", "90s",
		"--no-cache")
	require.NoError(t, ctx.Run())

	assert.Equal(t, library.ModeDetail, got.Query.Mode)
	assert.Equal(t, library.Filters{Title: "Go", Author: "Pike", NDC: "007", YearStart: "2010"}, got.Query.Filters)
	assert.True(t, got.Interactive)
	assert.Equal(t, 90*time.Second, got.Timeout)
	assert.True(t, got.NoCache)
}

func TestDetailCommandRequiresAFilter(t *testing.T) {
	resetCmdState(t)
	captureRuns(t)

	_, ctx := parseCLI(t, "search", "detail")
	err := ctx.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one of")
}

func TestFreeCommandRequiresTerms(t *testing.T) {
	resetCmdState(t)
	captureRuns(t)

	_, ctx := parseCLI(t, "search", "free", "  ")
	err := ctx.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search terms are required")
}

func TestParamsCommand(t *testing.T) {
	resetCmdState(t)

	tests := []struct {
		name string
		raw  string
		want library.Query
		slot library.Slot
	}{
		{name: "free", raw: "?free=robot", want: library.FreeText("robot"), slot: library.SlotFree},
		{name: "detail", raw: "title=go&author=pike", want: library.Detail(library.Filters{Title: "go", Author: "pike"}), slot: library.SlotDetail},
		{name: "isbn wins", raw: "isbn=9784003101018&free=x", want: library.ISBN("9784003101018"), slot: library.SlotBook},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := captureRuns(t)
			_, ctx := parseCLI(t, "search", "params", tt.raw)
			require.NoError(t, ctx.Run())
			assert.True(t, tt.want.Equal(got.Query))
			assert.Equal(t, tt.slot, got.Slot)
		})
	}
}

func TestParamsCommandRejectsEmptyQuery(t *testing.T) {
	resetCmdState(t)
	captureRuns(t)

	_, ctx := parseCLI(t, "search", "params", "page=2")
	err := ctx.Run()
	var decodeErr *liberrors.DecodeError
	require.ErrorAs(t, err, &decodeErr)
}

func TestBookCommand(t *testing.T) {
	resetCmdState(t)
	got, isbn := captureRuns(t)

	_, ctx := parseCLI(t, "book", "9784003101018", "--json", "--json-output", "out/book.json", "--overwrite")
	require.NoError(t, ctx.Run())

	assert.Equal(t, "9784003101018", *isbn)
	assert.True(t, got.Output.WriteJSON)
	assert.Equal(t, "out/book.json", got.Output.JSONOutput)
	assert.True(t, got.Output.Overwrite)
}

func TestBatchCommand(t *testing.T) {
	resetCmdState(t)
	got, path := captureRuns(t)
	env := testutil.NewTestEnv(t)
	env.WriteFileString("queries.csv", "free\nrobot\n")

	_, ctx := parseCLI(t, "search", "batch", env.Path("queries.csv"), "--format", "yaml")
	require.NoError(t, ctx.Run())

	assert.Equal(t, env.Path("queries.csv"), *path)
	assert.Equal(t, "yaml", got.Format)
}

// captureBookmarkRuns replaces the bookmark entry points and records the
// subcommand and ISBN they were called with.
func captureBookmarkRuns(t *testing.T) (*search.Options, *[]string) {
	t.Helper()

	var gotOpts search.Options
	var calls []string

	origAdd, origRemove, origList := runBookmarkAdd, runBookmarkRemove, runBookmarkList
	runBookmarkAdd = func(ctx context.Context, isbn string) error {
		calls = append(calls, "add "+isbn)
		return nil
	}
	runBookmarkRemove = func(ctx context.Context, isbn string) error {
		calls = append(calls, "remove "+isbn)
		return nil
	}
	runBookmarkList = func(ctx context.Context, opts search.Options) error {
		calls = append(calls, "list")
		gotOpts = opts
		return nil
	}
	t.Cleanup(func() { runBookmarkAdd, runBookmarkRemove, runBookmarkList = origAdd, origRemove, origList })

	return &gotOpts, &calls
}

func TestBookmarkCommands(t *testing.T) {
	resetCmdState(t)
	got, calls := captureBookmarkRuns(t)

	_, ctx := parseCLI(t, "bookmark", "add", "9784003101018")
	require.NoError(t, ctx.Run())
	_, ctx = parseCLI(t, "bookmark", "remove", "4-10-109205-X")
	require.NoError(t, ctx.Run())
	_, ctx = parseCLI(t, "bookmark", "list", "-F", "json", "--markdown", "--no-cache")
	require.NoError(t, ctx.Run())

	assert.Equal(t, []string{"add 9784003101018", "remove 4-10-109205-X", "list"}, *calls)
	assert.Equal(t, "json", got.Format)
	assert.True(t, got.Output.WriteMarkdown)
	assert.True(t, got.NoCache)
}

func TestBookmarkListRejectsInteractive(t *testing.T) {
	resetCmdState(t)
	_, calls := captureBookmarkRuns(t)

	_, ctx := parseCLI(t, "bookmark", "list", "-i")
	err := ctx.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
	assert.Empty(t, *calls)
}

func TestBatchCommandRejectsInteractive(t *testing.T) {
	resetCmdState(t)
	captureRuns(t)
	env := testutil.NewTestEnv(t)
	env.WriteFileString("queries.csv", "free\nrobot\n")

	_, ctx := parseCLI(t, "search", "batch", env.Path("queries.csv"), "-i")
	err := ctx.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not supported")
}

func TestCLIDefaultFlags(t *testing.T) {
	resetCmdState(t)

	cli, _ := parseCLI(t, "search", "free", "robot")

	assert.False(t, cli.Verbose)
	assert.False(t, cli.Datasette)
	assert.Empty(t, cli.Region)
	assert.Empty(t, cli.CacheBackend)
	assert.Empty(t, cli.CacheDBFile)
	assert.Equal(t, "text", cli.Search.Free.Format)
	assert.Zero(t, cli.Search.Free.Timeout)
}

func TestCLIFlagsOverrideConfig(t *testing.T) {
	resetCmdState(t)

	cli, _ := parseCLI(t,
		"--verbose",
		"--region", "gk-other",
		"--datasette",
		"--datasette-db", "/custom/libsearch.db",
		"--cache-backend", "redis",
		"--redis-addr", "localhost:6379",
		"--cache-db-file", "/custom/cache.db",
		"--cache-ttl", "24h",
		"--bookmarks-db", "/custom/bookmarks.db",
		"search", "free", "robot")

	updateGlobalConfig(cli)

	assert.True(t, cli.Verbose)
	assert.Equal(t, "gk-other", config.AggregatorRegion)
	assert.True(t, viper.GetBool("datasette.enabled"))
	assert.Equal(t, "/custom/libsearch.db", viper.GetString("datasette.dbfile"))
	assert.Equal(t, "redis", viper.GetString("cache.backend"))
	assert.Equal(t, "localhost:6379", viper.GetString("cache.redis.addr"))
	assert.Equal(t, "/custom/cache.db", viper.GetString("cache.dbfile"))
	assert.Equal(t, 24*time.Hour, config.CacheTTL)
	assert.Equal(t, "/custom/bookmarks.db", viper.GetString("bookmarks.dbfile"))
}

func TestUpdateGlobalConfigKeepsConfigFileValues(t *testing.T) {
	resetCmdState(t)
	viper.Set("aggregator.region", "from-file")
	viper.Set("cache.dbfile", "/file/cache.db")

	updateGlobalConfig(&CLI{})

	assert.Equal(t, "from-file", config.AggregatorRegion)
	assert.Equal(t, "/file/cache.db", viper.GetString("cache.dbfile"))
	assert.False(t, viper.GetBool("datasette.enabled"))
}

func TestInitConfigWritesDefaultConfigFile(t *testing.T) {
	resetCmdState(t)
	env := testutil.NewTestEnv(t)
	env.MkdirAll("work")
	env.Chdir("work")

	initConfig()

	env.RequireFileExists("work/config.yaml")
	env.AssertFileContains("work/config.yaml", "gk-2004103-auf08")
	assert.Equal(t, "https://unitrad.calil.jp/v1", config.AggregatorBaseURL)
	assert.Equal(t, 500*time.Millisecond, config.PollInterval)
	assert.Equal(t, "./json/", viper.GetString("jsonoutputdir"))
}

func TestInitConfigReadsEnvironment(t *testing.T) {
	resetCmdState(t)
	env := testutil.NewTestEnv(t)
	env.WriteFileString("work/config.yaml", "aggregator:\n  region: from-file\n")
	env.Chdir("work")
	t.Setenv("LIBSEARCH_SESSION_CEILING", "2m")

	initConfig()

	assert.Equal(t, "from-file", config.AggregatorRegion)
	assert.Equal(t, 2*time.Minute, config.SessionCeiling)
}

func TestInitLogging(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		require.NotPanics(t, func() {
			initLogging(verbose)
		})
	}
}

func TestCommandStructure(t *testing.T) {
	cli := &CLI{}

	assert.IsType(t, FreeCmd{}, cli.Search.Free)
	assert.IsType(t, DetailCmd{}, cli.Search.Detail)
	assert.IsType(t, ParamsCmd{}, cli.Search.Params)
	assert.IsType(t, BatchCmd{}, cli.Search.Batch)
	assert.IsType(t, cache.InvalidateCacheCmd{}, cli.Cache.Invalidate)
	assert.IsType(t, cache.PruneCacheCmd{}, cli.Cache.Prune)
	assert.IsType(t, BookmarkAddCmd{}, cli.Bookmark.Add)
	assert.IsType(t, BookmarkRemoveCmd{}, cli.Bookmark.Remove)
	assert.IsType(t, BookmarkListCmd{}, cli.Bookmark.List)
}
