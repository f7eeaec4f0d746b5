package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/nao1215/urlvet/internal/analyzer"
	"github.com/nao1215/urlvet/internal/config"
	"github.com/nao1215/urlvet/internal/database"
	"github.com/nao1215/urlvet/internal/fetch"
	urlvetlog "github.com/nao1215/urlvet/internal/log"
	"github.com/nao1215/urlvet/internal/model"
	"github.com/nao1215/urlvet/internal/pipeline"
	"github.com/nao1215/urlvet/internal/report"
	"github.com/nao1215/urlvet/internal/tor"
)

// exitFailUnder is the exit status when a score is below --fail-under.
const exitFailUnder = 2

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze [url...]",
		Short: "Analyze URLs for signs of phishing",
		Long: `Analyze scores each URL between 0 and 100 and lists what lowered the score.

The offline phase inspects the URL text. The online phase fetches the page
once, without following redirects, and inspects the response. Redirect
targets and URLs embedded in the query string are analysed as well.

Examples:
  # Analyze a single URL
  urlvet analyze https://example.com/login

  # Analyze every URL of a file, one per line
  urlvet analyze --list urls.txt

  # Inspect the URL text only, without any network access
  urlvet analyze --offline https://paypa1-secure.example.top/

  # Fetch through Tor and write a Markdown report
  urlvet analyze --tor --markdown -o report.md https://example.com/

  # Fail a CI job when a URL scores below 80
  urlvet analyze --fail-under 80 https://example.com/

Configuration file (.urlvet) example:
  sites:
    intranet.example.com:
      cookie: "session_id=abc123"
  vocabulary:
    brands: ["examplebank"]
  rules:
    header.missing_hsts:
      severity: info
      penalty: 0`,
		Args: cobra.ArbitraryArgs,
		RunE: runAnalyzeCmd,
	}

	// Input flags
	cmd.Flags().StringP("list", "l", "",
		"Read URLs from a file, one per line ('#' starts a comment)")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .urlvet in current or home directory)")

	// Network flags
	cmd.Flags().Bool("offline", false,
		"Run the offline phase only; no request leaves the machine")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of each fetch")
	cmd.Flags().StringP("proxy", "p", "",
		"Fetch through a SOCKS5 proxy (e.g., 127.0.0.1:9050)")
	cmd.Flags().Bool("tor", false,
		"Fetch through an embedded Tor daemon")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")
	cmd.Flags().Float64("rate", config.DefaultRateLimit,
		"Maximum fetches per second across all URLs (0 disables the limit)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent,
		"Default User-Agent header")
	cmd.Flags().Int64("max-body-size", config.DefaultMaxBodySize,
		"Maximum response body size in bytes")

	// Cache flags
	cmd.Flags().Bool("cache", false,
		"Reuse fetched responses from the local cache")
	cmd.Flags().Duration("cache-ttl", config.DefaultCacheTTL,
		"Maximum age of a cached response")
	cmd.Flags().String("cache-dir", config.XDGCacheDir(),
		"Directory of the response cache")

	// Batch flags
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency,
		"Number of URLs analysed concurrently")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Int("fail-under", config.DefaultFailUnder,
		"Exit with status 2 when any score is below this value (0 disables)")

	return cmd
}

// runAnalyzeCmd executes the analyze command.
func runAnalyzeCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := urlvetlog.NewSecureLogger(cmd.ErrOrStderr(), cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reports, runErr := runAnalyze(ctx, cfg, logger)
	if len(reports) == 0 && runErr != nil {
		return runErr
	}

	if err := outputReports(cmd.OutOrStdout(), cfg, reports); err != nil {
		return err
	}
	if runErr != nil {
		return runErr
	}
	return checkFailUnder(cfg.FailUnder, reports)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.Verbose = getVerboseFlag(cmd)

	var err error
	flags := cmd.Flags()

	if cfg.Offline, err = flags.GetBool("offline"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}
	if cfg.RateLimit, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
		return nil, err
	}
	if cfg.MaxBodySize, err = flags.GetInt64("max-body-size"); err != nil {
		return nil, err
	}
	if cfg.Cache, err = flags.GetBool("cache"); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = flags.GetDuration("cache-ttl"); err != nil {
		return nil, err
	}
	if cfg.CacheDir, err = flags.GetString("cache-dir"); err != nil {
		return nil, err
	}
	if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	if cfg.FailUnder, err = flags.GetInt("fail-under"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}

	// An explicitly named config file must exist; the implicit lookup may
	// find nothing.
	if configPath := config.FindConfigFile(cfg.ConfigFilePath); configPath != "" {
		cfg.File, err = config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	listPath, err := flags.GetString("list")
	if err != nil {
		return nil, err
	}
	cfg.Targets = append(cfg.Targets, args...)
	if listPath != "" {
		listed, err := readTargetList(listPath)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, listed...)
	}

	return cfg, nil
}

// readTargetList reads one URL per line. Blank lines and lines starting
// with '#' are skipped.
func readTargetList(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // User-provided list path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to open URL list: %w", err)
	}
	defer f.Close()

	var targets []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URL list %s: %w", path, err)
	}
	return targets, nil
}

// runAnalyze builds the pipeline for cfg and analyses every target.
func runAnalyze(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]*model.Report, error) {
	rules := model.NewRuleBook()
	if cfg.File != nil {
		var err error
		if rules, err = cfg.File.RuleBook(); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	}

	suite := analyzer.NewSuite(
		analyzer.WithRules(rules),
		analyzer.WithVocabulary(cfg.Vocabulary()),
		analyzer.WithLogger(logger),
	)

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithSuite(suite),
	}
	if cfg.Offline {
		opts = append(opts, pipeline.WithOfflineOnly(true))
	} else {
		fetcher, cleanup, err := newFetcher(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		defer cleanup()
		opts = append(opts, pipeline.WithFetcher(fetcher))
	}

	logger.Info("starting analysis",
		"targets", len(cfg.Targets),
		"offline", cfg.Offline,
		"concurrency", cfg.Concurrency,
		"cache", cfg.Cache,
	)

	bp := pipeline.NewBatchProcessor(
		pipeline.New(opts...),
		pipeline.WithConcurrency(cfg.Concurrency),
		pipeline.WithBatchLogger(logger),
	)
	return bp.ProcessBatch(ctx, cfg.Targets)
}

// newFetcher assembles the fetch stack: dialer, rate limiter and cache.
// The returned cleanup releases the Tor daemon and the cache database.
func newFetcher(ctx context.Context, cfg *config.Config, logger *slog.Logger) (fetch.Fetcher, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var dial fetch.DialFunc
	switch {
	case cfg.ProxyAddress != "":
		client, err := tor.NewClient(cfg.ProxyAddress, cfg.Timeout)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create proxy client: %w", err)
		}
		if status := client.CheckConnection(ctx); status != tor.ProxyStatusOK {
			return nil, nil, fmt.Errorf("proxy check failed: %s (make sure a SOCKS5 proxy is running at %s)",
				status, cfg.ProxyAddress)
		}
		logger.Info("proxy connection verified", "address", cfg.ProxyAddress)
		dial = client.DialContext
	case cfg.UseTor:
		client, embedded, err := startEmbeddedTor(ctx, cfg, logger)
		if err != nil {
			return nil, nil, err
		}
		cleanups = append(cleanups, func() {
			logger.Info("stopping embedded Tor daemon")
			if err := embedded.Stop(); err != nil {
				logger.Error("failed to stop embedded Tor", "error", err)
			}
		})
		dial = client.DialContext
	}

	opts := []fetch.Option{
		fetch.WithTransport(fetch.NewTransport(dial)),
		fetch.WithTimeout(cfg.Timeout),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithMaxBodySize(cfg.MaxBodySize),
		fetch.WithSites(cfg.File),
		fetch.WithLogger(logger),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, fetch.WithLimiter(rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)))
	}
	var fetcher fetch.Fetcher = fetch.NewHTTPFetcher(opts...)

	if cfg.Cache {
		db, err := database.Open(cfg.CacheDir, database.DefaultOptions())
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to open response cache: %w", err)
		}
		cleanups = append(cleanups, func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close response cache", "error", err)
			}
		})
		if n, err := db.Prune(ctx, cfg.CacheTTL); err != nil {
			logger.Warn("failed to prune response cache", "error", err)
		} else if n > 0 {
			logger.Debug("pruned response cache", "removed", n)
		}
		logger.Info("response cache opened", "path", db.Path(), "ttl", cfg.CacheTTL)
		fetcher = fetch.NewCachingFetcher(fetcher, db, cfg.CacheTTL, logger)
	}

	return fetcher, cleanup, nil
}

// startEmbeddedTor starts a Tor daemon and returns a client for it.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tor.Client, *tor.EmbeddedTor, error) {
	logger.Info("starting embedded Tor daemon", "timeout", cfg.TorStartupTimeout)

	embedded := tor.NewEmbeddedTor(tor.WithStartupTimeout(cfg.TorStartupTimeout))
	if err := embedded.Start(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	client, err := embedded.NewClient(cfg.Timeout)
	if err != nil {
		if stopErr := embedded.Stop(); stopErr != nil {
			logger.Error("failed to stop embedded Tor", "error", stopErr)
		}
		return nil, nil, fmt.Errorf("failed to create Tor client: %w", err)
	}

	logger.Info("embedded Tor daemon ready", "socks", embedded.SocksAddr())
	return client, embedded, nil
}

// outputReports writes the reports in the requested format to the report
// file, or to stdout when no file is given.
func outputReports(stdout io.Writer, cfg *config.Config, reports []*model.Report) (err error) {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create output directory: %w", err)
			}
		}

		// Reports may name internal hosts; keep them owner-readable.
		f, openErr := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if openErr != nil {
			return fmt.Errorf("failed to create output file: %w", openErr)
		}
		defer func() {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}()
		output = f
	}

	var w report.Writer
	switch {
	case cfg.JSONReport:
		w = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		w = report.NewMarkdownWriter(output)
	default:
		opts := []report.SimpleWriterOption{report.WithVerbose(cfg.Verbose)}
		if output != io.Writer(os.Stdout) {
			opts = append(opts, report.WithColor(false))
		}
		w = report.NewSimpleWriter(output, opts...)
	}

	done := make([]*model.Report, 0, len(reports))
	for _, r := range reports {
		if r != nil {
			done = append(done, r)
		}
	}
	if len(done) == 1 && len(reports) == 1 {
		_, err = w.Write(done[0])
	} else {
		_, err = w.WriteAll(done)
	}
	if err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// checkFailUnder returns an ExitError when any score is below threshold.
func checkFailUnder(threshold int, reports []*model.Report) error {
	if threshold <= 0 {
		return nil
	}
	var low []string
	for _, r := range reports {
		if r != nil && r.Score < threshold {
			low = append(low, fmt.Sprintf("%s (%d)", r.Input, r.Score))
		}
	}
	if len(low) == 0 {
		return nil
	}
	return &ExitError{
		Code: exitFailUnder,
		Msg:  fmt.Sprintf("score below %d: %s", threshold, strings.Join(low, ", ")),
	}
}
