package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ymurata/sitewatch"
	"github.com/ymurata/sitewatch/config"
	"github.com/ymurata/sitewatch/detect"
	"github.com/ymurata/sitewatch/parser"
	"github.com/ymurata/sitewatch/summarize"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	subcommand := os.Args[1]

	switch subcommand {
	case "sources":
		if len(os.Args) < 3 {
			printSourcesUsage()
			os.Exit(1)
		}
		handleSourcesCommand(cfg, os.Args[2], os.Args[3:])
	case "detect":
		handleDetect(os.Args[2:])
	case "crawl":
		handleCrawl(cfg, os.Args[2:])
	case "serve":
		handleServe(cfg, os.Args[2:])
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("sitewatch - Site crawling and article extraction")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sitewatch <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  sources    Manage crawl sources")
	fmt.Println("  detect     Detect a site's parser configuration")
	fmt.Println("  crawl      Crawl one or all active sources")
	fmt.Println("  serve      Run the HTTP API server")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  SITEWATCH_DB      Path to the SQLite database (default: sitewatch.db)")
	fmt.Println("  SITEWATCH_CONFIG  Path to the config file (default: ~/.sitewatch/config.yaml)")
}

func printSourcesUsage() {
	fmt.Println("sitewatch sources - Manage crawl sources")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sitewatch sources <action> [arguments]")
	fmt.Println()
	fmt.Println("Actions:")
	fmt.Println("  list       List all sources")
	fmt.Println("  add        Add a new source")
	fmt.Println("  remove     Remove a source")
	fmt.Println("  help       Show this help message")
}

func openStore(cfg *config.Config) *sitewatch.Store {
	store, err := sitewatch.NewStore(cfg.Database)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to open store: %v\n", err)
		os.Exit(1)
	}
	return store
}

func handleSourcesCommand(cfg *config.Config, action string, args []string) {
	switch action {
	case "list":
		handleSourcesList(cfg)
	case "add":
		handleSourcesAdd(cfg, args)
	case "remove":
		handleSourcesRemove(cfg, args)
	case "help", "--help", "-h":
		printSourcesUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown sources command: %s\n\n", action)
		printSourcesUsage()
		os.Exit(1)
	}
}

func handleSourcesList(cfg *config.Config) {
	store := openStore(cfg)
	defer store.Close()

	sources, err := store.ListSources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to list sources: %v\n", err)
		os.Exit(1)
	}

	if len(sources) == 0 {
		fmt.Println("No sources configured.")
		return
	}

	fmt.Printf("%-36s  %-20s  %-14s  %-6s  %s\n", "ID", "NAME", "PARSER", "ACTIVE", "URL")
	for _, s := range sources {
		fmt.Printf("%-36s  %-20s  %-14s  %-6t  %s\n", s.ID, s.Name, s.ParserType, s.Active, s.URL)
	}
}

func handleSourcesAdd(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("sources add", flag.ExitOnError)
	name := fs.String("name", "", "Source name (required)")
	url := fs.String("url", "", "Source URL (required)")
	parserType := fs.String("parser", "", "Parser type (default: auto-detect)")
	configJSON := fs.String("config", "", "Parser configuration JSON")
	fs.Parse(args)

	if *name == "" || *url == "" {
		fmt.Fprintln(os.Stderr, "Error: --name and --url are required")
		os.Exit(1)
	}

	parserConfig := json.RawMessage(*configJSON)

	// Without an explicit parser, run detection against the live site.
	if *parserType == "" {
		result, err := detect.New().Detect(context.Background(), *url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to detect parser: %v\n", err)
			os.Exit(1)
		}
		*parserType = result.ParserType
		if *configJSON == "" {
			parserConfig = result.ParserConfig
		}
		fmt.Printf("Detected parser %q (%s confidence): %s\n", result.ParserType, result.Confidence, result.Description)
	}

	if _, err := parser.DecodeConfig(*parserType, parserConfig); err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid parser config: %v\n", err)
		os.Exit(1)
	}

	store := openStore(cfg)
	defer store.Close()

	source, err := store.CreateSource(*name, *url, *parserType, parserConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to add source: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Added source %s (%s)\n", source.Name, source.ID)
}

func handleSourcesRemove(cfg *config.Config, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: source ID required")
		os.Exit(1)
	}

	sourceID, err := uuid.Parse(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: invalid source ID: %v\n", err)
		os.Exit(1)
	}

	store := openStore(cfg)
	defer store.Close()

	if err := store.DeleteSource(sourceID); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to remove source: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Removed source %s\n", sourceID)
}

func handleDetect(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Error: URL required")
		os.Exit(1)
	}

	result, err := detect.New().Detect(context.Background(), args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: detection failed: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func newSummarizer(cfg *config.Config, logger *zap.Logger) *summarize.Client {
	return summarize.New(cfg.Summarizer.BaseURL,
		summarize.WithModel(cfg.Summarizer.Model),
		summarize.WithLogger(logger))
}

func newCrawler(cfg *config.Config, store *sitewatch.Store, summarizer *summarize.Client, logger *zap.Logger) *sitewatch.Crawler {
	crawler := sitewatch.NewCrawler(store, parser.NewRegistry(), summarizer, logger)
	crawler.MaxNewPerRun = cfg.Crawl.MaxNewPerRun
	crawler.FetchDelay = cfg.FetchDelay()
	return crawler
}

func handleCrawl(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	sourceID := fs.String("source", "", "Crawl only this source ID")
	fs.Parse(args)

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store := openStore(cfg)
	defer store.Close()

	crawler := newCrawler(cfg, store, newSummarizer(cfg, logger), logger)
	ctx := context.Background()

	var results map[string]*sitewatch.CrawlResult
	if *sourceID != "" {
		id, err := uuid.Parse(*sourceID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid source ID: %v\n", err)
			os.Exit(1)
		}
		source, err := store.GetSource(id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		result, _ := crawler.CrawlSource(ctx, source, nil)
		results = map[string]*sitewatch.CrawlResult{source.Name: result}
	} else {
		results, err = crawler.CrawlAll(ctx, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: crawl failed: %v\n", err)
			os.Exit(1)
		}
	}

	for name, result := range results {
		fmt.Printf("%s: %s (%d found, %d new)\n", name, result.Status, result.ArticlesFound, result.NewArticles)
		for _, e := range result.Errors {
			fmt.Printf("  error: %s\n", e)
		}
	}
}

func handleServe(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "Listen address")
	fs.Parse(args)

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store := openStore(cfg)
	defer store.Close()

	summarizer := newSummarizer(cfg, logger)
	crawler := newCrawler(cfg, store, summarizer, logger)
	server := sitewatch.NewAPIServer(store, crawler, detect.New(), summarizer)
	router := server.SetupRouter()

	logger.Info("starting API server", zap.String("addr", *addr))
	if err := router.Run(*addr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: server failed: %v\n", err)
		os.Exit(1)
	}
}
