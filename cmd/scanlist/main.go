package main

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/pvieira/scanlist/internal/list"
	"github.com/pvieira/scanlist/internal/lookup"
	"github.com/pvieira/scanlist/internal/scanner"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("scanlist")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		dbPath        = fs.StringLong("db", "scanlist.db", "Database file path")
		lookupURL     = fs.StringLong("lookup-url", "https://api.cosmos.bluesoft.com.br/gtins", "Product lookup API base URL")
		lookupKey     = fs.StringLong("lookup-key", "", "Product lookup API key (or set SCANLIST_LOOKUP_KEY env var)")
		scanThreshold = fs.IntLong("scan-threshold", 3, "Consecutive identical reads required to accept a barcode")
		scanFrequency = fs.IntLong("scan-frequency", 5, "Decode attempts per second")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("SCANLIST"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := list.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize product resolver
	if *lookupKey == "" {
		slog.Warn("No lookup API key configured; product lookups will fall back to manual entry")
	}
	resolver, err := lookup.NewClient(*lookupURL, *lookupKey)
	if err != nil {
		slog.Error("Failed to initialize product lookup", "error", err)
		os.Exit(1)
	}

	// Initialize scan controller with the browser-fed decoder
	cfg := scanner.DefaultConfig()
	cfg.Threshold = *scanThreshold
	cfg.Frequency = *scanFrequency
	controller := scanner.NewController(scanner.NewRemoteFeed(), cfg)

	// Initialize service
	listService := list.NewService(db, resolver)

	// Initialize server
	basicAuth := list.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := list.NewServer(listService, controller, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
