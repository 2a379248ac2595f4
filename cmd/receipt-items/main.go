package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/receipt-items/internal/catalog"
	"github.com/zombor/receipt-items/internal/receipt"
	"github.com/zombor/receipt-items/internal/scanning"
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

	// A missing .env file is fine
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("receipt-items")
	var (
		port          = fs.IntLong("port", 8080, "HTTP server port")
		scannerType   = fs.StringLong("scanner", "gemini", "Model backend: 'gemini' or 'ollama'")
		geminiKey     = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel   = fs.StringLong("gemini-model", "", "Google Gemini model name (or set GEMINI_MODEL env var, default "+scanning.DefaultGeminiModel+")")
		ollamaURL     = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel   = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, qwen2.5vl)")
		catalogPath   = fs.StringLong("catalog", "", "Product catalog database path (optional)")
		catalogImport = fs.StringLong("catalog-import", "", "YAML or XLSX file of abbreviation to product name mappings to import at start")
		authUser      = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass      = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		extractPath   = fs.StringLong("extract", "", "Extract items from a file or image URL, print JSON and exit")
		autoVerify    = fs.BoolLong("auto-verify", "Resolve ambiguous names with grounded search in --extract mode")
		timeout       = fs.DurationLong("timeout", 60*time.Second, "Deadline for each extraction")
		showVersion   = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_ITEMS"),
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

	// Initialize model based on type
	var model scanning.Model
	var err error
	switch *scannerType {
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		modelName := *geminiModel
		if modelName == "" {
			modelName = os.Getenv("GEMINI_MODEL")
		}
		slog.Info("Initializing Gemini model...", "model", modelName)
		model, err = scanning.NewGemini(apiKey, modelName)
		if err != nil {
			slog.Error("Failed to initialize Gemini. Set --gemini-key flag or GEMINI_API_KEY environment variable", "error", err)
			os.Exit(1)
		}
	case "ollama":
		slog.Info("Initializing Ollama model...", "url", *ollamaURL, "model", *ollamaModel)
		model, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini or ollama")
		os.Exit(1)
	}
	defer model.Close()

	// Initialize catalog
	var verifier receipt.Verifier
	if *catalogPath != "" {
		slog.Info("Opening product catalog...", "path", *catalogPath)
		products, err := catalog.NewBoltCatalog(*catalogPath)
		if err != nil {
			slog.Error("Failed to open catalog", "error", err)
			os.Exit(1)
		}
		defer products.Close()

		if *catalogImport != "" {
			entries, err := catalog.LoadFile(*catalogImport)
			if err != nil {
				slog.Error("Failed to read catalog import", "error", err)
				os.Exit(1)
			}
			n, err := products.Import(entries)
			if err != nil {
				slog.Error("Failed to import catalog", "error", err)
				os.Exit(1)
			}
			slog.Info("Imported catalog entries", "count", n, "file", *catalogImport)
		}
		verifier = products
	} else if *catalogImport != "" {
		slog.Error("--catalog-import requires --catalog")
		os.Exit(1)
	}

	service := receipt.NewService(model)

	if *extractPath != "" {
		opts := receipt.ExtractOptions{AutoVerify: *autoVerify, Verifier: verifier}
		if err := extractOnce(service, *extractPath, opts, *timeout); err != nil {
			slog.Error("Extraction failed", "error", err)
			os.Exit(1)
		}
		return
	}

	// Initialize server
	server := receipt.NewServer(service, receipt.ServerConfig{
		BasicAuth: receipt.BasicAuth{
			Username: *authUser,
			Password: *authPass,
		},
		Verifier: verifier,
		Timeout:  *timeout,
	})

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

// extractOnce runs a single extraction and prints the items and totals as JSON
func extractOnce(service *receipt.Service, source string, opts receipt.ExtractOptions, timeout time.Duration) error {
	img, err := loadImage(source)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	items, err := service.ExtractItems(ctx, img, opts)
	if err != nil {
		return err
	}
	if items == nil {
		items = []receipt.LineItem{}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"items":   items,
		"summary": receipt.Summarize(items),
	})
}

// loadImage accepts an http(s) URL or a local file path
func loadImage(source string) (*scanning.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return scanning.ParseImage(source)
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", source, err)
	}

	contentType := ""
	switch strings.ToLower(filepath.Ext(source)) {
	case ".pdf":
		contentType = "application/pdf"
	case ".heic", ".heif":
		contentType = "image/heic"
	default:
		contentType = http.DetectContentType(data)
	}

	return scanning.ImageFromBytes(data, contentType)
}
