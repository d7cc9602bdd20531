package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/kalambet/taskrank/internal/api"
	"github.com/kalambet/taskrank/internal/config"
	"github.com/kalambet/taskrank/internal/embedding"
	"github.com/kalambet/taskrank/internal/llm"
	"github.com/kalambet/taskrank/internal/ranking"
	"github.com/kalambet/taskrank/internal/storage"
	"github.com/kalambet/taskrank/internal/summary"
	"github.com/kalambet/taskrank/internal/taskstore"
	"github.com/kalambet/taskrank/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the taskrank HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the MCP interface over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running taskrank server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show taskrank system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// app bundles the wired service components so both the HTTP and MCP
// entrypoints build from the same graph.
type app struct {
	cfg      config.Config
	store    *storage.Store
	tasks    *taskstore.Repository
	embedder *embedding.Client
	ranker   *ranking.Engine
	summary  *summary.Generator
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	vs, err := vectorstore.New(vectorstore.FactoryConfig{
		Provider:  cfg.Vector.Provider,
		MilvusURL: cfg.Vector.MilvusURL,
		Token:     cfg.Vector.Token,
		DB:        store.DB(),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("creating vector store: %w", err)
	}

	tasks := taskstore.New(vs, cfg.Vector.Collection, cfg.Vector.Dim)
	if err := tasks.EnsureCollection(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("ensuring task collection: %w", err)
	}

	embedder := embedding.New(embedding.Config{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.EmbedModel,
		Dim:     cfg.Vector.Dim,
	})
	chat := llm.New(llm.Config{
		BaseURL: cfg.OpenAI.BaseURL,
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.OpenAI.ChatModel,
	})

	strategy, err := ranking.ParseStrategy(cfg.Ranking.Strategy)
	if err != nil {
		store.Close()
		return nil, err
	}
	ranker := ranking.New(embedder, tasks, chat, ranking.Config{
		Strategy:       strategy,
		CandidateLimit: cfg.Ranking.CandidateLimit,
		EnrichReasons:  cfg.Ranking.EnrichReasons,
		EnrichTimeout:  cfg.Ranking.EnrichTimeoutDuration(),
	})

	return &app{
		cfg:      cfg,
		store:    store,
		tasks:    tasks,
		embedder: embedder,
		ranker:   ranker,
		summary:  summary.New(chat),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
	}
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "taskrank.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "taskrank version %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	// Refuse to start a second instance on the same port.
	pidPath := pidFilePath(a.cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", a.cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("taskrank is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("taskrank is already running on port %d", a.cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", a.cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	var origins []string
	for _, o := range strings.Split(a.cfg.Server.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	handler := api.NewHandler(api.Deps{
		Ranker:      a.ranker,
		Summarizer:  a.summary,
		Tasks:       a.tasks,
		Embedder:    a.embedder,
		Token:       a.cfg.Server.AuthToken,
		CORSOrigins: origins,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("taskrank listening", "addr", addr, "vector_provider", a.cfg.Vector.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Ranker:     a.ranker,
		Summarizer: a.summary,
		Tasks:      a.tasks,
	})

	slog.Info("MCP server started (stdio transport)")
	stdioSrv := server.NewStdioServer(mcpSrv)
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("MCP stdio server: %w", err)
	}
	return nil
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("taskrank is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop taskrank (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to taskrank (PID %d)", pid)
	return nil
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	serverURL := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)
	client := &http.Client{Timeout: 2 * time.Second}

	running := false
	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			running = true
			printStatus("Server", "running on port %d", cfg.Server.Port)
		} else {
			printStatus("Server", "degraded (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Vector store", "%s", cfg.Vector.Provider)
	printStatus("Embed model", "%s", cfg.OpenAI.EmbedModel)
	printStatus("Chat model", "%s", cfg.OpenAI.ChatModel)
	printStatus("Strategy", "%s", cfg.Ranking.Strategy)

	if running {
		if apiCl, err := newAPIClient(); err == nil {
			if resp, err := apiCl.get(context.Background(), "/v1/tasks/count"); err == nil {
				var counts map[string]int64
				if decodeJSON(resp, &counts) == nil {
					printStatus("Indexed tasks", "%d", counts["count"])
				}
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
