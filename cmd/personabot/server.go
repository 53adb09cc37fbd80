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

	"github.com/go-chi/chi/v5"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/personabot/internal/api"
	"github.com/kalambet/personabot/internal/config"
	"github.com/kalambet/personabot/internal/profile"
	"github.com/kalambet/personabot/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the chat HTTP server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		host, _ := cmd.Flags().GetString("host")
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(host, withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and pipeline status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

func init() {
	serveCmd.Flags().String("host", "127.0.0.1", "interface to listen on")
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "personabot.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
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

// newRouter mounts the public chat routes and the bearer-protected decision
// log on one router.
func newRouter(chat api.ChatDeps, app api.AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Mount("/decisions", api.NewAppHandler(app))
	r.Mount("/", api.NewChatHandler(chat))
	return r
}

func runServer(host string, withMCP bool) error {
	fmt.Fprintf(os.Stderr, "personabot version %s\n", version)

	cfg, closeLog, err := loadConfigAndLogging()
	if err != nil {
		return err
	}
	defer closeLog()

	apiToken, err := config.GetAPIToken(config.DefaultSecrets())
	if err != nil {
		slog.Warn("no API token, decision log API disabled", "error", err, "hint", "set "+config.APITokenEnv)
	} else {
		slog.Info("API bearer token available")
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("personabot is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("something is already listening on port %d", cfg.Server.Port)
		return fmt.Errorf("port %d in use", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	if len(cfg.Server.AllowedOrigins) == 0 {
		slog.Warn("no allowed origins configured; browsers on other origins will be refused")
	}

	addr := fmt.Sprintf("%s:%d", host, cfg.Server.Port)
	srv := &http.Server{
		Addr: addr,
		Handler: newRouter(
			api.ChatDeps{Governor: a.governor, AllowedOrigins: cfg.Server.AllowedOrigins},
			api.AppDeps{Store: a.store, Token: apiToken},
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "personabot listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{
			Governor:     a.governor,
			Lexicon:      profile.BuildLexicon(a.doc),
			Capabilities: a.doc.Capabilities(),
			Store:        a.store,
			Version:      version,
		})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			slog.Info("MCP server started (stdio transport)")
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
	}

	return g.Wait()
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
		printError("personabot is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop personabot (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to personabot (PID %d)", pid)
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
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Provider", "%s", cfg.Proxy.Provider)
	printStatus("Chat model", "%s", cfg.Proxy.ChatModel)
	printStatus("Judge model", "%s (enabled: %t)", cfg.Proxy.JudgeModel, cfg.Governance.JudgeEnabled)
	printStatus("Guard", "enabled: %t", cfg.Governance.GuardEnabled)

	switch {
	case cfg.Profile.Base64 != "":
		printStatus("Profile", "inline (PERSONABOT_PROFILE_BASE64)")
	case cfg.Profile.Path != "":
		printStatus("Profile", "%s", cfg.Profile.Path)
	default:
		printStatus("Profile", "not configured")
	}
	if len(cfg.Server.AllowedOrigins) > 0 {
		printStatus("Origins", "%s", strings.Join(cfg.Server.AllowedOrigins, ", "))
	}

	if running {
		if c, err := newAPIClient(); err == nil {
			var counts []storage.DecisionCount
			if resp, err := c.get(context.Background(), "/decisions/stats"); err == nil && decodeJSON(resp, &counts) == nil {
				total := 0
				for _, dc := range counts {
					total += dc.Count
				}
				printStatus("Decisions", "%d logged", total)
			}
		}
	}

	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
