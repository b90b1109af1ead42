package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kevinmichaelchen/papers-without-code/internal/config"
	"github.com/kevinmichaelchen/papers-without-code/internal/container"
	"github.com/kevinmichaelchen/papers-without-code/internal/grobid"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
	"github.com/kevinmichaelchen/papers-without-code/internal/web"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout)
	stop()
	os.Exit(code)
}

// run executes the CLI with args and returns the process exit code.
func run(ctx context.Context, args []string, stdout io.Writer) int {
	root := rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)

	if err := root.ExecuteContext(ctx); err != nil {
		slog.Error("pwoc failed", "kind", models.KindOf(err).String(), "error", err)
		return 1
	}
	return 0
}

func rootCmd() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:           "pwoc",
		Short:         "Papers without Code: find code repositories for academic papers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(debug)
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Run with debug logging")

	root.AddCommand(findCmd(), serverCmd(), webCmd())
	return root
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

func findCmd() *cobra.Command {
	var (
		teardown bool
		format   string
	)

	cmd := &cobra.Command{
		Use:   "find <paper-id-or-pdf>",
		Short: "Rank GitHub repositories that may implement a paper",
		Long: "Looks the paper up by identifier (DOI, Semantic Scholar ID, ARXIV:..., URL:...) or, " +
			"when the argument is an existing file, parses it as a PDF with a local GROBID server.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			logger := slog.Default()

			if _, err := parseFormat(format); err != nil {
				return err
			}

			p, closeDeps, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeDeps()

			var repos []models.RankedRepo
			if isFile(args[0]) {
				paper, err := parsePDF(ctx, cfg, logger, args[0], teardown)
				if err != nil {
					return err
				}
				logger.Info("parsed paper", "title", paper.Title)
				repos, err = p.FindRepos(ctx, paper)
				if err != nil {
					return err
				}
			} else {
				repos, err = p.Search(ctx, args[0])
				if err != nil {
					return err
				}
			}
			return writeResults(cmd.OutOrStdout(), format, repos)
		},
	}
	cmd.Flags().BoolVarP(&teardown, "teardown", "t", false, "Stop and remove the GROBID server once the PDF is parsed")
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "Output format: text, json or yaml")
	return cmd
}

func isFile(arg string) bool {
	info, err := os.Stat(arg)
	return err == nil && !info.IsDir()
}

func newGrobidServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*grobid.Server, error) {
	rt, err := container.DetectRuntime(ctx)
	if err != nil {
		return nil, models.NewError(models.KindPermanentExternal, "pwoc.grobid", err)
	}
	logger.Debug("using container runtime", "runtime", rt.Name())
	return grobid.NewServer(rt, cfg.GrobidImage, cfg.GrobidPort, grobid.WithServerLogger(logger)), nil
}

func parsePDF(ctx context.Context, cfg *config.Config, logger *slog.Logger, path string, teardown bool) (models.PaperDetails, error) {
	srv, err := newGrobidServer(ctx, cfg, logger)
	if err != nil {
		return models.PaperDetails{}, err
	}

	client, err := srv.SetupOrConnect(ctx)
	if err == nil {
		var paper models.PaperDetails
		paper, err = client.ProcessPDF(ctx, path)
		if err == nil {
			if teardown {
				if terr := srv.Teardown(ctx); terr != nil {
					logger.Warn("tearing down GROBID server", "error", terr)
				}
			} else {
				logger.Info("GROBID server is still running to save time on the next run; " +
					"stop it with `pwoc server shutdown`")
			}
			return paper, nil
		}
	}

	if teardown {
		logger.Error("GROBID failed, stopping and removing container", "error", err)
		if terr := srv.Teardown(ctx); terr != nil {
			logger.Warn("tearing down GROBID server", "error", terr)
		}
	}
	return models.PaperDetails{}, err
}

func serverCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Manage the local GROBID PDF parsing server",
	}

	sub := func(name, short string, fn func(context.Context, *grobid.Server) error) *cobra.Command {
		return &cobra.Command{
			Use:   name,
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg := config.Load()
				srv, err := newGrobidServer(cmd.Context(), cfg, slog.Default())
				if err != nil {
					return err
				}
				return fn(cmd.Context(), srv)
			},
		}
	}

	cmd.AddCommand(
		sub("start", "Start (or reconnect to) the server and wait until it is alive",
			func(ctx context.Context, srv *grobid.Server) error {
				if _, err := srv.SetupOrConnect(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "GROBID server running at %s (container %s)\n", srv.URL(), srv.ContainerID())
				return nil
			}),
		sub("stop", "Stop running server containers",
			func(ctx context.Context, srv *grobid.Server) error { return srv.Stop(ctx) }),
		sub("shutdown", "Stop and remove all server containers",
			func(ctx context.Context, srv *grobid.Server) error { return srv.Shutdown(ctx) }),
	)
	return cmd
}

func webCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "web",
		Short: "Run the web application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := config.Load()
			logger := slog.Default()
			if port == "" {
				port = cfg.Port
			}

			p, closeDeps, err := buildPipeline(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeDeps()

			h, err := web.NewHandler(p, web.WithLogger(logger))
			if err != nil {
				return err
			}
			app := web.NewApp(h)

			go func() {
				<-ctx.Done()
				_ = app.ShutdownWithTimeout(10 * time.Second)
			}()

			logger.Info("web app starting", "port", port, "github_token", cfg.GitHubToken != "")
			return app.Listen(":" + port)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "Port to listen on (default from PORT, else 8080)")
	return cmd
}
