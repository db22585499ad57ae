package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-po/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-po/internal/app"
	"github.com/odyssey-erp/odyssey-po/internal/audit"
	"github.com/odyssey-erp/odyssey-po/internal/auth"
	"github.com/odyssey-erp/odyssey-po/internal/documents"
	"github.com/odyssey-erp/odyssey-po/internal/inventory"
	"github.com/odyssey-erp/odyssey-po/internal/notify"
	"github.com/odyssey-erp/odyssey-po/internal/procurement"
	"github.com/odyssey-erp/odyssey-po/jobs"
	"github.com/odyssey-erp/odyssey-po/report"
)

const usage = `usage: odyssey [command] [flags]

commands:
  serve          run the HTTP API (default)
  import-legacy  import exported variant or restocking documents
  user-add       create login accounts
  jobs           trigger or inspect background jobs
`

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	command, args := "serve", os.Args[1:]
	if len(args) > 0 && args[0] != "" && args[0][0] != '-' {
		command, args = args[0], args[1:]
	}

	switch command {
	case "serve":
		os.Exit(serve(ctx, cfg, logger))
	case "import-legacy":
		os.Exit(importLegacy(ctx, cfg, logger, args))
	case "user-add":
		os.Exit(userAdd(ctx, cfg, logger, args))
	case "jobs":
		os.Exit(jobsCommand(ctx, cfg, args))
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) int {
	components, err := app.NewComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("init components", slog.Any("error", err))
		return 1
	}
	defer components.Close()

	tokens, err := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTTTL)
	if err != nil {
		logger.Error("init token issuer", slog.Any("error", err))
		return 1
	}
	authService := auth.NewService(auth.NewRepository(components.Pool), tokens, logger.With(slog.String("module", "auth")))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	var documentHandler *documents.Handler
	if components.Documents != nil {
		documentHandler = documents.NewHandler(logger, components.Documents, components.Jobs)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Metrics:             components.Metrics,
		Tokens:              tokens,
		AuthHandler:         auth.NewHandler(logger, authService),
		InventoryHandler:    inventory.NewHandler(logger, components.Inventory, components.Snapshots),
		ProcurementHandler:  procurement.NewHandler(logger, components.Procurement, components.Feed),
		DocumentHandler:     documentHandler,
		NotificationHandler: notify.NewHandler(logger, components.Notifications),
		ReportHandler:       report.NewHandler(components.PDF, logger),
		JobHandler:          jobs.NewHandler(inspector, logger),
		AuditHandler:        audit.NewHandler(logger, audit.NewService(audit.NewRepository(components.Pool))),
	})

	server := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router,
		ReadTimeout:       cfg.AppReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.AppWriteTimeout,
	}
	if err := app.Serve(ctx, server, logger); err != nil {
		logger.Error("http server", slog.Any("error", err))
		return 1
	}
	return 0
}

func importLegacy(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("import-legacy", flag.ContinueOnError)
	var opts cli.ImportOptions
	fs.StringVar(&opts.Path, "file", "", "JSON or YAML export file")
	fs.StringVar(&opts.Kind, "kind", cli.KindVariants, "document kind: variants or restock")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "decode only, do not write")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	components, err := app.NewComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("init components", slog.Any("error", err))
		return 1
	}
	defer components.Close()

	importer, err := cli.NewLegacyImportCLI(components.Inventory)
	if err != nil {
		logger.Error("init import", slog.Any("error", err))
		return 1
	}
	return importer.ImportCommand(ctx, opts)
}

func userAdd(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string) int {
	fs := flag.NewFlagSet("user-add", flag.ContinueOnError)
	var opts cli.UserAddOptions
	fs.StringVar(&opts.User.Email, "email", "", "login email")
	fs.StringVar(&opts.User.Name, "name", "", "display name")
	fs.StringVar(&opts.User.Role, "role", "", "Admin, InventoryManager or Cashier")
	fs.StringVar(&opts.SeedFile, "file", "", "YAML file with a users list")
	fs.BoolVar(&opts.JSONOutput, "json", false, "print created users as JSON")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	opts.User.Password = os.Getenv("ODYSSEY_USER_PASSWORD")

	components, err := app.NewComponents(ctx, cfg, logger)
	if err != nil {
		logger.Error("init components", slog.Any("error", err))
		return 1
	}
	defer components.Close()

	users, err := cli.NewUserCLI(auth.NewRepository(components.Pool))
	if err != nil {
		logger.Error("init user cli", slog.Any("error", err))
		return 1
	}
	return users.AddCommand(ctx, opts)
}

func jobsCommand(ctx context.Context, cfg *app.Config, args []string) int {
	fs := flag.NewFlagSet("jobs", flag.ContinueOnError)
	var opts cli.TriggerOptions
	trigger := fs.String("trigger", "", "task type to enqueue")
	fs.StringVar(&opts.POID, "po", "", "purchase order id for "+jobs.TaskPODocument)
	fs.DurationVar(&opts.Retention, "retention", cfg.IdempotencyRetention, "retention for "+jobs.TaskIdempotencyCleanup)
	scheduled := fs.Int("scheduled", 0, "list up to n scheduled tasks")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
		return 1
	}
	defer jobsCLI.Close()

	enc := json.NewEncoder(os.Stdout)
	switch {
	case *trigger != "":
		info, err := jobsCLI.Trigger(ctx, *trigger, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
	case *scheduled > 0:
		infos, err := jobsCLI.ListScheduled(ctx, *scheduled)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		for _, info := range infos {
			fmt.Fprintf(os.Stdout, "%s %s next=%s\n", info.ID, info.Type, info.NextProcessAt.Format(time.RFC3339))
		}
	default:
		stats, err := jobsCLI.InspectQueue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "jobs: %v\n", err)
			return 1
		}
		if err := enc.Encode(stats); err != nil {
			return 1
		}
	}
	return 0
}
