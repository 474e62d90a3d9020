package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/attachvault/internal/config"
	"github.com/dharsanguruparan/attachvault/internal/docstore"
	"github.com/dharsanguruparan/attachvault/internal/metrics"
	"github.com/dharsanguruparan/attachvault/internal/primary"
	"github.com/dharsanguruparan/attachvault/internal/search"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "attachvault: %v\n", err)
		os.Exit(1)
	}
	logger, closeLog := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	app := &app{cfg: cfg, logger: logger, out: os.Stdout, errOut: os.Stderr}

	rootCmd := newRootCommand(app)
	err = rootCmd.ExecuteContext(ctx)
	closeLog()
	if err != nil {
		fmt.Fprintf(os.Stderr, "attachvault: %v\n", err)
		os.Exit(1)
	}
}

// app carries what every subcommand needs. Clients are built on demand so
// flag overrides apply.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	out     io.Writer
	errOut  io.Writer

	httpClient *http.Client
	navigator  docstore.Navigator
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "attachvault",
		Short: "Attach documents to records and search them",
		Long: `attachvault creates parent records in the primary store, uploads their
documents to the document service, links the two, and searches, downloads or
views the stored documents.`,
		SilenceUsage: true,
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfg.DocServiceURL, "service-url", a.cfg.DocServiceURL, "Document service base URL")
	flags.StringVar(&a.cfg.PrimaryStoreURL, "primary-url", a.cfg.PrimaryStoreURL, "Primary store base URL")
	flags.StringVar(&a.cfg.AuthToken, "token", a.cfg.AuthToken, "Bearer token sent to both services")
	flags.DurationVar(&a.cfg.HTTPTimeout, "timeout", a.cfg.HTTPTimeout, "Per-request HTTP timeout")
	cmd.AddCommand(
		newSubmitCmd(a),
		newSearchCmd(a),
		newListCmd(a),
		newSuggestCmd(a),
		newSimilarCmd(a),
		newGetCmd(a),
		newDownloadCmd(a),
		newViewCmd(a),
	)
	return cmd
}

func (a *app) client() *http.Client {
	if a.httpClient != nil {
		return a.httpClient
	}
	return &http.Client{Timeout: a.cfg.HTTPTimeout}
}

func (a *app) docstore(opts ...docstore.Option) (*docstore.Client, error) {
	base := []docstore.Option{
		docstore.WithHTTPClient(a.client()),
		docstore.WithToken(a.cfg.AuthToken),
		docstore.WithLogger(a.logger),
		docstore.WithMetrics(a.metrics),
	}
	return docstore.New(a.cfg.DocServiceURL, append(base, opts...)...)
}

func (a *app) search() (*search.Client, error) {
	return search.New(a.cfg.DocServiceURL,
		search.WithHTTPClient(a.client()),
		search.WithToken(a.cfg.AuthToken),
		search.WithLogger(a.logger),
		search.WithMetrics(a.metrics),
	)
}

func (a *app) primary() (*primary.Client, error) {
	return primary.New(a.cfg.PrimaryStoreURL,
		primary.WithHTTPClient(a.client()),
		primary.WithToken(a.cfg.AuthToken),
		primary.WithLogger(a.logger),
	)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
