// Command tokenbench measures SPL token account creation and transfer
// latency against a Solana cluster.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"TokenBench/internal/bench"
	"TokenBench/internal/config"
	"TokenBench/internal/db"
	"TokenBench/internal/handler"
	"TokenBench/internal/listener"
	"TokenBench/internal/metrics"
	"TokenBench/internal/runner"
	"TokenBench/internal/services"
	"TokenBench/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := config.New()
	if err := newRootCmd(v).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(v *viper.Viper) *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "tokenbench",
		Short: "SPL token latency benchmark",
		Long: `tokenbench creates a fresh mint, derives a deterministic batch of
keypairs, opens an associated token account for each, funds a source account
and transfers to every opened account, reporting latency statistics.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if configPath != "" {
				v.SetConfigFile(configPath)
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Config file (default ./config.yaml)")
	flags.StringP("identity", "i", "", "Fee payer keypair file (solana-keygen JSON)")
	flags.StringP("url", "u", "", "Solana JSON-RPC URL")
	flags.String("ws-url", "", "Solana websocket URL (empty polls signature statuses)")
	flags.String("commitment", "", "Commitment to wait for: processed, confirmed, finalized")
	flags.String("store-driver", "", "Persist runs with mysql or sqlite")
	flags.String("store-dsn", "", "Store DSN")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log as JSON")
	mustBind(v, flags, map[string]string{
		"solana.keypair_path": "identity",
		"solana.rpc_url":      "url",
		"solana.ws_url":       "ws-url",
		"solana.commitment":   "commitment",
		"store.driver":        "store-driver",
		"store.dsn":           "store-dsn",
		"log.level":           "log-level",
		"log.json":            "log-json",
	})

	root.AddCommand(newRunCmd(v), newServeCmd(v), newRunsCmd(v))
	return root
}

func newRunCmd(v *viper.Viper) *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one benchmark and print its statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), v)
			if err != nil {
				return err
			}
			defer a.close()

			opts, err := a.cfg.BenchOptions()
			if err != nil {
				return err
			}
			id, res, err := a.runner.Run(cmd.Context(), opts)
			if err != nil {
				a.log.Error("run %s failed: %v", id, err)
				return err
			}

			if outputJSON {
				return bench.WriteJSON(cmd.OutOrStdout(), bench.NewReport(id, res))
			}
			return bench.WriteText(cmd.OutOrStdout(), res)
		},
	}

	flags := cmd.Flags()
	flags.IntP("num-keypairs", "n", 0, "Number of keypairs (accounts) to create")
	flags.StringP("token-program-id", "t", "", "SPL token program id")
	flags.Uint8("mint-decimals", 6, "Mint decimals")
	flags.Uint64("fund-amount", 0, "Tokens minted to the source account (0 = num-keypairs)")
	flags.Uint64("transfer-amount", 1, "Tokens per transfer")
	flags.Int("concurrency", 1, "Parallel submissions for account opening and transfers")
	flags.Uint32("compute-unit-limit", 0, "Compute unit limit per transaction (0 = default)")
	flags.Uint64("compute-unit-price", 0, "Priority fee in microlamports per compute unit")
	flags.BoolVar(&outputJSON, "json", false, "Output the report as JSON")
	mustBind(v, flags, map[string]string{
		"bench.num_keypairs":       "num-keypairs",
		"bench.token_program_id":   "token-program-id",
		"bench.mint_decimals":      "mint-decimals",
		"bench.fund_amount":        "fund-amount",
		"bench.transfer_amount":    "transfer-amount",
		"bench.concurrency":        "concurrency",
		"bench.compute_unit_limit": "compute-unit-limit",
		"bench.compute_unit_price": "compute-unit-price",
	})
	return cmd
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	var allowed []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve run status, history and metrics over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, v)
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.Log.JSON {
				gin.SetMode(gin.ReleaseMode)
			}
			r := gin.Default()
			// 直接对外服务，不信任任何代理头
			if err := r.SetTrustedProxies(nil); err != nil {
				return err
			}
			handler.NewServer(ctx, a.store, a.runner, a.metrics.Handler(), allowed...).RegisterRoutes(r)

			srv := &http.Server{Addr: a.cfg.App.Listen, Handler: r}
			errCh := make(chan error, 1)
			go func() {
				a.log.Info("服务器启动于 %s", a.cfg.App.Listen)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("gin 服务器启动失败: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", "", "Listen address")
	flags.StringSliceVar(&allowed, "allow", nil, "Extra CIDRs allowed to start runs and scrape metrics")
	mustBind(v, flags, map[string]string{"app.listen": "listen"})
	return cmd
}

func newRunsCmd(v *viper.Viper) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List persisted runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if cfg.Store.Driver == "" {
				return fmt.Errorf("%w: store.driver is not set", config.ErrInvalidConfig)
			}
			store, err := db.Open(cfg.Store.Driver, cfg.Store.DSN)
			if err != nil {
				return err
			}
			defer func() { _ = db.Close(store) }()

			runs, err := db.ListRuns(store, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := range runs {
				resp := db.ToResponse(&runs[i])
				fmt.Fprintf(out, "%s  %-9s  %s  n=%d  mint=%s\n",
					resp.ID, resp.Status, resp.StartedAt.Format(time.RFC3339), resp.NumKeypairs, resp.Mint)
				if resp.Error != "" {
					fmt.Fprintf(out, "    error: %s\n", resp.Error)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list")
	return cmd
}

func mustBind(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

// app holds the wired dependencies shared by run and serve.
type app struct {
	cfg     *config.Config
	log     *utils.Logger
	store   *gorm.DB
	metrics *metrics.Collector
	runner  *runner.Runner
	closers []func()
}

func newApp(ctx context.Context, v *viper.Viper) (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log, err := utils.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, metrics: metrics.New()}
	a.closers = append(a.closers, func() { _ = log.Sync() })

	identity, err := cfg.LoadIdentity(log)
	if err != nil {
		return nil, err
	}

	client := rpc.New(cfg.Solana.RPCURL)
	a.closers = append(a.closers, func() { _ = client.Close() })

	var wsClient *ws.Client
	if cfg.Solana.WSURL != "" {
		wsClient, err = ws.Connect(ctx, cfg.Solana.WSURL)
		if err != nil {
			// WebSocket 不可用时退回轮询
			log.Warn("WebSocket 连接失败，改用轮询确认: %v", err)
			wsClient = nil
		} else {
			a.closers = append(a.closers, wsClient.Close)
		}
	}

	l := listener.New(client, wsClient, listener.Config{
		Commitment:   cfg.Commitment(),
		PollInterval: cfg.Solana.PollInterval,
		Timeout:      cfg.Solana.ConfirmTimeout,
	}, log)
	exec := services.NewExecutor(services.NewRPCEndpoint(client, l, cfg.Solana.SkipPreflight, log), log)

	opts, err := cfg.BenchOptions()
	if err != nil {
		return nil, err
	}
	runnerOpts := []runner.Option{runner.WithMetrics(a.metrics)}
	if cfg.Store.Driver != "" {
		a.store, err = db.Open(cfg.Store.Driver, cfg.Store.DSN)
		if err != nil {
			return nil, err
		}
		log.Info("数据库初始化完成 (%s)", cfg.Store.Driver)
		store := a.store
		a.closers = append(a.closers, func() { _ = db.Close(store) })
		runnerOpts = append(runnerOpts, runner.WithStore(a.store))
	}
	a.runner = runner.New(exec, identity, opts, log, runnerOpts...)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
