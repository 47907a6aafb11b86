package cli

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aerostat-labs/windscout/internal/config"
	"github.com/aerostat-labs/windscout/internal/queue"
	"github.com/aerostat-labs/windscout/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the windscout API server",
	Long: `Start the JSON API on the configured address: request routing,
project status, live thought streams (SSE), and the activity feed.

With the postgres backend the background queue workers start alongside
the server and drain queued asks while it runs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		env, err := buildApp(cmd.Context(), 128)
		if err != nil {
			return err
		}
		defer env.cleanup()
		cfg := env.cfg

		readTimeout, err := config.Duration(cfg.Server.ReadTimeout, 15*time.Second)
		if err != nil {
			return err
		}
		writeTimeout, err := config.Duration(cfg.Server.WriteTimeout, 120*time.Second)
		if err != nil {
			return err
		}

		srv := web.NewServer(env.router, env.recorder, env.store, env.orch)
		srv.SetAddr(cfg.Server.Addr)
		if addr != "" {
			srv.SetAddr(addr)
		}
		srv.SetTimeouts(readTimeout, writeTimeout)
		if env.db != nil {
			srv.SetActivityLog(env.db)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.Start(ctx) })

		if env.db != nil {
			poll, err := config.Duration(cfg.Queue.PollInterval, 2*time.Second)
			if err != nil {
				return err
			}
			runner := queue.NewRunner(env.db, env.router)
			runner.SetWorkers(cfg.Queue.Workers)
			runner.SetPollInterval(poll)
			runner.SetProgress(cmd.ErrOrStderr())
			g.Go(func() error { return runner.Run(ctx) })
		}

		return g.Wait()
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides config)")
}
