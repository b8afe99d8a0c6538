// Command chapel is a terminal client for the chapel community backend.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/chapel-client/internal/api"
	"github.com/iliyamo/chapel-client/internal/config"
	"github.com/iliyamo/chapel-client/internal/countdown"
	"github.com/iliyamo/chapel-client/internal/credential"
	"github.com/iliyamo/chapel-client/internal/logging"
	"github.com/iliyamo/chapel-client/internal/queue"
	"github.com/iliyamo/chapel-client/internal/resources"
	"github.com/iliyamo/chapel-client/internal/session"
	"github.com/iliyamo/chapel-client/internal/storage"
)

var (
	envFile string
	verbose bool

	a *app
)

// app is the client stack shared by every command.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	store  storage.Storage
	holder *credential.Holder
	state  *session.State
	client *api.Client
	boot   *session.Bootstrapper
	auth   *session.Auth
	pub    queue.Publisher
	ticker *countdown.Ticker
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	log, err := logging.New(cfg.Env, level)
	if err != nil {
		return nil, err
	}
	st, err := storage.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	x := &app{cfg: cfg, log: log, store: st, state: session.NewState()}
	x.holder = credential.New(st, log.Named("credential"))
	x.client = api.New(cfg.APIURL, x.holder,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithGate(x.state),
		api.WithRateLimit(cfg.RateLimit),
		api.WithLogger(log.Named("api")),
	)
	x.boot = session.NewBootstrapper(x.holder, x.client, x.state, session.WithLogger(log.Named("session")))
	x.auth = session.NewAuth(x.client, x.holder, log.Named("auth"))
	x.ticker = countdown.New(countdown.WithLogger(log.Named("countdown")))
	x.pub = queue.Nop{}
	if cfg.EventsEnabled {
		x.pub = queue.NewAMQP(cfg.AMQPURL, log.Named("queue"))
	}
	return x, nil
}

func (x *app) deps() resources.Deps {
	return resources.Deps{
		Client:    x.client,
		Session:   x.state,
		Holder:    x.holder,
		Publisher: x.pub,
		Log:       x.log.Named("resources"),
	}
}

// signedIn restores the stored session and fails unless it is valid.
func (x *app) signedIn(ctx context.Context) (session.Snapshot, error) {
	snap, err := x.restore(ctx)
	if err != nil {
		return snap, err
	}
	if snap.Status != session.Authenticated {
		return snap, fmt.Errorf("not logged in, run `chapel login` first")
	}
	return snap, nil
}

// restore runs the startup session check and reports it.  A failed check
// still yields a settled state; the error is only logged.
func (x *app) restore(ctx context.Context) (session.Snapshot, error) {
	snap, err := x.boot.Run(ctx)
	if err != nil {
		return snap, err
	}
	if berr := x.boot.Err(); berr != nil {
		x.log.Debug("stored session rejected", zap.Error(berr))
	}
	x.sessionEvent(ctx, snap)
	return snap, nil
}

func (x *app) sessionEvent(ctx context.Context, snap session.Snapshot) {
	ev := queue.NewEvent("session", queue.ActionSession)
	ev.ID = snap.Status.String()
	if snap.User != nil {
		ev.UserID = snap.User.ID
	}
	if err := x.pub.Publish(ctx, ev); err != nil {
		x.log.Debug("session event not published", zap.Error(err))
	}
}

func (x *app) close() {
	if err := x.store.Close(); err != nil {
		x.log.Warn("close storage", zap.Error(err))
	}
	_ = x.log.Sync()
}

var rootCmd = &cobra.Command{
	Use:           "chapel",
	Short:         "Chapel community client",
	Long:          "chapel keeps you signed in to the chapel backend and lets you vote,\njoin departments and follow announcements, prayer requests and events.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		a, err = newApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("startup: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if a != nil {
		a.close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", api.Message(err))
		stop()
		os.Exit(1)
	}
}
