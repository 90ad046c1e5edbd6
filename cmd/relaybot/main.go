package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relaybot/internal/channel"
	"relaybot/internal/config"
	"relaybot/internal/domain"
	"relaybot/internal/metrics"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

var (
	version    = "0.1.0"
	configPath string // overridable via --config flag
)

func main() {
	root := &cobra.Command{
		Use:           "relaybot",
		Short:         "relaybot: Discord <-> LINE group relay",
		Long:          "relaybot forwards text and media between one Discord channel and one LINE group, in both directions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (environment variables override it)")

	root.AddCommand(serveCmd())
	root.AddCommand(reconcileCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start relaying (Discord gateway + LINE callback server)",
		Long:  "Reconciles the LINE webhook endpoint, provisions the Discord webhook, then relays until interrupted.",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, closer := newLogger(cfg.Log)
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.New(reg)

	httpClient := channel.SharedHTTPClient(cfg.Relay.FetchTimeout)
	fetcher := channel.NewHTTPFetcher(httpClient, rec)

	lineClient, err := channel.NewLineClient(cfg.Line.ChannelToken, httpClient)
	if err != nil {
		return err
	}
	state, err := channel.ReconcileEndpoint(ctx, lineClient, cfg.CallbackURL(), logger)
	if err != nil {
		return err
	}
	logger.Info("line webhook endpoint checked", "state", state.String())

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("discord session: %w", err)
	}
	session.Client = httpClient
	hook, err := channel.ProvisionWebhook(ctx, session, cfg.Discord.ChannelID, cfg.Discord.WebhookName, logger)
	if err != nil {
		return err
	}

	discordSender := channel.NewDiscordSender(channel.DiscordSenderConfig{
		Executor: session,
		Webhook:  hook,
		Fetcher:  fetcher,
		Metrics:  rec,
		Logger:   logger,
	})
	lineSender := channel.NewLineSender(channel.LineSenderConfig{
		Client:  lineClient,
		GroupID: cfg.Line.GroupID,
		Metrics: rec,
		Logger:  logger,
	})

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	server := channel.NewCallbackServer(channel.CallbackServerConfig{
		Port:        cfg.Server.Port,
		Path:        cfg.Line.CallbackPath,
		Secret:      cfg.Line.ChannelSecret,
		MetricsPath: metricsPath,
		Metrics:     rec,
		Logger:      logger,
	})

	listeners := []domain.Listener{
		channel.NewDiscordListener(channel.DiscordListenerConfig{
			Session:   session,
			ChannelID: cfg.Discord.ChannelID,
			Sender:    lineSender,
			Fetcher:   fetcher,
			Timeout:   cfg.Relay.EventTimeout,
			Metrics:   rec,
			Logger:    logger,
		}),
		channel.NewLineListener(channel.LineListenerConfig{
			Server:        server,
			Client:        lineClient,
			Blob:          lineClient,
			Sender:        discordSender,
			GroupID:       cfg.Line.GroupID,
			DefaultAvatar: cfg.Line.DefaultAvatarURL,
			Timeout:       cfg.Relay.EventTimeout,
			Metrics:       rec,
			Logger:        logger,
		}),
	}

	logger.Info("relay started. Press Ctrl+C to stop.", "version", version)

	g, gctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l // per-iteration copy; module targets go1.21 loop semantics
		g.Go(func() error {
			if err := l.Start(gctx); err != nil {
				return fmt.Errorf("%s listener: %w", l.Name(), err)
			}
			return nil
		})
	}
	err = g.Wait()
	logger.Info("relay stopped")
	return err
}

func reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Point the LINE webhook endpoint at this deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, closer := newLogger(cfg.Log)
			defer closer.Close()

			client, err := channel.NewLineClient(cfg.Line.ChannelToken, channel.SharedHTTPClient(cfg.Relay.FetchTimeout))
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			state, err := channel.ReconcileEndpoint(ctx, client, cfg.CallbackURL(), logger)
			fmt.Printf("%s: %s\n", cfg.CallbackURL(), state)
			return err
		},
	}
}

func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, err := yaml.Marshal(config.Sanitize(cfg))
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("relaybot", version)
		},
	}
}
