package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"relaybot/internal/channel"
	"relaybot/internal/config"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks against both platforms",
		Long: `Verifies that relaybot's configuration, LINE webhook endpoint, Discord
credentials and listen port are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("relaybot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			var r doctorReport

			// 1. Config loads and validates
			cfg, err := config.Load(configPath)
			if err != nil {
				r.fail("Config", err.Error())
				return r.finish()
			}
			r.pass("Config", "valid")

			ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
			defer cancel()
			client := channel.SharedHTTPClient(10 * time.Second)

			// 2. LINE webhook endpoint
			line, err := channel.NewLineClient(cfg.Line.ChannelToken, client)
			if err != nil {
				r.fail("LINE client", err.Error())
			} else {
				checkLineEndpoint(ctx, &r, line, cfg.CallbackURL())
			}

			// 3. Discord credentials and channel access
			checkDiscord(&r, cfg, client)

			// 4. Listen port
			if err := checkPort(cfg.Server.Port); err != nil {
				r.warn("Listen port", fmt.Sprintf("port %d may be in use: %v", cfg.Server.Port, err))
			} else {
				r.pass("Listen port", fmt.Sprintf(":%d available", cfg.Server.Port))
			}

			// 5. Log file writable
			if cfg.Log.File != "" {
				if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
					r.warn("Log file", fmt.Sprintf("cannot create log directory: %v", err))
				} else {
					r.pass("Log file", cfg.Log.File)
				}
			}

			return r.finish()
		},
	}
}

func checkLineEndpoint(ctx context.Context, r *doctorReport, api channel.LineEndpointAPI, expected string) {
	current, err := api.WebhookEndpoint(ctx)
	switch {
	case errors.Is(err, channel.ErrEndpointNotFound):
		r.fail("LINE webhook", "no endpoint registered")
	case err != nil:
		r.fail("LINE webhook", err.Error())
	case !current.Active:
		r.fail("LINE webhook", "webhook is switched off in the LINE Developers console")
	case current.URL != expected:
		r.warn("LINE webhook", fmt.Sprintf("points at %s; serve will update it to %s", current.URL, expected))
	default:
		r.pass("LINE webhook", expected)
	}
}

func checkDiscord(r *doctorReport, cfg *config.Config, client *http.Client) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		r.fail("Discord token", err.Error())
		return
	}
	session.Client = client

	me, err := session.User("@me")
	if err != nil {
		r.fail("Discord token", err.Error())
		return
	}
	r.pass("Discord token", "authenticated as "+me.Username)

	ch, err := session.Channel(cfg.Discord.ChannelID)
	if err != nil {
		r.fail("Discord channel", err.Error())
		return
	}
	r.pass("Discord channel", "#"+ch.Name)
}

func checkPort(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

// doctorReport tallies check results and prints them as they come in.
type doctorReport struct {
	passed, warned, failed int
}

func (r *doctorReport) pass(check, detail string) {
	r.passed++
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func (r *doctorReport) fail(check, detail string) {
	r.failed++
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func (r *doctorReport) warn(check, detail string) {
	r.warned++
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}

func (r *doctorReport) finish() error {
	fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", r.passed, r.warned, r.failed)
	if r.failed > 0 {
		fmt.Printf("\nPlease fix the failed checks before running relaybot.\n")
		return fmt.Errorf("%d check(s) failed", r.failed)
	}
	if r.warned > 0 {
		fmt.Printf("\nrelaybot should work but consider fixing the warnings.\n")
	} else {
		fmt.Printf("\nAll checks passed! relaybot is ready to run.\n")
	}
	return nil
}
