// Command crmctl drives the CRM campaign API from a terminal: preview an
// audience, create and send campaigns, and use the AI helpers.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"campaign-console/internal/config"
	"campaign-console/internal/crmapi"
)

type app struct {
	apiURL   string
	logLevel string
	timeout  time.Duration
	client   *crmapi.Client
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "crmctl",
		Short:         "Work with CRM campaigns from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}
	root.PersistentFlags().StringVar(&a.apiURL, "api-url", "", "CRM API base URL (default from config)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error, off")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 0, "request timeout (default from config)")

	root.AddCommand(
		newPreviewCmd(a),
		newCreateCmd(a),
		newParseCmd(a),
		newSuggestCmd(a),
		newTagsCmd(a),
		newHistoryCmd(a),
		newSendCmd(a),
		newWhoamiCmd(a),
	)
	return root
}

func (a *app) init() error {
	cfg := config.Load()
	level := cfg.Server.LogLevel
	if a.logLevel != "" {
		level = a.logLevel
	}
	if level == "" {
		level = "warn"
	}
	config.SetupLogging(level, true)

	baseURL := cfg.API.BaseURL
	if a.apiURL != "" {
		baseURL = a.apiURL
	}
	timeout := cfg.Timeout()
	if a.timeout > 0 {
		timeout = a.timeout
	}
	client, err := crmapi.New(baseURL,
		crmapi.WithTimeout(timeout),
		crmapi.WithSessionCookie(cfg.API.SessionCookieName, cfg.API.SessionCookie),
		crmapi.WithBearerToken(cfg.API.BearerToken),
	)
	if err != nil {
		return err
	}
	a.client = client
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
