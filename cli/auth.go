package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"clipcast/internal/config"
	"clipcast/platform"
)

var authCmd = &cobra.Command{
	Use:   "auth <platform>",
	Short: "Run the consent flow and print a long-lived token",
	Long: `Run only the interactive authorization flow for one platform and print
the environment variable line to persist. Nothing is uploaded.

  youtube    prints GOOGLE_REFRESH_TOKEN
  tiktok     prints TIKTOK_REFRESH_TOKEN
  instagram  prints FACEBOOK_ACCESS_TOKEN

The platform's client credentials must already be configured. Twitter uses
OAuth 1.0a user tokens from the developer portal and has nothing to mint.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(platform.YouTube), string(platform.TikTok), string(platform.Instagram)},
	RunE:      runAuth,
}

var platformsCmd = &cobra.Command{
	Use:   "platforms",
	Short: "List platforms and whether their credentials are configured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPaths(cmd)...)
		if err != nil {
			return err
		}
		for _, name := range platform.Names() {
			label := fmt.Sprintf("%-*s", nameWidth, name.DisplayName())
			if err := credentialStatus(cfg, name); err != nil {
				fmt.Printf("%s %s %s\n", errorStyle.Render("✗"), label, mutedStyle.Render(err.Error()))
				continue
			}
			fmt.Printf("%s %s ready\n", okStyle.Render("✓"), label)
		}
		return nil
	},
}

func runAuth(cmd *cobra.Command, args []string) error {
	name := platform.Name(strings.ToLower(strings.TrimSpace(args[0])))
	cfg, err := config.Load(configPaths(cmd)...)
	if err != nil {
		return err
	}
	if err := forgetToken(cfg, name); err != nil {
		return err
	}

	tokens := &tokenPrinter{}
	logger := log.New(os.Stderr, "", log.LstdFlags)
	adapters, errs := platform.Build([]string{string(name)}, platform.Deps{
		Config:       cfg,
		Bootstrapper: &terminalBootstrapper{in: stdin, out: os.Stderr},
		Notifier:     tokens,
		Logger:       logger,
	})
	if err := errs[name]; err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := adapters[0]
	s := platform.NewSession(name, platform.Job{ID: "auth"}, nil, nil, logger)
	if err := a.Authenticate(ctx, s); err != nil {
		return fmt.Errorf("%s authorization: %w", name.DisplayName(), err)
	}
	tokens.print(os.Stdout)
	return nil
}

// forgetToken clears the stored long-lived token so Authenticate has to run
// the consent flow.
func forgetToken(cfg *config.Config, name platform.Name) error {
	switch name {
	case platform.YouTube:
		cfg.Credentials.YouTube.RefreshToken = ""
	case platform.TikTok:
		cfg.Credentials.TikTok.RefreshToken = ""
	case platform.Instagram:
		cfg.Credentials.Instagram.AccessToken = ""
	case platform.Twitter:
		return errors.New("twitter uses OAuth 1.0a user tokens from the developer portal; nothing to mint")
	default:
		return fmt.Errorf("%w: unknown platform %q", platform.ErrConfiguration, name)
	}
	return nil
}

// credentialStatus reports what is missing for name, or nil when ready.
func credentialStatus(cfg *config.Config, name platform.Name) error {
	c := cfg.Credentials
	var err error
	switch name {
	case platform.YouTube:
		err = c.YouTube.Check()
	case platform.TikTok:
		err = c.TikTok.Check()
	case platform.Instagram:
		err = c.Instagram.Check()
	case platform.Twitter:
		err = c.Twitter.Check()
	default:
		return fmt.Errorf("unknown platform %q", name)
	}
	var missing *config.MissingError
	if errors.As(err, &missing) {
		return fmt.Errorf("missing %v", missing.Vars)
	}
	if err == nil && !hasToken(c, name) {
		return errors.New(`credentials set, no token yet (run "clipcast auth ` + string(name) + `")`)
	}
	return err
}

func hasToken(c config.Credentials, name platform.Name) bool {
	switch name {
	case platform.YouTube:
		return c.YouTube.RefreshToken != ""
	case platform.TikTok:
		return c.TikTok.RefreshToken != ""
	case platform.Instagram:
		return c.Instagram.AccessToken != ""
	}
	return true
}
