package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	// stdin is shared by the confirmation prompt and the bootstrapper.
	stdin = bufio.NewReader(os.Stdin)

	rootCmd = &cobra.Command{
		Use:   "clipcast",
		Short: "Publish one video to YouTube, Instagram, TikTok and Twitter",
		Long: `clipcast uploads a finished video to several platforms concurrently.

Credentials are read from the environment (or a .env file). Platforms whose
credentials are missing are skipped. Run "clipcast platforms" to see which
ones are ready and "clipcast auth <platform>" to mint a long-lived token.

Examples:
  # Publish everywhere that is configured
  clipcast upload final.mp4 --title "Launch day" --tags golang,release

  # Only YouTube and TikTok, private on both
  clipcast upload final.mp4 -p youtube -p tiktok \
    --set youtube_privacy_status=private --set tiktok_privacy_level=SELF_ONLY`,
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default clipcast.json or ~/.config/clipcast/clipcast.json)")
	rootCmd.AddCommand(uploadCmd, authCmd, platformsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configPaths returns the --config flag as Load arguments.
func configPaths(cmd *cobra.Command) []string {
	path, _ := cmd.Flags().GetString("config")
	if path = strings.TrimSpace(path); path == "" {
		return nil
	}
	return []string{path}
}

// confirm asks a yes/no question on stdin. Anything but y or yes is no.
func confirm(question string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", question)
	line, _ := stdin.ReadString('\n')
	return isYes(line)
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

func stdinIsTTY() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

func stdoutIsTTY() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
