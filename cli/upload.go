package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"clipcast"
	"clipcast/internal/config"
	"clipcast/internal/metadata"
	"clipcast/internal/progress"
	"clipcast/orchestrator"
	"clipcast/platform"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <video>",
	Short: "Upload a video to every enabled platform",
	Long: `Upload a video to every enabled platform concurrently.

Per-platform fields are overridden with --set {platform}_{field}=value, e.g.
  --set youtube_privacy_status=unlisted
  --set youtube_category=27
  --set tiktok_privacy_level=MUTUAL_FOLLOW_FRIENDS
  --set instagram_share_to_feed=false
  --set twitter_tweet_text="Out now"`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	f := uploadCmd.Flags()
	f.StringP("title", "t", "", "video title")
	f.StringP("description", "d", "", "video description")
	f.String("tags", "", "comma-separated tags")
	f.StringSliceP("platform", "p", nil, "platform to publish to (repeatable, default all configured)")
	f.StringArray("set", nil, "per-platform override as {platform}_{field}=value (repeatable)")
	f.BoolP("yes", "y", false, "skip the confirmation prompt")
	f.Bool("plain", false, "log progress lines instead of the live dashboard")
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("video file: %w", err)
	}

	flags := cmd.Flags()
	title, _ := flags.GetString("title")
	description, _ := flags.GetString("description")
	tags, _ := flags.GetString("tags")
	names, _ := flags.GetStringSlice("platform")
	sets, _ := flags.GetStringArray("set")
	yes, _ := flags.GetBool("yes")
	plain, _ := flags.GetBool("plain")

	overrides, err := parseOverrides(sets)
	if err != nil {
		return err
	}
	md := metadata.Common{Title: title, Description: description, Tags: splitTags(tags)}

	cfg, err := config.Load(configPaths(cmd)...)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		names = cfg.Platforms
	}

	tokens := &tokenPrinter{}
	boot := &terminalBootstrapper{in: stdin, out: os.Stderr}
	adapters, err := clipcast.Adapters(cfg, names, platform.Deps{
		Bootstrapper: boot,
		Notifier:     tokens,
	})
	if len(adapters) == 0 {
		return err
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, mutedStyle.Render(err.Error()))
	}

	if !yes {
		fmt.Fprintln(os.Stderr, renderPlan(path, adapters, md, overrides))
		if !confirm("Proceed with upload?") {
			return errors.New("upload cancelled")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var results orchestrator.Results
	if plain || !stdoutIsTTY() {
		results, err = runPlain(ctx, cfg, adapters, path, md, overrides)
	} else {
		results, err = runDashboard(ctx, cfg, adapters, boot, path, md, overrides)
	}
	if err != nil {
		return err
	}

	fmt.Println(renderSummary(results))
	tokens.print(os.Stdout)
	if failed := results.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d platform(s) failed: %s", len(failed), strings.Join(failed, ", "))
	}
	return nil
}

func runPlain(ctx context.Context, cfg *config.Config, adapters []platform.Adapter, path string, md metadata.Common, overrides map[string]string) (orchestrator.Results, error) {
	logger := log.New(os.Stderr, "", log.LstdFlags)
	orc, err := orchestrator.New(adapters, orchestrator.Options{
		MaxWorkers: cfg.MaxWorkers,
		Logger:     logger,
		Reporter:   progress.NewLogReporter(logger),
	})
	if err != nil {
		return nil, err
	}
	return orc.Run(ctx, path, md, overrides)
}

// runDashboard runs the upload behind the live dashboard. Log lines are
// printed above it, and the terminal is handed back to the bootstrapper
// whenever a platform needs interactive consent.
func runDashboard(ctx context.Context, cfg *config.Config, adapters []platform.Adapter, boot *terminalBootstrapper, path string, md metadata.Common, overrides map[string]string) (orchestrator.Results, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	names := make([]string, len(adapters))
	for i, a := range adapters {
		names[i] = string(a.Name())
	}
	p := tea.NewProgram(newDashboard(names, cancel), tea.WithOutput(os.Stderr))

	logger := log.New(printlnWriter{p}, "", log.LstdFlags)
	prevOut := log.Writer()
	log.SetOutput(printlnWriter{p})
	defer log.SetOutput(prevOut)

	boot.setHooks(func() { _ = p.ReleaseTerminal() }, func() { _ = p.RestoreTerminal() })
	defer boot.setHooks(nil, nil)

	orc, err := orchestrator.New(adapters, orchestrator.Options{
		MaxWorkers: cfg.MaxWorkers,
		Logger:     logger,
		Reporter:   progress.ReporterFunc(func(s progress.Snapshot) { p.Send(snapshotMsg(s)) }),
	})
	if err != nil {
		return nil, err
	}

	var results orchestrator.Results
	var runErr error
	err = superviseRun(cancel,
		func() error {
			_, err := p.Run()
			return err
		},
		func() {
			results, runErr = orc.Run(ctx, path, md, overrides)
			p.Send(finishedMsg{})
		},
	)
	if err != nil {
		return results, fmt.Errorf("dashboard: %w", err)
	}
	return results, runErr
}

// superviseRun runs work in the background while ui runs in the
// foreground. It returns only after work has finished; a failing ui
// cancels work first.
func superviseRun(cancel context.CancelFunc, ui func() error, work func()) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		work()
	}()

	err := ui()
	if err != nil {
		cancel()
	}
	<-done
	return err
}

// printlnWriter prints log output above a running dashboard.
type printlnWriter struct{ p *tea.Program }

func (w printlnWriter) Write(b []byte) (int, error) {
	w.p.Println(strings.TrimRight(string(b), "\n"))
	return len(b), nil
}

// parseOverrides turns key=value pairs into an override map.
func parseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, kv := range pairs {
		k, v, ok := strings.Cut(kv, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, want {platform}_{field}=value", kv)
		}
		out[k] = v
	}
	return out, nil
}

func splitTags(s string) []string {
	var tags []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// tokenPrinter collects tokens minted during a run so they can be printed
// once the dashboard is gone.
type tokenPrinter struct {
	mu    sync.Mutex
	lines []string
}

func (t *tokenPrinter) TokenIssued(platform, envVar, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, fmt.Sprintf("%s=%s", envVar, value))
}

func (t *tokenPrinter) print(w io.Writer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.lines) == 0 {
		return
	}
	fmt.Fprintln(w, titleStyle.Render("New credentials, add these to your environment or .env:"))
	for _, l := range t.lines {
		fmt.Fprintln(w, l)
	}
}
