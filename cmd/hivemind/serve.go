package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"hivemind/internal/channel"
	"hivemind/internal/config"
	"hivemind/internal/logging"
	"hivemind/internal/protocol"
)

// serveCmd runs the hive headless until interrupted
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the hive headless until interrupted",
	Long: `Builds the orchestrator and every configured specialist on the in-memory
hub, posts their readiness messages, and runs until SIGINT or SIGTERM.

Lines read from stdin are posted as requests mentioning the orchestrator, so
the coordination protocol can be driven from a pipe or by hand:

  echo "what's the weather in Boston" | hivemind serve

Channel traffic is mirrored to the process log. Categorized protocol logs
land under <workspace>/.hivemind/logs when logging.debug_mode is enabled.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := logging.Initialize(cfg.LogsDir(), logging.Options{
		Debug:      cfg.Logging.DebugMode,
		Level:      cfg.Logging.GetLevel(),
		JSONFormat: cfg.Logging.Format == "json",
		Categories: categorySet(cfg.Logging.Categories),
	}); err != nil {
		return fmt.Errorf("failed to initialize protocol logs: %w", err)
	}
	defer logging.CloseAll()

	st, err := buildStack(ctx, cfg)
	if err != nil {
		return err
	}

	// Subscribe before the agents attach so their readiness posts are seen.
	human := st.hub.Client(localUserID, "")
	unsubscribe := human.Subscribe(func(msg channel.Message) {
		logger.Info("message",
			zap.String("channel", msg.ChannelID),
			zap.String("user", msg.UserID),
			zap.String("thread", msg.ThreadTS),
			zap.String("text", msg.Text),
		)
	})
	defer unsubscribe()

	stop, err := st.Attach(ctx)
	if err != nil {
		return err
	}
	defer stop()

	logger.Info("hive online",
		zap.String("coordination_channel", cfg.Coordination.Channel),
		zap.Int("specialists", st.registry.Len()),
		zap.String("roster", st.registry.MentionAll()),
		zap.Bool("llm", st.scheduler != nil),
	)

	watcher, err := config.NewWatcher(cfgPath)
	if err != nil {
		logger.Warn("config watcher unavailable", zap.Error(err))
	} else {
		watcher.Start(ctx)
		defer watcher.Stop()
		go func() {
			for path := range watcher.Changes() {
				logger.Info("configuration changed on disk; restart to apply",
					zap.String("path", path))
			}
		}()
	}

	go readRequests(ctx, human, cfg.Orchestrator.UserID)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// readRequests turns stdin lines into orchestrator mentions until EOF or
// shutdown. Blank lines are skipped.
func readRequests(ctx context.Context, human *channel.Client, orchestratorID string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		request := protocol.Mention(orchestratorID) + " " + text
		if _, err := human.Post(ctx, consoleChannelID, request, ""); err != nil {
			logger.Warn("failed to post request", zap.Error(err))
			return
		}
	}
}

func categorySet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
