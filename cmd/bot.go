package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tgmon/internal/bot"
	"github.com/nextlevelbuilder/tgmon/internal/pool"
	"github.com/nextlevelbuilder/tgmon/internal/summarize"
)

// botCmd runs the control bot without ingestion sessions, for answering
// queries against an existing database.
func botCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run only the owner control bot",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			if cfg.Bot.Token == "" || cfg.Bot.OwnerID == 0 {
				fmt.Fprintln(os.Stderr, "bot.token and bot.owner_id must be configured")
				os.Exit(1)
			}
			st := openStore(cfg)
			defer st.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			llm := summarize.NewLLMClient(cfg.AI.APIURL, cfg.AI.Model, cfg.AI.MaxTokens,
				cfg.AI.EffectiveKeys(), cfg.AI.MaxConcurrentPerKey)
			sum := summarize.New(st, llm, cfg.AI.Model, cfg.AI.SummarySystemPrompt)
			jobs := summarize.NewJobRunner(st, sum)

			p := pool.New(st, sessionFactory(cfg), groupRefs(cfg), cfg.Monitoring.KeepDays, nil)

			b, err := bot.New(cfg.Bot.Token, cfg.Bot.OwnerID, st, p, jobs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "control bot init failed: %v\n", err)
				os.Exit(1)
			}
			if err := b.Run(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "control bot stopped: %v\n", err)
				os.Exit(1)
			}
		},
	}
}
