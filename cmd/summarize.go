package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tgmon/internal/summarize"
)

func summarizeCmd() *cobra.Command {
	var (
		hours   int
		groupID int64
		all     bool
		save    bool
		daily   bool
	)
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Generate an LLM summary of recent messages",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			st := openStore(cfg)
			defer st.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			llm := summarize.NewLLMClient(cfg.AI.APIURL, cfg.AI.Model, cfg.AI.MaxTokens,
				cfg.AI.EffectiveKeys(), cfg.AI.MaxConcurrentPerKey)
			sum := summarize.New(st, llm, cfg.AI.Model, cfg.AI.SummarySystemPrompt)

			progress := func(stage string, current, total int) {
				fmt.Fprintf(os.Stderr, "[%d/%d] %s\n", current, total, stage)
			}

			var report string
			switch {
			case daily:
				report = sum.DailyReport(ctx)
			case all:
				report = sum.SummarizeAllGroups(ctx, hours, save, progress)
			default:
				opts := summarize.Options{Hours: hours, Save: save, Progress: progress}
				if cmd.Flags().Changed("group") {
					opts.GroupID = &groupID
				}
				report = sum.Summarize(ctx, opts)
			}
			fmt.Println(report)
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "window size in hours")
	cmd.Flags().Int64Var(&groupID, "group", 0, "restrict to one group id")
	cmd.Flags().BoolVar(&all, "all", false, "summarize every group separately, then merge")
	cmd.Flags().BoolVar(&save, "save", false, "persist the summary")
	cmd.Flags().BoolVar(&daily, "daily", false, "produce the daily report")
	return cmd
}
