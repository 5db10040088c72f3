package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func statsCmd() *cobra.Command {
	var hours int
	var heatmap bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show message statistics",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			st := openStore(cfg)
			defer st.Close()

			stats, err := st.GetStats()
			if err != nil {
				fmt.Fprintf(os.Stderr, "stats failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("messages: %d total, %d today\n", stats.TotalMessages, stats.TodayMessages)
			fmt.Printf("active users today: %d\n", stats.ActiveUsers)
			fmt.Printf("groups: %d, links: %d\n", stats.TotalGroups, stats.TotalLinks)
			if len(stats.Groups) > 0 {
				fmt.Println("\nper group:")
				for _, g := range stats.Groups {
					title := g.Title
					if title == "" {
						title = fmt.Sprintf("%d", g.GroupID)
					}
					fmt.Printf("  %-32s %d\n", title, g.MessageCount)
				}
			}

			senders, err := st.TopSenders(nil, hours, 10)
			if err == nil && len(senders) > 0 {
				fmt.Printf("\ntop senders (last %dh):\n", hours)
				for _, s := range senders {
					fmt.Printf("  %-24s %d\n", s.SenderName, s.Count)
				}
			}

			cmp, err := st.CompareTodayYesterday()
			if err == nil {
				fmt.Printf("\ntoday %d vs yesterday %d\n", cmp.Today, cmp.Yesterday)
			}

			if heatmap {
				hm, err := st.ActivityHeatmap(7)
				if err != nil {
					fmt.Fprintf(os.Stderr, "heatmap failed: %v\n", err)
					os.Exit(1)
				}
				days := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
				fmt.Println("\nactivity heatmap (last 7 days, UTC):")
				for wd, row := range hm {
					fmt.Printf("  %s", days[wd])
					for _, n := range row {
						fmt.Printf(" %4d", n)
					}
					fmt.Println()
				}
			}
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "window for top senders")
	cmd.Flags().BoolVar(&heatmap, "heatmap", false, "print the weekday/hour heatmap")
	return cmd
}
