package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <keyword>",
		Short: "Full-text search over stored messages",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			st := openStore(cfg)
			defer st.Close()

			keyword := strings.Join(args, " ")
			msgs, err := st.SearchMessages(keyword, limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
				os.Exit(1)
			}
			if len(msgs) == 0 {
				fmt.Println("no matches")
				return
			}
			for _, m := range msgs {
				group := m.GroupTitle
				if group == "" {
					group = fmt.Sprintf("%d", m.GroupID)
				}
				fmt.Printf("[%s] %s | %s: %s\n", m.Date, group, m.SenderName, m.TextOrEmpty())
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum results")
	return cmd
}
