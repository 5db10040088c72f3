package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func linksCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "links",
		Short: "List shared links aggregated by URL",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			st := openStore(cfg)
			defer st.Close()

			links, err := st.GetLinksAggregated(limit, cfg.Filtering.BlockDomains)
			if err != nil {
				fmt.Fprintf(os.Stderr, "links failed: %v\n", err)
				os.Exit(1)
			}
			if len(links) == 0 {
				fmt.Println("no links recorded")
				return
			}
			for _, l := range links {
				fmt.Printf("%s (%s)\n  shared %d times in %d groups, last %s\n",
					l.URL, l.Domain, l.TotalCount, l.GroupCount, l.LastSeen)
			}
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum links")
	return cmd
}
