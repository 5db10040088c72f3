package cmd

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tgmon/internal/store"
)

func exportCmd() *cobra.Command {
	var (
		hours   int
		groupID int64
		limit   int
		out     string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export messages as CSV",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			st := openStore(cfg)
			defer st.Close()

			now := time.Now()
			since := store.ISOTime(now.Add(-time.Duration(hours) * time.Hour))
			until := store.ISOTime(now)
			var gid *int64
			if cmd.Flags().Changed("group") {
				gid = &groupID
			}
			rows, err := st.ExportMessages(since, until, gid, limit)
			if err != nil {
				fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
				os.Exit(1)
			}

			dst := os.Stdout
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					fmt.Fprintf(os.Stderr, "create %s: %v\n", out, err)
					os.Exit(1)
				}
				defer f.Close()
				dst = f
			}

			w := csv.NewWriter(dst)
			if err := w.Write([]string{"date", "group", "sender", "text", "media_type"}); err != nil {
				fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
				os.Exit(1)
			}
			for _, r := range rows {
				if err := w.Write([]string{r.Date, r.GroupTitle, r.SenderName, r.Text, r.MediaType}); err != nil {
					fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
					os.Exit(1)
				}
			}
			w.Flush()
			if err := w.Error(); err != nil {
				fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
				os.Exit(1)
			}
			if out != "" {
				fmt.Printf("exported %d rows to %s\n", len(rows), out)
			}
		},
	}
	cmd.Flags().IntVar(&hours, "hours", 24, "window size in hours")
	cmd.Flags().Int64Var(&groupID, "group", 0, "restrict to one group id")
	cmd.Flags().IntVar(&limit, "limit", 100000, "maximum rows")
	cmd.Flags().StringVar(&out, "out", "", "output file (default: stdout)")
	return cmd
}
