package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/tgmon/internal/ingest"
)

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Bulk-import recent history for every configured group",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			if errs := cfg.Validate(); len(errs) > 0 {
				for _, e := range errs {
					fmt.Fprintln(os.Stderr, "config:", e)
				}
				os.Exit(1)
			}
			st := openStore(cfg)
			defer st.Close()

			ensureDefaultTenant(st, cfg)
			tenants, err := st.GetTenants(true)
			if err != nil || len(tenants) == 0 {
				fmt.Fprintln(os.Stderr, "no active tenant; set telegram.phone in config")
				os.Exit(1)
			}
			tenant := tenants[0]

			sess := sessionFactory(cfg)(tenant)
			w := ingest.New(ingest.Config{
				TenantID: tenant.ID,
				Name:     tenant.Phone,
				Groups:   groupRefs(cfg),
			}, st, sess, nil, nil)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var total int
			var fetchErr error
			runErr := sess.Run(ctx, func(ctx context.Context) error {
				total, fetchErr = w.FetchHistory(ctx, limit)
				cancel()
				return nil
			})
			if fetchErr != nil {
				fmt.Fprintf(os.Stderr, "history fetch failed: %v\n", fetchErr)
				os.Exit(1)
			}
			if runErr != nil && ctx.Err() == nil {
				fmt.Fprintf(os.Stderr, "session error: %v\n", runErr)
				os.Exit(1)
			}
			fmt.Printf("imported %d messages\n", total)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 1000, "messages to fetch per group")
	return cmd
}
