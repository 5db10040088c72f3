package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func tenantsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tenants",
		Short: "Manage monitored account tenants",
	}
	cmd.AddCommand(tenantsListCmd(), tenantsAddCmd(), tenantsEnableCmd(true), tenantsEnableCmd(false))
	return cmd
}

func tenantsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered tenants",
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			st := openStore(cfg)
			defer st.Close()

			tenants, err := st.GetTenants(false)
			if err != nil {
				fmt.Fprintf(os.Stderr, "tenant list failed: %v\n", err)
				os.Exit(1)
			}
			if len(tenants) == 0 {
				fmt.Println("no tenants registered")
				return
			}
			for _, t := range tenants {
				state := "active"
				if !t.Active {
					state = "disabled"
				}
				fmt.Printf("%d\t%s\t%s\t%s\n", t.ID, t.Phone, t.SessionName, state)
			}
		},
	}
}

func tenantsAddCmd() *cobra.Command {
	var sessionName, apiHash string
	var apiID int
	cmd := &cobra.Command{
		Use:   "add <phone>",
		Short: "Register a tenant account",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			st := openStore(cfg)
			defer st.Close()

			name := sessionName
			if name == "" {
				name = args[0]
			}
			id, err := st.AddTenant(args[0], name, apiID, apiHash)
			if err != nil {
				fmt.Fprintf(os.Stderr, "tenant add failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("tenant %d registered (%s)\n", id, args[0])
		},
	}
	cmd.Flags().StringVar(&sessionName, "session", "", "session file name (default: the phone number)")
	cmd.Flags().IntVar(&apiID, "api-id", 0, "per-account api id (default: the shared config value)")
	cmd.Flags().StringVar(&apiHash, "api-hash", "", "per-account api hash (default: the shared config value)")
	return cmd
}

func tenantsEnableCmd(enable bool) *cobra.Command {
	use, short := "enable <id>", "Mark a tenant active"
	if !enable {
		use, short = "disable <id>", "Mark a tenant inactive"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			setupLogging()
			cfg := loadConfig()
			st := openStore(cfg)
			defer st.Close()

			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				fmt.Fprintf(os.Stderr, "bad tenant id %q\n", args[0])
				os.Exit(1)
			}
			if err := st.SetTenantActive(id, enable); err != nil {
				fmt.Fprintf(os.Stderr, "tenant update failed: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("ok")
		},
	}
}
