package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create any missing tables",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		a.log.WithField("driver", a.cfg.DB.Driver).Info("schema up to date")
		return nil
	},
}

var sweepCmd = &cobra.Command{
	Use:       "sweep <low-stock|overdue>",
	Short:     "Run one alert sweep now and deliver its notifications",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"low-stock", "overdue"},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
		defer cancel()

		a, err := bootstrap(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		res, err := a.sweeper.Run(ctx, args[0])
		if err != nil {
			return err
		}
		a.disp.Flush(ctx)
		fmt.Printf("%s: checked %d, alerted %d", res.Kind, res.Checked, res.Alerted)
		if res.Skipped {
			fmt.Print(" (skipped, lock held elsewhere)")
		}
		fmt.Println()
		return nil
	},
}

var (
	seedName     string
	seedEmail    string
	seedPassword string
)

var seedAdminCmd = &cobra.Command{
	Use:   "seed-admin",
	Short: "Create the first superadmin account if it does not exist",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if seedPassword == "" {
			seedPassword = os.Getenv("STOREROOM_ADMIN_PASSWORD")
		}
		if seedEmail == "" || len(seedPassword) < 8 {
			return fmt.Errorf("--email and a password of at least 8 characters (--password or STOREROOM_ADMIN_PASSWORD) are required")
		}

		a, err := bootstrap(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		acct, created, err := a.svcs.Accounts.SeedAdmin(cmd.Context(), seedName, seedEmail, seedPassword)
		if err != nil {
			return err
		}
		if created {
			fmt.Printf("created superadmin %s (%s)\n", acct.Email, acct.ID)
		} else {
			fmt.Printf("%s already exists with role %s\n", acct.Email, acct.Role)
		}
		return nil
	},
}

func init() {
	seedAdminCmd.Flags().StringVar(&seedName, "name", "Administrator", "display name")
	seedAdminCmd.Flags().StringVar(&seedEmail, "email", "", "login email")
	seedAdminCmd.Flags().StringVar(&seedPassword, "password", "", "password (or STOREROOM_ADMIN_PASSWORD)")
}
