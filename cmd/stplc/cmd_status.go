package main

import (
	"github.com/spf13/cobra"

	"stlang/internal/tui"
)

var (
	statusNetwork string
	statusAddress string
	statusToken   string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Open the live status dashboard for a running resource",
	Long: `status connects to a resource's control protocol endpoint and
renders a terminal dashboard of its task table, fault state, and cycle
activity, with a small inspector for reading and forcing direct
addresses.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusNetwork, "network", "tcp", "control endpoint network (tcp or unix)")
	statusCmd.Flags().StringVarP(&statusAddress, "address", "a", "localhost:7131", "control endpoint address")
	statusCmd.Flags().StringVar(&statusToken, "token", "", "control endpoint auth token")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := tui.Dial(statusNetwork, statusAddress, statusToken)
	if err != nil {
		return err
	}
	defer client.Close()
	return tui.Run(client)
}
