package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/chanbot/internal/client"
	"github.com/alfredjeanlab/chanbot/internal/server"
)

var healthCmd = &cobra.Command{
	Use:     "health",
	Short:   "Check the health of a running bot",
	GroupID: "system",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		grpcAddr, _ := cmd.Flags().GetString("grpc")

		var (
			status string
			want   = "ok"
			err    error
		)
		if grpcAddr != "" {
			want = "SERVING"
			hc, cerr := client.NewGRPCHealthClient(grpcAddr)
			if cerr != nil {
				return fmt.Errorf("connecting to %s: %w", grpcAddr, cerr)
			}
			defer hc.Close()
			status, err = hc.Health(cmd.Context(), server.ServiceName)
		} else {
			status, err = adminClient.Health(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("checking health: %w", err)
		}

		if jsonOutput {
			printJSON(map[string]string{"status": status})
		} else {
			fmt.Printf("Health: %s\n", status)
		}

		if status != want {
			return fmt.Errorf("unhealthy: %s", status)
		}
		return nil
	},
}

func init() {
	healthCmd.Flags().String("grpc", "", "query the gRPC health service at this address instead")
}
