package main

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize with the configured sync server",
	Long: `Synchronize the local task database with other replicas.

The transport comes from configuration (tcdb.yaml or TCDB_* environment
variables):

  sync:
    # exactly one of the following
    server_dir: /path/to/shared/dir
    url: https://sync.example.com
    gcp_bucket: my-bucket
    aws_bucket: my-bucket

  # for url, gcp_bucket and aws_bucket
  client_id: 4a73f9a1-...        # url only
  encryption_secret: "..."
  gcp_credential_path: /path/to/key.json
  aws_region: eu-central-1
  aws_endpoint: http://localhost:9000`,
	Run: func(cmd *cobra.Command, args []string) {
		rep, err := openReplica()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening task database: %v\n", err)
			os.Exit(1)
		}
		defer rep.Close()

		avoidSnapshots, _ := cmd.Flags().GetBool("avoid-snapshots")
		ctx := context.Background()
		secret := viper.GetString("sync.encryption_secret")

		switch {
		case viper.GetString("sync.server_dir") != "":
			err = rep.SyncToLocal(ctx, viper.GetString("sync.server_dir"), avoidSnapshots)
		case viper.GetString("sync.url") != "":
			var clientID uuid.UUID
			clientID, err = uuid.Parse(viper.GetString("sync.client_id"))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: sync.client_id is not a UUID: %v\n", err)
				os.Exit(1)
			}
			err = rep.SyncToRemote(ctx, viper.GetString("sync.url"), clientID, secret, avoidSnapshots)
		case viper.GetString("sync.gcp_bucket") != "":
			err = rep.SyncToGCP(ctx, viper.GetString("sync.gcp_bucket"),
				viper.GetString("sync.gcp_credential_path"), secret, avoidSnapshots)
		case viper.GetString("sync.aws_bucket") != "":
			err = rep.SyncToAWS(ctx, viper.GetString("sync.aws_bucket"),
				viper.GetString("sync.aws_region"), viper.GetString("sync.aws_endpoint"),
				secret, avoidSnapshots)
		default:
			fmt.Fprintf(os.Stderr, "Error: no sync transport configured\n")
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error syncing: %v\n", err)
			os.Exit(1)
		}

		n, err := rep.NumLocalOperations()
		if err == nil && n == 0 {
			fmt.Println("Synchronized; all local operations uploaded")
		} else {
			fmt.Println("Synchronized")
		}
	},
}

func init() {
	syncCmd.Flags().Bool("avoid-snapshots", false, "Skip uploading snapshots even when the server asks")
	rootCmd.AddCommand(syncCmd)
}
