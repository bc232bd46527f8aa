package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/carrysync/carry/pkg/client"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Push pending local operations to a remote server",
	RunE:  runPush,
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull and reconcile operations from a remote server",
	RunE:  runPull,
}

func init() {
	pushCmd.Flags().String("server", "http://localhost:8080", "Server address")
	addLocalStoreFlags(pushCmd)

	pullCmd.Flags().String("server", "http://localhost:8080", "Server address")
	pullCmd.Flags().Int("limit", 100, "Max operations to pull per request")
	addLocalStoreFlags(pullCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("server")

	ls, err := openLocalStore(cmd)
	if err != nil {
		return err
	}

	c := client.NewClient(addr, ls.store, client.Options{})
	result, err := c.Push(context.Background())
	closeErr := ls.close()
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if closeErr != nil {
		return closeErr
	}

	fmt.Printf("pushed: %d accepted, %d rejected (server clock %d)\n", len(result.Accepted), len(result.Rejected), result.ServerClock)
	return nil
}

func runPull(cmd *cobra.Command, args []string) error {
	addr, _ := cmd.Flags().GetString("server")
	limit, _ := cmd.Flags().GetInt("limit")

	ls, err := openLocalStore(cmd)
	if err != nil {
		return err
	}

	c := client.NewClient(addr, ls.store, client.Options{})
	result, err := c.Pull(context.Background(), limit)
	closeErr := ls.close()
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	if closeErr != nil {
		return closeErr
	}

	fmt.Printf("pulled: %d applied, %d conflicts resolved, %d skipped (no matching record)\n",
		len(result.AppliedRemote), len(result.Conflicts), len(result.SkippedOrphan))
	return nil
}
