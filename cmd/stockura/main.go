// Command stockura runs the scheduling core's long-running processes:
// the Scheduler (beat), the Worker Pool (worker), and the schema
// migrator (migrate).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := &cobra.Command{
		Use:   "stockura",
		Short: "Scheduling core for scheduled external-data ingestion tasks",
	}
	root.AddCommand(beatCmd())
	root.AddCommand(workerCmd())
	root.AddCommand(migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
