package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var psLimit int

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List engine runs",
	Long:  `List recorded engine runs, newest first.`,
	RunE:  runPS,
}

func init() {
	psCmd.Flags().IntVarP(&psLimit, "limit", "n", 10, "number of runs to show, 0 for all")
	rootCmd.AddCommand(psCmd)
}

func runPS(cmd *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	defer app.Close()

	records, err := app.reg.List(psLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded")
		return nil
	}

	fmt.Printf("%-8s %-38s %-7s %-8s %-7s %s\n", "RUN", "DEVICE", "PID", "STATUS", "INDEX", "STARTED")
	for _, rec := range records {
		fmt.Printf("%-8s %-38s %-7d %-8s %-7d %s\n",
			rec.RunID, rec.Target, rec.PID, rec.Status, rec.CommandIndex,
			rec.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}
