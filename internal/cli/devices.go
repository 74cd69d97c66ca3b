package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var devicesJSON bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List available simulators",
	Long:  `List the simulators simctl knows about, newest runtime first.`,
	RunE:  runDevices,
}

func init() {
	devicesCmd.Flags().BoolVar(&devicesJSON, "json", false, "print the list as JSON")
	rootCmd.AddCommand(devicesCmd)
}

func runDevices(cmd *cobra.Command, args []string) error {
	app, err := newAppContext()
	if err != nil {
		return err
	}
	defer app.Close()

	devices, err := app.resolver().List(cmd.Context())
	if err != nil {
		return err
	}

	if devicesJSON {
		data, err := json.MarshalIndent(devices, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	if len(devices) == 0 {
		fmt.Println("No simulators found")
		return nil
	}

	fmt.Printf("%-28s %-12s %-12s %s\n", "NAME", "RUNTIME", "STATE", "UDID")
	for _, dev := range devices {
		state := dev.State
		if !dev.Available {
			state = "unavailable"
		}
		fmt.Printf("%-28s %-12s %-12s %s\n", dev.Name, dev.Runtime, state, dev.UDID)
	}

	return nil
}
