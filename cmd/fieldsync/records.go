package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records",
	Short: "Read locally mirrored field data",
}

var recordsLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "List mirrored daily logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mirrorStore, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		logs, err := mirrorStore.DailyLogs(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMACHINE\tDATE\tHOURS\tFUEL L\tAREA HA\tOPERATOR\tSYNCED")
		for _, l := range logs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%.1f\t%.1f\t%.2f\t%s\t%s\n",
				l.ID, l.MachineID, l.Date, l.HoursMeter, l.FuelLiters,
				l.AreaHectares, l.Operator, syncedMark(l.Synced))
		}
		return w.Flush()
	},
}

var recordsMaintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "List mirrored maintenance records",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mirrorStore, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		recs, err := mirrorStore.MaintenanceRecords(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tMACHINE\tDATE\tKIND\tHOURS\tCOST\tPARTS\tSYNCED")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%.2f\t%s\t%s\n",
				r.ID, r.MachineID, r.Date, r.Kind, r.HoursMeter, r.Cost,
				strings.Join(r.Parts, ","), syncedMark(r.Synced))
		}
		return w.Flush()
	},
}

var recordsMachinesCmd = &cobra.Command{
	Use:   "machines",
	Short: "List mirrored machines",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, mirrorStore, err := openStores(cmd)
		if err != nil {
			return err
		}
		defer store.Close()

		machines, err := mirrorStore.Machines(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tMODEL\tSERIAL\tHOURS\tSTATUS\tSYNCED")
		for _, m := range machines {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.1f\t%s\t%s\n",
				m.ID, m.Name, m.Model, m.SerialNumber, m.HoursMeter,
				m.Status, syncedMark(m.Synced))
		}
		return w.Flush()
	},
}

func syncedMark(synced bool) string {
	if synced {
		return "yes"
	}
	return "no"
}

func init() {
	recordsCmd.AddCommand(recordsLogsCmd)
	recordsCmd.AddCommand(recordsMaintenanceCmd)
	recordsCmd.AddCommand(recordsMachinesCmd)
	rootCmd.AddCommand(recordsCmd)
}
