package main

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"fingerid/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the running daemon's status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				status, err := client.Status()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Daemon: %s (pid %d)\n", runningLabel(status.Running), status.PID)
				fmt.Fprintf(out, "Database: %s (schema %s)\n", status.Database, status.SchemaVersion)
				fmt.Fprintf(out, "Enrollments: %d\n", status.Enrollments)
				fmt.Fprintf(out, "Vein binarization: %s\n", yesNo(status.BinarizeActive))

				if len(status.Identities) > 0 {
					states := make([]string, 0, len(status.Identities))
					for state := range status.Identities {
						states = append(states, state)
					}
					sort.Strings(states)
					rows := make([][]string, 0, len(states))
					for _, state := range states {
						rows = append(rows, []string{label(state), strconv.Itoa(status.Identities[state])})
					}
					fmt.Fprintln(out, renderTable(out, []string{"Status", "Accounts"}, rows, []columnAlignment{alignLeft, alignRight}))
				}

				if len(status.Dependencies) > 0 {
					rows := make([][]string, 0, len(status.Dependencies))
					for _, dep := range status.Dependencies {
						detail := dep.Command
						if !dep.Available {
							detail = dep.Detail
						}
						rows = append(rows, []string{dep.Name, yesNo(dep.Available), detail})
					}
					fmt.Fprintln(out, renderTable(out, []string{"Dependency", "Available", "Detail"}, rows, nil))
				}
				return nil
			})
		},
	}
}

func newStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Stop()
				if err != nil {
					return err
				}
				if !resp.Stopped {
					return fmt.Errorf("stop refused: %s", resp.Message)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopping")
				return nil
			})
		},
	}
}

func runningLabel(running bool) string {
	if running {
		return "running"
	}
	return "stopped"
}
