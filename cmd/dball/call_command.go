package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"dball/internal/ipc"
	"dball/internal/wire"
)

func newCallCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "call <operation> [args...]",
		Short: "Invoke a daemon operation and print the raw response data",
		Long: "Invoke any daemon operation by name. Names are case-insensitive.\n" +
			"UpdateRecordsByPeriodList takes periods (space or comma separated);\n" +
			"UpdateRecordsForYear takes a single year.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := wire.ParseOperation(args[0], args[1:])
			if err != nil {
				return err
			}
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				resp, err := client.Request(cmd.Context(), op)
				if err != nil {
					return err
				}
				if !resp.Success {
					return &ipc.RemoteError{Op: op.Name(), Message: resp.Error}
				}
				if len(resp.Data) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "null")
					return nil
				}
				var pretty bytes.Buffer
				if err := json.Indent(&pretty, resp.Data, "", "  "); err != nil {
					return fmt.Errorf("format response: %w", err)
				}
				pretty.WriteByte('\n')
				_, err = cmd.OutOrStdout().Write(pretty.Bytes())
				return err
			})
		},
	}
}
