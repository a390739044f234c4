package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"dball/internal/draw"
	"dball/internal/ipc"
	"dball/internal/service"
	"dball/internal/wire"
)

func newEntriesCommand(ctx *commandContext) *cobra.Command {
	entriesCmd := &cobra.Command{
		Use:   "entries",
		Short: "List and score generated entries",
	}

	entriesCmd.AddCommand(newEntryListCommand(ctx, "pending", "List entries awaiting a result", wire.GetPendingEntries{}))
	entriesCmd.AddCommand(newEntryListCommand(ctx, "settled", "List scored entries", wire.GetSettledEntries{}))
	entriesCmd.AddCommand(&cobra.Command{
		Use:   "score",
		Short: "Score pending entries whose period has been drawn",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				var res service.UpdatedResult
				if err := client.Call(cmd.Context(), wire.UpdateAllPendingEntries{}, &res); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Scored %d entries\n", res.Updated)
				return nil
			})
		},
	})
	return entriesCmd
}

func newEntryListCommand(ctx *commandContext, use, short string, op wire.Operation) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				var entries []draw.Entry
				if err := client.Call(cmd.Context(), op, &entries); err != nil {
					return err
				}
				return printEntries(cmd, format, entries)
			})
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newBatchCommand(ctx *commandContext) *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Generate or retire batches of entries",
	}

	var output string
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a batch of picks for the next period",
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := parseOutputFormat(output)
			if err != nil {
				return err
			}
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				var entries []draw.Entry
				if err := client.Call(cmd.Context(), wire.GenerateBatchEntries{}, &entries); err != nil {
					return err
				}
				return printEntries(cmd, format, entries)
			})
		},
	}
	addOutputFlag(generateCmd, &output)
	batchCmd.AddCommand(generateCmd)

	batchCmd.AddCommand(&cobra.Command{
		Use:   "deprecate",
		Short: "Retire the most recent batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				var res service.DeprecatedResult
				if err := client.Call(cmd.Context(), wire.DeprecateLastBatch{}, &res); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deprecated %d entries\n", res.Deprecated)
				return nil
			})
		},
	})
	return batchCmd
}

func printEntries(cmd *cobra.Command, format outputFormat, entries []draw.Entry) error {
	if handled, err := writeStructured(cmd, format, entries); handled {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No entries")
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), renderEntries(entries, paletteFor(cmd.OutOrStdout())))
	return nil
}
