package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"dball/internal/ipc"
	"dball/internal/service"
	"dball/internal/wire"
)

func newRecordsCommand(ctx *commandContext) *cobra.Command {
	recordsCmd := &cobra.Command{
		Use:   "records",
		Short: "Fetch and store draw results",
	}

	recordsCmd.AddCommand(&cobra.Command{
		Use:   "latest",
		Short: "Fetch the most recent draw result",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				var res service.LatestResult
				if err := client.Call(cmd.Context(), wire.UpdateLatestRecord{}, &res); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Latest period: %s (new: %s)\n", res.LatestPeriod, yesNo(res.Inserted))
				return nil
			})
		},
	})

	recordsCmd.AddCommand(newNextPeriodCommand(ctx, "next"))

	var periods []string
	var year int
	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Fetch specific periods or every period of a year",
		RunE: func(cmd *cobra.Command, args []string) error {
			var op wire.Operation
			switch {
			case len(periods) > 0 && year != 0:
				return errors.New("use either --period or --year, not both")
			case len(periods) > 0:
				list, err := wire.ParseOperation(string(wire.OpUpdateRecordsByPeriodList), periods)
				if err != nil {
					return err
				}
				op = list
			case year != 0:
				op = wire.UpdateRecordsForYear{Year: year}
			default:
				return errors.New("one of --period or --year is required")
			}
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				var res service.RecordsResult
				if err := client.Call(cmd.Context(), op, &res); err != nil {
					return err
				}
				printRecordsResult(cmd, res.Updated, res.Skipped)
				return nil
			})
		},
	}
	updateCmd.Flags().StringSliceVarP(&periods, "period", "p", nil, "Period identifiers such as 2024001 (repeatable or comma separated)")
	updateCmd.Flags().IntVarP(&year, "year", "y", 0, "Refresh every published period of this year")
	recordsCmd.AddCommand(updateCmd)

	recordsCmd.AddCommand(&cobra.Command{
		Use:   "crawl",
		Short: "Fetch every historical period from history_start_year onward",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				var res service.CrawlResult
				if err := client.Call(cmd.Context(), wire.CrawlAllHistoricalRecords{}, &res); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Crawled %d-%d\n", res.FromYear, res.ToYear)
				printRecordsResult(cmd, res.Updated, res.Skipped)
				return nil
			})
		},
	})

	return recordsCmd
}

func newPeriodCommand(ctx *commandContext) *cobra.Command {
	return newNextPeriodCommand(ctx, "period")
}

func newNextPeriodCommand(ctx *commandContext, use string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: "Show the identifier of the next period to be drawn",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(cmd.Context(), func(client *ipc.Client) error {
				var res service.NextPeriodResult
				if err := client.Call(cmd.Context(), wire.GetNextPeriodIdentifier{}, &res); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.TrimSpace(res.NextPeriod))
				return nil
			})
		},
	}
}

func printRecordsResult(cmd *cobra.Command, updated, skipped int) {
	fmt.Fprintf(cmd.OutOrStdout(), "Updated: %d\nSkipped: %d\n", updated, skipped)
}
