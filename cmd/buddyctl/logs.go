package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ashureev/sciencebuddy/internal/logsink"
)

func newLogsCmd(flags *storageFlags) *cobra.Command {
	logs := &cobra.Command{
		Use:   "logs",
		Short: "Read the daily learning logs",
	}

	days := &cobra.Command{
		Use:   "days",
		Short: "List the days that have a learning log, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sink, done, err := flags.openLogs(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			list, err := sink.Days(cmd.Context())
			if err != nil {
				return err
			}
			for _, d := range list {
				fmt.Fprintln(cmd.OutOrStdout(), d)
			}
			return nil
		},
	}

	var day, class, student, unit string
	show := &cobra.Command{
		Use:   "show",
		Short: "Print one day of the learning log as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if day == "" {
				day = logsink.DayKey(time.Now())
			}
			sink, done, err := flags.openLogs(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetEscapeHTML(false)
			for _, e := range sink.LoadDay(cmd.Context(), day) {
				if !matches(class, e.ClassNumber) || !matches(student, e.StudentNumber) || !matches(unit, e.Unit) {
					continue
				}
				if err := enc.Encode(e); err != nil {
					return err
				}
			}
			return nil
		},
	}
	show.Flags().StringVar(&day, "day", "", "day key YYYYMMDD (default today)")
	show.Flags().StringVar(&class, "class", "", "only this class number")
	show.Flags().StringVar(&student, "student", "", "only this student number")
	show.Flags().StringVar(&unit, "unit", "", "only this unit")

	logs.AddCommand(days, show)
	return logs
}

func matches(filter, value string) bool {
	return filter == "" || filter == value
}
