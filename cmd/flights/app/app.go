// Package app implements the flight log browser: it lists recorded flight
// sessions and dumps a session's telemetry or command audit trail.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/droneworks/tellostation/internal/flightlog"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := flightlog.NewStore(config.DBPath)
	defer store.Close()

	switch {
	case config.SessionID == 0:
		return listSessions(ctx, store)
	case config.Commands:
		return dumpCommands(ctx, store, config.SessionID)
	default:
		return dumpTelemetry(ctx, store, config.SessionID)
	}
}

func listSessions(ctx context.Context, store *flightlog.Store) error {
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tDRONE")
	for _, sess := range sessions {
		fmt.Fprintf(w, "%d\t%s (%s)\t%s\n",
			sess.ID,
			sess.StartTime.Local().Format(time.DateTime),
			humanize.Time(sess.StartTime),
			sess.DroneAddr)
	}
	return w.Flush()
}

func dumpTelemetry(ctx context.Context, store *flightlog.Store, sessionID int64) error {
	rows, err := store.ReadTelemetry(ctx, sessionID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tSTATE\tBAT%\tALT\tPITCH\tROLL\tYAW\tBARO\tTOF\tFLIGHT")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s cm\t%d\t%d\t%d\t%0.2f\t%d\t%ds\n",
			r.Timestamp.Local().Format(time.DateTime),
			r.State,
			r.Battery,
			humanize.Comma(int64(r.Altitude)),
			r.Pitch,
			r.Roll,
			r.Yaw,
			r.Pressure,
			r.TimeOfFlight,
			r.FlightTime)
	}
	return w.Flush()
}

func dumpCommands(ctx context.Context, store *flightlog.Store, sessionID int64) error {
	rows, err := store.ReadCommands(ctx, sessionID)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMESTAMP\tCOMMAND\tPRIORITY\tRESPONSE\tERROR\tATTEMPTS\tDURATION")
	for _, r := range rows {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%dms\n",
			r.Timestamp.Local().Format(time.DateTime),
			r.Command,
			r.Priority,
			r.Response,
			r.Error,
			r.Attempts,
			r.DurationMs)
	}
	return w.Flush()
}
