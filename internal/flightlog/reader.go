package flightlog

import (
	"context"
	"database/sql"
	"fmt"
)

// Session retrieves one flight session by ID.
func (s *Store) Session(ctx context.Context, id int64) (session *Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	stmt, err := db.PrepareContext(ctx, selectSessionSQL)
	if err != nil {
		err = fmt.Errorf("preparing statement: %w", err)
		return
	}
	defer closeWithError(stmt, &err)

	var sess Session
	var config sql.NullString
	if err = stmt.QueryRowContext(ctx, id).Scan(&sess.ID, &sess.StartTime, &sess.DroneAddr, &config); err != nil {
		err = fmt.Errorf("scanning session: %w", err)
		return
	}
	if config.Valid {
		sess.Config = &config.String
	}

	return &sess, nil
}

// Sessions returns all flight sessions ordered by start time.
func (s *Store) Sessions(ctx context.Context) (sessions []*Session, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectSessionsSQL)
	if err != nil {
		err = fmt.Errorf("querying sessions: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var sess Session
		var config sql.NullString
		if err = rows.Scan(&sess.ID, &sess.StartTime, &sess.DroneAddr, &config); err != nil {
			err = fmt.Errorf("scanning session: %w", err)
			return
		}
		if config.Valid {
			sess.Config = &config.String
		}
		sessions = append(sessions, &sess)
	}
	return
}

// ReadTelemetry returns the telemetry snapshots of a session ordered by
// timestamp. Flight sessions are small enough to read in one pass.
func (s *Store) ReadTelemetry(ctx context.Context, sessionID int64) (result []TelemetryRow, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectTelemetrySQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying telemetry: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r TelemetryRow
		if err = rows.Scan(
			&r.ID,
			&r.SessionID,
			&r.Timestamp,
			&r.Battery,
			&r.Altitude,
			&r.Pitch,
			&r.Roll,
			&r.Yaw,
			&r.VelX,
			&r.VelY,
			&r.VelZ,
			&r.AccelX,
			&r.AccelY,
			&r.AccelZ,
			&r.TempLow,
			&r.TempHigh,
			&r.Pressure,
			&r.TimeOfFlight,
			&r.FlightTime,
			&r.State,
		); err != nil {
			err = fmt.Errorf("scanning telemetry: %w", err)
			return
		}
		result = append(result, r)
	}
	return
}

// ReadCommands returns the command audit trail of a session ordered by
// timestamp.
func (s *Store) ReadCommands(ctx context.Context, sessionID int64) (result []CommandRow, err error) {
	db, err := s.getReadDB()
	if err != nil {
		err = fmt.Errorf("getting read connection: %w", err)
		return
	}

	rows, err := db.QueryContext(ctx, selectCommandsSQL, sessionID)
	if err != nil {
		err = fmt.Errorf("querying commands: %w", err)
		return
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var r CommandRow
		var response, cmdErr sql.NullString
		if err = rows.Scan(
			&r.ID,
			&r.SessionID,
			&r.Timestamp,
			&r.Command,
			&r.Priority,
			&response,
			&cmdErr,
			&r.Attempts,
			&r.DurationMs,
		); err != nil {
			err = fmt.Errorf("scanning command: %w", err)
			return
		}
		r.Response = response.String
		r.Error = cmdErr.String
		result = append(result, r)
	}
	return
}
