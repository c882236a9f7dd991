package flightlog

import (
	_ "embed"
)

//go:embed schema.sql
var initSchemaSQL string

const (
	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_telemetry_session ON telemetry (session_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_commands_session ON commands (session_id, timestamp)`

	insertSessionSQL = `
INSERT INTO sessions (
                      start_time,
                      drone_addr,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    drone_addr,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    drone_addr,
    config
FROM sessions
ORDER BY start_time`

	insertCommandSQL = `
INSERT INTO commands (session_id,
                      timestamp,
                      command,
                      priority,
                      response,
                      error,
                      attempts,
                      duration_ms)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	insertTelemetrySQL = `
    INSERT INTO telemetry (
        session_id,
        timestamp,
        battery,
        altitude,
        pitch,
        roll,
        yaw,
        vel_x,
        vel_y,
        vel_z,
        accel_x,
        accel_y,
        accel_z,
        temp_low,
        temp_high,
        pressure,
        time_of_flight,
        flight_time,
        state
    )
    VALUES `

	selectTelemetrySQL = `
SELECT
    id,
    session_id,
    timestamp,
    battery,
    altitude,
    pitch,
    roll,
    yaw,
    vel_x,
    vel_y,
    vel_z,
    accel_x,
    accel_y,
    accel_z,
    temp_low,
    temp_high,
    pressure,
    time_of_flight,
    flight_time,
    state
FROM telemetry
WHERE
    session_id = ?
ORDER BY timestamp`

	selectCommandsSQL = `
SELECT
    id,
    session_id,
    timestamp,
    command,
    priority,
    response,
    error,
    attempts,
    duration_ms
FROM commands
WHERE
    session_id = ?
ORDER BY timestamp`
)
