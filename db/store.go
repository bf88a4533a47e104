package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/thatsimonsguy/adaptive-climate/internal/device"
	"github.com/thatsimonsguy/adaptive-climate/internal/model"
)

// Store persists per-device control state and outdoor temperature history.
// It implements device.PersistenceStore.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) LoadControlState(deviceID string) (device.ControlState, bool, error) {
	var (
		st         device.ControlState
		pauseUntil sql.NullString
		commandAt  sql.NullString
		mean       sql.NullFloat64
	)
	err := s.db.QueryRow(
		`SELECT device_id, manual_pause_until, user_powered_off, last_signature, last_command_at, running_mean
		 FROM control_state WHERE device_id = ?`, deviceID,
	).Scan(&st.DeviceID, &pauseUntil, &st.UserPoweredOff, &st.LastSignature, &commandAt, &mean)
	if err == sql.ErrNoRows {
		return device.ControlState{DeviceID: deviceID}, false, nil
	}
	if err != nil {
		return device.ControlState{}, false, fmt.Errorf("failed to load control state for %s: %w", deviceID, err)
	}

	if pauseUntil.Valid {
		t, err := time.Parse(time.RFC3339, pauseUntil.String)
		if err != nil {
			return device.ControlState{}, false, fmt.Errorf("bad manual_pause_until for %s: %w", deviceID, err)
		}
		st.ManualPauseUntil = &t
	}
	if commandAt.Valid {
		t, err := time.Parse(time.RFC3339, commandAt.String)
		if err != nil {
			return device.ControlState{}, false, fmt.Errorf("bad last_command_at for %s: %w", deviceID, err)
		}
		st.LastCommandAt = &t
	}
	if mean.Valid {
		st.RunningMean = &mean.Float64
	}
	return st, true, nil
}

func (s *Store) SaveControlState(st device.ControlState) error {
	var pauseUntil, commandAt interface{}
	if st.ManualPauseUntil != nil {
		pauseUntil = st.ManualPauseUntil.UTC().Format(time.RFC3339)
	}
	if st.LastCommandAt != nil {
		commandAt = st.LastCommandAt.UTC().Format(time.RFC3339)
	}
	var mean interface{}
	if st.RunningMean != nil {
		mean = *st.RunningMean
	}

	_, err := s.db.Exec(
		`INSERT INTO control_state (device_id, manual_pause_until, user_powered_off, last_signature, last_command_at, running_mean)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(device_id) DO UPDATE SET
			manual_pause_until = excluded.manual_pause_until,
			user_powered_off = excluded.user_powered_off,
			last_signature = excluded.last_signature,
			last_command_at = excluded.last_command_at,
			running_mean = excluded.running_mean`,
		st.DeviceID, pauseUntil, st.UserPoweredOff, string(st.LastSignature), commandAt, mean,
	)
	if err != nil {
		return fmt.Errorf("failed to save control state for %s: %w", st.DeviceID, err)
	}
	return nil
}

func (s *Store) AppendOutdoorSample(deviceID string, sample model.TempSample) error {
	_, err := s.db.Exec(
		`INSERT INTO outdoor_history (device_id, taken, temp) VALUES (?, ?, ?)`,
		deviceID, sample.Taken.UTC().Format(time.RFC3339), sample.Temp,
	)
	if err != nil {
		return fmt.Errorf("failed to append outdoor sample for %s: %w", deviceID, err)
	}
	return nil
}

func (s *Store) LoadOutdoorHistory(deviceID string, since time.Time) ([]model.TempSample, error) {
	rows, err := s.db.Query(
		`SELECT taken, temp FROM outdoor_history
		 WHERE device_id = ? AND taken >= ? ORDER BY taken ASC`,
		deviceID, since.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query outdoor history for %s: %w", deviceID, err)
	}
	defer rows.Close()

	var samples []model.TempSample
	for rows.Next() {
		var taken string
		var temp float64
		if err := rows.Scan(&taken, &temp); err != nil {
			return nil, fmt.Errorf("failed to scan outdoor sample: %w", err)
		}
		t, err := time.Parse(time.RFC3339, taken)
		if err != nil {
			return nil, fmt.Errorf("bad taken timestamp in outdoor history: %w", err)
		}
		samples = append(samples, model.TempSample{Temp: temp, Taken: t})
	}
	return samples, rows.Err()
}

func (s *Store) PruneOutdoorHistory(deviceID string, before time.Time) error {
	_, err := s.db.Exec(
		`DELETE FROM outdoor_history WHERE device_id = ? AND taken < ?`,
		deviceID, before.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to prune outdoor history for %s: %w", deviceID, err)
	}
	return nil
}
