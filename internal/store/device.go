package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// DeviceID returns the stable identifier for this device, minting and
// persisting one on first call. Every reading session carries it so
// the remote can attribute activity per device.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	var deviceID string
	err := s.db.QueryRowContext(ctx,
		`SELECT device_id FROM device WHERE id = 1`).Scan(&deviceID)
	if err == nil {
		return deviceID, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	deviceID = uuid.NewString()
	// INSERT OR IGNORE guards against a concurrent first call; re-read
	// afterwards so both callers agree on the winner.
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO device (id, device_id) VALUES (1, ?)`, deviceID); err != nil {
		return "", err
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT device_id FROM device WHERE id = 1`).Scan(&deviceID); err != nil {
		return "", err
	}
	return deviceID, nil
}
