package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/inkwellapp/inkwell-client/internal/domain"
	domainerrors "github.com/inkwellapp/inkwell-client/internal/errors"
	"github.com/inkwellapp/inkwell-client/internal/remote"
)

// SyncSessions pushes every unsynced reading session to the remote.
// Tombstoned sessions become deletes, finished ones become creates.
// Only sessions the remote acknowledges are marked synced, so a
// partially applied batch is simply retried on the next pass. The
// remote dedups by snowflake, making the retries harmless.
func (r *Reconciler) SyncSessions(ctx context.Context) (int, error) {
	pending, err := r.store.ListUnsyncedSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("list unsynced sessions: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}

	var creates []*domain.ReadingSession
	var deletes []*domain.ReadingSession
	for _, session := range pending {
		if session.Status == domain.SessionRemoved {
			deletes = append(deletes, session)
		} else {
			creates = append(creates, session)
		}
	}

	synced := 0

	if len(creates) > 0 {
		records := make([]remote.SessionRecord, len(creates))
		for i, session := range creates {
			records[i] = recordFromSession(session)
		}

		acks, err := r.client.CreateSessions(ctx, records)
		if err != nil {
			return synced, err
		}

		// A duplicate ack means the remote already holds the record,
		// which is success for at-least-once delivery.
		acked := make([]int64, 0, len(acks))
		for _, ack := range acks {
			if ack.Status == remote.SessionCreated || ack.Status == remote.SessionDuplicate {
				acked = append(acked, ack.Snowflake)
			}
		}
		if len(acked) < len(creates) {
			r.logger.Warn("session batch partially acknowledged",
				slog.Int("sent", len(creates)),
				slog.Int("acked", len(acked)))
		}
		if err := r.store.MarkSessionsSynced(ctx, acked); err != nil {
			return synced, fmt.Errorf("mark sessions synced: %w", err)
		}
		synced += len(acked)
	}

	for _, session := range deletes {
		if err := r.client.DeleteSession(ctx, session.Snowflake); err != nil {
			if errors.Is(err, domainerrors.ErrConnection) {
				return synced, err
			}
			r.logger.Warn("session delete failed",
				slog.Int64("snowflake", session.Snowflake),
				slog.String("error", err.Error()))
			continue
		}
		if err := r.store.MarkSessionsSynced(ctx, []int64{session.Snowflake}); err != nil {
			return synced, fmt.Errorf("clear tombstone: %w", err)
		}
		synced++
	}

	return synced, nil
}

// PullSessions fetches remote session deltas since the given cursor
// and returns them with the next cursor. The local store is not
// mutated: remote sessions feed statistics display only.
func (r *Reconciler) PullSessions(ctx context.Context, cursor string) ([]remote.SessionRecord, string, error) {
	resp, err := r.client.PullSessions(ctx, cursor)
	if err != nil {
		return nil, "", err
	}
	return resp.Sessions, resp.Cursor, nil
}

func recordFromSession(session *domain.ReadingSession) remote.SessionRecord {
	return remote.SessionRecord{
		Snowflake:    session.Snowflake,
		BookID:       session.BookID,
		BookTitle:    session.BookTitle,
		BookLanguage: session.BookLanguage,
		StartedAt:    remote.ToMillis(session.StartedAt),
		EndedAt:      remote.ToMillis(session.EndedAt),
		CharsRead:    session.CharsRead,
		TimeSpentMs:  session.TimeSpent.Milliseconds(),
		DeviceID:     session.DeviceID,
	}
}
