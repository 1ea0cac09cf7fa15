package race

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/dailies/go/internal/models"
	"github.com/mcdev12/dailies/go/internal/race/events"
	"github.com/mcdev12/dailies/go/internal/sqlutil"
)

//go:embed schema.sql
var schemaSQL string

// PostgresRepository stores races in Postgres. Events are written to the
// race_outbox table in the same transaction as the state change they describe,
// and announced with pg_notify once that transaction commits.
type PostgresRepository struct {
	pool          *pgxpool.Pool
	notifyChannel string
	maxAttempts   int
}

// NewPostgresRepository creates a new Postgres race repository
func NewPostgresRepository(pool *pgxpool.Pool, notifyChannel string, maxAttempts int) *PostgresRepository {
	return &PostgresRepository{
		pool:          pool,
		notifyChannel: notifyChannel,
		maxAttempts:   maxAttempts,
	}
}

// Migrate creates the race tables if they do not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply race schema: %w", err)
	}
	return nil
}

// CreateRace inserts a race with its slots, participants and events.
func (r *PostgresRepository) CreateRace(ctx context.Context, race *models.RaceSession, evs []events.Envelope) error {
	return sqlutil.RunSerializable(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO races (id, name, creator_user_id, status, version, created_at, started_at, completed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			race.ID, race.Name, nullableString(race.CreatorUserID), string(race.Status), race.Version,
			race.CreatedAt, sqlutil.ToSqlTime(race.StartedAt), sqlutil.ToSqlTime(race.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert race: %w", err)
		}

		batch := &pgx.Batch{}
		for _, s := range race.Slots {
			queueInsertSlot(batch, s)
		}
		for _, p := range race.Participants {
			queueInsertParticipant(batch, p)
		}
		r.queueEvents(batch, evs)
		return sendBatch(ctx, tx, batch)
	})
}

// GetRace loads a race from a consistent read-only snapshot.
func (r *PostgresRepository) GetRace(ctx context.Context, id uuid.UUID) (*models.RaceSession, error) {
	var race *models.RaceSession
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		race, err = loadRace(ctx, tx, id, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return race, nil
}

// MutateRace locks the race row, applies fn and writes back what it changed.
func (r *PostgresRepository) MutateRace(ctx context.Context, id uuid.UUID, fn MutateFunc) (*models.RaceSession, error) {
	var result *models.RaceSession
	err := sqlutil.RunSerializable(ctx, r.pool, r.maxAttempts, func(tx pgx.Tx) error {
		race, err := loadRace(ctx, tx, id, true)
		if err != nil {
			return err
		}
		loadedVersion := race.Version

		changes, err := fn(race)
		if err != nil {
			return err
		}
		if changes != nil {
			if err := r.applyChanges(ctx, tx, loadedVersion, race, changes); err != nil {
				return err
			}
		}
		result = race
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) applyChanges(ctx context.Context, tx pgx.Tx, loadedVersion int64, race *models.RaceSession, changes *Changeset) error {
	tag, err := tx.Exec(ctx, `
		UPDATE races
		SET status = $2, version = $3, started_at = $4, completed_at = $5
		WHERE id = $1 AND version = $6`,
		race.ID, string(race.Status), race.Version,
		sqlutil.ToSqlTime(race.StartedAt), sqlutil.ToSqlTime(race.CompletedAt), loadedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update race: %w", err)
	}
	// The row is locked FOR UPDATE, so this only trips if that lock is lost;
	// RunSerializable retries it.
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("race %s at version %d: %w", race.ID, loadedVersion, sqlutil.ErrStaleVersion)
	}

	batch := &pgx.Batch{}
	for _, id := range changes.RemovedParticipants {
		batch.Queue(`DELETE FROM race_participants WHERE id = $1`, id)
	}
	for _, p := range changes.AddedParticipants {
		queueInsertParticipant(batch, p)
	}
	for _, p := range changes.FinishedParticipants {
		batch.Queue(`UPDATE race_participants SET finished_at = $2, total_time = $3 WHERE id = $1`,
			p.ID, sqlutil.ToSqlTime(p.FinishedAt), sqlutil.ToSqlInt32(p.TotalTime))
	}
	if changes.ReorderedSlots {
		// race_game_slots_order_key is deferred, so intermediate duplicates are fine.
		for _, s := range race.Slots {
			batch.Queue(`UPDATE race_game_slots SET slot_order = $2 WHERE id = $1`, s.ID, s.Order)
		}
	}
	for _, c := range changes.AddedCompletions {
		batch.Queue(`
			INSERT INTO race_completions (id, race_id, slot_id, participant_id, completed_at, time_to_complete, skipped)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			c.ID, c.RaceID, c.SlotID, c.ParticipantID, c.CompletedAt, c.TimeToComplete, c.Skipped)
	}
	r.queueEvents(batch, changes.Events)
	return sendBatch(ctx, tx, batch)
}

// queueEvents writes events to the outbox and notifies the relay. NOTIFY is
// delivered only when the transaction commits.
func (r *PostgresRepository) queueEvents(batch *pgx.Batch, evs []events.Envelope) {
	for _, ev := range evs {
		batch.Queue(`
			INSERT INTO race_outbox (id, race_id, event_type, version, payload, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			ev.ID, ev.RaceID, string(ev.Type), ev.Version, []byte(ev.Payload), nullableJSON(ev.Metadata), ev.Timestamp)
		if r.notifyChannel != "" {
			batch.Queue(`SELECT pg_notify($1, $2)`, r.notifyChannel, ev.ID.String())
		}
	}
}

func queueInsertSlot(batch *pgx.Batch, s models.RaceGameSlot) {
	batch.Queue(`
		INSERT INTO race_game_slots (id, race_id, game_id, slot_order)
		VALUES ($1, $2, $3, $4)`,
		s.ID, s.RaceID, s.GameID, s.Order)
}

func queueInsertParticipant(batch *pgx.Batch, p models.Participant) {
	var userID, guestName, tokenHash string
	switch id := p.Identity.(type) {
	case models.Member:
		userID = id.UserID
	case models.Guest:
		guestName, tokenHash = id.DisplayName, id.TokenHash
	}
	batch.Queue(`
		INSERT INTO race_participants (id, race_id, user_id, guest_name, guest_token_hash, joined_at, finished_at, total_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.RaceID, sqlutil.ToSqlString(userID), sqlutil.ToSqlString(guestName), sqlutil.ToSqlString(tokenHash),
		p.JoinedAt, sqlutil.ToSqlTime(p.FinishedAt), sqlutil.ToSqlInt32(p.TotalTime))
}

func sendBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch) error {
	if batch.Len() == 0 {
		return nil
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to write race changes: %w", err)
		}
	}
	return br.Close()
}

func loadRace(ctx context.Context, tx pgx.Tx, id uuid.UUID, forUpdate bool) (*models.RaceSession, error) {
	query := `
		SELECT id, name, creator_user_id, status, version, created_at, started_at, completed_at
		FROM races WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		race      models.RaceSession
		creator   sql.NullString
		status    string
		started   sql.NullTime
		completed sql.NullTime
	)
	err := tx.QueryRow(ctx, query, id).Scan(
		&race.ID, &race.Name, &creator, &status, &race.Version, &race.CreatedAt, &started, &completed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("race %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load race: %w", err)
	}
	race.Status = models.RaceStatus(status)
	if creator.Valid {
		race.CreatorUserID = &creator.String
	}
	race.StartedAt = sqlutil.FromSqlTime(started)
	race.CompletedAt = sqlutil.FromSqlTime(completed)

	rows, err := tx.Query(ctx, `
		SELECT id, race_id, game_id, slot_order
		FROM race_game_slots WHERE race_id = $1 ORDER BY slot_order`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load slots: %w", err)
	}
	race.Slots, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.RaceGameSlot, error) {
		var s models.RaceGameSlot
		err := row.Scan(&s.ID, &s.RaceID, &s.GameID, &s.Order)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan slots: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT id, race_id, user_id, guest_name, guest_token_hash, joined_at, finished_at, total_time
		FROM race_participants WHERE race_id = $1 ORDER BY joined_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load participants: %w", err)
	}
	race.Participants, err = pgx.CollectRows(rows, scanParticipant)
	if err != nil {
		return nil, fmt.Errorf("failed to scan participants: %w", err)
	}

	rows, err = tx.Query(ctx, `
		SELECT id, race_id, slot_id, participant_id, completed_at, time_to_complete, skipped
		FROM race_completions WHERE race_id = $1 ORDER BY completed_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load completions: %w", err)
	}
	race.Completions, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Completion, error) {
		var c models.Completion
		err := row.Scan(&c.ID, &c.RaceID, &c.SlotID, &c.ParticipantID, &c.CompletedAt, &c.TimeToComplete, &c.Skipped)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan completions: %w", err)
	}
	return &race, nil
}

func scanParticipant(row pgx.CollectableRow) (models.Participant, error) {
	var (
		p                            models.Participant
		userID, guestName, tokenHash sql.NullString
		finished                     sql.NullTime
		total                        sql.NullInt32
	)
	if err := row.Scan(&p.ID, &p.RaceID, &userID, &guestName, &tokenHash, &p.JoinedAt, &finished, &total); err != nil {
		return p, err
	}
	if userID.Valid {
		p.Identity = models.Member{UserID: userID.String}
	} else {
		p.Identity = models.Guest{
			DisplayName: sqlutil.FromSqlString(guestName),
			TokenHash:   sqlutil.FromSqlString(tokenHash),
		}
	}
	p.FinishedAt = sqlutil.FromSqlTime(finished)
	p.TotalTime = sqlutil.FromSqlInt32(total)
	return p, nil
}

func nullableString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sqlutil.ToSqlString(*s)
}

func nullableJSON(m json.RawMessage) any {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}
