package db

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/02loveslollipop/iot-sensor-hub/services/api/apperr"
	"github.com/02loveslollipop/iot-sensor-hub/services/api/models"
)

const insertVoteSQL = `
INSERT INTO iotdb.votaciones (id, rating, dispositivo, cultivo, medio, fecha)
VALUES ($1, $2, $3, $4, $5, $6)`

const voteStatsSQL = `
SELECT
  COUNT(*),
  COALESCE(AVG(rating), 0)::double precision,
  COUNT(*) FILTER (WHERE rating = 1),
  COUNT(*) FILTER (WHERE rating = 2),
  COUNT(*) FILTER (WHERE rating = 3),
  COUNT(*) FILTER (WHERE rating = 4),
  COUNT(*) FILTER (WHERE rating = 5)
FROM iotdb.votaciones`

// InsertVote stores v.
func (s *Store) InsertVote(ctx context.Context, v models.Vote) error {
	if err := s.ready(); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, insertVoteSQL, v.ID, v.Rating, v.Device, v.Crop, v.Medium, v.Date); err != nil {
		return translate(err)
	}
	return nil
}

// ListVotes returns matching votes, newest first.
func (s *Store) ListVotes(ctx context.Context, f models.VoteFilter) ([]models.Vote, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	conditions := []string{}
	args := []any{}
	add := func(column string, value any) {
		args = append(args, value)
		conditions = append(conditions, column+" = $"+strconv.Itoa(len(args)))
	}
	if f.Rating != nil {
		add("rating", *f.Rating)
	}
	if f.Device != nil {
		add("dispositivo", *f.Device)
	}
	if f.Crop != nil {
		add("cultivo", *f.Crop)
	}
	if f.Medium != nil {
		add("medio", *f.Medium)
	}

	query := strings.Builder{}
	query.WriteString("SELECT id, rating, dispositivo, cultivo, medio, fecha FROM iotdb.votaciones ")
	if len(conditions) > 0 {
		query.WriteString("WHERE " + strings.Join(conditions, " AND ") + " ")
	}
	query.WriteString("ORDER BY fecha DESC, id DESC")
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query.WriteString(" LIMIT $" + strconv.Itoa(len(args)))
	}

	rows, err := s.pool.Query(ctx, query.String(), args...)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	votes := make([]models.Vote, 0)
	for rows.Next() {
		var v models.Vote
		if err := rows.Scan(&v.ID, &v.Rating, &v.Device, &v.Crop, &v.Medium, &v.Date); err != nil {
			return nil, err
		}
		votes = append(votes, v)
	}
	return votes, translate(rows.Err())
}

// VoteStats aggregates all ratings.
func (s *Store) VoteStats(ctx context.Context) (models.VoteStats, error) {
	if err := s.ready(); err != nil {
		return models.VoteStats{}, err
	}
	var st models.VoteStats
	d := &st.Distribution
	if err := s.pool.QueryRow(ctx, voteStatsSQL).Scan(&st.Total, &st.Average, &d[0], &d[1], &d[2], &d[3], &d[4]); err != nil {
		return models.VoteStats{}, translate(err)
	}
	return st, nil
}

// DeleteVote removes one vote.
func (s *Store) DeleteVote(ctx context.Context, id uuid.UUID) error {
	if err := s.ready(); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM iotdb.votaciones WHERE id = $1`, id)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Votación no encontrada")
	}
	return nil
}

// DeleteAllVotes removes every vote and reports how many were deleted.
func (s *Store) DeleteAllVotes(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM iotdb.votaciones`)
	if err != nil {
		return 0, translate(err)
	}
	return tag.RowsAffected(), nil
}
