package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dirconsole/internal/core"
)

func (s *Store) InsertVacation(ctx context.Context, v *core.Vacation) error {
	v.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO vacations (id, user_id, start_date, end_date, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, v.ID, v.UserID, formatTime(v.StartDate), formatTime(v.EndDate),
		nullableString(v.Description), formatTime(v.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert vacation: %w", err)
	}
	return nil
}

func (s *Store) GetVacation(ctx context.Context, id string) (*core.Vacation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, start_date, end_date, description, created_at
		FROM vacations WHERE id = ?
	`, id)
	vacation, err := scanVacation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, core.ErrVacationNotFound
		}
		return nil, err
	}
	return vacation, nil
}

func (s *Store) DeleteVacation(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM vacations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete vacation: %w", err)
	}
	return nil
}

func scanVacation(scanner interface {
	Scan(dest ...any) error
}) (*core.Vacation, error) {
	var (
		id          string
		userID      string
		startDate   string
		endDate     string
		description sql.NullString
		createdAt   string
	)
	if err := scanner.Scan(&id, &userID, &startDate, &endDate, &description, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan vacation: %w", err)
	}
	vacation := &core.Vacation{
		ID:        id,
		UserID:    userID,
		StartDate: mustParseTime(startDate),
		EndDate:   mustParseTime(endDate),
		CreatedAt: mustParseTime(createdAt),
	}
	if description.Valid {
		vacation.Description = &description.String
	}
	return vacation, nil
}
