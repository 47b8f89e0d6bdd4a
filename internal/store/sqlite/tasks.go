package sqlite

import (
	"context"
	"fmt"

	"github.com/raphaelgruber/kgforge/internal/models"
	"github.com/raphaelgruber/kgforge/internal/store"
)

func (s *Store) CreateTask(ctx context.Context, task *models.Task) error {
	data, err := marshal(task)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, status, created_at, data) VALUES (?, ?, ?, ?, ?)`,
		task.ID, task.UserID, string(task.Status), task.CreatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("create task: %w", wrapError(err))
	}
	return nil
}

func (s *Store) UpdateTask(ctx context.Context, task *models.Task) error {
	data, err := marshal(task)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, data = ? WHERE id = ?`,
		string(task.Status), data, task.ID)
	if err != nil {
		return fmt.Errorf("update task: %w", wrapError(err))
	}
	return checkAffected(res)
}

func (s *Store) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	if err := s.getOne(ctx, &t, `SELECT data FROM tasks WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListTasks(ctx context.Context, filter models.TaskFilter) ([]*models.Task, int, error) {
	f := filter.Normalize()

	where := "WHERE 1 = 1"
	var args []any
	if f.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, string(f.Status))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT count(*) FROM tasks "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT data FROM tasks "+where+" ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?",
		append(args, f.Limit, f.Offset())...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	tasks, err := scanAll[*models.Task](rows)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if err := checkAffected(res); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM file_details WHERE task_id = ?`, id); err != nil {
		return fmt.Errorf("delete file details: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListUnfinishedTasks(ctx context.Context) ([]*models.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM tasks WHERE status IN (?, ?) ORDER BY created_at`,
		string(models.TaskStatusPending), string(models.TaskStatusRunning))
	if err != nil {
		return nil, fmt.Errorf("list unfinished tasks: %w", err)
	}
	return scanAll[*models.Task](rows)
}

func (s *Store) SaveFileDetail(ctx context.Context, fd *models.FileDetail) error {
	data, err := marshal(fd)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO file_details (id, task_id, created_at, data) VALUES (?, ?, ?, ?)`,
		fd.ID, fd.TaskID, fd.CreatedAt.UnixNano(), data)
	if err != nil {
		return fmt.Errorf("save file detail: %w", err)
	}
	return nil
}

func (s *Store) ListFileDetails(ctx context.Context, taskID string) ([]models.FileDetail, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM file_details WHERE task_id = ? ORDER BY created_at, id`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list file details: %w", err)
	}
	return scanAll[models.FileDetail](rows)
}

var _ store.TaskStore = (*Store)(nil)
