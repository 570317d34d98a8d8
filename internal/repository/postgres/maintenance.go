package postgres

import (
	"context"
	"database/sql"

	"bikeshare/internal/domain"
)

// MaintenanceRepository is a PostgreSQL implementation of repository.MaintenanceRepository.
type MaintenanceRepository struct {
	q Querier
}

// NewMaintenanceRepositoryWithTx creates a maintenance repository using a transaction.
func NewMaintenanceRepositoryWithTx(tx *sql.Tx) *MaintenanceRepository {
	return &MaintenanceRepository{q: tx}
}

// Create persists a new task.
func (r *MaintenanceRepository) Create(ctx context.Context, task *domain.MaintenanceTask) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO maintenance_tasks (id, bike_id, status, note, created_at) VALUES ($1, $2, $3, $4, $5)`,
		task.ID, task.BikeID, task.Status, task.Note, task.CreatedAt,
	)
	return err
}

// ListByBike returns a bike's tasks, newest first.
func (r *MaintenanceRepository) ListByBike(ctx context.Context, bikeID string) ([]*domain.MaintenanceTask, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT id, bike_id, status, note, created_at FROM maintenance_tasks WHERE bike_id = $1 ORDER BY created_at DESC`,
		bikeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*domain.MaintenanceTask
	for rows.Next() {
		var t domain.MaintenanceTask
		if err := rows.Scan(&t.ID, &t.BikeID, &t.Status, &t.Note, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, &t)
	}
	return tasks, rows.Err()
}
