package domain

import "time"

// MaintenanceStatus tracks a maintenance task.
type MaintenanceStatus string

const (
	MaintenanceStatusTodo  MaintenanceStatus = "todo"
	MaintenanceStatusDoing MaintenanceStatus = "doing"
	MaintenanceStatusDone  MaintenanceStatus = "done"
)

// MaintenanceTask is opened when a bike is pulled from service.
type MaintenanceTask struct {
	ID        string
	BikeID    string
	Status    MaintenanceStatus
	Note      string
	CreatedAt time.Time
}
