package model

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
)

type Task struct {
	ID            string       `json:"id" validate:"required"`
	Title         *string      `json:"title" validate:"required"`
	Description   *string      `json:"description"`
	AssignedTo    *string      `json:"assignedTo"`
	Priority      TaskPriority `json:"priority" validate:"required,oneof=low medium high"`
	Status        TaskStatus   `json:"status" validate:"required,oneof=pending in_progress completed"`
	DueDate       *string      `json:"dueDate"`
	Category      *string      `json:"category" validate:"required"`
	CreatedDate   *string      `json:"createdDate" validate:"required"`
	CompletedDate *string      `json:"completedDate"`
}

func (t Task) RecordID() string { return t.ID }
