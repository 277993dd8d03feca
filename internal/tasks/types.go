package tasks

import "time"

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Status      Status    `json:"status"`
	Priority    Priority  `json:"priority"`
	ImageURL    *string   `json:"imageUrl"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type CreateInput struct {
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Status      Status   `json:"status"`
	Priority    Priority `json:"priority"`
	ImageURL    *string  `json:"imageUrl"`
}

// UpdateInput is a partial update: nil fields are left alone. An empty
// description or image URL clears it.
type UpdateInput struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Status      *Status   `json:"status"`
	Priority    *Priority `json:"priority"`
	ImageURL    *string   `json:"imageUrl"`
}

// ListFilter narrows a task query. A nil OwnerID means every owner; only
// admin queries are built that way.
type ListFilter struct {
	OwnerID  *string
	Status   Status
	Priority Priority
	From     *time.Time
	To       *time.Time
}

type Paging struct {
	Limit  int
	Offset int
}

// ListQuery is what a caller asks for; the service turns it into a filter.
type ListQuery struct {
	Page     int
	Limit    int
	Status   Status
	Priority Priority
	From     *time.Time
	To       *time.Time
}

type Pagination struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

type Page struct {
	Data       []Task     `json:"data"`
	Pagination Pagination `json:"pagination"`
}
