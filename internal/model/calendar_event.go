package model

type EventType string

const (
	EventAppointment EventType = "appointment"
	EventActivity    EventType = "activity"
	EventMeal        EventType = "meal"
	EventSleepover   EventType = "sleepover"
	EventTask        EventType = "task"
)

type CalendarEvent struct {
	ID           string    `json:"id" validate:"required"`
	Title        *string   `json:"title" validate:"required"`
	Date         *string   `json:"date" validate:"required"`
	Time         *string   `json:"time"`
	Type         EventType `json:"type" validate:"required,oneof=appointment activity meal sleepover task"`
	Participants []string  `json:"participants" validate:"required"`
	Location     *string   `json:"location"`
	Description  *string   `json:"description"`
}

// NewCalendarEvent returns an event with an empty participant list, the
// value a create request starts from before the body is decoded over it.
func NewCalendarEvent() CalendarEvent {
	return CalendarEvent{Participants: []string{}}
}

func (e CalendarEvent) RecordID() string { return e.ID }
