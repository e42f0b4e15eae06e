package model

type Sleepover struct {
	ID         string  `json:"id" validate:"required"`
	ChildID    *string `json:"childId" validate:"required"`
	Date       *string `json:"date" validate:"required"`
	Location   *string `json:"location" validate:"required"`
	HostName   *string `json:"hostName" validate:"required"`
	PickupTime *string `json:"pickupTime"`
	Notes      *string `json:"notes"`
}

func (s Sleepover) RecordID() string { return s.ID }
