package model

type FamilyMemberType string

const (
	FamilyMemberParent      FamilyMemberType = "parent"
	FamilyMemberChild       FamilyMemberType = "child"
	FamilyMemberGrandparent FamilyMemberType = "grandparent"
	FamilyMemberBabysitter  FamilyMemberType = "babysitter"
)

type FamilyMember struct {
	ID        string           `json:"id" validate:"required"`
	Name      *string          `json:"name" validate:"required"`
	Type      FamilyMemberType `json:"type" validate:"required,oneof=parent child grandparent babysitter"`
	Color     *string          `json:"color" validate:"required"`
	BirthDate *string          `json:"birthDate"`
}

func (m FamilyMember) RecordID() string { return m.ID }
