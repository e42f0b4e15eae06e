package model

type MealType string

const (
	MealBreakfast MealType = "breakfast"
	MealLunch     MealType = "lunch"
	MealDinner    MealType = "dinner"
	MealSnack     MealType = "snack"
)

type MealLocation string

const (
	MealAtHome       MealLocation = "home"
	MealAtRestaurant MealLocation = "restaurant"
	MealAtSchool     MealLocation = "school"
	MealAtWork       MealLocation = "work"
	MealElsewhere    MealLocation = "other"
)

type MealRecurring struct {
	Frequency string  `json:"frequency" validate:"required,oneof=daily weekly monthly"`
	EndDate   *string `json:"endDate"`
}

type Meal struct {
	ID              string         `json:"id" validate:"required"`
	Dish            *string        `json:"dish" validate:"required"`
	Date            *string        `json:"date" validate:"required"`
	MealType        MealType       `json:"mealType" validate:"required,oneof=breakfast lunch dinner snack"`
	Location        MealLocation   `json:"location" validate:"required,oneof=home restaurant school work other"`
	LocationDetails *string        `json:"locationDetails"`
	Participants    []string       `json:"participants" validate:"required"`
	Recurring       *MealRecurring `json:"recurring" validate:"omitempty"`
}

func NewMeal() Meal {
	return Meal{Participants: []string{}}
}

func (m Meal) RecordID() string { return m.ID }
