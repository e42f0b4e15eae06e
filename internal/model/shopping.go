package model

type ShoppingCategory struct {
	ID    string  `json:"id" validate:"required"`
	Name  *string `json:"name" validate:"required"`
	Color *string `json:"color" validate:"required"`
}

func (c ShoppingCategory) RecordID() string { return c.ID }

type ShoppingItem struct {
	ID            string  `json:"id" validate:"required"`
	Name          *string `json:"name" validate:"required"`
	Category      *string `json:"category" validate:"required"`
	Quantity      *int    `json:"quantity" validate:"required"`
	Unit          *string `json:"unit" validate:"required"`
	IsCompleted   bool    `json:"isCompleted"`
	AddedDate     *string `json:"addedDate" validate:"required"`
	CompletedDate *string `json:"completedDate"`
	InStock       bool    `json:"inStock"`
}

// NewShoppingItem returns an item with the create defaults applied: not
// completed, in stock.
func NewShoppingItem() ShoppingItem {
	return ShoppingItem{InStock: true}
}

func (i ShoppingItem) RecordID() string { return i.ID }
