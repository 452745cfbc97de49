package domain

import (
	"time"

	"github.com/google/uuid"
)

// Item represents one row of a user's shopping list. Rows are keyed by the
// composite (username, item_id) primary key.
type Item struct {
	Username string    `db:"username" json:"username"`
	ID       uuid.UUID `db:"item_id" json:"item_id"`
	Added    time.Time `db:"added" json:"added"`
	Name     string    `db:"item" json:"item"`
	Quantity int       `db:"quantity" json:"quantity"`
	Bought   bool      `db:"bought" json:"bought"`
}

// NewItem builds an unbought item with a fresh id. The added timestamp is
// assigned by the database on insert.
func NewItem(username, name string, quantity int) *Item {
	return &Item{
		Username: username,
		ID:       uuid.New(),
		Name:     name,
		Quantity: quantity,
	}
}
