package domain

import "time"

type WishlistItem struct {
	ID      string    `json:"id"`
	Product Product   `json:"product"`
	AddedAt time.Time `json:"addedAt"`
}
