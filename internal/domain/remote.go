package domain

import "github.com/shopspring/decimal"

// RemoteLineItem is a cart row as the storefront API returns it.
type RemoteLineItem struct {
	ID       int64      `json:"id"`
	Sneaker  int64      `json:"sneaker"`
	Size     RemoteSize `json:"size"`
	Quantity int        `json:"quantity"`
	User     int64      `json:"user"`
}

type RemoteSize struct {
	ID   int64           `json:"id"`
	Size decimal.Decimal `json:"size"`
}

// ToLineItem keeps the size identifier, never the size value.
func (r RemoteLineItem) ToLineItem() LineItem {
	id := r.ID
	return LineItem{
		ID:        &id,
		SneakerID: r.Sneaker,
		SizeID:    r.Size.ID,
		Quantity:  r.Quantity,
	}
}

func RemoteToLineItems(rows []RemoteLineItem) []LineItem {
	items := make([]LineItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.ToLineItem())
	}
	return items
}

type AddCartItemRequest struct {
	Sneaker  int64 `json:"sneaker"`
	SizeID   int64 `json:"size_id"`
	Quantity int   `json:"quantity"`
}

func NewAddCartItemRequest(item LineItem) AddCartItemRequest {
	return AddCartItemRequest{
		Sneaker:  item.SneakerID,
		SizeID:   item.SizeID,
		Quantity: item.Quantity,
	}
}
