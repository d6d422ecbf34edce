package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Sneaker struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	Description string          `json:"description"`
	Gender      string          `json:"gender"`
	Color       string          `json:"color"`
	Brand       int64           `json:"brand"`
	Category    int64           `json:"category"`
	AvgRating   *float64        `json:"avg_rating"`
	Sizes       []SneakerSize   `json:"sizes"`
	Images      []SneakerImage  `json:"images"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type SneakerSize struct {
	ID   int64           `json:"id"`
	Size decimal.Decimal `json:"size"`
}

type SneakerImage struct {
	ID     int64  `json:"id"`
	Image  string `json:"image"`
	IsMain bool   `json:"is_main"`
}

func (s Sneaker) MainImage() string {
	for _, img := range s.Images {
		if img.IsMain {
			return img.Image
		}
	}
	return ""
}

func (s Sneaker) SizeValue(sizeID int64) (decimal.Decimal, bool) {
	for _, size := range s.Sizes {
		if size.ID == sizeID {
			return size.Size, true
		}
	}
	return decimal.Decimal{}, false
}
