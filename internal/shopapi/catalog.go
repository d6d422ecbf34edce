package shopapi

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/nikolayk812/sneakercart/internal/domain"
)

// GetSneaker collapses concurrent lookups of the same product into one request.
func (c *Client) GetSneaker(ctx context.Context, id int64) (domain.Sneaker, error) {
	v, err, _ := c.sneakers.Do(strconv.FormatInt(id, 10), func() (any, error) {
		var sneaker domain.Sneaker
		err := c.do(ctx, request{method: http.MethodGet, path: fmt.Sprintf("/api/sneakers/%d/", id)}, &sneaker)
		return sneaker, err
	})
	if err != nil {
		return domain.Sneaker{}, err
	}

	return v.(domain.Sneaker), nil
}
