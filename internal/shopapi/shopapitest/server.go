// Package shopapitest runs an in-memory storefront API for tests.
package shopapitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/shopspring/decimal"
)

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int64
	carts    map[string][]domain.RemoteLineItem
	users    map[string]int64
	sneakers map[int64]domain.Sneaker
	stock    map[domain.ItemKey]int
	failures map[string]int
	down     bool
	orders   []domain.CheckoutRequest
	calls    []string
}

// New starts a server that accepts the given tokens as Token credentials.
func New(t testing.TB, tokens ...string) *Server {
	t.Helper()

	s := &Server{
		nextID:   41,
		carts:    make(map[string][]domain.RemoteLineItem),
		users:    make(map[string]int64),
		sneakers: make(map[int64]domain.Sneaker),
		stock:    make(map[domain.ItemKey]int),
		failures: make(map[string]int),
	}
	for i, token := range tokens {
		s.users[token] = int64(i + 1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/cart/{$}", s.listCart)
	mux.HandleFunc("POST /api/cart/{$}", s.addCartItem)
	mux.HandleFunc("PATCH /api/cart/{id}/", s.updateCartItem)
	mux.HandleFunc("DELETE /api/cart/{id}/", s.deleteCartItem)
	mux.HandleFunc("GET /api/sneakers/{id}/", s.getSneaker)
	mux.HandleFunc("POST /api/checkout/{$}", s.checkout)

	s.Server = httptest.NewServer(s.intercept(mux))
	t.Cleanup(s.Close)

	return s
}

// AddSneaker registers a product with the given sizes (id → size value).
func (s *Server) AddSneaker(id int64, name string, price string, sizes map[int64]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sneaker := domain.Sneaker{
		ID:     id,
		Name:   name,
		Price:  decimal.RequireFromString(price),
		Images: []domain.SneakerImage{{ID: id, Image: "/media/" + strconv.FormatInt(id, 10) + ".jpg", IsMain: true}},
	}
	for sizeID, value := range sizes {
		sneaker.Sizes = append(sneaker.Sizes, domain.SneakerSize{ID: sizeID, Size: decimal.RequireFromString(value)})
	}
	s.sneakers[id] = sneaker
}

// SetStock limits the quantity a cart line may reach.
func (s *Server) SetStock(key domain.ItemKey, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock[key] = quantity
}

// SetCart replaces the cart of token.
func (s *Server) SetCart(token string, rows []domain.RemoteLineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carts[token] = append([]domain.RemoteLineItem(nil), rows...)
}

func (s *Server) Cart(token string) []domain.RemoteLineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.RemoteLineItem{}, s.carts[token]...)
}

// FailNext makes the next n requests matching "METHOD /path/" answer 500.
func (s *Server) FailNext(route string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = n
}

// SetDown drops every connection while down is true.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *Server) Orders() []domain.CheckoutRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.CheckoutRequest(nil), s.orders...)
}

// Calls lists "METHOD /path/" of every request received.
func (s *Server) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := r.Method + " " + r.URL.Path

		s.mu.Lock()
		s.calls = append(s.calls, route)
		down := s.down
		fail := s.failures[route] > 0
		if fail {
			s.failures[route]--
		}
		s.mu.Unlock()

		if down {
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					_ = conn.Close()
					return
				}
			}
		}
		if fail || down {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "internal error"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) token(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Token ")
	if !ok {
		return "", false
	}
	_, known := s.users[token]
	return token, known
}

func (s *Server) listCart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.token(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, append([]domain.RemoteLineItem{}, s.carts[token]...))
}

func (s *Server) addCartItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.token(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req domain.AddCartItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"non_field_errors": []string{"invalid body"}})
		return
	}
	if req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"quantity": []string{"Ensure this value is greater than or equal to 1."}})
		return
	}

	key := domain.ItemKey{SneakerID: req.Sneaker, SizeID: req.SizeID}
	if limit, limited := s.stock[key]; limited && req.Quantity > limit {
		writeJSON(w, http.StatusBadRequest, map[string]any{"quantity": []string{"Not enough stock."}})
		return
	}

	s.nextID++
	row := domain.RemoteLineItem{
		ID:       s.nextID,
		Sneaker:  req.Sneaker,
		Size:     domain.RemoteSize{ID: req.SizeID, Size: s.sizeValue(req.Sneaker, req.SizeID)},
		Quantity: req.Quantity,
		User:     s.users[token],
	}
	s.carts[token] = append(s.carts[token], row)

	writeJSON(w, http.StatusCreated, row)
}

func (s *Server) updateCartItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.token(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	idx, found := s.rowIndex(token, r.PathValue("id"))
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}

	var req struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"quantity": []string{"Ensure this value is greater than or equal to 1."}})
		return
	}

	row := &s.carts[token][idx]
	key := domain.ItemKey{SneakerID: row.Sneaker, SizeID: row.Size.ID}
	if limit, limited := s.stock[key]; limited && req.Quantity > limit {
		writeJSON(w, http.StatusBadRequest, map[string]any{"quantity": []string{"Not enough stock."}})
		return
	}
	row.Quantity = req.Quantity

	writeJSON(w, http.StatusOK, *row)
}

func (s *Server) deleteCartItem(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.token(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	idx, found := s.rowIndex(token, r.PathValue("id"))
	if !found {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}

	rows := s.carts[token]
	s.carts[token] = append(rows[:idx:idx], rows[idx+1:]...)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getSneaker(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	sneaker, ok := s.sneakers[id]
	if err != nil || !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
		return
	}

	writeJSON(w, http.StatusOK, sneaker)
}

func (s *Server) checkout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.token(r)
	if !ok {
		writeUnauthorized(w)
		return
	}

	var req domain.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"non_field_errors": []string{"invalid body"}})
		return
	}
	if len(s.carts[token]) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"detail": "Cart is empty."})
		return
	}

	total := decimal.Zero
	for _, row := range s.carts[token] {
		if sneaker, ok := s.sneakers[row.Sneaker]; ok {
			total = total.Add(sneaker.Price.Mul(decimal.NewFromInt(int64(row.Quantity))))
		}
	}

	s.orders = append(s.orders, req)
	delete(s.carts, token)

	writeJSON(w, http.StatusCreated, domain.Order{
		ID:         int64(len(s.orders)),
		Status:     domain.OrderPending,
		TotalPrice: total,
		FullName:   req.FullName,
		Phone:      req.Phone,
		Address:    req.Address,
	})
}

func (s *Server) rowIndex(token, rawID string) (int, bool) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return 0, false
	}
	for i, row := range s.carts[token] {
		if row.ID == id {
			return i, true
		}
	}
	return 0, false
}

func (s *Server) sizeValue(sneakerID, sizeID int64) decimal.Decimal {
	if sneaker, ok := s.sneakers[sneakerID]; ok {
		if value, ok := sneaker.SizeValue(sizeID); ok {
			return value
		}
	}
	return decimal.Zero
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
