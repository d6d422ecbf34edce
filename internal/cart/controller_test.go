package cart

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/nikolayk812/sneakercart/internal/cartstore"
	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/nikolayk812/sneakercart/internal/port"
	"github.com/nikolayk812/sneakercart/internal/repository"
	"github.com/nikolayk812/sneakercart/internal/shopapi"
	"github.com/nikolayk812/sneakercart/internal/shopapi/shopapitest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const token = "user-token"

type fixture struct {
	ctrl    *Controller
	srv     *shopapitest.Server
	local   *cartstore.Local
	backend *backendSwitch
	notes   *recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWith(t, nil)
}

// newFixtureWith lets wrap stand in front of the guest store.
func newFixtureWith(t *testing.T, wrap func(*cartstore.Local) LocalStore) *fixture {
	t.Helper()

	srv := shopapitest.New(t, token)
	srv.AddSneaker(7, "Air Max", "12990", map[int64]string{2: "9.5", 3: "10"})

	transport := &http.Transport{}
	t.Cleanup(transport.CloseIdleConnections)

	client := shopapi.New(shopapi.Options{
		BaseURL:      srv.URL,
		RetryInitial: time.Millisecond,
		HTTPClient:   &http.Client{Transport: transport, Timeout: 2 * time.Second},
	})

	local := cartstore.NewLocal(repository.NewMemorySlots(), cartstore.DefaultSlot, nil)
	backend := &backendSwitch{backend: domain.LocalBackend()}
	notes := &recorder{}

	var guest LocalStore = local
	if wrap != nil {
		guest = wrap(local)
	}

	ctrl, err := New(Dependencies{
		Local: guest,
		Remote: func(credential string) port.CartStore {
			return cartstore.NewRemote(client, credential, nil)
		},
		Backend:  backend.get,
		Catalog:  client,
		Checkout: client,
		Notifier: NotifierFunc(notes.add),
	})
	require.NoError(t, err)
	t.Cleanup(ctrl.Close)

	return &fixture{ctrl: ctrl, srv: srv, local: local, backend: backend, notes: notes}
}

func (f *fixture) login() {
	f.backend.set(domain.RemoteBackend(token))
}

func (f *fixture) guestItems(t *testing.T) []domain.LineItem {
	t.Helper()

	items, err := f.local.Load(t.Context())
	require.NoError(t, err)
	return items
}

type backendSwitch struct {
	mu      sync.Mutex
	backend domain.Backend
}

func (s *backendSwitch) get(context.Context) domain.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend
}

func (s *backendSwitch) set(b domain.Backend) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backend = b
}

type recorder struct {
	mu    sync.Mutex
	notes []Notification
}

func (r *recorder) add(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) all() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.notes...)
}

func (r *recorder) last(t *testing.T) Notification {
	t.Helper()

	notes := r.all()
	require.NotEmpty(t, notes)
	return notes[len(notes)-1]
}

func TestNew(t *testing.T) {
	local := cartstore.NewLocal(repository.NewMemorySlots(), "", nil)
	remote := func(string) port.CartStore { return local }
	backend := StaticBackend(domain.LocalBackend())

	tests := []struct {
		name    string
		deps    Dependencies
		wantErr bool
	}{
		{
			name: "all set: ok",
			deps: Dependencies{Local: local, Remote: remote, Backend: backend},
		},
		{
			name:    "no local: error",
			deps:    Dependencies{Remote: remote, Backend: backend},
			wantErr: true,
		},
		{
			name:    "no remote: error",
			deps:    Dependencies{Local: local, Backend: backend},
			wantErr: true,
		},
		{
			name:    "no backend: error",
			deps:    Dependencies{Local: local, Remote: remote},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl, err := New(tt.deps)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			ctrl.Close()
		})
	}
}

func TestController_GuestScenario(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	key := domain.ItemKey{SneakerID: 5, SizeID: 3}

	assert.Empty(t, f.ctrl.Load(ctx))

	items, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 5, SizeID: 3, Quantity: 1})
	require.NoError(t, err)
	assertItems(t, []domain.LineItem{{SneakerID: 5, SizeID: 3, Quantity: 1}}, items)
	assert.Equal(t, domain.Summary{Lines: 1, Quantity: 1}, f.ctrl.Summary())

	items, err = f.ctrl.Increment(ctx, key)
	require.NoError(t, err)
	assertItems(t, []domain.LineItem{{SneakerID: 5, SizeID: 3, Quantity: 2}}, items)
	assert.Equal(t, domain.Summary{Lines: 1, Quantity: 2}, f.ctrl.Summary())

	items, err = f.ctrl.Remove(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, domain.Summary{}, f.ctrl.Summary())

	assert.Empty(t, f.ctrl.Load(ctx))
	assert.Empty(t, f.guestItems(t))
	assert.Empty(t, f.srv.Calls())
	assert.Empty(t, f.notes.all())
}

func TestController_AddSumsQuantities(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 2})
	require.NoError(t, err)
	_, err = f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 3})
	require.NoError(t, err)
	items, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2})
	require.NoError(t, err)

	want := []domain.LineItem{{SneakerID: 7, SizeID: 2, Quantity: 6}}
	assertItems(t, want, items)
	assertItems(t, want, f.guestItems(t))
	assert.Equal(t, domain.Summary{Lines: 1, Quantity: 6}, f.ctrl.Summary())
}

func TestController_InvalidQuantityNeverReachesStore(t *testing.T) {
	f := newFixture(t)
	f.login()
	ctx := t.Context()
	key := domain.ItemKey{SneakerID: 7, SizeID: 2}

	_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: -1})
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.ctrl.SetQuantity(ctx, key, 0)
	require.ErrorIs(t, err, domain.ErrInvalidQuantity)

	assert.Empty(t, f.srv.Calls())
}

func TestController_DecrementAtOneIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()
	key := domain.ItemKey{SneakerID: 7, SizeID: 2}

	_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 2})
	require.NoError(t, err)

	ch, unsubscribe := f.ctrl.Subscribe()
	defer unsubscribe()

	items, err := f.ctrl.Decrement(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 1, items[0].Quantity)
	assertSignals(t, ch, 1)

	items, err = f.ctrl.Decrement(ctx, key)
	require.NoError(t, err)
	assertItems(t, []domain.LineItem{{SneakerID: 7, SizeID: 2, Quantity: 1}}, items)
	assertSignals(t, ch, 0)
}

func TestController_UpdateUnknownLine(t *testing.T) {
	f := newFixture(t)

	_, err := f.ctrl.SetQuantity(t.Context(), domain.ItemKey{SneakerID: 1, SizeID: 1}, 3)
	require.ErrorIs(t, err, domain.ErrItemNotFound)

	note := f.notes.last(t)
	assert.Equal(t, LevelError, note.Level)
	assert.Equal(t, "item is no longer in the cart", note.Message)
}

func TestController_LoginKeepsGuestCart(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 5, SizeID: 3, Quantity: 1})
	require.NoError(t, err)

	ch, unsubscribe := f.ctrl.Subscribe()
	defer unsubscribe()

	f.login()
	assert.Empty(t, f.ctrl.Load(ctx))
	assert.Empty(t, f.ctrl.Items())
	assertSignals(t, ch, 1)

	assertItems(t, []domain.LineItem{{SneakerID: 5, SizeID: 3, Quantity: 1}}, f.guestItems(t))
}

func TestController_LoadFallsBackToGuestCart(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 5, SizeID: 3, Quantity: 1})
	require.NoError(t, err)

	f.login()
	f.srv.SetDown(true)

	items := f.ctrl.Load(ctx)
	assertItems(t, []domain.LineItem{{SneakerID: 5, SizeID: 3, Quantity: 1}}, items)
}

func TestController_LoadPublishesOnlyOnChange(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	ch, unsubscribe := f.ctrl.Subscribe()
	defer unsubscribe()

	f.ctrl.Load(ctx)
	assertSignals(t, ch, 0)

	f.login()
	f.srv.SetCart(token, []domain.RemoteLineItem{{ID: 9, Sneaker: 7, Size: domain.RemoteSize{ID: 2}, Quantity: 1}})

	f.ctrl.Load(ctx)
	assertSignals(t, ch, 1)

	f.ctrl.Load(ctx)
	assertSignals(t, ch, 0)
}

func TestController_RemoteAdd(t *testing.T) {
	f := newFixture(t)
	f.login()
	ctx := t.Context()

	items, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 1})
	require.NoError(t, err)

	id := int64(42)
	assertItems(t, []domain.LineItem{{ID: &id, SneakerID: 7, SizeID: 2, Quantity: 1}}, items)

	rows := f.srv.Cart(token)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].Size.ID)
	assert.Equal(t, "9.5", rows[0].Size.Size.String())

	assert.Empty(t, f.guestItems(t))
}

func TestController_RemoteFailureKeepsMirror(t *testing.T) {
	f := newFixture(t)
	f.login()
	ctx := t.Context()
	key := domain.ItemKey{SneakerID: 7, SizeID: 2}

	before, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 1})
	require.NoError(t, err)

	ch, unsubscribe := f.ctrl.Subscribe()
	defer unsubscribe()

	f.srv.FailNext("PATCH /api/cart/42/", 1)

	items, err := f.ctrl.Increment(ctx, key)
	require.Error(t, err)
	assertItems(t, before, items)
	assertItems(t, before, f.ctrl.Items())
	assertSignals(t, ch, 0)

	note := f.notes.last(t)
	assert.Equal(t, LevelError, note.Level)
	assert.Equal(t, opUpdate, note.Op)
	assert.Equal(t, "error updating cart", note.Message)
}

func TestController_ValidationMessage(t *testing.T) {
	f := newFixture(t)
	f.login()
	f.srv.SetStock(domain.ItemKey{SneakerID: 7, SizeID: 2}, 1)

	items, err := f.ctrl.Add(t.Context(), domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 2})
	require.Error(t, err)
	assert.Empty(t, items)

	assert.Equal(t, "Not enough stock.", f.notes.last(t).Message)
}

func TestController_RemoveResolvesByKey(t *testing.T) {
	f := newFixture(t)
	f.login()
	f.srv.SetCart(token, []domain.RemoteLineItem{{ID: 9, Sneaker: 7, Size: domain.RemoteSize{ID: 2}, Quantity: 1}})

	items, err := f.ctrl.Remove(t.Context(), domain.ItemKey{SneakerID: 7, SizeID: 2})
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Empty(t, f.srv.Cart(token))
}

func TestController_ConcurrentIncrements(t *testing.T) {
	const n = 10

	tests := []struct {
		name   string
		remote bool
	}{
		{name: "local: ok"},
		{name: "remote: ok", remote: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.remote {
				f.login()
			}
			ctx := t.Context()
			key := domain.ItemKey{SneakerID: 7, SizeID: 3}

			_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 3, Quantity: 1})
			require.NoError(t, err)

			var wg sync.WaitGroup
			for range n {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := f.ctrl.Increment(ctx, key)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			items := f.ctrl.Items()
			require.Len(t, items, 1)
			assert.Equal(t, n+1, items[0].Quantity)

			if tt.remote {
				assert.Equal(t, n+1, f.srv.Cart(token)[0].Quantity)
			} else {
				assert.Equal(t, n+1, f.guestItems(t)[0].Quantity)
			}
		})
	}
}

func TestController_Subscribe(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	first, unsubscribe := f.ctrl.Subscribe()
	second, _ := f.ctrl.Subscribe()

	_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 1})
	require.NoError(t, err)

	assertSignals(t, first, 1)
	assertSignals(t, second, 1)

	unsubscribe()
	_, open := <-first
	assert.False(t, open)

	f.ctrl.Close()
	_, open = <-second
	assert.False(t, open)
}

func TestController_Clear(t *testing.T) {
	tests := []struct {
		name   string
		remote bool
	}{
		{name: "local: ok"},
		{name: "remote: ok", remote: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.remote {
				f.login()
			}
			ctx := t.Context()

			_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 1})
			require.NoError(t, err)
			_, err = f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 3, Quantity: 2})
			require.NoError(t, err)

			items, err := f.ctrl.Clear(ctx)
			require.NoError(t, err)
			assert.Empty(t, items)
			assert.Equal(t, domain.Summary{}, f.ctrl.Summary())

			assert.Empty(t, f.guestItems(t))
			assert.Empty(t, f.srv.Cart(token))
		})
	}
}

func TestController_View(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 2})
	require.NoError(t, err)
	_, err = f.ctrl.Add(ctx, domain.LineItem{SneakerID: 8, SizeID: 1, Quantity: 1})
	require.NoError(t, err)

	view := f.ctrl.View(ctx)

	require.Len(t, view.Lines, 1)
	line := view.Lines[0]
	assert.Equal(t, "Air Max", line.Name)
	assert.Equal(t, "/media/7.jpg", line.Image)
	assert.Equal(t, "9.5", line.SizeValue.String())
	assert.Equal(t, "12990.00 RUB", line.UnitPrice.String())
	assert.Equal(t, "25980.00 RUB", line.Subtotal.String())

	assertItems(t, []domain.LineItem{{SneakerID: 8, SizeID: 1, Quantity: 1}}, view.Pending)
	assert.Equal(t, "25980.00 RUB", view.Total.String())
	assert.Equal(t, domain.Summary{Lines: 2, Quantity: 3}, view.Summary)
}

func TestController_Checkout(t *testing.T) {
	full := domain.CheckoutRequest{FullName: "Ivan Petrov", Phone: "+79990000000", Address: "Moscow"}

	t.Run("guest: error", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.ctrl.Checkout(t.Context(), full)
		require.ErrorIs(t, err, domain.ErrNotAuthenticated)
		assert.Equal(t, "sign in to place an order", f.notes.last(t).Message)
		assert.Empty(t, f.srv.Calls())
	})

	t.Run("missing phone: error", func(t *testing.T) {
		f := newFixture(t)
		f.login()

		req := full
		req.Phone = "  "

		_, err := f.ctrl.Checkout(t.Context(), req)
		require.ErrorIs(t, err, domain.ErrIncompleteCheckout)
		assert.Equal(t, "please fill in all fields", f.notes.last(t).Message)
		assert.Empty(t, f.srv.Calls())
	})

	t.Run("empty cart: error", func(t *testing.T) {
		f := newFixture(t)
		f.login()

		_, err := f.ctrl.Checkout(t.Context(), full)
		require.Error(t, err)
		assert.Equal(t, "Cart is empty.", f.notes.last(t).Message)
	})

	t.Run("placed: ok", func(t *testing.T) {
		f := newFixture(t)
		f.login()
		ctx := t.Context()

		_, err := f.ctrl.Add(ctx, domain.LineItem{SneakerID: 7, SizeID: 2, Quantity: 2})
		require.NoError(t, err)

		ch, unsubscribe := f.ctrl.Subscribe()
		defer unsubscribe()

		order, err := f.ctrl.Checkout(ctx, full)
		require.NoError(t, err)
		assert.Equal(t, int64(1), order.ID)
		assert.Equal(t, domain.OrderPending, order.Status)
		assert.Equal(t, "25980", order.TotalPrice.String())

		assert.Empty(t, f.ctrl.Items())
		assertSignals(t, ch, 1)

		orders := f.srv.Orders()
		require.Len(t, orders, 1)
		assert.Equal(t, domain.PaymentCard, orders[0].PaymentMethod)

		note := f.notes.last(t)
		assert.Equal(t, LevelInfo, note.Level)
		assert.Equal(t, "order placed", note.Message)
	})
}

func TestController_MergeGuestCart(t *testing.T) {
	guest := []domain.LineItem{
		{SneakerID: 7, SizeID: 2, Quantity: 1},
		{SneakerID: 8, SizeID: 1, Quantity: 2},
	}
	remote := []domain.RemoteLineItem{{ID: 9, Sneaker: 7, Size: domain.RemoteSize{ID: 2}, Quantity: 3}}

	fill := func(t *testing.T, f *fixture) {
		t.Helper()
		for _, item := range guest {
			_, err := f.ctrl.Add(t.Context(), item)
			require.NoError(t, err)
		}
		f.srv.SetCart(token, remote)
	}

	quantities := func(rows []domain.RemoteLineItem) map[domain.ItemKey]int {
		out := make(map[domain.ItemKey]int)
		for _, row := range rows {
			out[row.ToLineItem().Key()] = row.Quantity
		}
		return out
	}

	t.Run("guest: error", func(t *testing.T) {
		f := newFixture(t)
		fill(t, f)

		_, err := f.ctrl.MergeGuestCart(t.Context())
		require.ErrorIs(t, err, domain.ErrNotAuthenticated)
		assertItems(t, guest, f.guestItems(t))
	})

	t.Run("merged: ok", func(t *testing.T) {
		f := newFixture(t)
		fill(t, f)
		f.login()

		report, err := f.ctrl.MergeGuestCart(t.Context())
		require.NoError(t, err)
		assert.Equal(t, MergeReport{Added: 1, Updated: 1}, report)

		assert.Equal(t, map[domain.ItemKey]int{
			{SneakerID: 7, SizeID: 2}: 4,
			{SneakerID: 8, SizeID: 1}: 2,
		}, quantities(f.srv.Cart(token)))

		assert.Empty(t, f.guestItems(t))
		assert.Equal(t, domain.Summary{Lines: 2, Quantity: 6}, f.ctrl.Summary())
	})

	t.Run("partial then retry: ok", func(t *testing.T) {
		f := newFixture(t)
		fill(t, f)
		f.login()
		ctx := t.Context()

		f.srv.FailNext("POST /api/cart/", 1)

		report, err := f.ctrl.MergeGuestCart(ctx)
		require.Error(t, err)
		assert.Equal(t, 1, report.Updated)
		assert.Equal(t, []domain.ItemKey{{SneakerID: 8, SizeID: 1}}, report.Failed)
		assertItems(t, guest[1:], f.guestItems(t))
		assert.Equal(t, opMerge, f.notes.last(t).Op)

		report, err = f.ctrl.MergeGuestCart(ctx)
		require.NoError(t, err)
		assert.Equal(t, MergeReport{Added: 1}, report)

		assert.Equal(t, map[domain.ItemKey]int{
			{SneakerID: 7, SizeID: 2}: 4,
			{SneakerID: 8, SizeID: 1}: 2,
		}, quantities(f.srv.Cart(token)))
		assert.Empty(t, f.guestItems(t))
	})

	t.Run("empty guest cart: ok", func(t *testing.T) {
		f := newFixture(t)
		f.login()

		report, err := f.ctrl.MergeGuestCart(t.Context())
		require.NoError(t, err)
		assert.Equal(t, MergeReport{}, report)
		assert.Empty(t, f.srv.Calls())
	})
}

func assertItems(t *testing.T, want, got []domain.LineItem) {
	t.Helper()
	assert.Empty(t, cmp.Diff(want, got))
}
