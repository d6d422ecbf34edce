// Package cart keeps the shopping cart consistent across the guest slot and
// the storefront cart of a signed-in user.
//
// The backend is resolved on every call. Without a credential all operations
// go to the local slot; with one they go to the storefront API and the local
// slot is only read, as a fallback when the remote cart cannot be loaded.
// Switching backends never moves lines between them; see MergeGuestCart.
package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/nikolayk812/sneakercart/internal/domain"
	"github.com/nikolayk812/sneakercart/internal/port"
	"github.com/nikolayk812/sneakercart/internal/shopapi"
	"go.uber.org/zap"
	"golang.org/x/text/currency"
)

const (
	opAdd      = "add"
	opUpdate   = "update"
	opRemove   = "remove"
	opClear    = "clear"
	opCheckout = "checkout"
	opMerge    = "merge"
)

var fallbackMessages = map[string]string{
	opAdd:      "error adding to cart",
	opUpdate:   "error updating cart",
	opRemove:   "error removing item from cart",
	opClear:    "error clearing cart",
	opCheckout: "error placing order",
	opMerge:    "error moving guest cart",
}

// BackendFunc reports which backend serves the current call.
type BackendFunc func(ctx context.Context) domain.Backend

func StaticBackend(b domain.Backend) BackendFunc {
	return func(context.Context) domain.Backend { return b }
}

// RemoteFactory binds the storefront cart to one credential.
type RemoteFactory func(credential string) port.CartStore

// LocalStore is the guest cart.
type LocalStore interface {
	port.CartStore
	Adjust(ctx context.Context, key domain.ItemKey, next func(int) int) (domain.Result, bool, error)
	Clear(ctx context.Context) error
}

type Dependencies struct {
	Local   LocalStore
	Remote  RemoteFactory
	Backend BackendFunc

	// Catalog and Checkout are needed only by View and Checkout.
	Catalog  port.CatalogAPI
	Checkout port.CheckoutAPI

	Notifier Notifier
	Logger   *zap.Logger

	Currency        currency.Unit
	ViewConcurrency int
}

type Controller struct {
	local    LocalStore
	remote   RemoteFactory
	backend  BackendFunc
	catalog  port.CatalogAPI
	checkout port.CheckoutAPI
	notifier Notifier
	logger   *zap.Logger

	currency        currency.Unit
	viewConcurrency int

	queue  *keyedQueue[lockKey]
	events *broadcaster

	mu      sync.RWMutex
	items   []domain.LineItem
	summary domain.Summary
	// owner is the backend the mirror was last read from or written to.
	owner domain.Backend
	owned bool
}

// lockKey is one remote line, or the whole slot in local mode, where every
// mutation rewrites the same value.
type lockKey struct {
	remote bool
	item   domain.ItemKey
}

func New(deps Dependencies) (*Controller, error) {
	if deps.Local == nil {
		return nil, fmt.Errorf("local store is nil")
	}
	if deps.Remote == nil {
		return nil, fmt.Errorf("remote factory is nil")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend func is nil")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{Logger: deps.Logger}
	}
	if deps.Currency == (currency.Unit{}) {
		deps.Currency = currency.RUB
	}
	if deps.ViewConcurrency <= 0 {
		deps.ViewConcurrency = 4
	}

	return &Controller{
		local:           deps.Local,
		remote:          deps.Remote,
		backend:         deps.Backend,
		catalog:         deps.Catalog,
		checkout:        deps.Checkout,
		notifier:        deps.Notifier,
		logger:          deps.Logger.With(zap.String("component", "cart")),
		currency:        deps.Currency,
		viewConcurrency: deps.ViewConcurrency,
		queue:           newKeyedQueue[lockKey](),
		events:          newBroadcaster(),
		items:           []domain.LineItem{},
	}, nil
}

// Subscribe returns a channel that receives a signal after every change of
// the cart. The signal carries nothing; read Summary or Items on receipt.
// The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan struct{}, func()) {
	return c.events.subscribe()
}

// Close releases all subscribers.
func (c *Controller) Close() {
	c.events.close()
}

func (c *Controller) Summary() domain.Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.summary
}

func (c *Controller) Items() []domain.LineItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.CloneItems(c.items)
}

// Load reads the cart of the active backend and never fails: a remote
// failure falls back to the guest slot and a local failure to an empty cart.
func (c *Controller) Load(ctx context.Context) []domain.LineItem {
	items, changed := c.load(ctx)
	if changed {
		c.events.publish()
	}
	return items
}

func (c *Controller) load(ctx context.Context) ([]domain.LineItem, bool) {
	store, backend := c.store(ctx)
	logger := c.logger.With(zap.Stringer("mode", backend))

	owner := backend
	items, err := store.Load(ctx)
	if err != nil && backend.IsRemote() {
		logger.Warn("remote cart unavailable, using local cart", zap.Error(err))
		owner = domain.LocalBackend()
		items, err = c.local.Load(ctx)
	}
	if err != nil {
		logger.Warn("local cart unreadable, using empty cart", zap.Error(err))
		items = []domain.LineItem{}
	}

	return c.replace(owner, items)
}

// adopt makes sure the mirror holds the remote cart of backend before a
// remote delta is applied to it. A mirror left from another backend is
// reloaded from store, or emptied when the remote cart cannot be read.
func (c *Controller) adopt(ctx context.Context, store port.CartStore, backend domain.Backend) {
	c.mu.RLock()
	current := c.owned && c.owner == backend
	c.mu.RUnlock()
	if current {
		return
	}

	items, err := store.Load(ctx)
	if err != nil {
		c.logger.Warn("remote cart unavailable, resetting mirror", zap.Stringer("mode", backend), zap.Error(err))
		items = []domain.LineItem{}
	}

	if _, changed := c.replace(backend, items); changed {
		c.events.publish()
	}
}

// Add puts item into the cart. A zero quantity means one. Locally, a line
// with the same sneaker and size has its quantity increased instead.
func (c *Controller) Add(ctx context.Context, item domain.LineItem) ([]domain.LineItem, error) {
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	if item.Quantity < 1 {
		return c.Items(), domain.ErrInvalidQuantity
	}
	item.ID = nil

	store, backend := c.store(ctx)
	release := c.queue.acquire(c.lockKey(backend, item.Key()))
	defer release()

	if backend.IsRemote() {
		c.adopt(ctx, store, backend)
	}

	res, err := store.Add(ctx, item)
	if err != nil {
		return c.failed(opAdd, backend, item.Key(), err)
	}

	return c.apply(backend, res), nil
}

// SetQuantity replaces the quantity of the line. Quantities below one are
// refused before any store is touched.
func (c *Controller) SetQuantity(ctx context.Context, key domain.ItemKey, quantity int) ([]domain.LineItem, error) {
	if quantity < 1 {
		return c.Items(), domain.ErrInvalidQuantity
	}

	return c.update(ctx, key, func(int) int { return quantity })
}

func (c *Controller) Increment(ctx context.Context, key domain.ItemKey) ([]domain.LineItem, error) {
	return c.update(ctx, key, func(q int) int { return q + 1 })
}

// Decrement at quantity one leaves the line alone; removing is explicit.
func (c *Controller) Decrement(ctx context.Context, key domain.ItemKey) ([]domain.LineItem, error) {
	return c.update(ctx, key, func(q int) int { return q - 1 })
}

// update reads the current quantity after earlier mutations of the same
// line have finished, so back-to-back increments are not lost. Locally the
// quantity is read and written within one slot update.
func (c *Controller) update(ctx context.Context, key domain.ItemKey, next func(int) int) ([]domain.LineItem, error) {
	store, backend := c.store(ctx)
	release := c.queue.acquire(c.lockKey(backend, key))
	defer release()

	if !backend.IsRemote() {
		res, changed, err := c.local.Adjust(ctx, key, next)
		if err != nil {
			return c.failed(opUpdate, backend, key, err)
		}
		if !changed {
			items, refreshed := c.replace(backend, res.Snapshot)
			if refreshed {
				c.events.publish()
			}
			return items, nil
		}
		return c.apply(backend, res), nil
	}

	c.adopt(ctx, store, backend)

	item, ok := c.find(key)
	if !ok {
		return c.failed(opUpdate, backend, key, domain.ErrItemNotFound)
	}

	quantity := next(item.Quantity)
	if quantity < 1 || quantity == item.Quantity {
		return c.Items(), nil
	}

	res, err := store.Update(ctx, item, quantity)
	if err != nil {
		return c.failed(opUpdate, backend, key, err)
	}

	return c.apply(backend, res), nil
}

func (c *Controller) Remove(ctx context.Context, key domain.ItemKey) ([]domain.LineItem, error) {
	store, backend := c.store(ctx)
	release := c.queue.acquire(c.lockKey(backend, key))
	defer release()

	if backend.IsRemote() {
		c.adopt(ctx, store, backend)
	}

	item, ok := c.find(key)
	if !ok {
		// the store resolves by key
		item = domain.LineItem{SneakerID: key.SneakerID, SizeID: key.SizeID}
	}

	res, err := store.Remove(ctx, item)
	if err != nil {
		return c.failed(opRemove, backend, key, err)
	}

	return c.apply(backend, res), nil
}

// Clear empties the guest slot, or removes every line of the remote cart.
func (c *Controller) Clear(ctx context.Context) ([]domain.LineItem, error) {
	store, backend := c.store(ctx)

	if !backend.IsRemote() {
		release := c.queue.acquire(c.lockKey(backend, domain.ItemKey{}))
		defer release()

		if err := c.local.Clear(ctx); err != nil {
			return c.failed(opClear, backend, domain.ItemKey{}, err)
		}
		return c.apply(backend, domain.SnapshotResult(nil)), nil
	}

	items, err := store.Load(ctx)
	if err != nil {
		return c.failed(opClear, backend, domain.ItemKey{}, err)
	}
	_, changed := c.replace(backend, items)

	var (
		errs    []error
		removed int
	)
	for _, item := range items {
		if err := c.removeLine(ctx, store, backend, item); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 || changed {
		c.events.publish()
	}
	if err := errors.Join(errs...); err != nil {
		return c.failed(opClear, backend, domain.ItemKey{}, err)
	}

	return c.Items(), nil
}

func (c *Controller) removeLine(ctx context.Context, store port.CartStore, backend domain.Backend, item domain.LineItem) error {
	release := c.queue.acquire(c.lockKey(backend, item.Key()))
	defer release()

	res, err := store.Remove(ctx, item)
	if err != nil {
		return fmt.Errorf("store.Remove[%s]: %w", item.Key(), err)
	}

	c.applyResult(backend, res)
	return nil
}

func (c *Controller) store(ctx context.Context) (port.CartStore, domain.Backend) {
	backend := c.backend(ctx)
	if backend.IsRemote() {
		return c.remote(backend.Credential()), backend
	}
	return c.local, backend
}

func (c *Controller) lockKey(backend domain.Backend, key domain.ItemKey) lockKey {
	if !backend.IsRemote() {
		return lockKey{}
	}
	return lockKey{remote: true, item: key}
}

func (c *Controller) find(key domain.ItemKey) (domain.LineItem, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	idx := domain.IndexOf(c.items, key)
	if idx < 0 {
		return domain.LineItem{}, false
	}
	return domain.CloneItems(c.items[idx : idx+1])[0], true
}

// apply updates the mirror and summary, then signals subscribers once.
func (c *Controller) apply(backend domain.Backend, res domain.Result) []domain.LineItem {
	items := c.applyResult(backend, res)
	c.events.publish()
	return items
}

// applyResult never lays a delta over lines of another backend.
func (c *Controller) applyResult(backend domain.Backend, res domain.Result) []domain.LineItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	base := c.items
	if !res.Complete && (!c.owned || c.owner != backend) {
		base = nil
	}

	c.items = res.Apply(base)
	c.summary = domain.Summarize(c.items)
	c.owner, c.owned = backend, true

	return domain.CloneItems(c.items)
}

func (c *Controller) replace(owner domain.Backend, items []domain.LineItem) ([]domain.LineItem, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := !slices.EqualFunc(c.items, items, sameLine)
	c.items = domain.CloneItems(items)
	c.summary = domain.Summarize(c.items)
	c.owner, c.owned = owner, true

	return domain.CloneItems(c.items), changed
}

func sameLine(a, b domain.LineItem) bool {
	if (a.ID == nil) != (b.ID == nil) {
		return false
	}
	if a.ID != nil && *a.ID != *b.ID {
		return false
	}
	return a.Key() == b.Key() && a.Quantity == b.Quantity
}

// failed leaves the mirror untouched and tells the user what went wrong.
func (c *Controller) failed(op string, backend domain.Backend, key domain.ItemKey, err error) ([]domain.LineItem, error) {
	c.logger.Warn("cart operation failed",
		zap.String("op", op),
		zap.Stringer("mode", backend),
		zap.Int64("sneaker_id", key.SneakerID),
		zap.Int64("size_id", key.SizeID),
		zap.Error(err))

	c.notify(LevelError, op, userMessage(op, err), err)

	return c.Items(), err
}

func (c *Controller) notify(level Level, op, message string, err error) {
	c.notifier.Notify(Notification{Level: level, Op: op, Message: message, Err: err})
}

func userMessage(op string, err error) string {
	fallback := fallbackMessages[op]

	var apiErr *shopapi.APIError
	if errors.As(err, &apiErr) {
		if apiErr.IsValidation() {
			return shopapi.Message(err, fallback)
		}
		if apiErr.IsUnauthorized() {
			return "session expired, please sign in again"
		}
	}
	if errors.Is(err, domain.ErrItemNotFound) {
		return "item is no longer in the cart"
	}

	return fallback
}
