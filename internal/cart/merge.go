package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikolayk812/sneakercart/internal/domain"
	"go.uber.org/zap"
)

type MergeReport struct {
	Added   int
	Updated int
	Failed  []domain.ItemKey
	// Kept lines reached the signed-in cart but could not be dropped from
	// the guest slot. Merging again would count them twice.
	Kept []domain.ItemKey
}

type mergeStep struct {
	guest domain.LineItem
	// remote is set when the signed-in cart already has the line
	remote *domain.LineItem
}

// planMerge lines guest items up against the remote cart by sneaker and size.
func planMerge(remote, guest []domain.LineItem) []mergeStep {
	byKey := make(map[domain.ItemKey]domain.LineItem, len(remote))
	for _, item := range remote {
		byKey[item.Key()] = item
	}

	steps := make([]mergeStep, 0, len(guest))
	for _, item := range guest {
		step := mergeStep{guest: item}
		if existing, ok := byKey[item.Key()]; ok {
			step.remote = &existing
		}
		steps = append(steps, step)
	}

	return steps
}

// MergeGuestCart moves the guest cart into the signed-in cart. Nothing ever
// calls it implicitly; signing in alone leaves the guest slot as it is.
// Matching lines get the summed quantity, others are added. Each line that
// made it is dropped from the guest slot, so a retry after a partial failure
// does not count it twice. When that drop itself fails the line is reported
// in Kept and must be removed from the guest cart before merging again.
func (c *Controller) MergeGuestCart(ctx context.Context) (MergeReport, error) {
	var report MergeReport

	backend := c.backend(ctx)
	if !backend.IsRemote() {
		return report, domain.ErrNotAuthenticated
	}

	guest, err := c.local.Load(ctx)
	if err != nil {
		return report, fmt.Errorf("local.Load: %w", err)
	}
	if len(guest) == 0 {
		return report, nil
	}

	store := c.remote(backend.Credential())

	current, err := store.Load(ctx)
	if err != nil {
		c.notify(LevelError, opMerge, fallbackMessages[opMerge], err)
		return report, fmt.Errorf("remote.Load: %w", err)
	}
	c.replace(backend, current)

	var errs []error
	for _, step := range planMerge(current, guest) {
		key := step.guest.Key()
		release := c.queue.acquire(c.lockKey(backend, key))

		var res domain.Result
		if step.remote != nil {
			res, err = store.Update(ctx, *step.remote, step.remote.Quantity+step.guest.Quantity)
		} else {
			item := step.guest
			item.ID = nil
			res, err = store.Add(ctx, item)
		}

		if err != nil {
			release()
			report.Failed = append(report.Failed, key)
			errs = append(errs, fmt.Errorf("item[%s]: %w", key, err))
			continue
		}

		c.applyResult(backend, res)
		release()

		if step.remote != nil {
			report.Updated++
		} else {
			report.Added++
		}

		// the only write to the guest slot while signed in
		if _, err := c.local.Remove(ctx, step.guest); err != nil {
			report.Kept = append(report.Kept, key)
			errs = append(errs, fmt.Errorf("local.Remove[%s]: %w", key, err))
		}
	}

	if report.Added+report.Updated > 0 {
		c.events.publish()
	}

	if err := errors.Join(errs...); err != nil {
		c.logger.Warn("guest cart partly merged",
			zap.Int("added", report.Added),
			zap.Int("updated", report.Updated),
			zap.Int("failed", len(report.Failed)),
			zap.Int("kept", len(report.Kept)),
			zap.Error(err))
		c.notify(LevelError, opMerge, fallbackMessages[opMerge], err)
		return report, err
	}

	c.logger.Info("guest cart merged", zap.Int("added", report.Added), zap.Int("updated", report.Updated))
	return report, nil
}
