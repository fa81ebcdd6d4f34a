package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// View names a cached listing that write paths invalidate.
type View string

const (
	ViewInventory  View = "inventory"
	ViewSales      View = "sales"
	ViewBackorders View = "backorders"
)

// BumpChannel carries "<view>:<version>" payloads after each invalidation.
const BumpChannel = "views.bump"

// Invalidator is the write-side contract used by domain services.
type Invalidator interface {
	Invalidate(ctx context.Context, views ...View) error
}

// Views is a versioned Redis cache keyed per view. Bumping a view's version
// orphans every entry cached under the previous version.
type Views struct {
	client      *redis.Client
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group
}

// DefaultLoadTimeout bounds a shared cache-miss load.
const DefaultLoadTimeout = 15 * time.Second

// NewViews constructs the view cache. A nil client disables caching.
func NewViews(client *redis.Client, ttl time.Duration) *Views {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Views{client: client, ttl: ttl, loadTimeout: DefaultLoadTimeout}
}

func versionKey(view View) string {
	return fmt.Sprintf("view:%s:version", view)
}

// Version returns the current version of view, initialising it when missing.
func (v *Views) Version(ctx context.Context, view View) (int64, error) {
	if v == nil || v.client == nil {
		return 0, nil
	}
	ver, err := v.client.Get(ctx, versionKey(view)).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so a concurrent bump is never overwritten.
		if err := v.client.SetNX(ctx, versionKey(view), 1, 0).Err(); err != nil {
			return 0, err
		}
		return v.client.Get(ctx, versionKey(view)).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes view:<name>:<version>:<hash of params>.
func (v *Views) BuildKey(ctx context.Context, view View, params any) (string, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("platform/cache: hash params: %w", err)
	}
	sum := sha256.Sum256(raw)
	ver, err := v.Version(ctx, view)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("view:%s:%d:%s", view, ver, hex.EncodeToString(sum[:8])), nil
}

// FetchJSON loads the cached value for (view, params) into dest or populates it
// with loader. Concurrent misses on the same key share one loader call.
func (v *Views) FetchJSON(ctx context.Context, view View, params any, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("platform/cache: loader required")
	}
	if v == nil || v.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		return roundTrip(value, dest)
	}
	key, err := v.BuildKey(ctx, view, params)
	if err != nil {
		return err
	}
	payload, err := v.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if !errors.Is(err, redis.Nil) {
		return err
	}
	ch := v.group.DoChan(key, func() (any, error) {
		// Shared by every waiter on key, so detached from the caller that started it.
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.loadTimeout)
		defer cancel()
		value, err := loader(loadCtx)
		if err != nil {
			return nil, err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		if err := v.client.Set(loadCtx, key, raw, v.ttl).Err(); err != nil {
			return nil, err
		}
		return raw, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return res.Err
		}
		return json.Unmarshal(res.Val.([]byte), dest)
	}
}

// Invalidate bumps the version of each view and publishes the new version.
func (v *Views) Invalidate(ctx context.Context, views ...View) error {
	if v == nil || v.client == nil {
		return nil
	}
	var errs []error
	for _, view := range views {
		ver, err := v.client.Incr(ctx, versionKey(view)).Result()
		if err != nil {
			errs = append(errs, fmt.Errorf("bump %s: %w", view, err))
			continue
		}
		payload := fmt.Sprintf("%s:%d", view, ver)
		if err := v.client.Publish(ctx, BumpChannel, payload).Err(); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", view, err))
		}
	}
	return errors.Join(errs...)
}

// Listen subscribes to bump notifications and calls fn for each one until ctx ends.
func (v *Views) Listen(ctx context.Context, fn func(View, int64)) error {
	if v == nil || v.client == nil {
		return nil
	}
	pubsub := v.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				view, ver, ok := parseBump(msg.Payload)
				if ok && fn != nil {
					fn(view, ver)
				}
			}
		}
	}()
	return nil
}

// ParseViews converts raw names into known views.
func ParseViews(names []string) ([]View, error) {
	out := make([]View, 0, len(names))
	for _, name := range names {
		switch view := View(strings.TrimSpace(name)); view {
		case ViewInventory, ViewSales, ViewBackorders:
			out = append(out, view)
		default:
			return nil, fmt.Errorf("platform/cache: unknown view %q", name)
		}
	}
	return out, nil
}

func parseBump(payload string) (View, int64, bool) {
	idx := strings.LastIndex(payload, ":")
	if idx <= 0 {
		return "", 0, false
	}
	ver, err := strconv.ParseInt(payload[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return View(payload[:idx]), ver, true
}

func roundTrip(value, dest any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}
