package service

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/evmauth/adapters/store"
	"github.com/layer-3/evmauth/core"
	"github.com/layer-3/evmauth/ports"
)

// ErrNoTokenIDs is returned when an ownership check names no tokens
var ErrNoTokenIDs = errors.New("no token ids to check")

// Oracle answers whether a wallet owns any of a set of tokens. Results are
// cached, concurrent identical checks share one query and query failures
// count as "not owned"
type Oracle struct {
	reader  ports.BalanceReader
	cache   *store.TokenCache
	pending *PendingRequests
	timeout time.Duration
	debug   bool
	logger  *slog.Logger
	metrics *Metrics
}

// NewOracle creates an oracle reading balances through reader. cfg supplies
// the RPC timeout and the debug flag
func NewOracle(reader ports.BalanceReader, cache *store.TokenCache, cfg core.Config, logger *slog.Logger, metrics *Metrics) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RPCTimeout
	if timeout <= 0 {
		timeout = core.DefaultRPCTimeout
	}
	return &Oracle{
		reader:  reader,
		cache:   cache,
		pending: NewPendingRequests(),
		timeout: timeout,
		debug:   cfg.Debug,
		logger:  logger,
		metrics: metrics,
	}
}

// CacheKey returns the cache and dedup key of a wallet / token pair
func CacheKey(wallet common.Address, id core.TokenID) string {
	return core.LowerHex(wallet) + "-" + id.String()
}

// CheckAccess reports whether wallet owns at least one of ids. The only
// errors are ErrNoTokenIDs and the caller's own context ending
func (o *Oracle) CheckAccess(ctx context.Context, wallet common.Address, ids []core.TokenID) (bool, error) {
	if len(ids) == 0 {
		return false, ErrNoTokenIDs
	}
	if len(ids) == 1 {
		return o.CheckSingleToken(ctx, wallet, ids[0])
	}

	remaining := make([]core.TokenID, 0, len(ids))
	for _, id := range ids {
		owned, ok := o.cache.Get(CacheKey(wallet, id))
		o.metrics.cacheLookup(ok)
		if !ok {
			remaining = append(remaining, id)
			continue
		}
		if owned {
			return true, nil
		}
	}

	switch len(remaining) {
	case 0:
		return false, nil
	case 1:
		return o.CheckSingleToken(ctx, wallet, remaining[0])
	}

	balances, err := o.batchBalances(ctx, wallet, remaining)
	if err == nil {
		owned := false
		for i, id := range remaining {
			has := balances[i].Sign() > 0
			o.cache.Set(CacheKey(wallet, id), has)
			owned = owned || has
		}
		return owned, nil
	}

	if o.debug {
		o.logger.Debug("batch balance query failed, falling back to single queries",
			"wallet", core.Redact(core.LowerHex(wallet)), "tokens", len(remaining), "error", err)
	}
	for _, id := range remaining {
		owned, err := o.CheckSingleToken(ctx, wallet, id)
		if err != nil {
			return false, err
		}
		if owned {
			return true, nil
		}
	}
	return false, nil
}

// CheckSingleToken reports whether wallet owns id. A cached result is returned
// as is; otherwise the check joins an in-flight query for the same key or
// starts one
func (o *Oracle) CheckSingleToken(ctx context.Context, wallet common.Address, id core.TokenID) (bool, error) {
	key := CacheKey(wallet, id)
	if owned, ok := o.cache.Get(key); ok {
		o.metrics.cacheLookup(true)
		return owned, nil
	}
	o.metrics.cacheLookup(false)

	// the query outlives any single waiter, so it must not inherit cancellation
	queryCtx := context.WithoutCancel(ctx)
	owned, _, err := o.pending.Do(ctx, key, func() (bool, error) {
		// a query that settled between the lookup above and joining the
		// registry has already cached its answer
		if owned, ok := o.cache.Get(key); ok {
			return owned, nil
		}
		return o.performTokenCheck(queryCtx, wallet, id), nil
	})
	return owned, err
}

// performTokenCheck queries one balance. Failures are logged and reported as
// not owned without being cached
func (o *Oracle) performTokenCheck(ctx context.Context, wallet common.Address, id core.TokenID) bool {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	balance, err := o.reader.BalanceOf(ctx, wallet, id)
	o.metrics.query("single", err)
	if err != nil {
		if o.debug {
			o.logger.Error("token balance check failed",
				"wallet", core.Redact(core.LowerHex(wallet)), "token_id", id, "error", err)
		}
		return false
	}

	owned := balance != nil && balance.Sign() > 0
	o.cache.Set(CacheKey(wallet, id), owned)
	return owned
}

func (o *Oracle) batchBalances(ctx context.Context, wallet common.Address, ids []core.TokenID) ([]*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	balances, err := o.reader.BalanceOfBatch(ctx, wallet, ids)
	if err == nil && len(balances) != len(ids) {
		err = errors.New("batch balance count mismatch")
	}
	if err == nil {
		for _, b := range balances {
			if b == nil {
				err = errors.New("batch returned a nil balance")
				break
			}
		}
	}
	o.metrics.query("batch", err)
	return balances, err
}

// Invalidate drops every cached result for wallet
func (o *Oracle) Invalidate(wallet common.Address) int {
	return o.cache.DeletePrefix(core.LowerHex(wallet) + "-")
}

// Clear drops every cached result
func (o *Oracle) Clear() {
	o.cache.Clear()
}

// Pending exposes the in-flight registry
func (o *Oracle) Pending() *PendingRequests {
	return o.pending
}

// Cache exposes the ownership cache
func (o *Oracle) Cache() *store.TokenCache {
	return o.cache
}
