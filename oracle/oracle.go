/*
Package oracle reads the balances that the verifier compares.

A Snapshot reads every requested balance at the latest state, concurrently.
It is all or nothing: if a single read fails the snapshot is discarded and a
*common.QueryError is returned, so that a verification is never decided on a
partial view.  Reads are never retried.
*/
package oracle

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/eth"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/hermeznetwork/txverifier/metric"
	"golang.org/x/sync/errgroup"
)

const defaultMaxConcurrentReads = 8

// Oracle answers balance queries for any account on either layer
type Oracle struct {
	reader             eth.BalanceReader
	maxConcurrentReads int
}

// Option configures an Oracle
type Option func(*Oracle)

// WithMaxConcurrentReads limits the number of reads in flight during a
// Snapshot.  A value <= 0 removes the limit.
func WithMaxConcurrentReads(n int) Option {
	return func(o *Oracle) {
		o.maxConcurrentReads = n
	}
}

// New creates an Oracle on top of a BalanceReader
func New(reader eth.BalanceReader, opts ...Option) *Oracle {
	o := &Oracle{reader: reader, maxConcurrentReads: defaultMaxConcurrentReads}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Query returns the current balance of account on layer for token.  A failed
// read, or a nil or negative balance, is returned as a *common.QueryError.
func (o *Oracle) Query(ctx context.Context, account ethCommon.Address, layer common.Layer,
	token ethCommon.Address) (*big.Int, error) {
	key := common.BalanceKey{Account: account, Layer: layer, Token: token}
	return o.query(ctx, key)
}

func (o *Oracle) query(ctx context.Context, key common.BalanceKey) (*big.Int, error) {
	if !key.Layer.Valid() {
		return nil, &common.QueryError{Key: &key, Op: "balance",
			Err: fmt.Errorf("invalid layer %d", int(key.Layer))}
	}
	metric.BalanceQueries.WithLabelValues(key.Layer.String()).Inc()
	balance, err := o.reader.BalanceOf(ctx, key.Layer, key.Token, key.Account)
	if err == nil {
		switch {
		case balance == nil:
			err = fmt.Errorf("empty balance")
		case balance.Sign() < 0:
			err = fmt.Errorf("negative balance %s", balance)
		}
	}
	if err != nil {
		metric.QueryErrors.WithLabelValues(key.Layer.String()).Inc()
		log.Warnw("Balance query failed", "layer", key.Layer, "account", key.Account.Hex(),
			"token", key.Token.Hex(), "err", err)
		return nil, &common.QueryError{Key: &key, Op: "balance", Err: err}
	}
	log.Debugw("Balance", "layer", key.Layer, "account", key.Account.Hex(),
		"token", key.Token.Hex(), "balance", balance)
	return new(big.Int).Set(balance), nil
}

// Snapshot reads the balances of keys.  Duplicated keys are read once.
func (o *Oracle) Snapshot(ctx context.Context, keys []common.BalanceKey) (*common.Snapshot, error) {
	unique := common.UniqueKeys(keys)
	balances := make(map[common.BalanceKey]*big.Int, len(unique))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	if o.maxConcurrentReads > 0 {
		g.SetLimit(o.maxConcurrentReads)
	}
	for _, key := range unique {
		key := key
		g.Go(func() error {
			balance, err := o.query(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			balances[key] = balance
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return common.NewSnapshot(balances), nil
}
