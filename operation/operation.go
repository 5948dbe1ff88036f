/*
Package operation implements the settlement handle of a submitted transaction.

Each operation kind walks a fixed path of stages:

	L2 tx:      Submitted -> L2Applied
	L1 tx:      Submitted -> L1Included
	deposit:    Submitted -> L1Included -> L2Applied
	withdrawal: Submitted -> L2Applied  -> Finalized

The party that observes the chains (a receipt poller, or the in-memory test
chain) advances the Handle; the party that asserts on the outcome blocks on the
stage it needs.  Waiting never polls: every stage has a channel that is closed
once the stage is reached or the operation fails.  An operation can't be
cancelled, a context only bounds how long a caller waits for it.
*/
package operation

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
)

// Stage is a settlement milestone of an operation
type Stage int

const (
	// StageSubmitted means the transaction was accepted by a node
	StageSubmitted Stage = iota + 1
	// StageL1Included means the L1 transaction was included in a block
	StageL1Included
	// StageL2Applied means the effect was applied on L2
	StageL2Applied
	// StageFinalized means the L2 batch was finalized on L1, so a
	// withdrawal message is available for finalization
	StageFinalized
)

// String returns the name of the stage
func (s Stage) String() string {
	switch s {
	case StageSubmitted:
		return "Submitted"
	case StageL1Included:
		return "L1Included"
	case StageL2Applied:
		return "L2Applied"
	case StageFinalized:
		return "Finalized"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

var paths = map[common.OpKind][]Stage{
	common.OpL2Tx:       {StageSubmitted, StageL2Applied},
	common.OpL1Tx:       {StageSubmitted, StageL1Included},
	common.OpDeposit:    {StageSubmitted, StageL1Included, StageL2Applied},
	common.OpWithdrawal: {StageSubmitted, StageL2Applied, StageFinalized},
}

// Path returns the ordered stages of an operation kind
func Path(kind common.OpKind) []Stage {
	path := paths[kind]
	out := make([]Stage, len(path))
	copy(out, path)
	return out
}

// Terminal returns the stage at which an operation of the given kind is
// settled
func Terminal(kind common.OpKind) Stage {
	path := paths[kind]
	if len(path) == 0 {
		return 0
	}
	return path[len(path)-1]
}

// Handle tracks the settlement of one operation
type Handle struct {
	kind common.OpKind
	hash ethCommon.Hash

	rw       sync.RWMutex
	pos      int // index in the path of the last reached stage
	receipts map[Stage]*common.Receipt
	baseCost *big.Int
	err      error
	reached  map[Stage]chan struct{}
}

// New returns a Handle in the Submitted stage
func New(kind common.OpKind, hash ethCommon.Hash) *Handle {
	path, ok := paths[kind]
	if !ok {
		panic(fmt.Errorf("unknown operation kind %v", kind))
	}
	h := &Handle{
		kind:     kind,
		hash:     hash,
		receipts: make(map[Stage]*common.Receipt),
		reached:  make(map[Stage]chan struct{}, len(path)),
	}
	for _, stage := range path {
		h.reached[stage] = make(chan struct{})
	}
	close(h.reached[StageSubmitted])
	return h
}

// Kind returns the operation kind
func (h *Handle) Kind() common.OpKind {
	return h.kind
}

// Hash returns the hash of the transaction signed by the initiator
func (h *Handle) Hash() ethCommon.Hash {
	return h.hash
}

// Stage returns the last reached stage
func (h *Handle) Stage() Stage {
	h.rw.RLock()
	defer h.rw.RUnlock()
	return paths[h.kind][h.pos]
}

// Err returns the failure of the operation, if any
func (h *Handle) Err() error {
	h.rw.RLock()
	defer h.rw.RUnlock()
	return h.err
}

// SetBaseCost records the destination layer cost quoted before submitting a
// deposit
func (h *Handle) SetBaseCost(cost *big.Int) {
	h.rw.Lock()
	defer h.rw.Unlock()
	if cost == nil {
		h.baseCost = nil
		return
	}
	h.baseCost = new(big.Int).Set(cost)
}

// Advance moves the operation to the next stage of its path, recording the
// receipt observed at that stage (which may be nil).  Skipping a stage,
// repeating one, or advancing a failed operation is an error.
func (h *Handle) Advance(stage Stage, receipt *common.Receipt) error {
	h.rw.Lock()
	defer h.rw.Unlock()
	if h.err != nil {
		return tracerr.Wrap(fmt.Errorf("operation %s already failed: %w", h.hash.Hex(), h.err))
	}
	path := paths[h.kind]
	if h.pos+1 >= len(path) {
		return tracerr.Wrap(fmt.Errorf("operation %s already settled at %s", h.hash.Hex(),
			path[h.pos]))
	}
	if next := path[h.pos+1]; next != stage {
		return tracerr.Wrap(fmt.Errorf("invalid transition of %s operation %s: %s -> %s, expected %s",
			h.kind, h.hash.Hex(), path[h.pos], stage, next))
	}
	h.pos++
	if receipt != nil {
		h.receipts[stage] = receipt
	}
	close(h.reached[stage])
	return nil
}

// Fail marks the operation as rejected.  Every waiter of a stage not reached
// yet is released with err.
func (h *Handle) Fail(err error) {
	h.rw.Lock()
	defer h.rw.Unlock()
	if h.err != nil {
		return
	}
	if err == nil {
		err = fmt.Errorf("operation %s failed", h.hash.Hex())
	}
	h.err = err
	path := paths[h.kind]
	for _, stage := range path[h.pos+1:] {
		close(h.reached[stage])
	}
}

// WaitFor blocks until the operation reaches stage, and returns the receipt
// recorded at that stage.  It returns the failure of the operation if it
// fails first, or ctx.Err() if the context is done first.
func (h *Handle) WaitFor(ctx context.Context, stage Stage) (*common.Receipt, error) {
	ch, ok := h.reached[stage]
	if !ok {
		return nil, tracerr.Wrap(fmt.Errorf("%s operation has no stage %s", h.kind, stage))
	}
	select {
	case <-ch:
	case <-ctx.Done():
		return nil, tracerr.Wrap(ctx.Err())
	}
	h.rw.RLock()
	defer h.rw.RUnlock()
	if h.reachedLocked(stage) {
		return h.receipts[stage], nil
	}
	return nil, h.err
}

func (h *Handle) reachedLocked(stage Stage) bool {
	for _, s := range paths[h.kind][:h.pos+1] {
		if s == stage {
			return true
		}
	}
	return false
}

// WaitL1Commit blocks until the L1 transaction of the operation is included
func (h *Handle) WaitL1Commit(ctx context.Context) (*common.Receipt, error) {
	return h.WaitFor(ctx, StageL1Included)
}

// WaitFinalize blocks until a withdrawal can be finalized on L1
func (h *Handle) WaitFinalize(ctx context.Context) error {
	_, err := h.WaitFor(ctx, StageFinalized)
	return err
}

// Wait blocks until the operation is settled and returns its Settlement
func (h *Handle) Wait(ctx context.Context) (*common.Settlement, error) {
	if _, err := h.WaitFor(ctx, Terminal(h.kind)); err != nil {
		return nil, err
	}
	h.rw.RLock()
	defer h.rw.RUnlock()
	s := &common.Settlement{Kind: h.kind}
	switch h.kind {
	case common.OpL1Tx:
		s.Receipt = h.receipts[StageL1Included]
	case common.OpL2Tx:
		s.Receipt = h.receipts[StageL2Applied]
	case common.OpWithdrawal:
		// The receipt refreshed at finalization carries the L1 batch
		s.Receipt = h.receipts[StageFinalized]
		if s.Receipt == nil {
			s.Receipt = h.receipts[StageL2Applied]
		}
	case common.OpDeposit:
		s.Receipt = h.receipts[StageL1Included]
		s.DestinationReceipt = h.receipts[StageL2Applied]
		if h.baseCost != nil {
			s.BaseCost = new(big.Int).Set(h.baseCost)
		}
	}
	return s, nil
}
