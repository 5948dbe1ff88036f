package common

import (
	"fmt"
	"math/big"
	"sort"

	ethCommon "github.com/ethereum/go-ethereum/common"
)

// BalanceKey identifies a balance: an account, on a layer, for a token
type BalanceKey struct {
	Account ethCommon.Address
	Layer   Layer
	Token   ethCommon.Address
}

// String returns a human readable representation of the BalanceKey
func (k BalanceKey) String() string {
	token := k.Token.Hex()
	if IsNativeToken(k.Token) {
		token = "ETH"
	}
	return fmt.Sprintf("%s@%s/%s", k.Account.Hex(), k.Layer, token)
}

func (k BalanceKey) less(o BalanceKey) bool {
	if c := compareAddr(k.Account, o.Account); c != 0 {
		return c < 0
	}
	if k.Layer != o.Layer {
		return k.Layer < o.Layer
	}
	return compareAddr(k.Token, o.Token) < 0
}

func compareAddr(a, b ethCommon.Address) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// UniqueKeys returns the distinct keys in a deterministic order
func UniqueKeys(keys []BalanceKey) []BalanceKey {
	seen := make(map[BalanceKey]struct{}, len(keys))
	unique := make([]BalanceKey, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		unique = append(unique, k)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i].less(unique[j]) })
	return unique
}

// Snapshot is a set of balances captured at a single logical instant.  A
// Snapshot is immutable once created: the getters return copies.
type Snapshot struct {
	balances map[BalanceKey]*big.Int
}

// NewSnapshot creates a Snapshot from the given balances.  The values are
// copied.
func NewSnapshot(balances map[BalanceKey]*big.Int) *Snapshot {
	s := &Snapshot{balances: make(map[BalanceKey]*big.Int, len(balances))}
	for k, v := range balances {
		s.balances[k] = new(big.Int).Set(v)
	}
	return s
}

// Get returns the balance of a key and whether it was captured
func (s *Snapshot) Get(k BalanceKey) (*big.Int, bool) {
	v, ok := s.balances[k]
	if !ok {
		return nil, false
	}
	return new(big.Int).Set(v), true
}

// Len returns the number of balances in the snapshot
func (s *Snapshot) Len() int {
	return len(s.balances)
}

// Keys returns the captured keys in a deterministic order
func (s *Snapshot) Keys() []BalanceKey {
	keys := make([]BalanceKey, 0, len(s.balances))
	for k := range s.balances {
		keys = append(keys, k)
	}
	return UniqueKeys(keys)
}

// Delta returns after - s for every key captured in s.  Keys missing in
// after are reported as an error.
func (s *Snapshot) Delta(after *Snapshot) (map[BalanceKey]*big.Int, error) {
	deltas := make(map[BalanceKey]*big.Int, len(s.balances))
	for k, before := range s.balances {
		a, ok := after.balances[k]
		if !ok {
			return nil, fmt.Errorf("balance %s missing in after snapshot", k)
		}
		deltas[k] = new(big.Int).Sub(a, before)
	}
	return deltas, nil
}

// ExpectedDelta is the signed balance change expected for a key.  When
// ExcludeFee is set and the token is the native one, the fee paid by the
// account for the operation is added back to the observed change before
// comparing, so Amount is the intended transfer value.
type ExpectedDelta struct {
	BalanceKey
	Amount     *big.Int
	ExcludeFee bool
}

// String returns a human readable representation of the ExpectedDelta
func (d ExpectedDelta) String() string {
	s := fmt.Sprintf("%s %s", d.BalanceKey, d.Amount)
	if d.ExcludeFee {
		s += " (fee excluded)"
	}
	return s
}
