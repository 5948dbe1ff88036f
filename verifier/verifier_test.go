package verifier

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/fee"
	"github.com/hermeznetwork/txverifier/oracle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = ethCommon.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = ethCommon.HexToAddress("0x0000000000000000000000000000000000000b0b")
	token = ethCommon.HexToAddress("0x00000000000000000000000000000000000070c0")
	eth   = common.NativeTokenAddress
)

func key(account ethCommon.Address, layer common.Layer, token ethCommon.Address) common.BalanceKey {
	return common.BalanceKey{Account: account, Layer: layer, Token: token}
}

// chain is a minimal two layer ledger that applies operations synchronously
type chain struct {
	mu         sync.Mutex
	balances   map[common.BalanceKey]*big.Int
	events     []string
	reads      int
	failReadAt int
}

func newChain() *chain {
	return &chain{balances: make(map[common.BalanceKey]*big.Int), failReadAt: -1}
}

func (c *chain) BalanceOf(ctx context.Context, layer common.Layer, token,
	account ethCommon.Address) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "read")
	c.reads++
	if c.failReadAt >= 0 && c.reads > c.failReadAt {
		return nil, fmt.Errorf("endpoint unreachable")
	}
	if b, ok := c.balances[key(account, layer, token)]; ok {
		return new(big.Int).Set(b), nil
	}
	return big.NewInt(0), nil
}

func (c *chain) set(k common.BalanceKey, v int64) {
	c.balances[k] = big.NewInt(v)
}

func (c *chain) add(k common.BalanceKey, v int64) {
	b, ok := c.balances[k]
	if !ok {
		b = big.NewInt(0)
		c.balances[k] = b
	}
	b.Add(b, big.NewInt(v))
}

type settled struct {
	s   *common.Settlement
	err error
}

func (p settled) Wait(ctx context.Context) (*common.Settlement, error) {
	return p.s, p.err
}

func newReceipt(layer common.Layer, from ethCommon.Address, to *ethCommon.Address,
	txType common.TxType, gasUsed, price int64) *common.Receipt {
	status := uint64(1)
	return &common.Receipt{
		Layer:             layer,
		From:              from,
		To:                to,
		Type:              &txType,
		Status:            &status,
		GasUsed:           big.NewInt(gasUsed),
		EffectiveGasPrice: big.NewInt(price),
	}
}

// transfer moves value on L2 from `from` to `to`, charging gasUsed*price to
// `from`.  received is what `to` actually gets.
func (c *chain) transfer(from, to ethCommon.Address, value, received, gasUsed,
	price int64, txType common.TxType) Submission {
	return func(ctx context.Context) (Pending, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.events = append(c.events, "submit")
		c.add(key(from, common.LayerL2, eth), -value-gasUsed*price)
		c.add(key(to, common.LayerL2, eth), received)
		return settled{s: &common.Settlement{
			Kind:    common.OpL2Tx,
			Receipt: newReceipt(common.LayerL2, from, &to, txType, gasUsed, price),
		}}, nil
	}
}

func newVerifier(c *chain, opts ...Option) *OutcomeVerifier {
	return New(oracle.New(c), fee.New(), opts...)
}

func TestToBeAccepted(t *testing.T) {
	c := newChain()
	c.set(key(alice, common.LayerL2, eth), 500)
	v := newVerifier(c)

	verdict, err := v.ToBeAccepted(context.Background(),
		c.transfer(alice, bob, 200, 200, 10, 2, common.TxTypeLegacy),
		ShouldChangeETHBalances([]Change{
			Delta(alice, big.NewInt(-200)),
			Delta(bob, big.NewInt(200)),
		}),
		HasType(common.TxTypeLegacy), IsSuccessful(), HasFrom(alice), HasTo(bob))
	require.NoError(t, err)
	assert.True(t, verdict.Passed(), verdict.String())
	assert.Equal(t, 6, verdict.Checks)
	assert.Nil(t, verdict.Err())
	assert.Equal(t, big.NewInt(280), c.balances[key(alice, common.LayerL2, eth)])

	// Snapshots strictly bracket the submission
	require.Len(t, c.events, 5)
	assert.Equal(t, []string{"read", "read", "submit", "read", "read"}, c.events)
}

func TestFeeExclusionEquivalence(t *testing.T) {
	for _, tc := range []struct {
		name   string
		deltas []common.ExpectedDelta
		pass   bool
	}{
		{"auto fee", ShouldChangeETHBalances([]Change{Delta(alice, big.NewInt(-200))}), true},
		{"raw with fee", ShouldChangeETHBalances([]Change{Delta(alice, big.NewInt(-220))},
			NoAutoFee()), true},
		{"raw without fee", ShouldChangeETHBalances([]Change{Delta(alice, big.NewInt(-200))},
			NoAutoFee()), false},
		{"auto fee with fee", ShouldChangeETHBalances([]Change{Delta(alice, big.NewInt(-220))}),
			false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			c := newChain()
			c.set(key(alice, common.LayerL2, eth), 500)
			verdict, err := newVerifier(c).ToBeAccepted(context.Background(),
				c.transfer(alice, bob, 200, 200, 10, 2, common.TxTypeDynamicFee), tc.deltas)
			require.NoError(t, err)
			assert.Equal(t, tc.pass, verdict.Passed(), verdict.String())
		})
	}
}

func TestConservation(t *testing.T) {
	c := newChain()
	c.set(key(alice, common.LayerL2, eth), 500)
	v := newVerifier(c, WithConservation())
	expected := ShouldChangeETHBalances([]Change{
		Delta(alice, big.NewInt(-200)),
		Delta(bob, big.NewInt(200)),
	})

	verdict, err := v.ToBeAccepted(context.Background(),
		c.transfer(alice, bob, 200, 200, 10, 2, common.TxTypeLegacy), expected)
	require.NoError(t, err)
	assert.True(t, verdict.Passed(), verdict.String())
	assert.Equal(t, 3, verdict.Checks)

	// One unit lost in transit
	verdict, err = v.ToBeAccepted(context.Background(),
		c.transfer(alice, bob, 200, 199, 10, 2, common.TxTypeLegacy), expected)
	require.NoError(t, err)
	require.Len(t, verdict.Violations, 2)
	assert.Equal(t, common.ViolationBalance, verdict.Violations[0].Kind)
	assert.Equal(t, bob, verdict.Violations[0].Key.Account)
	assert.Equal(t, big.NewInt(199), verdict.Violations[0].Actual)
	assert.Equal(t, common.ViolationConservation, verdict.Violations[1].Kind)
	assert.Equal(t, big.NewInt(-1), verdict.Violations[1].Actual)
}

func TestSelfTransfer(t *testing.T) {
	for _, value := range []int64{0, 1, 200, 480} {
		c := newChain()
		c.set(key(alice, common.LayerL2, eth), 500)
		v := newVerifier(c, WithConservation())
		verdict, err := v.ToBeAccepted(context.Background(),
			c.transfer(alice, alice, value, value, 10, 2, common.TxTypeEIP712),
			ShouldOnlyTakeFee(alice), HasType(common.TxTypeEIP712))
		require.NoError(t, err)
		assert.True(t, verdict.Passed(), verdict.String())
	}
}

func TestZeroValueFraming(t *testing.T) {
	c := newChain()
	c.set(key(alice, common.LayerL2, eth), 500)
	v := newVerifier(c)

	// amount 0 with the fee excluded
	verdict, err := v.ToBeAccepted(context.Background(),
		c.transfer(alice, bob, 0, 0, 10, 2, common.TxTypeLegacy),
		ShouldChangeETHBalances([]Change{Delta(alice, big.NewInt(0)), Delta(bob, big.NewInt(0))}))
	require.NoError(t, err)
	assert.True(t, verdict.Passed(), verdict.String())

	// amount -fee with the fee included
	verdict, err = v.ToBeAccepted(context.Background(),
		c.transfer(alice, bob, 0, 0, 10, 2, common.TxTypeLegacy),
		ShouldChangeETHBalances([]Change{Delta(alice, big.NewInt(-20))}, NoAutoFee()))
	require.NoError(t, err)
	assert.True(t, verdict.Passed(), verdict.String())
}

func TestMultipleViolations(t *testing.T) {
	c := newChain()
	c.set(key(alice, common.LayerL2, eth), 500)
	verdict, err := newVerifier(c).ToBeAccepted(context.Background(),
		c.transfer(alice, bob, 200, 200, 10, 2, common.TxTypeLegacy),
		ShouldChangeETHBalances([]Change{
			Delta(alice, big.NewInt(-200)),
			Delta(bob, big.NewInt(300)),
		}),
		HasType(common.TxTypeDynamicFee))
	require.NoError(t, err)
	require.Len(t, verdict.Violations, 2)
	assert.Equal(t, common.ViolationBalance, verdict.Violations[0].Kind)
	assert.Equal(t, common.ViolationReceipt, verdict.Violations[1].Kind)
	assert.Contains(t, verdict.Violations[1].Message, "should be 2")

	err = verdict.Err()
	assert.True(t, errors.Is(err, common.ErrAssertionMismatch))
	var mismatch *common.MismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Len(t, mismatch.Violations, 2)
}

func TestTokenBalances(t *testing.T) {
	c := newChain()
	c.set(key(alice, common.LayerL2, token), 50)
	c.set(key(alice, common.LayerL2, eth), 500)
	submit := func(ctx context.Context) (Pending, error) {
		c.add(key(alice, common.LayerL2, token), -5)
		c.add(key(bob, common.LayerL2, token), 5)
		c.add(key(alice, common.LayerL2, eth), -30)
		return settled{s: &common.Settlement{Kind: common.OpL2Tx,
			Receipt: newReceipt(common.LayerL2, alice, &token, common.TxTypeDynamicFee, 15, 2)}}, nil
	}
	verdict, err := newVerifier(c, WithConservation()).ToBeAccepted(context.Background(), submit,
		Expectations(
			// Fee exclusion has no effect on a non native token
			ShouldChangeTokenBalances(token, []Change{
				Delta(alice, big.NewInt(-5)),
				Delta(bob, big.NewInt(5)),
			}),
			ShouldOnlyTakeFee(alice),
		))
	require.NoError(t, err)
	assert.True(t, verdict.Passed(), verdict.String())
	assert.Equal(t, 5, verdict.Checks)
}

func TestDeposit(t *testing.T) {
	c := newChain()
	c.set(key(alice, common.LayerL1, eth), 10000)
	const amount, l1Fee, baseCost = 1000, 300, 77
	submit := func(ctx context.Context) (Pending, error) {
		c.add(key(alice, common.LayerL1, eth), -amount-l1Fee-baseCost)
		c.add(key(alice, common.LayerL2, eth), amount)
		return settled{s: &common.Settlement{
			Kind:               common.OpDeposit,
			Receipt:            newReceipt(common.LayerL1, alice, nil, common.TxTypeLegacy, 100, 3),
			DestinationReceipt: newReceipt(common.LayerL2, alice, nil, 0xff, 0, 0),
			BaseCost:           big.NewInt(baseCost),
		}}, nil
	}
	verdict, err := newVerifier(c, WithConservation()).ToBeAccepted(context.Background(), submit,
		Expectations(
			ShouldChangeETHBalances([]Change{Delta(alice, big.NewInt(-amount))}, OnL1()),
			ShouldChangeETHBalances([]Change{Delta(alice, big.NewInt(amount))}),
		))
	require.NoError(t, err)
	assert.True(t, verdict.Passed(), verdict.String())
	// Conservation does not apply to cross layer operations
	assert.Equal(t, 2, verdict.Checks)
}

func TestQueryErrorIsInconclusive(t *testing.T) {
	c := newChain()
	c.set(key(alice, common.LayerL2, eth), 500)
	// The two reads of the before snapshot succeed, the after snapshot fails
	c.failReadAt = 2
	verdict, err := newVerifier(c).ToBeAccepted(context.Background(),
		c.transfer(alice, bob, 200, 200, 10, 2, common.TxTypeLegacy),
		ShouldChangeETHBalances([]Change{
			Delta(alice, big.NewInt(-200)),
			Delta(bob, big.NewInt(200)),
		}))
	assert.Nil(t, verdict)
	var qerr *common.QueryError
	require.True(t, errors.As(err, &qerr))
	assert.False(t, errors.Is(err, common.ErrAssertionMismatch))

	// Malformed receipt when the fee is needed
	c = newChain()
	submit := func(ctx context.Context) (Pending, error) {
		return settled{s: &common.Settlement{Kind: common.OpL2Tx,
			Receipt: &common.Receipt{Layer: common.LayerL2, From: alice}}}, nil
	}
	_, err = newVerifier(c).ToBeAccepted(context.Background(), submit, ShouldOnlyTakeFee(alice))
	assert.True(t, errors.As(err, &qerr))
}

func TestOperationFailed(t *testing.T) {
	c := newChain()
	v := newVerifier(c)
	reason := fmt.Errorf("execution reverted: nope")

	_, err := v.ToBeAccepted(context.Background(),
		func(ctx context.Context) (Pending, error) { return nil, reason },
		ShouldOnlyTakeFee(alice))
	var ferr *common.OperationFailedError
	require.True(t, errors.As(err, &ferr))
	assert.Equal(t, reason, ferr.Err)
	assert.Contains(t, err.Error(), "execution reverted: nope")

	_, err = v.ToBeAccepted(context.Background(),
		func(ctx context.Context) (Pending, error) { return settled{err: reason}, nil }, nil)
	assert.True(t, errors.As(err, &ferr))

	// A submission without an operation nor an error
	empty := func(ctx context.Context) (Pending, error) { return nil, nil }
	_, err = v.ToBeAccepted(context.Background(), empty, ShouldOnlyTakeFee(alice))
	require.True(t, errors.As(err, &ferr))
	assert.True(t, errors.Is(err, common.ErrNoPendingOperation))

	verdict, err := ToBeRejected(context.Background(), empty, "nope")
	assert.Nil(t, verdict)
	assert.True(t, errors.Is(tracerr.Unwrap(err), common.ErrNoPendingOperation))
}

func TestReceiptPredicatesAreTotal(t *testing.T) {
	panicking := Expect(func(r *common.Receipt) bool {
		return r.L1BatchNumber.Sign() > 0
	}, "batch number should be positive")
	assert.False(t, panicking.Evaluate(&common.Receipt{}))
	assert.False(t, HasType(common.TxTypeLegacy).Evaluate(&common.Receipt{}))
	assert.False(t, HasTo(bob).Evaluate(&common.Receipt{}))
	assert.False(t, InL1Batch().Evaluate(&common.Receipt{}))
	assert.False(t, IsSuccessful().Evaluate(nil))
	assert.False(t, ReceiptExpectation{}.Evaluate(&common.Receipt{}))

	c := newChain()
	submit := func(ctx context.Context) (Pending, error) {
		return settled{s: &common.Settlement{Kind: common.OpL2Tx}}, nil
	}
	verdict, err := newVerifier(c).ToBeAccepted(context.Background(), submit, nil,
		panicking, HasType(common.TxTypeLegacy))
	require.NoError(t, err)
	require.Len(t, verdict.Violations, 2)
	assert.Equal(t, "batch number should be positive", verdict.Violations[0].Message)
}

func TestToBeRejected(t *testing.T) {
	const substring = "access lists are not supported"
	rejected := func(msg string) Submission {
		return func(ctx context.Context) (Pending, error) { return nil, errors.New(msg) }
	}

	verdict, err := ToBeRejected(context.Background(),
		rejected("failed to validate the transaction. reason: access lists are not supported"),
		substring)
	require.NoError(t, err)
	assert.True(t, verdict.Passed())
	assert.Nil(t, verdict.Err())

	// Case sensitive
	verdict, err = ToBeRejected(context.Background(), rejected("Access Lists Are Not Supported"),
		substring)
	require.NoError(t, err)
	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, substring, verdict.Violations[0].ExpectedSubstring)
	assert.Equal(t, "Access Lists Are Not Supported", verdict.Violations[0].ActualMessage)
	assert.True(t, errors.Is(verdict.Err(), common.ErrRejectionMismatch))

	// Rejected while settling
	verdict, err = ToBeRejected(context.Background(), func(ctx context.Context) (Pending, error) {
		return settled{err: errors.New("insufficient funds for gas + value. balance: 1")}, nil
	}, "insufficient funds for gas + value.")
	require.NoError(t, err)
	assert.True(t, verdict.Passed())

	// Not rejected
	c := newChain()
	c.set(key(alice, common.LayerL2, eth), 500)
	verdict, err = ToBeRejected(context.Background(),
		c.transfer(alice, bob, 1, 1, 1, 1, common.TxTypeLegacy), substring)
	require.NoError(t, err)
	require.Len(t, verdict.Violations, 1)
	assert.Equal(t, common.ErrNoRejection.Error(), verdict.Violations[0].ActualMessage)
	assert.Contains(t, verdict.Err().Error(), "expected rejection, got success")
}

func TestBuilders(t *testing.T) {
	deltas := ShouldChangeETHBalances([]Change{Delta(alice, big.NewInt(-1))}, OnL1(), NoAutoFee())
	require.Len(t, deltas, 1)
	assert.Equal(t, key(alice, common.LayerL1, eth), deltas[0].BalanceKey)
	assert.False(t, deltas[0].ExcludeFee)

	deltas = ShouldOnlyTakeFee(bob, NoAutoFee())
	assert.True(t, deltas[0].ExcludeFee)
	assert.Equal(t, 0, deltas[0].Amount.Sign())
	assert.Equal(t, common.LayerL2, deltas[0].Layer)

	deltas = ShouldChangeTokenBalances(token, []Change{{Account: bob}}, OnLayer(common.LayerL1))
	assert.Equal(t, key(bob, common.LayerL1, token), deltas[0].BalanceKey)
	assert.Equal(t, 0, deltas[0].Amount.Sign())
}
