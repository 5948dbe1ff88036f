package scenario

import (
	"context"
	"errors"
	"math/big"
	"testing"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/eth"
	"github.com/hermeznetwork/txverifier/etherscan"
	"github.com/hermeznetwork/txverifier/harness"
	"github.com/hermeznetwork/txverifier/test"
	v "github.com/hermeznetwork/txverifier/verifier"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	mainAddr = ethCommon.HexToAddress("0x000000000000000000000000000000000000a1ce")
	dai      = ethCommon.HexToAddress("0x0000000000000000000000000000000000000d02")
)

func newTestEnv(t *testing.T, fastMode bool, tokens ...harness.Token) (*harness.Env, *test.Client) {
	client := test.NewClient(false, test.NewClientSetupExample())
	client.CtlSetBalance(common.LayerL1, common.NativeTokenAddress, mainAddr, big.NewInt(1e18))
	client.CtlSetBalance(common.LayerL2, common.NativeTokenAddress, mainAddr, big.NewInt(1e15))
	for _, token := range tokens {
		client.CtlAddERC20(common.LayerL2, token.L2)
		client.CtlSetBalance(common.LayerL2, token.L2, mainAddr, big.NewInt(1e6))
	}
	env := harness.NewEnvFromParts(harness.Parts{
		Main:     client.Wallet(mainAddr),
		Accounts: client,
		Reader:   client,
		Tokens:   tokens,
		Deposit: harness.DepositParams{
			GasPerPubdataByte: big.NewInt(800),
			L2GasLimit:        big.NewInt(1e7),
			Amount:            big.NewInt(1e12),
		},
		FundAmount: big.NewInt(1e9),
		FastMode:   fastMode,
	})
	return env, client
}

func daiToken() harness.Token {
	return harness.Token{Symbol: "DAI", BridgedToken: common.BridgedToken{L2: dai}}
}

func transferRequest(to ethCommon.Address, amount int64) eth.TransferRequest {
	return eth.TransferRequest{To: to, Amount: big.NewInt(amount), Token: common.NativeTokenAddress}
}

func TestRunAll(t *testing.T) {
	env, _ := newTestEnv(t, false, daiToken())
	results := Run(context.Background(), env, nil)
	require.Len(t, results, len(All()))
	for i, r := range results {
		assert.Equal(t, All()[i].Name, r.Name)
		require.NoError(t, r.Err, r.Name)
		assert.False(t, r.Skipped, r.Name)
		assert.Equal(t, OutcomePass, r.Outcome(), "%s: %s", r.Name, r.Verdict)
		assert.True(t, r.Verdict.Checks > 0, r.Name)
	}
}

func TestRunFilter(t *testing.T) {
	env, client := newTestEnv(t, false)
	results := Run(context.Background(), env, []string{"withdrawal", "deposit"})
	require.Len(t, results, 2)
	// Results follow the order of All
	assert.Equal(t, "deposit", results[0].Name)
	assert.Equal(t, "withdrawal", results[1].Name)
	for _, r := range results {
		assert.Equal(t, OutcomePass, r.Outcome(), "%s: %s %v", r.Name, r.Verdict, r.Err)
	}

	// The deposit and the withdrawal of the same amount leave only the fees
	l2, err := client.BalanceOf(context.Background(), common.LayerL2, common.NativeTokenAddress,
		mainAddr)
	require.NoError(t, err)
	assert.True(t, l2.Cmp(big.NewInt(1e15)) < 0)

	assert.Empty(t, Run(context.Background(), env, []string{"unknown"}))
}

type failingGasOracle struct{}

func (failingGasOracle) GetGasPrice(ctx context.Context) (*etherscan.GasPriceEtherscan, error) {
	return nil, errors.New("rate limited")
}

func TestRunDepositGasOracle(t *testing.T) {
	env, client := newTestEnv(t, false)
	// 20 wei instead of the 10 wei of the L1 node
	env.GasOracle = &etherscan.MockEtherscanClient{ProposeGasPrice: "0.00000002"}
	ctx := context.Background()
	results := Run(ctx, env, []string{"deposit"})
	require.Len(t, results, 1)
	require.Equal(t, OutcomePass, results[0].Outcome(), "%s %v", results[0].Verdict, results[0].Err)

	gasPrice := big.NewInt(20)
	baseCost, err := test.BaseCost(eth.BaseCostRequest{
		GasLimit:          env.Deposit.L2GasLimit,
		GasPerPubdataByte: env.Deposit.GasPerPubdataByte,
		GasPrice:          gasPrice,
	})
	require.NoError(t, err)
	spent := new(big.Int).Mul(big.NewInt(test.DepositL1Gas), gasPrice)
	spent.Add(spent, baseCost)
	spent.Add(spent, env.Deposit.Amount)
	l1, err := client.BalanceOf(ctx, common.LayerL1, common.NativeTokenAddress, mainAddr)
	require.NoError(t, err)
	assert.Equal(t, new(big.Int).Sub(big.NewInt(1e18), spent), l1)

	env.GasOracle = failingGasOracle{}
	results = Run(ctx, env, []string{"deposit"})
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeInconclusive, results[0].Outcome())
	assert.Contains(t, results[0].Err.Error(), "rate limited")
}

func TestRunFastMode(t *testing.T) {
	env, _ := newTestEnv(t, true)
	results := Run(context.Background(), env, []string{"withdrawal"})
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Nil(t, results[0].Verdict)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome())
	assert.True(t, results[0].Passed())
}

func TestRunWithoutTokens(t *testing.T) {
	env, _ := newTestEnv(t, false)
	results := Run(context.Background(), env, []string{"erc20-transfer"})
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeSkipped, results[0].Outcome())
}

func TestRunQueryError(t *testing.T) {
	env, client := newTestEnv(t, false)
	client.CtlSetQueryError(common.LayerL2, errors.New("connection refused"))
	results := Run(context.Background(), env, []string{"transfer-legacy"})
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeInconclusive, results[0].Outcome())
	assert.False(t, results[0].Passed())
	var qerr *common.QueryError
	assert.True(t, errors.As(results[0].Err, &qerr))
}

func TestRunScenarioOutcomes(t *testing.T) {
	env, _ := newTestEnv(t, false)
	ctx := context.Background()

	failing := Scenario{Name: "failing", Run: func(ctx context.Context,
		env *harness.Env) (*common.Verdict, error) {
		from, to, err := pair(ctx, env)
		if err != nil {
			return nil, err
		}
		submit := func(ctx context.Context) (v.Pending, error) {
			return submitted(from.Transfer(ctx, transferRequest(to.Address(), 10)))
		}
		// The receiver gets 10, not 20
		return env.Verifier.ToBeAccepted(ctx, submit,
			v.ShouldChangeETHBalances([]v.Change{
				v.Delta(from.Address(), big.NewInt(-10)),
				v.Delta(to.Address(), big.NewInt(20)),
			}))
	}}
	r := RunScenario(ctx, env, failing)
	require.NoError(t, r.Err)
	assert.Equal(t, OutcomeFail, r.Outcome())
	kinds := make(map[common.ViolationKind]bool)
	for _, violation := range r.Verdict.Violations {
		kinds[violation.Kind] = true
	}
	assert.True(t, kinds[common.ViolationBalance])

	rejected := Scenario{Name: "rejected", Run: func(ctx context.Context,
		env *harness.Env) (*common.Verdict, error) {
		submit := func(ctx context.Context) (v.Pending, error) {
			return nil, errors.New("nonce too low")
		}
		return env.Verifier.ToBeAccepted(ctx, submit, nil)
	}}
	r = RunScenario(ctx, env, rejected)
	assert.Equal(t, OutcomeOperationFailed, r.Outcome())

	broken := Scenario{Name: "broken", Run: func(ctx context.Context,
		env *harness.Env) (*common.Verdict, error) {
		return nil, errors.New("no accounts left")
	}}
	r = RunScenario(ctx, env, broken)
	assert.Equal(t, OutcomeError, r.Outcome())
}

func TestMerge(t *testing.T) {
	a := &common.Verdict{Checks: 3}
	b := &common.Verdict{Checks: 2, Rejection: true}
	b.Add(common.Violation{Kind: common.ViolationRejection, ExpectedSubstring: "x",
		ActualMessage: "y"})
	merged := merge(a, b)
	assert.Equal(t, 5, merged.Checks)
	assert.True(t, merged.Rejection)
	assert.False(t, merged.Passed())
	assert.Len(t, merged.Violations, 1)
	assert.True(t, merge(a).Passed())
}

func TestNames(t *testing.T) {
	names := Names()
	assert.Len(t, names, len(All()))
	seen := make(map[string]bool)
	for _, name := range names {
		assert.False(t, seen[name], name)
		seen[name] = true
	}
	assert.True(t, seen["withdrawal"])
}
