/*
Package harness builds the context shared by the verifications of a run: the
funded main wallet, the factory of fresh accounts, the balance oracle, the
verifier and the run parameters.  An Env is built once and passed explicitly
to every scenario; nothing in it is global.
*/
package harness

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/config"
	"github.com/hermeznetwork/txverifier/eth"
	"github.com/hermeznetwork/txverifier/etherscan"
	"github.com/hermeznetwork/txverifier/fee"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/hermeznetwork/txverifier/oracle"
	"github.com/hermeznetwork/txverifier/verifier"
)

// Token is a token whose transfers are checked
type Token struct {
	Symbol string
	common.BridgedToken
}

// DepositParams are the parameters of the bridge scenarios
type DepositParams struct {
	GasPerPubdataByte *big.Int
	L2GasLimit        *big.Int
	Amount            *big.Int
}

// Env is the explicit context of a run
type Env struct {
	Main       eth.WalletInterface
	Accounts   eth.AccountFactory
	Reader     eth.BalanceReader
	Oracle     *oracle.Oracle
	Reconciler *fee.Reconciler
	Verifier   *verifier.OutcomeVerifier
	Tokens     []Token
	Deposit    DepositParams
	// FundAmount is transferred from Main to every fresh account that
	// needs funds
	FundAmount *big.Int
	FastMode   bool
	// GasOracle prices the deposits on L1 when not nil
	GasOracle etherscan.Client
}

// Parts are the collaborators of an Env built without a configuration file
type Parts struct {
	Main       eth.WalletInterface
	Accounts   eth.AccountFactory
	Reader     eth.BalanceReader
	Tokens     []Token
	Deposit    DepositParams
	FundAmount *big.Int
	FastMode   bool
	GasOracle  etherscan.Client
	// MaxConcurrentReads limits the reads of a balance snapshot, 0 uses
	// the oracle default
	MaxConcurrentReads int
}

// NewEnvFromParts creates an Env from already built collaborators
func NewEnvFromParts(parts Parts) *Env {
	var opts []oracle.Option
	if parts.MaxConcurrentReads > 0 {
		opts = append(opts, oracle.WithMaxConcurrentReads(parts.MaxConcurrentReads))
	}
	o := oracle.New(parts.Reader, opts...)
	reconciler := fee.New()
	return &Env{
		Main:       parts.Main,
		Accounts:   parts.Accounts,
		Reader:     parts.Reader,
		Oracle:     o,
		Reconciler: reconciler,
		Verifier:   verifier.New(o, reconciler, verifier.WithConservation()),
		Tokens:     parts.Tokens,
		Deposit:    parts.Deposit,
		FundAmount: parts.FundAmount,
		FastMode:   parts.FastMode,
		GasOracle:  parts.GasOracle,
	}
}

func ethereumConfig(cfg *config.Config, layer config.Layer) *eth.EthereumConfig {
	return &eth.EthereumConfig{
		CallGasLimit: layer.CallGasLimit,
		GasPriceDiv:  layer.GasPriceDiv,
		// The client takes seconds and milliseconds
		ReceiptTimeout:      cfg.Receipt.Timeout.Duration / time.Second,
		IntervalReceiptLoop: cfg.Receipt.PollInterval.Duration / time.Millisecond,
	}
}

// NewEnv connects to the nodes of both layers and creates an Env from cfg
func NewEnv(ctx context.Context, cfg *config.Config) (*Env, error) {
	l1, err := eth.DialEthereumClient(ctx, common.LayerL1, cfg.L1.URL, ethereumConfig(cfg, cfg.L1))
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	l2, err := eth.DialEthereumClient(ctx, common.LayerL2, cfg.L2.URL, ethereumConfig(cfg, cfg.L2))
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	client := eth.NewClient(l1, l2, cfg.Bridge.Mailbox)
	key, err := cfg.MainKey()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	walletCfg := eth.WalletConfig{
		GasPerPubdataByte:    big.NewInt(cfg.Deposit.GasPerPubdataByte),
		L2GasLimit:           big.NewInt(cfg.Deposit.L2GasLimit),
		IntervalFinalizeLoop: cfg.Withdrawal.FinalizePollInterval.Duration,
		FinalizeTimeout:      cfg.Withdrawal.FinalizeTimeout.Duration,
	}
	mainWallet := eth.NewWallet(key, client, walletCfg)
	accounts, err := eth.NewHDAccountFactory(cfg.Account.Mnemonic, client, walletCfg)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	tokens := make([]Token, len(cfg.Tokens))
	for i, t := range cfg.Tokens {
		tokens[i] = Token{Symbol: t.Symbol, BridgedToken: t.Bridged()}
	}
	var gasOracle etherscan.Client
	if cfg.Etherscan.URL != "" {
		service, err := etherscan.NewEtherscanService(cfg.Etherscan.URL, cfg.Etherscan.APIKey)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		gasOracle = service
	}
	log.Infow("Environment ready", "main", mainWallet.Address().Hex(), "tokens", len(tokens),
		"fastMode", cfg.FastMode, "gasOracle", gasOracle != nil)
	return NewEnvFromParts(Parts{
		Main:     mainWallet,
		Accounts: accounts,
		Reader:   client,
		Tokens:   tokens,
		Deposit: DepositParams{
			GasPerPubdataByte: big.NewInt(cfg.Deposit.GasPerPubdataByte),
			L2GasLimit:        big.NewInt(cfg.Deposit.L2GasLimit),
			Amount:            big.NewInt(cfg.Deposit.Amount),
		},
		FundAmount:         big.NewInt(cfg.Account.FundAmount),
		FastMode:           cfg.FastMode,
		GasOracle:          gasOracle,
		MaxConcurrentReads: cfg.Oracle.MaxConcurrentReads,
	}), nil
}

// SkipFinalization returns true when the scenarios that wait for a
// withdrawal to be finalizable must be skipped
func (e *Env) SkipFinalization() bool {
	return e.FastMode
}

// NewAccount creates a fresh account and, if amount is positive, funds it on
// L2 from the main wallet
func (e *Env) NewAccount(ctx context.Context, amount *big.Int) (eth.WalletInterface, error) {
	w, err := e.Accounts.NewWallet(ctx)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if amount == nil || amount.Sign() <= 0 {
		return w, nil
	}
	if err := e.Fund(ctx, w.Address(), amount); err != nil {
		return nil, tracerr.Wrap(err)
	}
	return w, nil
}

// Fund transfers amount of the native token on L2 from the main wallet to
// account and waits for it to settle
func (e *Env) Fund(ctx context.Context, account ethCommon.Address, amount *big.Int) error {
	h, err := e.Main.Transfer(ctx, eth.TransferRequest{To: account, Amount: amount,
		Token: common.NativeTokenAddress})
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("fund %s: %w", account.Hex(), err))
	}
	s, err := h.Wait(ctx)
	if err != nil {
		return tracerr.Wrap(fmt.Errorf("fund %s: %w", account.Hex(), err))
	}
	if s.Receipt == nil {
		return tracerr.Wrap(fmt.Errorf("fund %s: no receipt", account.Hex()))
	}
	if !s.Receipt.Successful() {
		return tracerr.Wrap(fmt.Errorf("fund %s: transaction %s failed", account.Hex(),
			s.Receipt.TxHash.Hex()))
	}
	log.Debugw("Funded", "account", account.Hex(), "amount", amount)
	return nil
}

// Token returns the token with symbol
func (e *Env) Token(symbol string) (Token, bool) {
	for _, t := range e.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}

// L1GasPrice returns the gas price of the gas oracle in wei, or nil when
// there is no gas oracle and the node suggested price must be used
func (e *Env) L1GasPrice(ctx context.Context) (*big.Int, error) {
	if e.GasOracle == nil {
		return nil, nil
	}
	gasPrice, err := etherscan.L1GasPrice(ctx, e.GasOracle)
	if err != nil {
		return nil, &common.QueryError{Op: "l1 gas price", Err: err}
	}
	return gasPrice, nil
}
