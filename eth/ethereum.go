package eth

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/log"
)

var (
	// ErrReceiptStatusFailed is used when receiving a failed transaction
	ErrReceiptStatusFailed = fmt.Errorf("receipt status is failed")
	// ErrReceiptNotReceived is used when unable to retrieve a transaction
	ErrReceiptNotReceived = fmt.Errorf("receipt not available")
)

const (
	// default values
	defaultCallGasLimit        = 300000
	defaultGasPriceDiv         = 100
	defaultReceiptTimeout      = 60
	defaultIntervalReceiptLoop = 200
)

// EthereumConfig defines the configuration parameters of the EthereumClient
type EthereumConfig struct {
	CallGasLimit        uint64
	GasPriceDiv         uint64
	ReceiptTimeout      time.Duration // in seconds
	IntervalReceiptLoop time.Duration // in milliseconds
}

// DefaultEthereumConfig returns the configuration used when none is given
func DefaultEthereumConfig() *EthereumConfig {
	return &EthereumConfig{
		CallGasLimit:        defaultCallGasLimit,
		GasPriceDiv:         defaultGasPriceDiv,
		ReceiptTimeout:      defaultReceiptTimeout,
		IntervalReceiptLoop: defaultIntervalReceiptLoop,
	}
}

// EthereumClient is a client of the JSON-RPC endpoint of one layer
type EthereumClient struct {
	layer          common.Layer
	client         *ethclient.Client
	rpc            *rpc.Client
	chainID        *big.Int
	ReceiptTimeout time.Duration
	config         *EthereumConfig
}

// DialEthereumClient connects to the JSON-RPC endpoint of a layer and reads
// its chain id
func DialEthereumClient(ctx context.Context, layer common.Layer, url string,
	config *EthereumConfig) (*EthereumClient, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("dial %s endpoint %s: %w", layer, url, err))
	}
	client := ethclient.NewClient(rpcClient)
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("chain id of %s: %w", layer, err))
	}
	log.Infow("Connected", "layer", layer, "url", url, "chainID", chainID)
	return NewEthereumClient(layer, rpcClient, chainID, config), nil
}

// NewEthereumClient creates a EthereumClient instance.  A nil config uses the
// default values.
func NewEthereumClient(layer common.Layer, rpcClient *rpc.Client, chainID *big.Int,
	config *EthereumConfig) *EthereumClient {
	if config == nil {
		config = DefaultEthereumConfig()
	}
	return &EthereumClient{
		layer:          layer,
		client:         ethclient.NewClient(rpcClient),
		rpc:            rpcClient,
		chainID:        chainID,
		ReceiptTimeout: config.ReceiptTimeout * time.Second,
		config:         config,
	}
}

// Layer returns the layer this client is connected to
func (c *EthereumClient) Layer() common.Layer {
	return c.layer
}

// ChainID returns the chain id of the layer
func (c *EthereumClient) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// Client returns the internal ethclient.Client
func (c *EthereumClient) Client() *ethclient.Client {
	return c.client
}

// BalanceOf returns the latest balance of account.  The native token is read
// with eth_getBalance, any other token through its ERC20 contract.
func (c *EthereumClient) BalanceOf(ctx context.Context, token,
	account ethCommon.Address) (*big.Int, error) {
	log.Debugw("Balance query", "layer", c.layer, "account", account.Hex(), "token", token.Hex())
	if common.IsNativeToken(token) {
		balance, err := c.client.BalanceAt(ctx, account, nil)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		return balance, nil
	}
	return c.ERC20BalanceOf(ctx, token, account)
}

// SuggestGasPrice returns the gas price suggested by the node increased by
// 1/GasPriceDiv
func (c *EthereumClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	inc := new(big.Int).Set(gasPrice)
	inc.Div(inc, new(big.Int).SetUint64(c.config.GasPriceDiv))
	gasPrice.Add(gasPrice, inc)
	return gasPrice, nil
}

// SuggestGasTipCap returns the priority fee suggested by the node
func (c *EthereumClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	tip, err := c.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return tip, nil
}

// PendingNonce returns the next nonce of account
func (c *EthereumClient) PendingNonce(ctx context.Context, account ethCommon.Address) (uint64, error) {
	nonce, err := c.client.PendingNonceAt(ctx, account)
	if err != nil {
		return 0, tracerr.Wrap(err)
	}
	return nonce, nil
}

// EstimateGas estimates the gas of a call
func (c *EthereumClient) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	gas, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return 0, tracerr.Wrap(err)
	}
	return gas, nil
}

// SignAndSend signs a standard typed transaction with key and sends it.  The
// error returned by the node is kept verbatim in the error chain.
func (c *EthereumClient) SignAndSend(ctx context.Context, key *ecdsa.PrivateKey,
	txData types.TxData) (*types.Transaction, error) {
	tx, err := types.SignNewTx(key, types.LatestSignerForChainID(c.chainID), txData)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		log.Debugw("Transaction rejected", "layer", c.layer, "tx", tx.Hash().Hex(), "err", err)
		return nil, tracerr.Wrap(err)
	}
	log.Debugw("Transaction", "layer", c.layer, "tx", tx.Hash().Hex(), "type", tx.Type(),
		"nonce", tx.Nonce())
	return tx, nil
}

// SendRawTransaction sends an already encoded transaction
func (c *EthereumClient) SendRawTransaction(ctx context.Context, raw []byte) (ethCommon.Hash, error) {
	var hash ethCommon.Hash
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		log.Debugw("Raw transaction rejected", "layer", c.layer, "err", err)
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	log.Debugw("Transaction", "layer", c.layer, "tx", hash.Hex())
	return hash, nil
}

// rpcReceiptExtra holds the receipt fields that go-ethereum receipts do not
// carry
type rpcReceiptExtra struct {
	From           ethCommon.Address  `json:"from"`
	To             *ethCommon.Address `json:"to"`
	L1BatchNumber  *hexutil.Big       `json:"l1BatchNumber"`
	L1BatchTxIndex *hexutil.Big       `json:"l1BatchTxIndex"`
}

// TransactionReceipt returns the receipt of txHash, or nil if the transaction
// is still pending
func (c *EthereumClient) TransactionReceipt(ctx context.Context,
	txHash ethCommon.Hash) (*common.Receipt, *types.Receipt, error) {
	var raw json.RawMessage
	if err := c.rpc.CallContext(ctx, &raw, "eth_getTransactionReceipt", txHash); err != nil {
		return nil, nil, tracerr.Wrap(err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil, nil
	}
	var ethReceipt types.Receipt
	if err := json.Unmarshal(raw, &ethReceipt); err != nil {
		return nil, nil, tracerr.Wrap(err)
	}
	var extra rpcReceiptExtra
	if err := json.Unmarshal(raw, &extra); err != nil {
		return nil, nil, tracerr.Wrap(err)
	}
	receipt := common.NewReceipt(c.layer, &ethReceipt, extra.From, extra.To)
	if extra.L1BatchNumber != nil {
		receipt.L1BatchNumber = extra.L1BatchNumber.ToInt()
	}
	if extra.L1BatchTxIndex != nil {
		receipt.L1BatchTxIndex = extra.L1BatchTxIndex.ToInt()
	}
	return receipt, &ethReceipt, nil
}

// WaitReceipt blocks until the transaction is included, polling every
// IntervalReceiptLoop milliseconds for at most ReceiptTimeout.  A failed
// receipt is returned along with ErrReceiptStatusFailed.
func (c *EthereumClient) WaitReceipt(ctx context.Context,
	txHash ethCommon.Hash) (*common.Receipt, *types.Receipt, error) {
	var err error
	var receipt *common.Receipt
	var ethReceipt *types.Receipt

	log.Debugw("Waiting for receipt", "layer", c.layer, "tx", txHash.Hex())

	start := time.Now()
	for {
		receipt, ethReceipt, err = c.TransactionReceipt(ctx, txHash)
		if receipt != nil || time.Since(start) >= c.ReceiptTimeout || ctx.Err() != nil {
			break
		}
		time.Sleep(c.config.IntervalReceiptLoop * time.Millisecond)
	}

	if receipt != nil && !receipt.Successful() {
		log.Warnw("Failed transaction", "layer", c.layer, "tx", txHash.Hex())
		return receipt, ethReceipt, tracerr.Wrap(ErrReceiptStatusFailed)
	}

	if receipt == nil {
		log.Debugw("Pending transaction / Wait receipt timeout", "layer", c.layer,
			"tx", txHash.Hex(), "lasterr", err)
		return nil, nil, tracerr.Wrap(ErrReceiptNotReceived)
	}
	log.Debugw("Successful transaction", "layer", c.layer, "tx", txHash.Hex())

	return receipt, ethReceipt, nil
}

// Call performs a raw JSON-RPC call
func (c *EthereumClient) Call(ctx context.Context, result interface{}, method string,
	args ...interface{}) error {
	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return tracerr.Wrap(err)
	}
	return nil
}
