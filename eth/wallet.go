package eth

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/hermeznetwork/txverifier/operation"
)

// ErrBridgeTokenNotSupported is returned when bridging a token other than the
// native one
var ErrBridgeTokenNotSupported = fmt.Errorf("only the native token can be bridged")

// WalletConfig are the parameters of the bridge operations of a Wallet
type WalletConfig struct {
	GasPerPubdataByte *big.Int
	L2GasLimit        *big.Int
	// IntervalFinalizeLoop is the interval between checks of the
	// execution of the batch of a withdrawal
	IntervalFinalizeLoop time.Duration
	// FinalizeTimeout bounds the wait for a withdrawal to be finalizable
	FinalizeTimeout time.Duration
}

const (
	defaultL2GasLimit           = 10000000
	defaultIntervalFinalizeLoop = 5 * time.Second
	defaultFinalizeTimeout      = 30 * time.Minute
)

// Wallet signs with a private key and submits transactions to both layers
type Wallet struct {
	key     *ecdsa.PrivateKey
	address ethCommon.Address
	client  *Client
	cfg     WalletConfig
}

// NewWallet creates a Wallet.  Zero values of cfg are set to defaults.
func NewWallet(key *ecdsa.PrivateKey, client *Client, cfg WalletConfig) *Wallet {
	if cfg.GasPerPubdataByte == nil {
		cfg.GasPerPubdataByte = big.NewInt(DefaultGasPerPubdataByte)
	}
	if cfg.L2GasLimit == nil {
		cfg.L2GasLimit = big.NewInt(defaultL2GasLimit)
	}
	if cfg.IntervalFinalizeLoop == 0 {
		cfg.IntervalFinalizeLoop = defaultIntervalFinalizeLoop
	}
	if cfg.FinalizeTimeout == 0 {
		cfg.FinalizeTimeout = defaultFinalizeTimeout
	}
	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		client:  client,
		cfg:     cfg,
	}
}

// Address returns the address of the wallet
func (w *Wallet) Address() ethCommon.Address {
	return w.address
}

// GetBalance returns the balance of the wallet on a layer
func (w *Wallet) GetBalance(ctx context.Context, token ethCommon.Address,
	layer common.Layer) (*big.Int, error) {
	return w.client.BalanceOf(ctx, layer, token, w.address)
}

// GetBalanceL1 returns the balance of the wallet on L1
func (w *Wallet) GetBalanceL1(ctx context.Context, token ethCommon.Address) (*big.Int, error) {
	return w.GetBalance(ctx, token, common.LayerL1)
}

// EstimateGas estimates the gas of an L2 call
func (w *Wallet) EstimateGas(ctx context.Context, req CallRequest) (uint64, error) {
	from := req.From
	if from == (ethCommon.Address{}) {
		from = w.address
	}
	to := req.To
	return w.client.L2.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: req.Value,
		Data:  req.Data,
	})
}

// GetBaseCost quotes the L2 execution cost of a deposit
func (w *Wallet) GetBaseCost(ctx context.Context, req BaseCostRequest) (*big.Int, error) {
	if req.GasPrice == nil {
		gasPrice, err := w.client.L1.SuggestGasPrice(ctx)
		if err != nil {
			return nil, tracerr.Wrap(err)
		}
		req.GasPrice = gasPrice
	}
	return w.client.Bridge.BaseCost(ctx, req)
}

// fill sets the nonce, gas limit and fees of req that were left to zero
func (w *Wallet) fill(ctx context.Context, client *EthereumClient, req *TxRequest) (uint64, error) {
	nonce, err := client.PendingNonce(ctx, w.address)
	if err != nil {
		return 0, tracerr.Wrap(err)
	}
	if req.GasLimit == 0 {
		to := req.To
		gas, err := client.EstimateGas(ctx, ethereum.CallMsg{From: w.address, To: &to,
			Value: req.Value, Data: req.Data})
		if err != nil {
			return 0, tracerr.Wrap(err)
		}
		req.GasLimit = gas
	}
	switch req.Type {
	case common.TxTypeLegacy, common.TxTypeAccessList:
		if req.GasPrice == nil {
			if req.GasPrice, err = client.SuggestGasPrice(ctx); err != nil {
				return 0, tracerr.Wrap(err)
			}
		}
	default:
		if req.GasTipCap == nil {
			if req.GasTipCap, err = client.SuggestGasTipCap(ctx); err != nil {
				return 0, tracerr.Wrap(err)
			}
		}
		if req.GasFeeCap == nil {
			gasPrice, err := client.SuggestGasPrice(ctx)
			if err != nil {
				return 0, tracerr.Wrap(err)
			}
			req.GasFeeCap = new(big.Int).Add(gasPrice, req.GasTipCap)
		}
	}
	return nonce, nil
}

// send signs req for the layer of client and sends it
func (w *Wallet) send(ctx context.Context, client *EthereumClient,
	req TxRequest) (ethCommon.Hash, error) {
	nonce, err := w.fill(ctx, client, &req)
	if err != nil {
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	to := req.To
	var accessList types.AccessList
	if req.AccessList != nil {
		accessList = *req.AccessList
	}
	var txData types.TxData
	switch req.Type {
	case common.TxTypeLegacy:
		txData = &types.LegacyTx{Nonce: nonce, GasPrice: req.GasPrice, Gas: req.GasLimit,
			To: &to, Value: orZero(req.Value), Data: req.Data}
	case common.TxTypeAccessList:
		txData = &types.AccessListTx{ChainID: client.chainID, Nonce: nonce,
			GasPrice: req.GasPrice, Gas: req.GasLimit, To: &to, Value: orZero(req.Value),
			Data: req.Data, AccessList: accessList}
	case common.TxTypeDynamicFee:
		txData = &types.DynamicFeeTx{ChainID: client.chainID, Nonce: nonce,
			GasTipCap: req.GasTipCap, GasFeeCap: req.GasFeeCap, Gas: req.GasLimit, To: &to,
			Value: orZero(req.Value), Data: req.Data, AccessList: accessList}
	case common.TxTypeEIP712:
		tx := &EIP712Tx{ChainID: client.chainID, Nonce: nonce, GasTipCap: req.GasTipCap,
			GasFeeCap: req.GasFeeCap, Gas: req.GasLimit, From: w.address, To: to,
			Value: orZero(req.Value), Data: req.Data, GasPerPubdata: w.cfg.GasPerPubdataByte}
		raw, err := tx.Sign(w.key)
		if err != nil {
			return ethCommon.Hash{}, tracerr.Wrap(err)
		}
		return client.SendRawTransaction(ctx, raw)
	default:
		return ethCommon.Hash{}, tracerr.Wrap(fmt.Errorf("unsupported transaction type %v", req.Type))
	}
	tx, err := client.SignAndSend(ctx, w.key, txData)
	if err != nil {
		return ethCommon.Hash{}, tracerr.Wrap(err)
	}
	return tx.Hash(), nil
}

// SendTransaction submits a raw L2 transaction
func (w *Wallet) SendTransaction(ctx context.Context, req TxRequest) (*operation.Handle, error) {
	hash, err := w.send(ctx, w.client.L2, req)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	h := operation.New(common.OpL2Tx, hash)
	go w.trackL2Tx(h)
	return h, nil
}

// Transfer moves native or ERC20 tokens on L2
func (w *Wallet) Transfer(ctx context.Context, req TransferRequest) (*operation.Handle, error) {
	if common.IsNativeToken(req.Token) {
		return w.SendTransaction(ctx, TxRequest{Type: common.TxTypeDynamicFee, To: req.To,
			Value: req.Amount})
	}
	data, err := ERC20TransferData(req.To, req.Amount)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return w.SendTransaction(ctx, TxRequest{Type: common.TxTypeDynamicFee, To: req.Token,
		Data: data})
}

func (w *Wallet) trackL2Tx(h *operation.Handle) {
	receipt, _, err := w.client.L2.WaitReceipt(context.Background(), h.Hash())
	if err != nil {
		h.Fail(err)
		return
	}
	if err := h.Advance(operation.StageL2Applied, receipt); err != nil {
		log.Error(err)
	}
}

// Deposit moves the native token from L1 to L2 through the mailbox.  The base
// cost is quoted with the same gas price the L1 transaction pays, and
// recorded in the Handle.
func (w *Wallet) Deposit(ctx context.Context, req DepositRequest) (*operation.Handle, error) {
	if !common.IsNativeToken(req.Token) {
		return nil, tracerr.Wrap(ErrBridgeTokenNotSupported)
	}
	to := req.To
	if to == (ethCommon.Address{}) {
		to = w.address
	}
	gasPerPubdata := req.GasPerPubdataByte
	if gasPerPubdata == nil {
		gasPerPubdata = w.cfg.GasPerPubdataByte
	}
	l2GasLimit := req.L2GasLimit
	if l2GasLimit == nil {
		l2GasLimit = w.cfg.L2GasLimit
	}
	gasPrice := req.GasPrice
	if gasPrice == nil {
		var err error
		if gasPrice, err = w.client.L1.SuggestGasPrice(ctx); err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	baseCost, err := w.client.Bridge.BaseCost(ctx, BaseCostRequest{GasLimit: l2GasLimit,
		GasPerPubdataByte: gasPerPubdata, GasPrice: gasPrice})
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	data, err := RequestL2TransactionData(to, req.Amount, l2GasLimit, gasPerPubdata, w.address)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	hash, err := w.send(ctx, w.client.L1, TxRequest{
		Type:     common.TxTypeLegacy,
		To:       w.client.Bridge.Mailbox(),
		Value:    new(big.Int).Add(orZero(req.Amount), baseCost),
		Data:     data,
		GasPrice: gasPrice,
	})
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	log.Debugw("Deposit", "tx", hash.Hex(), "amount", req.Amount, "baseCost", baseCost)
	h := operation.New(common.OpDeposit, hash)
	h.SetBaseCost(baseCost)
	go w.trackDeposit(h)
	return h, nil
}

func (w *Wallet) trackDeposit(h *operation.Handle) {
	ctx := context.Background()
	receipt, ethReceipt, err := w.client.L1.WaitReceipt(ctx, h.Hash())
	if err != nil {
		h.Fail(err)
		return
	}
	if err := h.Advance(operation.StageL1Included, receipt); err != nil {
		log.Error(err)
		return
	}
	l2Hash, err := DepositL2Hash(w.client.Bridge.Mailbox(), ethReceipt.Logs)
	if err != nil {
		h.Fail(err)
		return
	}
	l2Receipt, _, err := w.client.L2.WaitReceipt(ctx, l2Hash)
	if err != nil {
		h.Fail(err)
		return
	}
	if err := h.Advance(operation.StageL2Applied, l2Receipt); err != nil {
		log.Error(err)
	}
}

// Withdraw moves the native token from L2 to L1.  The Handle reaches the
// Finalized stage once the batch that includes the withdrawal is executed on
// L1, after which FinalizeWithdrawal can be called.
func (w *Wallet) Withdraw(ctx context.Context, req WithdrawRequest) (*operation.Handle, error) {
	if !common.IsNativeToken(req.Token) {
		return nil, tracerr.Wrap(ErrBridgeTokenNotSupported)
	}
	to := req.To
	if to == (ethCommon.Address{}) {
		to = w.address
	}
	data, err := WithdrawData(to)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	hash, err := w.send(ctx, w.client.L2, TxRequest{
		Type:  common.TxTypeDynamicFee,
		To:    L2BaseTokenAddress,
		Value: req.Amount,
		Data:  data,
	})
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	h := operation.New(common.OpWithdrawal, hash)
	go w.trackWithdrawal(h)
	return h, nil
}

func (w *Wallet) trackWithdrawal(h *operation.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.FinalizeTimeout)
	defer cancel()
	receipt, _, err := w.client.L2.WaitReceipt(ctx, h.Hash())
	if err != nil {
		h.Fail(err)
		return
	}
	if err := h.Advance(operation.StageL2Applied, receipt); err != nil {
		log.Error(err)
		return
	}
	for {
		if receipt.L1BatchNumber != nil {
			executed, err := w.client.Bridge.BatchExecuted(ctx, receipt.L1BatchNumber)
			if err != nil {
				log.Warnw("Batch details", "tx", h.Hash().Hex(), "err", err)
			} else if executed {
				break
			}
		} else {
			// The batch number is only known once the batch is sealed
			latest, _, err := w.client.L2.TransactionReceipt(ctx, h.Hash())
			if err != nil {
				log.Warnw("Withdrawal receipt", "tx", h.Hash().Hex(), "err", err)
			} else if latest != nil {
				receipt = latest
			}
		}
		select {
		case <-ctx.Done():
			h.Fail(tracerr.Wrap(fmt.Errorf("withdrawal %s not finalizable: %w",
				h.Hash().Hex(), ctx.Err())))
			return
		case <-time.After(w.cfg.IntervalFinalizeLoop):
		}
	}
	if err := h.Advance(operation.StageFinalized, receipt); err != nil {
		log.Error(err)
	}
}

// FinalizeWithdrawal releases a withdrawal on L1 and returns the L1 receipt
// of the finalization, whose fee is paid by this wallet
func (w *Wallet) FinalizeWithdrawal(ctx context.Context,
	withdrawalHash ethCommon.Hash) (*common.Receipt, error) {
	receipt, ethReceipt, err := w.client.L2.TransactionReceipt(ctx, withdrawalHash)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if receipt == nil || receipt.L1BatchNumber == nil || receipt.L1BatchTxIndex == nil {
		return nil, tracerr.Wrap(fmt.Errorf("withdrawal %s is not in an L1 batch",
			withdrawalHash.Hex()))
	}
	message, err := WithdrawalMessage(ethReceipt.Logs)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	proof, err := w.client.Bridge.LogProof(ctx, withdrawalHash)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if proof == nil {
		return nil, tracerr.Wrap(fmt.Errorf("no proof for withdrawal %s", withdrawalHash.Hex()))
	}
	data, err := FinalizeEthWithdrawalData(receipt.L1BatchNumber,
		new(big.Int).SetUint64(proof.ID), uint16(receipt.L1BatchTxIndex.Uint64()), message,
		proof.Proof)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	hash, err := w.send(ctx, w.client.L1, TxRequest{
		Type: common.TxTypeDynamicFee,
		To:   w.client.Bridge.Mailbox(),
		Data: data,
	})
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	l1Receipt, _, err := w.client.L1.WaitReceipt(ctx, hash)
	if err != nil {
		return l1Receipt, tracerr.Wrap(err)
	}
	return l1Receipt, nil
}
