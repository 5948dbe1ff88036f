package test

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"reflect"
	"sync"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/eth"
	"github.com/hermeznetwork/txverifier/log"
	"github.com/hermeznetwork/txverifier/operation"
	"github.com/mitchellh/copystructure"
)

func init() {
	copystructure.Copiers[reflect.TypeOf(big.Int{})] =
		func(raw interface{}) (interface{}, error) {
			in := raw.(big.Int)
			out := new(big.Int).Set(&in)
			return *out, nil
		}
}

// Gas charged by the simulated chains
const (
	TxGas            = 21000
	TxDataGas        = 16
	ERC20TransferGas = 30000
	WithdrawGas      = 60000
	DepositL1Gas     = 150000
	FinalizeL1Gas    = 120000
	// L1ToL2TxPubdata is the pubdata charged to every deposit in the base
	// cost
	L1ToL2TxPubdata = 200
	// PriorityTxType is the receipt type of an L2 transaction requested
	// from L1
	PriorityTxType common.TxType = 0xff
)

// Rejection messages of the simulated nodes
const (
	ErrMsgAccessList        = "failed to validate the transaction. reason: access lists are not supported"
	ErrMsgInsufficientFunds = "insufficient funds for gas + value."
)

// LayerBlock stores the state of a layer after a block
type LayerBlock struct {
	Num  int64
	Hash ethCommon.Hash
	// Balances are indexed by token and account.  The native token is
	// NativeTokenAddress.
	Balances map[ethCommon.Address]map[ethCommon.Address]*big.Int
	Receipts map[ethCommon.Hash]*common.Receipt
}

func newLayerBlock() *LayerBlock {
	return &LayerBlock{
		Balances: map[ethCommon.Address]map[ethCommon.Address]*big.Int{
			common.NativeTokenAddress: make(map[ethCommon.Address]*big.Int),
		},
		Receipts: make(map[ethCommon.Hash]*common.Receipt),
	}
}

func (b *LayerBlock) copy() *LayerBlock {
	bCopyRaw, err := copystructure.Copy(b)
	if err != nil {
		panic(err)
	}
	return bCopyRaw.(*LayerBlock)
}

// Next prepares the successive block
func (b *LayerBlock) Next() *LayerBlock {
	blockNext := b.copy()
	blockNext.Num = b.Num + 1
	blockNext.Hash = ethCommon.Hash{}
	blockNext.Receipts = make(map[ethCommon.Hash]*common.Receipt)
	return blockNext
}

func (b *LayerBlock) hasToken(token ethCommon.Address) bool {
	_, ok := b.Balances[token]
	return ok
}

// balance returns the balance of account, which is zero for an account never
// used
func (b *LayerBlock) balance(token, account ethCommon.Address) *big.Int {
	if balance, ok := b.Balances[token][account]; ok {
		return new(big.Int).Set(balance)
	}
	return big.NewInt(0)
}

func (b *LayerBlock) setBalance(token, account ethCommon.Address, amount *big.Int) {
	if _, ok := b.Balances[token]; !ok {
		b.Balances[token] = make(map[ethCommon.Address]*big.Int)
	}
	b.Balances[token][account] = new(big.Int).Set(amount)
}

func (b *LayerBlock) add(token, account ethCommon.Address, delta *big.Int) {
	b.setBalance(token, account, new(big.Int).Add(b.balance(token, account), delta))
}

func (b *LayerBlock) sub(token, account ethCommon.Address, delta *big.Int) {
	b.setBalance(token, account, new(big.Int).Sub(b.balance(token, account), delta))
}

// pendingTx is a transaction waiting for the next block of its layer
type pendingTx struct {
	handle  *operation.Handle
	stage   operation.Stage
	receipt *common.Receipt
	// onMined runs once the block that includes the transaction is mined
	onMined func()
}

type chain struct {
	layer    common.Layer
	chainID  *big.Int
	gasPrice *big.Int
	blocks   map[int64]*LayerBlock
	blockNum int64 // last mined block num
	pending  []*pendingTx
	queryErr error
}

func newChain(layer common.Layer, chainID, gasPrice *big.Int) *chain {
	genesis := newLayerBlock()
	return &chain{
		layer:    layer,
		chainID:  chainID,
		gasPrice: gasPrice,
		blocks:   map[int64]*LayerBlock{0: genesis, 1: genesis.Next()},
	}
}

func (ch *chain) nextBlock() *LayerBlock {
	return ch.blocks[ch.blockNum+1]
}

func (ch *chain) currentBlock() *LayerBlock {
	return ch.blocks[ch.blockNum]
}

type withdrawal struct {
	handle    *operation.Handle
	to        ethCommon.Address
	amount    *big.Int
	batch     int64
	finalized bool
}

// ClientSetup is used to initialize the parameters of the test Client
type ClientSetup struct {
	ChainIDL1  *big.Int
	ChainIDL2  *big.Int
	GasPriceL1 *big.Int
	// GasPriceL2 is the base fee of L2
	GasPriceL2        *big.Int
	Mailbox           ethCommon.Address
	L2GasLimit        *big.Int
	GasPerPubdataByte *big.Int
	// AutoMine mines a block right after every transaction is submitted
	AutoMine bool
	// AutoFinalize executes on L1 every L2 block as soon as it is mined
	AutoFinalize bool
}

// NewClientSetupExample returns a ClientSetup example with hardcoded realistic
// values that mines and finalizes blocks as transactions arrive.
//
//nolint:gomnd
func NewClientSetupExample() *ClientSetup {
	return &ClientSetup{
		ChainIDL1:         big.NewInt(9),
		ChainIDL2:         big.NewInt(270),
		GasPriceL1:        big.NewInt(10),
		GasPriceL2:        big.NewInt(2),
		Mailbox:           ethCommon.HexToAddress("0x1d3B6e9DC2a2d4e4d1A8B1d2c0fA3F8B5e1Cc0De"),
		L2GasLimit:        big.NewInt(10000000),
		GasPerPubdataByte: big.NewInt(eth.DefaultGasPerPubdataByte),
		AutoMine:          true,
		AutoFinalize:      true,
	}
}

// Client is a deterministic in-memory L1 and L2 pair.  It implements
// eth.BalanceReader and eth.AccountFactory, and its Wallets implement
// eth.WalletInterface.  Balances are read from the last mined block, while
// submitted transactions are applied to the next one.
type Client struct {
	rw          *sync.RWMutex
	log         bool
	setup       ClientSetup
	l1          *chain
	l2          *chain
	hasher      hasher
	accounts    uint64
	withdrawals map[ethCommon.Hash]*withdrawal
	executed    int64 // last L2 block executed on L1
}

// NewClient returns a new test Client
func NewClient(l bool, setup *ClientSetup) *Client {
	return &Client{
		rw:          &sync.RWMutex{},
		log:         l,
		setup:       *setup,
		l1:          newChain(common.LayerL1, setup.ChainIDL1, setup.GasPriceL1),
		l2:          newChain(common.LayerL2, setup.ChainIDL2, setup.GasPriceL2),
		withdrawals: make(map[ethCommon.Hash]*withdrawal),
	}
}

//
// Mock Control
//

// Debugw calls log.Debugw if c.log is true
func (c *Client) Debugw(template string, kv ...interface{}) {
	if c.log {
		log.Debugw(template, kv...)
	}
}

type hasher struct {
	counter uint64
}

// Next returns the next hash
func (h *hasher) Next() ethCommon.Hash {
	h.counter++
	var hash ethCommon.Hash
	binary.LittleEndian.PutUint64(hash[:], h.counter)
	return hash
}

func (c *Client) chain(layer common.Layer) *chain {
	if layer == common.LayerL1 {
		return c.l1
	}
	return c.l2
}

// CtlSetBalance sets the balance of an account, effective immediately
func (c *Client) CtlSetBalance(layer common.Layer, token, account ethCommon.Address,
	amount *big.Int) {
	c.rw.Lock()
	defer c.rw.Unlock()
	ch := c.chain(layer)
	ch.currentBlock().setBalance(token, account, amount)
	ch.nextBlock().setBalance(token, account, amount)
}

// CtlAddERC20 registers an ERC20 token on a layer so that transfers to its
// address move token balances
func (c *Client) CtlAddERC20(layer common.Layer, token ethCommon.Address) {
	c.rw.Lock()
	defer c.rw.Unlock()
	ch := c.chain(layer)
	for _, b := range []*LayerBlock{ch.currentBlock(), ch.nextBlock()} {
		if !b.hasToken(token) {
			b.Balances[token] = make(map[ethCommon.Address]*big.Int)
		}
	}
}

// CtlSetGasPrice sets the gas price of a layer
func (c *Client) CtlSetGasPrice(layer common.Layer, gasPrice *big.Int) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.chain(layer).gasPrice = new(big.Int).Set(gasPrice)
}

// CtlSetQueryError makes every balance read on layer fail with err.  A nil
// err restores the reads.
func (c *Client) CtlSetQueryError(layer common.Layer, err error) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.chain(layer).queryErr = err
}

// CtlMineL1Block mines the next L1 block
func (c *Client) CtlMineL1Block() {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.mine(c.l1)
}

// CtlMineL2Block mines the next L2 block
func (c *Client) CtlMineL2Block() {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.mine(c.l2)
}

// CtlFinalizeL2Blocks executes on L1 every mined L2 block, making their
// withdrawals finalizable
func (c *Client) CtlFinalizeL2Blocks() {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.finalize(c.l2.blockNum)
}

// CtlBlockNum returns the last mined block of a layer
func (c *Client) CtlBlockNum(layer common.Layer) int64 {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.chain(layer).blockNum
}

func (c *Client) mine(ch *chain) {
	block := ch.nextBlock()
	ch.blockNum++
	block.Hash = c.hasher.Next()
	pending := ch.pending
	ch.pending = nil
	for i, p := range pending {
		p.receipt.BlockNumber = big.NewInt(block.Num)
		if ch.layer == common.LayerL2 {
			p.receipt.L1BatchNumber = big.NewInt(block.Num)
			p.receipt.L1BatchTxIndex = big.NewInt(int64(i))
		}
		block.Receipts[p.receipt.TxHash] = p.receipt
	}
	ch.blocks[ch.blockNum+1] = block.Next()
	c.Debugw("TestClient mined block", "layer", ch.layer, "blockNum", ch.blockNum,
		"txs", len(pending))

	for _, p := range pending {
		if p.handle != nil && !p.receipt.Successful() {
			// As a receipt poller does with a failed receipt
			p.handle.Fail(tracerr.Wrap(eth.ErrReceiptStatusFailed))
			continue
		}
		if p.handle != nil {
			if err := p.handle.Advance(p.stage, p.receipt); err != nil {
				log.Error(err)
			}
		}
		if p.onMined != nil {
			p.onMined()
		}
	}
	if ch.layer == common.LayerL2 && c.setup.AutoFinalize {
		c.finalize(ch.blockNum)
	}
}

func (c *Client) finalize(upTo int64) {
	if upTo > c.executed {
		c.executed = upTo
	}
	for _, w := range c.withdrawals {
		if w.batch == 0 || w.batch > c.executed {
			continue
		}
		if w.handle.Stage() == operation.StageL2Applied {
			if err := w.handle.Advance(operation.StageFinalized, nil); err != nil {
				log.Error(err)
			}
		}
	}
}

func (c *Client) autoMine(ch *chain) {
	if c.setup.AutoMine {
		c.mine(ch)
	}
}

//
// Reads
//

// BalanceOf returns the balance of account in the last mined block of layer
func (c *Client) BalanceOf(ctx context.Context, layer common.Layer, token,
	account ethCommon.Address) (*big.Int, error) {
	c.rw.RLock()
	defer c.rw.RUnlock()
	if !layer.Valid() {
		return nil, tracerr.Wrap(fmt.Errorf("invalid layer %v", layer))
	}
	ch := c.chain(layer)
	if ch.queryErr != nil {
		return nil, tracerr.Wrap(ch.queryErr)
	}
	return ch.currentBlock().balance(token, account), nil
}

// TransactionReceipt returns the receipt of a mined transaction, or nil
func (c *Client) TransactionReceipt(layer common.Layer, txHash ethCommon.Hash) *common.Receipt {
	c.rw.RLock()
	defer c.rw.RUnlock()
	ch := c.chain(layer)
	for i := int64(0); i <= ch.blockNum; i++ {
		if r, ok := ch.blocks[i].Receipts[txHash]; ok {
			return r
		}
	}
	return nil
}

// BaseCost returns the L2 execution cost of a deposit:
// gasPrice * (gasLimit + gasPerPubdataByte * L1ToL2TxPubdata)
func BaseCost(req eth.BaseCostRequest) (*big.Int, error) {
	if req.GasLimit == nil || req.GasPerPubdataByte == nil || req.GasPrice == nil {
		return nil, tracerr.Wrap(fmt.Errorf("incomplete base cost request"))
	}
	gas := new(big.Int).Mul(req.GasPerPubdataByte, big.NewInt(L1ToL2TxPubdata))
	gas.Add(gas, req.GasLimit)
	return gas.Mul(gas, req.GasPrice), nil
}

//
// Accounts
//

// Wallet returns a Wallet for address
func (c *Client) Wallet(address ethCommon.Address) *Wallet {
	return &Wallet{c: c, address: address}
}

// NewWallet returns a Wallet of a fresh account, with no balance on either
// layer
func (c *Client) NewWallet(ctx context.Context) (eth.WalletInterface, error) {
	c.rw.Lock()
	defer c.rw.Unlock()
	c.accounts++
	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], c.accounts)
	address := ethCommon.BytesToAddress(crypto.Keccak256([]byte("account"), seed[:]))
	return c.Wallet(address), nil
}

//
// Transactions
//

func intrinsicGas(data []byte) uint64 {
	return TxGas + TxDataGas*uint64(len(data))
}

// gasOf returns the gas used by a transaction on ch
func (c *Client) gasOf(ch *chain, to ethCommon.Address, data []byte) uint64 {
	gas := intrinsicGas(data)
	switch {
	case ch.layer == common.LayerL2 && to == eth.L2BaseTokenAddress:
		gas += WithdrawGas
	case ch.nextBlock().hasToken(to) && !common.IsNativeToken(to):
		gas += ERC20TransferGas
	}
	return gas
}

// prices returns the maximum price per gas that the sender must be able to
// pay and the price actually paid
func prices(ch *chain, req *eth.TxRequest) (*big.Int, *big.Int, error) {
	switch req.Type {
	case common.TxTypeLegacy:
		price := req.GasPrice
		if price == nil {
			price = ch.gasPrice
		}
		if price.Cmp(ch.gasPrice) < 0 {
			return nil, nil, fmt.Errorf("gas price %s below the minimum %s", price, ch.gasPrice)
		}
		return price, price, nil
	case common.TxTypeDynamicFee, common.TxTypeEIP712:
		tip := req.GasTipCap
		if tip == nil {
			tip = big.NewInt(0)
		}
		feeCap := req.GasFeeCap
		if feeCap == nil {
			feeCap = new(big.Int).Add(new(big.Int).Mul(ch.gasPrice, big.NewInt(2)), tip) //nolint:gomnd
		}
		if feeCap.Cmp(ch.gasPrice) < 0 {
			return nil, nil, fmt.Errorf("max fee per gas %s less than block base fee %s",
				feeCap, ch.gasPrice)
		}
		effective := new(big.Int).Add(ch.gasPrice, tip)
		if effective.Cmp(feeCap) > 0 {
			effective = new(big.Int).Set(feeCap)
		}
		return feeCap, effective, nil
	default:
		return nil, nil, fmt.Errorf("transaction type %v not supported", req.Type)
	}
}

// transact validates a transaction of from on ch and applies its native
// effects to the next block.  The value is credited to `to` unless burn is
// set.  It returns the pending receipt.
func (c *Client) transact(ch *chain, from ethCommon.Address, req eth.TxRequest,
	burn bool) (*common.Receipt, error) {
	if req.Type == common.TxTypeAccessList || req.AccessList != nil {
		return nil, tracerr.New(ErrMsgAccessList)
	}
	value := req.Value
	if value == nil {
		value = big.NewInt(0)
	}
	if value.Sign() < 0 {
		return nil, tracerr.Wrap(fmt.Errorf("negative value %s", value))
	}
	maxPrice, effective, err := prices(ch, &req)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	gasUsed := c.gasOf(ch, req.To, req.Data)
	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit = gasUsed
	}
	block := ch.nextBlock()
	balance := block.balance(common.NativeTokenAddress, from)
	maxFee := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), maxPrice)
	if new(big.Int).Add(maxFee, value).Cmp(balance) > 0 {
		return nil, tracerr.Wrap(fmt.Errorf("%s balance: %s, fee: %s, value: %s",
			ErrMsgInsufficientFunds, balance, maxFee, value))
	}
	if gasLimit < gasUsed {
		return nil, tracerr.Wrap(fmt.Errorf("intrinsic gas too low: have %d, want %d",
			gasLimit, gasUsed))
	}

	status := uint64(1)
	fee := new(big.Int).Mul(new(big.Int).SetUint64(gasUsed), effective)
	block.sub(common.NativeTokenAddress, from, fee)
	// ERC20 transfer
	if !common.IsNativeToken(req.To) && block.hasToken(req.To) && value.Sign() == 0 {
		to, amount, err := eth.DecodeERC20Transfer(req.Data)
		if err != nil || block.balance(req.To, from).Cmp(amount) < 0 {
			status = 0
		} else {
			block.sub(req.To, from, amount)
			block.add(req.To, to, amount)
		}
	} else {
		block.sub(common.NativeTokenAddress, from, value)
		if !burn {
			block.add(common.NativeTokenAddress, req.To, value)
		}
	}

	to := req.To
	txType := req.Type
	receipt := &common.Receipt{
		Layer:             ch.layer,
		TxHash:            c.hasher.Next(),
		From:              from,
		To:                &to,
		Type:              &txType,
		Status:            &status,
		GasUsed:           new(big.Int).SetUint64(gasUsed),
		EffectiveGasPrice: effective,
	}
	c.Debugw("TestClient transaction", "layer", ch.layer, "tx", receipt.TxHash.Hex(),
		"from", from.Hex(), "to", to.Hex(), "value", value, "fee", fee, "status", status)
	return receipt, nil
}

func (c *Client) sendL2(from ethCommon.Address, req eth.TxRequest) (*operation.Handle, error) {
	c.rw.Lock()
	defer c.rw.Unlock()
	receipt, err := c.transact(c.l2, from, req, false)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	h := operation.New(common.OpL2Tx, receipt.TxHash)
	c.l2.pending = append(c.l2.pending, &pendingTx{handle: h,
		stage: operation.StageL2Applied, receipt: receipt})
	c.autoMine(c.l2)
	return h, nil
}

func (c *Client) deposit(from ethCommon.Address, req eth.DepositRequest) (*operation.Handle, error) {
	if !common.IsNativeToken(req.Token) {
		return nil, tracerr.Wrap(eth.ErrBridgeTokenNotSupported)
	}
	c.rw.Lock()
	defer c.rw.Unlock()
	to := req.To
	if to == (ethCommon.Address{}) {
		to = from
	}
	amount := req.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	costReq := eth.BaseCostRequest{GasLimit: req.L2GasLimit,
		GasPerPubdataByte: req.GasPerPubdataByte, GasPrice: req.GasPrice}
	if costReq.GasLimit == nil {
		costReq.GasLimit = c.setup.L2GasLimit
	}
	if costReq.GasPerPubdataByte == nil {
		costReq.GasPerPubdataByte = c.setup.GasPerPubdataByte
	}
	if costReq.GasPrice == nil {
		costReq.GasPrice = c.l1.gasPrice
	}
	baseCost, err := BaseCost(costReq)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}

	block := c.l1.nextBlock()
	balance := block.balance(common.NativeTokenAddress, from)
	fee := new(big.Int).Mul(big.NewInt(DepositL1Gas), costReq.GasPrice)
	value := new(big.Int).Add(amount, baseCost)
	if new(big.Int).Add(fee, value).Cmp(balance) > 0 {
		return nil, tracerr.Wrap(fmt.Errorf("%s balance: %s, fee: %s, value: %s",
			ErrMsgInsufficientFunds, balance, fee, value))
	}
	block.sub(common.NativeTokenAddress, from, new(big.Int).Add(fee, value))

	mailbox := c.setup.Mailbox
	status := uint64(1)
	txType := common.TxTypeLegacy
	receipt := &common.Receipt{
		Layer:             common.LayerL1,
		TxHash:            c.hasher.Next(),
		From:              from,
		To:                &mailbox,
		Type:              &txType,
		Status:            &status,
		GasUsed:           big.NewInt(DepositL1Gas),
		EffectiveGasPrice: new(big.Int).Set(costReq.GasPrice),
	}
	h := operation.New(common.OpDeposit, receipt.TxHash)
	h.SetBaseCost(baseCost)
	c.Debugw("TestClient deposit", "tx", receipt.TxHash.Hex(), "amount", amount,
		"baseCost", baseCost)

	c.l1.pending = append(c.l1.pending, &pendingTx{handle: h, stage: operation.StageL1Included,
		receipt: receipt, onMined: func() {
			c.l2.nextBlock().add(common.NativeTokenAddress, to, amount)
			l2Status := uint64(1)
			l2Type := PriorityTxType
			l2Receipt := &common.Receipt{
				Layer:             common.LayerL2,
				TxHash:            c.hasher.Next(),
				From:              from,
				To:                &to,
				Type:              &l2Type,
				Status:            &l2Status,
				GasUsed:           big.NewInt(0),
				EffectiveGasPrice: big.NewInt(0),
			}
			c.l2.pending = append(c.l2.pending, &pendingTx{handle: h,
				stage: operation.StageL2Applied, receipt: l2Receipt})
			c.autoMine(c.l2)
		}})
	c.autoMine(c.l1)
	return h, nil
}

func (c *Client) withdraw(from ethCommon.Address, req eth.WithdrawRequest) (*operation.Handle, error) {
	if !common.IsNativeToken(req.Token) {
		return nil, tracerr.Wrap(eth.ErrBridgeTokenNotSupported)
	}
	to := req.To
	if to == (ethCommon.Address{}) {
		to = from
	}
	data, err := eth.WithdrawData(to)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	amount := req.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	c.rw.Lock()
	defer c.rw.Unlock()
	receipt, err := c.transact(c.l2, from, eth.TxRequest{
		Type:  common.TxTypeDynamicFee,
		To:    eth.L2BaseTokenAddress,
		Value: amount,
		Data:  data,
	}, true)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	h := operation.New(common.OpWithdrawal, receipt.TxHash)
	w := &withdrawal{handle: h, to: to, amount: amount}
	c.withdrawals[receipt.TxHash] = w
	c.l2.pending = append(c.l2.pending, &pendingTx{handle: h, stage: operation.StageL2Applied,
		receipt: receipt, onMined: func() {
			w.batch = receipt.L1BatchNumber.Int64()
		}})
	c.autoMine(c.l2)
	return h, nil
}

func (c *Client) finalizeWithdrawal(from ethCommon.Address,
	withdrawalHash ethCommon.Hash) (*operation.Handle, error) {
	c.rw.Lock()
	defer c.rw.Unlock()
	w, ok := c.withdrawals[withdrawalHash]
	if !ok {
		return nil, tracerr.Wrap(fmt.Errorf("withdrawal %s not found", withdrawalHash.Hex()))
	}
	if w.finalized {
		return nil, tracerr.Wrap(fmt.Errorf("withdrawal %s already finalized",
			withdrawalHash.Hex()))
	}
	if w.batch == 0 || w.batch > c.executed {
		return nil, tracerr.Wrap(fmt.Errorf("withdrawal %s is not finalizable yet",
			withdrawalHash.Hex()))
	}
	block := c.l1.nextBlock()
	price := c.l1.gasPrice
	fee := new(big.Int).Mul(big.NewInt(FinalizeL1Gas), price)
	balance := block.balance(common.NativeTokenAddress, from)
	if fee.Cmp(balance) > 0 {
		return nil, tracerr.Wrap(fmt.Errorf("%s balance: %s, fee: %s, value: 0",
			ErrMsgInsufficientFunds, balance, fee))
	}
	block.sub(common.NativeTokenAddress, from, fee)
	block.add(common.NativeTokenAddress, w.to, w.amount)
	w.finalized = true

	mailbox := c.setup.Mailbox
	status := uint64(1)
	txType := common.TxTypeDynamicFee
	receipt := &common.Receipt{
		Layer:             common.LayerL1,
		TxHash:            c.hasher.Next(),
		From:              from,
		To:                &mailbox,
		Type:              &txType,
		Status:            &status,
		GasUsed:           big.NewInt(FinalizeL1Gas),
		EffectiveGasPrice: new(big.Int).Set(price),
	}
	h := operation.New(common.OpL1Tx, receipt.TxHash)
	c.l1.pending = append(c.l1.pending, &pendingTx{handle: h, stage: operation.StageL1Included,
		receipt: receipt})
	c.autoMine(c.l1)
	return h, nil
}

func (c *Client) estimateGas(req eth.CallRequest) uint64 {
	c.rw.RLock()
	defer c.rw.RUnlock()
	return c.gasOf(c.l2, req.To, req.Data)
}
