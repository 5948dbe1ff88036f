package eth

import (
	"context"
	"fmt"
	"sync/atomic"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/log"
	hdwallet "github.com/miguelmota/go-ethereum-hdwallet"
)

// mnemonicBits is the entropy of generated mnemonics
const mnemonicBits = 256

// HDAccountFactory derives fresh accounts from a mnemonic.  Each derived
// account is new, so it has no balance on either layer.
type HDAccountFactory struct {
	w         *hdwallet.Wallet
	client    *Client
	cfg       WalletConfig
	nextIndex atomic.Uint64
}

// NewHDAccountFactory creates an HDAccountFactory.  An empty mnemonic
// generates a random one.
func NewHDAccountFactory(mnemonic string, client *Client, cfg WalletConfig) (*HDAccountFactory, error) {
	if mnemonic == "" {
		var err error
		if mnemonic, err = hdwallet.NewMnemonic(mnemonicBits); err != nil {
			return nil, tracerr.Wrap(err)
		}
	}
	w, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, tracerr.Wrap(fmt.Errorf("invalid mnemonic: %w", err))
	}
	return &HDAccountFactory{w: w, client: client, cfg: cfg}, nil
}

// Path returns the derivation path of the account at index
func Path(index uint64) string {
	return fmt.Sprintf("m/44'/60'/0'/0/%d", index)
}

// DeriveAddress returns the address of the account at index
func (f *HDAccountFactory) DeriveAddress(index uint64) (ethCommon.Address, error) {
	account, err := f.w.Derive(hdwallet.MustParseDerivationPath(Path(index)), false)
	if err != nil {
		return ethCommon.Address{}, tracerr.Wrap(err)
	}
	return account.Address, nil
}

// NewWallet implements AccountFactory
func (f *HDAccountFactory) NewWallet(ctx context.Context) (WalletInterface, error) {
	index := f.nextIndex.Add(1) - 1
	path := Path(index)
	account, err := f.w.Derive(hdwallet.MustParseDerivationPath(path), false)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	key, err := f.w.PrivateKey(account)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	log.Debugw("Creating account", "account", account.Address.Hex(), "path", path)
	return NewWallet(key, f.client, f.cfg), nil
}
