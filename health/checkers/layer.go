package checkers

import (
	"context"
	"time"

	"github.com/dimiro1/health"
	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/txverifier/common"
	"github.com/hermeznetwork/txverifier/eth"
)

const layerCheckTimeout = 5 * time.Second

// LayerChecker checks that the node of a layer answers balance queries
type LayerChecker struct {
	reader  eth.BalanceReader
	layer   common.Layer
	account ethCommon.Address
}

// NewLayerChecker creates a LayerChecker that reads the native balance of
// account on layer
func NewLayerChecker(reader eth.BalanceReader, layer common.Layer,
	account ethCommon.Address) LayerChecker {
	return LayerChecker{reader: reader, layer: layer, account: account}
}

// Check layer node health
func (c LayerChecker) Check() health.Health {
	h := health.NewHealth()
	ctx, cancel := context.WithTimeout(context.Background(), layerCheckTimeout)
	defer cancel()

	balance, err := c.reader.BalanceOf(ctx, c.layer, common.NativeTokenAddress, c.account)
	if err != nil {
		h.Down().AddInfo("error", err.Error())
		return h
	}

	h.Up().
		AddInfo("account", c.account.Hex()).
		AddInfo("balance", balance.String())

	return h
}
