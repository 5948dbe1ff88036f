package eth

import (
	"context"
	"fmt"
	"math/big"

	ethCommon "github.com/ethereum/go-ethereum/common"
	"github.com/hermeznetwork/tracerr"
	"github.com/hermeznetwork/txverifier/common"
)

// Client reads from both layers and bridges between them
type Client struct {
	L1     *EthereumClient
	L2     *EthereumClient
	Bridge *Bridge
}

// NewClient creates a new Client from already connected layer clients
func NewClient(l1, l2 *EthereumClient, mailbox ethCommon.Address) *Client {
	return &Client{
		L1:     l1,
		L2:     l2,
		Bridge: NewBridge(l1, l2, mailbox),
	}
}

// Layer returns the client of a layer
func (c *Client) Layer(layer common.Layer) (*EthereumClient, error) {
	switch layer {
	case common.LayerL1:
		return c.L1, nil
	case common.LayerL2:
		return c.L2, nil
	default:
		return nil, tracerr.Wrap(fmt.Errorf("invalid layer %v", layer))
	}
}

// BalanceOf implements BalanceReader
func (c *Client) BalanceOf(ctx context.Context, layer common.Layer, token,
	account ethCommon.Address) (*big.Int, error) {
	client, err := c.Layer(layer)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return client.BalanceOf(ctx, token, account)
}
