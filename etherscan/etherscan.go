/*
Package etherscan reads the L1 gas price from the gas tracker of an etherscan
compatible explorer.  The deposit verification uses it to quote the base cost
and to send the deposit with the same gas price, when the node suggested
price is not wanted.
*/
package etherscan

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/dghubble/sling"
	"github.com/hermeznetwork/tracerr"
)

const (
	defaultMaxIdleConns    = 10
	defaultIdleConnTimeout = 2 * time.Second
	statusOK               = "1"
)

var gweiToWei = big.NewRat(1_000_000_000, 1)

type etherscanResponse struct {
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Result  GasPriceEtherscan `json:"result"`
}

// GasPriceEtherscan are the gas prices in gwei reported by the gas tracker
type GasPriceEtherscan struct {
	LastBlock       string `json:"LastBlock"`
	SafeGasPrice    string `json:"SafeGasPrice"`
	ProposeGasPrice string `json:"ProposeGasPrice"`
	FastGasPrice    string `json:"FastGasPrice"`
}

// Propose returns the proposed gas price in wei
func (g *GasPriceEtherscan) Propose() (*big.Int, error) {
	return GweiToWei(g.ProposeGasPrice)
}

// GweiToWei converts a decimal amount of gwei to wei, truncating the
// fraction of wei
func GweiToWei(gwei string) (*big.Int, error) {
	r, ok := new(big.Rat).SetString(gwei)
	if !ok {
		return nil, tracerr.Wrap(fmt.Errorf("invalid gas price %q", gwei))
	}
	if r.Sign() <= 0 {
		return nil, tracerr.Wrap(fmt.Errorf("gas price %q is not positive", gwei))
	}
	r.Mul(r, gweiToWei)
	wei := new(big.Int).Quo(r.Num(), r.Denom())
	if wei.Sign() == 0 {
		return nil, tracerr.Wrap(fmt.Errorf("gas price %q is less than 1 wei", gwei))
	}
	return wei, nil
}

// Service reads the gas tracker of an explorer
type Service struct {
	clientEtherscan *sling.Sling
	apiKey          string
}

// Client is the interface to a gas price oracle
type Client interface {
	// Blocking.  Returns the gas price.
	GetGasPrice(ctx context.Context) (*GasPriceEtherscan, error)
}

// NewEtherscanService is the constructor that creates an etherscanService
func NewEtherscanService(etherscanURL string, apikey string) (*Service, error) {
	if etherscanURL == "" {
		return nil, tracerr.New("empty etherscan url")
	}
	tr := &http.Transport{
		MaxIdleConns:       defaultMaxIdleConns,
		IdleConnTimeout:    defaultIdleConnTimeout,
		DisableCompression: true,
	}
	httpClient := &http.Client{Transport: tr}
	return &Service{
		clientEtherscan: sling.New().Base(etherscanURL).Client(httpClient),
		apiKey:          apikey,
	}, nil
}

type gasOracleParams struct {
	Module string `url:"module"`
	Action string `url:"action"`
	APIKey string `url:"apikey,omitempty"`
}

// GetGasPrice retrieves the gas price estimation from etherscan
func (p *Service) GetGasPrice(ctx context.Context) (*GasPriceEtherscan, error) {
	var resBody etherscanResponse
	req, err := p.clientEtherscan.New().Get("api").
		QueryStruct(&gasOracleParams{Module: "gastracker", Action: "gasoracle", APIKey: p.apiKey}).
		Request()
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	res, err := p.clientEtherscan.Do(req.WithContext(ctx), &resBody, nil)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	if res.StatusCode != http.StatusOK {
		return nil, tracerr.Wrap(fmt.Errorf("http response is not is %v", res.StatusCode))
	}
	if resBody.Status != statusOK {
		return nil, tracerr.Wrap(fmt.Errorf("gas tracker error: %v", resBody.Message))
	}
	return &resBody.Result, nil
}

// L1GasPrice returns the proposed gas price in wei of client
func L1GasPrice(ctx context.Context, client Client) (*big.Int, error) {
	gasPrice, err := client.GetGasPrice(ctx)
	if err != nil {
		return nil, tracerr.Wrap(err)
	}
	return gasPrice.Propose()
}

// MockEtherscanClient is a gas price oracle with fixed prices, to be used in
// tests
type MockEtherscanClient struct {
	// ProposeGasPrice in gwei, "100" when empty
	ProposeGasPrice string
}

// GetGasPrice returns the fixed prices
func (p *MockEtherscanClient) GetGasPrice(ctx context.Context) (*GasPriceEtherscan, error) {
	propose := p.ProposeGasPrice
	if propose == "" {
		propose = "100"
	}
	return &GasPriceEtherscan{
			LastBlock:       "0",
			SafeGasPrice:    propose,
			ProposeGasPrice: propose,
			FastGasPrice:    propose,
		},
		nil
}
