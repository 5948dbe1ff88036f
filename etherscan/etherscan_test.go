package etherscan

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const apiKey = "FFFFFFFFFFFFFFFFFFF"

func newTestServer(t *testing.T, status string, body string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api", r.URL.Path)
		assert.Equal(t, "gastracker", r.URL.Query().Get("module"))
		assert.Equal(t, "gasoracle", r.URL.Query().Get("action"))
		assert.Equal(t, apiKey, r.URL.Query().Get("apikey"))
		w.Header().Set("Content-Type", "application/json")
		_, err := fmt.Fprintf(w, `{"status":%q,"message":"OK","result":%s}`, status, body)
		assert.NoError(t, err)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestGetGasPrice(t *testing.T) {
	server := newTestServer(t, "1", `{"LastBlock":"19000000","SafeGasPrice":"9",
		"ProposeGasPrice":"10.5","FastGasPrice":"12"}`)
	service, err := NewEtherscanService(server.URL+"/", apiKey)
	require.NoError(t, err)

	gasPrice, err := service.GetGasPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "19000000", gasPrice.LastBlock)
	assert.Equal(t, "9", gasPrice.SafeGasPrice)
	assert.Equal(t, "12", gasPrice.FastGasPrice)

	wei, err := L1GasPrice(context.Background(), service)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(10_500_000_000), wei)
}

func TestGetGasPriceError(t *testing.T) {
	server := newTestServer(t, "0", `"Invalid API Key"`)
	service, err := NewEtherscanService(server.URL+"/", apiKey)
	require.NoError(t, err)
	_, err = service.GetGasPrice(context.Background())
	assert.Error(t, err)

	_, err = NewEtherscanService("", apiKey)
	assert.Error(t, err)
}

func TestGweiToWei(t *testing.T) {
	wei, err := GweiToWei("100")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100_000_000_000), wei)

	// Fractions of wei are truncated
	wei, err = GweiToWei("0.0000000205")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(20), wei)

	for _, invalid := range []string{"", "abc", "0", "-1", "0.0000000001"} {
		_, err = GweiToWei(invalid)
		assert.Error(t, err, invalid)
	}
}

func TestMockEtherscanClient(t *testing.T) {
	wei, err := L1GasPrice(context.Background(), &MockEtherscanClient{})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(100_000_000_000), wei)

	wei, err = L1GasPrice(context.Background(), &MockEtherscanClient{ProposeGasPrice: "0.00000002"})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(20), wei)
}
