package fetcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/portfolio-tracker/internal/config"
	"github.com/portfolio-tracker/internal/errors"
	"github.com/portfolio-tracker/internal/models"
)

// balanceOfSelector is the 4-byte selector for ERC-20 balanceOf(address)
var balanceOfSelector = hexutil.MustDecode("0x70a08231")

// CashClient reads a wallet's USDC balance from the Polygon chain with a
// single eth_call per fetch.
type CashClient struct {
	client   *ethclient.Client
	contract common.Address
	decimals int
}

// NewCashClient creates a cash balance client for the configured token
// contract and RPC endpoint.
func NewCashClient(cfg *config.PolygonConfig) (*CashClient, error) {
	if !common.IsHexAddress(cfg.USDCContract) {
		return nil, fmt.Errorf("invalid token contract address: %s", cfg.USDCContract)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial Polygon RPC at %s: %w", cfg.RPCURL, err)
	}

	decimals := cfg.USDCDecimals
	if decimals <= 0 {
		decimals = 6
	}

	return &CashClient{
		client:   client,
		contract: common.HexToAddress(cfg.USDCContract),
		decimals: decimals,
	}, nil
}

// Close releases the underlying RPC connection
func (c *CashClient) Close() {
	c.client.Close()
}

// FetchCashValue returns the wallet's token balance as a human-readable
// amount: the balanceOf call data is the selector plus the address
// left-padded to 32 bytes, and the returned integer is scaled down by the
// token's decimal places.
func (c *CashClient) FetchCashValue(ctx context.Context, wallet string) (float64, error) {
	normalized := models.NormalizeAddress(wallet)
	if !models.IsValidAddress(normalized) {
		return 0, errors.NewInvalidAddressError(wallet)
	}

	addr := common.HexToAddress(normalized)
	data := append(append([]byte{}, balanceOfSelector...), common.LeftPadBytes(addr.Bytes(), 32)...)

	out, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.contract,
		Data: data,
	}, nil)
	if err != nil {
		return 0, classifyRPCError(err)
	}

	if len(out) == 0 {
		return 0, errors.NewFormatError("Invalid Polygon RPC response")
	}

	raw := new(big.Int).SetBytes(out)
	scale := new(big.Float).SetFloat64(math.Pow10(c.decimals))
	balance, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), scale).Float64()

	if math.IsNaN(balance) || math.IsInf(balance, 0) {
		return 0, errors.NewFormatError("USDC balance is not a finite number")
	}

	return balance, nil
}

// classifyRPCError maps transport failures and JSON-RPC error envelopes
// into the refresh error taxonomy.
func classifyRPCError(err error) error {
	var rpcErr rpc.Error
	if stderrors.As(err, &rpcErr) {
		return errors.NewRPCError(rpcErr.Error(), err)
	}

	var httpErr rpc.HTTPError
	if stderrors.As(err, &httpErr) {
		return errors.NewUpstreamError("Polygon RPC request", httpErr.StatusCode)
	}

	return errors.NewTransportError("Polygon RPC request", err)
}
