package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"rangeKeeper/internal/chain"
)

const assetPriceABIJSON = `[
  {"inputs": [{"internalType": "address", "name": "asset", "type": "address"}], "name": "getAssetPrice", "outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}], "stateMutability": "view", "type": "function"}
]`

var (
	assetPriceABI    abi.ABI
	assetPriceOnce   sync.Once
	assetPriceABIErr error
)

func getAssetPriceABI() (abi.ABI, error) {
	assetPriceOnce.Do(func() {
		assetPriceABI, assetPriceABIErr = abi.JSON(strings.NewReader(assetPriceABIJSON))
	})
	return assetPriceABI, assetPriceABIErr
}

// ChainSource reads getAssetPrice from an on-chain aggregator contract.
type ChainSource struct {
	client  *chain.Client
	address common.Address
}

func NewChainSource(client *chain.Client, address common.Address) *ChainSource {
	return &ChainSource{client: client, address: address}
}

func (s *ChainSource) AssetPrice(ctx context.Context, token common.Address) (*big.Int, error) {
	if s.client == nil {
		return nil, fmt.Errorf("oracle: chain client is nil")
	}
	priceABI, err := getAssetPriceABI()
	if err != nil {
		return nil, err
	}
	data, err := priceABI.Pack("getAssetPrice", token)
	if err != nil {
		return nil, fmt.Errorf("pack getAssetPrice: %w", err)
	}

	msg := ethereum.CallMsg{To: &s.address, Data: data}
	resp, err := s.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call getAssetPrice: %w", err)
	}

	values, err := priceABI.Unpack("getAssetPrice", resp)
	if err != nil {
		return nil, fmt.Errorf("unpack getAssetPrice: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("getAssetPrice return size %d", len(values))
	}
	price, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getAssetPrice unexpected type %T", values[0])
	}
	return price, nil
}
