// Package chain dials the JSON-RPC node that live pools are seeded from.
package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is an ethclient whose eth_call satisfies dex.Caller.
type Client struct {
	*ethclient.Client
}

func Dial(ctx context.Context, rpcURL string) (*Client, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &Client{Client: c}, nil
}

// Head names the chain and the block all reads of one seed run are pinned to.
type Head struct {
	ChainID *big.Int
	Block   uint64
}

// Pin resolves the block to read at. Zero means the current head.
func (c *Client) Pin(ctx context.Context, block uint64) (Head, error) {
	chainID, err := c.ChainID(ctx)
	if err != nil {
		return Head{}, fmt.Errorf("chain id: %w", err)
	}
	if block == 0 {
		if block, err = c.BlockNumber(ctx); err != nil {
			return Head{}, fmt.Errorf("latest block: %w", err)
		}
	}
	return Head{ChainID: chainID, Block: block}, nil
}
