// Package chain reads blocks and transactions from a Bitcoin node and turns
// them into payments for evaluation.
package chain

import (
	"context"
	"errors"
	"time"

	"lightning-fee-lab/internal/ledger"
)

// ErrDataSource marks failures talking to the Bitcoin node or decoding its
// responses. Such failures abort the run.
var ErrDataSource = errors.New("bitcoin node data source failure")

// BlockHeader is the part of a block header used to locate days.
type BlockHeader struct {
	Hash   string
	Height int64
	Time   time.Time // block timestamp, UTC
}

// Block is a block with its transactions.
type Block struct {
	BlockHeader
	Txs []ledger.Tx
}

// Node is the read-only view of a Bitcoin node.
type Node interface {
	// TipHeight returns the height of the best block.
	TipHeight(ctx context.Context) (int64, error)
	// BlockHash returns the hash of the block at height.
	BlockHash(ctx context.Context, height int64) (string, error)
	// BlockHeader returns the header of the block with hash.
	BlockHeader(ctx context.Context, hash string) (BlockHeader, error)
	// Block returns the block with hash and its transactions.
	Block(ctx context.Context, hash string) (*Block, error)
	// TxOutputs returns the outputs of transaction txid.
	TxOutputs(ctx context.Context, txid string) ([]ledger.Output, error)
}
