package chain

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru"

	"lightning-fee-lab/internal/domain"
	"lightning-fee-lab/internal/ledger"
)

// DefaultTxCacheSize bounds the number of transactions whose outputs are
// kept for input value lookups.
const DefaultTxCacheSize = 50_000

// PaymentSource loads blocks from a Node and extracts their payments.
// Outputs of previously seen transactions are cached, so inputs spending
// recent outputs do not need a node round trip. It is safe for concurrent use.
type PaymentSource struct {
	node    Node
	outputs *lru.Cache // txid -> []ledger.Output
}

// NewPaymentSource creates a PaymentSource caching up to cacheSize
// transactions.
func NewPaymentSource(node Node, cacheSize int) (*PaymentSource, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create tx cache: %w", err)
	}
	return &PaymentSource{node: node, outputs: cache}, nil
}

// BlockPayments returns the payments of the block with hash.
func (s *PaymentSource) BlockPayments(ctx context.Context, hash string) ([]domain.Payment, error) {
	block, err := s.node.Block(ctx, hash)
	if err != nil {
		return nil, err
	}

	// Transactions in a block often spend outputs created earlier in the
	// same block.
	for _, tx := range block.Txs {
		s.outputs.Add(tx.TxID, tx.Outputs)
	}

	payments, err := ledger.Payments(ctx, block.Height, block.Txs, s)
	if err != nil {
		return nil, fmt.Errorf("block %d: %w", block.Height, err)
	}
	log.Debugf("Block %d: %d transactions, %d payments", block.Height, len(block.Txs), len(payments))
	return payments, nil
}

// OutputValue resolves the value of a previous output.
func (s *PaymentSource) OutputValue(ctx context.Context, op ledger.Outpoint) (int64, error) {
	outputs, err := s.txOutputs(ctx, op.TxID)
	if err != nil {
		return 0, err
	}
	for _, out := range outputs {
		if out.N == op.Vout {
			return out.ValueSat, nil
		}
	}
	return 0, fmt.Errorf("%w: tx %s has no output %d", ErrDataSource, op.TxID, op.Vout)
}

func (s *PaymentSource) txOutputs(ctx context.Context, txid string) ([]ledger.Output, error) {
	if v, ok := s.outputs.Get(txid); ok {
		return v.([]ledger.Output), nil
	}
	outputs, err := s.node.TxOutputs(ctx, txid)
	if err != nil {
		return nil, err
	}
	s.outputs.Add(txid, outputs)
	return outputs, nil
}
