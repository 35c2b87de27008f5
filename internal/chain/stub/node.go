// Package stub provides an in-memory chain.Node for tests and dry runs.
package stub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"lightning-fee-lab/internal/chain"
	"lightning-fee-lab/internal/ledger"
)

// Node is an in-memory chain of blocks. The tip is the last added block.
type Node struct {
	mu      sync.RWMutex
	blocks  []*chain.Block
	byHash  map[string]*chain.Block
	outputs map[string][]ledger.Output
	fail    map[string]error
	calls   map[string]int
}

// Compile-time interface check.
var _ chain.Node = (*Node)(nil)

// New creates an empty stub chain.
func New() *Node {
	return &Node{
		byHash:  make(map[string]*chain.Block),
		outputs: make(map[string][]ledger.Output),
		fail:    make(map[string]error),
		calls:   make(map[string]int),
	}
}

// HashAt returns the stub hash of the block at height.
func HashAt(height int64) string {
	return fmt.Sprintf("%064x", height)
}

// AddBlock appends a block mined at t and returns its hash.
// The outputs of txs become resolvable through TxOutputs.
func (n *Node) AddBlock(t time.Time, txs ...ledger.Tx) string {
	n.mu.Lock()
	defer n.mu.Unlock()

	height := int64(len(n.blocks))
	block := &chain.Block{
		BlockHeader: chain.BlockHeader{Hash: HashAt(height), Height: height, Time: t.UTC()},
		Txs:         txs,
	}
	n.blocks = append(n.blocks, block)
	n.byHash[block.Hash] = block
	for _, tx := range txs {
		n.outputs[tx.TxID] = tx.Outputs
	}
	return block.Hash
}

// AddTx registers a transaction outside the stub blocks.
func (n *Node) AddTx(txid string, outputs ...ledger.Output) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outputs[txid] = outputs
}

// FailOn makes every call of method return err.
// Methods are named after the Node interface.
func (n *Node) FailOn(method string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.fail[method] = err
}

// Calls returns how often method was called.
func (n *Node) Calls(method string) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.calls[method]
}

func (n *Node) enter(ctx context.Context, method string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls[method]++
	if err := n.fail[method]; err != nil {
		return fmt.Errorf("%w: %s: %v", chain.ErrDataSource, method, err)
	}
	return nil
}

// TipHeight returns the height of the last block, or -1 for an empty chain.
func (n *Node) TipHeight(ctx context.Context) (int64, error) {
	if err := n.enter(ctx, "TipHeight"); err != nil {
		return 0, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	return int64(len(n.blocks)) - 1, nil
}

// BlockHash returns the hash at height.
func (n *Node) BlockHash(ctx context.Context, height int64) (string, error) {
	if err := n.enter(ctx, "BlockHash"); err != nil {
		return "", err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	if height < 0 || height >= int64(len(n.blocks)) {
		return "", fmt.Errorf("%w: no block at height %d", chain.ErrDataSource, height)
	}
	return n.blocks[height].Hash, nil
}

// BlockHeader returns the header of hash.
func (n *Node) BlockHeader(ctx context.Context, hash string) (chain.BlockHeader, error) {
	if err := n.enter(ctx, "BlockHeader"); err != nil {
		return chain.BlockHeader{}, err
	}
	block, err := n.lookup(hash)
	if err != nil {
		return chain.BlockHeader{}, err
	}
	return block.BlockHeader, nil
}

// Block returns the block with hash.
func (n *Node) Block(ctx context.Context, hash string) (*chain.Block, error) {
	if err := n.enter(ctx, "Block"); err != nil {
		return nil, err
	}
	block, err := n.lookup(hash)
	if err != nil {
		return nil, err
	}
	cp := *block
	cp.Txs = append([]ledger.Tx(nil), block.Txs...)
	return &cp, nil
}

// TxOutputs returns the outputs of txid.
func (n *Node) TxOutputs(ctx context.Context, txid string) ([]ledger.Output, error) {
	if err := n.enter(ctx, "TxOutputs"); err != nil {
		return nil, err
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	outputs, ok := n.outputs[txid]
	if !ok {
		return nil, fmt.Errorf("%w: unknown tx %s", chain.ErrDataSource, txid)
	}
	return append([]ledger.Output(nil), outputs...), nil
}

func (n *Node) lookup(hash string) (*chain.Block, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	block, ok := n.byHash[hash]
	if !ok {
		return nil, fmt.Errorf("%w: unknown block %s", chain.ErrDataSource, hash)
	}
	return block, nil
}
