package chain

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcjson"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/rpcclient"

	"lightning-fee-lab/internal/ledger"
	"lightning-fee-lab/internal/observability"
)

// ClientConfig holds the bitcoind RPC connection settings.
type ClientConfig struct {
	Address  string // http(s)://host:port
	User     string
	Password string
}

// Client is a Node backed by bitcoind JSON-RPC over HTTP POST.
type Client struct {
	rpc *rpcclient.Client
}

// Compile-time interface check.
var _ Node = (*Client)(nil)

// NewClient creates a bitcoind client. No connection is made until the
// first call.
func NewClient(cfg ClientConfig) (*Client, error) {
	host, tls, err := splitAddress(cfg.Address)
	if err != nil {
		return nil, err
	}

	rpc, err := rpcclient.New(&rpcclient.ConnConfig{
		Host:         host,
		User:         cfg.User,
		Pass:         cfg.Password,
		HTTPPostMode: true,
		DisableTLS:   !tls,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("create bitcoin rpc client: %w", err)
	}
	return &Client{rpc: rpc}, nil
}

// splitAddress accepts http://host:port, https://host:port or a bare
// host:port (plain HTTP).
func splitAddress(address string) (host string, tls bool, err error) {
	if !strings.Contains(address, "://") {
		return address, false, nil
	}
	u, err := url.Parse(address)
	if err != nil {
		return "", false, fmt.Errorf("parse bitcoin rpc address: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("parse bitcoin rpc address %q: missing host", address)
	}
	return u.Host, u.Scheme == "https", nil
}

// Close shuts the client down.
func (c *Client) Close() {
	c.rpc.Shutdown()
}

// TipHeight returns the block count of the node.
func (c *Client) TipHeight(ctx context.Context) (int64, error) {
	return call(ctx, "getblockcount", c.rpc.GetBlockCountAsync().Receive)
}

// BlockHash returns the hash of the block at height.
func (c *Client) BlockHash(ctx context.Context, height int64) (string, error) {
	hash, err := call(ctx, "getblockhash", c.rpc.GetBlockHashAsync(height).Receive)
	if err != nil {
		return "", fmt.Errorf("height %d: %w", height, err)
	}
	return hash.String(), nil
}

// BlockHeader returns the verbose header of the block with hash.
func (c *Client) BlockHeader(ctx context.Context, hash string) (BlockHeader, error) {
	h, err := parseHash(hash)
	if err != nil {
		return BlockHeader{}, err
	}
	res, err := call(ctx, "getblockheader", c.rpc.GetBlockHeaderVerboseAsync(h).Receive)
	if err != nil {
		return BlockHeader{}, fmt.Errorf("block %s: %w", hash, err)
	}
	return BlockHeader{
		Hash:   res.Hash,
		Height: int64(res.Height),
		Time:   time.Unix(res.Time, 0).UTC(),
	}, nil
}

// Block returns the block with hash including decoded transactions.
func (c *Client) Block(ctx context.Context, hash string) (*Block, error) {
	h, err := parseHash(hash)
	if err != nil {
		return nil, err
	}
	res, err := call(ctx, "getblock", c.rpc.GetBlockVerboseTxAsync(h).Receive)
	if err != nil {
		return nil, fmt.Errorf("block %s: %w", hash, err)
	}

	block := &Block{
		BlockHeader: BlockHeader{
			Hash:   res.Hash,
			Height: res.Height,
			Time:   time.Unix(res.Time, 0).UTC(),
		},
		Txs: make([]ledger.Tx, 0, len(res.Tx)),
	}
	for i := range res.Tx {
		tx, err := convertTx(&res.Tx[i])
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", hash, err)
		}
		block.Txs = append(block.Txs, tx)
	}
	return block, nil
}

// TxOutputs returns the outputs of transaction txid.
func (c *Client) TxOutputs(ctx context.Context, txid string) ([]ledger.Output, error) {
	h, err := parseHash(txid)
	if err != nil {
		return nil, err
	}
	res, err := call(ctx, "getrawtransaction", c.rpc.GetRawTransactionVerboseAsync(h).Receive)
	if err != nil {
		return nil, fmt.Errorf("tx %s: %w", txid, err)
	}
	return convertOutputs(res.Txid, res.Vout)
}

func convertTx(raw *btcjson.TxRawResult) (ledger.Tx, error) {
	tx := ledger.Tx{
		TxID:     raw.Txid,
		Coinbase: len(raw.Vin) > 0 && raw.Vin[0].IsCoinBase(),
	}
	if !tx.Coinbase {
		tx.Inputs = make([]ledger.Outpoint, len(raw.Vin))
		for i, in := range raw.Vin {
			tx.Inputs[i] = ledger.Outpoint{TxID: in.Txid, Vout: in.Vout}
		}
	}

	outputs, err := convertOutputs(raw.Txid, raw.Vout)
	if err != nil {
		return ledger.Tx{}, err
	}
	tx.Outputs = outputs
	return tx, nil
}

func convertOutputs(txid string, vouts []btcjson.Vout) ([]ledger.Output, error) {
	outputs := make([]ledger.Output, len(vouts))
	for i, out := range vouts {
		amount, err := btcutil.NewAmount(out.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: tx %s output %d value %v: %v", ErrDataSource, txid, out.N, out.Value, err)
		}
		outputs[i] = ledger.Output{N: out.N, ValueSat: int64(amount)}
	}
	return outputs, nil
}

func parseHash(s string) (*chainhash.Hash, error) {
	h, err := chainhash.NewHashFromStr(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid hash %q: %v", ErrDataSource, s, err)
	}
	return h, nil
}

// call waits for an rpcclient future while honoring ctx. The request itself
// cannot be cancelled once sent; on ctx expiry its result is discarded.
func call[T any](ctx context.Context, method string, receive func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}

	start := time.Now()
	done := make(chan result, 1)
	go func() {
		v, err := receive()
		done <- result{v, err}
	}()

	var zero T
	select {
	case <-ctx.Done():
		observability.RecordRPC("bitcoind", method, time.Since(start).Seconds(), ctx.Err())
		return zero, ctx.Err()
	case r := <-done:
		observability.RecordRPC("bitcoind", method, time.Since(start).Seconds(), r.err)
		if r.err != nil {
			return zero, fmt.Errorf("%w: %s: %v", ErrDataSource, method, r.err)
		}
		return r.v, nil
	}
}
