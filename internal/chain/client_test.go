package chain

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightning-fee-lab/internal/ledger"
)

const (
	testBlockHash = "00000000000000000002a7c4c1e48d76c5a37902165a270156b7a8d72728a054"
	testTxID      = "4a5e1e4baab89f3a32518a88c31bc87f618f76673e2cc77ab2127b7afdeda33b"
	testPrevTxID  = "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     json.RawMessage   `json:"id"`
}

// newBitcoind emulates the bitcoind JSON-RPC methods used by Client.
func newBitcoind(t *testing.T, results map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "rpcuser" || pass != "rpcpass" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		result, ok := results[req.Method]
		w.Header().Set("Content-Type", "application/json")
		if !ok {
			_, _ = w.Write([]byte(`{"result":null,"error":{"code":-32601,"message":"Method not found"},"id":` + string(req.ID) + `}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":` + result + `,"error":null,"id":` + string(req.ID) + `}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	c, err := NewClient(ClientConfig{Address: srv.URL, User: "rpcuser", Password: "rpcpass"})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		address string
		host    string
		tls     bool
		wantErr bool
	}{
		{"http://127.0.0.1:8443", "127.0.0.1:8443", false, false},
		{"https://node.example:8332", "node.example:8332", true, false},
		{"127.0.0.1:8332", "127.0.0.1:8332", false, false},
		{"http://", "", false, true},
	}

	for _, tt := range tests {
		host, tls, err := splitAddress(tt.address)
		if tt.wantErr {
			assert.Error(t, err, tt.address)
			continue
		}
		require.NoError(t, err, tt.address)
		assert.Equal(t, tt.host, host)
		assert.Equal(t, tt.tls, tls)
	}
}

func TestClient_TipAndHash(t *testing.T) {
	srv := newBitcoind(t, map[string]string{
		"getblockcount": `812345`,
		"getblockhash":  `"` + testBlockHash + `"`,
	})
	c := newTestClient(t, srv)
	ctx := context.Background()

	tip, err := c.TipHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(812345), tip)

	hash, err := c.BlockHash(ctx, 812000)
	require.NoError(t, err)
	assert.Equal(t, testBlockHash, hash)
}

func TestClient_BlockHeader(t *testing.T) {
	srv := newBitcoind(t, map[string]string{
		"getblockheader": `{"hash":"` + testBlockHash + `","confirmations":3,"height":812000,"version":1,` +
			`"merkleroot":"","time":1700000000,"nonce":1,"bits":"17053894","difficulty":1,"previousblockhash":""}`,
	})
	c := newTestClient(t, srv)

	header, err := c.BlockHeader(context.Background(), testBlockHash)
	require.NoError(t, err)
	assert.Equal(t, int64(812000), header.Height)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), header.Time)
	assert.Equal(t, time.UTC, header.Time.Location())
}

func TestClient_Block(t *testing.T) {
	block := `{"hash":"` + testBlockHash + `","height":812000,"time":1700000000,"tx":[` +
		`{"txid":"cb","vin":[{"coinbase":"03e0630c","sequence":4294967295}],"vout":[{"value":6.25,"n":0}]},` +
		`{"txid":"` + testTxID + `","vin":[{"txid":"` + testPrevTxID + `","vout":1,"sequence":4294967295}],` +
		`"vout":[{"value":0.0001,"n":0},{"value":0.12345678,"n":1}]}]}`
	srv := newBitcoind(t, map[string]string{"getblock": block})
	c := newTestClient(t, srv)

	b, err := c.Block(context.Background(), testBlockHash)
	require.NoError(t, err)

	assert.Equal(t, int64(812000), b.Height)
	require.Len(t, b.Txs, 2)

	assert.True(t, b.Txs[0].Coinbase)
	assert.Empty(t, b.Txs[0].Inputs)
	assert.Equal(t, int64(625_000_000), b.Txs[0].Outputs[0].ValueSat)

	tx := b.Txs[1]
	assert.False(t, tx.Coinbase)
	assert.Equal(t, []ledger.Outpoint{{TxID: testPrevTxID, Vout: 1}}, tx.Inputs)
	assert.Equal(t, []ledger.Output{{N: 0, ValueSat: 10_000}, {N: 1, ValueSat: 12_345_678}}, tx.Outputs)
}

func TestClient_TxOutputs(t *testing.T) {
	srv := newBitcoind(t, map[string]string{
		"getrawtransaction": `{"txid":"` + testPrevTxID + `","vin":[],"vout":[{"value":0.5,"n":0},{"value":0.00000546,"n":1}]}`,
	})
	c := newTestClient(t, srv)

	outputs, err := c.TxOutputs(context.Background(), testPrevTxID)
	require.NoError(t, err)
	assert.Equal(t, []ledger.Output{{N: 0, ValueSat: 50_000_000}, {N: 1, ValueSat: 546}}, outputs)
}

func TestClient_RPCErrorIsDataSourceFailure(t *testing.T) {
	srv := newBitcoind(t, map[string]string{})
	c := newTestClient(t, srv)

	_, err := c.TxOutputs(context.Background(), testPrevTxID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataSource)
	assert.True(t, strings.Contains(err.Error(), "getrawtransaction"))
}

func TestClient_InvalidHash(t *testing.T) {
	srv := newBitcoind(t, map[string]string{})
	c := newTestClient(t, srv)

	_, err := c.Block(context.Background(), "not-a-hash")
	assert.ErrorIs(t, err, ErrDataSource)
}

func TestClient_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(`{"result":1,"error":null,"id":1}`))
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c := newTestClient(t, srv)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.TipHeight(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
