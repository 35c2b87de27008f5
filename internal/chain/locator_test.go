package chain_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lightning-fee-lab/internal/chain"
	"lightning-fee-lab/internal/chain/stub"
)

func TestScanStart(t *testing.T) {
	today := time.Date(2024, 3, 12, 15, 30, 0, 0, time.UTC)

	// One day behind: 200 + 144 blocks.
	assert.Equal(t, int64(10_000-344), chain.ScanStart(10_000, today.AddDate(0, 0, -1), today))
	// Two days behind.
	assert.Equal(t, int64(10_000-544), chain.ScanStart(10_000, today.AddDate(0, 0, -2), today))
	// Clamped at genesis.
	assert.Equal(t, int64(0), chain.ScanStart(100, today.AddDate(0, 0, -1), today))
}

func TestDayLocator_Locate(t *testing.T) {
	node := stub.New()
	var want []string
	for d := 0; d < 3; d++ {
		for b := 0; b < 4; b++ {
			hash := node.AddBlock(day0.AddDate(0, 0, d).Add(time.Duration(b) * 5 * time.Hour))
			if d == 1 {
				want = append(want, hash)
			}
		}
	}

	l := chain.NewDayLocator(node)
	got, err := l.Locate(context.Background(), day0.AddDate(0, 0, 1), day0.AddDate(0, 0, 3))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// The walk stops at the first block of the following day.
	assert.Equal(t, 9, node.Calls("BlockHeader"))
}

func TestDayLocator_TipExcluded(t *testing.T) {
	node := stub.New()
	first := node.AddBlock(day0.Add(time.Hour))
	node.AddBlock(day0.Add(2 * time.Hour)) // tip

	got, err := chain.NewDayLocator(node).Locate(context.Background(), day0, day0.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Equal(t, []string{first}, got)
}

func TestDayLocator_NoBlocks(t *testing.T) {
	node := stub.New()
	node.AddBlock(day0)
	node.AddBlock(day0.Add(time.Hour))

	got, err := chain.NewDayLocator(node).Locate(context.Background(), day0.AddDate(0, 0, 5), day0.AddDate(0, 0, 6))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDayLocator_DataSourceFailure(t *testing.T) {
	node := stub.New()
	node.AddBlock(day0)
	node.FailOn("TipHeight", assert.AnError)

	_, err := chain.NewDayLocator(node).Locate(context.Background(), day0, day0.AddDate(0, 0, 1))
	assert.ErrorIs(t, err, chain.ErrDataSource)
}
