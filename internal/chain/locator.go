package chain

import (
	"context"
	"time"

	"lightning-fee-lab/internal/domain"
)

// Scan window parameters. The window reaches back further than the expected
// block count so slow days are still found from their first block.
const (
	RewindBlocksPerDay = 200
	RewindMargin       = 144
)

// ScanStart returns the first height to inspect when looking for the blocks
// of day, given the current tip and today's date.
func ScanStart(tip int64, day, today time.Time) int64 {
	daysBehind := int64(domain.TruncateDay(today).Sub(domain.TruncateDay(day)).Hours() / 24)
	start := tip - (daysBehind*RewindBlocksPerDay + RewindMargin)
	if start < 0 {
		return 0
	}
	return start
}

// DayLocator finds the blocks mined on a given UTC day.
type DayLocator struct {
	node Node
}

// NewDayLocator creates a DayLocator over node.
func NewDayLocator(node Node) *DayLocator {
	return &DayLocator{node: node}
}

// Locate returns the hashes of the blocks of day in height order. Heights
// from ScanStart up to, but excluding, the tip are walked; the walk stops at
// the first block dated after day.
func (l *DayLocator) Locate(ctx context.Context, day, today time.Time) ([]string, error) {
	day = domain.TruncateDay(day)

	tip, err := l.node.TipHeight(ctx)
	if err != nil {
		return nil, err
	}
	start := ScanStart(tip, day, today)
	log.Infof("Tip %d, scanning from %d for blocks of %s", tip, start, day.Format(domain.DayLayout))

	var hashes []string
	for height := start; height < tip; height++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hash, err := l.node.BlockHash(ctx, height)
		if err != nil {
			return nil, err
		}
		header, err := l.node.BlockHeader(ctx, hash)
		if err != nil {
			return nil, err
		}

		blockDay := domain.TruncateDay(header.Time)
		if blockDay.Before(day) {
			continue
		}
		if blockDay.After(day) {
			break
		}
		hashes = append(hashes, hash)
	}

	if len(hashes) > 0 {
		log.Infof("Found %d blocks for %s from %s to %s", len(hashes), day.Format(domain.DayLayout),
			hashes[0], hashes[len(hashes)-1])
	}
	return hashes, nil
}
