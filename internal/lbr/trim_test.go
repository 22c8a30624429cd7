package lbr_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mna/retsnoop/internal/engine"
	"github.com/mna/retsnoop/internal/lbr"
)

// S7 — LBR trim.
func TestTrimFindsNewestOverlap(t *testing.T) {
	branches := []engine.LBREntry{
		{From: 0x2000, To: 0x2010},
		{From: 0x1080, To: 0x1090},
		{From: 0x1040, To: 0x1050},
	}
	from, found := lbr.Trim(branches, 0x1000, 0x100)
	assert.True(t, found)
	assert.Equal(t, 1, from, "output omits the first branch")
}

func TestTrimNoOverlapRendersAllAndReportsNotFound(t *testing.T) {
	branches := []engine.LBREntry{
		{From: 0x2000, To: 0x2010},
		{From: 0x3000, To: 0x3010},
	}
	_, found := lbr.Trim(branches, 0x1000, 0x100)
	assert.False(t, found)
}
