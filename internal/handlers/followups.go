package handlers

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"nftsync/internal/model"
)

const (
	makerBuyBalance   = "buy-balance"
	makerBuyApproval  = "buy-approval"
	makerSellBalance  = "sell-balance"
	makerSellApproval = "sell-approval"
)

func trigger(kind string, p model.BaseEventParams) model.Trigger {
	return model.Trigger{
		Kind:        kind,
		TxHash:      p.TxHash,
		TxTimestamp: p.Timestamp,
		LogIndex:    p.LogIndex,
		BatchIndex:  p.BatchIndex,
		BlockHash:   p.BlockHash,
	}
}

func makerInfo(p model.BaseEventParams, maker string, data model.MakerData) model.MakerInfo {
	return model.MakerInfo{
		Context: fmt.Sprintf("%s-%s-%d-%d-%s", data.Kind, p.TxHash, p.LogIndex, p.BatchIndex, maker),
		Maker:   maker,
		Trigger: trigger("onchain", p),
		Data:    data,
	}
}

func orderInfo(context, orderID string, p model.BaseEventParams) model.OrderInfo {
	return model.OrderInfo{
		Context: context,
		ID:      orderID,
		Trigger: trigger("sale", p),
	}
}

// TxValueCache memoizes transaction values. It is safe for concurrent use
// and is handed to decoders explicitly through DecodeContext.Chain.
type TxValueCache struct {
	source ChainState

	mu   sync.RWMutex
	data map[string]*big.Int
}

func NewTxValueCache(source ChainState) *TxValueCache {
	return &TxValueCache{source: source, data: make(map[string]*big.Int)}
}

func (c *TxValueCache) Get(txHash string) (*big.Int, bool) {
	c.mu.RLock()
	value, ok := c.data[txHash]
	c.mu.RUnlock()
	return value, ok
}

func (c *TxValueCache) Set(txHash string, value *big.Int) {
	c.mu.Lock()
	c.data[txHash] = value
	c.mu.Unlock()
}

// Invalidate drops cached values, e.g. after a reorg replaced the transactions.
func (c *TxValueCache) Invalidate(txHashes ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(txHashes) == 0 {
		c.data = make(map[string]*big.Int)
		return
	}
	for _, h := range txHashes {
		delete(c.data, h)
	}
}

// TransactionValue implements ChainState.
func (c *TxValueCache) TransactionValue(ctx context.Context, txHash string) (*big.Int, error) {
	if value, ok := c.Get(txHash); ok {
		return value, nil
	}
	if c.source == nil {
		return nil, fmt.Errorf("chain state is nil")
	}
	value, err := c.source.TransactionValue(ctx, txHash)
	if err != nil {
		return nil, err
	}
	c.Set(txHash, value)
	return value, nil
}
