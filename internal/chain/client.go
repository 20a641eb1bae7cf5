package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"nftsync/internal/model"
)

// Client wraps go-ethereum RPC and provides helper methods.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client

	mu      sync.RWMutex
	tsCache map[uint64]uint64
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		tsCache:   make(map[uint64]uint64),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID reported by the node.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return 0, err
	}
	return id.Uint64(), nil
}

// LatestBlockNumber returns the latest block number.
func (c *Client) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.ethClient.BlockNumber(ctx)
}

// Block returns the header fields used for reorg tracking.
func (c *Client) Block(ctx context.Context, number uint64) (model.Block, error) {
	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return model.Block{}, fmt.Errorf("header %d: %w", number, err)
	}
	c.mu.Lock()
	c.tsCache[number] = header.Time
	c.mu.Unlock()
	return model.Block{
		Hash:       strings.ToLower(header.Hash().Hex()),
		ParentHash: strings.ToLower(header.ParentHash.Hex()),
		Number:     number,
		Timestamp:  header.Time,
	}, nil
}

// BlockTimestamp returns the block timestamp, using an in-memory cache.
func (c *Client) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	c.mu.RLock()
	ts, ok := c.tsCache[number]
	c.mu.RUnlock()
	if ok {
		return ts, nil
	}

	header, err := c.ethClient.HeaderByNumber(ctx, new(big.Int).SetUint64(number))
	if err != nil {
		return 0, err
	}

	ts = header.Time
	c.mu.Lock()
	c.tsCache[number] = ts
	c.mu.Unlock()

	return ts, nil
}

// ForgetTimestamps drops cached timestamps from number on, after a reorg.
func (c *Client) ForgetTimestamps(from uint64) {
	c.mu.Lock()
	for number := range c.tsCache {
		if number >= from {
			delete(c.tsCache, number)
		}
	}
	c.mu.Unlock()
}

// FilterLogs returns logs in the given range for addresses and topic0 filters.
func (c *Client) FilterLogs(
	ctx context.Context,
	fromBlock uint64,
	toBlock uint64,
	addresses []common.Address,
	topic0 []common.Hash,
) ([]types.Log, error) {
	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Addresses: addresses,
	}
	if len(topic0) > 0 {
		query.Topics = [][]common.Hash{topic0}
	}
	return c.ethClient.FilterLogs(ctx, query)
}

// TransactionLogs returns the logs of a mined transaction from its receipt.
func (c *Client) TransactionLogs(ctx context.Context, txHash common.Hash) ([]types.Log, error) {
	receipt, err := c.ethClient.TransactionReceipt(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", txHash.Hex(), err)
	}
	logs := make([]types.Log, 0, len(receipt.Logs))
	for _, log := range receipt.Logs {
		if log != nil {
			logs = append(logs, *log)
		}
	}
	return logs, nil
}

// TransactionValue returns the native value sent with a transaction.
func (c *Client) TransactionValue(ctx context.Context, txHash string) (*big.Int, error) {
	tx, _, err := c.ethClient.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txHash, err)
	}
	return new(big.Int).Set(tx.Value()), nil
}

// NativePayments lists the native value transfers of a transaction using the
// call tracer. Nodes without the debug namespace yield ErrTraceUnsupported.
func (c *Client) NativePayments(ctx context.Context, txHash string) ([]model.Payment, error) {
	hash := common.HexToHash(txHash)
	receipt, err := c.ethClient.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("receipt %s: %w", txHash, err)
	}
	var firstLogIndex uint64
	if len(receipt.Logs) > 0 {
		firstLogIndex = uint64(receipt.Logs[0].Index)
	}

	var root callFrame
	err = c.rpcClient.CallContext(ctx, &root, "debug_traceTransaction", hash, map[string]interface{}{
		"tracer":       "callTracer",
		"tracerConfig": map[string]interface{}{"withLog": true},
	})
	if err != nil {
		if isMethodUnsupported(err) {
			return nil, ErrTraceUnsupported
		}
		return nil, fmt.Errorf("trace %s: %w", txHash, err)
	}
	return nativePayments(root, firstLogIndex), nil
}

func isMethodUnsupported(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == -32601 {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not supported") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "not available")
}
