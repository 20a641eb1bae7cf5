package chain

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"nftsync/internal/model"
)

// ErrTraceUnsupported is returned when the node cannot trace transactions.
var ErrTraceUnsupported = errors.New("chain: transaction tracing not supported")

type callLog struct {
	Address  common.Address `json:"address"`
	Position hexutil.Uint   `json:"position"`
}

type callFrame struct {
	Type  string         `json:"type"`
	From  common.Address `json:"from"`
	To    common.Address `json:"to"`
	Value *hexutil.Big   `json:"value"`
	Error string         `json:"error"`
	Calls []callFrame    `json:"calls"`
	Logs  []callLog      `json:"logs"`
}

// nativePayments walks the call tree in execution order. A transfer made
// after c logs of the transaction sits right after log firstLogIndex+c-1; a
// transfer before any log sits before firstLogIndex.
func nativePayments(root callFrame, firstLogIndex uint64) []model.Payment {
	var out []model.Payment
	var seen uint64
	var walk func(f callFrame, top bool)
	walk = func(f callFrame, top bool) {
		if f.Error != "" {
			return
		}
		if f.Value != nil && f.Value.ToInt().Sign() > 0 && (top || f.Type == "CALL") {
			p := model.Payment{
				Token:    model.ZeroAddress,
				From:     strings.ToLower(f.From.Hex()),
				To:       strings.ToLower(f.To.Hex()),
				Amount:   new(big.Int).Set(f.Value.ToInt()),
				LogIndex: firstLogIndex,
			}
			if seen > 0 {
				p.LogIndex = firstLogIndex + seen - 1
				p.AfterLog = true
			}
			out = append(out, p)
		}
		logAt := 0
		for i := 0; i <= len(f.Calls); i++ {
			for logAt < len(f.Logs) && int(f.Logs[logAt].Position) <= i {
				seen++
				logAt++
			}
			if i < len(f.Calls) {
				walk(f.Calls[i], false)
			}
		}
	}
	walk(root, true)
	return out
}
