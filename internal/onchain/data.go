package onchain

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nftsync/internal/model"
)

// Data accumulates everything the decoders derive from one batch. It is owned
// by a single dispatch call and needs no locking. Duplicates are kept; the
// persistence layer ignores rows whose natural key already exists.
type Data struct {
	FillEvents        []model.FillEvent
	FillEventsPartial []model.FillEvent
	FillEventsOnChain []model.FillEvent
	CancelEvents      []model.CancelEvent
	BulkCancelEvents  []model.BulkCancelEvent
	NonceCancelEvents []model.NonceCancelEvent
	NftApprovalEvents []model.NftApprovalEvent
	FtApprovalEvents  []model.FtApprovalEvent
	NftTransferEvents []model.NftTransferEvent
	FtTransferEvents  []model.FtTransferEvent
	Mints             []model.MintEvent
	Orders            []model.OrderRef

	OrderInfos []model.OrderInfo
	MakerInfos []model.MakerInfo
	MintInfos  []model.MintInfo
}

// New returns an empty accumulator.
func New() *Data {
	return &Data{}
}

// PushFill records a fill whose attribution needs no reconciliation.
func (d *Data) PushFill(fill model.FillEvent) { d.FillEvents = append(d.FillEvents, fill) }

// PushPartialFill records a fill pending payment reconciliation.
func (d *Data) PushPartialFill(fill model.FillEvent) {
	d.FillEventsPartial = append(d.FillEventsPartial, fill)
}

// PushOnChainFill records a fill of an order that only exists on chain.
func (d *Data) PushOnChainFill(fill model.FillEvent) {
	d.FillEventsOnChain = append(d.FillEventsOnChain, fill)
}

func (d *Data) PushCancel(ev model.CancelEvent) { d.CancelEvents = append(d.CancelEvents, ev) }

func (d *Data) PushBulkCancel(ev model.BulkCancelEvent) {
	d.BulkCancelEvents = append(d.BulkCancelEvents, ev)
}

func (d *Data) PushNonceCancel(ev model.NonceCancelEvent) {
	d.NonceCancelEvents = append(d.NonceCancelEvents, ev)
}

func (d *Data) PushNftApproval(ev model.NftApprovalEvent) {
	d.NftApprovalEvents = append(d.NftApprovalEvents, ev)
}

func (d *Data) PushFtApproval(ev model.FtApprovalEvent) {
	d.FtApprovalEvents = append(d.FtApprovalEvents, ev)
}

func (d *Data) PushNftTransfer(ev model.NftTransferEvent) {
	d.NftTransferEvents = append(d.NftTransferEvents, ev)
}

func (d *Data) PushFtTransfer(ev model.FtTransferEvent) {
	d.FtTransferEvents = append(d.FtTransferEvents, ev)
}

func (d *Data) PushMint(ev model.MintEvent) { d.Mints = append(d.Mints, ev) }

func (d *Data) PushOrder(ref model.OrderRef) { d.Orders = append(d.Orders, ref) }

func (d *Data) PushOrderInfo(info model.OrderInfo) { d.OrderInfos = append(d.OrderInfos, info) }

func (d *Data) PushMakerInfo(info model.MakerInfo) { d.MakerInfos = append(d.MakerInfos, info) }

func (d *Data) PushMintInfo(info model.MintInfo) { d.MintInfos = append(d.MintInfos, info) }

// AllFills returns every fill collection in persistence order.
func (d *Data) AllFills() []model.FillEvent {
	out := make([]model.FillEvent, 0, len(d.FillEvents)+len(d.FillEventsPartial)+len(d.FillEventsOnChain))
	out = append(out, d.FillEvents...)
	out = append(out, d.FillEventsPartial...)
	out = append(out, d.FillEventsOnChain...)
	return out
}

// Counts summarizes the accumulator for logs and metrics.
type Counts struct {
	Fills        int
	Cancels      int
	BulkCancels  int
	NonceCancels int
	NftApprovals int
	FtApprovals  int
	NftTransfers int
	FtTransfers  int
	Mints        int
	Orders       int
}

// Total returns the number of persistable rows.
func (c Counts) Total() int {
	return c.Fills + c.Cancels + c.BulkCancels + c.NonceCancels + c.NftApprovals +
		c.FtApprovals + c.NftTransfers + c.FtTransfers + c.Mints
}

// MarshalLogObject lets Counts be logged with zap.Object.
func (c Counts) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("fills", c.Fills)
	enc.AddInt("cancels", c.Cancels)
	enc.AddInt("bulk_cancels", c.BulkCancels)
	enc.AddInt("nonce_cancels", c.NonceCancels)
	enc.AddInt("nft_approvals", c.NftApprovals)
	enc.AddInt("ft_approvals", c.FtApprovals)
	enc.AddInt("nft_transfers", c.NftTransfers)
	enc.AddInt("ft_transfers", c.FtTransfers)
	enc.AddInt("mints", c.Mints)
	enc.AddInt("orders", c.Orders)
	return nil
}

// Counts returns the per-collection sizes.
func (d *Data) Counts() Counts {
	return Counts{
		Fills:        len(d.FillEvents) + len(d.FillEventsPartial) + len(d.FillEventsOnChain),
		Cancels:      len(d.CancelEvents),
		BulkCancels:  len(d.BulkCancelEvents),
		NonceCancels: len(d.NonceCancelEvents),
		NftApprovals: len(d.NftApprovalEvents),
		FtApprovals:  len(d.FtApprovalEvents),
		NftTransfers: len(d.NftTransferEvents),
		FtTransfers:  len(d.FtTransferEvents),
		Mints:        len(d.Mints),
		Orders:       len(d.Orders),
	}
}

// Empty reports whether nothing was decoded.
func (d *Data) Empty() bool {
	c := d.Counts()
	return c.Total() == 0 && c.Orders == 0 &&
		len(d.OrderInfos) == 0 && len(d.MakerInfos) == 0 && len(d.MintInfos) == 0
}

// LogFields returns zap fields describing the accumulator.
func (d *Data) LogFields() []zap.Field {
	return []zap.Field{zap.Object("rows", d.Counts())}
}
