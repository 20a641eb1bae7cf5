package handlers

import (
	"fmt"

	"go.uber.org/zap"

	"nftsync/internal/events"
	"nftsync/internal/metrics"
	"nftsync/internal/model"
	"nftsync/internal/onchain"
)

// Registry routes events to decoders by subKind.
type Registry struct {
	decoders  []Decoder
	bySubKind map[model.EventSubKind]Decoder
	byKind    map[model.EventKind]Decoder
	logger    *zap.Logger
}

// NewRegistry registers decoders. Each subKind may belong to one decoder only.
func NewRegistry(logger *zap.Logger, decoders ...Decoder) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		bySubKind: make(map[model.EventSubKind]Decoder),
		byKind:    make(map[model.EventKind]Decoder),
		logger:    logger,
	}
	for _, d := range decoders {
		if err := r.register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultRegistry registers every built-in decoder.
func NewDefaultRegistry(logger *zap.Logger) (*Registry, error) {
	erc20, err := NewERC20Decoder()
	if err != nil {
		return nil, err
	}
	erc721, err := NewERC721Decoder()
	if err != nil {
		return nil, err
	}
	erc1155, err := NewERC1155Decoder()
	if err != nil {
		return nil, err
	}
	seaport, err := NewSeaportDecoder()
	if err != nil {
		return nil, err
	}
	looksRare, err := NewLooksRareDecoder()
	if err != nil {
		return nil, err
	}
	foundation, err := NewFoundationDecoder()
	if err != nil {
		return nil, err
	}
	return NewRegistry(logger, erc20, erc721, erc1155, seaport, looksRare, foundation)
}

func (r *Registry) register(d Decoder) error {
	if _, ok := r.byKind[d.Kind()]; ok {
		return fmt.Errorf("decoder for kind %s already registered", d.Kind())
	}
	for _, sk := range d.SubKinds() {
		if other, ok := r.bySubKind[sk]; ok {
			return fmt.Errorf("sub kind %s already handled by %s", sk, other.Kind())
		}
	}
	for _, sk := range d.SubKinds() {
		r.bySubKind[sk] = d
	}
	r.byKind[d.Kind()] = d
	r.decoders = append(r.decoders, d)
	return nil
}

// Lookup returns the decoder of a kind.
func (r *Registry) Lookup(kind model.EventKind) (Decoder, error) {
	d, ok := r.byKind[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	return d, nil
}

// Dispatch hands every event to the decoder owning its subKind. Events with
// no decoder are ignored. Each decoder sees its events in chain order.
func (r *Registry) Dispatch(ctx DecodeContext, evs []model.EnhancedEvent, acc *onchain.Data) error {
	return r.dispatch(ctx, r.decoders, evs, acc)
}

// DispatchKinds is Dispatch restricted to the given kinds. Naming a kind with
// no decoder fails with ErrUnknownKind before anything is decoded.
func (r *Registry) DispatchKinds(ctx DecodeContext, kinds []model.EventKind, evs []model.EnhancedEvent, acc *onchain.Data) error {
	selected := make([]Decoder, 0, len(kinds))
	for _, kind := range kinds {
		d, err := r.Lookup(kind)
		if err != nil {
			return err
		}
		selected = append(selected, d)
	}
	return r.dispatch(ctx, selected, evs, acc)
}

func (r *Registry) dispatch(ctx DecodeContext, decoders []Decoder, evs []model.EnhancedEvent, acc *onchain.Data) error {
	if ctx.Logger == nil {
		ctx.Logger = r.logger
	}
	if ctx.sales == nil {
		ctx.sales = newMintSales()
	}

	groups := make(map[model.EventKind][]model.EnhancedEvent, len(decoders))
	related := make(map[model.EventKind]map[model.EventSubKind]struct{})
	for _, d := range decoders {
		if rd, ok := d.(RelatedDecoder); ok {
			set := make(map[model.EventSubKind]struct{})
			for _, sk := range rd.RelatedSubKinds() {
				set[sk] = struct{}{}
			}
			related[d.Kind()] = set
		}
	}

	selected := make(map[model.EventKind]struct{}, len(decoders))
	for _, d := range decoders {
		selected[d.Kind()] = struct{}{}
	}

	for _, ev := range evs {
		owner, ok := r.bySubKind[ev.SubKind]
		if !ok {
			r.logger.Debug("no decoder for sub kind", zap.String("sub_kind", string(ev.SubKind)))
			continue
		}
		if _, ok := selected[owner.Kind()]; ok {
			groups[owner.Kind()] = append(groups[owner.Kind()], ev)
			metrics.EventsDecoded.WithLabelValues(string(ev.SubKind)).Inc()
		}
		for kind, set := range related {
			if kind == owner.Kind() {
				continue
			}
			if _, ok := set[ev.SubKind]; ok {
				groups[kind] = append(groups[kind], ev)
			}
		}
	}

	for _, d := range decoders {
		group := groups[d.Kind()]
		if len(group) == 0 || !hasOwnEvent(d, group) {
			continue
		}
		events.SortEvents(group)
		if err := d.Decode(ctx, group, acc); err != nil {
			return fmt.Errorf("%s decoder: %w", d.Kind(), err)
		}
	}
	return ctx.sales.flush(ctx, acc)
}

func hasOwnEvent(d Decoder, group []model.EnhancedEvent) bool {
	for _, ev := range group {
		if ev.Kind == d.Kind() {
			return true
		}
	}
	return false
}
