package events

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"nftsync/internal/config"
	"nftsync/internal/model"
)

// Entry is one registered event signature.
type Entry struct {
	Kind      model.EventKind
	SubKind   model.EventSubKind
	Topic     string
	NumTopics int
	// Addresses restricts the entry to specific contracts when the topic is
	// shared with other protocols. Nil accepts any address.
	Addresses map[string]struct{}
	Event     abi.Event
}

func (e Entry) matches(log model.LogRecord) bool {
	if len(log.Topics) != e.NumTopics || log.Topic0() != e.Topic {
		return false
	}
	if e.Addresses == nil {
		return true
	}
	_, ok := e.Addresses[strings.ToLower(log.Address)]
	return ok
}

// Catalogue matches raw logs against the registered event signatures.
type Catalogue struct {
	entries []Entry
	byTopic map[string][]int
}

type entrySpec struct {
	kind      model.EventKind
	subKind   model.EventSubKind
	abiFn     func() (abi.ABI, error)
	event     string
	addresses []string
}

func catalogueSpecs(network config.Network) []entrySpec {
	return []entrySpec{
		{model.KindERC20, model.SubKindERC20Transfer, ERC20ABI, "Transfer", nil},
		{model.KindERC20, model.SubKindERC20Approval, ERC20ABI, "Approval", nil},
		{model.KindERC20, model.SubKindWETHDeposit, ERC20ABI, "Deposit", []string{network.WETH}},
		{model.KindERC20, model.SubKindWETHWithdrawal, ERC20ABI, "Withdrawal", []string{network.WETH}},
		{model.KindERC721, model.SubKindERC721Transfer, ERC721ABI, "Transfer", nil},
		{model.KindERC721, model.SubKindApprovalForAll, ERC721ABI, "ApprovalForAll", nil},
		{model.KindERC1155, model.SubKindERC1155Single, ERC1155ABI, "TransferSingle", nil},
		{model.KindERC1155, model.SubKindERC1155Batch, ERC1155ABI, "TransferBatch", nil},
		{model.KindSeaport, model.SubKindSeaportFilled, SeaportABI, "OrderFulfilled", []string{network.Seaport}},
		{model.KindSeaport, model.SubKindSeaportCancel, SeaportABI, "OrderCancelled", []string{network.Seaport}},
		{model.KindSeaport, model.SubKindSeaportValidate, SeaportABI, "OrderValidated", []string{network.Seaport}},
		{model.KindSeaport, model.SubKindSeaportCounter, SeaportABI, "CounterIncremented", []string{network.Seaport}},
		{model.KindLooksRare, model.SubKindLooksRareAsk, LooksRareABI, "TakerAsk", []string{network.LooksRare}},
		{model.KindLooksRare, model.SubKindLooksRareBid, LooksRareABI, "TakerBid", []string{network.LooksRare}},
		{model.KindLooksRare, model.SubKindLooksRareAll, LooksRareABI, "CancelAllOrders", []string{network.LooksRare}},
		{model.KindLooksRare, model.SubKindLooksRareNonces, LooksRareABI, "CancelMultipleOrders", []string{network.LooksRare}},
		{model.KindFoundation, model.SubKindFoundationSet, FoundationABI, "BuyPriceSet", []string{network.Foundation}},
		{model.KindFoundation, model.SubKindFoundationAccepted, FoundationABI, "BuyPriceAccepted", []string{network.Foundation}},
		{model.KindFoundation, model.SubKindFoundationCancelled, FoundationABI, "BuyPriceCanceled", []string{network.Foundation}},
		{model.KindFoundation, model.SubKindFoundationInvalidated, FoundationABI, "BuyPriceInvalidated", []string{network.Foundation}},
		{model.KindFoundation, model.SubKindFoundationOffer, FoundationABI, "OfferAccepted", []string{network.Foundation}},
	}
}

// NewCatalogue registers every supported event for the network. Protocol
// entries whose exchange is not deployed on the network are left out.
func NewCatalogue(network config.Network) (*Catalogue, error) {
	c := &Catalogue{byTopic: make(map[string][]int)}
	for _, spec := range catalogueSpecs(network) {
		var allow map[string]struct{}
		if spec.addresses != nil {
			allow = make(map[string]struct{}, len(spec.addresses))
			for _, addr := range spec.addresses {
				if addr == "" {
					continue
				}
				allow[strings.ToLower(addr)] = struct{}{}
			}
			if len(allow) == 0 {
				continue
			}
		}

		parsed, err := spec.abiFn()
		if err != nil {
			return nil, fmt.Errorf("parse %s abi: %w", spec.kind, err)
		}
		event, ok := parsed.Events[spec.event]
		if !ok {
			return nil, fmt.Errorf("event %s missing from %s abi", spec.event, spec.kind)
		}

		c.add(Entry{
			Kind:      spec.kind,
			SubKind:   spec.subKind,
			Topic:     strings.ToLower(event.ID.Hex()),
			NumTopics: len(indexedArguments(event.Inputs)) + 1,
			Addresses: allow,
			Event:     event,
		})
	}
	return c, nil
}

func (c *Catalogue) add(e Entry) {
	c.entries = append(c.entries, e)
	c.byTopic[e.Topic] = append(c.byTopic[e.Topic], len(c.entries)-1)
}

// Restrict returns a catalogue holding only the given subKinds.
func (c *Catalogue) Restrict(subKinds []string) (*Catalogue, error) {
	if len(subKinds) == 0 {
		return c, nil
	}
	out := &Catalogue{byTopic: make(map[string][]int)}
	for _, name := range subKinds {
		e, ok := c.Entry(model.EventSubKind(name))
		if !ok {
			return nil, fmt.Errorf("unknown event sub kind %q", name)
		}
		out.add(e)
	}
	return out, nil
}

// Match returns the first entry accepting the log.
func (c *Catalogue) Match(log model.LogRecord) (Entry, bool) {
	for _, idx := range c.byTopic[log.Topic0()] {
		if c.entries[idx].matches(log) {
			return c.entries[idx], true
		}
	}
	return Entry{}, false
}

// Entry looks up an entry by subKind.
func (c *Catalogue) Entry(subKind model.EventSubKind) (Entry, bool) {
	for _, e := range c.entries {
		if e.SubKind == subKind {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns the registered entries in registration order.
func (c *Catalogue) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Topics returns the distinct topic0 values, for eth_getLogs filters.
func (c *Catalogue) Topics() []common.Hash {
	out := make([]common.Hash, 0, len(c.byTopic))
	seen := make(map[string]struct{}, len(c.byTopic))
	for _, e := range c.entries {
		if _, ok := seen[e.Topic]; ok {
			continue
		}
		seen[e.Topic] = struct{}{}
		out = append(out, common.HexToHash(e.Topic))
	}
	return out
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}
