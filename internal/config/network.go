package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// Network holds per-chain settings. Addresses are lowercase hex.
type Network struct {
	ChainID               uint64
	Name                  string
	WETH                  string
	Seaport               string
	LooksRare             string
	Foundation            string
	MintAddresses         []string
	MintsAsSalesBlacklist []string
	RealtimeMaxBlockLag   uint64
	LastBlockLatency      uint64
	BackfillBatchSize     uint64
	ReorgDepth            uint64
}

func defaultNetwork(chainID uint64) Network {
	return Network{
		ChainID:             chainID,
		MintAddresses:       []string{zeroAddress},
		RealtimeMaxBlockLag: 16,
		LastBlockLatency:    5,
		BackfillBatchSize:   16,
		ReorgDepth:          10,
	}
}

// NetworkFor resolves the settings for chainID and applies overrides
// (keys: weth, seaport, looks-rare, foundation, mint-addresses, mints-as-sales-blacklist,
// max-block-lag, last-block-latency, backfill-batch-size, reorg-depth).
func NetworkFor(chainID uint64, overrides map[string]string) (Network, error) {
	n := defaultNetwork(chainID)
	known := true
	switch chainID {
	case 1:
		n.Name = "mainnet"
		n.WETH = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
		n.Seaport = "0x00000000006c3852cbef3e08e8df289169ede581"
		n.LooksRare = "0x59728544b08ab483533076417fbbb2fd0b17ce3a"
		n.Foundation = "0xcda72070e455bb31c7690a170224ce43623d0b6f"
		n.MintAddresses = append(n.MintAddresses, "0xe052113bd7d7700d623414a0a4585bcae754e9d5")
		n.MintsAsSalesBlacklist = []string{"0xc36442b4a4522e871399cd717abdd847ab11fe88"}
	case 5:
		n.Name = "goerli"
		n.WETH = "0xb4fbf271143f4fbf7b91a5ded31805e42b2208d6"
		n.Seaport = "0x00000000006c3852cbef3e08e8df289169ede581"
		n.LooksRare = "0xd112466471b5438c1ca2d218694200e49d81d047"
	case 11155111:
		n.Name = "sepolia"
		n.WETH = "0x7b79995e5f793a07bc00c21412e50ecae098e7f9"
		n.Seaport = "0x00000000000000adc04c56bf30ac9d3c0aaf14dc"
		n.ReorgDepth = 32
	default:
		known = false
	}

	for key, value := range overrides {
		if err := n.apply(key, value); err != nil {
			return Network{}, err
		}
	}
	if !known && n.WETH == "" {
		return Network{}, fmt.Errorf("%w: %d (set network-overrides weth=...)", ErrUnsupportedChain, chainID)
	}
	if n.Name == "" {
		n.Name = "chain-" + strconv.FormatUint(chainID, 10)
	}
	return n, nil
}

func (n *Network) apply(key, value string) error {
	switch key {
	case "weth", "seaport", "looks-rare", "foundation":
		addr, err := normalizeAddress(value)
		if err != nil {
			return fmt.Errorf("network override %s: %w", key, err)
		}
		switch key {
		case "weth":
			n.WETH = addr
		case "seaport":
			n.Seaport = addr
		case "foundation":
			n.Foundation = addr
		default:
			n.LooksRare = addr
		}
	case "mint-addresses", "mints-as-sales-blacklist":
		var addrs []string
		for _, item := range strings.Split(value, ";") {
			item = strings.TrimSpace(item)
			if item == "" {
				continue
			}
			addr, err := normalizeAddress(item)
			if err != nil {
				return fmt.Errorf("network override %s: %w", key, err)
			}
			addrs = append(addrs, addr)
		}
		if key == "mint-addresses" {
			n.MintAddresses = addrs
		} else {
			n.MintsAsSalesBlacklist = addrs
		}
	case "max-block-lag", "last-block-latency", "backfill-batch-size", "reorg-depth":
		num, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("network override %s: %w", key, err)
		}
		switch key {
		case "max-block-lag":
			n.RealtimeMaxBlockLag = num
		case "last-block-latency":
			n.LastBlockLatency = num
		case "backfill-batch-size":
			n.BackfillBatchSize = num
		default:
			n.ReorgDepth = num
		}
	default:
		return fmt.Errorf("unknown network override %q", key)
	}
	return nil
}

// IsMintAddress reports whether transfers from addr are mints.
func (n Network) IsMintAddress(addr string) bool {
	return containsFold(n.MintAddresses, addr)
}

// MintAsSaleAllowed reports whether paid mints of contract count as sales.
func (n Network) MintAsSaleAllowed(contract string) bool {
	return !containsFold(n.MintsAsSalesBlacklist, contract)
}

func containsFold(list []string, addr string) bool {
	for _, item := range list {
		if strings.EqualFold(item, addr) {
			return true
		}
	}
	return false
}

func normalizeAddress(value string) (string, error) {
	if !common.IsHexAddress(value) {
		return "", fmt.Errorf("invalid address: %s", value)
	}
	return strings.ToLower(common.HexToAddress(value).Hex()), nil
}
