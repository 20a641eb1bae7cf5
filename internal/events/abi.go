package events

import (
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const erc20ABIJSON = `[
  {"anonymous": false, "name": "Transfer", "type": "event", "inputs": [
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"}]},
  {"anonymous": false, "name": "Approval", "type": "event", "inputs": [
    {"indexed": true, "name": "owner", "type": "address"},
    {"indexed": true, "name": "spender", "type": "address"},
    {"indexed": false, "name": "value", "type": "uint256"}]},
  {"anonymous": false, "name": "Deposit", "type": "event", "inputs": [
    {"indexed": true, "name": "dst", "type": "address"},
    {"indexed": false, "name": "wad", "type": "uint256"}]},
  {"anonymous": false, "name": "Withdrawal", "type": "event", "inputs": [
    {"indexed": true, "name": "src", "type": "address"},
    {"indexed": false, "name": "wad", "type": "uint256"}]}
]`

const erc721ABIJSON = `[
  {"anonymous": false, "name": "Transfer", "type": "event", "inputs": [
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"}]},
  {"anonymous": false, "name": "ApprovalForAll", "type": "event", "inputs": [
    {"indexed": true, "name": "owner", "type": "address"},
    {"indexed": true, "name": "operator", "type": "address"},
    {"indexed": false, "name": "approved", "type": "bool"}]}
]`

const erc1155ABIJSON = `[
  {"anonymous": false, "name": "TransferSingle", "type": "event", "inputs": [
    {"indexed": true, "name": "operator", "type": "address"},
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": false, "name": "id", "type": "uint256"},
    {"indexed": false, "name": "value", "type": "uint256"}]},
  {"anonymous": false, "name": "TransferBatch", "type": "event", "inputs": [
    {"indexed": true, "name": "operator", "type": "address"},
    {"indexed": true, "name": "from", "type": "address"},
    {"indexed": true, "name": "to", "type": "address"},
    {"indexed": false, "name": "ids", "type": "uint256[]"},
    {"indexed": false, "name": "values", "type": "uint256[]"}]}
]`

const seaportABIJSON = `[
  {"anonymous": false, "name": "OrderFulfilled", "type": "event", "inputs": [
    {"indexed": false, "name": "orderHash", "type": "bytes32"},
    {"indexed": true, "name": "offerer", "type": "address"},
    {"indexed": true, "name": "zone", "type": "address"},
    {"indexed": false, "name": "recipient", "type": "address"},
    {"indexed": false, "name": "offer", "type": "tuple[]", "components": [
      {"name": "itemType", "type": "uint8"},
      {"name": "token", "type": "address"},
      {"name": "identifier", "type": "uint256"},
      {"name": "amount", "type": "uint256"}]},
    {"indexed": false, "name": "consideration", "type": "tuple[]", "components": [
      {"name": "itemType", "type": "uint8"},
      {"name": "token", "type": "address"},
      {"name": "identifier", "type": "uint256"},
      {"name": "amount", "type": "uint256"},
      {"name": "recipient", "type": "address"}]}]},
  {"anonymous": false, "name": "OrderCancelled", "type": "event", "inputs": [
    {"indexed": false, "name": "orderHash", "type": "bytes32"},
    {"indexed": true, "name": "offerer", "type": "address"},
    {"indexed": true, "name": "zone", "type": "address"}]},
  {"anonymous": false, "name": "OrderValidated", "type": "event", "inputs": [
    {"indexed": false, "name": "orderHash", "type": "bytes32"},
    {"indexed": true, "name": "offerer", "type": "address"},
    {"indexed": true, "name": "zone", "type": "address"}]},
  {"anonymous": false, "name": "CounterIncremented", "type": "event", "inputs": [
    {"indexed": false, "name": "newCounter", "type": "uint256"},
    {"indexed": true, "name": "offerer", "type": "address"}]}
]`

const looksRareABIJSON = `[
  {"anonymous": false, "name": "TakerAsk", "type": "event", "inputs": [
    {"indexed": false, "name": "orderHash", "type": "bytes32"},
    {"indexed": false, "name": "orderNonce", "type": "uint256"},
    {"indexed": true, "name": "taker", "type": "address"},
    {"indexed": true, "name": "maker", "type": "address"},
    {"indexed": true, "name": "strategy", "type": "address"},
    {"indexed": false, "name": "currency", "type": "address"},
    {"indexed": false, "name": "collection", "type": "address"},
    {"indexed": false, "name": "tokenId", "type": "uint256"},
    {"indexed": false, "name": "amount", "type": "uint256"},
    {"indexed": false, "name": "price", "type": "uint256"}]},
  {"anonymous": false, "name": "TakerBid", "type": "event", "inputs": [
    {"indexed": false, "name": "orderHash", "type": "bytes32"},
    {"indexed": false, "name": "orderNonce", "type": "uint256"},
    {"indexed": true, "name": "taker", "type": "address"},
    {"indexed": true, "name": "maker", "type": "address"},
    {"indexed": true, "name": "strategy", "type": "address"},
    {"indexed": false, "name": "currency", "type": "address"},
    {"indexed": false, "name": "collection", "type": "address"},
    {"indexed": false, "name": "tokenId", "type": "uint256"},
    {"indexed": false, "name": "amount", "type": "uint256"},
    {"indexed": false, "name": "price", "type": "uint256"}]},
  {"anonymous": false, "name": "CancelAllOrders", "type": "event", "inputs": [
    {"indexed": true, "name": "user", "type": "address"},
    {"indexed": false, "name": "newMinNonce", "type": "uint256"}]},
  {"anonymous": false, "name": "CancelMultipleOrders", "type": "event", "inputs": [
    {"indexed": true, "name": "user", "type": "address"},
    {"indexed": false, "name": "orderNonces", "type": "uint256[]"}]}
]`

// Foundation's NFTMarket: fixed price listings and accepted offers.
const foundationABIJSON = `[
  {"anonymous": false, "name": "BuyPriceSet", "type": "event", "inputs": [
    {"indexed": true, "name": "nftContract", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"},
    {"indexed": true, "name": "seller", "type": "address"},
    {"indexed": false, "name": "price", "type": "uint256"}]},
  {"anonymous": false, "name": "BuyPriceAccepted", "type": "event", "inputs": [
    {"indexed": true, "name": "nftContract", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"},
    {"indexed": true, "name": "seller", "type": "address"},
    {"indexed": false, "name": "buyer", "type": "address"},
    {"indexed": false, "name": "protocolFee", "type": "uint256"},
    {"indexed": false, "name": "creatorFee", "type": "uint256"},
    {"indexed": false, "name": "sellerRev", "type": "uint256"}]},
  {"anonymous": false, "name": "BuyPriceCanceled", "type": "event", "inputs": [
    {"indexed": true, "name": "nftContract", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"}]},
  {"anonymous": false, "name": "BuyPriceInvalidated", "type": "event", "inputs": [
    {"indexed": true, "name": "nftContract", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"}]},
  {"anonymous": false, "name": "OfferAccepted", "type": "event", "inputs": [
    {"indexed": true, "name": "nftContract", "type": "address"},
    {"indexed": true, "name": "tokenId", "type": "uint256"},
    {"indexed": true, "name": "buyer", "type": "address"},
    {"indexed": false, "name": "seller", "type": "address"},
    {"indexed": false, "name": "protocolFee", "type": "uint256"},
    {"indexed": false, "name": "creatorFee", "type": "uint256"},
    {"indexed": false, "name": "sellerRev", "type": "uint256"}]}
]`

type lazyABI struct {
	json string
	once sync.Once
	abi  abi.ABI
	err  error
}

func (l *lazyABI) get() (abi.ABI, error) {
	l.once.Do(func() {
		l.abi, l.err = abi.JSON(strings.NewReader(l.json))
	})
	return l.abi, l.err
}

var (
	erc20ABI      = &lazyABI{json: erc20ABIJSON}
	erc721ABI     = &lazyABI{json: erc721ABIJSON}
	erc1155ABI    = &lazyABI{json: erc1155ABIJSON}
	seaportABI    = &lazyABI{json: seaportABIJSON}
	looksRareABI  = &lazyABI{json: looksRareABIJSON}
	foundationABI = &lazyABI{json: foundationABIJSON}
)

// ERC20ABI returns the parsed ERC20 and WETH event ABI.
func ERC20ABI() (abi.ABI, error) { return erc20ABI.get() }

// ERC721ABI returns the parsed ERC721 event ABI.
func ERC721ABI() (abi.ABI, error) { return erc721ABI.get() }

// ERC1155ABI returns the parsed ERC1155 event ABI.
func ERC1155ABI() (abi.ABI, error) { return erc1155ABI.get() }

// SeaportABI returns the parsed Seaport event ABI.
func SeaportABI() (abi.ABI, error) { return seaportABI.get() }

// LooksRareABI returns the parsed LooksRare exchange event ABI.
func LooksRareABI() (abi.ABI, error) { return looksRareABI.get() }

// FoundationABI returns the parsed Foundation market event ABI.
func FoundationABI() (abi.ABI, error) { return foundationABI.get() }
