package types

import (
	"math/big"
	"strings"
)

// Network identifies an Ethereum network a session can target.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkRopsten Network = "ropsten"
	NetworkKovan   Network = "kovan"
	NetworkRinkeby Network = "rinkeby"
)

// chainIDs is the fixed network-name to chain-id table. IDs are hex
// quantities exactly as wallets report them from eth_chainId.
var chainIDs = map[Network]string{
	NetworkMainnet: "0x1",
	NetworkRopsten: "0x3",
	NetworkKovan:   "0x2a",
	NetworkRinkeby: "0x4",
}

// ChainID returns the hex chain id for the network, or "" for an unknown name.
func (n Network) ChainID() string {
	return chainIDs[n]
}

// Valid reports whether the network name is part of the fixed table.
func (n Network) Valid() bool {
	_, ok := chainIDs[n]
	return ok
}

// IsTestnet reports whether the network is one of the named test networks.
func (n Network) IsTestnet() bool {
	return n.Valid() && n != NetworkMainnet
}

func (n Network) String() string {
	return string(n)
}

// FromChainID resolves a reported chain id back to a network name.
func FromChainID(id string) (Network, bool) {
	for network, chainID := range chainIDs {
		if EqualChainID(chainID, id) {
			return network, true
		}
	}
	return "", false
}

// EqualChainID compares two chain ids as hex quantities. Wallets disagree on
// the exact form ("0x1" vs "0x01"), so both sides are normalized before
// comparing. Unparseable ids never compare equal to anything.
func EqualChainID(a, b string) bool {
	na, nb := normalizeChainID(a), normalizeChainID(b)
	return na != "" && na == nb
}

func normalizeChainID(id string) string {
	s := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(id)), "0x")
	if s == "" {
		return ""
	}
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return ""
	}
	return "0x" + n.Text(16)
}
