package contract

// Token describes the contract a transaction targets: its deployed address,
// descriptor set and decimal precision. Tokens are supplied per call; the
// session never stores them.
type Token struct {
	Address  string
	ABI      ABI
	Decimals int
}

// ERC20Token builds a Token carrying the canonical ERC-20 ABI.
func ERC20Token(address string, decimals int) Token {
	return Token{Address: address, ABI: erc20ABI, Decimals: decimals}
}
