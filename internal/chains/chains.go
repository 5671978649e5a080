package chains

// Fixed set of chains the bot can launch on
// Maps short chain names to their CAIP-2 identifiers and back
// Chain names are the only values accepted in uploads and wallet records

import (
	"fmt"
	"strings"
)

// Chain is the short name of a supported network ("ethereum", "solana", ...).
type Chain string

const (
	Arbitrum  Chain = "arbitrum"
	Avalanche Chain = "avalanche"
	Base      Chain = "base"
	BNB       Chain = "bnb"
	Ethereum  Chain = "ethereum"
	Mantle    Chain = "mantle"
	Solana    Chain = "solana"
)

// Supported lists all chains in stable order. The bot walks this order during
// wallet onboarding and menu rendering.
var Supported = []Chain{Arbitrum, Avalanche, Base, BNB, Ethereum, Mantle, Solana}

// Default CAIP-2 identifiers, overridable per chain via config.
var defaultCAIP2 = map[Chain]string{
	Arbitrum:  "eip155:42161",
	Avalanche: "eip155:43114",
	Base:      "eip155:8453",
	BNB:       "eip155:56",
	Ethereum:  "eip155:1",
	Mantle:    "eip155:5000",
	Solana:    "solana:5eykt4UsFv8P8NJdTREpY1vzqKqZKvdp",
}

// IsSupported reports whether name is one of the seven launch chains.
func IsSupported(name string) bool {
	_, ok := defaultCAIP2[Chain(name)]
	return ok
}

// Names returns the supported chain names as strings, for validation messages.
func Names() []string {
	names := make([]string, 0, len(Supported))
	for _, c := range Supported {
		names = append(names, string(c))
	}
	return names
}

// DefaultCAIP2 returns the built-in CAIP-2 identifier for a chain.
func DefaultCAIP2(c Chain) string {
	return defaultCAIP2[c]
}

// IsEVM reports whether the chain uses an eip155 namespace.
func IsEVM(c Chain) bool {
	return strings.HasPrefix(defaultCAIP2[c], "eip155:")
}

// Namespace returns the CAIP-2 namespace of a chain id ("eip155" or "solana").
func Namespace(caip2 string) string {
	if i := strings.Index(caip2, ":"); i > 0 {
		return caip2[:i]
	}
	return caip2
}

// CAIP10 builds a CAIP-10 account id from a CAIP-2 chain id and an address,
// e.g. "eip155:1" + "0xabc" -> "eip155:1:0xabc".
func CAIP10(caip2, address string) string {
	return fmt.Sprintf("%s:%s", caip2, address)
}
