// Package token provides a type-safe model for the tokens a swap can touch.
// Identity is (chainID, address), case-insensitive on the address. Amounts at
// the package boundary are decimal strings; big.Int base units are used only
// when talking to chains.
package token

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ID uniquely identifies a token by chain and contract address.
// For native coins the address is zero.
type ID struct {
	chainID uint64
	address common.Address
}

// NewNativeID creates an ID for a chain's native coin.
func NewNativeID(chainID uint64) ID {
	return ID{chainID: chainID}
}

// NewID creates an ID for a contract token.
func NewID(chainID uint64, addr common.Address) ID {
	if addr == (common.Address{}) {
		panic("token: zero address, use NewNativeID for native coins")
	}
	return ID{chainID: chainID, address: addr}
}

// ParseID builds an ID from a chain and an address string. The address is
// canonicalized, so mixed-case and lowercase inputs produce equal IDs.
func ParseID(chainID uint64, address string) (ID, error) {
	if address == "" || strings.EqualFold(address, NativeAddress) {
		return NewNativeID(chainID), nil
	}
	if !common.IsHexAddress(address) {
		return ID{}, fmt.Errorf("token: invalid address %q", address)
	}
	return ID{chainID: chainID, address: common.HexToAddress(address)}, nil
}

// NativeAddress is the conventional pseudo-address for native coins in
// aggregator APIs.
const NativeAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// ChainID returns the chain this token lives on.
func (id ID) ChainID() uint64 {
	return id.chainID
}

// Address returns the contract address (zero for native coins).
func (id ID) Address() common.Address {
	return id.address
}

// IsNative reports whether this is a chain's native coin.
func (id ID) IsNative() bool {
	return id.address == (common.Address{})
}

// Equals compares two IDs.
func (id ID) Equals(other ID) bool {
	return id.chainID == other.chainID && id.address == other.address
}

// String returns a chain-qualified identifier, e.g. "1:0xc02a...".
func (id ID) String() string {
	if id.IsNative() {
		return fmt.Sprintf("%d:native", id.chainID)
	}
	return fmt.Sprintf("%d:%s", id.chainID, strings.ToLower(id.address.Hex()))
}

// Token is an immutable value describing one tradable asset.
type Token struct {
	id       ID
	symbol   string
	name     string
	logoURI  string
	decimals uint8
}

// New creates a Token.
func New(id ID, symbol string, decimals uint8) *Token {
	if symbol == "" {
		panic("token: empty symbol")
	}
	if decimals > 30 {
		panic("token: suspicious decimals (>30)")
	}
	return &Token{id: id, symbol: symbol, decimals: decimals}
}

// NewWithName creates a Token with a display name and optional logo URI.
func NewWithName(id ID, symbol, name, logoURI string, decimals uint8) *Token {
	t := New(id, symbol, decimals)
	t.name = name
	t.logoURI = logoURI
	return t
}

// ID returns the token's identity.
func (t *Token) ID() ID {
	return t.id
}

// Symbol returns the ticker symbol (e.g. "WETH").
func (t *Token) Symbol() string {
	return t.symbol
}

// Name returns the display name, falling back to the symbol.
func (t *Token) Name() string {
	if t.name == "" {
		return t.symbol
	}
	return t.name
}

// LogoURI returns the logo URI, possibly empty.
func (t *Token) LogoURI() string {
	return t.logoURI
}

// Decimals returns the number of decimal places.
func (t *Token) Decimals() uint8 {
	return t.decimals
}

// ChainID returns the chain this token lives on.
func (t *Token) ChainID() uint64 {
	return t.id.chainID
}

// Address returns the contract address (zero for native coins).
func (t *Token) Address() common.Address {
	return t.id.address
}

// IsNative reports whether this is a chain's native coin.
func (t *Token) IsNative() bool {
	return t.id.IsNative()
}

// Equals compares tokens by identity.
func (t *Token) Equals(other *Token) bool {
	if t == nil || other == nil {
		return t == other
	}
	return t.id.Equals(other.id)
}

// String returns the symbol.
func (t *Token) String() string {
	return t.symbol
}

// ToBaseUnits converts a human-readable decimal amount into integer base
// units (wei-style). Fails if the amount has more fractional digits than the
// token supports, rather than silently rounding.
func (t *Token) ToBaseUnits(d decimal.Decimal) (*big.Int, error) {
	if d.IsNegative() {
		return nil, fmt.Errorf("token: negative amount %s", d)
	}
	scaled := d.Shift(int32(t.decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("token: %s has more than %d decimals", d, t.decimals)
	}
	return scaled.BigInt(), nil
}

// FromBaseUnits converts integer base units into a decimal amount. The
// conversion is exact: decimal.NewFromBigInt carries full precision.
func (t *Token) FromBaseUnits(raw *big.Int) decimal.Decimal {
	if raw == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(raw, -int32(t.decimals))
}
