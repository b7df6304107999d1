package token

import (
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name       string
		address    string
		wantNative bool
		wantErr    bool
	}{
		{"checksummed", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", false, false},
		{"lowercase", "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2", false, false},
		{"empty_is_native", "", true, false},
		{"pseudo_native", NativeAddress, true, false},
		{"pseudo_native_lowercase", "0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", true, false},
		{"garbage", "not-an-address", false, true},
		{"too_short", "0x1234", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := ParseID(ChainIDEthereum, tt.address)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseID(%q) = %v, want error", tt.address, id)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseID(%q) error = %v", tt.address, err)
			}
			if id.IsNative() != tt.wantNative {
				t.Errorf("IsNative() = %v, want %v", id.IsNative(), tt.wantNative)
			}
		})
	}
}

func TestParseID_CaseInsensitiveEquality(t *testing.T) {
	a, err := ParseID(ChainIDEthereum, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	b, err := ParseID(ChainIDEthereum, "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	if err != nil {
		t.Fatalf("ParseID() error = %v", err)
	}
	if !a.Equals(b) {
		t.Error("same address in different case should produce equal IDs")
	}
}

func TestID_DifferentChainsDiffer(t *testing.T) {
	mainnet := NewID(ChainIDEthereum, AddrWETHEthereum)
	polygon := NewID(ChainIDPolygon, AddrWETHEthereum)
	if mainnet.Equals(polygon) {
		t.Error("same address on different chains must not be equal")
	}
}

func TestToBaseUnits(t *testing.T) {
	tests := []struct {
		name    string
		token   *Token
		amount  string
		want    string
		wantErr bool
	}{
		{"one_eth", WETH, "1", "1000000000000000000", false},
		{"full_precision", WETH, "1.123456789012345678", "1123456789012345678", false},
		{"usdc_six_decimals", USDC, "3400.5", "3400500000", false},
		{"zero", WETH, "0", "0", false},
		{"too_many_decimals", USDC, "1.0000001", "", true},
		{"negative", WETH, "-1", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.token.ToBaseUnits(decimal.RequireFromString(tt.amount))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ToBaseUnits(%s) = %s, want error", tt.amount, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ToBaseUnits(%s) error = %v", tt.amount, err)
			}
			if got.String() != tt.want {
				t.Errorf("ToBaseUnits(%s) = %s, want %s", tt.amount, got, tt.want)
			}
		})
	}
}

func TestFromBaseUnits(t *testing.T) {
	tests := []struct {
		name  string
		token *Token
		raw   string
		want  string
	}{
		{"one_eth", WETH, "1000000000000000000", "1"},
		{"full_precision", WETH, "1123456789012345678", "1.123456789012345678"},
		{"single_wei", WETH, "1", "0.000000000000000001"},
		{"usdc", USDC, "3400500000", "3400.5"},
		{"zero", WETH, "0", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, ok := new(big.Int).SetString(tt.raw, 10)
			if !ok {
				t.Fatalf("bad fixture %q", tt.raw)
			}
			got := tt.token.FromBaseUnits(raw)
			if got.String() != tt.want {
				t.Errorf("FromBaseUnits(%s) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestBaseUnitsRoundTrip(t *testing.T) {
	// Converting out and back must not lose a single wei.
	amount := decimal.RequireFromString("1.123456789012345678")
	raw, err := WETH.ToBaseUnits(amount)
	if err != nil {
		t.Fatalf("ToBaseUnits() error = %v", err)
	}
	back := WETH.FromBaseUnits(raw)
	if !back.Equal(amount) {
		t.Errorf("round trip %s -> %s -> %s lost precision", amount, raw, back)
	}
}

func TestToken_Name_FallsBackToSymbol(t *testing.T) {
	plain := New(NewID(ChainIDEthereum, AddrDAIEthereum), "DAI", 18)
	if plain.Name() != "DAI" {
		t.Errorf("Name() = %q, want symbol fallback", plain.Name())
	}
	if DAI.Name() != "Dai Stablecoin" {
		t.Errorf("Name() = %q, want display name", DAI.Name())
	}
}
