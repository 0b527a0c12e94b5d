package pricing

import (
	"strings"

	"phoenix-pipeline/internal/domain"
)

// ResolveTokenID maps a token address or symbol to a canonical price-service
// identifier. Hex addresses ("0x" prefix, case-insensitive) go through the
// address table, everything else through the symbol table. Unknown inputs are
// returned unchanged and treated as already-canonical IDs downstream.
func ResolveTokenID(identifier string) string {
	lower := strings.ToLower(strings.TrimSpace(identifier))

	if strings.HasPrefix(lower, "0x") {
		if id, ok := domain.AddressToCoinGeckoID[lower]; ok {
			return id
		}
	} else if id, ok := domain.SymbolToCoinGeckoID[lower]; ok {
		return id
	}

	return identifier
}
