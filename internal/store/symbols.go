package store

import "strings"

// Symbols are stored as a comma-joined column; symbol identifiers never
// contain commas.
func encodeSymbols(symbols []string) string {
	return strings.Join(symbols, ",")
}

func decodeSymbols(encoded string) []string {
	if encoded == "" {
		return nil
	}

	return strings.Split(encoded, ",")
}
