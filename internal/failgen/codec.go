package failgen

import (
	"log"
	"math"
	"strconv"
	"strings"
)

// Encode joins record values with commas using the shortest exact form.
func Encode(records []float64) string {
	parts := make([]string, len(records))
	for i, v := range records {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

// Decode splits a settings string into numbers. Malformed tokens decode to
// NaN and are kept in place so the record layout is preserved.
func Decode(raw string, width int) []float64 {
	if raw == "" {
		return []float64{}
	}
	tokens := strings.Split(raw, ",")
	values := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			v = math.NaN()
		}
		values[i] = v
	}
	if width > 0 && len(values)%width != 0 {
		log.Printf("settings string has %d values, not a multiple of record width %d", len(values), width)
	}
	return values
}

// EncodeIDs joins generator unique ids for an association string.
func EncodeIDs(ids []string) string {
	return strings.Join(ids, ",")
}

// DecodeIDs splits an association string, dropping empty tokens.
func DecodeIDs(raw string) []string {
	ids := []string{}
	for _, tok := range strings.Split(raw, ",") {
		if tok = strings.TrimSpace(tok); tok != "" {
			ids = append(ids, tok)
		}
	}
	return ids
}
