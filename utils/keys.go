package utils

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/ethereum/go-ethereum/common"
)

// ShortenAccount renders an address as 0x1234...abcd
func ShortenAccount(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}

// UserActiveKey identifies a user's position in a market
func UserActiveKey(marketID string, user common.Address) string {
	return fmt.Sprintf("%s-%s", marketID, ShortenAccount(user))
}

// Fingerprint hashes the parts of a request into a stable hex token
func Fingerprint(parts ...string) string {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write([]byte{0})
	}
	return strconv.FormatUint(d.Sum64(), 16)
}

// ActiveKey builds a correlation key for a request: the prefix followed by
// a fingerprint of its inputs
func ActiveKey(prefix string, parts ...string) string {
	return strings.Join([]string{prefix, Fingerprint(parts...)}, "-")
}
