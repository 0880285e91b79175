package wallet

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

var ErrInvalidAddress = errors.New("invalid wallet address")

// NormalizeAddress returns the EIP-55 checksummed form of an Ethereum
// address. All-lowercase and all-uppercase input is accepted; mixed-case
// input must already carry a valid checksum.
func NormalizeAddress(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if len(addr) != 42 || !(strings.HasPrefix(addr, "0x") || strings.HasPrefix(addr, "0X")) {
		return "", ErrInvalidAddress
	}
	body := addr[2:]
	if _, err := hex.DecodeString(body); err != nil {
		return "", ErrInvalidAddress
	}

	sum := checksum(strings.ToLower(body))
	if body != strings.ToLower(body) && body != strings.ToUpper(body) && body != sum[2:] {
		return "", ErrInvalidAddress
	}
	return sum, nil
}

func checksum(lower string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(lower))
	digest := hex.EncodeToString(h.Sum(nil))

	out := []byte(lower)
	for i, ch := range out {
		if ch >= 'a' && ch <= 'f' && digest[i] >= '8' {
			out[i] = ch - 'a' + 'A'
		}
	}
	return "0x" + string(out)
}
