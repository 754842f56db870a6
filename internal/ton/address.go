// Package ton validates TON wallet addresses and converts between TON and
// nanotons.
package ton

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const (
	friendlyLen = 48
	rawBytes    = 36

	flagBounceable    byte = 0x11
	flagNonBounceable byte = 0x51
	flagTestOnly      byte = 0x80
)

var rawPattern = regexp.MustCompile(`^(-?[0-9]{1,3}):([0-9a-fA-F]{64})$`)

// Address is a parsed TON account address.
type Address struct {
	Workchain  int8
	Hash       [32]byte
	Bounceable bool
	TestOnly   bool
}

// IsValidAddress reports whether s is a well-formed TON address, either in raw
// form ("0:<64 hex>") or in 48-character user-friendly form with a valid
// checksum. Malformed addresses are treated like missing ones by the planner.
func IsValidAddress(s string) bool {
	_, err := ParseAddress(s)
	return err == nil
}

// ParseAddress parses a raw or user-friendly address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if m := rawPattern.FindStringSubmatch(s); m != nil {
		return parseRaw(m[1], m[2])
	}
	if len(s) == friendlyLen {
		return parseFriendly(s)
	}
	return Address{}, fmt.Errorf("invalid address %q", s)
}

func parseRaw(wc, hexHash string) (Address, error) {
	workchain, err := strconv.ParseInt(wc, 10, 8)
	if err != nil {
		return Address{}, fmt.Errorf("invalid workchain %q: %w", wc, err)
	}
	var addr Address
	addr.Workchain = int8(workchain)
	addr.Bounceable = true
	if _, err := hex.Decode(addr.Hash[:], []byte(hexHash)); err != nil {
		return Address{}, fmt.Errorf("invalid address hash: %w", err)
	}
	return addr, nil
}

func parseFriendly(s string) (Address, error) {
	enc := base64.StdEncoding
	if strings.ContainsAny(s, "-_") {
		enc = base64.URLEncoding
	}
	data, err := enc.DecodeString(s)
	if err != nil {
		return Address{}, fmt.Errorf("invalid address encoding: %w", err)
	}
	if len(data) != rawBytes {
		return Address{}, fmt.Errorf("invalid address length %d", len(data))
	}
	if got, want := binary.BigEndian.Uint16(data[34:]), crc16(data[:34]); got != want {
		return Address{}, fmt.Errorf("address checksum mismatch")
	}

	flags := data[0]
	var addr Address
	addr.TestOnly = flags&flagTestOnly != 0
	switch flags &^ flagTestOnly {
	case flagBounceable:
		addr.Bounceable = true
	case flagNonBounceable:
	default:
		return Address{}, fmt.Errorf("invalid address flags 0x%02x", flags)
	}
	addr.Workchain = int8(data[1])
	copy(addr.Hash[:], data[2:34])
	return addr, nil
}

// Raw renders the address as "<workchain>:<hex hash>".
func (a Address) Raw() string {
	return fmt.Sprintf("%d:%s", a.Workchain, hex.EncodeToString(a.Hash[:]))
}

// Friendly renders the 48-character base64url form.
func (a Address) Friendly() string {
	data := make([]byte, rawBytes)
	data[0] = flagNonBounceable
	if a.Bounceable {
		data[0] = flagBounceable
	}
	if a.TestOnly {
		data[0] |= flagTestOnly
	}
	data[1] = byte(a.Workchain)
	copy(data[2:34], a.Hash[:])
	binary.BigEndian.PutUint16(data[34:], crc16(data[:34]))
	return base64.URLEncoding.EncodeToString(data)
}

// SameAccount reports whether two address strings point at the same account,
// regardless of encoding and flags.
func SameAccount(a, b string) bool {
	pa, err := ParseAddress(a)
	if err != nil {
		return false
	}
	pb, err := ParseAddress(b)
	if err != nil {
		return false
	}
	return pa.Workchain == pb.Workchain && pa.Hash == pb.Hash
}

// crc16 is CRC-16/XMODEM as used by the user-friendly address checksum.
func crc16(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
