package utils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"

	"github.com/axia-network/axia-launch/utils/constants"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const (
	// AccountIDLen is the length of a substrate account id.
	AccountIDLen = 32
	// DefaultSS58Prefix is the generic substrate address format.
	DefaultSS58Prefix uint16 = 42

	ss58ChecksumLen = 2
	maxSS58Prefix   = 16383
)

var (
	ss58Pre = []byte("SS58PRE")

	ErrInvalidAddress = errors.New("invalid ss58 address")
)

// AllychainAccountID returns the sovereign account of allychain [id] on the
// relay chain: the "ally" tag followed by the id as a little endian u32,
// right padded with zeros.
func AllychainAccountID(id string) ([]byte, error) {
	n, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid allychain id %q: %w", id, err)
	}
	accountID := make([]byte, AccountIDLen)
	copy(accountID, constants.AllychainAccountTag)
	binary.LittleEndian.PutUint32(accountID[len(constants.AllychainAccountTag):], uint32(n))
	return accountID, nil
}

// AllychainAccount returns the SS58 address of the sovereign account of allychain [id].
func AllychainAccount(id string) (string, error) {
	accountID, err := AllychainAccountID(id)
	if err != nil {
		return "", err
	}
	return SS58Encode(accountID, DefaultSS58Prefix)
}

// SS58Encode encodes a 32 byte account id as an SS58 address with [prefix].
func SS58Encode(accountID []byte, prefix uint16) (string, error) {
	if len(accountID) != AccountIDLen {
		return "", fmt.Errorf("expected %d byte account id but got %d", AccountIDLen, len(accountID))
	}
	if prefix > maxSS58Prefix {
		return "", fmt.Errorf("ss58 prefix %d out of range", prefix)
	}
	data := append(encodeSS58Prefix(prefix), accountID...)
	return base58.Encode(append(data, ss58Checksum(data)...)), nil
}

// SS58Decode returns the account id and prefix of an SS58 address.
func SS58Decode(address string) ([]byte, uint16, error) {
	decoded, err := base58.Decode(address)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %s", ErrInvalidAddress, err)
	}
	if len(decoded) == 0 {
		return nil, 0, ErrInvalidAddress
	}
	var (
		prefix    uint16
		prefixLen = 1
	)
	if decoded[0]&0b0100_0000 != 0 {
		if len(decoded) < 2 {
			return nil, 0, ErrInvalidAddress
		}
		prefixLen = 2
		prefix = uint16(decoded[0]&0b0011_1111)<<2 | uint16(decoded[1]>>6) | uint16(decoded[1]&0b0011_1111)<<8
	} else {
		prefix = uint16(decoded[0])
	}
	if len(decoded) != prefixLen+AccountIDLen+ss58ChecksumLen {
		return nil, 0, fmt.Errorf("%w: unexpected length %d", ErrInvalidAddress, len(decoded))
	}
	data := decoded[:prefixLen+AccountIDLen]
	if !bytes.Equal(ss58Checksum(data), decoded[prefixLen+AccountIDLen:]) {
		return nil, 0, fmt.Errorf("%w: bad checksum", ErrInvalidAddress)
	}
	return data[prefixLen:], prefix, nil
}

func encodeSS58Prefix(prefix uint16) []byte {
	if prefix < 64 {
		return []byte{byte(prefix)}
	}
	return []byte{
		byte((prefix&0b0000_0000_1111_1100)>>2) | 0b0100_0000,
		byte(prefix>>8) | byte((prefix&0b0000_0000_0000_0011)<<6),
	}
}

func ss58Checksum(data []byte) []byte {
	h := blake2b.Sum512(append(append([]byte{}, ss58Pre...), data...))
	return h[:ss58ChecksumLen]
}
