package blockstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ardanlabs/ethsim/foundation/blockchain/codec"
)

// Tag identifies how a block reference is resolved.
type Tag int

// Set of block reference kinds.
const (
	Raw Tag = iota
	Earliest
	Latest
	Pending
)

// String implements the fmt.Stringer interface.
func (t Tag) String() string {
	switch t {
	case Earliest:
		return "earliest"
	case Latest:
		return "latest"
	case Pending:
		return "pending"
	}
	return "raw"
}

// Ref is a parsed block reference.
type Ref struct {
	Tag Tag
	Key []byte
}

// ParseTag parses a block reference. The named tags are matched without
// regard to case. A 0x prefixed hex quantity or a decimal string is a raw
// block number.
func ParseTag(ref string) (Ref, error) {
	switch strings.ToLower(ref) {
	case "earliest":
		return Ref{Tag: Earliest}, nil
	case "latest":
		return Ref{Tag: Latest}, nil
	case "pending":
		return Ref{Tag: Pending}, nil
	}

	n, err := parseNumber(ref)
	if err != nil {
		return Ref{}, fmt.Errorf("%w: %q", ErrInvalidTag, ref)
	}

	return Ref{Tag: Raw, Key: codec.NumberKey(n)}, nil
}

func parseNumber(ref string) (uint64, error) {
	if len(ref) >= 2 && (ref[:2] == "0x" || ref[:2] == "0X") {
		digits := ref[2:]
		if digits == "" {
			return 0, strconv.ErrSyntax
		}
		return strconv.ParseUint(digits, 16, 64)
	}

	if ref == "" || ref[0] == '+' || ref[0] == '-' {
		return 0, strconv.ErrSyntax
	}

	return strconv.ParseUint(ref, 10, 64)
}
