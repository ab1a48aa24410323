// Package digest computes the MD5 checksums clients use to verify message
// integrity: a plain digest of the body and a canonical, order-independent
// digest of the message attributes. The attribute encoding is byte-compatible
// with the emulated service, so SDKs that recompute the checksum accept the
// responses.
package digest

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"github.com/slateq/slateq/models"
)

// ErrUnsupportedAttributeType is returned when an attribute's value kind
// cannot be encoded into the canonical digest buffer.
var ErrUnsupportedAttributeType = errors.New("unsupported message attribute type")

// Body returns the lower-case hex MD5 of the body's UTF-8 bytes.
func Body(body string) string {
	sum := md5.Sum([]byte(body))
	return hex.EncodeToString(sum[:])
}

// Attributes returns the canonical MD5 digest of a message attribute map.
// Attributes are encoded in ascending name order, so two maps with the same
// entries always produce the same digest regardless of insertion order.
func Attributes(attributes map[string]models.MessageAttributeValue) (string, error) {
	encoded, err := encodeAttributes(attributes)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// Value kind markers in the canonical encoding.
const (
	stringTransport = 1
	binaryTransport = 2
)

// encodeAttributes builds the deterministic byte representation of the
// attribute map: for each attribute in name order, a length-prefixed name, a
// length-prefixed data type, then a transport marker byte followed by the
// length-prefixed value. Length prefixes are 4-byte big-endian. Number values
// are encoded via their decimal string form, exactly as carried on the wire.
func encodeAttributes(attributes map[string]models.MessageAttributeValue) ([]byte, error) {
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		v := attributes[k]

		writeLengthPrefixed(&buf, []byte(k))
		writeLengthPrefixed(&buf, []byte(v.DataType))

		switch {
		case hasBaseType(v.DataType, "String") || hasBaseType(v.DataType, "Number"):
			if v.StringValue == nil {
				return nil, ErrUnsupportedAttributeType
			}
			buf.WriteByte(stringTransport)
			writeLengthPrefixed(&buf, []byte(*v.StringValue))
		case hasBaseType(v.DataType, "Binary"):
			if v.BinaryValue == nil {
				return nil, ErrUnsupportedAttributeType
			}
			buf.WriteByte(binaryTransport)
			writeLengthPrefixed(&buf, v.BinaryValue)
		default:
			return nil, ErrUnsupportedAttributeType
		}
	}
	return buf.Bytes(), nil
}

func writeLengthPrefixed(buf *bytes.Buffer, b []byte) {
	var length [4]byte
	binary.BigEndian.PutUint32(length[:], uint32(len(b)))
	buf.Write(length[:])
	buf.Write(b)
}

// hasBaseType reports whether dataType is base or a custom label of it
// (e.g. "Number.float" has base type "Number").
func hasBaseType(dataType, base string) bool {
	return dataType == base || strings.HasPrefix(dataType, base+".")
}
