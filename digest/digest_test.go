package digest

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slateq/slateq/models"
)

func strptr(s string) *string { return &s }

func TestBody(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty", "", "d41d8cd98f00b204e9800998ecf8427e"},
		{"hello world", "hello world", "5eb63bbbe01eeed093cb22bb8f5acdc3"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Body(tt.body))
		})
	}
}

// canonicalBuffer hand-builds the expected encoding of an attribute:
// length-prefixed name, length-prefixed type, marker byte, length-prefixed
// value. Building it independently keeps the test honest about the byte
// layout rather than just checking determinism.
func canonicalBuffer(entries ...[3]interface{}) []byte {
	var buf bytes.Buffer
	writeStr := func(s string) {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(s)))
		buf.Write(l[:])
		buf.WriteString(s)
	}
	writeBytes := func(b []byte) {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(b)))
		buf.Write(l[:])
		buf.Write(b)
	}
	for _, e := range entries {
		writeStr(e[0].(string))
		writeStr(e[1].(string))
		switch v := e[2].(type) {
		case string:
			buf.WriteByte(1)
			writeStr(v)
		case []byte:
			buf.WriteByte(2)
			writeBytes(v)
		}
	}
	return buf.Bytes()
}

func md5hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestAttributes(t *testing.T) {
	t.Run("single string attribute", func(t *testing.T) {
		got, err := Attributes(map[string]models.MessageAttributeValue{
			"color": {DataType: "String", StringValue: strptr("red")},
		})
		require.NoError(t, err)
		want := md5hex(canonicalBuffer([3]interface{}{"color", "String", "red"}))
		assert.Equal(t, want, got)
	})

	t.Run("number uses the string transport", func(t *testing.T) {
		got, err := Attributes(map[string]models.MessageAttributeValue{
			"count": {DataType: "Number", StringValue: strptr("42")},
		})
		require.NoError(t, err)
		want := md5hex(canonicalBuffer([3]interface{}{"count", "Number", "42"}))
		assert.Equal(t, want, got)
	})

	t.Run("binary uses its own transport marker", func(t *testing.T) {
		raw := []byte{0x00, 0x01, 0xff}
		got, err := Attributes(map[string]models.MessageAttributeValue{
			"blob": {DataType: "Binary", BinaryValue: raw},
		})
		require.NoError(t, err)
		want := md5hex(canonicalBuffer([3]interface{}{"blob", "Binary", raw}))
		assert.Equal(t, want, got)
	})

	t.Run("custom type label is digested verbatim", func(t *testing.T) {
		got, err := Attributes(map[string]models.MessageAttributeValue{
			"ratio": {DataType: "Number.float", StringValue: strptr("0.5")},
		})
		require.NoError(t, err)
		want := md5hex(canonicalBuffer([3]interface{}{"ratio", "Number.float", "0.5"}))
		assert.Equal(t, want, got)
	})

	t.Run("attributes are sorted by name", func(t *testing.T) {
		attrs := map[string]models.MessageAttributeValue{
			"zeta":  {DataType: "String", StringValue: strptr("z")},
			"alpha": {DataType: "String", StringValue: strptr("a")},
			"mid":   {DataType: "String", StringValue: strptr("m")},
		}
		got, err := Attributes(attrs)
		require.NoError(t, err)
		want := md5hex(canonicalBuffer(
			[3]interface{}{"alpha", "String", "a"},
			[3]interface{}{"mid", "String", "m"},
			[3]interface{}{"zeta", "String", "z"},
		))
		assert.Equal(t, want, got)
	})

	t.Run("deterministic across maps", func(t *testing.T) {
		a := map[string]models.MessageAttributeValue{
			"one": {DataType: "String", StringValue: strptr("1")},
			"two": {DataType: "Number", StringValue: strptr("2")},
		}
		b := map[string]models.MessageAttributeValue{
			"two": {DataType: "Number", StringValue: strptr("2")},
			"one": {DataType: "String", StringValue: strptr("1")},
		}
		da, err := Attributes(a)
		require.NoError(t, err)
		db, err := Attributes(b)
		require.NoError(t, err)
		assert.Equal(t, da, db)
	})

	t.Run("unsupported kinds fail", func(t *testing.T) {
		tests := []struct {
			name  string
			attrs map[string]models.MessageAttributeValue
		}{
			{"unknown data type", map[string]models.MessageAttributeValue{
				"x": {DataType: "Boolean", StringValue: strptr("true")},
			}},
			{"string without value", map[string]models.MessageAttributeValue{
				"x": {DataType: "String"},
			}},
			{"binary without value", map[string]models.MessageAttributeValue{
				"x": {DataType: "Binary"},
			}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := Attributes(tt.attrs)
				assert.ErrorIs(t, err, ErrUnsupportedAttributeType)
			})
		}
	})
}
