package flatgeobuf

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"sort"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb/geojson"
)

// schema is the column layout of a layer. Values are encoded with the type
// of their column, not the type of the Go value, so a column promoted from
// Int to Double stays decodable.
type schema struct {
	names []string
	types []flattypes.ColumnType
	index map[string]int
}

// inferSchema collects the columns of features in order of first appearance
// (keys of one feature in lexical order) and settles each column on the most
// general type of its non-nil values.
func inferSchema(features []*geojson.Feature) *schema {
	s := &schema{index: make(map[string]int)}
	typed := make(map[string]bool)

	for _, f := range features {
		if f == nil || len(f.Properties) == 0 {
			continue
		}
		keys := make([]string, 0, len(f.Properties))
		for k := range f.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, name := range keys {
			i, ok := s.index[name]
			if !ok {
				i = len(s.names)
				s.index[name] = i
				s.names = append(s.names, name)
				s.types = append(s.types, flattypes.ColumnTypeString)
			}

			value := f.Properties[name]
			if value == nil {
				continue
			}
			t := inferColumnType(value)
			if typed[name] {
				t = promoteColumnType(s.types[i], t)
			}
			s.types[i] = t
			typed[name] = true
		}
	}

	return s
}

func (s *schema) empty() bool { return len(s.names) == 0 }

// columns builds the header column tables.
func (s *schema) columns(builder *flatbuffers.Builder) []*writer.Column {
	cols := make([]*writer.Column, 0, len(s.names))
	for i, name := range s.names {
		col := writer.NewColumn(builder)
		col.SetName(name)
		col.SetTitle(name)
		col.SetType(s.types[i])
		col.SetNullable(true)
		cols = append(cols, col)
	}
	return cols
}

// encode writes props as [uint16 column index][value] pairs in column order.
// Null values and values that cannot be represented in their column type are
// omitted, which reads back as absent.
func (s *schema) encode(props geojson.Properties) []byte {
	if len(props) == 0 || s.empty() {
		return nil
	}

	var buf bytes.Buffer
	for i, name := range s.names {
		value, ok := props[name]
		if !ok || value == nil {
			continue
		}
		encoded, ok := encodeValue(value, s.types[i])
		if !ok {
			continue
		}
		var idx [2]byte
		binary.LittleEndian.PutUint16(idx[:], uint16(i))
		buf.Write(idx[:])
		buf.Write(encoded)
	}
	return buf.Bytes()
}

// inferColumnType maps a Go value to a column type.
func inferColumnType(value interface{}) flattypes.ColumnType {
	switch v := value.(type) {
	case nil:
		return flattypes.ColumnTypeString
	case bool:
		return flattypes.ColumnTypeBool
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return flattypes.ColumnTypeInt
		}
		return flattypes.ColumnTypeLong
	case int8, int16, int32:
		return flattypes.ColumnTypeInt
	case int64:
		return flattypes.ColumnTypeLong
	case uint, uint8, uint16, uint32:
		return flattypes.ColumnTypeUInt
	case uint64:
		return flattypes.ColumnTypeULong
	case float32:
		return flattypes.ColumnTypeFloat
	case float64:
		return flattypes.ColumnTypeDouble
	case string:
		return flattypes.ColumnTypeString
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return flattypes.ColumnTypeLong
		}
		return flattypes.ColumnTypeDouble
	case []byte:
		return flattypes.ColumnTypeBinary
	default:
		return flattypes.ColumnTypeJson
	}
}

var numericRank = map[flattypes.ColumnType]int{
	flattypes.ColumnTypeBool:   0,
	flattypes.ColumnTypeByte:   1,
	flattypes.ColumnTypeUByte:  2,
	flattypes.ColumnTypeShort:  3,
	flattypes.ColumnTypeUShort: 4,
	flattypes.ColumnTypeInt:    5,
	flattypes.ColumnTypeUInt:   6,
	flattypes.ColumnTypeLong:   7,
	flattypes.ColumnTypeULong:  8,
	flattypes.ColumnTypeFloat:  9,
	flattypes.ColumnTypeDouble: 10,
}

// promoteColumnType returns the more general of two column types.
func promoteColumnType(a, b flattypes.ColumnType) flattypes.ColumnType {
	if a == b {
		return a
	}
	if a == flattypes.ColumnTypeJson || b == flattypes.ColumnTypeJson {
		return flattypes.ColumnTypeJson
	}
	if a == flattypes.ColumnTypeString || b == flattypes.ColumnTypeString {
		return flattypes.ColumnTypeString
	}

	rankA, okA := numericRank[a]
	rankB, okB := numericRank[b]
	if okA && okB {
		// Mixed signed and unsigned 64-bit values only fit a double.
		if (a == flattypes.ColumnTypeLong && b == flattypes.ColumnTypeULong) ||
			(a == flattypes.ColumnTypeULong && b == flattypes.ColumnTypeLong) {
			return flattypes.ColumnTypeDouble
		}
		if rankA > rankB {
			return a
		}
		return b
	}

	return flattypes.ColumnTypeJson
}

// encodeValue converts value to the little-endian layout of column type t.
func encodeValue(value interface{}, t flattypes.ColumnType) ([]byte, bool) {
	switch t {
	case flattypes.ColumnTypeBool:
		v, ok := value.(bool)
		if !ok {
			return nil, false
		}
		if v {
			return []byte{1}, true
		}
		return []byte{0}, true

	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		v, ok := toInt64(value)
		return []byte{byte(v)}, ok

	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		v, ok := toInt64(value)
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		return b, ok

	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		v, ok := toInt64(value)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, uint32(v))
		return b, ok

	case flattypes.ColumnTypeLong:
		v, ok := toInt64(value)
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v))
		return b, ok

	case flattypes.ColumnTypeULong:
		v, ok := toUint64(value)
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return b, ok

	case flattypes.ColumnTypeFloat:
		v, ok := toFloat64(value)
		b := make([]byte, 4)
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
		return b, ok

	case flattypes.ColumnTypeDouble:
		v, ok := toFloat64(value)
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		return b, ok

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		return lengthPrefixed([]byte(toString(value))), true

	case flattypes.ColumnTypeJson:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, false
		}
		return lengthPrefixed(data), true

	case flattypes.ColumnTypeBinary:
		v, ok := value.([]byte)
		if !ok {
			return nil, false
		}
		return lengthPrefixed(v), true
	}

	return nil, false
}

// lengthPrefixed is the layout of variable-length values: uint32 byte
// length followed by the bytes.
func lengthPrefixed(data []byte) []byte {
	b := make([]byte, 4+len(data))
	binary.LittleEndian.PutUint32(b, uint32(len(data)))
	copy(b[4:], data)
	return b
}

// decodeProperties decodes the property buffer of a feature.
func decodeProperties(data []byte, header *flattypes.Header) geojson.Properties {
	if len(data) == 0 || header == nil {
		return nil
	}

	props := make(geojson.Properties)
	offset := 0

	for offset+2 <= len(data) {
		colIndex := int(binary.LittleEndian.Uint16(data[offset : offset+2]))
		offset += 2

		if colIndex >= header.ColumnsLength() {
			break
		}
		var col flattypes.Column
		if !header.Columns(&col, colIndex) {
			break
		}

		value, n := readPropertyValue(data[offset:], col.Type())
		if n == 0 {
			break
		}
		offset += n
		props[string(col.Name())] = value
	}

	return props
}

// readPropertyValue reads one value and returns it with the number of
// bytes consumed, 0 when data is too short.
func readPropertyValue(data []byte, t flattypes.ColumnType) (interface{}, int) {
	fixed := func(size int) bool { return len(data) >= size }

	switch t {
	case flattypes.ColumnTypeBool:
		if !fixed(1) {
			return nil, 0
		}
		return data[0] != 0, 1
	case flattypes.ColumnTypeByte:
		if !fixed(1) {
			return nil, 0
		}
		return int8(data[0]), 1
	case flattypes.ColumnTypeUByte:
		if !fixed(1) {
			return nil, 0
		}
		return data[0], 1
	case flattypes.ColumnTypeShort:
		if !fixed(2) {
			return nil, 0
		}
		return int16(binary.LittleEndian.Uint16(data)), 2
	case flattypes.ColumnTypeUShort:
		if !fixed(2) {
			return nil, 0
		}
		return binary.LittleEndian.Uint16(data), 2
	case flattypes.ColumnTypeInt:
		if !fixed(4) {
			return nil, 0
		}
		return int32(binary.LittleEndian.Uint32(data)), 4
	case flattypes.ColumnTypeUInt:
		if !fixed(4) {
			return nil, 0
		}
		return binary.LittleEndian.Uint32(data), 4
	case flattypes.ColumnTypeLong:
		if !fixed(8) {
			return nil, 0
		}
		return int64(binary.LittleEndian.Uint64(data)), 8
	case flattypes.ColumnTypeULong:
		if !fixed(8) {
			return nil, 0
		}
		return binary.LittleEndian.Uint64(data), 8
	case flattypes.ColumnTypeFloat:
		if !fixed(4) {
			return nil, 0
		}
		return math.Float32frombits(binary.LittleEndian.Uint32(data)), 4
	case flattypes.ColumnTypeDouble:
		if !fixed(8) {
			return nil, 0
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8
	}

	// Variable-length types.
	if !fixed(4) {
		return nil, 0
	}
	size := int(binary.LittleEndian.Uint32(data))
	if len(data) < 4+size {
		return nil, 0
	}
	raw := data[4 : 4+size]

	switch t {
	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime:
		return string(raw), 4 + size
	case flattypes.ColumnTypeJson:
		var v interface{}
		if err := json.Unmarshal(raw, &v); err != nil {
			return string(raw), 4 + size
		}
		return v, 4 + size
	case flattypes.ColumnTypeBinary:
		out := make([]byte, size)
		copy(out, raw)
		return out, 4 + size
	}

	return nil, 0
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case int:
		return int64(val), true
	case int8:
		return int64(val), true
	case int16:
		return int64(val), true
	case int32:
		return int64(val), true
	case int64:
		return val, true
	case uint:
		return int64(val), true
	case uint8:
		return int64(val), true
	case uint16:
		return int64(val), true
	case uint32:
		return int64(val), true
	case uint64:
		return int64(val), true
	case float32:
		return int64(val), true
	case float64:
		return int64(val), true
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, true
		}
		if f, err := val.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func toUint64(v interface{}) (uint64, bool) {
	switch val := v.(type) {
	case uint:
		return uint64(val), true
	case uint8:
		return uint64(val), true
	case uint16:
		return uint64(val), true
	case uint32:
		return uint64(val), true
	case uint64:
		return val, true
	}
	if i, ok := toInt64(v); ok && i >= 0 {
		return uint64(i), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case uint64:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	}
	if i, ok := toInt64(v); ok {
		return float64(i), true
	}
	return 0, false
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
