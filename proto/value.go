// Copyright 2023 The CubeFS Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package proto

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"
)

// Value is one property value. Exactly one of the variant fields is
// meaningful, selected by Type.
//
// BINARY values come in two flavours: inlined bytes (Bytes non-nil) or a
// reference into external blob storage (BlobID non-empty). A binary with
// nil Bytes and empty BlobID is the empty binary.
type Value struct {
	Type int

	Str     string   // STRING, DATE, PATH, URI
	Long    int64    // LONG
	Double  float64  // DOUBLE
	Bool    bool     // BOOLEAN
	Decimal *big.Rat // DECIMAL; nil encodes the absent decimal
	Name    Name     // NAME
	NodeID  NodeID   // REFERENCE, WEAKREFERENCE
	Bytes   []byte   // BINARY, inlined
	BlobID  string   // BINARY, stored in a blob store or data store

	// InDataStore distinguishes a data-store record reference from a
	// blob-store reference; both use BlobID as the identifier.
	InDataStore bool
}

func StringValue(s string) Value  { return Value{Type: TypeString, Str: s} }
func DateValue(s string) Value    { return Value{Type: TypeDate, Str: s} }
func PathValue(s string) Value    { return Value{Type: TypePath, Str: s} }
func URIValue(s string) Value     { return Value{Type: TypeURI, Str: s} }
func LongValue(v int64) Value     { return Value{Type: TypeLong, Long: v} }
func DoubleValue(v float64) Value { return Value{Type: TypeDouble, Double: v} }
func BoolValue(v bool) Value      { return Value{Type: TypeBoolean, Bool: v} }
func NameValue(n Name) Value      { return Value{Type: TypeName, Name: n} }
func BinaryValue(b []byte) Value  { return Value{Type: TypeBinary, Bytes: b} }
func BlobValue(id string) Value   { return Value{Type: TypeBinary, BlobID: id} }

// DataStoreValue references a record held in the external data store.
func DataStoreValue(id string) Value {
	return Value{Type: TypeBinary, BlobID: id, InDataStore: true}
}

func DecimalValue(d *big.Rat) Value { return Value{Type: TypeDecimal, Decimal: d} }

func ReferenceValue(id NodeID) Value {
	return Value{Type: TypeReference, NodeID: id}
}

func WeakReferenceValue(id NodeID) Value {
	return Value{Type: TypeWeakReference, NodeID: id}
}

// DecimalString is the canonical decimal rendering used on the wire: the
// exact value with the smallest scale that represents it.
func DecimalString(d *big.Rat) string {
	if d.IsInt() {
		return d.Num().String()
	}
	return d.FloatString(decimalScale(d))
}

// decimalScale is the number of fractional digits of the exact decimal
// expansion. Values produced by ParseDecimal always have a reduced
// denominator of the form 2^a * 5^b, so the scale is max(a, b).
func decimalScale(d *big.Rat) int {
	den := new(big.Int).Set(d.Denom())
	var twos, fives int
	two, five := big.NewInt(2), big.NewInt(5)
	mod := new(big.Int)
	for {
		q, m := new(big.Int).QuoRem(den, two, mod)
		if m.Sign() != 0 {
			break
		}
		den = q
		twos++
	}
	for {
		q, m := new(big.Int).QuoRem(den, five, mod)
		if m.Sign() != 0 {
			break
		}
		den = q
		fives++
	}
	if twos > fives {
		return twos
	}
	return fives
}

// ParseDecimal parses a decimal string. Only plain decimal notation is
// accepted, never rationals like "1/3".
func ParseDecimal(s string) (*big.Rat, error) {
	if strings.ContainsAny(s, "/") {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	return r, nil
}

// Equals compares two values field-wise under their type.
func (v Value) Equals(o Value) bool {
	if v.Type != o.Type {
		return false
	}
	switch v.Type {
	case TypeString, TypeDate, TypePath, TypeURI:
		return v.Str == o.Str
	case TypeLong:
		return v.Long == o.Long
	case TypeDouble:
		return v.Double == o.Double
	case TypeBoolean:
		return v.Bool == o.Bool
	case TypeName:
		return v.Name == o.Name
	case TypeReference, TypeWeakReference:
		return v.NodeID == o.NodeID
	case TypeDecimal:
		if v.Decimal == nil || o.Decimal == nil {
			return v.Decimal == o.Decimal
		}
		return v.Decimal.Cmp(o.Decimal) == 0
	case TypeBinary:
		return v.BlobID == o.BlobID && v.InDataStore == o.InDataStore &&
			bytes.Equal(v.Bytes, o.Bytes)
	}
	return false
}

func (v Value) String() string {
	switch v.Type {
	case TypeString, TypeDate, TypePath, TypeURI:
		return v.Str
	case TypeLong:
		return fmt.Sprintf("%d", v.Long)
	case TypeDouble:
		return fmt.Sprintf("%g", v.Double)
	case TypeBoolean:
		return fmt.Sprintf("%t", v.Bool)
	case TypeName:
		return v.Name.String()
	case TypeReference, TypeWeakReference:
		return v.NodeID.String()
	case TypeDecimal:
		if v.Decimal == nil {
			return ""
		}
		return DecimalString(v.Decimal)
	case TypeBinary:
		if v.BlobID != "" {
			return v.BlobID
		}
		return fmt.Sprintf("binary(%d bytes)", len(v.Bytes))
	}
	return "undefined"
}
