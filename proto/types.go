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
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/contentlake/bundledb/errors"
)

// Built-in namespace URIs. The default namespace is the empty URI and is
// always slot 0 of the per-bundle intern table.
const (
	NSDefaultURI  = ""
	NSJCRURI      = "http://www.jcp.org/jcr/1.0"
	NSNTURI       = "http://www.jcp.org/jcr/nt/1.0"
	NSMixURI      = "http://www.jcp.org/jcr/mix/1.0"
	NSSVURI       = "http://www.jcp.org/jcr/sv/1.0"
	NSInternalURI = "internal"
)

// NodeID identifies a node. It is a 128-bit opaque value split into the
// most and least significant halves; equality is bitwise. The zero value
// is reserved as the null id.
type NodeID struct {
	High uint64
	Low  uint64
}

// NewNodeID returns a random NodeID.
func NewNodeID() NodeID {
	u := uuid.New()
	return NodeID{
		High: binary.BigEndian.Uint64(u[:8]),
		Low:  binary.BigEndian.Uint64(u[8:]),
	}
}

// ParseNodeID parses the canonical uuid form produced by String.
func ParseNodeID(s string) (NodeID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeID{}, err
	}
	return NodeID{
		High: binary.BigEndian.Uint64(u[:8]),
		Low:  binary.BigEndian.Uint64(u[8:]),
	}, nil
}

func (id NodeID) IsZero() bool { return id.High == 0 && id.Low == 0 }

func (id NodeID) String() string {
	var u uuid.UUID
	binary.BigEndian.PutUint64(u[:8], id.High)
	binary.BigEndian.PutUint64(u[8:], id.Low)
	return u.String()
}

// Bytes returns the 16-byte big-endian form used as a storage key.
func (id NodeID) Bytes() []byte {
	b := make([]byte, 16)
	binary.BigEndian.PutUint64(b[:8], id.High)
	binary.BigEndian.PutUint64(b[8:], id.Low)
	return b
}

// NodeIDFromBytes decodes the 16-byte form produced by Bytes.
func NodeIDFromBytes(b []byte) (NodeID, error) {
	if len(b) != 16 {
		return NodeID{}, fmt.Errorf("node id must be 16 bytes, got %d", len(b))
	}
	return NodeID{
		High: binary.BigEndian.Uint64(b[:8]),
		Low:  binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// PropertyID identifies a property by its parent node and its name.
type PropertyID struct {
	Parent NodeID
	Name   Name
}

func (id PropertyID) String() string {
	return id.Parent.String() + "/" + id.Name.String()
}

// ItemID is either a NodeID or a PropertyID.
type ItemID interface {
	// DenotesNode reports whether the id denotes a node.
	DenotesNode() bool
	String() string
}

func (id NodeID) DenotesNode() bool     { return true }
func (id PropertyID) DenotesNode() bool { return false }

// Name is a qualified item name: a namespace URI plus a non-empty local
// part. Names are value-equal and usable as map keys. The zero value is
// the null name.
type Name struct {
	Namespace string
	Local     string
}

// NewName validates and creates a name. The local part must be non-empty
// and must not contain the characters reserved by the path syntax.
func NewName(namespace, local string) (Name, error) {
	if local == "" || strings.ContainsAny(local, "/[]") {
		return Name{}, errors.ErrInvalidName
	}
	return Name{Namespace: namespace, Local: local}, nil
}

// MustName is NewName for static initializers.
func MustName(namespace, local string) Name {
	n, err := NewName(namespace, local)
	if err != nil {
		panic(err)
	}
	return n
}

func (n Name) IsZero() bool { return n.Local == "" && n.Namespace == "" }

// String renders the expanded form "{uri}local".
func (n Name) String() string {
	return "{" + n.Namespace + "}" + n.Local
}

// ParseName parses the expanded form produced by String. A bare local
// name is taken to be in the default namespace.
func ParseName(s string) (Name, error) {
	if !strings.HasPrefix(s, "{") {
		return NewName(NSDefaultURI, s)
	}
	end := strings.IndexByte(s, '}')
	if end < 0 {
		return Name{}, errors.ErrInvalidName
	}
	return NewName(s[1:end], s[end+1:])
}

// Item status values.
const (
	StatusUndefined = iota
	StatusNew
	StatusExisting
	StatusModified
	StatusRemoved
)

// Property types. The numeric codes are part of the bundle wire format;
// they fit in the low nibble of the property entry header.
const (
	TypeUndefined     = 0
	TypeString        = 1
	TypeBinary        = 2
	TypeLong          = 3
	TypeDouble        = 4
	TypeDate          = 5
	TypeBoolean       = 6
	TypeName          = 7
	TypePath          = 8
	TypeReference     = 9
	TypeWeakReference = 10
	TypeURI           = 11
	TypeDecimal       = 12
)

// TypeLabel returns the lowercase label of a property type code.
func TypeLabel(t int) string {
	switch t {
	case TypeUndefined:
		return "undefined"
	case TypeString:
		return "string"
	case TypeBinary:
		return "binary"
	case TypeLong:
		return "long"
	case TypeDouble:
		return "double"
	case TypeDate:
		return "date"
	case TypeBoolean:
		return "boolean"
	case TypeName:
		return "name"
	case TypePath:
		return "path"
	case TypeReference:
		return "reference"
	case TypeWeakReference:
		return "weakreference"
	case TypeURI:
		return "uri"
	case TypeDecimal:
		return "decimal"
	default:
		return fmt.Sprintf("unknown(%d)", t)
	}
}

// ValidType reports whether t is a known property type code.
func ValidType(t int) bool {
	return t >= TypeUndefined && t <= TypeDecimal
}
