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
	"strconv"
	"strings"

	"github.com/contentlake/bundledb/errors"
)

// Path element kinds.
const (
	elemNamed = iota
	elemRoot
	elemCurrent
	elemParent
)

// PathElement is one step of a path: the root marker, a named step with an
// optional 1-based same-name-sibling index, or the "." / ".." markers.
type PathElement struct {
	Name  Name
	Index int // 1-based SNS index; 0 means unspecified, equivalent to 1
	kind  int
}

func RootElement() PathElement    { return PathElement{kind: elemRoot} }
func CurrentElement() PathElement { return PathElement{kind: elemCurrent} }
func ParentElement() PathElement  { return PathElement{kind: elemParent} }

// NamedElement creates a step for name with an explicit SNS index.
// index 0 denotes an unspecified index.
func NamedElement(name Name, index int) PathElement {
	return PathElement{Name: name, Index: index, kind: elemNamed}
}

func (e PathElement) DenotesRoot() bool    { return e.kind == elemRoot }
func (e PathElement) DenotesCurrent() bool { return e.kind == elemCurrent }
func (e PathElement) DenotesParent() bool  { return e.kind == elemParent }
func (e PathElement) DenotesName() bool    { return e.kind == elemNamed }

// NormalizedIndex maps the unspecified index to 1.
func (e PathElement) NormalizedIndex() int {
	if e.Index == 0 {
		return 1
	}
	return e.Index
}

func (e PathElement) String() string {
	switch e.kind {
	case elemRoot:
		return "/"
	case elemCurrent:
		return "."
	case elemParent:
		return ".."
	}
	s := e.Name.Local
	if e.Name.Namespace != NSDefaultURI {
		s = "{" + e.Name.Namespace + "}" + e.Name.Local
	}
	if e.Index > 1 {
		s += "[" + strconv.Itoa(e.Index) + "]"
	}
	return s
}

// sameStep reports whether two elements denote the same step once the SNS
// index is normalized.
func (e PathElement) sameStep(o PathElement) bool {
	return e.kind == o.kind && e.Name == o.Name &&
		e.NormalizedIndex() == o.NormalizedIndex()
}

// Path is an immutable sequence of path elements. An absolute path starts
// with the root element. The zero value is the empty path and denotes
// nothing.
type Path struct {
	elements []PathElement
}

// RootPath is the absolute path of the root node.
func RootPath() Path {
	return Path{elements: []PathElement{RootElement()}}
}

// NewPath creates a path from elements. The root element is only allowed
// in the first position.
func NewPath(elements ...PathElement) (Path, error) {
	if len(elements) == 0 {
		return Path{}, errors.ErrInvalidName
	}
	for i, e := range elements {
		if e.DenotesRoot() && i > 0 {
			return Path{}, errors.ErrInvalidName
		}
	}
	cp := make([]PathElement, len(elements))
	copy(cp, elements)
	return Path{elements: cp}, nil
}

// ParsePath parses the textual form produced by String: "/"-separated
// steps, each "name", "{uri}name", optionally suffixed "[n]"; a leading
// "/" denotes the root.
func ParsePath(s string) (Path, error) {
	if s == "" {
		return Path{}, errors.ErrInvalidName
	}
	var elements []PathElement
	if s == "/" {
		return RootPath(), nil
	}
	rest := s
	if strings.HasPrefix(s, "/") {
		elements = append(elements, RootElement())
		rest = s[1:]
	}
	// split on "/" outside braces so "{uri}name" steps keep their URI whole
	var steps []string
	depth, begin := 0, 0
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case '{':
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
		case '/':
			if depth == 0 {
				steps = append(steps, rest[begin:i])
				begin = i + 1
			}
		}
	}
	steps = append(steps, rest[begin:])
	for _, step := range steps {
		switch step {
		case "":
			return Path{}, errors.ErrInvalidName
		case ".":
			elements = append(elements, CurrentElement())
			continue
		case "..":
			elements = append(elements, ParentElement())
			continue
		}
		index := 0
		if i := strings.IndexByte(step, '['); i >= 0 {
			if !strings.HasSuffix(step, "]") {
				return Path{}, errors.ErrInvalidName
			}
			n, err := strconv.Atoi(step[i+1 : len(step)-1])
			if err != nil || n < 1 {
				return Path{}, errors.ErrInvalidName
			}
			index = n
			step = step[:i]
		}
		name, err := ParseName(step)
		if err != nil {
			return Path{}, err
		}
		elements = append(elements, NamedElement(name, index))
	}
	return Path{elements: elements}, nil
}

func (p Path) IsEmpty() bool    { return len(p.elements) == 0 }
func (p Path) IsAbsolute() bool { return len(p.elements) > 0 && p.elements[0].DenotesRoot() }
func (p Path) DenotesRoot() bool {
	return len(p.elements) == 1 && p.elements[0].DenotesRoot()
}

func (p Path) Length() int { return len(p.elements) }

// Element returns the i-th element.
func (p Path) Element(i int) PathElement { return p.elements[i] }

// LastElement returns the final step of the path.
func (p Path) LastElement() PathElement {
	return p.elements[len(p.elements)-1]
}

// Child returns the path extended by one named step.
func (p Path) Child(name Name, index int) Path {
	elements := make([]PathElement, len(p.elements)+1)
	copy(elements, p.elements)
	elements[len(p.elements)] = NamedElement(name, index)
	return Path{elements: elements}
}

// Ancestor returns the path with degree steps removed from the end.
// Ancestor(0) is the path itself.
func (p Path) Ancestor(degree int) (Path, error) {
	if degree < 0 || degree >= len(p.elements) {
		return Path{}, errors.ErrInvalidName
	}
	return Path{elements: p.elements[:len(p.elements)-degree]}, nil
}

// Parent is Ancestor(1).
func (p Path) Parent() (Path, error) { return p.Ancestor(1) }

// IsAncestorOf reports whether p is a strict ancestor of o, comparing
// steps with normalized SNS indexes.
func (p Path) IsAncestorOf(o Path) bool {
	if len(p.elements) >= len(o.elements) {
		return false
	}
	for i, e := range p.elements {
		if !e.sameStep(o.elements[i]) {
			return false
		}
	}
	return true
}

// Relativize expresses o relative to p. Both paths must be absolute and p
// must be an ancestor of (or equal to) o.
func (p Path) Relativize(o Path) (Path, error) {
	if !p.IsAbsolute() || !o.IsAbsolute() {
		return Path{}, errors.ErrInvalidName
	}
	if p.DenotesRoot() && o.DenotesRoot() {
		return Path{elements: []PathElement{CurrentElement()}}, nil
	}
	if !p.IsAncestorOf(o) && !p.Equals(o) {
		return Path{}, errors.ErrInvalidName
	}
	if p.Equals(o) {
		return Path{elements: []PathElement{CurrentElement()}}, nil
	}
	rest := o.elements[len(p.elements):]
	cp := make([]PathElement, len(rest))
	copy(cp, rest)
	return Path{elements: cp}, nil
}

// Normalize resolves "." and ".." steps. Normalizing above the root of an
// absolute path fails.
func (p Path) Normalize() (Path, error) {
	out := make([]PathElement, 0, len(p.elements))
	for _, e := range p.elements {
		switch {
		case e.DenotesCurrent():
		case e.DenotesParent():
			if len(out) == 0 {
				out = append(out, e)
				continue
			}
			last := out[len(out)-1]
			if last.DenotesRoot() {
				return Path{}, errors.ErrInvalidName
			}
			if last.DenotesParent() {
				out = append(out, e)
				continue
			}
			out = out[:len(out)-1]
		default:
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		out = append(out, CurrentElement())
	}
	return Path{elements: out}, nil
}

// Equals compares element sequences with normalized SNS indexes.
func (p Path) Equals(o Path) bool {
	if len(p.elements) != len(o.elements) {
		return false
	}
	for i, e := range p.elements {
		if !e.sameStep(o.elements[i]) {
			return false
		}
	}
	return true
}

// Compare totally orders paths by element sequence. It is consistent with
// Equals.
func (p Path) Compare(o Path) int {
	return strings.Compare(p.String(), o.String())
}

// String renders the canonical textual form. Steps with SNS index 1 carry
// no index suffix.
func (p Path) String() string {
	if len(p.elements) == 0 {
		return ""
	}
	if p.DenotesRoot() {
		return "/"
	}
	var sb strings.Builder
	for i, e := range p.elements {
		if e.DenotesRoot() {
			continue
		}
		if i > 0 || p.elements[0].DenotesRoot() {
			sb.WriteByte('/')
		}
		sb.WriteString(e.String())
	}
	return sb.String()
}
