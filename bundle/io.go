package bundle

import (
	"encoding/binary"
	"io"
	"math"

	apierrors "github.com/contentlake/bundledb/errors"
)

// dataOutput wraps the destination stream with the big-endian primitives
// of the wire format and counts bytes written, so bundle sizes can be
// measured without buffering.
type dataOutput struct {
	w     io.Writer
	count int64
	buf   [8]byte
}

func (o *dataOutput) size() int64 { return o.count }

func (o *dataOutput) write(p []byte) error {
	n, err := o.w.Write(p)
	o.count += int64(n)
	return err
}

func (o *dataOutput) writeByte(b byte) error {
	o.buf[0] = b
	return o.write(o.buf[:1])
}

func (o *dataOutput) writeBool(v bool) error {
	if v {
		return o.writeByte(1)
	}
	return o.writeByte(0)
}

func (o *dataOutput) writeInt(v int32) error {
	binary.BigEndian.PutUint32(o.buf[:4], uint32(v))
	return o.write(o.buf[:4])
}

func (o *dataOutput) writeLong(v uint64) error {
	binary.BigEndian.PutUint64(o.buf[:8], v)
	return o.write(o.buf[:8])
}

func (o *dataOutput) writeDouble(v float64) error {
	return o.writeLong(doubleBits(v))
}

// writeVarInt emits v seven bits at a time, little-endian, setting the
// continuation bit on every byte but the last. Values 0-127 take one
// byte; any 32-bit value takes at most five.
func (o *dataOutput) writeVarInt(v uint32) error {
	for {
		b := byte(v & 0x7f)
		if uint32(b) != v {
			if err := o.writeByte(b | 0x80); err != nil {
				return err
			}
			v >>= 7
		} else {
			return o.writeByte(b)
		}
	}
}

// writeBytes writes varint(len - base) followed by the bytes.
func (o *dataOutput) writeBytes(p []byte, base int) error {
	if err := o.writeVarInt(uint32(len(p) - base)); err != nil {
		return err
	}
	return o.write(p)
}

func (o *dataOutput) writeString(s string) error {
	return o.writeBytes([]byte(s), 0)
}

// dataInput mirrors dataOutput and tracks the stream offset for error
// reporting. A short read surfaces as CorruptBundleError.
type dataInput struct {
	r      io.Reader
	offset int64
	buf    [8]byte
}

func (in *dataInput) readFully(p []byte) error {
	n, err := io.ReadFull(in.r, p)
	in.offset += int64(n)
	if err != nil {
		return apierrors.NewCorruptBundle(in.offset, "premature end of bundle: %v", err)
	}
	return nil
}

func (in *dataInput) readByte() (byte, error) {
	if err := in.readFully(in.buf[:1]); err != nil {
		return 0, err
	}
	return in.buf[0], nil
}

func (in *dataInput) readBool() (bool, error) {
	b, err := in.readByte()
	return b != 0, err
}

func (in *dataInput) readInt() (int32, error) {
	if err := in.readFully(in.buf[:4]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(in.buf[:4])), nil
}

func (in *dataInput) readLong() (uint64, error) {
	if err := in.readFully(in.buf[:8]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(in.buf[:8]), nil
}

func (in *dataInput) readDouble() (float64, error) {
	bits, err := in.readLong()
	return doubleFromBits(bits), err
}

// readVarInt inverts writeVarInt. A fifth continuation byte means the
// encoding cannot be a 32-bit value and fails the bundle.
func (in *dataInput) readVarInt() (uint32, error) {
	var v uint32
	for shift := uint(0); shift < 5*7; shift += 7 {
		b, err := in.readByte()
		if err != nil {
			return 0, err
		}
		v |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, nil
		}
	}
	return 0, apierrors.NewCorruptBundle(in.offset, "variable-length integer exceeds five bytes")
}

func (in *dataInput) readString() (string, error) {
	n, err := in.readVarInt()
	if err != nil {
		return "", err
	}
	if n > maxStringLength {
		return "", apierrors.NewCorruptBundle(in.offset, "string length %d out of range", n)
	}
	p := make([]byte, n)
	if err := in.readFully(p); err != nil {
		return "", err
	}
	return string(p), nil
}

const maxStringLength = 0x1000000 // 16m, far beyond any sane name or id

func doubleBits(v float64) uint64     { return math.Float64bits(v) }
func doubleFromBits(b uint64) float64 { return math.Float64frombits(b) }
