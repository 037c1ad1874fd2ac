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

package kvstore

import (
	"context"
	"errors"
)

const defaultCF = CF("default")

var ErrNotFound = errors.New("key not found")

type (
	CF string

	// Store is the key-value engine behind the bundle store. One column
	// family per concern: serialized bundles and node reference blocks.
	Store interface {
		Get(ctx context.Context, col CF, key []byte, readOpt ReadOption) (value ValueGetter, err error)
		GetRaw(ctx context.Context, col CF, key []byte, readOpt ReadOption) (value []byte, err error)
		SetRaw(ctx context.Context, col CF, key []byte, value []byte, writeOpt WriteOption) error
		Delete(ctx context.Context, col CF, key []byte, writeOpt WriteOption) error
		List(ctx context.Context, col CF, prefix []byte, marker []byte, readOpt ReadOption) ListReader
		Write(ctx context.Context, batch WriteBatch, writeOpt WriteOption) error
		NewWriteBatch() WriteBatch
		NewReadOption() ReadOption
		NewWriteOption() WriteOption
		FlushCF(ctx context.Context, col CF) error
		Close()
	}
	ListReader interface {
		ReadNext() (key KeyGetter, val ValueGetter, err error)
		ReadNextCopy() (key []byte, value []byte, err error)
		Close()
	}
	KeyGetter interface {
		Key() []byte
		Close()
	}
	ValueGetter interface {
		Value() []byte
		Size() int
		Close() error
	}
	ReadOption interface {
		Close()
	}
	WriteOption interface {
		SetSync(value bool)
		Close()
	}
	WriteBatch interface {
		Put(col CF, key, value []byte)
		Delete(col CF, key []byte)
		DeleteRange(col CF, startKey, endKey []byte)
		Close()
	}

	Option struct {
		ColumnFamily    []CF   `json:"column_family"`
		CreateIfMissing bool   `json:"create_if_missing"`
		Sync            bool   `json:"sync"`
		BlockSize       int    `json:"block_size"`
		BlockCache      uint64 `json:"block_cache"`
		WriteBufferSize int    `json:"write_buffer_size"`
		MaxOpenFiles    int    `json:"max_open_files"`
	}
)

func (c CF) String() string {
	return string(c)
}

// NewKVStore opens (or creates) the rocksdb instance at path with the
// configured column families.
func NewKVStore(ctx context.Context, path string, option *Option) (Store, error) {
	return newRocksdb(ctx, path, option)
}
