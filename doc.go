/*
 *
 * Copyright 2023 BundleDB authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

/*

# BundleDB: a hierarchical, typed, versioned content store core

## Data Model

* Node, a 128-bit id --> typed state: primary type, parent link, ordered child entries, property names, shared-parent set

* Property, <parent id, name> --> typed values (string, binary, long, double, decimal, date, boolean, name, path, reference, weakreference, uri)

* Path, ordered steps with 1-based same-name-sibling indexes

* Bundle, the persistence unit: one node with all its inlined properties, serialized by a compact self-describing binary codec

## Architecture

* bundle - the bundle codec: varint primitives, a well-known-name table, a seven-slot per-bundle namespace intern table and a tiered binary placement policy (inline / blob store / data store)

* state - in-memory item states and the structural listener contract

* hierarchy - the caching hierarchy manager, mapping ids to paths and paths to item ids, kept coherent by listening on every node state it touches

* privilege - the privilege registry with cycle and equivalence validation over aggregate definitions

* blob - filesystem blob store and content-addressed data store

* persistence - bundles in rocksdb, one record per node, plus reference blocks and a consistency sweep

## Building Blocks

* Rocksdb
* Prometheus

*/

package bundledb
