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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cubefs/cubefs/blobstore/common/config"
	"github.com/cubefs/cubefs/blobstore/util/log"

	"github.com/contentlake/bundledb/blob"
	"github.com/contentlake/bundledb/bundle"
	"github.com/contentlake/bundledb/namespace"
	"github.com/contentlake/bundledb/persistence"
	"github.com/contentlake/bundledb/proto"
)

// Config tool config
type Config struct {
	StoreConfig persistence.StoreConfig `json:"store_config"`
	BlobConfig  blob.FsConfig           `json:"blob_config"`
	MinBlobSize int64                   `json:"min_blob_size"`
	LogLevel    log.Level               `json:"log_level"`
}

func main() {
	config.Init("f", "", "bundletool.json")

	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		log.Fatal(err)
	}
	log.SetOutputLevel(cfg.LogLevel)

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	ctx := context.Background()
	store, err := persistence.NewStore(ctx, &cfg.StoreConfig)
	if err != nil {
		log.Fatalf("open store: %s", err)
	}
	defer store.Close()

	blobStore, err := blob.NewFsBlobStore(&cfg.BlobConfig)
	if err != nil {
		log.Fatalf("open blob store: %s", err)
	}
	defer blobStore.Close()

	binding := bundle.NewBinding(blobStore)
	if cfg.MinBlobSize > 0 {
		binding.MinBlobSize = cfg.MinBlobSize
	}
	mgr := persistence.NewManager(store, binding)

	switch args[0] {
	case "dump":
		if len(args) != 2 {
			usage()
		}
		id, err := proto.ParseNodeID(args[1])
		if err != nil {
			log.Fatalf("bad node id %q: %s", args[1], err)
		}
		b, err := mgr.LoadBundle(ctx, id)
		if err != nil {
			log.Fatalf("load bundle: %s", err)
		}
		dump(b)
	case "check":
		report, err := mgr.CheckConsistency(ctx)
		if err != nil {
			log.Fatalf("consistency check: %s", err)
		}
		fmt.Printf("checked %d bundles: %d corrupt, %d missing parents, %d missing children\n",
			report.Checked, report.Corrupt, report.MissingParents, report.MissingChildren)
	default:
		usage()
	}
}

func dump(b *bundle.NodeBundle) {
	ns := namespace.NewRegistry()
	fmt.Printf("node %s\n", b.ID)
	fmt.Printf("  primary type: %s\n", prefixed(ns, b.PrimaryType))
	if !b.ParentID.IsZero() {
		fmt.Printf("  parent: %s\n", b.ParentID)
	}
	for _, mixin := range b.MixinTypes {
		fmt.Printf("  mixin: %s\n", prefixed(ns, mixin))
	}
	fmt.Printf("  referenceable: %t, mod count: %d, size: %d\n", b.Referenceable, b.ModCount, b.Size())
	for _, p := range b.Properties {
		fmt.Printf("  property %s (%s", prefixed(ns, p.ID.Name), proto.TypeLabel(p.Type))
		if p.MultiValued {
			fmt.Printf(", %d values", len(p.Values))
		}
		fmt.Printf(")\n")
		for _, v := range p.Values {
			fmt.Printf("    %s\n", v)
		}
	}
	for _, c := range b.ChildEntries {
		fmt.Printf("  child %s -> %s\n", prefixed(ns, c.Name), c.ID)
	}
	for _, s := range b.SharedSet {
		fmt.Printf("  shared parent %s\n", s)
	}
}

// prefixed renders a name with its registered namespace prefix when one
// exists, the expanded form otherwise.
func prefixed(ns *namespace.Registry, name proto.Name) string {
	prefix, ok := ns.GetPrefix(name.Namespace)
	if !ok {
		return name.String()
	}
	if prefix == "" {
		return name.Local
	}
	return prefix + ":" + name.Local
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: bundletool [-f config] dump <node-id> | check\n")
	os.Exit(2)
}
