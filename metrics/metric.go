package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()

	BundleWriteSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "BundleDB",
		Name:      "bundle_write_bytes",
		Help:      "serialized bundle sizes",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
	})
	BundleReadSize = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "BundleDB",
		Name:      "bundle_read_bytes",
		Help:      "deserialized bundle sizes",
		Buckets:   prometheus.ExponentialBuckets(64, 4, 10),
	})
	BinaryPlacement = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "BundleDB",
		Name:      "binary_placement_total",
		Help:      "binary values by placement tier",
	}, []string{"tier"})

	HierarchyCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "BundleDB",
		Name:      "hierarchy_cache_hits_total",
		Help:      "path or id resolutions answered from the hierarchy cache",
	})
	HierarchyCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "BundleDB",
		Name:      "hierarchy_cache_misses_total",
		Help:      "path or id resolutions that required a fresh walk",
	})
	HierarchyCacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "BundleDB",
		Name:      "hierarchy_cache_evictions_total",
		Help:      "cache entries evicted by structural events",
	})

	BundleLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "BundleDB",
		Name:      "bundle_loads_total",
		Help:      "bundle loads from the persistence store",
	}, []string{"result"})
)

func init() {
	Registry.MustRegister(
		BundleWriteSize,
		BundleReadSize,
		BinaryPlacement,
		HierarchyCacheHits,
		HierarchyCacheMisses,
		HierarchyCacheEvictions,
		BundleLoads,
	)
}
