// Package metrics collects business metrics for the question-answering service.
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// QAMetrics holds service-wide counters. All counters are atomic; duration
// accumulators take a mutex because float64 has no atomic add.
type QAMetrics struct {
	queriesTotal       uint64
	queriesCacheHits   uint64
	queriesCacheMisses uint64
	queriesNoMatch     uint64
	queriesErrors      uint64

	retrievalTotal    uint64
	retrievalDuration float64
	retrievalErrors   uint64

	generationTotal    uint64
	generationDuration float64
	generationDegraded uint64

	documentsIndexed uint64
	chunksIndexed    uint64
	indexErrors      uint64
	documentsDeleted uint64

	startTime  time.Time
	durationMu sync.Mutex
}

var (
	globalQAMetrics *QAMetrics
	qaMetricsOnce   sync.Once
)

// GetQAMetrics returns the process-wide metrics instance.
func GetQAMetrics() *QAMetrics {
	qaMetricsOnce.Do(func() {
		globalQAMetrics = &QAMetrics{
			startTime: time.Now(),
		}
	})
	return globalQAMetrics
}

// RecordQuery records one finished query.
func (m *QAMetrics) RecordQuery(cacheHit bool, err error) {
	atomic.AddUint64(&m.queriesTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.queriesErrors, 1)
		return
	}
	if cacheHit {
		atomic.AddUint64(&m.queriesCacheHits, 1)
	} else {
		atomic.AddUint64(&m.queriesCacheMisses, 1)
	}
}

// RecordNoMatch records a query that retrieved nothing and short-circuited.
func (m *QAMetrics) RecordNoMatch() {
	atomic.AddUint64(&m.queriesNoMatch, 1)
}

// RecordRetrieval records one vector search.
func (m *QAMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordGeneration records one generation call. A degraded call produced the
// placeholder answer instead of model output.
func (m *QAMetrics) RecordGeneration(duration time.Duration, degraded bool) {
	atomic.AddUint64(&m.generationTotal, 1)
	if degraded {
		atomic.AddUint64(&m.generationDegraded, 1)
		return
	}

	m.durationMu.Lock()
	m.generationDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordIndexing records one indexing operation.
func (m *QAMetrics) RecordIndexing(documents, chunks int, err error) {
	if err != nil {
		atomic.AddUint64(&m.indexErrors, 1)
		return
	}
	atomic.AddUint64(&m.documentsIndexed, uint64(documents))
	atomic.AddUint64(&m.chunksIndexed, uint64(chunks))
}

// RecordDeletion records one document deletion.
func (m *QAMetrics) RecordDeletion() {
	atomic.AddUint64(&m.documentsDeleted, 1)
}

// Export renders the metrics in Prometheus text exposition format.
func (m *QAMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	writeCounter := func(name, help string, value uint64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %d\n\n", prefix, name, value))
	}
	writeGauge := func(name, help string, value float64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s gauge\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %.4f\n\n", prefix, name, value))
	}

	writeCounter("queries_total", "Total number of queries.", atomic.LoadUint64(&m.queriesTotal))
	writeCounter("queries_cache_hits_total", "Number of cache hits.", atomic.LoadUint64(&m.queriesCacheHits))
	writeCounter("queries_cache_misses_total", "Number of cache misses.", atomic.LoadUint64(&m.queriesCacheMisses))
	writeCounter("queries_no_match_total", "Queries answered without grounding material.", atomic.LoadUint64(&m.queriesNoMatch))
	writeCounter("queries_errors_total", "Number of query errors.", atomic.LoadUint64(&m.queriesErrors))

	cacheHits := atomic.LoadUint64(&m.queriesCacheHits)
	cacheMisses := atomic.LoadUint64(&m.queriesCacheMisses)
	cacheHitRate := 0.0
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}
	writeGauge("cache_hit_rate", "Cache hit rate (0-1).", cacheHitRate)

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	generationDuration := m.generationDuration
	m.durationMu.Unlock()

	writeCounter("retrieval_total", "Total number of vector searches.", atomic.LoadUint64(&m.retrievalTotal))
	writeGauge("retrieval_duration_seconds_total", "Total retrieval duration.", retrievalDuration)
	writeCounter("retrieval_errors_total", "Number of retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))

	writeCounter("generation_total", "Total number of generation calls.", atomic.LoadUint64(&m.generationTotal))
	writeGauge("generation_duration_seconds_total", "Total generation duration.", generationDuration)
	writeCounter("generation_degraded_total", "Generation calls that fell back to the placeholder answer.", atomic.LoadUint64(&m.generationDegraded))

	writeCounter("documents_indexed_total", "Total documents indexed.", atomic.LoadUint64(&m.documentsIndexed))
	writeCounter("chunks_indexed_total", "Total chunks indexed.", atomic.LoadUint64(&m.chunksIndexed))
	writeCounter("index_errors_total", "Number of indexing errors.", atomic.LoadUint64(&m.indexErrors))
	writeCounter("documents_deleted_total", "Total documents deleted.", atomic.LoadUint64(&m.documentsDeleted))

	writeGauge("uptime_seconds", "Service uptime in seconds.", time.Since(m.startTime).Seconds())

	return sb.String()
}

// Stats returns the current counters as a nested map for the stats endpoint.
func (m *QAMetrics) Stats() map[string]any {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	generationDuration := m.generationDuration
	m.durationMu.Unlock()

	cacheHits := atomic.LoadUint64(&m.queriesCacheHits)
	cacheMisses := atomic.LoadUint64(&m.queriesCacheMisses)
	cacheHitRate := 0.0
	if total := cacheHits + cacheMisses; total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrievalDuration := 0.0
	if retrievalTotal > 0 {
		avgRetrievalDuration = retrievalDuration / float64(retrievalTotal)
	}

	generationTotal := atomic.LoadUint64(&m.generationTotal)
	avgGenerationDuration := 0.0
	if generationTotal > 0 {
		avgGenerationDuration = generationDuration / float64(generationTotal)
	}

	return map[string]any{
		"queries": map[string]any{
			"total":          atomic.LoadUint64(&m.queriesTotal),
			"cache_hits":     cacheHits,
			"cache_misses":   cacheMisses,
			"cache_hit_rate": cacheHitRate,
			"no_match":       atomic.LoadUint64(&m.queriesNoMatch),
			"errors":         atomic.LoadUint64(&m.queriesErrors),
		},
		"retrieval": map[string]any{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrievalDuration,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"generation": map[string]any{
			"total":               generationTotal,
			"total_duration_secs": generationDuration,
			"avg_duration_secs":   avgGenerationDuration,
			"degraded":            atomic.LoadUint64(&m.generationDegraded),
		},
		"indexing": map[string]any{
			"documents_indexed": atomic.LoadUint64(&m.documentsIndexed),
			"chunks_indexed":    atomic.LoadUint64(&m.chunksIndexed),
			"documents_deleted": atomic.LoadUint64(&m.documentsDeleted),
			"errors":            atomic.LoadUint64(&m.indexErrors),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset zeroes all counters. Test helper.
func (m *QAMetrics) Reset() {
	atomic.StoreUint64(&m.queriesTotal, 0)
	atomic.StoreUint64(&m.queriesCacheHits, 0)
	atomic.StoreUint64(&m.queriesCacheMisses, 0)
	atomic.StoreUint64(&m.queriesNoMatch, 0)
	atomic.StoreUint64(&m.queriesErrors, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.generationTotal, 0)
	atomic.StoreUint64(&m.generationDegraded, 0)
	atomic.StoreUint64(&m.documentsIndexed, 0)
	atomic.StoreUint64(&m.chunksIndexed, 0)
	atomic.StoreUint64(&m.indexErrors, 0)
	atomic.StoreUint64(&m.documentsDeleted, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.generationDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
