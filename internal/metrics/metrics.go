package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	subsystem = "ingest"
	// DefaultNamespace 未配置 metrics.namespace 时使用
	DefaultNamespace = "replay_ingest"
)

// Metrics 上传处理链路的 Prometheus 指标
type Metrics struct {
	doublePuts         prometheus.Counter
	misclassified      prometheus.Counter
	malformedKeys      prometheus.Counter
	statusTransitions  *prometheus.CounterVec
	processingDuration prometheus.Histogram
	resizeOps          *prometheus.CounterVec
	streamShards       prometheus.Gauge
	canaryOutcomes     *prometheus.CounterVec
	requeued           *prometheus.CounterVec
	reapedOrphans      prometheus.Counter
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default 返回注册在默认 Registerer 上的共享实例
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer, DefaultNamespace)
	})
	return defaultMetrics
}

// New 创建并注册指标，重复注册时复用已有的 collector
func New(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	return &Metrics{
		doublePuts: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "double_puts_total",
			Help:      "Raw uploads delivered again after an event already existed.",
		})),
		misclassified: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "misclassified_uploads_total",
			Help:      "NEW raw uploads whose objects were already moved to the failed zone.",
		})),
		malformedKeys: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "malformed_keys_total",
			Help:      "Deliveries dropped because the object key did not match any upload zone.",
		})),
		statusTransitions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "upload_status_total",
			Help:      "Upload events reaching each status.",
		}, []string{"status"})),
		processingDuration: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "processing_duration_seconds",
			Help:      "Time spent processing a single raw upload.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		})),
		resizeOps: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "resize_operations_total",
			Help:      "Shard split and merge operations issued by the capacity controller.",
		}, []string{"operation"})),
		streamShards: register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "open_shards",
			Help:      "Open shard count observed after the last resize.",
		})),
		canaryOutcomes: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "canary",
			Name:      "deployments_total",
			Help:      "Canary deployment outcomes.",
		}, []string{"outcome"})),
		requeued: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requeued_uploads_total",
			Help:      "Raw uploads republished to the processing stream.",
		}, []string{"source"})),
		reapedOrphans: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "reaped_orphan_descriptors_total",
			Help:      "Descriptors deleted because their upload never arrived.",
		})),
	}
}

func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(T); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

// IncDoublePut 记录一次重复投递
func (m *Metrics) IncDoublePut() {
	if m == nil {
		return
	}
	m.doublePuts.Inc()
}

// IncMisclassified 记录一次误分类的原始上传
func (m *Metrics) IncMisclassified() {
	if m == nil {
		return
	}
	m.misclassified.Inc()
}

// IncMalformedKey 记录一次无法识别的对象键
func (m *Metrics) IncMalformedKey() {
	if m == nil {
		return
	}
	m.malformedKeys.Inc()
}

// ObserveStatus 记录事件进入的状态
func (m *Metrics) ObserveStatus(status string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(status).Inc()
}

// ObserveProcessing 记录单个上传的处理耗时
func (m *Metrics) ObserveProcessing(d time.Duration) {
	if m == nil {
		return
	}
	m.processingDuration.Observe(d.Seconds())
}

// IncResize 记录一次 split 或 merge
func (m *Metrics) IncResize(operation string) {
	if m == nil {
		return
	}
	m.resizeOps.WithLabelValues(operation).Inc()
}

// SetOpenShards 记录当前开放分片数
func (m *Metrics) SetOpenShards(n int) {
	if m == nil {
		return
	}
	m.streamShards.Set(float64(n))
}

// ObserveCanary 记录金丝雀发布结果
func (m *Metrics) ObserveCanary(outcome string) {
	if m == nil {
		return
	}
	m.canaryOutcomes.WithLabelValues(outcome).Inc()
}

// AddRequeued 记录重新投递的数量
func (m *Metrics) AddRequeued(source string, n int) {
	if m == nil {
		return
	}
	m.requeued.WithLabelValues(source).Add(float64(n))
}

// AddReapedOrphans 记录清理的孤立描述文件数量
func (m *Metrics) AddReapedOrphans(n int) {
	if m == nil {
		return
	}
	m.reapedOrphans.Add(float64(n))
}
