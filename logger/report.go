package logger

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type channelStat struct {
	messages int64
	bytes    int64
}

var (
	warnCounts  sync.Map // component -> *int64
	errorCounts sync.Map // component -> *int64
	channels    sync.Map // name -> *channelStat

	fixInbound   int64
	fixOutbound  int64
	quotesOut    int64
	s3Writes     int64
	entryAnomaly int64
)

func bump(m *sync.Map, key string) {
	if key == "" {
		key = "unknown"
	}
	v, _ := m.LoadOrStore(key, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordWarn(component string)  { bump(&warnCounts, component) }
func recordError(component string) { bump(&errorCounts, component) }

// IncrementFIXInbound counts one received FIX message of the given type.
func IncrementFIXInbound(msgType string, size int) {
	atomic.AddInt64(&fixInbound, 1)
	recordChannel("fix_in_"+msgType, size)
}

// IncrementFIXOutbound counts one sent FIX message.
func IncrementFIXOutbound(size int) {
	atomic.AddInt64(&fixOutbound, 1)
	recordChannel("fix_out", size)
}

// IncrementQuotePublished counts one quote handed to downstream consumers.
func IncrementQuotePublished() {
	atomic.AddInt64(&quotesOut, 1)
}

// IncrementEntryAnomaly counts one malformed or unusable market data entry.
func IncrementEntryAnomaly() {
	atomic.AddInt64(&entryAnomaly, 1)
}

// IncrementS3Write counts one archived parquet object.
func IncrementS3Write(size int64) {
	atomic.AddInt64(&s3Writes, 1)
	recordChannel("s3_quote_write", int(size))
}

func RecordChannelMessage(name string, size int) {
	recordChannel(name, size)
}

func recordChannel(name string, size int) {
	v, _ := channels.LoadOrStore(name, &channelStat{})
	cs := v.(*channelStat)
	atomic.AddInt64(&cs.messages, 1)
	atomic.AddInt64(&cs.bytes, int64(size))
}

func snapshotCounts(m *sync.Map) map[string]int64 {
	out := map[string]int64{}
	m.Range(func(k, v any) bool {
		out[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	return out
}

// Counters returns the FIX counters included in the runtime report.
func Counters() map[string]int64 {
	return map[string]int64{
		"fix_inbound":     atomic.LoadInt64(&fixInbound),
		"fix_outbound":    atomic.LoadInt64(&fixOutbound),
		"quotes":          atomic.LoadInt64(&quotesOut),
		"s3_writes":       atomic.LoadInt64(&s3Writes),
		"entry_anomalies": atomic.LoadInt64(&entryAnomaly),
	}
}

// StartReport begins periodic logging of host, channel and FIX statistics.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPct := 0.0
	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		cpuPct = pct[0]
	}
	memUsedMB := 0.0
	if vm, err := mem.VirtualMemory(); err == nil {
		memUsedMB = float64(vm.Used) / 1024 / 1024
	}
	var bytesSent, bytesRecv uint64
	if netStats, err := gnet.IOCounters(false); err == nil && len(netStats) > 0 {
		bytesSent = netStats[0].BytesSent
		bytesRecv = netStats[0].BytesRecv
	}

	channelData := map[string]map[string]int64{}
	channels.Range(func(k, v any) bool {
		cs := v.(*channelStat)
		channelData[k.(string)] = map[string]int64{
			"messages": atomic.LoadInt64(&cs.messages),
			"bytes":    atomic.LoadInt64(&cs.bytes),
		}
		return true
	})

	counters := Counters()
	fields := Fields{
		"warns":          snapshotCounts(&warnCounts),
		"errors":         snapshotCounts(&errorCounts),
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memUsedMB),
		"channels":       channelData,
		"net_bytes_sent": int64(bytesSent),
		"net_bytes_recv": int64(bytesRecv),
	}
	for k, v := range counters {
		fields[k] = v
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memUsedMB)},
		{MetricName: aws.String("NetBytesSent"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesSent))},
		{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	}

	names := make([]string, 0, len(counters))
	for k := range counters {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(k),
			Unit:       cwtypes.StandardUnitCount,
			Value:      aws.Float64(float64(counters[k])),
		})
	}

	for name, stats := range channelData {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("ChannelMessages"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Channel"), Value: aws.String(name)}},
			Value:      aws.Float64(float64(stats["messages"])),
		})
	}

	publishMetrics(ctx, data)
}
