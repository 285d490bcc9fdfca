package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

const (
	// CloudWatch accepts at most 1000 data points per PutMetricData call;
	// batches are kept small so a flush never blocks a Lambda invocation.
	cloudWatchBatchSize   = 20
	cloudWatchBufferSize  = 100
	cloudWatchFlushPeriod = 10 * time.Second
	cloudWatchPutTimeout  = 5 * time.Second
)

// MetricDataPutter is the subset of the CloudWatch client used for publishing.
type MetricDataPutter interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements types.Metrics by buffering data points and
// publishing them in batches from a background goroutine. Data points are
// dropped when the buffer is full.
type CloudWatchMetrics struct {
	client    MetricDataPutter
	namespace string
	component string

	bufferCh chan cwtypes.MetricDatum
	done     chan struct{}
	stopped  chan struct{}
	once     sync.Once

	mu         sync.Mutex
	inProgress map[string]float64
}

// NewCloudWatch creates a CloudWatch collector for a component and starts
// its flusher. Close must be called to publish the remaining data points.
func NewCloudWatch(client MetricDataPutter, namespace, component string) *CloudWatchMetrics {
	m := &CloudWatchMetrics{
		client:     client,
		namespace:  namespace,
		component:  component,
		bufferCh:   make(chan cwtypes.MetricDatum, cloudWatchBufferSize),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		inProgress: make(map[string]float64),
	}

	go m.backgroundFlusher()

	return m
}

func (m *CloudWatchMetrics) RecordSuccess(operationType string) {
	m.enqueue("Processed", 1, cwtypes.StandardUnitCount, map[string]string{
		"status": "success",
		"type":   operationType,
	})
}

func (m *CloudWatchMetrics) RecordError(operationType string, errorType string) {
	m.enqueue("Processed", 1, cwtypes.StandardUnitCount, map[string]string{
		"status": "error",
		"type":   operationType,
	})
	m.enqueue("Errors", 1, cwtypes.StandardUnitCount, map[string]string{
		"error_type": errorType,
		"operation":  operationType,
	})
}

func (m *CloudWatchMetrics) RecordDuration(operation string, duration float64) {
	m.enqueue("Duration", duration, cwtypes.StandardUnitSeconds, map[string]string{
		"operation": operation,
	})
}

func (m *CloudWatchMetrics) RecordPayloadSize(kind string, bytes int64) {
	m.enqueue("PayloadSize", float64(bytes), cwtypes.StandardUnitBytes, map[string]string{
		"kind": kind,
	})
}

func (m *CloudWatchMetrics) StartOperation(operation string) {
	m.recordInProgress(operation, 1)
}

func (m *CloudWatchMetrics) EndOperation(operation string) {
	m.recordInProgress(operation, -1)
}

// Close stops the flusher and publishes buffered data points.
func (m *CloudWatchMetrics) Close() error {
	m.once.Do(func() {
		close(m.done)
		<-m.stopped
	})
	return nil
}

func (m *CloudWatchMetrics) recordInProgress(operation string, delta float64) {
	m.mu.Lock()
	m.inProgress[operation] += delta
	value := m.inProgress[operation]
	m.mu.Unlock()

	m.enqueue("InProgress", value, cwtypes.StandardUnitCount, map[string]string{
		"operation": operation,
	})
}

func (m *CloudWatchMetrics) enqueue(name string, value float64, unit cwtypes.StandardUnit, dims map[string]string) {
	dimensions := make([]cwtypes.Dimension, 0, len(dims)+1)
	dimensions = append(dimensions, cwtypes.Dimension{
		Name:  aws.String("component"),
		Value: aws.String(m.component),
	})
	for k, v := range dims {
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	datum := cwtypes.MetricDatum{
		MetricName: aws.String(name),
		Value:      aws.Float64(value),
		Unit:       unit,
		Timestamp:  aws.Time(time.Now()),
		Dimensions: dimensions,
	}

	select {
	case m.bufferCh <- datum:
	default:
		// buffer full
	}
}

func (m *CloudWatchMetrics) backgroundFlusher() {
	defer close(m.stopped)

	ticker := time.NewTicker(cloudWatchFlushPeriod)
	defer ticker.Stop()

	buffer := make([]cwtypes.MetricDatum, 0, cloudWatchBatchSize)

	for {
		select {
		case datum := <-m.bufferCh:
			buffer = append(buffer, datum)
			if len(buffer) >= cloudWatchBatchSize {
				m.flush(buffer)
				buffer = make([]cwtypes.MetricDatum, 0, cloudWatchBatchSize)
			}

		case <-ticker.C:
			if len(buffer) > 0 {
				m.flush(buffer)
				buffer = make([]cwtypes.MetricDatum, 0, cloudWatchBatchSize)
			}

		case <-m.done:
			for {
				select {
				case datum := <-m.bufferCh:
					buffer = append(buffer, datum)
					if len(buffer) >= cloudWatchBatchSize {
						m.flush(buffer)
						buffer = make([]cwtypes.MetricDatum, 0, cloudWatchBatchSize)
					}
				default:
					if len(buffer) > 0 {
						m.flush(buffer)
					}
					return
				}
			}
		}
	}
}

func (m *CloudWatchMetrics) flush(data []cwtypes.MetricDatum) {
	ctx, cancel := context.WithTimeout(context.Background(), cloudWatchPutTimeout)
	defer cancel()

	_, _ = m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(m.namespace),
		MetricData: data,
	})
}
