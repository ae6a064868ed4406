package aws

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metric is a single datum pushed to CloudWatch.
type Metric struct {
	Name       string
	Value      float64
	Unit       cwtypes.StandardUnit
	Dimensions map[string]string
}

// MetricsRecorder pushes custom metrics into one CloudWatch namespace.
type MetricsRecorder struct {
	client    CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

func NewMetricsRecorder(client CloudWatchAPI, namespace string) *MetricsRecorder {
	return &MetricsRecorder{
		client:    client,
		namespace: namespace,
		nowFunc:   time.Now,
	}
}

// Put sends all metrics in a single PutMetricData call.
func (r *MetricsRecorder) Put(ctx context.Context, metrics ...Metric) error {
	if len(metrics) == 0 {
		return nil
	}
	now := r.nowFunc()
	data := make([]cwtypes.MetricDatum, 0, len(metrics))
	for _, m := range metrics {
		datum := cwtypes.MetricDatum{
			MetricName: &m.Name,
			Value:      &m.Value,
			Unit:       m.Unit,
			Timestamp:  &now,
		}
		for k, v := range m.Dimensions {
			datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{
				Name:  awsString(k),
				Value: awsString(v),
			})
		}
		data = append(data, datum)
	}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &r.namespace,
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}
