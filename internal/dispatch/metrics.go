package dispatch

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"luach/internal/types"
)

const metricsNamespace = "Luach/Reminders"

// CloudWatchAPI is the slice of the CloudWatch client the metrics sink uses.
type CloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics publishes per-run send tallies. Emission failures are
// logged and swallowed; a metrics outage must never fail a reminder run.
type CloudWatchMetrics struct {
	client CloudWatchAPI
	log    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatch-backed RunMetrics sink.
func NewCloudWatchMetrics(client CloudWatchAPI, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{client: client, log: logger}
}

// NewMetrics builds the RunMetrics sink for a worker: a CloudWatch client in
// the given region when enabled, NoopMetrics otherwise.
func NewMetrics(ctx context.Context, enabled bool, region string, logger types.Logger) (RunMetrics, error) {
	if !enabled {
		return NoopMetrics{}, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamUnavailable,
			"failed to load AWS configuration for metrics", err)
	}
	return NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), logger), nil
}

// RecordRun emits MessagesSent and MessagesFailed datapoints dimensioned by
// engine name.
func (m *CloudWatchMetrics) RecordRun(ctx context.Context, engine string, sent, failed int) {
	now := time.Now()
	dims := []cwtypes.Dimension{
		{Name: aws.String("Engine"), Value: aws.String(engine)},
	}
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(metricsNamespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("MessagesSent"),
				Timestamp:  aws.Time(now),
				Value:      aws.Float64(float64(sent)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
			{
				MetricName: aws.String("MessagesFailed"),
				Timestamp:  aws.Time(now),
				Value:      aws.Float64(float64(failed)),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: dims,
			},
		},
	})
	if err != nil {
		m.log.Warn("failed to publish run metrics", "engine", engine, "error", err.Error())
	}
}
