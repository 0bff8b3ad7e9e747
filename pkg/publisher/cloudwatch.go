package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/vipdiag/vipdiag/pkg/models"
)

// CloudWatch caps PutMetricData at 20 datapoints per call.
const cloudWatchBatchSize = 20

var errNamespaceRequired = errors.New("cloudwatch namespace is required")

// CloudWatchConfig configures the CloudWatch publisher.
type CloudWatchConfig struct {
	Namespace string `json:"namespace"`
	Region    string `json:"region,omitempty"`
	// RequestsPerSecond throttles PutMetricData calls; zero disables
	// throttling.
	RequestsPerSecond float64 `json:"requests_per_second,omitempty"`
}

// cloudWatchAPI is the slice of the CloudWatch client the publisher
// uses, kept narrow for tests.
type cloudWatchAPI interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput,
		optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchPublisher ships points to CloudWatch in batches, with point
// tags mapped to metric dimensions.
type CloudWatchPublisher struct {
	client    cloudWatchAPI
	namespace string
	limiter   *rate.Limiter
	logger    *zap.Logger
}

func NewCloudWatchPublisher(ctx context.Context, cfg *CloudWatchConfig, logger *zap.Logger) (*CloudWatchPublisher, error) {
	if cfg.Namespace == "" {
		return nil, errNamespaceRequired
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newCloudWatchPublisher(cloudwatch.NewFromConfig(awsCfg), cfg, logger), nil
}

func newCloudWatchPublisher(client cloudWatchAPI, cfg *CloudWatchConfig, logger *zap.Logger) *CloudWatchPublisher {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &CloudWatchPublisher{
		client:    client,
		namespace: cfg.Namespace,
		limiter:   limiter,
		logger:    logger.Named("cloudwatch"),
	}
}

func (p *CloudWatchPublisher) Publish(ctx context.Context, points []models.MetricPoint) error {
	for start := 0; start < len(points); start += cloudWatchBatchSize {
		end := start + cloudWatchBatchSize
		if end > len(points) {
			end = len(points)
		}

		if err := p.putBatch(ctx, points[start:end]); err != nil {
			return err
		}
	}

	return nil
}

func (p *CloudWatchPublisher) Close() error { return nil }

func (p *CloudWatchPublisher) putBatch(ctx context.Context, batch []models.MetricPoint) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	data := make([]cwtypes.MetricDatum, 0, len(batch))

	for i := range batch {
		point := &batch[i]

		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String(point.Name),
			Timestamp:  aws.Time(point.Timestamp),
			Value:      aws.Float64(point.Value),
			Dimensions: dimensions(point),
		})
	}

	input := &cloudwatch.PutMetricDataInput{
		Namespace:  aws.String(p.namespace),
		MetricData: data,
	}

	if _, err := p.client.PutMetricData(ctx, input); err != nil {
		return fmt.Errorf("failed to put metric data: %w", err)
	}

	p.logger.Debug("published batch", zap.Int("datapoints", len(data)))

	return nil
}

// dimensions maps the point's run id, source and tags to CloudWatch
// dimensions.
func dimensions(point *models.MetricPoint) []cwtypes.Dimension {
	dims := []cwtypes.Dimension{
		{Name: aws.String("RunID"), Value: aws.String(point.RunID)},
		{Name: aws.String("Source"), Value: aws.String(string(point.Source))},
	}

	for k, v := range point.Tags {
		dims = append(dims, cwtypes.Dimension{
			Name:  aws.String(k),
			Value: aws.String(v),
		})
	}

	return dims
}
