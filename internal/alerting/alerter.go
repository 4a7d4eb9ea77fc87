// internal/alerting/alerter.go
package alerting

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	commonaws "finqa-retrieval/internal/common/aws"
	"finqa-retrieval/internal/common/logger"
	applyguardrails "finqa-retrieval/internal/stages/apply-guardrails"
)

// Alert kinds. Cooldown is tracked per kind, so an empty-rate storm does not
// silence a distinct low-score alert.
const (
	KindEmptyRate    = "empty_rate"
	KindLowScoreRate = "low_score_rate"
)

// Define interfaces for mocking
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Alert is one quality breach detected in the recorder window.
type Alert struct {
	Kind      string
	Rate      float64
	Threshold float64
	Stats     applyguardrails.SummaryStats
}

func (a Alert) subject() string {
	return fmt.Sprintf("[finqa-retrieval] %s breach: %.0f%% over window of %d", a.Kind, a.Rate*100, a.Stats.WindowSize)
}

func (a Alert) body() string {
	return fmt.Sprintf(
		"Retrieval quality alert: %s reached %.1f%% (threshold %.1f%%).\n\n"+
			"Window: %d retrievals (lifetime %d)\n"+
			"Average documents: %.1f\n"+
			"Average confidence: %.2f\n"+
			"Average latency: %.0fms\n",
		a.Kind, a.Rate*100, a.Threshold*100,
		a.Stats.WindowSize, a.Stats.TotalRecorded,
		a.Stats.AvgDocs, a.Stats.AvgConfidence, a.Stats.AvgElapsedMs,
	)
}

// Alerter raises quality alerts over SES and SNS. It only ever observes the
// recorder window; nothing here runs inside a retrieval request.
type Alerter struct {
	config    *Config
	logger    logger.Logger
	sesClient SESService
	snsClient SNSService

	mu        sync.Mutex
	lastAlert map[string]time.Time
	now       func() time.Time
}

func NewAlerter(config *Config, log logger.Logger) (*Alerter, error) {
	a := &Alerter{
		config:    config,
		logger:    log.WithFields(map[string]interface{}{"component": "alerting"}),
		lastAlert: make(map[string]time.Time),
		now:       time.Now,
	}

	ctx := context.Background()
	if config.EmailEnabled {
		client, err := commonaws.NewSESClient(ctx, config.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("ses client: %w", err)
		}
		a.sesClient = client
	}
	if config.TopicEnabled {
		client, err := commonaws.NewSNSClient(ctx, config.AWSRegion)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		a.snsClient = client
	}
	return a, nil
}

// Evaluate returns the alerts the window currently warrants, ignoring
// cooldowns. Windows below the minimum sample size never alert.
func (a *Alerter) Evaluate(stats applyguardrails.SummaryStats) []Alert {
	if stats.WindowSize < a.config.MinSampleSize {
		return nil
	}

	var alerts []Alert
	if stats.EmptyRate > a.config.EmptyRateThreshold {
		alerts = append(alerts, Alert{
			Kind:      KindEmptyRate,
			Rate:      stats.EmptyRate,
			Threshold: a.config.EmptyRateThreshold,
			Stats:     stats,
		})
	}
	if stats.LowScoreRate > a.config.LowScoreRateThreshold {
		alerts = append(alerts, Alert{
			Kind:      KindLowScoreRate,
			Rate:      stats.LowScoreRate,
			Threshold: a.config.LowScoreRateThreshold,
			Stats:     stats,
		})
	}
	return alerts
}

// CheckAndAlert evaluates the window and dispatches whatever is due. Send
// failures are logged and swallowed; a broken alert channel must never
// surface anywhere else.
func (a *Alerter) CheckAndAlert(ctx context.Context, stats applyguardrails.SummaryStats) {
	for _, alert := range a.Evaluate(stats) {
		if !a.takeSlot(alert.Kind) {
			a.logger.Debug("alert suppressed by cooldown", map[string]interface{}{
				"kind": alert.Kind,
			})
			continue
		}
		a.dispatch(ctx, alert)
	}
}

// takeSlot claims the cooldown slot for one alert kind. It returns false
// when a previous alert of the same kind is still cooling down.
func (a *Alerter) takeSlot(kind string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if last, ok := a.lastAlert[kind]; ok && now.Sub(last) < a.config.Cooldown {
		return false
	}
	a.lastAlert[kind] = now
	return true
}

func (a *Alerter) dispatch(ctx context.Context, alert Alert) {
	a.logger.Warn("retrieval quality alert", map[string]interface{}{
		"kind":      alert.Kind,
		"rate":      alert.Rate,
		"threshold": alert.Threshold,
		"window":    alert.Stats.WindowSize,
	})

	if a.config.EmailEnabled && a.sesClient != nil {
		if err := a.sendEmail(ctx, alert); err != nil {
			a.logger.Error("alert email failed", map[string]interface{}{
				"kind":  alert.Kind,
				"error": err.Error(),
			})
		}
	}

	if a.config.TopicEnabled && a.snsClient != nil {
		if err := a.publish(ctx, alert); err != nil {
			a.logger.Error("alert publish failed", map[string]interface{}{
				"kind":  alert.Kind,
				"error": err.Error(),
			})
		}
	}
}

func (a *Alerter) sendEmail(ctx context.Context, alert Alert) error {
	if len(a.config.Recipients) == 0 {
		return nil
	}

	_, err := a.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: a.config.Recipients,
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(alert.subject())},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(alert.body())},
			},
		},
		Source: aws.String(a.config.FromEmail),
	})
	return err
}

func (a *Alerter) publish(ctx context.Context, alert Alert) error {
	_, err := a.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(a.config.TopicARN),
		Subject:  aws.String(alert.subject()),
		Message:  aws.String(alert.body()),
	})
	return err
}
