package kafka

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitescout/sitescout/pkg/common/logger"
)

// ConnectWithRetry attempts to establish a producer connection to Kafka with
// exponential backoff. It will retry failed connection attempts for up to
// 5 minutes, starting with 5 second intervals. This helps handle temporary
// network issues or Kafka cluster unavailability during startup.
func ConnectWithRetry(cfg *Config, log *logger.Logger, tracer trace.Tracer) (*DomainEventPublisher, error) {
	var publisher *DomainEventPublisher

	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.MaxElapsedTime = 5 * time.Minute
	expBackoff.InitialInterval = 5 * time.Second

	operation := func() error {
		producer, err := NewSyncProducer(cfg)
		if err != nil {
			return err
		}
		publisher = NewDomainEventPublisher(producer, cfg.Topic, log, tracer)
		return nil
	}

	if err := backoff.Retry(operation, expBackoff); err != nil {
		return nil, fmt.Errorf("failed to connect to Kafka after retries: %w", err)
	}

	return publisher, nil
}
