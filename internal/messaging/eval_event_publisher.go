// Package messaging publishes evaluation lifecycle events so downstream
// services (progress tracking, notifications) can react without polling.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"talk-trainer-server/internal/model"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const evalEventsExchangeType = "fanout"

// EvaluationCompletedEvent is the payload published after a session evaluation
// finishes, degraded or not.
type EvaluationCompletedEvent struct {
	EventID         string    `json:"event_id"`
	SessionID       string    `json:"session_id"`
	ScenarioID      string    `json:"scenario_id"`
	OverallScore    int       `json:"overall_score"`
	CriteriaSet     string    `json:"criteria_set"`
	QualityDegraded bool      `json:"quality_degraded"`
	CompletedAt     time.Time `json:"completed_at"`
}

// EvalEventPublisher is the publisher interface handed to the services; the
// no-op implementation backs deployments without a broker.
type EvalEventPublisher interface {
	PublishCompleted(ctx context.Context, sessionID, scenarioID string, result *model.EvaluationResult) error
	Close() error
}

// RabbitEvalEventPublisher publishes evaluation events to a fanout exchange.
type RabbitEvalEventPublisher struct {
	conn         *amqp091.Connection
	ch           *amqp091.Channel
	logger       *zap.Logger
	exchangeName string
}

func NewRabbitEvalEventPublisher(conn *amqp091.Connection, exchangeName string, logger *zap.Logger) (*RabbitEvalEventPublisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is nil")
	}

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("Failed to open a channel for evaluation events", zap.Error(err))
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchangeName,
		evalEventsExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		_ = ch.Close()
		logger.Error("Failed to declare evaluation events exchange", zap.String("exchange", exchangeName), zap.Error(err))
		return nil, fmt.Errorf("failed to declare exchange '%s': %w", exchangeName, err)
	}

	logger.Info("Evaluation events exchange declared", zap.String("exchange", exchangeName))

	return &RabbitEvalEventPublisher{
		conn:         conn,
		ch:           ch,
		logger:       logger.Named("EvalEventPublisher"),
		exchangeName: exchangeName,
	}, nil
}

// PublishCompleted publishes one EvaluationCompletedEvent. Routing key is
// unused on a fanout exchange.
func (p *RabbitEvalEventPublisher) PublishCompleted(ctx context.Context, sessionID, scenarioID string, result *model.EvaluationResult) error {
	event := EvaluationCompletedEvent{
		EventID:         uuid.NewString(),
		SessionID:       sessionID,
		ScenarioID:      scenarioID,
		OverallScore:    result.OverallScore,
		CriteriaSet:     result.ResolvedCriteriaSet,
		QualityDegraded: result.QualityDegraded,
		CompletedAt:     time.Now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal evaluation event", zap.Error(err))
		return fmt.Errorf("failed to marshal evaluation event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx,
		p.exchangeName,
		"",    // routing key
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			MessageId:   event.EventID,
			Body:        body,
			Timestamp:   event.CompletedAt,
		},
	)
	if err != nil {
		p.logger.Error("Failed to publish evaluation event",
			zap.String("sessionID", sessionID), zap.Error(err))
		return fmt.Errorf("failed to publish evaluation event: %w", err)
	}

	p.logger.Debug("Evaluation event published",
		zap.String("sessionID", sessionID),
		zap.Int("overallScore", event.OverallScore))
	return nil
}

func (p *RabbitEvalEventPublisher) Close() error {
	if p.ch != nil {
		return p.ch.Close()
	}
	return nil
}

// NoopEvalEventPublisher is used when the broker is disabled by configuration.
type NoopEvalEventPublisher struct{}

func (NoopEvalEventPublisher) PublishCompleted(context.Context, string, string, *model.EvaluationResult) error {
	return nil
}

func (NoopEvalEventPublisher) Close() error { return nil }
