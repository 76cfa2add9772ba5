package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/mr1hm/go-flood-risk/internal/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaSink writes completed predictions to a Kafka topic.
type KafkaSink struct {
	writer messageWriter
	logger *slog.Logger
}

func NewKafkaSink(brokers []string, topic string, logger *slog.Logger) *KafkaSink {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &KafkaSink{writer: w, logger: logger}
}

// Publish writes p keyed by locality so one locality's predictions stay ordered.
func (s *KafkaSink) Publish(ctx context.Context, p *models.PredictionResult) error {
	msg, err := serializeToMessage(p)
	if err != nil {
		return err
	}
	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write prediction %s: %w", p.ID, err)
	}
	s.logger.Debug("published prediction", "locality", p.Locality, "id", p.ID)
	return nil
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func serializeToMessage(p *models.PredictionResult) (kafkago.Message, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize prediction: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(p.Locality),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "horizon", Value: []byte(strconv.Itoa(int(maxHorizon(p))))},
			{Key: "predicted_at", Value: []byte(p.Metadata.PredictedAt.Format(time.RFC3339))},
		},
	}, nil
}

func maxHorizon(p *models.PredictionResult) models.Horizon {
	var h models.Horizon
	for _, a := range p.Assessments {
		if a.Horizon > h {
			h = a.Horizon
		}
	}
	return h
}
