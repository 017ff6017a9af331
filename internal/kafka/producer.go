package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

// ErrProducerNotReady 生产者未初始化
var ErrProducerNotReady = errors.New("kafka producer not initialized")

// EmbeddingJob 动作
const (
	ActionEmbedDocument = "embed_document"
)

// EmbeddingJobMessage 文档嵌入任务
type EmbeddingJobMessage struct {
	DocumentID string    `json:"document_id"`
	UserID     string    `json:"user_id,omitempty"`
	Action     string    `json:"action"`
	RetryCount int       `json:"retry_count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Producer Kafka生产者
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
}

// NewSaramaConfig 生产者配置
func NewSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Timeout = 10 * time.Second
	return config
}

// NewProducer 连接 broker 创建生产者
func NewProducer(brokers []string, topic string, logger *zap.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	p := NewProducerWith(producer, topic, logger)
	p.logger.Info("kafka producer initialized", zap.Strings("brokers", brokers), zap.String("topic", topic))
	return p, nil
}

// NewProducerWith 包装已有的 SyncProducer
func NewProducerWith(producer sarama.SyncProducer, topic string, logger *zap.Logger) *Producer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Producer{producer: producer, topic: topic, logger: logger}
}

// Topic 目标 topic
func (p *Producer) Topic() string {
	return p.topic
}

// PublishEmbeddingJob 投递文档嵌入任务，以文档ID为分区键
func (p *Producer) PublishEmbeddingJob(msg *EmbeddingJobMessage) error {
	if p == nil || p.producer == nil {
		return ErrProducerNotReady
	}
	if msg.Action == "" {
		msg.Action = ActionEmbedDocument
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal embedding job: %w", err)
	}

	kafkaMsg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(msg.DocumentID),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("action"), Value: []byte(msg.Action)},
		},
	}

	partition, offset, err := p.producer.SendMessage(kafkaMsg)
	if err != nil {
		p.logger.Error("failed to publish embedding job", zap.String("document_id", msg.DocumentID), zap.Error(err))
		return fmt.Errorf("publish embedding job: %w", err)
	}

	p.logger.Debug("embedding job published",
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
		zap.String("document_id", msg.DocumentID))
	return nil
}

// PublishRetry 投递到 <topic>.retry
func (p *Producer) PublishRetry(msg *EmbeddingJobMessage, lastErr error) error {
	if p == nil || p.producer == nil {
		return ErrProducerNotReady
	}
	retry := *msg
	retry.RetryCount++
	retry.Timestamp = time.Now()

	data, err := json.Marshal(retry)
	if err != nil {
		return fmt.Errorf("marshal retry job: %w", err)
	}

	headers := []sarama.RecordHeader{{Key: []byte("action"), Value: []byte(retry.Action)}}
	if lastErr != nil {
		headers = append(headers, sarama.RecordHeader{Key: []byte("last_error"), Value: []byte(lastErr.Error())})
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:   RetryTopic(p.topic),
		Key:     sarama.StringEncoder(retry.DocumentID),
		Value:   sarama.ByteEncoder(data),
		Headers: headers,
	})
	return err
}

// RetryTopic 重试 topic 名称
func RetryTopic(topic string) string {
	return topic + ".retry"
}

// Close 关闭生产者
func (p *Producer) Close() error {
	if p != nil && p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

// ParseEmbeddingJobMessage 解析嵌入任务
func ParseEmbeddingJobMessage(data []byte) (*EmbeddingJobMessage, error) {
	var msg EmbeddingJobMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse embedding job: %w", err)
	}
	if msg.DocumentID == "" {
		return nil, errors.New("parse embedding job: missing document_id")
	}
	return &msg, nil
}
