package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDoc = "11111111-1111-1111-1111-111111111111"

func TestPublishEmbeddingJob(t *testing.T) {
	sp := mocks.NewSyncProducer(t, NewSaramaConfig())
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg EmbeddingJobMessage
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg.DocumentID != testDoc || msg.Action != ActionEmbedDocument || msg.Timestamp.IsZero() {
			return errors.New("unexpected job payload")
		}
		return nil
	})

	p := NewProducerWith(sp, "rag.embedding.jobs", nil)
	require.NoError(t, p.PublishEmbeddingJob(&EmbeddingJobMessage{DocumentID: testDoc}))
	require.NoError(t, p.Close())
}

func TestPublishEmbeddingJob_Failure(t *testing.T) {
	sp := mocks.NewSyncProducer(t, NewSaramaConfig())
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	p := NewProducerWith(sp, "rag.embedding.jobs", nil)
	err := p.PublishEmbeddingJob(&EmbeddingJobMessage{DocumentID: testDoc})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, p.Close())
}

func TestPublishRetry(t *testing.T) {
	sp := mocks.NewSyncProducer(t, NewSaramaConfig())
	sp.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		msg, err := ParseEmbeddingJobMessage(val)
		if err != nil {
			return err
		}
		if msg.RetryCount != 2 {
			return errors.New("retry count not incremented")
		}
		return nil
	})

	p := NewProducerWith(sp, "jobs", nil)
	require.NoError(t, p.PublishRetry(&EmbeddingJobMessage{DocumentID: testDoc, Action: ActionEmbedDocument, RetryCount: 1}, errors.New("boom")))
	require.NoError(t, p.Close())
	assert.Equal(t, "jobs.retry", RetryTopic("jobs"))
}

func TestNilProducer(t *testing.T) {
	var p *Producer
	assert.ErrorIs(t, p.PublishEmbeddingJob(&EmbeddingJobMessage{DocumentID: testDoc}), ErrProducerNotReady)
	assert.NoError(t, p.Close())
}

func TestParseEmbeddingJobMessage(t *testing.T) {
	msg, err := ParseEmbeddingJobMessage([]byte(`{"document_id":"` + testDoc + `","action":"embed_document"}`))
	require.NoError(t, err)
	assert.Equal(t, testDoc, msg.DocumentID)

	_, err = ParseEmbeddingJobMessage([]byte(`{"action":"embed_document"}`))
	assert.Error(t, err)

	_, err = ParseEmbeddingJobMessage([]byte(`not json`))
	assert.Error(t, err)
}

func TestConsumerDispatch(t *testing.T) {
	c := NewConsumerWith(nil, "group", []string{"jobs"}, nil)

	var seen []string
	c.RegisterHandler("jobs", func(ctx context.Context, m *sarama.ConsumerMessage) error {
		seen = append(seen, string(m.Key))
		if string(m.Key) == "bad" {
			return errors.New("handler failed")
		}
		return nil
	})

	ctx := context.Background()
	assert.True(t, c.Dispatch(ctx, &sarama.ConsumerMessage{Topic: "jobs", Key: []byte("ok")}))
	assert.False(t, c.Dispatch(ctx, &sarama.ConsumerMessage{Topic: "jobs", Key: []byte("bad")}))
	// 未注册 topic 直接提交
	assert.True(t, c.Dispatch(ctx, &sarama.ConsumerMessage{Topic: "other"}))
	assert.Equal(t, []string{"ok", "bad"}, seen)

	assert.NoError(t, c.Close())
}
