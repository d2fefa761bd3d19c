package xdlq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.UnixMilli(1_700_000_000_000)

func newDeserializationHandler(t *testing.T, r *Registry, values map[string]any) *DeserializationHandler {
	t.Helper()
	h := NewDeserializationHandler(WithRegistry(r), WithHandlerLogger(discardLogger(t)), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, h.Configure(values))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func newProductionHandler(t *testing.T, r *Registry, values map[string]any) *ProductionHandler {
	t.Helper()
	h := NewProductionHandler(WithRegistry(r), WithHandlerLogger(discardLogger(t)), WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, h.Configure(values))
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func registerShared(t *testing.T, r *Registry, client Client, admin TopicAdmin, opts ...CollectorOption) {
	t.Helper()
	cfg := NewCollectorConfig(append([]CollectorOption{WithClient(client, admin), WithTopicRetryer(noDelayRetryer())}, opts...)...)
	h, err := r.GetOrCreate(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Release() })
}

func TestDeserializationHandler_SendsToDLQ(t *testing.T) {
	r := newTestRegistry(t)
	client := &fakeClient{}
	registerShared(t, r, client, nil, WithAutoCreateTopic(false))

	h := newDeserializationHandler(t, r, map[string]any{
		ConfigApplicationID: "app1",
		ConfigTopicSuffix:   "-dlq",
	})
	assert.Equal(t, StateActive, h.State())

	src := sourceRecord("orders", 2, 1235)
	cause := &recordTooLargeError{msg: "too large"}
	resp := h.Handle(context.Background(), stubProcessorContext("0_2"), src, cause)
	require.Equal(t, DeserializationContinue, resp)

	sent := client.sent()
	require.Len(t, sent, 1)
	out := sent[0]
	assert.Equal(t, "orders-dlq", *out.TopicPartition.Topic)
	assert.Equal(t, []byte("k"), out.Key)
	assert.Equal(t, []byte("v"), out.Value)

	headers := headerMap(out.Headers)
	assert.Equal(t, "DESERIALIZATION", headers[HeaderType])
	assert.Equal(t, "orders", headers[HeaderRecordTopic])
	assert.Equal(t, "2", headers[HeaderRecordPartition])
	assert.Equal(t, "1235", headers[HeaderRecordOffset])
	assert.Equal(t, "app1", headers[HeaderApplicationID])
	assert.Equal(t, "too large", headers[HeaderExceptionMessage])
	assert.Equal(t, "*xdlq.recordTooLargeError", headers[HeaderExceptionClass])
	assert.Equal(t, strconv.FormatInt(fixedNow.UnixMilli(), 10), headers[HeaderTimestamp])
	assert.Equal(t, "test-header-value", headers["test-header-key"])
}

func TestDeserializationHandler_DefaultSuffix(t *testing.T) {
	r := newTestRegistry(t)
	client := &fakeClient{}
	registerShared(t, r, client, nil, WithAutoCreateTopic(false))

	h := newDeserializationHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	require.Equal(t, DeserializationContinue, h.Handle(context.Background(), nil, sourceRecord("orders", 0, 1), errors.New("x")))
	assert.Equal(t, "orders-rejected", *client.sent()[0].TopicPartition.Topic)
}

func TestProductionHandler_NoOffset(t *testing.T) {
	r := newTestRegistry(t)
	client := &fakeClient{}
	registerShared(t, r, client, nil, WithAutoCreateTopic(false))

	h := newProductionHandler(t, r, map[string]any{ConfigApplicationID: "app1", ConfigTopicSuffix: "-dlq"})
	record := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: strPtr("orders"), Partition: 0},
		Key:            []byte("k"),
		Value:          []byte("v"),
	}
	resp, err := h.Handle(context.Background(), record, errors.New("record too large"))
	require.NoError(t, err)
	assert.Equal(t, ProductionContinue, resp)

	headers := headerMap(client.sent()[0].Headers)
	assert.Equal(t, "PRODUCTION", headers[HeaderType])
	assert.NotContains(t, headers, HeaderRecordOffset)
}

func TestHandler_UnconfiguredPanics(t *testing.T) {
	r := newTestRegistry(t)
	d := NewDeserializationHandler(WithRegistry(r))
	p := NewProductionHandler(WithRegistry(r))
	assert.Equal(t, StateUnconfigured, d.State())

	assert.PanicsWithValue(t, msgUnconfigured, func() {
		d.Handle(context.Background(), nil, sourceRecord("orders", 0, 1), errors.New("x"))
	})
	assert.PanicsWithValue(t, msgUnconfigured, func() {
		p.Handle(context.Background(), nil, errors.New("x")) //nolint:errcheck // 测试 panic
	})
}

func TestHandler_ConfigureErrors(t *testing.T) {
	r := newTestRegistry(t)

	h := NewDeserializationHandler(WithRegistry(r), WithHandlerLogger(discardLogger(t)))
	assert.ErrorIs(t, h.Configure(map[string]any{ConfigTopicSuffix: "-dlq"}), ErrConfiguration)
	assert.ErrorIs(t, h.Configure(map[string]any{ConfigApplicationID: "  "}), ErrConfiguration)
	assert.ErrorIs(t, h.Configure(map[string]any{
		ConfigApplicationID:   "app1",
		ConfigTopicPartitions: "many",
	}), ErrConfiguration)
	assert.Equal(t, StateUnconfigured, h.State())

	require.NoError(t, h.Configure(map[string]any{ConfigApplicationID: "app1"}))
	assert.ErrorIs(t, h.Configure(map[string]any{ConfigApplicationID: "app1"}), ErrConfiguration)

	require.NoError(t, h.Close())
	assert.ErrorIs(t, h.Configure(map[string]any{ConfigApplicationID: "app1"}), ErrHandlerClosed)
}

func TestHandler_NoCollectorLenient(t *testing.T) {
	r := newTestRegistry(t)

	d := newDeserializationHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	assert.Equal(t, StateConfigured, d.State())
	assert.Equal(t, DeserializationContinue, d.Handle(context.Background(), nil, sourceRecord("orders", 0, 1), errors.New("x")))

	p := newProductionHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	resp, err := p.Handle(context.Background(), sourceRecord("orders", 0, 1), errors.New("x"))
	assert.NoError(t, err)
	assert.Equal(t, ProductionContinue, resp)
}

func TestHandler_NoCollectorStrict(t *testing.T) {
	r := newTestRegistry(t)
	values := map[string]any{ConfigApplicationID: "app1", ConfigStrict: "true"}

	d := newDeserializationHandler(t, r, values)
	assert.Equal(t, DeserializationFail, d.Handle(context.Background(), nil, sourceRecord("orders", 0, 1), errors.New("x")))

	p := newProductionHandler(t, r, values)
	resp, err := p.Handle(context.Background(), sourceRecord("orders", 0, 1), errors.New("x"))
	assert.ErrorIs(t, err, ErrCollectorNotRegistered)
	assert.Equal(t, ProductionFail, resp)
}

func TestHandler_LazyCollectorLookup(t *testing.T) {
	r := newTestRegistry(t)
	d := newDeserializationHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	require.Equal(t, StateConfigured, d.State())

	client := &fakeClient{}
	registerShared(t, r, client, nil, WithAutoCreateTopic(false))

	assert.Equal(t, DeserializationContinue, d.Handle(context.Background(), nil, sourceRecord("orders", 0, 1), errors.New("x")))
	assert.Equal(t, StateActive, d.State())
	assert.Len(t, client.sent(), 1)
}

func TestHandler_AutoCreateDisabledMissingTopicFails(t *testing.T) {
	r := newTestRegistry(t)
	client := &fakeClient{deliveryErr: knownTopics("orders")}
	registerShared(t, r, client, nil, WithAutoCreateTopic(false))

	d := newDeserializationHandler(t, r, map[string]any{ConfigApplicationID: "app1", ConfigTopicSuffix: "-dlq"})
	assert.Equal(t, DeserializationFail, d.Handle(context.Background(), nil, sourceRecord("orders", 0, 1), errors.New("x")))

	p := newProductionHandler(t, r, map[string]any{ConfigApplicationID: "app1", ConfigTopicSuffix: "-dlq"})
	resp, err := p.Handle(context.Background(), sourceRecord("orders", 0, 1), errors.New("x"))
	assert.Equal(t, ProductionFail, resp)
	assert.ErrorIs(t, err, ErrSend)
}

func TestHandler_HandlerDisablesAutoCreate(t *testing.T) {
	r := newTestRegistry(t)
	broker := newFakeBroker()
	registerShared(t, r, &fakeClient{}, &fakeAdmin{broker: broker})

	d := newDeserializationHandler(t, r, map[string]any{
		ConfigApplicationID:   "app1",
		ConfigAutoCreateTopic: "false",
	})
	assert.Equal(t, DeserializationContinue, d.Handle(context.Background(), nil, sourceRecord("orders", 0, 1), errors.New("x")))
	assert.Equal(t, int32(0), broker.creates.Load())
}

func TestHandler_WarnsOnIgnoredTopicSettings(t *testing.T) {
	r := newTestRegistry(t)
	logger, buf := bufferLogger(t)

	d := NewDeserializationHandler(WithRegistry(r), WithHandlerLogger(logger))
	require.NoError(t, d.Configure(map[string]any{
		ConfigApplicationID:     "app1",
		ConfigAutoCreateTopic:   true,
		ConfigTopicPartitions:   6,
		ConfigReplicationFactor: 3,
	}))
	t.Cleanup(func() { _ = d.Close() })

	out := buf.String()
	assert.Contains(t, out, "dlq topic settings ignored without dlq.producer.* keys")
	assert.Contains(t, out, ConfigTopicPartitions)
	assert.Contains(t, out, ConfigReplicationFactor)
	assert.Contains(t, out, ConfigAutoCreateTopic)

	// 关闭自动创建在共享模式下有效，不告警。
	quietLogger, quiet := bufferLogger(t)
	p := NewProductionHandler(WithRegistry(r), WithHandlerLogger(quietLogger))
	require.NoError(t, p.Configure(map[string]any{
		ConfigApplicationID:   "app1",
		ConfigAutoCreateTopic: "false",
	}))
	t.Cleanup(func() { _ = p.Close() })
	assert.NotContains(t, quiet.String(), "ignored")
}

func TestHandler_TopicCreationFailureFails(t *testing.T) {
	r := newTestRegistry(t)
	registerShared(t, r, &fakeClient{}, nil)

	d := newDeserializationHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	assert.Equal(t, DeserializationFail, d.Handle(context.Background(), nil, sourceRecord("orders", 0, 1), errors.New("x")))

	p := newProductionHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	_, err := p.Handle(context.Background(), sourceRecord("orders", 0, 1), errors.New("x"))
	assert.ErrorIs(t, err, ErrTopicCreation)
}

func TestHandler_ConcurrentFirstSendsToNewTopic(t *testing.T) {
	r := newTestRegistry(t)
	broker := newFakeBroker()
	client := &fakeClient{}
	registerShared(t, r, client, &fakeAdmin{broker: broker, delay: 10 * time.Millisecond})

	a := newDeserializationHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	b := newDeserializationHandler(t, r, map[string]any{ConfigApplicationID: "app1"})

	var wg sync.WaitGroup
	var ra, rb DeserializationResponse
	wg.Add(2)
	go func() { defer wg.Done(); ra = a.Handle(context.Background(), nil, sourceRecord("fresh", 0, 1), errors.New("x")) }()
	go func() { defer wg.Done(); rb = b.Handle(context.Background(), nil, sourceRecord("fresh", 0, 2), errors.New("y")) }()
	wg.Wait()

	assert.Equal(t, DeserializationContinue, ra)
	assert.Equal(t, DeserializationContinue, rb)
	assert.True(t, broker.has("fresh-rejected"))
	assert.Len(t, client.sent(), 2)
}

func TestHandler_OwnCollectorFromProducerKeys(t *testing.T) {
	f := &countingFactory{}
	r := newTestRegistry(t, WithClientFactory(f.build))

	values := map[string]any{
		ConfigApplicationID:                       "app1",
		ConfigProducerPrefix + "bootstrap.servers": "b1:9092",
		ConfigProducerPrefix + "linger.ms":         5,
		ConfigAutoCreateTopic:                     false,
	}
	d := newDeserializationHandler(t, r, values)
	p := newProductionHandler(t, r, values)
	assert.Equal(t, StateActive, d.State())
	assert.Equal(t, StateActive, p.State())
	assert.Equal(t, 1, r.Len())
	assert.Equal(t, int32(1), f.built.Load())

	f.mu.Lock()
	props := f.props[0]
	f.mu.Unlock()
	assert.Equal(t, "b1:9092", props["bootstrap.servers"])
	assert.Equal(t, "5", props["linger.ms"])

	require.NoError(t, d.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int32(1), f.disposed.Load())
}

func TestHandler_OwnCollectorConstructionFails(t *testing.T) {
	f := &countingFactory{err: errors.New("unreachable")}
	r := newTestRegistry(t, WithClientFactory(f.build))

	d := NewDeserializationHandler(WithRegistry(r), WithHandlerLogger(discardLogger(t)))
	err := d.Configure(map[string]any{
		ConfigApplicationID:                       "app1",
		ConfigProducerPrefix + "bootstrap.servers": "nowhere",
	})
	assert.ErrorIs(t, err, ErrProducerConstruction)
	assert.Equal(t, StateUnconfigured, d.State())
}

func TestHandler_CloseIdempotent(t *testing.T) {
	r := newTestRegistry(t)
	client := &fakeClient{}
	registerShared(t, r, client, nil, WithAutoCreateTopic(false))

	d := newDeserializationHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, StateClosed, d.State())
	assert.Equal(t, DeserializationFail, d.Handle(context.Background(), nil, sourceRecord("orders", 0, 1), errors.New("x")))
	assert.Empty(t, client.sent())
}

func TestHandler_NilRecord(t *testing.T) {
	r := newTestRegistry(t)
	registerShared(t, r, &fakeClient{}, nil, WithAutoCreateTopic(false))

	d := newDeserializationHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	assert.Equal(t, DeserializationFail, d.Handle(context.Background(), nil, nil, errors.New("x")))

	p := newProductionHandler(t, r, map[string]any{ConfigApplicationID: "app1"})
	resp, err := p.Handle(context.Background(), nil, errors.New("x"))
	assert.Equal(t, ProductionFail, resp)
	assert.ErrorIs(t, err, ErrNilRecord)
}

func TestHandler_Stringers(t *testing.T) {
	assert.Equal(t, "ACTIVE", StateActive.String())
	assert.Equal(t, "State(9)", State(9).String())
	assert.Equal(t, "CONTINUE", DeserializationContinue.String())
	assert.Equal(t, "FAIL", ProductionFail.String())
}
