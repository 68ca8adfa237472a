package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomock "go.uber.org/mock/gomock"

	"github.com/GlebRadaev/walletledger/internal/domain"
)

func testEvent() Event {
	return Event{
		ID:     "8f0e8a8e-2d1c-4c53-9c43-1f0a5c3e9a11",
		UserID: 7,
		Kind:   KindReceived,
		Payload: Payload{
			TransactionID: 42,
			ReferenceID:   "TRA1792058400000123",
			Type:          domain.TransactionTypeTransfer,
			Amount:        decimal.NewFromInt(30),
			Fee:           decimal.Zero,
			Currency:      domain.CurrencyVND,
			Status:        domain.StatusCompleted,
			BalanceAfter:  domain.Money(decimal.NewFromInt(130)),
		},
		CreatedAt: time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestFanout_Notify(t *testing.T) {
	ctrl := gomock.NewController(t)
	first, second := NewMockSink(ctrl), NewMockSink(ctrl)
	fanout := New(first, second)

	var delivered Event
	first.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
	second.EXPECT().Send(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, e Event) error {
		delivered = e
		return nil
	})

	err := fanout.Notify(context.Background(), 7, KindSent, testEvent().Payload)

	assert.ErrorContains(t, err, "redis down")
	assert.Equal(t, int64(7), delivered.UserID)
	assert.Equal(t, KindSent, delivered.Kind)
	_, parseErr := uuid.Parse(delivered.ID)
	assert.NoError(t, parseErr)
}

func TestFanout_NoSinks(t *testing.T) {
	assert.NoError(t, New().Notify(context.Background(), 1, KindDeposit, Payload{}))
	assert.NoError(t, New(Nop{}).Notify(context.Background(), 1, KindDeposit, Payload{}))
}

func TestPayloadFrom(t *testing.T) {
	reason := "insufficient balance"
	tx := &domain.Transaction{ID: 3, ReferenceID: "WIT1", Status: domain.StatusFailed, FailureReason: &reason}

	p := PayloadFrom(tx, decimal.NullDecimal{})
	assert.Equal(t, reason, p.Reason)
	assert.False(t, p.BalanceAfter.Valid)
}

func TestRedis_Send(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := NewMockPublisher(ctrl)
	sink := NewRedis(publisher)

	t.Run("Publishes to the user channel", func(t *testing.T) {
		publisher.EXPECT().Publish(gomock.Any(), "user-7", gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, msg interface{}) *redis.IntCmd {
				var got Event
				require.NoError(t, json.Unmarshal(msg.([]byte), &got))
				assert.Equal(t, KindReceived, got.Kind)
				assert.Equal(t, "130", got.Payload.BalanceAfter.Decimal.String())
				return redis.NewIntResult(1, nil)
			})

		assert.NoError(t, sink.Send(context.Background(), testEvent()))
	})

	t.Run("Publish error", func(t *testing.T) {
		publisher.EXPECT().Publish(gomock.Any(), "user-7", gomock.Any()).
			Return(redis.NewIntResult(0, errors.New("connection refused")))

		assert.ErrorContains(t, sink.Send(context.Background(), testEvent()), "connection refused")
	})
}

func TestKafka_Send(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	sink := NewKafka(producer, "ledger.notifications")

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var got Event
		if err := json.Unmarshal(val, &got); err != nil {
			return err
		}
		if got.Payload.TransactionID != 42 {
			return errors.New("unexpected transaction id")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	assert.NoError(t, sink.Send(context.Background(), testEvent()))
	assert.ErrorIs(t, sink.Send(context.Background(), testEvent()), sarama.ErrOutOfBrokers)
	assert.NoError(t, sink.Close())
}

func TestWebhook_Send(t *testing.T) {
	var status = http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, string(KindReceived), r.Header.Get("X-Event-Kind"))
		body, _ := io.ReadAll(r.Body)
		var got Event
		assert.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(status)
	}))
	defer server.Close()

	sink := NewWebhook(server.URL, nil)
	assert.NoError(t, sink.Send(context.Background(), testEvent()))

	status = http.StatusBadGateway
	assert.ErrorContains(t, sink.Send(context.Background(), testEvent()), "502")
}
