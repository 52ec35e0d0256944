package eventbus_test

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/require"

	"github.com/Beasttboy/dbt-etl-pipeline/pkg/channels/gochannel"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/eventbus"
	"github.com/Beasttboy/dbt-etl-pipeline/pkg/events"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func TestRegisterLogging(t *testing.T) {
	pub, sub, err := gochannel.CreateTestChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	output := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(output, nil))

	require.NoError(t, eventbus.RegisterLogging(context.Background(), bus, logger))

	require.NoError(t, bus.Publish(context.Background(), "dbt_snowflake_pipeline", events.RunCompleted{
		BaseEvent: events.NewBaseEvent(events.RunCompletedEvent, "dbt_snowflake_pipeline", "run-7"),
		Duration:  3 * time.Second,
	}))
	require.NoError(t, bus.Publish(context.Background(), "dbt_snowflake_pipeline", events.TaskFinished{
		BaseEvent: events.NewBaseEvent(events.TaskFinishedEvent, "dbt_snowflake_pipeline", "run-7"),
		TaskID:    "model.data_pipeline.stg_orders",
		Status:    "success",
	}))

	require.Eventually(t, func() bool {
		logged := output.String()

		return strings.Contains(logged, "Run completed") &&
			strings.Contains(logged, "run-7") &&
			strings.Contains(logged, "model.data_pipeline.stg_orders")
	}, 5*time.Second, 10*time.Millisecond)
}
