package chat_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/estate-agent/chat"
	"github.com/fabfab/estate-agent/database"
	"github.com/fabfab/estate-agent/llm"
)

func TestRedisSessionsRoundTrip(t *testing.T) {
	if os.Getenv("RUN_DB_INTEGRATION_TESTS") != "1" {
		t.Skip("set RUN_DB_INTEGRATION_TESTS=1 to run Redis integration tests")
	}
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := database.NewRedisClient(ctx, addr, os.Getenv("REDIS_PASSWORD"), 0)
	require.NoError(t, err)
	defer client.Close()

	sessions := chat.NewRedisSessions(client, 3, time.Minute)
	id := uuid.NewString()
	defer sessions.Reset(ctx, id)

	require.NoError(t, sessions.Append(ctx, id,
		llm.Message{Role: llm.RoleUser, Content: "villas in Baner"},
		llm.Message{Role: llm.RoleAssistant, Content: "Skyline Villas"},
	))
	require.NoError(t, sessions.Append(ctx, id,
		llm.Message{Role: llm.RoleUser, Content: "price?"},
		llm.Message{Role: llm.RoleAssistant, Content: "2.5 crore"},
	))

	messages, err := sessions.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "Skyline Villas", messages[0].Content)
	assert.Equal(t, llm.RoleAssistant, messages[2].Role)

	require.NoError(t, sessions.Reset(ctx, id))
	messages, err = sessions.Load(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, messages)
}
