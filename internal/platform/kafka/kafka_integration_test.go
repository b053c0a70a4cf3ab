//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kadm"

	"onboarding/internal/platform/config"
	"onboarding/internal/platform/kafka"
	"onboarding/pkg/testutil/containers"
)

func TestEnsureTopicIsIdempotent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	broker := containers.GetManager().GetRedpanda(t).Broker

	client, err := kafka.NewProducer(config.Notifier{Brokers: []string{broker}, Topic: "ensure-topic-test"})
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	require.NoError(t, kafka.Ping(ctx, client))
	require.NoError(t, kafka.EnsureTopic(ctx, client, "ensure-topic-test", 1, 1))
	require.NoError(t, kafka.EnsureTopic(ctx, client, "ensure-topic-test", 1, 1))

	topics, err := kadm.NewClient(client).ListTopics(ctx, "ensure-topic-test")
	require.NoError(t, err)
	require.True(t, topics.Has("ensure-topic-test"))
}
