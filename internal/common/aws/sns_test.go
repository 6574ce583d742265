package aws

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"crowd-monitor/internal/models"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: awssdk.String("m-1")}, nil
}

func TestSNSNotifier_Notify(t *testing.T) {
	pub := &fakePublisher{}
	n := NewSNSNotifier(pub, "arn:aws:sns:ca-central-1:123:queries")

	public := true
	evt := models.LifecycleEvent{
		Type:       models.EventQueryVisibilityChanged,
		QueryID:    "q-1",
		QueryName:  "Storms",
		IsPublic:   &public,
		OccurredAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, n.Notify(context.Background(), evt))
	require.Len(t, pub.inputs, 1)

	in := pub.inputs[0]
	assert.Equal(t, "arn:aws:sns:ca-central-1:123:queries", awssdk.ToString(in.TopicArn))
	assert.Equal(t, models.EventQueryVisibilityChanged, awssdk.ToString(in.MessageAttributes["eventType"].StringValue))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(awssdk.ToString(in.Message)), &decoded))
	assert.Equal(t, "q-1", decoded["queryId"])
	assert.Equal(t, true, decoded["isPublic"])
}

func TestSNSNotifier_PublishError(t *testing.T) {
	n := NewSNSNotifier(&fakePublisher{err: errors.New("throttled")}, "arn")

	err := n.Notify(context.Background(), models.LifecycleEvent{Type: models.EventQueryCreated, QueryID: "q-2"})
	assert.ErrorContains(t, err, "throttled")
	assert.ErrorContains(t, err, "q-2")
}
