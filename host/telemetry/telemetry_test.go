package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/inconshreveable/log15"
	"github.com/stretchr/testify/require"

	"gocoupler/host/link"
)

type fakeToken struct {
	mqtt.Token
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mqtt.Client
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return &fakeToken{err: c.err}
}

func (c *fakeClient) messages() []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]published(nil), c.msgs...)
}

func quietLogger() log.Logger {
	l := log.New()
	l.SetHandler(log.DiscardHandler())
	return l
}

func TestPublishReading(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "lab/coupler", quietLogger())

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.PublishReading(link.Reading{Hz: 12.5, At: at}))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "lab/coupler/frequency", msgs[0].topic)
	require.False(t, msgs[0].retained)

	var got FrequencyMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	require.Equal(t, 12.5, got.Hz)
	require.True(t, got.At.Equal(at))
	require.Equal(t, p.Session(), got.Session)
}

func TestPublishMatrix(t *testing.T) {
	client := &fakeClient{}
	p := NewPublisher(client, "coupler", quietLogger())

	require.NoError(t, p.PublishMatrix(&link.Applied{Matrix: [][]bool{{true, false}, {false, true}}}))

	msgs := client.messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "coupler/matrix", msgs[0].topic)
	require.True(t, msgs[0].retained)

	var got MatrixMessage
	require.NoError(t, json.Unmarshal(msgs[0].payload, &got))
	require.Equal(t, [][]int{{1, 0}, {0, 1}}, got.Matrix)
}

func TestPublishError(t *testing.T) {
	client := &fakeClient{err: errors.New("not connected")}
	p := NewPublisher(client, "coupler", quietLogger())

	err := p.PublishReading(link.Reading{Hz: 1})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not connected")
}

func TestRunForwardsUntilClosed(t *testing.T) {
	client := &fakeClient{err: errors.New("flaky")}
	p := NewPublisher(client, "coupler", quietLogger())

	readings := make(chan link.Reading, 3)
	readings <- link.Reading{Hz: 1}
	readings <- link.Reading{Hz: 2}
	readings <- link.Reading{Hz: 3}
	close(readings)

	// Publish errors are logged, not fatal
	require.NoError(t, p.Run(context.Background(), readings))
	require.Len(t, client.messages(), 3)
}

func TestRunStopsOnCancel(t *testing.T) {
	p := NewPublisher(&fakeClient{}, "coupler", quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx, make(chan link.Reading))
	require.ErrorIs(t, err, context.Canceled)
}
