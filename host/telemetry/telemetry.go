// Package telemetry forwards coupler readings and matrices to MQTT.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	log "github.com/inconshreveable/log15"

	"gocoupler/host/link"
)

// PublishTimeout bounds the wait for a broker acknowledgement
const PublishTimeout = 5 * time.Second

// Dial connects to broker. An empty clientID gets a random one so several
// hosts can share a broker.
func Dial(broker, clientID string) (mqtt.Client, error) {
	if clientID == "" {
		clientID = "coupler-host"
	}
	clientID = clientID + "-" + uuid.NewString()[:8]

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", broker, token.Error())
	}
	return client, nil
}

// FrequencyMessage is the payload on <prefix>/frequency
type FrequencyMessage struct {
	Hz      float64   `json:"hz"`
	At      time.Time `json:"ts"`
	Session string    `json:"session"`
}

// MatrixMessage is the payload on <prefix>/matrix
type MatrixMessage struct {
	Matrix  [][]int   `json:"matrix"`
	At      time.Time `json:"ts"`
	Session string    `json:"session"`
}

// Publisher publishes under one topic prefix
type Publisher struct {
	client  mqtt.Client
	prefix  string
	session string
	log     log.Logger
}

// NewPublisher wraps a connected client
func NewPublisher(client mqtt.Client, prefix string, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.New("pkg", "telemetry")
	}
	return &Publisher{
		client:  client,
		prefix:  prefix,
		session: uuid.NewString(),
		log:     logger,
	}
}

// Session identifies this host run in every payload
func (p *Publisher) Session() string {
	return p.session
}

// FrequencyTopic returns <prefix>/frequency
func (p *Publisher) FrequencyTopic() string {
	return p.prefix + "/frequency"
}

// MatrixTopic returns <prefix>/matrix
func (p *Publisher) MatrixTopic() string {
	return p.prefix + "/matrix"
}

// PublishReading sends one frequency reading
func (p *Publisher) PublishReading(rd link.Reading) error {
	return p.publish(p.FrequencyTopic(), false, FrequencyMessage{Hz: rd.Hz, At: rd.At, Session: p.session})
}

// PublishMatrix sends an applied matrix. It is retained so new subscribers
// see the current coupling.
func (p *Publisher) PublishMatrix(applied *link.Applied) error {
	msg := MatrixMessage{At: applied.At, Session: p.session}
	for _, row := range applied.Matrix {
		cells := make([]int, len(row))
		for j, v := range row {
			if v {
				cells[j] = 1
			}
		}
		msg.Matrix = append(msg.Matrix, cells)
	}
	return p.publish(p.MatrixTopic(), true, msg)
}

func (p *Publisher) publish(topic string, retained bool, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.log.Debug("Publishing", "topic", topic, "payload", string(data))

	token := p.client.Publish(topic, 0, retained, data)
	if !token.WaitTimeout(PublishTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Run forwards readings until ctx is cancelled or the stream closes.
// Publish failures are logged and do not stop the stream.
func (p *Publisher) Run(ctx context.Context, readings <-chan link.Reading) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rd, ok := <-readings:
			if !ok {
				return nil
			}
			if err := p.PublishReading(rd); err != nil {
				p.log.Warn("Failed to publish reading", "error", err)
			}
		}
	}
}
