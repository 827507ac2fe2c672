package spectrum

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// ConnectMQTT connects to the configured broker for publishing. Environment
// variables MQTT_BROKER, MQTT_CLIENT_ID, MQTT_USERNAME and MQTT_PASSWORD take
// precedence over the config. With no broker, publishing is disabled and
// ConnectMQTT returns nil, nil.
func ConnectMQTT(cfg MQTTConfig, timeout time.Duration) (mqtt.Client, error) {
	broker := os.Getenv("MQTT_BROKER")
	if broker == "" {
		broker = cfg.Broker
	}
	if broker == "" {
		logrus.Debug("MQTT disabled: no broker configured")
		return nil, nil
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)

	clientID := os.Getenv("MQTT_CLIENT_ID")
	if clientID == "" {
		clientID = cfg.ClientID
	}
	if clientID == "" {
		clientID = "voxelscore"
	}
	opts.SetClientID(clientID)

	username := os.Getenv("MQTT_USERNAME")
	if username == "" {
		username = cfg.Username
	}
	if username != "" {
		opts.SetUsername(username)
		password := os.Getenv("MQTT_PASSWORD")
		if password == "" {
			password = cfg.Password
		}
		opts.SetPassword(password)
	}

	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logrus.WithError(err).Warn("MQTT connection interrupted, auto-reconnect will retry")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("connecting to MQTT broker %s: timeout after %v", broker, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", broker, err)
	}
	logrus.WithField("broker", broker).Info("connected to MQTT broker")
	return client, nil
}

// Publisher sends accuracy reports to MQTT
type Publisher struct {
	client        mqtt.Client
	publishPrefix string
	qos           byte
	retain        bool
	summaries     map[string]Summary
	mu            sync.RWMutex
}

// NewPublisher creates a report publisher. The topic prefix comes from
// MQTT_PUBLISH_PREFIX, then prefix, then "voxelscore".
func NewPublisher(client mqtt.Client, prefix string) *Publisher {
	if env := os.Getenv("MQTT_PUBLISH_PREFIX"); env != "" {
		prefix = env
	}
	if prefix == "" {
		prefix = "voxelscore"
	}

	return &Publisher{
		client:        client,
		publishPrefix: prefix,
		qos:           1,    // reports must arrive
		retain:        true, // late subscribers see the latest verdict
		summaries:     make(map[string]Summary),
	}
}

// PublishReport publishes r to <prefix>/<team>/<match> and refreshes the
// combined summary on <prefix>/summary.
func (p *Publisher) PublishReport(r *AccuracyReport) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	topic := fmt.Sprintf("%s/%s/%s", p.publishPrefix, r.Team, r.Match)
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := p.publish(topic, payload); err != nil {
		return err
	}

	p.mu.Lock()
	p.summaries[r.Team+"/"+r.Match] = r.Summary()
	p.mu.Unlock()

	logrus.WithFields(logrus.Fields{"topic": topic, "pass": r.Pass}).Debug("published report")
	return p.publishCombined()
}

// publishCombined publishes every known summary to the combined topic
func (p *Publisher) publishCombined() error {
	p.mu.RLock()
	message := map[string]interface{}{
		"matches":   p.summaries,
		"timestamp": time.Now().Unix(),
	}
	payload, err := json.Marshal(message)
	p.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshaling summary: %w", err)
	}
	return p.publish(fmt.Sprintf("%s/summary", p.publishPrefix), payload)
}

func (p *Publisher) publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2)
func (p *Publisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether published messages should be retained by the broker
func (p *Publisher) SetRetain(retain bool) {
	p.retain = retain
}
