package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/denisbrodbeck/machineid"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/itohio/gole24/pkg/config"
	"github.com/itohio/gole24/pkg/e24"
	"github.com/itohio/gole24/pkg/output"
)

const (
	DefaultServer      = "tcp://localhost:1883"
	DefaultClientID    = "e24-collector"
	perChannelTopicFmt = "e24/channel/%d"
	appID              = "gole24"
	disconnectQuiesce  = 250 // ms
)

// Payload is the JSON document published for every sample.
type Payload struct {
	Timestamp time.Time `json:"timestamp"`
	Channel   int       `json:"channel"`
	Raw       int32     `json:"raw"`
	Value     float64   `json:"value"`
	Timer     *uint8    `json:"timer,omitempty"`
}

type MQTTOutput struct {
	client mqtt.Client
	topic  string
	qos    byte
}

// New connects to the broker and returns an output publishing one message
// per sample.
func New(cfg config.MQTTConfig) (output.Output, error) {
	server := cfg.Server
	if server == "" {
		server = DefaultServer
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = defaultClientID()
	}
	opts := mqtt.NewClientOptions().AddBroker(server).SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)

	glog.Infof("mqtt: connecting to %s as %s", server, clientID)
	m, err := newOutput(mqtt.NewClient(opts), cfg.Topic, cfg.QoS)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newOutput(client mqtt.Client, topic string, qos byte) (*MQTTOutput, error) {
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}
	return &MQTTOutput{client: client, topic: topic, qos: qos}, nil
}

// defaultClientID derives a stable client id from the machine id so several
// collectors can share a broker.
func defaultClientID() string {
	id, err := machineid.ProtectedID(appID)
	if err != nil {
		glog.Warningf("mqtt: machine id unavailable: %v", err)
		return DefaultClientID
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return DefaultClientID + "-" + id
}

// Topic returns the topic a sample of channel ch is published to.
func Topic(base string, ch e24.Channel) string {
	if base == "" {
		return fmt.Sprintf(perChannelTopicFmt, ch)
	}
	if strings.Contains(base, "%d") {
		return fmt.Sprintf(base, ch)
	}
	return base
}

// NewPayload converts s into its published form.
func NewPayload(s e24.Sample) Payload {
	p := Payload{
		Timestamp: s.Timestamp,
		Channel:   int(s.Channel),
		Raw:       s.Raw,
		Value:     s.Value,
	}
	if s.HasTimer {
		timer := s.Timer
		p.Timer = &timer
	}
	return p
}

func (m *MQTTOutput) Publish(s e24.Sample) error {
	b, err := json.Marshal(NewPayload(s))
	if err != nil {
		return err
	}
	token := m.client.Publish(Topic(m.topic, s.Channel), m.qos, false, b)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("mqtt publish: %w", token.Error())
	}
	return nil
}

func (m *MQTTOutput) Close() error {
	if m.client != nil {
		m.client.Disconnect(disconnectQuiesce)
		m.client = nil
	}
	return nil
}
