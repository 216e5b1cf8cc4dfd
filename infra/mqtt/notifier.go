package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/railops/dispatchd/core/events"
	"github.com/railops/dispatchd/core/model"
	"github.com/railops/dispatchd/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker        string          `json:"broker"`
	ClientID      string          `json:"client_id"`
	Username      string          `json:"username"`
	Password      string          `json:"password"`
	PlanTopic     string          `json:"plan_topic"`
	AlertTopic    string          `json:"alert_topic"`
	OverrideTopic string          `json:"override_topic"`
	UseTLS        bool            `json:"use_tls"`
	ClientCert    string          `json:"client_cert"`
	ClientKey     string          `json:"client_key"`
	CABundle      string          `json:"ca_bundle"`
	AuthMethod    string          `json:"auth_method"`
	QoS           map[string]byte `json:"qos"`
	LWTTopic      string          `json:"lwt_topic"`
	LWTPayload    string          `json:"lwt_payload"`
	LWTQoS        byte            `json:"lwt_qos"`
	LWTRetain     bool            `json:"lwt_retain"`
	MaxRetries    int             `json:"max_retries"`
	BackoffMS     int             `json:"backoff_ms"`
	TLSConfig     *tls.Config     `json:"-"`
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// OverrideHandler receives controller overrides arriving over MQTT.
type OverrideHandler func(model.Override)

// PahoNotifier publishes committed plans and alerts over MQTT and feeds
// controller overrides from the override topic into the dispatcher.
type PahoNotifier struct {
	cli           pahoClient
	planTopic     string
	alertTopic    string
	overrideTopic string
	qos           map[string]byte

	mu         sync.Mutex
	onOverride OverrideHandler
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoNotifier connects to the MQTT broker and subscribes to the override
// topic when one is configured.
func NewPahoNotifier(cfg Config, handler OverrideHandler) (*PahoNotifier, error) {
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	log := logger.New("mqtt_notifier")
	n := &PahoNotifier{
		planTopic:     defaultTopic(cfg.PlanTopic, "dispatch/plan"),
		alertTopic:    defaultTopic(cfg.AlertTopic, "dispatch/alert"),
		overrideTopic: defaultTopic(cfg.OverrideTopic, "dispatch/override"),
		qos:           cfg.QoS,
		onOverride:    handler,
		logger:        log,
		maxRetries:    cfg.MaxRetries,
		backoff:       time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		log.Infof("MQTT connected")
		qos := byte(0)
		if q, ok := n.qos["override"]; ok {
			qos = q
		}
		if token := c.Subscribe(n.overrideTopic, qos, n.onOverrideMessage); token.Wait() && token.Error() != nil {
			log.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		log.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		log.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	n.cli = c
	return n, nil
}

func defaultTopic(t, def string) string {
	if t == "" {
		return def
	}
	return t
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// overridePayload is the wire form of a controller override.
type overridePayload struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Train    string `json:"train"`
	Resource string `json:"resource"`
	Class    string `json:"class"`
	Window   struct {
		Start time.Time `json:"start"`
		End   time.Time `json:"end"`
	} `json:"window"`
}

func (n *PahoNotifier) onOverrideMessage(_ paho.Client, msg paho.Message) {
	var p overridePayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		n.logger.Errorf("failed to decode override: %v", err)
		return
	}
	kind, err := model.ParseOverrideKind(p.Kind)
	if err != nil {
		n.logger.Errorf("override dropped: %v", err)
		return
	}
	o := model.Override{
		ID:        p.ID,
		Kind:      kind,
		Train:     p.Train,
		Resource:  p.Resource,
		Window:    model.Window{Start: p.Window.Start, End: p.Window.End},
		Requested: time.Now(),
	}
	if p.Class != "" {
		cls, err := model.ParsePriorityClass(p.Class)
		if err != nil {
			n.logger.Errorf("override dropped: %v", err)
			return
		}
		o.Class = cls
	}
	n.mu.Lock()
	handler := n.onOverride
	n.mu.Unlock()
	if handler != nil {
		handler(o)
		n.logger.Infof("received override %s", p.Kind)
	}
}

// NotifyPlan publishes the plan commit notification.
func (n *PahoNotifier) NotifyPlan(ev events.PlanEvent) error {
	return n.publish(n.planTopic, "plan", ev)
}

// NotifyAlert publishes the alert.
func (n *PahoNotifier) NotifyAlert(ev events.AlertEvent) error {
	return n.publish(n.alertTopic, "alert", ev)
}

func (n *PahoNotifier) publish(topic, kind string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	qos := byte(0)
	if q, ok := n.qos[kind]; ok {
		qos = q
	}
	retries := n.maxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := n.backoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	var publishErr error
	for attempt := 0; attempt <= retries; attempt++ {
		token := n.cli.Publish(topic, qos, false, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			n.logger.Debugf("published %s to %s", kind, topic)
			return nil
		}
		n.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		time.Sleep(backoff * time.Duration(1<<attempt))
	}
	return publishErr
}

// Disconnect gracefully closes the MQTT connection.
func (n *PahoNotifier) Disconnect() {
	if n.cli != nil && n.cli.IsConnected() {
		n.cli.Disconnect(250)
	}
}
