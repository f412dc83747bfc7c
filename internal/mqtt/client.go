package mqtt

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

// Options describes how to reach the broker. Broker is either a bare host
// name, combined with Port, or a full URL.
type Options struct {
	Broker   string
	Port     int
	Username string
	Password string
	ClientID string
}

// Client wraps the MQTT client with additional functionality
type Client struct {
	client mqtt.Client
	logger *logrus.Logger
}

// NewClient connects to the broker. Credentials are passed through untouched;
// explicit Username/Password win over credentials embedded in the URL.
func NewClient(o Options, logger *logrus.Logger) (*Client, error) {
	mqttURL, err := BrokerURL(o.Broker, o.Port)
	if err != nil {
		return nil, err
	}
	parsedURL, err := url.Parse(mqttURL)
	if err != nil {
		return nil, fmt.Errorf("invalid MQTT URL: %w", err)
	}

	opts := mqtt.NewClientOptions()

	// Handle different protocol schemes
	var brokerURL string
	switch parsedURL.Scheme {
	case "ws":
		brokerURL = mqttURL
		logger.Debug("Using WebSocket MQTT connection")
	case "wss":
		brokerURL = mqttURL
		logger.Debug("Using secure WebSocket MQTT connection")
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	case "mqtt", "tcp":
		brokerURL = "tcp://" + parsedURL.Host
		logger.Debug("Using standard MQTT connection (TCP)")
	case "mqtts", "ssl":
		brokerURL = "ssl://" + parsedURL.Host
		logger.Debug("Using secure MQTT connection (SSL/TLS)")
		// self-signed broker certificates are common on home networks
		opts.SetTLSConfig(&tls.Config{InsecureSkipVerify: true})
	default:
		return nil, fmt.Errorf("unsupported protocol scheme: %s (supported: ws, wss, mqtt, mqtts)", parsedURL.Scheme)
	}

	opts.AddBroker(brokerURL)
	opts.SetClientID(o.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetConnectTimeout(5 * time.Second)
	opts.SetMaxReconnectInterval(10 * time.Second)

	username, password := credentials(parsedURL, o.Username, o.Password)
	if username != "" {
		opts.SetUsername(username)
		opts.SetPassword(password)
	}

	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		logger.WithError(err).Warn("MQTT connection lost")
	})

	opts.SetReconnectingHandler(func(client mqtt.Client, opts *mqtt.ClientOptions) {
		logger.Debug("MQTT reconnecting...")
	})

	firstConnect := true
	opts.SetOnConnectHandler(func(client mqtt.Client) {
		if firstConnect {
			logger.Debug("MQTT connected")
			firstConnect = false
		} else {
			logger.Info("MQTT reconnected")
		}
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	logger.WithFields(logrus.Fields{
		"broker":    cleanURL(mqttURL),
		"protocol":  parsedURL.Scheme,
		"client_id": o.ClientID,
	}).Info("MQTT client connected")

	return &Client{
		client: client,
		logger: logger,
	}, nil
}

// BrokerURL turns the configured broker into a URL. A bare host gets the
// mqtt scheme and port; a URL without a port gets port.
func BrokerURL(broker string, port int) (string, error) {
	if broker == "" {
		return "", fmt.Errorf("MQTT broker is empty")
	}
	if !strings.Contains(broker, "://") {
		return "mqtt://" + net.JoinHostPort(broker, strconv.Itoa(port)), nil
	}
	u, err := url.Parse(broker)
	if err != nil {
		return "", fmt.Errorf("invalid MQTT URL: %w", err)
	}
	if u.Port() == "" && port > 0 && (u.Scheme == "mqtt" || u.Scheme == "mqtts") {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(port))
	}
	return u.String(), nil
}

func credentials(u *url.URL, username, password string) (string, string) {
	if username != "" {
		return username, password
	}
	if u.User != nil {
		p, _ := u.User.Password()
		return u.User.Username(), p
	}
	return "", ""
}

// Publish publishes a message to the specified topic
func (c *Client) Publish(topic string, payload []byte, retained bool) error {
	qos := byte(1) // At least once delivery
	token := c.client.Publish(topic, qos, retained, payload)

	// Avoid potential deadlocks: wait for completion with a timeout instead of indefinitely.
	const pubTimeout = 5 * time.Second
	if !token.WaitTimeout(pubTimeout) {
		return fmt.Errorf("publish to topic %s timed out after %s", topic, pubTimeout)
	}
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, token.Error())
	}

	c.logger.WithFields(logrus.Fields{
		"topic":    topic,
		"size":     len(payload),
		"retained": retained,
	}).Debug("Published MQTT message")

	return nil
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Disconnect disconnects the client
func (c *Client) Disconnect(quiesce uint) {
	c.client.Disconnect(quiesce)
	c.logger.Debug("MQTT client disconnected")
}

// cleanURL removes credentials from URL for logging
func cleanURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	if parsed.User != nil {
		parsed.User = url.UserPassword("***", "***")
	}

	return parsed.String()
}
