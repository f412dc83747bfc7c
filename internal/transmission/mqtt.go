package transmission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/jkaberg/juntek-hass/internal/sensors"
)

// Client is the part of the MQTT client the transmitter needs.
type Client interface {
	Publish(topic string, payload []byte, retained bool) error
	IsConnected() bool
}

// Settings controls topics and discovery metadata.
type Settings struct {
	Namespace          string // state topics are <Namespace>/<unique_id>
	DiscoveryPrefix    string
	DeviceName         string
	DeviceIdentifier   string
	ExpireAfter        int
	AnnounceEveryCycle bool
	// HumanDurations drops device_class and unit from the seconds counters,
	// which are then published as formatted text.
	HumanDurations bool
}

// MQTTTransmitter publishes readings and Home Assistant discovery configs.
type MQTTTransmitter struct {
	client           Client
	settings         Settings
	definitions      []sensors.Definition
	logger           *logrus.Logger
	publishedSensors map[string]bool // Tracks published discovery configs
}

// HADiscoveryConfig represents Home Assistant MQTT discovery configuration.
// Field order is the order of the JSON document.
type HADiscoveryConfig struct {
	Name              string   `json:"name"`
	ObjectID          string   `json:"object_id"`
	DeviceClass       string   `json:"device_class,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	Options           []string `json:"options,omitempty"`
	UniqueID          string   `json:"unique_id"`
	Platform          string   `json:"platform"`
	ExpireAfter       int      `json:"expire_after"`
	StateTopic        string   `json:"state_topic"`
	Device            HADevice `json:"device"`
}

// HADevice represents the device information for Home Assistant
type HADevice struct {
	Name        string `json:"name"`
	Identifiers string `json:"identifiers"`
}

// NewMQTTTransmitter creates a new MQTT transmitter
func NewMQTTTransmitter(client Client, settings Settings, definitions []sensors.Definition, logger *logrus.Logger) *MQTTTransmitter {
	return &MQTTTransmitter{
		client:           client,
		settings:         settings,
		definitions:      definitions,
		logger:           logger,
		publishedSensors: make(map[string]bool),
	}
}

// Announce publishes the discovery config of every sensor that has not been
// announced yet, or of all sensors when AnnounceEveryCycle is set.
func (t *MQTTTransmitter) Announce(ctx context.Context) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	var errs []error
	for _, def := range t.definitions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.publishDiscoveryForSensor(def); err != nil {
			t.logger.WithError(err).WithField("sensor", def.Name).Error("Failed to publish discovery config")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publishDiscoveryForSensor publishes the discovery config for a single sensor.
func (t *MQTTTransmitter) publishDiscoveryForSensor(def sensors.Definition) error {
	if t.publishedSensors[def.UniqueID] && !t.settings.AnnounceEveryCycle {
		return nil
	}

	config := t.discoveryConfig(def)
	topic := t.DiscoveryTopic(def.UniqueID)

	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}
	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish %s discovery config: %w", def.Name, err)
	}

	logger := t.logger.WithFields(logrus.Fields{
		"sensor_name": def.Name,
		"unique_id":   def.UniqueID,
		"topic":       topic,
	})
	if t.publishedSensors[def.UniqueID] {
		logger.Debug("Republished sensor discovery config")
	} else {
		logger.Info("Published sensor discovery config")
	}

	// Mark as published
	t.publishedSensors[def.UniqueID] = true
	return nil
}

func (t *MQTTTransmitter) discoveryConfig(def sensors.Definition) HADiscoveryConfig {
	config := HADiscoveryConfig{
		Name:              def.Name,
		ObjectID:          def.ObjectID,
		DeviceClass:       def.DeviceClass,
		UnitOfMeasurement: def.UnitOfMeasurement,
		Options:           def.Options,
		UniqueID:          def.UniqueID,
		Platform:          "mqtt",
		ExpireAfter:       t.settings.ExpireAfter,
		StateTopic:        t.StateTopic(def.UniqueID),
		Device: HADevice{
			Name:        t.settings.DeviceName,
			Identifiers: t.settings.DeviceIdentifier,
		},
	}
	if t.settings.HumanDurations && sensors.IsDuration(def.UniqueID) {
		config.DeviceClass = ""
		config.UnitOfMeasurement = ""
	}
	return config
}

// Publish sends every reading to its own state topic. A failed reading does
// not stop the others.
func (t *MQTTTransmitter) Publish(ctx context.Context, readings []sensors.Reading) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	var errs []error
	for _, r := range readings {
		if err := ctx.Err(); err != nil {
			return err
		}
		topic := t.StateTopic(r.ID)
		payload := FormatValue(r.Value)
		if err := t.client.Publish(topic, []byte(payload), false); err != nil {
			errs = append(errs, err)
			continue
		}
		t.logger.WithFields(logrus.Fields{
			"topic":   topic,
			"payload": payload,
		}).Debug("Published sensor value")
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to publish %d of %d readings: %w", len(errs), len(readings), errors.Join(errs...))
	}

	t.logger.WithField("count", len(readings)).Info("Published sensor data")
	return nil
}

// StateTopic returns the topic a field's values are published on.
func (t *MQTTTransmitter) StateTopic(uniqueID string) string {
	return fmt.Sprintf("%s/%s", t.settings.Namespace, uniqueID)
}

// DiscoveryTopic returns the retained Home Assistant config topic of a field.
func (t *MQTTTransmitter) DiscoveryTopic(uniqueID string) string {
	return fmt.Sprintf("%s/sensor/%s/config", t.settings.DiscoveryPrefix, uniqueID)
}

// FormatValue renders a reading as MQTT payload text. Floats use the
// shortest representation that round-trips.
func FormatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
