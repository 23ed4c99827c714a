package actions

import (
	"math"
	"strconv"
	"strings"

	"github.com/kilianp07/flexplan/core/model"
)

var onServices = map[string]bool{
	"switch/turn_on":        true,
	"input_boolean/turn_on": true,
	"light/turn_on":         true,
	"fan/turn_on":           true,
	"homeassistant/turn_on": true,
}

var offServices = map[string]bool{
	"switch/turn_off":        true,
	"input_boolean/turn_off": true,
	"light/turn_off":         true,
	"fan/turn_off":           true,
	"homeassistant/turn_off": true,
}

// ExpectedEntityValue returns the state an entity action should produce.
// The explicit check value wins over option, value and the state implied
// by the service.
func ExpectedEntityValue(a model.EntityAction) (string, bool) {
	switch {
	case a.ValueCheck != "":
		return a.ValueCheck, true
	case a.Option != "":
		return a.Option, true
	case a.Value != "":
		return a.Value, true
	case onServices[a.Service]:
		return "on", true
	case offServices[a.Service]:
		return "off", true
	}
	return "", false
}

// ExpectedMQTTValue returns the payload a topic should report after a
// publish.
func ExpectedMQTTValue(a model.MQTTAction) (string, bool) {
	if a.PayloadCheck != "" {
		return a.PayloadCheck, true
	}
	if a.Payload != "" {
		return a.Payload, true
	}
	return "", false
}

// StateTopic is the topic reporting the state of a command topic.
func StateTopic(a model.MQTTAction) string {
	if a.TopicGet != "" {
		return a.TopicGet
	}
	return strings.Replace(a.Topic, "/set", "/get", 1)
}

// FallbackSensor is the entity mirroring a topic on the controller.
func FallbackSensor(topic string) string {
	t := strings.ReplaceAll(topic, "/get", "")
	t = strings.ReplaceAll(t, "/set", "")
	t = strings.ReplaceAll(t, "/", "_")
	return "sensor." + strings.ToLower(t)
}

// ValuesMatch compares entity states. Numeric expectations compare
// numerically, anything else compares trimmed and case insensitive.
func ValuesMatch(expected, actual string) bool {
	e, a := strings.TrimSpace(expected), strings.TrimSpace(actual)
	if ef, err := strconv.ParseFloat(e, 64); err == nil {
		af, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return false
		}
		return math.Abs(ef-af) < 1e-6
	}
	return strings.EqualFold(e, a)
}

// PayloadsMatch compares MQTT payloads after trimming.
func PayloadsMatch(expected, actual string) bool {
	return strings.TrimSpace(expected) == strings.TrimSpace(actual)
}
