package transport

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

var errNoMQTT = errors.New("mqtt publisher not configured")

// Dispatcher routes a notification by endpoint scheme: mqtt:// and tcp://
// go to the MQTT publisher, everything else is POSTed over HTTP.
type Dispatcher struct {
	http *Client
	mqtt Publisher
}

func NewDispatcher(http *Client, mqtt Publisher) *Dispatcher {
	return &Dispatcher{http: http, mqtt: mqtt}
}

// Post reports a successful publish as 200 so callers can treat both
// transports alike.
func (d *Dispatcher) Post(ctx context.Context, rawURL string, headers map[string]string, body []byte) (int, error) {
	lower := strings.ToLower(rawURL)
	if strings.HasPrefix(lower, "mqtt://") || strings.HasPrefix(lower, "tcp://") {
		broker, topic, err := ParseMQTTURL(rawURL)
		if err != nil {
			return 0, err
		}
		if d.mqtt == nil {
			return 0, errNoMQTT
		}
		if err := d.mqtt.Publish(ctx, broker, topic, body); err != nil {
			return 0, err
		}
		return http.StatusOK, nil
	}
	return d.http.Post(ctx, rawURL, headers, body)
}
