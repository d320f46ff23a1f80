// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package observation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type publishFunc func(topic string, payload []byte) error

// MQTTSink publishes every observation as a retained message on
// <prefix>/<path with dots replaced by slashes>, and the whole delta on
// <prefix>/delta.
type MQTTSink struct {
	prefix  string
	publish publishFunc
}

// ConnectMQTT connects to the broker and returns a sink publishing below
// prefix.
func ConnectMQTT(broker string, clientID string, prefix string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(30 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("observation.ConnectMQTT(): %w", token.Error())
	}

	return NewMQTTSink(client, prefix), nil
}

func NewMQTTSink(client mqtt.Client, prefix string) *MQTTSink {
	return newMQTTSink(prefix, func(topic string, payload []byte) error {
		token := client.Publish(topic, 0, true, payload)
		token.Wait()
		return token.Error()
	})
}

func newMQTTSink(prefix string, publish publishFunc) *MQTTSink {
	return &MQTTSink{
		prefix:  strings.TrimSuffix(prefix, "/"),
		publish: publish,
	}
}

func (s *MQTTSink) Topic(path string) string {
	return s.prefix + "/" + strings.ReplaceAll(path, ".", "/")
}

func (s *MQTTSink) Emit(d Delta) error {
	for _, pv := range d.Values {
		payload, err := json.Marshal(pv)
		if err != nil {
			return fmt.Errorf("observation.MQTTSink.Emit(): %w", err)
		}
		if err := s.publish(s.Topic(pv.Path), payload); err != nil {
			return fmt.Errorf("observation.MQTTSink.Emit(): %w", err)
		}
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("observation.MQTTSink.Emit(): %w", err)
	}
	if err := s.publish(s.prefix+"/delta", payload); err != nil {
		return fmt.Errorf("observation.MQTTSink.Emit(): %w", err)
	}
	return nil
}
