package messaging

import (
	"slices"

	"github.com/segmentio/kafka-go"
)

// MessageCarrier adapts kafka message headers to the otel TextMapCarrier
// interface.
type MessageCarrier struct {
	msg *kafka.Message
}

func NewMessageCarrier(msg *kafka.Message) *MessageCarrier {
	return &MessageCarrier{msg: msg}
}

func (c *MessageCarrier) Get(key string) string {
	if i := c.index(key); i >= 0 {
		return string(c.msg.Headers[i].Value)
	}
	return ""
}

// Set overwrites an existing header so a re-published message does not
// carry two trace parents.
func (c *MessageCarrier) Set(key, value string) {
	if i := c.index(key); i >= 0 {
		c.msg.Headers[i].Value = []byte(value)
		return
	}
	c.msg.Headers = append(c.msg.Headers, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *MessageCarrier) Keys() []string {
	keys := make([]string, 0, len(c.msg.Headers))
	for _, h := range c.msg.Headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *MessageCarrier) index(key string) int {
	return slices.IndexFunc(c.msg.Headers, func(h kafka.Header) bool {
		return h.Key == key
	})
}
