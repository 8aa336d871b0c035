package mq

import "time"

// Message is a queue record. ID doubles as the partition key so events of one
// submission stay ordered.
type Message struct {
	ID        string            `json:"id"`
	Body      []byte            `json:"body"`
	Headers   map[string]string `json:"headers"`
	Timestamp time.Time         `json:"timestamp"`
	// Attempts is how many times a consumer already failed this message.
	Attempts int `json:"attempts"`
}

func NewMessage(body []byte) *Message {
	return &Message{
		Body:      body,
		Headers:   map[string]string{},
		Timestamp: time.Now().UTC(),
	}
}

func (m *Message) SetHeader(key, value string) {
	if m.Headers == nil {
		m.Headers = map[string]string{}
	}
	m.Headers[key] = value
}

func (m *Message) GetHeader(key string) (string, bool) {
	v, ok := m.Headers[key]
	return v, ok
}
