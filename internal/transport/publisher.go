package transport

import "sync"

// Publisher delivers an addressed payload to whoever is subscribed to the
// address. Delivery is at-least-once, in-order per destination, and a
// publish with no subscriber is silently dropped: callers never retry.
type Publisher interface {
	Publish(address string, payload any) error
}

// Capture is a Publisher that records every publish. Used in tests to
// assert on destinations and payloads.
type Capture struct {
	mu       sync.Mutex
	messages []CapturedMessage

	// FailFor makes Publish return an error for the listed addresses,
	// simulating a broken subscriber.
	FailFor map[string]error
}

type CapturedMessage struct {
	Address string
	Payload any
}

func NewCapture() *Capture {
	return &Capture{}
}

func (c *Capture) Publish(address string, payload any) error {
	if err, ok := c.FailFor[address]; ok {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, CapturedMessage{Address: address, Payload: payload})
	return nil
}

// Messages returns a snapshot of everything published so far.
func (c *Capture) Messages() []CapturedMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CapturedMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// ToAddress returns the publishes sent to one address.
func (c *Capture) ToAddress(address string) []CapturedMessage {
	var out []CapturedMessage
	for _, m := range c.Messages() {
		if m.Address == address {
			out = append(out, m)
		}
	}
	return out
}
