package wsx

import (
	"context"
	"fmt"
	"sync"
)

// subscriptions is the topic <-> sub_key bijection.
type subscriptions struct {
	mu            sync.RWMutex
	topicToSubKey map[string]string
	subKeyToTopic map[string]string
}

func newSubscriptions() *subscriptions {
	return &subscriptions{
		topicToSubKey: make(map[string]string),
		subKeyToTopic: make(map[string]string),
	}
}

// set maps topic to subKey, dropping any previous partner of either side.
func (s *subscriptions) set(topic, subKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.topicToSubKey[topic]; ok {
		delete(s.subKeyToTopic, old)
	}
	if old, ok := s.subKeyToTopic[subKey]; ok {
		delete(s.topicToSubKey, old)
	}
	s.topicToSubKey[topic] = subKey
	s.subKeyToTopic[subKey] = topic
}

// remove drops topic and subKey together with their partners.
func (s *subscriptions) remove(topic, subKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if k, ok := s.topicToSubKey[topic]; ok {
		delete(s.subKeyToTopic, k)
		delete(s.topicToSubKey, topic)
	}
	if t, ok := s.subKeyToTopic[subKey]; ok {
		delete(s.topicToSubKey, t)
		delete(s.subKeyToTopic, subKey)
	}
}

func (s *subscriptions) subKey(topic string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.topicToSubKey[topic]
	return k, ok
}

func (s *subscriptions) topic(subKey string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.subKeyToTopic[subKey]
	return t, ok
}

func (s *subscriptions) snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]string, len(s.topicToSubKey))
	for t, k := range s.topicToSubKey {
		out[t] = k
	}
	return out
}

// SubKey returns the subscription key of topic.
func (c *Client) SubKey(topic string) (string, bool) {
	return c.subs.subKey(topic)
}

// Topic returns the topic of a subscription key.
func (c *Client) Topic(subKey string) (string, bool) {
	return c.subs.topic(subKey)
}

// Subscriptions returns a copy of the topic to sub_key mapping.
func (c *Client) Subscriptions() map[string]string {
	return c.subs.snapshot()
}

// SubscribeOrResume resumes the known subscription to topic, or subscribes
// when there is none. It returns the subscription key.
func (c *Client) SubscribeOrResume(ctx context.Context, topic string) (string, error) {
	if subKey, ok := c.subs.subKey(topic); ok {
		return subKey, c.ResumeSubscription(ctx, subKey, topic)
	}
	return c.Subscribe(ctx, topic)
}

// Subscribe creates a new subscription to topic and records its key.
func (c *Client) Subscribe(ctx context.Context, topic string) (string, error) {
	c.logger.Info("subscribing", "topic", topic)

	resp, err := c.Invoke(ctx, c.service("pubsub.pubapi.subscribe-wsx"), map[string]string{
		"topic_name": topic,
	})
	if err != nil {
		return "", err
	}

	subKey, ok := resp.StringField("sub_key")
	if !ok {
		c.logger.Warn("no sub_key in subscribe response", "topic", topic, "response", resp.String())
		return "", fmt.Errorf("subscribe %s: %w", topic, ErrMissingSubKey)
	}

	c.subs.set(topic, subKey)
	c.logger.Info("received sub_key", "topic", topic, "sub_key", subKey)
	return subKey, nil
}

// ResumeSubscription resumes delivery for an existing subscription key.
// The mapping is expected to be known already.
func (c *Client) ResumeSubscription(ctx context.Context, subKey, topic string) error {
	c.logger.Info("resuming subscription", "topic", topic, "sub_key", subKey)

	_, err := c.Invoke(ctx, c.service("pubsub.resume-wsx-subscription"), map[string]string{
		"sub_key": subKey,
	})
	return err
}

// Unsubscribe cancels a subscription and forgets its mapping once the
// server has answered.
func (c *Client) Unsubscribe(ctx context.Context, subKey, topic string) error {
	c.logger.Info("unsubscribing", "topic", topic, "sub_key", subKey)

	if _, err := c.Invoke(ctx, c.service("pubsub.pubapi.unsubscribe"), map[string]string{
		"sub_key": subKey,
	}); err != nil {
		return err
	}

	c.subs.remove(topic, subKey)
	return nil
}

// resumeAll resumes every known subscription after a reconnect.
func (c *Client) resumeAll(ctx context.Context) {
	for topic, subKey := range c.subs.snapshot() {
		if err := c.ResumeSubscription(ctx, subKey, topic); err != nil {
			c.reportError(fmt.Errorf("resume %s: %w", topic, err))
		}
	}
}
