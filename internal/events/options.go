package events

type ProducerOptions func(e *EventProducer)

// WithOutputTopic overrides the topic events are written under.
func WithOutputTopic(topic string) ProducerOptions {
	return func(e *EventProducer) {
		e.topic = topic
	}
}

// WithSource overrides the CloudEvents source attribute. Useful when several
// deployments share one sink.
func WithSource(source string) ProducerOptions {
	return func(e *EventProducer) {
		e.source = source
	}
}
