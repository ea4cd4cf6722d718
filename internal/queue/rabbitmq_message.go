package queue

import (
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a decoded job still owned by its AMQP delivery. Exactly one of
// Ack or Nack must be called.
type Message struct {
	Job         *Job
	Redelivered bool
	delivery    amqp.Delivery
}

func newMessage(job *Job, delivery amqp.Delivery) *Message {
	return &Message{Job: job, Redelivered: delivery.Redelivered, delivery: delivery}
}

// Ack removes the job from the queue
func (m *Message) Ack() error {
	return m.delivery.Ack(false)
}

// Nack returns the job to the queue when requeue is set; otherwise the broker
// dead-letters it.
func (m *Message) Nack(requeue bool) error {
	return m.delivery.Nack(false, requeue)
}

// GetJob returns the decoded job
func (m *Message) GetJob() *Job {
	return m.Job
}

var _ MessageInterface = (*Message)(nil)
