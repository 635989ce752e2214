package messaging

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/wahaj4311/microservices-demo/internal/shared/events"

	"github.com/streadway/amqp"
)

type EventHandler func(event events.Event) error

type Consumer struct {
	client      *RabbitMQClient
	queueName   string
	serviceName string
}

func NewConsumer(client *RabbitMQClient, queueName, serviceName string) *Consumer {
	return &Consumer{
		client:      client,
		queueName:   queueName,
		serviceName: serviceName,
	}
}

// ConsumeEvents binds the consumer queue to the given routing keys and
// dispatches deliveries to handler on a background goroutine. A handler
// error nacks the delivery without requeue; redelivery policy is left to
// the broker (dead-letter configuration).
func (c *Consumer) ConsumeEvents(routingKeys []string, handler EventHandler) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("no connection to RabbitMQ")
	}

	channel := c.client.Channel()

	queue, err := channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("queue declare error: %v", err)
	}

	for _, routingKey := range routingKeys {
		err = channel.QueueBind(
			queue.Name,
			routingKey,
			c.client.config.Exchange,
			false,
			nil,
		)
		if err != nil {
			return fmt.Errorf("queue bind error (%s): %v", routingKey, err)
		}
		log.Printf("Queue %s bound to routing key: %s", queue.Name, routingKey)
	}

	messages, err := channel.Consume(
		queue.Name,
		c.serviceName,
		false, // manual ack
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume start error: %v", err)
	}

	log.Printf("Consuming events on queue: %s", queue.Name)

	go c.dispatch(messages, handler)

	return nil
}

// dispatch loops over deliveries until the channel closes (broker
// connection lost) or the client shuts down. The ok check matters: a
// closed delivery channel yields zero values forever, which would spin
// the loop nacking empty deliveries.
func (c *Consumer) dispatch(messages <-chan amqp.Delivery, handler EventHandler) {
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				log.Printf("Delivery channel closed: %s", c.serviceName)
				return
			}
			c.handleMessage(msg, handler)
		case <-c.client.ctx.Done():
			log.Printf("Consumer stopped: %s", c.serviceName)
			return
		}
	}
}

func (c *Consumer) handleMessage(msg amqp.Delivery, handler EventHandler) {
	var event events.Event

	if err := json.Unmarshal(msg.Body, &event); err != nil {
		log.Printf("Event deserialize error: %v", err)
		msg.Nack(false, false)
		return
	}

	if err := handler(event); err != nil {
		log.Printf("Event process error (%s): %v", event.EventType, err)
		msg.Nack(false, false)
		return
	}

	msg.Ack(false)
}
