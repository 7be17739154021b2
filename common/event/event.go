package event

import (
	"fmt"

	messagebus "github.com/vardius/message-bus"
	"vincit.fi/image-viewer/api"
	"vincit.fi/image-viewer/api/apitype"
	"vincit.fi/image-viewer/common/logger"
)

type Broker struct {
	bus messagebus.MessageBus

	api.Sender
}

func InitBus(queueSize int) *Broker {
	return &Broker{
		bus: messagebus.New(queueSize),
	}
}

func (s *Broker) Subscribe(topic api.Topic, fn interface{}) {
	err := s.bus.Subscribe(string(topic), fn)
	if err != nil {
		logger.Error.Panic("Could not subscribe")
	}
}

func (s *Broker) Unsubscribe(topic api.Topic, fn interface{}) {
	if err := s.bus.Unsubscribe(string(topic), fn); err != nil {
		logger.Warn.Printf("Could not unsubscribe from '%s': %s", topic, err)
	}
}

func (s *Broker) SendToTopic(topic api.Topic) {
	logger.Trace.Printf("Sending to '%s'", topic)
	s.bus.Publish(string(topic))
}

func (s *Broker) SendCommandToTopic(topic api.Topic, command apitype.Command) {
	logger.Trace.Printf("Sending command to '%s'", topic)
	s.bus.Publish(string(topic), command)
}

func (s *Broker) SendError(message string, err error) {
	logger.Error.Printf("Error: %s", formatError(message, err))
	s.SendCommandToTopic(api.ShowError, &api.ErrorCommand{Message: message})
}

// DevNullSender drops everything. Used when nobody listens to the events.
type DevNullSender struct {
	api.Sender
}

func (s *DevNullSender) SendToTopic(api.Topic) {
}

func (s *DevNullSender) SendCommandToTopic(api.Topic, apitype.Command) {
}

func (s *DevNullSender) SendError(message string, err error) {
	logger.Error.Printf("Error: %s", formatError(message, err))
}

func formatError(message string, err error) string {
	if err != nil {
		return fmt.Sprintf("%s\n%s", message, err.Error())
	}
	return message
}
