package eventpubsub

import (
	"github.com/asaskevich/EventBus"
	log "github.com/sirupsen/logrus"

	"github.com/trackerkit/perkwatch/src/eventmodels"
)

var bus EventBus.Bus

func Init() {
	bus = EventBus.New()
}

func Publish(topic string, event interface{}) {
	bus.Publish(topic, event)
}

func Subscribe(topic string, callbackFn interface{}) error {
	if err := bus.SubscribeAsync(topic, callbackFn, false); err != nil {
		return err
	}

	log.Infof("Subscribed to topic %s", topic)
	return nil
}

// PublishAutomationEvent delivers one decision outcome to the notifier
// boundary. Every outcome goes through here; nothing is silently dropped.
func PublishAutomationEvent(publisherName string, event *eventmodels.AutomationEvent) {
	log.WithFields(log.Fields{
		"publisher": publisherName,
		"session":   event.SessionLabel,
		"perk":      event.Perk,
		"outcome":   event.Outcome,
	}).Debug(event.String())

	bus.Publish(AutomationEventTopic, event)
}

func PublishError(publisherName string, err error) {
	log.Errorf("%s: %v", publisherName, err)
	bus.Publish(ErrorTopic, err)
}
