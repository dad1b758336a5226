package eventconsumers

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/trackerkit/perkwatch/src/eventmodels"
	"github.com/trackerkit/perkwatch/src/eventpubsub"
	"github.com/trackerkit/perkwatch/src/utils"
)

// EventJournal collects every published automation event and flushes them to
// a CSV file on shutdown, the record the export command reads back.
type EventJournal struct {
	wg     *sync.WaitGroup
	outDir string

	mu     sync.Mutex
	events []*eventmodels.AutomationEvent
}

func NewEventJournal(wg *sync.WaitGroup, outDir string) *EventJournal {
	return &EventJournal{
		wg:     wg,
		outDir: outDir,
	}
}

func (j *EventJournal) Start(ctx context.Context) {
	j.wg.Add(1)

	if err := eventpubsub.Subscribe(eventpubsub.AutomationEventTopic, j.record); err != nil {
		log.Errorf("EventJournal.Start: failed to subscribe: %v", err)
	}

	go func() {
		defer j.wg.Done()

		<-ctx.Done()

		if err := j.Flush(); err != nil {
			log.Errorf("EventJournal: %v", err)
		}
	}()
}

func (j *EventJournal) record(event *eventmodels.AutomationEvent) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.events = append(j.events, event)
}

func (j *EventJournal) Events() []*eventmodels.AutomationEvent {
	j.mu.Lock()
	defer j.mu.Unlock()

	out := make([]*eventmodels.AutomationEvent, len(j.events))
	copy(out, j.events)
	return out
}

func (j *EventJournal) Flush() error {
	events := j.Events()
	if len(events) == 0 {
		log.Info("EventJournal.Flush: no events recorded")
		return nil
	}

	csvPath, err := utils.ExportToCsv(j.outDir, events, "automation_events")
	if err != nil {
		return err
	}

	log.Infof("EventJournal.Flush: wrote %d events to %s", len(events), csvPath)
	return nil
}
