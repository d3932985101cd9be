package workers

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	embeddednats "inspections-api/pkg/services/embedded-nats"
	"inspections-api/pkg/shared"
)

type Manager struct {
	workers []Worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewManager declares the durable consumers the workers bind to and builds
// the worker set. The NATS connection stays owned by natsClient.
func NewManager(natsClient *embeddednats.EmbeddedNATS) (*Manager, error) {
	if natsClient.Connection() == nil {
		return nil, fmt.Errorf("NATS connection not initialized")
	}

	js := natsClient.JetStream()
	if js == nil {
		return nil, fmt.Errorf("JetStream not initialized")
	}

	if err := natsClient.CreateDurableConsumer(shared.StreamInspections, shared.ConsumerAuditLog, shared.SubjectInspectionsAll); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		ctx:    ctx,
		cancel: cancel,
		workers: []Worker{
			NewAuditWorker(js),
		},
	}, nil
}

func (m *Manager) Start() error {
	log.Println("Starting NATS workers...")

	for _, worker := range m.workers {
		m.wg.Add(1)
		go func(w Worker) {
			defer m.wg.Done()

			log.Printf("Starting worker: %s", w.Name())
			if err := w.Start(m.ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Worker %s error: %v", w.Name(), err)
			}
			log.Printf("Worker %s stopped", w.Name())
		}(worker)
	}

	log.Printf("Started %d workers", len(m.workers))
	return nil
}

func (m *Manager) Stop() error {
	log.Println("Stopping NATS workers...")

	m.cancel()

	for _, worker := range m.workers {
		if err := worker.Stop(); err != nil {
			log.Printf("Error stopping worker %s: %v", worker.Name(), err)
		}
	}

	m.wg.Wait()

	log.Println("All workers stopped")
	return nil
}
