package embeddednats

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"

	"inspections-api/pkg/shared"
)

type Config struct {
	Port            int
	DataDir         string
	MaxMemory       int64
	MaxFileStore    int64
	JetStreamDomain string
}

type EmbeddedNATS struct {
	server  *server.Server
	nc      *nats.Conn
	js      nats.JetStreamContext
	config  *Config
	streams map[string]*StreamConfig
}

type StreamConfig struct {
	Name            string
	Subjects        []string
	Retention       nats.RetentionPolicy
	MaxMsgs         int64
	MaxBytes        int64
	MaxAge          time.Duration
	MaxMsgSize      int32
	Replicas        int
	DuplicateWindow time.Duration
	AllowRollup     bool
	AllowDirect     bool
	DiscardPolicy   nats.DiscardPolicy
}

func DefaultConfig() *Config {
	return &Config{
		Port:            4222,
		DataDir:         "./data/nats",
		MaxMemory:       64 * 1024 * 1024,  // 64MB
		MaxFileStore:    512 * 1024 * 1024, // 512MB
		JetStreamDomain: "inspections",
	}
}

func New(cfg *Config) (*EmbeddedNATS, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &EmbeddedNATS{
		config:  cfg,
		streams: make(map[string]*StreamConfig),
	}, nil
}

func (en *EmbeddedNATS) Start() error {
	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      en.config.Port,
		JetStream: true,
		StoreDir:  en.config.DataDir,
	}

	// Configure JetStream limits
	opts.JetStreamMaxMemory = en.config.MaxMemory
	opts.JetStreamMaxStore = en.config.MaxFileStore

	if en.config.JetStreamDomain != "" {
		opts.JetStreamDomain = en.config.JetStreamDomain
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create NATS server: %w", err)
	}

	ns.ConfigureLogger()

	go ns.Start()

	if !ns.ReadyForConnections(10 * time.Second) {
		return fmt.Errorf("NATS server not ready for connections")
	}

	en.server = ns

	if err := en.connect(); err != nil {
		ns.Shutdown()
		return fmt.Errorf("failed to connect to embedded NATS: %w", err)
	}

	log.Printf("Embedded NATS server started on port %d", en.config.Port)
	return nil
}

func (en *EmbeddedNATS) connect() error {
	url := en.server.ClientURL()

	nc, err := nats.Connect(url,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Printf("NATS error: %v", err)
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("NATS reconnected")
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	en.nc = nc
	en.js = js
	return nil
}

func (en *EmbeddedNATS) AddStream(streamConfig *StreamConfig) error {
	if en.js == nil {
		return fmt.Errorf("JetStream not initialized")
	}

	config := &nats.StreamConfig{
		Name:        streamConfig.Name,
		Subjects:    streamConfig.Subjects,
		Retention:   streamConfig.Retention,
		MaxMsgs:     streamConfig.MaxMsgs,
		MaxBytes:    streamConfig.MaxBytes,
		MaxAge:      streamConfig.MaxAge,
		MaxMsgSize:  streamConfig.MaxMsgSize,
		Replicas:    streamConfig.Replicas,
		Duplicates:  streamConfig.DuplicateWindow,
		AllowRollup: streamConfig.AllowRollup,
		AllowDirect: streamConfig.AllowDirect,
		Discard:     streamConfig.DiscardPolicy,
	}

	// Try to update stream if it exists, otherwise create it
	stream, err := en.js.StreamInfo(streamConfig.Name)
	if err == nil {
		// Stream exists, update it
		stream, err = en.js.UpdateStream(config)
		if err != nil {
			return fmt.Errorf("failed to update stream %s: %w", streamConfig.Name, err)
		}
		log.Printf("Updated existing stream: %s", streamConfig.Name)
	} else {
		// Stream doesn't exist, create it
		stream, err = en.js.AddStream(config)
		if err != nil {
			return fmt.Errorf("failed to add stream %s: %w", streamConfig.Name, err)
		}
		log.Printf("Created new stream: %s", streamConfig.Name)
	}

	en.streams[streamConfig.Name] = streamConfig
	log.Printf("Stream %s ready with subjects: %v", stream.Config.Name, stream.Config.Subjects)
	return nil
}

// CreateInspectionStreams declares the change-feed stream. Events are kept for
// a week so the audit consumer can replay after a restart.
func (en *EmbeddedNATS) CreateInspectionStreams() error {
	return en.AddStream(&StreamConfig{
		Name:            shared.StreamInspections,
		Subjects:        []string{shared.SubjectInspectionsAll},
		Retention:       nats.LimitsPolicy,
		MaxMsgs:         100000,
		MaxBytes:        128 * 1024 * 1024, // 128MB
		MaxAge:          7 * 24 * time.Hour,
		MaxMsgSize:      1024 * 1024, // 1MB, matches the request body cap
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		AllowRollup:     false,
		AllowDirect:     true,
		DiscardPolicy:   nats.DiscardOld,
	})
}

// PublishWithDedup publishes to JetStream with a Nats-Msg-Id header so that
// retried publishes inside the duplicate window are dropped by the server.
func (en *EmbeddedNATS) PublishWithDedup(subject string, data []byte, msgID string) error {
	if en.js == nil {
		return fmt.Errorf("JetStream not initialized")
	}

	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set(nats.MsgIdHdr, msgID)

	if _, err := en.js.PublishMsg(msg); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (en *EmbeddedNATS) CreateDurableConsumer(streamName, consumerName string, filterSubject string) error {
	config := &nats.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: filterSubject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 1000,
		DeliverPolicy: nats.DeliverAllPolicy,
		ReplayPolicy:  nats.ReplayInstantPolicy,
	}

	// Try to get existing consumer
	_, err := en.js.ConsumerInfo(streamName, consumerName)
	if err == nil {
		// Consumer exists
		log.Printf("Durable consumer already exists: %s on stream: %s", consumerName, streamName)
		return nil
	}

	// Create new consumer
	_, err = en.js.AddConsumer(streamName, config)
	if err != nil {
		return fmt.Errorf("failed to create consumer %s: %w", consumerName, err)
	}

	log.Printf("Created durable consumer: %s on stream: %s", consumerName, streamName)
	return nil
}

func (en *EmbeddedNATS) Connection() *nats.Conn {
	return en.nc
}

func (en *EmbeddedNATS) JetStream() nats.JetStreamContext {
	return en.js
}

// Shutdown drains the client connection then stops the server. The context
// bounds the wait for the server to finish.
func (en *EmbeddedNATS) Shutdown(ctx context.Context) error {
	if en.nc != nil && !en.nc.IsClosed() {
		if err := en.nc.Drain(); err != nil {
			log.Printf("NATS drain failed: %v", err)
			en.nc.Close()
		}
	}

	if en.server == nil {
		return nil
	}

	en.server.Shutdown()
	done := make(chan struct{})
	go func() {
		en.server.WaitForShutdown()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Embedded NATS server stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for NATS shutdown: %w", ctx.Err())
	}
}

func (en *EmbeddedNATS) HealthCheck() error {
	if en.nc == nil {
		return fmt.Errorf("NATS connection not initialized")
	}

	if !en.nc.IsConnected() {
		return fmt.Errorf("NATS not connected")
	}

	if en.server != nil && !en.server.Running() {
		return fmt.Errorf("NATS server not running")
	}

	return nil
}