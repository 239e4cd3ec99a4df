package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber subscribes to the upstream snapshot subjects and feeds raw
// records into the evaluation shell via recordChan. Each subject carries one
// record type; the shell parses and stores them before re-evaluating risk.
type NATSSubscriber struct {
	js         jetstream.JetStream
	recordChan chan<- RawRecord
	consumers  []jetstream.ConsumeContext
	log        zerolog.Logger
}

// RawRecord is a received-but-unparsed record from NATS, ready for the shell
// to convert into a snapshot/market/bank/price record.
type RawRecord struct {
	Subject    string
	RecordType string
	Data       []byte
	Timestamp  time.Time
	AckFunc    func()
	NakFunc    func()
}

// SubjectConfig maps a NATS subject to a record type.
type SubjectConfig struct {
	Subject      string
	RecordType   string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject layout: one subject per
// record type so each can scale independently.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "risk.accounts.>", RecordType: "AccountSnapshot", ConsumerName: "risk-accounts", StreamName: "RISK_ACCOUNTS"},
		{Subject: "risk.markets.>", RecordType: "MarketUpdate", ConsumerName: "risk-markets", StreamName: "RISK_MARKETS"},
		{Subject: "risk.banks.>", RecordType: "BankUpdate", ConsumerName: "risk-banks", StreamName: "RISK_BANKS"},
		{Subject: "risk.prices.>", RecordType: "PriceUpdate", ConsumerName: "risk-prices", StreamName: "RISK_PRICES"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, recordChan chan<- RawRecord, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:         js,
		recordChan: recordChan,
		log:        log,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		cfg := cfg
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawRecord{
				Subject:    msg.Subject(),
				RecordType: cfg.RecordType,
				Data:       msg.Data(),
				Timestamp:  time.Now(),
				AckFunc:    func() { msg.Ack() },
				NakFunc:    func() { msg.Nak() },
			}

			select {
			case ns.recordChan <- raw:
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Snapshot subjects only need the latest record per subject.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streams := []jetstream.StreamConfig{
		{
			Name:              "RISK_ACCOUNTS",
			Subjects:          []string{"risk.accounts.>"},
			Storage:           jetstream.FileStorage,
			Retention:         jetstream.LimitsPolicy,
			MaxMsgsPerSubject: 1,
			Replicas:          1,
		},
		{
			Name:              "RISK_MARKETS",
			Subjects:          []string{"risk.markets.>"},
			Storage:           jetstream.FileStorage,
			Retention:         jetstream.LimitsPolicy,
			MaxMsgsPerSubject: 1,
			Replicas:          1,
		},
		{
			Name:              "RISK_BANKS",
			Subjects:          []string{"risk.banks.>"},
			Storage:           jetstream.FileStorage,
			Retention:         jetstream.LimitsPolicy,
			MaxMsgsPerSubject: 1,
			Replicas:          1,
		},
		{
			Name:              "RISK_PRICES",
			Subjects:          []string{"risk.prices.>"},
			Storage:           jetstream.FileStorage,
			Retention:         jetstream.LimitsPolicy,
			MaxMsgsPerSubject: 1,
			Replicas:          1,
		},
	}

	for _, cfg := range streams {
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", cfg.Name, err)
		}
		log.Info().Str("stream", cfg.Name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
