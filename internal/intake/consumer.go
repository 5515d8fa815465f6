package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/usafa/appointment-intake/internal/cache"
	"github.com/usafa/appointment-intake/internal/directory"
	"github.com/usafa/appointment-intake/internal/rabbitmq"
)

// ErrRejected marks a business-rule failure: the message is logged and
// discarded, never redelivered. Everything else that fails before the
// document store write is treated as transient and requeued.
var ErrRejected = errors.New("intake request rejected")

// Invalidator is the only contract the consumer has with the cache:
// delete by key after a successful record write.
type Invalidator interface {
	Delete(ctx context.Context, key string) error
}

// Notifier pushes a one-shot summary to the submitting patient's channel,
// if one is connected. Fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, patientID string, summary Summary) error
}

// Consumer validates queued intake requests against the relational
// directory, persists the denormalized record, invalidates the patient's
// cache entry and pushes a confirmation.
type Consumer struct {
	lookup   directory.Lookup
	records  RecordStore
	cache    Invalidator
	notifier Notifier
	log      zerolog.Logger
}

func NewConsumer(lookup directory.Lookup, records RecordStore, inv Invalidator, notifier Notifier, log zerolog.Logger) *Consumer {
	return &Consumer{
		lookup:   lookup,
		records:  records,
		cache:    inv,
		notifier: notifier,
		log:      log,
	}
}

// Process runs the per-message state machine. A nil return means a record
// was durably written; an ErrRejected return means the message must be
// discarded; any other error means nothing durable happened yet and the
// message should be redelivered.
func (c *Consumer) Process(ctx context.Context, msg QueuedMessage) error {
	req := msg.RequestData

	// Resolve
	patientID, err := uuid.Parse(msg.PatientID)
	if err != nil {
		return fmt.Errorf("%w: bad patient id %q", ErrRejected, msg.PatientID)
	}
	doctorID, err := uuid.Parse(req.DoctorID)
	if err != nil {
		return fmt.Errorf("%w: bad doctor id %q", ErrRejected, req.DoctorID)
	}
	specialtyID, err := uuid.Parse(req.SpecialtyID)
	if err != nil {
		return fmt.Errorf("%w: bad specialty id %q", ErrRejected, req.SpecialtyID)
	}

	patient, err := c.lookup.GetPatientByID(ctx, patientID)
	if err != nil {
		return rejectOnMiss(err, directory.ErrPatientNotFound)
	}

	doctor, err := c.lookup.GetDoctorByID(ctx, doctorID)
	if err != nil {
		return rejectOnMiss(err, directory.ErrDoctorNotFound)
	}

	specialty, err := c.lookup.GetSpecialtyByID(ctx, specialtyID)
	if err != nil {
		return rejectOnMiss(err, directory.ErrSpecialtyNotFound)
	}

	// Validate
	if doctor.SpecialtyID != specialty.ID {
		return fmt.Errorf("%w: doctor %s does not belong to specialty %s", ErrRejected, doctor.ID, specialty.ID)
	}

	// Persist. Failure here must not ack the delivery: nothing durable
	// exists yet, so the message is requeued.
	rec := NewAppointmentRecord(req, patient, doctor, specialty)
	saved, err := c.records.Insert(ctx, rec)
	if err != nil {
		return err
	}

	c.log.Info().
		Str("record_id", saved.ID.Hex()).
		Str("patient_id", saved.PatientID).
		Msg("appointment record persisted")

	// Invalidate the patient's cached list. Best-effort: a stale entry
	// self-expires via TTL.
	if err := c.cache.Delete(ctx, cache.AppointmentsKey(saved.PatientID)); err != nil {
		c.log.Warn().Err(err).
			Str("patient_id", saved.PatientID).
			Msg("cache invalidation failed")
	}

	// Notify. Best-effort: a disconnected patient re-fetches through the
	// normal read path.
	if err := c.notifier.Notify(ctx, saved.PatientID, saved.Summary()); err != nil {
		c.log.Warn().Err(err).
			Str("patient_id", saved.PatientID).
			Msg("confirmation push failed")
	}

	return nil
}

func rejectOnMiss(err, miss error) error {
	if errors.Is(err, miss) {
		return fmt.Errorf("%w: %s", ErrRejected, err)
	}
	return err
}

// handle decodes one delivery, processes it, and settles it according to
// the outcome. A body that does not decode is discarded like a business
// failure; requeueing it could never succeed.
func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg QueuedMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.log.Warn().Err(err).Msg("dropping undecodable intake message")
		if err := d.Ack(false); err != nil {
			c.log.Error().Err(err).Msg("ack failed")
		}
		return
	}

	log := c.log.With().Str("patient_id", msg.PatientID).Logger()
	log.Info().Msg("intake message received")

	err := c.Process(ctx, msg)
	switch {
	case err == nil:
		if err := d.Ack(false); err != nil {
			log.Error().Err(err).Msg("ack failed; a duplicate record is possible on redelivery")
		}
	case errors.Is(err, ErrRejected):
		log.Warn().Err(err).Msg("intake request rejected")
		if err := d.Ack(false); err != nil {
			log.Error().Err(err).Msg("ack failed")
		}
	default:
		log.Error().Err(err).Msg("intake processing failed, requeueing")
		if err := d.Nack(false, true); err != nil {
			log.Error().Err(err).Msg("nack failed")
		}
	}
}

// Run consumes the intake queue until ctx is cancelled. Each delivery is
// handled on a detached context so that shutdown stops pulling new
// messages but lets the in-flight one finish its document store write.
func (c *Consumer) Run(ctx context.Context, conn *amqp.Connection, top rabbitmq.Topology, prefetch int) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	defer ch.Close()

	if err := rabbitmq.Declare(ch, top); err != nil {
		return err
	}

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.Consume(
		top.Queue,
		"",    // consumer tag, broker-generated
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", top.Queue, err)
	}

	c.log.Info().Str("queue", top.Queue).Msg("consuming intake requests")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("shutdown signal received, stopping consumer")
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed by broker")
			}

			procCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			c.handle(procCtx, d)
			cancel()
		}
	}
}
