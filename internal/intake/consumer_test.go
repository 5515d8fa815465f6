package intake

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/usafa/appointment-intake/internal/cache"
	"github.com/usafa/appointment-intake/internal/directory"
)

// In-memory doubles for the consumer's collaborators.

type fakeLookup struct {
	patients    map[uuid.UUID]*directory.Patient
	doctors     map[uuid.UUID]*directory.Doctor
	specialties map[uuid.UUID]*directory.Specialty
}

func (f *fakeLookup) GetPatientByID(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	if p, ok := f.patients[id]; ok {
		return p, nil
	}
	return nil, directory.ErrPatientNotFound
}

func (f *fakeLookup) GetDoctorByID(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	if d, ok := f.doctors[id]; ok {
		return d, nil
	}
	return nil, directory.ErrDoctorNotFound
}

func (f *fakeLookup) GetSpecialtyByID(_ context.Context, id uuid.UUID) (*directory.Specialty, error) {
	if s, ok := f.specialties[id]; ok {
		return s, nil
	}
	return nil, directory.ErrSpecialtyNotFound
}

func (f *fakeLookup) ListDoctors(context.Context) ([]directory.Doctor, error) {
	return nil, nil
}

func (f *fakeLookup) ListSpecialties(context.Context) ([]directory.Specialty, error) {
	return nil, nil
}

type fakeStore struct {
	records   []AppointmentRecord
	insertErr error
}

func (f *fakeStore) Insert(_ context.Context, rec AppointmentRecord) (AppointmentRecord, error) {
	if f.insertErr != nil {
		return AppointmentRecord{}, f.insertErr
	}
	rec.ID = primitive.NewObjectID()
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeStore) ListByPatient(_ context.Context, patientID string) ([]AppointmentRecord, error) {
	var out []AppointmentRecord
	for _, r := range f.records {
		if r.PatientID == patientID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeInvalidator struct {
	deleted []string
	err     error
}

func (f *fakeInvalidator) Delete(_ context.Context, key string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = append(f.deleted, key)
	return nil
}

type sentNotification struct {
	patientID string
	summary   Summary
}

type fakeNotifier struct {
	sent []sentNotification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, patientID string, summary Summary) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentNotification{patientID: patientID, summary: summary})
	return nil
}

// Fixture

type fixture struct {
	lookup   *fakeLookup
	store    *fakeStore
	inv      *fakeInvalidator
	notifier *fakeNotifier
	consumer *Consumer

	patientID   uuid.UUID
	doctorID    uuid.UUID
	specialtyID uuid.UUID
	otherSpecID uuid.UUID
}

func newFixture() *fixture {
	f := &fixture{
		patientID:   uuid.New(),
		doctorID:    uuid.New(),
		specialtyID: uuid.New(),
		otherSpecID: uuid.New(),
	}

	f.lookup = &fakeLookup{
		patients: map[uuid.UUID]*directory.Patient{
			f.patientID: {ID: f.patientID, Name: "Maria Souza"},
		},
		doctors: map[uuid.UUID]*directory.Doctor{
			f.doctorID: {ID: f.doctorID, Name: "Dr. Joao Silva", SpecialtyID: f.specialtyID},
		},
		specialties: map[uuid.UUID]*directory.Specialty{
			f.specialtyID: {ID: f.specialtyID, Name: "Cardiology"},
			f.otherSpecID: {ID: f.otherSpecID, Name: "Dermatology"},
		},
	}
	f.store = &fakeStore{}
	f.inv = &fakeInvalidator{}
	f.notifier = &fakeNotifier{}
	f.consumer = NewConsumer(f.lookup, f.store, f.inv, f.notifier, zerolog.Nop())

	return f
}

func (f *fixture) message() QueuedMessage {
	return QueuedMessage{
		RequestData: IntakeRequest{
			DoctorID:    f.doctorID.String(),
			SpecialtyID: f.specialtyID.String(),
			Day:         "2025-12-01",
			Time:        "10:00",
			Symptoms:    "fever",
		},
		PatientID: f.patientID.String(),
	}
}

// Tests

func TestProcess_ValidRequest(t *testing.T) {
	f := newFixture()

	if err := f.consumer.Process(context.Background(), f.message()); err != nil {
		t.Fatalf("Process returned error: %v", err)
	}

	if len(f.store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(f.store.records))
	}

	rec := f.store.records[0]
	if rec.Status != StatusPending {
		t.Errorf("expected status %q, got %q", StatusPending, rec.Status)
	}
	if rec.PatientID != f.patientID.String() {
		t.Errorf("expected patient id %s, got %s", f.patientID, rec.PatientID)
	}
	if rec.DoctorID != f.doctorID.String() {
		t.Errorf("expected doctor id %s, got %s", f.doctorID, rec.DoctorID)
	}
	if rec.PatientName != "Maria Souza" || rec.DoctorName != "Dr. Joao Silva" || rec.SpecialtyName != "Cardiology" {
		t.Errorf("names not denormalized: %+v", rec)
	}
	if rec.Day != "2025-12-01" || rec.Time != "10:00" || rec.Symptoms != "fever" {
		t.Errorf("request fields not carried over: %+v", rec)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.patientID != f.patientID.String() {
		t.Errorf("notification addressed to %s, want %s", n.patientID, f.patientID)
	}
	if n.summary.ReferenceCode == "" {
		t.Error("notification has empty reference code")
	}
	if n.summary.DoctorName != "Dr. Joao Silva" {
		t.Errorf("unexpected summary doctor name %q", n.summary.DoctorName)
	}

	wantKey := cache.AppointmentsKey(f.patientID.String())
	if len(f.inv.deleted) != 1 || f.inv.deleted[0] != wantKey {
		t.Errorf("expected cache delete of %q, got %v", wantKey, f.inv.deleted)
	}
}

func TestProcess_SpecialtyMismatch(t *testing.T) {
	f := newFixture()

	msg := f.message()
	msg.RequestData.SpecialtyID = f.otherSpecID.String()

	err := f.consumer.Process(context.Background(), msg)
	if !errors.Is(err, ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}

	if len(f.store.records) != 0 {
		t.Errorf("expected no records, got %d", len(f.store.records))
	}
	if len(f.notifier.sent) != 0 {
		t.Errorf("expected no notifications, got %d", len(f.notifier.sent))
	}
	if len(f.inv.deleted) != 0 {
		t.Errorf("expected no cache deletes, got %v", f.inv.deleted)
	}
}

func TestProcess_UnknownReferences(t *testing.T) {
	unknown := uuid.New().String()

	tests := []struct {
		name   string
		mutate func(*QueuedMessage)
	}{
		{"unknown patient", func(m *QueuedMessage) { m.PatientID = unknown }},
		{"unknown doctor", func(m *QueuedMessage) { m.RequestData.DoctorID = unknown }},
		{"unknown specialty", func(m *QueuedMessage) { m.RequestData.SpecialtyID = unknown }},
		{"malformed patient id", func(m *QueuedMessage) { m.PatientID = "not-a-uuid" }},
		{"malformed doctor id", func(m *QueuedMessage) { m.RequestData.DoctorID = "not-a-uuid" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			msg := f.message()
			tt.mutate(&msg)

			err := f.consumer.Process(context.Background(), msg)
			if !errors.Is(err, ErrRejected) {
				t.Fatalf("expected ErrRejected, got %v", err)
			}
			if len(f.store.records) != 0 {
				t.Errorf("expected no records, got %d", len(f.store.records))
			}
			if len(f.notifier.sent) != 0 {
				t.Errorf("expected no notifications, got %d", len(f.notifier.sent))
			}
		})
	}
}

func TestProcess_StoreUnavailableIsRetryable(t *testing.T) {
	f := newFixture()
	f.store.insertErr = errors.New("mongo unavailable")

	err := f.consumer.Process(context.Background(), f.message())
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if errors.Is(err, ErrRejected) {
		t.Fatalf("store failure must be retryable, not a rejection: %v", err)
	}

	if len(f.notifier.sent) != 0 {
		t.Errorf("expected no notifications, got %d", len(f.notifier.sent))
	}
	if len(f.inv.deleted) != 0 {
		t.Errorf("expected no cache deletes, got %v", f.inv.deleted)
	}
}

func TestProcess_CacheFailureIsNonFatal(t *testing.T) {
	f := newFixture()
	f.inv.err = errors.New("redis down")

	if err := f.consumer.Process(context.Background(), f.message()); err != nil {
		t.Fatalf("cache failure must not fail the pipeline: %v", err)
	}
	if len(f.store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(f.store.records))
	}
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.sent))
	}
}

func TestProcess_NotifyFailureIsNonFatal(t *testing.T) {
	f := newFixture()
	f.notifier.err = errors.New("channel gone")

	if err := f.consumer.Process(context.Background(), f.message()); err != nil {
		t.Fatalf("notify failure must not fail the pipeline: %v", err)
	}
	if len(f.store.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(f.store.records))
	}
}

// TestProcess_RedeliveryDuplicates pins down current behavior: a message
// redelivered after a lost acknowledgement produces a second record. There
// is no deduplication key on the queued message yet.
func TestProcess_RedeliveryDuplicates(t *testing.T) {
	f := newFixture()
	msg := f.message()

	if err := f.consumer.Process(context.Background(), msg); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := f.consumer.Process(context.Background(), msg); err != nil {
		t.Fatalf("redelivery: %v", err)
	}

	if len(f.store.records) != 2 {
		t.Fatalf("expected duplicate records under redelivery, got %d", len(f.store.records))
	}
}
