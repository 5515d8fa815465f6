package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/usafa/appointment-intake/internal/cache"
	"github.com/usafa/appointment-intake/internal/directory"
	"github.com/usafa/appointment-intake/internal/intake"
)

// Publisher puts a serialized queue message on the durable intake queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// ConsultationCache is the read-through cache used by the query endpoints.
type ConsultationCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// createConsultationHandler accepts an intake request, checks only that the
// required fields are present, and hands it to the queue. Business
// validation happens in the consumer; the 202 means "received", nothing
// more. A broker failure is a 500: no other record of the request exists.
func createConsultationHandler(pub Publisher, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := PatientID(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "a valid patient token is required")
			return
		}

		var req CreateConsultationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		if req.DoctorID == "" || req.SpecialtyID == "" || req.Day == "" || req.Time == "" {
			writeError(w, http.StatusBadRequest, "missing_fields", "doctorId, specialtyId, day and time are required")
			return
		}

		msg := intake.QueuedMessage{
			RequestData: intake.IntakeRequest{
				DoctorID:    req.DoctorID,
				SpecialtyID: req.SpecialtyID,
				Day:         req.Day,
				Time:        req.Time,
				Symptoms:    req.Symptoms,
			},
			PatientID: patientID,
		}

		body, err := json.Marshal(msg)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", "could not encode request")
			return
		}

		if err := pub.Publish(r.Context(), body); err != nil {
			log.Error().Err(err).Str("patient_id", patientID).Msg("intake publish failed")
			writeError(w, http.StatusInternalServerError, "queue_unavailable", "your request could not be processed right now")
			return
		}

		log.Info().Str("patient_id", patientID).Msg("intake request queued")

		writeJSON(w, http.StatusAccepted, AcceptedResponse{
			Status:  "accepted",
			Message: "Your request was received and is being processed.",
		})
	}
}

// listConsultationsHandler returns the caller's appointment records,
// read-through cached per patient. The consumer deletes this key on every
// successful write, so a fresh read always sees the new record.
func listConsultationsHandler(records intake.RecordStore, cc ConsultationCache, ttl time.Duration, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := PatientID(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "a valid patient token is required")
			return
		}

		key := cache.AppointmentsKey(patientID)

		var cached []intake.AppointmentRecord
		hit, err := cc.GetJSON(r.Context(), key, &cached)
		if err != nil {
			log.Warn().Err(err).Str("patient_id", patientID).Msg("appointments cache read failed")
		}
		if hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}

		result, err := records.ListByPatient(r.Context(), patientID)
		if err != nil {
			log.Error().Err(err).Str("patient_id", patientID).Msg("list appointment records failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "could not load your consultations")
			return
		}
		if result == nil {
			result = []intake.AppointmentRecord{}
		}

		if err := cc.SetJSON(r.Context(), key, result, ttl); err != nil {
			log.Warn().Err(err).Str("patient_id", patientID).Msg("appointments cache write failed")
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// formOptionsHandler returns the select options for the booking form,
// cached under a single global key.
func formOptionsHandler(lookup directory.Lookup, cc ConsultationCache, ttl time.Duration, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var cached FormOptions
		hit, err := cc.GetJSON(r.Context(), cache.FormOptionsKey, &cached)
		if err != nil {
			log.Warn().Err(err).Msg("form options cache read failed")
		}
		if hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}

		doctors, err := lookup.ListDoctors(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("list doctors failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "could not load booking options")
			return
		}

		specialties, err := lookup.ListSpecialties(r.Context())
		if err != nil {
			log.Error().Err(err).Msg("list specialties failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "could not load booking options")
			return
		}

		options := FormOptions{
			Doctors:     make([]SelectOption, 0, len(doctors)),
			Specialties: make([]SelectOption, 0, len(specialties)),
			Days:        upcomingBusinessDays(time.Now(), 7),
			Times:       consultationTimes(),
		}
		for _, d := range doctors {
			options.Doctors = append(options.Doctors, SelectOption{Value: d.ID.String(), Label: d.Name})
		}
		for _, s := range specialties {
			options.Specialties = append(options.Specialties, SelectOption{Value: s.ID.String(), Label: s.Name})
		}

		if err := cc.SetJSON(r.Context(), cache.FormOptionsKey, options, ttl); err != nil {
			log.Warn().Err(err).Msg("form options cache write failed")
		}

		writeJSON(w, http.StatusOK, options)
	}
}

// upcomingBusinessDays generates the next n weekdays starting from today.
func upcomingBusinessDays(from time.Time, n int) []SelectOption {
	days := make([]SelectOption, 0, n)
	for d := from; len(days) < n; d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		days = append(days, SelectOption{
			Value: d.Format("2006-01-02"),
			Label: d.Format("Mon 02/01"),
		})
	}
	return days
}

func consultationTimes() []SelectOption {
	slots := []string{"09:00", "10:00", "11:00", "13:00", "14:00", "15:00", "16:00"}
	times := make([]SelectOption, 0, len(slots))
	for _, s := range slots {
		times = append(times, SelectOption{Value: s, Label: s})
	}
	return times
}
