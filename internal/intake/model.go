package intake

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/usafa/appointment-intake/internal/directory"
)

// Status a record carries when the consumer first persists it. Later
// transitions happen elsewhere; this pipeline never mutates a record.
const StatusPending = "pending"

// IntakeRequest is the patient-submitted consultation request, exactly as
// received over HTTP. It only exists in transit.
type IntakeRequest struct {
	DoctorID    string `json:"doctorId"`
	SpecialtyID string `json:"specialtyId"`
	Day         string `json:"day"`
	Time        string `json:"time"`
	Symptoms    string `json:"symptoms,omitempty"`
}

// QueuedMessage is the envelope put on the durable queue: the original
// request plus the identity of the patient who submitted it. It has no
// identity of its own beyond queue delivery.
type QueuedMessage struct {
	RequestData IntakeRequest `json:"requestData"`
	PatientID   string        `json:"submittingPatientId"`
}

// AppointmentRecord is the durable, denormalized result of a validated
// intake. Patient, doctor and specialty names are snapshots taken at
// processing time so the record renders without joins and survives
// relational-side edits.
type AppointmentRecord struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Day           string             `bson:"day" json:"day"`
	Time          string             `bson:"time" json:"time"`
	Symptoms      string             `bson:"symptoms,omitempty" json:"symptoms,omitempty"`
	Status        string             `bson:"status" json:"status"`
	PatientID     string             `bson:"patient_id" json:"patientId"`
	DoctorID      string             `bson:"doctor_id" json:"doctorId"`
	SpecialtyID   string             `bson:"specialty_id" json:"specialtyId"`
	PatientName   string             `bson:"patient_name" json:"patientName"`
	DoctorName    string             `bson:"doctor_name" json:"doctorName"`
	SpecialtyName string             `bson:"specialty_name" json:"specialtyName"`
	CreatedAt     time.Time          `bson:"created_at" json:"createdAt"`
}

// NewAppointmentRecord denormalizes the resolved entities into a pending
// record ready for the document store.
func NewAppointmentRecord(req IntakeRequest, patient *directory.Patient, doctor *directory.Doctor, specialty *directory.Specialty) AppointmentRecord {
	return AppointmentRecord{
		Day:           req.Day,
		Time:          req.Time,
		Symptoms:      req.Symptoms,
		Status:        StatusPending,
		PatientID:     patient.ID.String(),
		DoctorID:      doctor.ID.String(),
		SpecialtyID:   specialty.ID.String(),
		PatientName:   patient.Name,
		DoctorName:    doctor.Name,
		SpecialtyName: specialty.Name,
		CreatedAt:     time.Now().UTC(),
	}
}

// Summary is the one-shot notification payload pushed to the submitting
// patient. Not persisted; a missed push is recovered through the normal
// read path.
type Summary struct {
	ReferenceCode string `json:"referenceCode"`
	DoctorName    string `json:"doctorName"`
	SpecialtyName string `json:"specialtyName"`
	Day           string `json:"day"`
	Time          string `json:"time"`
	PatientName   string `json:"patientName"`
	Symptoms      string `json:"symptoms,omitempty"`
}

// Summary builds the notification payload for the record. The reference
// code is the tail of the store-generated id, which is what the patient
// quotes back to the clinic.
func (r AppointmentRecord) Summary() Summary {
	return Summary{
		ReferenceCode: referenceCode(r.ID.Hex()),
		DoctorName:    r.DoctorName,
		SpecialtyName: r.SpecialtyName,
		Day:           r.Day,
		Time:          r.Time,
		PatientName:   r.PatientName,
		Symptoms:      r.Symptoms,
	}
}

func referenceCode(id string) string {
	if len(id) > 8 {
		id = id[len(id)-8:]
	}
	return strings.ToUpper(id)
}
