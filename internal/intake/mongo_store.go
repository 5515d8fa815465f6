package intake

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const recordCollection = "consultation_requests"

// RecordStore is the document store holding confirmed intake records.
type RecordStore interface {
	Insert(ctx context.Context, rec AppointmentRecord) (AppointmentRecord, error)
	ListByPatient(ctx context.Context, patientID string) ([]AppointmentRecord, error)
}

type MongoStore struct {
	coll *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection(recordCollection)}
}

// Insert writes the record and returns it with the store-generated id set.
func (s *MongoStore) Insert(ctx context.Context, rec AppointmentRecord) (AppointmentRecord, error) {
	res, err := s.coll.InsertOne(ctx, rec)
	if err != nil {
		return AppointmentRecord{}, fmt.Errorf("insert appointment record: %w", err)
	}

	id, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return AppointmentRecord{}, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	rec.ID = id

	return rec, nil
}

func (s *MongoStore) ListByPatient(ctx context.Context, patientID string) ([]AppointmentRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cur, err := s.coll.Find(ctx, bson.M{"patient_id": patientID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list appointment records: %w", err)
	}
	defer cur.Close(ctx)

	var records []AppointmentRecord
	if err := cur.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("decode appointment records: %w", err)
	}

	return records, nil
}
