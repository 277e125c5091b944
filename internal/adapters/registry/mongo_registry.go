// Package registry contains the MongoDB adapter for the case registry.
//
// Every state-changing operation is a single FindOneAndUpdate whose filter
// expresses the required pre-state and whose update expresses the post-state.
// Mongo applies the pair atomically per document, so a failed precondition and
// a lost race are the same thing at the driver level: ErrNoDocuments,
// translated here to (false, nil).
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/gridcompute/gridcompute/internal/core/griderrors"
	"github.com/gridcompute/gridcompute/internal/core/models"
	"github.com/gridcompute/gridcompute/internal/ports/secondary"
)

const (
	databaseName       = "gridcompute"
	casesCollection    = "cases"
	versionsCollection = "versions"
)

// MongoRegistry implements secondary.CaseRegistry against a MongoDB instance.
type MongoRegistry struct {
	client   *mongo.Client
	cases    *mongo.Collection
	versions *mongo.Collection
}

var _ secondary.CaseRegistry = (*MongoRegistry)(nil)

// Connect dials the MongoDB server and returns a registry bound to the
// gridcompute database.
func Connect(ctx context.Context, server, userGroup, password string) (*MongoRegistry, error) {
	uri := fmt.Sprintf("mongodb://%s:%s@%s/%s", userGroup, password, server, databaseName)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, griderrors.New(griderrors.TransientDB, fmt.Errorf("failed to connect to %s: %w", server, err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, griderrors.New(griderrors.TransientDB, fmt.Errorf("failed to reach %s: %w", server, err))
	}
	db := client.Database(databaseName)
	return &MongoRegistry{
		client:   client,
		cases:    db.Collection(casesCollection),
		versions: db.Collection(versionsCollection),
	}, nil
}

// document shapes mirror the record shape in the cases collection.

type attemptDoc struct {
	Machine string `bson:"machine"`
	User    string `bson:"user"`
}

type currentDoc struct {
	Machine   string     `bson:"machine"`
	User      string     `bson:"user"`
	StartedAt time.Time  `bson:"started_at"`
	EndedAt   *time.Time `bson:"ended_at,omitempty"`
}

type processorsDoc struct {
	Attempts []attemptDoc `bson:"attempts"`
	Current  *currentDoc  `bson:"current,omitempty"`
}

type originDoc struct {
	Machine     string     `bson:"machine"`
	User        string     `bson:"user"`
	SubmittedAt time.Time  `bson:"submitted_at"`
	ReceivedAt  *time.Time `bson:"received_at,omitempty"`
}

type caseDoc struct {
	ID            primitive.ObjectID `bson:"_id"`
	UserGroup     string             `bson:"user_group"`
	Instance      string             `bson:"instance"`
	Application   string             `bson:"application"`
	Status        string             `bson:"status"`
	Path          string             `bson:"path"`
	Origin        originDoc          `bson:"origin"`
	Processors    processorsDoc      `bson:"processors"`
	LastHeartbeat time.Time          `bson:"last_heartbeat"`
}

type versionDoc struct {
	ID      string `bson:"_id"`
	Status  string `bson:"status"`
	Message string `bson:"message,omitempty"`
}

// NewID returns a fresh ObjectID hex string. ObjectIDs embed a timestamp in
// their high bytes, so id order is time order.
func (r *MongoRegistry) NewID() string {
	return primitive.NewObjectID().Hex()
}

// Insert persists a new case record. Duplicate ids are rejected by the
// unique _id index.
func (r *MongoRegistry) Insert(ctx context.Context, rec *models.CaseRecord) error {
	doc, err := toDoc(rec)
	if err != nil {
		return err
	}
	if _, err := r.cases.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return griderrors.New(griderrors.PermanentDB, fmt.Errorf("case %s already exists", rec.ID))
		}
		return wrapDB(err, "insert")
	}
	return nil
}

// Get retrieves a single case record by id.
func (r *MongoRegistry) Get(ctx context.Context, id string) (*models.CaseRecord, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	var doc caseDoc
	if err := r.cases.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, griderrors.New(griderrors.PermanentDB, fmt.Errorf("case %s not found", id))
		}
		return nil, wrapDB(err, "get")
	}
	rec := fromDoc(doc)
	return &rec, nil
}

// FindClaimable returns TO_PROCESS records in scope whose application is in
// the supported set, sorted by _id ascending (time order, acceptable FIFO).
func (r *MongoRegistry) FindClaimable(ctx context.Context, userGroup, instance string, applications []string) ([]models.CaseRecord, error) {
	if len(applications) == 0 {
		return nil, nil
	}
	filter := bson.M{
		"user_group":  userGroup,
		"instance":    instance,
		"status":      string(models.StatusToProcess),
		"application": bson.M{"$in": applications},
	}
	return r.find(ctx, filter)
}

// FindProcessing returns PROCESSING records in scope for the reclamation scan.
func (r *MongoRegistry) FindProcessing(ctx context.Context, userGroup, instance string) ([]models.CaseRecord, error) {
	return r.find(ctx, bson.M{
		"user_group": userGroup,
		"instance":   instance,
		"status":     string(models.StatusProcessing),
	})
}

// FindProcessedBy returns PROCESSED records submitted by originMachine.
func (r *MongoRegistry) FindProcessedBy(ctx context.Context, userGroup, instance, originMachine string) ([]models.CaseRecord, error) {
	return r.find(ctx, bson.M{
		"user_group":     userGroup,
		"instance":       instance,
		"status":         string(models.StatusProcessed),
		"origin.machine": originMachine,
	})
}

// FindByOrigin returns all records submitted by the given identity.
func (r *MongoRegistry) FindByOrigin(ctx context.Context, userGroup, instance string, origin models.Identity) ([]models.CaseRecord, error) {
	return r.find(ctx, bson.M{
		"user_group":     userGroup,
		"instance":       instance,
		"origin.machine": origin.Machine,
		"origin.user":    origin.User,
	})
}

func (r *MongoRegistry) find(ctx context.Context, filter bson.M) ([]models.CaseRecord, error) {
	cursor, err := r.cases.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, wrapDB(err, "find")
	}
	defer cursor.Close(ctx)

	var records []models.CaseRecord
	for cursor.Next(ctx) {
		var doc caseDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, wrapDB(err, "decode")
		}
		records = append(records, fromDoc(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, wrapDB(err, "cursor")
	}
	return records, nil
}

// Claim transitions TO_PROCESS -> PROCESSING for claimer.
func (r *MongoRegistry) Claim(ctx context.Context, id string, claimer models.Identity, now time.Time) (bool, error) {
	return r.cas(ctx, id,
		bson.M{"status": string(models.StatusToProcess)},
		bson.M{
			"$set": bson.M{
				"status": string(models.StatusProcessing),
				"processors.current": currentDoc{
					Machine:   claimer.Machine,
					User:      claimer.User,
					StartedAt: now,
				},
				"last_heartbeat": now,
			},
			"$push": bson.M{
				"processors.attempts": attemptDoc{Machine: claimer.Machine, User: claimer.User},
			},
		})
}

// Heartbeat refreshes last_heartbeat while claimer holds the case.
func (r *MongoRegistry) Heartbeat(ctx context.Context, id string, claimer models.Identity, now time.Time) (bool, error) {
	return r.cas(ctx, id,
		holderFilter(claimer),
		bson.M{"$set": bson.M{"last_heartbeat": now}})
}

// Complete transitions PROCESSING -> PROCESSED while claimer holds the case.
func (r *MongoRegistry) Complete(ctx context.Context, id string, claimer models.Identity, now time.Time) (bool, error) {
	return r.cas(ctx, id,
		holderFilter(claimer),
		bson.M{"$set": bson.M{
			"status":                      string(models.StatusProcessed),
			"processors.current.ended_at": now,
		}})
}

// Reclaim resets PROCESSING -> TO_PROCESS when the heartbeat is stale.
func (r *MongoRegistry) Reclaim(ctx context.Context, id string, now time.Time, grace time.Duration) (bool, error) {
	return r.cas(ctx, id,
		bson.M{
			"status":         string(models.StatusProcessing),
			"last_heartbeat": bson.M{"$lt": now.Add(-grace)},
		},
		bson.M{
			"$set":   bson.M{"status": string(models.StatusToProcess)},
			"$unset": bson.M{"processors.current": ""},
		})
}

// MarkReceived transitions PROCESSED -> RECEIVED.
func (r *MongoRegistry) MarkReceived(ctx context.Context, id string, now time.Time) (bool, error) {
	return r.cas(ctx, id,
		bson.M{"status": string(models.StatusProcessed)},
		bson.M{"$set": bson.M{
			"status":             string(models.StatusReceived),
			"origin.received_at": now,
		}})
}

// Delete removes a case record.
func (r *MongoRegistry) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	if _, err := r.cases.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return wrapDB(err, "delete")
	}
	return nil
}

// QueryVersion looks up a client version in the versions collection.
func (r *MongoRegistry) QueryVersion(ctx context.Context, version string) (models.VersionRecord, error) {
	names, err := r.client.Database(databaseName).ListCollectionNames(ctx, bson.M{"name": versionsCollection})
	if err != nil {
		return models.VersionRecord{}, wrapDB(err, "list collections")
	}
	if len(names) == 0 {
		return models.VersionRecord{ID: version, Status: models.VersionUncontrolled}, nil
	}

	var doc versionDoc
	err = r.versions.FindOne(ctx, bson.M{"_id": version}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.VersionRecord{ID: version, Status: models.VersionUncontrolled}, nil
	}
	if err != nil {
		return models.VersionRecord{}, wrapDB(err, "query version")
	}

	status := models.VersionUncontrolled
	switch doc.Status {
	case "allowed":
		status = models.VersionAllowed
	case "warning":
		status = models.VersionWarning
	case "refused":
		status = models.VersionRefused
	}
	return models.VersionRecord{ID: doc.ID, Status: status, Message: doc.Message}, nil
}

// Close disconnects from the database.
func (r *MongoRegistry) Close(ctx context.Context) error {
	if err := r.client.Disconnect(ctx); err != nil {
		return wrapDB(err, "disconnect")
	}
	return nil
}

// cas runs one FindOneAndUpdate with the pre-state filter merged onto the id.
func (r *MongoRegistry) cas(ctx context.Context, id string, pre bson.M, update bson.M) (bool, error) {
	oid, err := parseID(id)
	if err != nil {
		return false, err
	}
	filter := bson.M{"_id": oid}
	for k, v := range pre {
		filter[k] = v
	}
	err = r.cases.FindOneAndUpdate(ctx, filter, update).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, wrapDB(err, "conditional update")
	}
	return true, nil
}

func holderFilter(claimer models.Identity) bson.M {
	return bson.M{
		"status":                     string(models.StatusProcessing),
		"processors.current.machine": claimer.Machine,
		"processors.current.user":    claimer.User,
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, griderrors.New(griderrors.PermanentDB, fmt.Errorf("malformed case id %q: %w", id, err))
	}
	return oid, nil
}

func toDoc(rec *models.CaseRecord) (caseDoc, error) {
	oid, err := parseID(rec.ID)
	if err != nil {
		return caseDoc{}, err
	}
	doc := caseDoc{
		ID:          oid,
		UserGroup:   rec.UserGroup,
		Instance:    rec.Instance,
		Application: rec.Application,
		Status:      string(rec.Status),
		Path:        rec.Path,
		Origin: originDoc{
			Machine:     rec.Origin.Machine,
			User:        rec.Origin.User,
			SubmittedAt: rec.Origin.SubmittedAt,
			ReceivedAt:  rec.Origin.ReceivedAt,
		},
		Processors: processorsDoc{
			Attempts: make([]attemptDoc, 0, len(rec.Processors.Attempts)),
		},
		LastHeartbeat: rec.LastHeartbeat,
	}
	for _, a := range rec.Processors.Attempts {
		doc.Processors.Attempts = append(doc.Processors.Attempts, attemptDoc{Machine: a.Machine, User: a.User})
	}
	if cur := rec.Processors.Current; cur != nil {
		doc.Processors.Current = &currentDoc{
			Machine:   cur.Machine,
			User:      cur.User,
			StartedAt: cur.StartedAt,
			EndedAt:   cur.EndedAt,
		}
	}
	return doc, nil
}

func fromDoc(doc caseDoc) models.CaseRecord {
	rec := models.CaseRecord{
		ID:          doc.ID.Hex(),
		UserGroup:   doc.UserGroup,
		Instance:    doc.Instance,
		Application: doc.Application,
		Status:      models.CaseStatus(doc.Status),
		Path:        doc.Path,
		Origin: models.Origin{
			Machine:     doc.Origin.Machine,
			User:        doc.Origin.User,
			SubmittedAt: doc.Origin.SubmittedAt,
			ReceivedAt:  doc.Origin.ReceivedAt,
		},
		LastHeartbeat: doc.LastHeartbeat,
	}
	for _, a := range doc.Processors.Attempts {
		rec.Processors.Attempts = append(rec.Processors.Attempts, models.ProcessorAttempt{Machine: a.Machine, User: a.User})
	}
	if cur := doc.Processors.Current; cur != nil {
		rec.Processors.Current = &models.CurrentProcessor{
			Machine:   cur.Machine,
			User:      cur.User,
			StartedAt: cur.StartedAt,
			EndedAt:   cur.EndedAt,
		}
	}
	return rec
}

func wrapDB(err error, op string) error {
	return griderrors.New(griderrors.TransientDB, fmt.Errorf("registry %s failed: %w", op, err))
}
