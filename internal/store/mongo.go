package store

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/erazemk/oddaja/internal/model"
)

const mongoTimeout = 5 * time.Second

// Mongo keeps listings and bundles in two collections of one database.
type Mongo struct {
	client  *mongo.Client
	listing *mongo.Collection
	bundle  *mongo.Collection
}

// OpenMongo connects to uri and ensures the queue indexes exist.
func OpenMongo(ctx context.Context, uri, dbName string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, unavailable("connecting to mongo", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, unavailable("pinging mongo", err)
	}

	s := NewMongo(client, dbName)
	if err := s.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// NewMongo wraps a connected client.
func NewMongo(client *mongo.Client, dbName string) *Mongo {
	db := client.Database(dbName)
	return &Mongo{
		client:  client,
		listing: db.Collection("listings"),
		bundle:  db.Collection("bundles"),
	}
}

// EnsureIndexes creates the (status, created_at) index on both collections.
func (s *Mongo) EnsureIndexes(ctx context.Context) error {
	idx := mongo.IndexModel{
		Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}},
	}
	for _, c := range []*mongo.Collection{s.listing, s.bundle} {
		if _, err := c.Indexes().CreateOne(ctx, idx); err != nil {
			return unavailable("creating "+c.Name()+" indexes", err)
		}
	}
	return nil
}

func (s *Mongo) coll(kind model.Kind) (*mongo.Collection, error) {
	if _, err := collection(kind); err != nil {
		return nil, err
	}
	if kind == model.KindBundle {
		return s.bundle, nil
	}
	return s.listing, nil
}

func mongoSet(p model.Patch) (bson.M, error) {
	cols, err := patchColumns(p)
	if err != nil {
		return nil, err
	}
	set := bson.D{}
	for _, c := range cols {
		set = append(set, bson.E{Key: c.name, Value: c.value})
	}
	return bson.M{"$set": set}, nil
}

// FetchQueueCandidates returns records with a status in statuses, oldest first.
func (s *Mongo) FetchQueueCandidates(ctx context.Context, kind model.Kind, statuses []model.Status) ([]model.Record, error) {
	c, err := s.coll(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := c.Find(ctx, bson.M{"status": bson.M{"$in": statusStrings(statuses)}}, opts)
	if err != nil {
		return nil, unavailable("listing "+c.Name(), err)
	}
	defer cur.Close(ctx)

	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("listing "+c.Name(), err)
	}

	records := make([]model.Record, len(docs))
	for i, d := range docs {
		records[i] = d.record(kind)
	}
	return records, nil
}

// ConditionalUpdate applies patch only while the document still has the expected status.
func (s *Mongo) ConditionalUpdate(ctx context.Context, kind model.Kind, id string, expected model.Status, patch model.Patch) (int64, error) {
	c, err := s.coll(kind)
	if err != nil {
		return 0, err
	}
	update, err := mongoSet(patch)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	res, err := c.UpdateOne(ctx, bson.M{"_id": id, "status": string(expected)}, update)
	if err != nil {
		return 0, unavailable("updating "+c.Name(), err)
	}
	return res.MatchedCount, nil
}

// Update applies patch regardless of the document's status.
func (s *Mongo) Update(ctx context.Context, kind model.Kind, id string, patch model.Patch) error {
	c, err := s.coll(kind)
	if err != nil {
		return err
	}
	update, err := mongoSet(patch)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	res, err := c.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return unavailable("updating "+c.Name(), err)
	}
	if res.MatchedCount == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Get returns a record by kind and id.
func (s *Mongo) Get(ctx context.Context, kind model.Kind, id string) (*model.Record, error) {
	c, err := s.coll(kind)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	var d document
	err = c.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, unavailable("getting "+c.Name(), err)
	}
	rec := d.record(kind)
	return &rec, nil
}

// Insert stores a new listing or bundle.
func (s *Mongo) Insert(ctx context.Context, rec model.Record) (model.Record, error) {
	rec, err := prepareInsert(rec)
	if err != nil {
		return rec, err
	}
	c, _ := s.coll(rec.Kind)
	ctx, cancel := context.WithTimeout(ctx, mongoTimeout)
	defer cancel()

	if _, err := c.InsertOne(ctx, toDocument(rec)); err != nil {
		return rec, unavailable("inserting "+c.Name(), err)
	}
	return rec, nil
}

// Close disconnects the client.
func (s *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}
