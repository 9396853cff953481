package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxChainRetries = 5

// MongoLedger stores records in an insert-only collection. Sequence numbers
// come from a counters collection. A unique (documentId, prevHash) index
// makes concurrent appends to the same document fail instead of forking the
// chain; the loser re-reads the tail and retries.
type MongoLedger struct {
	col      *mongo.Collection
	counters *mongo.Collection
	counter  string
}

// NewMongoLedger creates the ledger and ensures its indexes.
func NewMongoLedger(ctx context.Context, col, counters *mongo.Collection) (*MongoLedger, error) {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "seq", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "prevHash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "version", Value: 1}}},
		{Keys: bson.D{{Key: "timestamp", Value: 1}}},
	}
	if _, err := col.Indexes().CreateMany(ctx, models); err != nil {
		return nil, fmt.Errorf("audit indexes: %w", err)
	}
	return &MongoLedger{col: col, counters: counters, counter: col.Name()}, nil
}

func (l *MongoLedger) nextSeq(ctx context.Context) (uint64, error) {
	var out struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := l.counters.FindOneAndUpdate(ctx, bson.M{"_id": l.counter}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("audit sequence: %w", err)
	}
	return uint64(out.Seq), nil
}

func (l *MongoLedger) tail(ctx context.Context, documentID string) (string, error) {
	var last Record
	opts := options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}})
	err := l.col.FindOne(ctx, bson.M{"documentId": documentID}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("audit tail: %w", err)
	}
	return last.Hash, nil
}

func (l *MongoLedger) Append(ctx context.Context, e Entry) (Record, error) {
	if err := e.validate(); err != nil {
		return Record{}, err
	}
	for attempt := 0; attempt < maxChainRetries; attempt++ {
		prev, err := l.tail(ctx, e.DocumentID)
		if err != nil {
			return Record{}, err
		}
		seq, err := l.nextSeq(ctx)
		if err != nil {
			return Record{}, err
		}
		r := newRecord(e, seq, stamp(time.Now()), prev)
		_, err = l.col.InsertOne(ctx, r)
		if err == nil {
			return r.clone(), nil
		}
		if !mongo.IsDuplicateKeyError(err) {
			return Record{}, fmt.Errorf("audit insert: %w", err)
		}
	}
	return Record{}, fmt.Errorf("audit insert: chain contention on %s", e.DocumentID)
}

func (l *MongoLedger) Query(ctx context.Context, q Query) ([]Record, error) {
	filter := bson.M{"documentId": q.DocumentID}
	if q.Version != nil {
		filter["version"] = *q.Version
	}
	cur, err := l.col.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("audit query: %w", err)
	}
	defer cur.Close(ctx)
	out := []Record{}
	for cur.Next(ctx) {
		var r Record
		if err := cur.Decode(&r); err != nil {
			return nil, fmt.Errorf("audit decode: %w", err)
		}
		out = append(out, r)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("audit cursor: %w", err)
	}
	return out, nil
}
