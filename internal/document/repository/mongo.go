package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docledger/docledger/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements a MongoDB-backed repository. Documents are keyed by
// their string "id" field; versions live in their own collection keyed by
// (documentId, version).
type MongoRepo struct {
	docs     *mongo.Collection
	versions *mongo.Collection
}

func NewMongoRepo(ctx context.Context, docs, versions *mongo.Collection) (*MongoRepo, error) {
	docIdx := []mongo.IndexModel{
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "customerId", Value: 1}}},
		{Keys: bson.D{{Key: "taxonomy.domain", Value: 1}, {Key: "taxonomy.category", Value: 1}, {Key: "taxonomy.docType", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}, {Key: "id", Value: 1}}},
		{Keys: bson.D{{Key: "deletedAt", Value: 1}, {Key: "purgeAt", Value: 1}}},
	}
	if _, err := docs.Indexes().CreateMany(ctx, docIdx); err != nil {
		return nil, fmt.Errorf("document indexes: %w", err)
	}
	verIdx := mongo.IndexModel{
		Keys:    bson.D{{Key: "documentId", Value: 1}, {Key: "version", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := versions.Indexes().CreateOne(ctx, verIdx); err != nil {
		return nil, fmt.Errorf("version indexes: %w", err)
	}
	return &MongoRepo{docs: docs, versions: versions}, nil
}

func (m *MongoRepo) Create(ctx context.Context, doc *document.Document) error {
	_, err := m.docs.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	err := m.docs.FindOne(ctx, bson.M{"id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &d, nil
}

// visibilityFilter mirrors access.Authorize: read is granted to owners,
// readers, updaters and role holders; tombstones only to owners.
func visibilityFilter(q ListQuery) bson.M {
	live := bson.M{"deletedAt": nil}
	if q.System {
		if q.IncludeDeleted {
			return bson.M{}
		}
		return live
	}
	roles := make([]string, 0, len(q.Roles))
	for _, r := range q.Roles {
		if r != "" {
			roles = append(roles, r)
		}
	}
	readable := bson.A{
		bson.M{"acl.owners": q.ActorID},
		bson.M{"acl.readers": q.ActorID},
		bson.M{"acl.updaters": q.ActorID},
	}
	if len(roles) > 0 {
		readable = append(readable, bson.M{"acl.roles": bson.M{"$in": roles}})
	}
	live["$or"] = readable
	if !q.IncludeDeleted {
		return live
	}
	tomb := bson.M{"deletedAt": bson.M{"$ne": nil}, "acl.owners": q.ActorID}
	return bson.M{"$or": bson.A{live, tomb}}
}

func (m *MongoRepo) List(ctx context.Context, q ListQuery) ([]*document.Document, int, error) {
	q.Filter = q.Filter.Normalize()
	if !q.System && q.ActorID == "" {
		return []*document.Document{}, 0, nil
	}
	filter := bson.M{}
	if q.CustomerID != "" {
		filter["customerId"] = q.CustomerID
	}
	if q.Domain != "" {
		filter["taxonomy.domain"] = q.Domain
	}
	if q.Category != "" {
		filter["taxonomy.category"] = q.Category
	}
	if q.DocType != "" {
		filter["taxonomy.docType"] = q.DocType
	}
	filter = bson.M{"$and": bson.A{filter, visibilityFilter(q)}}

	total, err := m.docs.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "id", Value: 1}}).
		SetSkip(int64((q.Page - 1) * q.Limit)).
		SetLimit(int64(q.Limit))
	cur, err := m.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, 0, err
		}
		out = append(out, &d)
	}
	if err := cur.Err(); err != nil {
		return nil, 0, err
	}
	return out, int(total), nil
}

func (m *MongoRepo) Update(ctx context.Context, doc *document.Document) error {
	set := bson.M{"acl": doc.ACL, "retention": doc.Retention, "updatedAt": doc.UpdatedAt}
	unset := bson.M{}
	if doc.DeletedAt != nil {
		set["deletedAt"] = *doc.DeletedAt
	} else {
		unset["deletedAt"] = ""
	}
	if doc.PurgeAt != nil {
		set["purgeAt"] = *doc.PurgeAt
	} else {
		unset["purgeAt"] = ""
	}
	upd := bson.M{"$set": set}
	if len(unset) > 0 {
		upd["$unset"] = unset
	}
	res, err := m.docs.UpdateOne(ctx, bson.M{"id": doc.ID}, upd)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Purge(ctx context.Context, id string) ([]document.Version, error) {
	if _, err := m.Get(ctx, id); err != nil {
		return nil, err
	}
	vs, err := m.ListVersions(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := m.versions.DeleteMany(ctx, bson.M{"documentId": id}); err != nil {
		return nil, err
	}
	res, err := m.docs.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return nil, err
	}
	if res.DeletedCount == 0 {
		return nil, ErrNotFound
	}
	return vs, nil
}

func (m *MongoRepo) ListPurgeDue(ctx context.Context, now time.Time) ([]string, error) {
	filter := bson.M{"deletedAt": bson.M{"$ne": nil}, "purgeAt": bson.M{"$lte": now}}
	opts := options.Find().SetProjection(bson.M{"id": 1}).SetSort(bson.D{{Key: "id", Value: 1}})
	cur, err := m.docs.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []string{}
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, row.ID)
	}
	return out, cur.Err()
}

// InsertVersion claims the version row first and then advances the document
// with a compare-and-set on latestVersion. A failed CAS releases the row.
func (m *MongoRepo) InsertVersion(ctx context.Context, v *document.Version) error {
	if _, err := m.versions.InsertOne(ctx, v); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrVersionConflict
		}
		return err
	}
	filter := bson.M{"id": v.DocumentID, "latestVersion": v.Version - 1, "deletedAt": nil}
	upd := bson.M{"$set": bson.M{"latestVersion": v.Version, "currentVersion": v.Version, "updatedAt": v.CreatedAt}}
	res, err := m.docs.UpdateOne(ctx, filter, upd)
	if err == nil && res.MatchedCount == 1 {
		return nil
	}
	if _, derr := m.versions.DeleteOne(ctx, bson.M{"documentId": v.DocumentID, "version": v.Version}); derr != nil && err == nil {
		err = derr
	}
	if err != nil {
		return err
	}
	d, gerr := m.Get(ctx, v.DocumentID)
	switch {
	case gerr != nil:
		return gerr
	case d.DeletedAt != nil:
		return ErrDeleted
	default:
		return ErrVersionConflict
	}
}

func (m *MongoRepo) RemoveVersion(ctx context.Context, documentID string, version int, prev *document.Document) error {
	res, err := m.versions.DeleteOne(ctx, bson.M{"documentId": documentID, "version": version})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrVersionNotFound
	}
	upd := bson.M{"$set": bson.M{
		"latestVersion":  prev.LatestVersion,
		"currentVersion": prev.CurrentVersion,
		"updatedAt":      prev.UpdatedAt,
	}}
	ures, err := m.docs.UpdateOne(ctx, bson.M{"id": documentID, "latestVersion": version}, upd)
	if err != nil {
		return err
	}
	if ures.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) GetVersion(ctx context.Context, documentID string, version int) (*document.Version, error) {
	var v document.Version
	err := m.versions.FindOne(ctx, bson.M{"documentId": documentID, "version": version}).Decode(&v)
	if err == nil {
		return &v, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, err
	}
	if _, err := m.Get(ctx, documentID); err != nil {
		return nil, err
	}
	return nil, ErrVersionNotFound
}

func (m *MongoRepo) ListVersions(ctx context.Context, documentID string) ([]document.Version, error) {
	if _, err := m.Get(ctx, documentID); err != nil {
		return nil, err
	}
	cur, err := m.versions.Find(ctx, bson.M{"documentId": documentID}, options.Find().SetSort(bson.D{{Key: "version", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []document.Version{}
	for cur.Next(ctx) {
		var v document.Version
		if err := cur.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, cur.Err()
}

func (m *MongoRepo) SetVersionStatus(ctx context.Context, documentID string, version int, from, to document.VersionStatus, at time.Time) (*document.Document, error) {
	res, err := m.versions.UpdateOne(ctx,
		bson.M{"documentId": documentID, "version": version, "status": from},
		bson.M{"$set": bson.M{"status": to}})
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		if _, err := m.GetVersion(ctx, documentID, version); err != nil {
			return nil, err
		}
		return nil, ErrVersionConflict
	}

	current := 0
	var top document.Version
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	err = m.versions.FindOne(ctx, bson.M{"documentId": documentID, "status": document.VersionActive}, opts).Decode(&top)
	switch {
	case err == nil:
		current = top.Version
	case !errors.Is(err, mongo.ErrNoDocuments):
		return nil, fmt.Errorf("recompute current version: %w", err)
	}
	if _, err := m.docs.UpdateOne(ctx, bson.M{"id": documentID},
		bson.M{"$set": bson.M{"currentVersion": current, "updatedAt": at}}); err != nil {
		return nil, err
	}
	return m.Get(ctx, documentID)
}
