package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/gogotex/collabdocs/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoRepo implements Repository on a MongoDB collection. Documents are
// keyed by their string id in _id.
type MongoRepo struct {
	col *mongo.Collection
}

func NewMongoRepo(col *mongo.Collection) *MongoRepo {
	// indexes backing the two visibility sets and the list ordering
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "lastModified", Value: -1}}},
		{Keys: bson.D{{Key: "isPublic", Value: 1}, {Key: "lastModified", Value: -1}}},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _ = col.Indexes().CreateMany(ctx, models)
	return &MongoRepo{col: col}
}

func filterDoc(f Filter) bson.M {
	if f.Public {
		return bson.M{"isPublic": true}
	}
	return bson.M{"createdBy": f.Owner}
}

func (m *MongoRepo) Create(ctx context.Context, d *document.Document) error {
	if d.ID == "" {
		d.ID = document.NewID()
	}
	if _, err := m.col.InsertOne(ctx, d); err != nil {
		return fmt.Errorf("mongo insert document: %w", err)
	}
	return nil
}

func (m *MongoRepo) Get(ctx context.Context, id document.ID) (*document.Document, error) {
	var d document.Document
	err := m.col.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo find document: %w", err)
	}
	return &d, nil
}

func (m *MongoRepo) find(ctx context.Context, filter bson.M) ([]*document.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastModified", Value: -1}, {Key: "_id", Value: 1}})
	cur, err := m.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo find documents: %w", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, fmt.Errorf("mongo decode document: %w", err)
		}
		out = append(out, &d)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo cursor: %w", err)
	}
	return out, nil
}

func (m *MongoRepo) List(ctx context.Context, f Filter) ([]*document.Document, error) {
	return m.find(ctx, filterDoc(f))
}

func (m *MongoRepo) Search(ctx context.Context, f Filter, terms []string) ([]*document.Document, error) {
	if len(terms) == 0 {
		return []*document.Document{}, nil
	}
	filter := filterDoc(f)
	and := make(bson.A, 0, len(terms))
	for _, t := range terms {
		and = append(and, bson.M{"title": bson.M{"$regex": regexp.QuoteMeta(t), "$options": "i"}})
	}
	filter["$and"] = and
	return m.find(ctx, filter)
}

func (m *MongoRepo) Update(ctx context.Context, id document.ID, p document.Patch) (*document.Document, error) {
	set := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.IsPublic != nil {
		set["isPublic"] = *p.IsPublic
	}
	update := bson.M{"$max": bson.M{"lastModified": p.LastModified}}
	if len(set) > 0 {
		update["$set"] = set
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var d document.Document
	if err := m.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("mongo update document: %w", err)
	}
	return &d, nil
}

func (m *MongoRepo) Touch(ctx context.Context, id document.ID, at time.Time) error {
	res, err := m.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$max": bson.M{"lastModified": at}})
	if err != nil {
		return fmt.Errorf("mongo touch document: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) Delete(ctx context.Context, id document.ID) error {
	res, err := m.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("mongo delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
