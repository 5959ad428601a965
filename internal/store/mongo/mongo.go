// Package mongo implements store.Store backed by a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/alfredjeanlab/chanbot/internal/model"
	"github.com/alfredjeanlab/chanbot/internal/store"
)

// CollectionName is the collection holding channel documents.
const CollectionName = "channels"

// MongoStore implements store.Store using MongoDB.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// Compile-time check that MongoStore implements store.Store.
var _ store.Store = (*MongoStore)(nil)

// New connects to uri, pings the server and ensures the collection indexes.
func New(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(CollectionName),
	}
	if err := s.migrate(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) migrate(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create indexes for %s: %w", CollectionName, err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// Ping checks the connection.
func (s *MongoStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return store.Unavailable("ping MongoDB", err)
	}
	return nil
}

func (s *MongoStore) InsertChannel(ctx context.Context, ch *model.Channel) (*model.Channel, error) {
	if err := ch.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.coll.InsertOne(ctx, ch); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("insert channel %s: %w", ch.ID, store.ErrDuplicateKey)
		}
		return nil, store.Unavailable("insert channel", err)
	}
	return ch.Clone(), nil
}

func (s *MongoStore) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	var c model.Channel
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, store.Unavailable("get channel", err)
	}
	return &c, nil
}

func (s *MongoStore) UpdateChannel(ctx context.Context, id string, patch model.ChannelPatch) (*model.Channel, error) {
	update := buildUpdate(patch)
	if update == nil {
		c, err := s.GetChannel(ctx, id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("update channel %s: %w", id, store.ErrNotFound)
		}
		return c, nil
	}

	var c model.Channel
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := s.coll.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("update channel %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, store.Unavailable("update channel", err)
	}
	return &c, nil
}

func (s *MongoStore) DeleteChannel(ctx context.Context, id string) error {
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return store.Unavailable("delete channel", err)
	}
	return nil
}

func (s *MongoStore) ListChannels(ctx context.Context, filter model.ChannelFilter) ([]*model.Channel, int, error) {
	query := buildFilter(filter)

	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, store.Unavailable("count channels", err)
	}

	cursor, err := s.coll.Find(ctx, query, buildFindOptions(filter))
	if err != nil {
		return nil, 0, store.Unavailable("list channels", err)
	}
	defer cursor.Close(ctx)

	var channels []*model.Channel
	if err := cursor.All(ctx, &channels); err != nil {
		return nil, 0, store.Unavailable("decode channels", err)
	}
	return channels, int(total), nil
}

// buildUpdate translates patch into $set and $inc operators applied in one
// document write. It returns nil for an empty patch.
func buildUpdate(patch model.ChannelPatch) bson.M {
	set := bson.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Organization != nil {
		set["organization"] = *patch.Organization
	}
	if patch.Topic != nil {
		set["topic"] = *patch.Topic
	}
	if patch.Purpose != nil {
		set["purpose"] = *patch.Purpose
	}
	if patch.Reminded != nil {
		set["reminded"] = *patch.Reminded
	}

	expiresAt := patch.ExpiresAt
	extendBy := patch.ExtendBy
	// $set and $inc may not touch the same path, so fold the increment into
	// the overwrite.
	if expiresAt != nil {
		set["expires_at"] = *expiresAt + extendBy
		extendBy = 0
	}

	update := bson.M{}
	if len(set) > 0 {
		update["$set"] = set
	}
	if extendBy != 0 {
		update["$inc"] = bson.M{"expires_at": extendBy}
	}
	if len(update) == 0 {
		return nil
	}
	return update
}

// buildFilter matches the search expression case-insensitively against name
// or organization.
func buildFilter(filter model.ChannelFilter) bson.M {
	p := filter.Pattern()
	if p == "" {
		return bson.M{}
	}
	re := bson.M{"$regex": p, "$options": "i"}
	return bson.M{"$or": bson.A{
		bson.M{"name": re},
		bson.M{"organization": re},
	}}
}

func buildFindOptions(filter model.ChannelFilter) *options.FindOptionsBuilder {
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	if filter.Offset > 0 {
		opts.SetSkip(int64(filter.Offset))
	}
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return opts
}
