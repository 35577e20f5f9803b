package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chat-keystore/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

const (
	mongoDefaultDatabase = "chat"
	mongoCollection      = "apitokens"
)

// tokenDocument is the stored shape of an api token
type tokenDocument struct {
	ObjectID  primitive.ObjectID `bson:"_id,omitempty"`
	TokenID   string             `bson:"tokenId,omitempty"`
	UserID    string             `bson:"userId"`
	Provider  string             `bson:"provider"`
	APIKey    string             `bson:"apiKey"`
	IsActive  bool               `bson:"isActive"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d tokenDocument) toModel() models.APIToken {
	id, err := uuid.Parse(d.TokenID)
	if err != nil {
		// documents written by other clients have no tokenId
		id = uuid.NewSHA1(uuid.NameSpaceOID, d.ObjectID[:])
	}
	return models.APIToken{
		ID:        id,
		UserID:    d.UserID,
		Provider:  models.Provider(d.Provider),
		APIKey:    d.APIKey,
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
}

// Mongo stores api tokens in the apitokens collection
type Mongo struct {
	client *mongo.Client
	tokens *mongo.Collection
}

// NewMongo connects to MongoDB and ensures the (userId, provider) index.
// The database comes from the URI path, defaulting to "chat".
func NewMongo(ctx context.Context, uri string) (*Mongo, error) {
	cs, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid mongodb uri: %w", err)
	}
	dbName := cs.Database
	if dbName == "" {
		dbName = mongoDefaultDatabase
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("unable to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("unable to ping mongodb: %w", err)
	}

	m := &Mongo{
		client: client,
		tokens: client.Database(dbName).Collection(mongoCollection),
	}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return m, nil
}

func dialMongo(ctx context.Context, uri string) (Backend, error) {
	return NewMongo(ctx, uri)
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	_, err := m.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "provider", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("userId_provider_unique"),
	})
	if err != nil {
		return fmt.Errorf("failed to create apitokens index: %w", err)
	}
	return nil
}

// Migrate ensures indexes on up and drops the collection on down
func (m *Mongo) Migrate(ctx context.Context, up bool) error {
	if up {
		return m.ensureIndexes(ctx)
	}
	if err := m.tokens.Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop apitokens: %w", err)
	}
	return nil
}

func (m *Mongo) FindToken(ctx context.Context, userID string, provider models.Provider, activeOnly bool) (*models.APIToken, error) {
	filter := bson.M{"userId": userID, "provider": string(provider)}
	if activeOnly {
		filter["isActive"] = true
	}

	var doc tokenDocument
	err := m.tokens.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api token: %w", err)
	}
	t := doc.toModel()
	return &t, nil
}

func (m *Mongo) find(ctx context.Context, filter bson.M) ([]models.APIToken, error) {
	opts := options.Find().SetSort(bson.D{{Key: "userId", Value: 1}, {Key: "provider", Value: 1}})
	cur, err := m.tokens.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query api tokens: %w", err)
	}

	var docs []tokenDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode api tokens: %w", err)
	}

	tokens := make([]models.APIToken, 0, len(docs))
	for _, d := range docs {
		tokens = append(tokens, d.toModel())
	}
	return tokens, nil
}

func (m *Mongo) FindActiveTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	return m.find(ctx, bson.M{"userId": userID, "isActive": true})
}

func (m *Mongo) ListTokens(ctx context.Context, userID string) ([]models.APIToken, error) {
	filter := bson.M{}
	if userID != "" {
		filter["userId"] = userID
	}
	return m.find(ctx, filter)
}

func (m *Mongo) UpsertToken(ctx context.Context, token *models.APIToken) (*models.APIToken, error) {
	filter := bson.M{"userId": token.UserID, "provider": string(token.Provider)}
	update := bson.M{
		"$set": bson.M{
			"apiKey":    token.APIKey,
			"isActive":  true,
			"updatedAt": token.UpdatedAt,
		},
		"$setOnInsert": bson.M{
			"tokenId":   token.ID.String(),
			"createdAt": token.CreatedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc tokenDocument
	if err := m.tokens.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to upsert api token: %w", err)
	}
	t := doc.toModel()
	return &t, nil
}

func (m *Mongo) DeactivateToken(ctx context.Context, userID string, provider models.Provider) (bool, error) {
	filter := bson.M{"userId": userID, "provider": string(provider)}
	update := bson.M{"$set": bson.M{"isActive": false, "updatedAt": time.Now().UTC()}}

	res, err := m.tokens.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate api token: %w", err)
	}
	return res.MatchedCount > 0, nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
