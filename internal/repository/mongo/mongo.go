// Package mongo stores users in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/kisansahayak/kisan/internal/domain"
	"github.com/kisansahayak/kisan/internal/repository"
)

// CollectionName is the collection holding user documents.
const CollectionName = "users"

// userDocument mirrors the stored shape. The bcrypt hash lives under
// "password" so existing collections stay readable.
type userDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Username  string             `bson:"username"`
	Email     string             `bson:"email"`
	Password  string             `bson:"password"`
	CreatedAt time.Time          `bson:"created_at,omitempty"`
}

func toDocument(u *domain.User, id primitive.ObjectID) userDocument {
	return userDocument{
		ID:        id,
		Username:  u.Username,
		Email:     u.Email,
		Password:  string(u.PasswordHash),
		CreatedAt: u.CreatedAt.UTC(),
	}
}

func (d userDocument) toDomain() *domain.User {
	return &domain.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		Email:        d.Email,
		PasswordHash: []byte(d.Password),
		CreatedAt:    d.CreatedAt.UTC(),
	}
}

// Repository implements repository.UserRepository on MongoDB.
type Repository struct {
	client *mongo.Client
	users  *mongo.Collection
}

var _ repository.UserRepository = (*Repository)(nil)

// Connect dials uri, verifies the connection, and returns a repository bound
// to the users collection of database.
func Connect(ctx context.Context, uri, database string) (*Repository, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}
	return &Repository{
		client: client,
		users:  client.Database(database).Collection(CollectionName),
	}, nil
}

// emailIndex leaves the name to the server default ("email_1"), the same
// index mongoose builds for a unique field, so recreating it is a no-op.
func emailIndex() mongo.IndexModel {
	return mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
}

// EnsureIndexes creates the unique email index when missing.
func (r *Repository) EnsureIndexes(ctx context.Context) error {
	if _, err := r.users.Indexes().CreateOne(ctx, emailIndex()); err != nil {
		return fmt.Errorf("create email index: %w", err)
	}
	return nil
}

// CreateUser inserts a user document with a new ObjectID.
func (r *Repository) CreateUser(ctx context.Context, user *domain.User) error {
	id := primitive.NewObjectID()
	if _, err := r.users.InsertOne(ctx, toDocument(user, id)); err != nil {
		return mapWriteError(err)
	}
	user.ID = id.Hex()
	return nil
}

// GetUserByEmail fetches a user by exact email.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var doc userDocument
	err := r.users.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return doc.toDomain(), nil
}

// Ping checks connectivity to the primary.
func (r *Repository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (r *Repository) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func mapWriteError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return repository.ErrDuplicateEmail
	}
	return fmt.Errorf("insert user: %w", err)
}
