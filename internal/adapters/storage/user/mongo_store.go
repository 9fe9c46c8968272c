package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "slotmanager/internal/domain/user"
)

const (
	indexEmail       = "users_email_unique"
	indexDisplayName = "users_display_name_unique"
)

// MongoStore implements Store on the "users" collection.
type MongoStore struct {
	col *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

type userDoc struct {
	ID               string    `bson:"_id"`
	DisplayName      string    `bson:"display_name"`
	DisplayNameKey   string    `bson:"display_name_key"` // lowercased, unique
	FirstName        string    `bson:"first_name"`
	LastName         string    `bson:"last_name"`
	Email            string    `bson:"email"`
	RegistrationDate time.Time `bson:"registration_date"`
	SponsorID        string    `bson:"sponsor_id,omitempty"`
	IsActive         bool      `bson:"is_active"`
	IsAdmin          bool      `bson:"is_admin"`
}

// NewMongoStore creates a user store.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("users")}
}

// EnsureIndexes creates the unique email and display-name indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(indexEmail),
		},
		{
			Keys:    bson.D{{Key: "display_name_key", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(indexDisplayName),
		},
	})
	if err != nil {
		return fmt.Errorf("users indexes: %w", err)
	}
	return nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// GetByID retrieves a User by its ID.
func (s *MongoStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail retrieves a User by email.
func (s *MongoStore) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.findOne(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

// GetByDisplayName retrieves a User by display name, ignoring case.
func (s *MongoStore) GetByDisplayName(ctx context.Context, name string) (domain.User, error) {
	return s.findOne(ctx, bson.M{"display_name_key": nameKey(name)})
}

// Create inserts a new User.
// POST: User persisted, or ErrDisplayNameTaken / ErrEmailTaken
func (s *MongoStore) Create(ctx context.Context, u domain.User) error {
	_, err := s.col.InsertOne(ctx, toDoc(u))
	return translateMongo(err)
}

// UpdateProfile changes the self-editable fields.
func (s *MongoStore) UpdateProfile(ctx context.Context, id string, p Profile) (domain.User, error) {
	update := bson.M{"$set": bson.M{
		"display_name":     p.DisplayName,
		"display_name_key": nameKey(p.DisplayName),
		"first_name":       p.FirstName,
		"last_name":        p.LastName,
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc userDoc
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, translateMongo(err)
	}
	return fromDoc(doc), nil
}

// List returns users ordered by display name.
func (s *MongoStore) List(ctx context.Context, filter ListFilter) ([]domain.User, error) {
	query := bson.M{}
	if filter.ActiveOnly {
		query["is_active"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "display_name_key", Value: 1}, {Key: "_id", Value: 1}})
	cur, err := s.col.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer cur.Close(ctx)

	var list []domain.User
	for cur.Next(ctx) {
		var doc userDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		list = append(list, fromDoc(doc))
	}
	return list, cur.Err()
}

// Count returns the number of users.
func (s *MongoStore) Count(ctx context.Context) (int, error) {
	n, err := s.col.CountDocuments(ctx, bson.D{})
	return int(n), err
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (domain.User, error) {
	var doc userDoc
	err := s.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("find user: %w", err)
	}
	return fromDoc(doc), nil
}

// translateMongo maps duplicate-key errors on the unique indexes onto domain errors.
func translateMongo(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		switch {
		case strings.Contains(err.Error(), indexDisplayName):
			return domain.ErrDisplayNameTaken
		case strings.Contains(err.Error(), indexEmail):
			return domain.ErrEmailTaken
		}
	}
	return fmt.Errorf("write user: %w", err)
}

func toDoc(u domain.User) userDoc {
	return userDoc{
		ID:               u.ID,
		DisplayName:      u.DisplayName,
		DisplayNameKey:   nameKey(u.DisplayName),
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Email:            u.Email,
		RegistrationDate: u.RegistrationDate.UTC(),
		SponsorID:        u.SponsorID,
		IsActive:         u.IsActive,
		IsAdmin:          u.IsAdmin,
	}
}

func fromDoc(doc userDoc) domain.User {
	return domain.User{
		ID:               doc.ID,
		DisplayName:      doc.DisplayName,
		FirstName:        doc.FirstName,
		LastName:         doc.LastName,
		Email:            doc.Email,
		RegistrationDate: doc.RegistrationDate.UTC(),
		SponsorID:        doc.SponsorID,
		IsActive:         doc.IsActive,
		IsAdmin:          doc.IsAdmin,
	}
}
