package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "slotmanager/internal/domain/slot"
)

// MongoStore implements Store with one document per slot.
// Single-document atomicity makes each conditional update race-free.
type MongoStore struct {
	col *mongo.Collection
	now func() time.Time
}

var _ Store = (*MongoStore)(nil)

type registrationDoc struct {
	UserID       string    `bson:"user_id"`
	Guests       []string  `bson:"guests"`
	CreatedBy    string    `bson:"created_by"`
	RegisteredAt time.Time `bson:"registered_at"`
}

type detailsDoc struct {
	TeamA      []string `bson:"team_a"`
	TeamB      []string `bson:"team_b"`
	FinalScore string   `bson:"final_score"`
	Notes      string   `bson:"notes"`
}

type slotDoc struct {
	ID            string            `bson:"_id"`
	Date          time.Time         `bson:"date"`
	Registrations []registrationDoc `bson:"registrations"`
	Details       detailsDoc        `bson:"details"`
	CreatedAt     time.Time         `bson:"created_at"`
	UpdatedAt     time.Time         `bson:"updated_at"`
}

// NewMongoStore creates a slot store on the "slots" collection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{col: db.Collection("slots"), now: time.Now}
}

// EnsureIndexes creates the unique date index.
// POST: Concurrent CreateIfAbsent calls for one date yield one document
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "date", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("slots_date_unique"),
	})
	if err != nil {
		return fmt.Errorf("slots indexes: %w", err)
	}
	return nil
}

// occupancyExpr computes sum(1 + len(guests)) inside the server.
var occupancyExpr = bson.M{"$add": bson.A{
	bson.M{"$size": "$registrations"},
	bson.M{"$sum": bson.M{"$map": bson.M{
		"input": "$registrations",
		"as":    "r",
		"in":    bson.M{"$size": "$$r.guests"},
	}}},
}}

// guestsOfExpr computes the guest count of userID's registration, 0 if absent.
func guestsOfExpr(userID string) bson.M {
	return bson.M{"$sum": bson.M{"$map": bson.M{
		"input": bson.M{"$filter": bson.M{
			"input": "$registrations",
			"as":    "r",
			"cond":  bson.M{"$eq": bson.A{"$$r.user_id", userID}},
		}},
		"as": "r",
		"in": bson.M{"$size": "$$r.guests"},
	}}}
}

// GetByID retrieves a Slot.
// POST: Returns the slot or domain.ErrSlotNotFound
func (s *MongoStore) GetByID(ctx context.Context, id string) (domain.Slot, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

// FindByDate retrieves the Slot at an exact instant.
func (s *MongoStore) FindByDate(ctx context.Context, date time.Time) (domain.Slot, error) {
	return s.findOne(ctx, bson.M{"date": date.UTC()})
}

// CreateIfAbsent upserts on the unique date.
// POST: Returns the one persisted slot for candidate.Date
func (s *MongoStore) CreateIfAbsent(ctx context.Context, candidate domain.Slot) (domain.Slot, error) {
	now := s.now().UTC()
	date := candidate.Date.UTC()
	update := bson.M{"$setOnInsert": bson.M{
		"_id":           candidate.ID,
		"registrations": bson.A{},
		"details":       detailsDoc{TeamA: []string{}, TeamB: []string{}},
		"created_at":    now,
		"updated_at":    now,
	}}
	// The equality on date seeds the inserted document's date field.
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc slotDoc
	err := s.col.FindOneAndUpdate(ctx, bson.M{"date": date}, update, opts).Decode(&doc)
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent upsert won the race; its document is the answer.
		return s.FindByDate(ctx, date)
	}
	if err != nil {
		return domain.Slot{}, fmt.Errorf("upsert slot: %w", err)
	}
	return fromDoc(doc), nil
}

// AddRegistration pushes reg if the user is absent and the slot has room.
// POST: Returns the updated slot, or ErrSlotNotFound, ErrAlreadyRegistered, *CapacityError
func (s *MongoStore) AddRegistration(ctx context.Context, slotID string, reg domain.Registration, max int) (domain.Slot, error) {
	attempted := reg.Footprint()
	filter := bson.M{
		"_id":                   slotID,
		"registrations.user_id": bson.M{"$ne": reg.UserID},
	}
	if max > 0 {
		filter["$expr"] = bson.M{"$lte": bson.A{bson.M{"$add": bson.A{occupancyExpr, attempted}}, max}}
	}
	update := bson.M{
		"$push": bson.M{"registrations": toRegistrationDoc(reg)},
		"$set":  bson.M{"updated_at": s.now().UTC()},
	}

	updated, err := s.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, err := s.GetByID(ctx, slotID)
		if err != nil {
			return domain.Slot{}, err
		}
		return domain.Slot{}, rejectRegister(current, reg.UserID, attempted, max)
	}
	if err != nil {
		return domain.Slot{}, fmt.Errorf("push registration: %w", err)
	}
	return updated, nil
}

// ReplaceGuests sets the guests of userID's registration.
// Shrinking always passes; growing needs others+1+len(guests) <= max.
// POST: Returns the updated slot, or ErrSlotNotFound, ErrNotRegistered, *CapacityError
func (s *MongoStore) ReplaceGuests(ctx context.Context, slotID, userID string, guests []string, max int) (domain.Slot, error) {
	if guests == nil {
		guests = []string{}
	}
	n := len(guests)
	filter := bson.M{
		"_id":                   slotID,
		"registrations.user_id": userID,
	}
	if max > 0 {
		mine := guestsOfExpr(userID)
		// occupancy - mine + n == others + 1 + n
		filter["$expr"] = bson.M{"$or": bson.A{
			bson.M{"$lte": bson.A{n, mine}},
			bson.M{"$lte": bson.A{
				bson.M{"$add": bson.A{bson.M{"$subtract": bson.A{occupancyExpr, mine}}, n}},
				max,
			}},
		}}
	}
	update := bson.M{"$set": bson.M{
		"registrations.$.guests": guests,
		"updated_at":             s.now().UTC(),
	}}

	updated, err := s.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, err := s.GetByID(ctx, slotID)
		if err != nil {
			return domain.Slot{}, err
		}
		return domain.Slot{}, rejectReplace(current, userID, guests, max)
	}
	if err != nil {
		return domain.Slot{}, fmt.Errorf("set guests: %w", err)
	}
	return updated, nil
}

// RemoveRegistration pulls userID's registration.
// POST: Returns the updated slot, or ErrSlotNotFound, ErrNotRegistered
func (s *MongoStore) RemoveRegistration(ctx context.Context, slotID, userID string) (domain.Slot, error) {
	filter := bson.M{"_id": slotID, "registrations.user_id": userID}
	update := bson.M{
		"$pull": bson.M{"registrations": bson.M{"user_id": userID}},
		"$set":  bson.M{"updated_at": s.now().UTC()},
	}
	updated, err := s.findOneAndUpdate(ctx, filter, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, err := s.GetByID(ctx, slotID); err != nil {
			return domain.Slot{}, err
		}
		return domain.Slot{}, domain.ErrNotRegistered
	}
	if err != nil {
		return domain.Slot{}, fmt.Errorf("pull registration: %w", err)
	}
	return updated, nil
}

// RecordDetails replaces the slot's post-game details.
func (s *MongoStore) RecordDetails(ctx context.Context, slotID string, details domain.Details) (domain.Slot, error) {
	update := bson.M{"$set": bson.M{
		"details":    toDetailsDoc(details),
		"updated_at": s.now().UTC(),
	}}
	updated, err := s.findOneAndUpdate(ctx, bson.M{"_id": slotID}, update)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Slot{}, domain.ErrSlotNotFound
	}
	if err != nil {
		return domain.Slot{}, fmt.Errorf("set details: %w", err)
	}
	return updated, nil
}

// List returns one page of slots, newest date first.
func (s *MongoStore) List(ctx context.Context, filter ListFilter) ([]domain.Slot, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}}).
		SetSkip(int64(filter.Offset)).
		SetLimit(int64(filter.Limit))
	return s.find(ctx, opts)
}

// ListAll returns every slot, newest date first.
func (s *MongoStore) ListAll(ctx context.Context) ([]domain.Slot, error) {
	return s.find(ctx, options.Find().SetSort(bson.D{{Key: "date", Value: -1}}))
}

// Count returns the number of slots.
func (s *MongoStore) Count(ctx context.Context) (int, error) {
	n, err := s.col.CountDocuments(ctx, bson.D{})
	return int(n), err
}

// Ping checks the deployment answers.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.col.Database().Client().Ping(ctx, nil)
}

func (s *MongoStore) findOne(ctx context.Context, filter bson.M) (domain.Slot, error) {
	var doc slotDoc
	err := s.col.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Slot{}, domain.ErrSlotNotFound
	}
	if err != nil {
		return domain.Slot{}, fmt.Errorf("find slot: %w", err)
	}
	return fromDoc(doc), nil
}

func (s *MongoStore) findOneAndUpdate(ctx context.Context, filter, update bson.M) (domain.Slot, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc slotDoc
	if err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		return domain.Slot{}, err
	}
	return fromDoc(doc), nil
}

func (s *MongoStore) find(ctx context.Context, opts *options.FindOptions) ([]domain.Slot, error) {
	cur, err := s.col.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	defer cur.Close(ctx)

	var list []domain.Slot
	for cur.Next(ctx) {
		var doc slotDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode slot: %w", err)
		}
		list = append(list, fromDoc(doc))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("list slots cursor: %w", err)
	}
	return list, nil
}

func toRegistrationDoc(r domain.Registration) registrationDoc {
	guests := r.Guests
	if guests == nil {
		guests = []string{}
	}
	return registrationDoc{
		UserID:       r.UserID,
		Guests:       guests,
		CreatedBy:    r.CreatedBy,
		RegisteredAt: r.RegisteredAt.UTC(),
	}
}

func toDetailsDoc(d domain.Details) detailsDoc {
	doc := detailsDoc{TeamA: d.Teams.TeamA, TeamB: d.Teams.TeamB, FinalScore: d.FinalScore, Notes: d.Notes}
	if doc.TeamA == nil {
		doc.TeamA = []string{}
	}
	if doc.TeamB == nil {
		doc.TeamB = []string{}
	}
	return doc
}

func fromDoc(doc slotDoc) domain.Slot {
	out := domain.Slot{
		ID:        doc.ID,
		Date:      doc.Date.UTC(),
		CreatedAt: doc.CreatedAt.UTC(),
		UpdatedAt: doc.UpdatedAt.UTC(),
		Details: domain.Details{
			Teams:      domain.Teams{TeamA: nonNil(doc.Details.TeamA), TeamB: nonNil(doc.Details.TeamB)},
			FinalScore: doc.Details.FinalScore,
			Notes:      doc.Details.Notes,
		},
	}
	for _, r := range doc.Registrations {
		out.Registrations = append(out.Registrations, domain.Registration{
			UserID:       r.UserID,
			Guests:       nonNil(r.Guests),
			CreatedBy:    r.CreatedBy,
			RegisteredAt: r.RegisteredAt.UTC(),
		})
	}
	return out
}

func nonNil(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
