package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// MongoEchoesRepository stores the four collections in a document database,
// mirroring the layout used by the hosted deployment.
type MongoEchoesRepository struct {
	db *mongo.Database
}

// NewMongoEchoesRepository connects to uri and selects dbName. When dbName
// is empty the database named in the connection string is used.
func NewMongoEchoesRepository(ctx context.Context, uri, dbName string) (*MongoEchoesRepository, error) {
	connDSN, err := connstring.ParseAndValidate(uri)
	if err != nil {
		return nil, fmt.Errorf("mongodb dsn: %w", err)
	}

	client, err := mongo.Connect(ctx,
		options.Client().ApplyURI(connDSN.String()),
		options.Client().SetConnectTimeout(10*time.Second),
		options.Client().SetServerSelectionTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}

	if err = client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	if dbName == "" {
		dbName = connDSN.Database
	}

	return &MongoEchoesRepository{db: client.Database(dbName)}, nil
}

func newMongoEchoesRepositoryWithDB(db *mongo.Database) *MongoEchoesRepository {
	return &MongoEchoesRepository{db: db}
}

func (r *MongoEchoesRepository) Ping(ctx context.Context) error {
	return r.db.Client().Ping(ctx, readpref.Primary())
}

func (r *MongoEchoesRepository) Close() error {
	return r.db.Client().Disconnect(context.Background())
}

// EnsureIndexes creates the indexes the queries rely on. It plays the role
// the schema migrations play for the relational backend.
func (r *MongoEchoesRepository) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		accountsCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		profilesCollection: {
			{Keys: bson.D{{Key: "rotating_id", Value: 1}}},
		},
		echoesCollection: {
			{Keys: bson.D{{Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "owner_account_id", Value: 1}}},
		},
		vibesCollection: {
			{Keys: bson.D{{Key: "owner_account_id", Value: 1}, {Key: "timestamp", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := r.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}

	return nil
}

// mongoError translates driver errors into the repository sentinels.
func mongoError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}

	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", ErrDuplicate, err.Error())
	}

	return fmt.Errorf("db error: %w", err)
}

func (r *MongoEchoesRepository) CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error) {
	now := time.Now().UTC()
	a := Account{
		Id:           uuid.NewString(),
		EmailAddress: strings.ToLower(params.EmailAddress),
		PasswordHash: params.PasswordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if _, err := r.db.Collection(accountsCollection).InsertOne(ctx, a); err != nil {
		return Account{}, mongoError(err)
	}

	return a, nil
}

func (r *MongoEchoesRepository) findAccount(ctx context.Context, filter bson.M) (Account, error) {
	var a Account
	err := r.db.Collection(accountsCollection).FindOne(ctx, filter).Decode(&a)
	return a, mongoError(err)
}

func (r *MongoEchoesRepository) GetAccountById(ctx context.Context, id string) (Account, error) {
	return r.findAccount(ctx, bson.M{"_id": id})
}

func (r *MongoEchoesRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	return r.findAccount(ctx, bson.M{"email": strings.ToLower(email)})
}

func (r *MongoEchoesRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (Account, error) {
	var a Account
	err := r.db.Collection(accountsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"password_hash": passwordHash, "updated_at": time.Now().UTC()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&a)

	return a, mongoError(err)
}

func normalizeProfile(p Profile) Profile {
	if p.Friends == nil {
		p.Friends = []string{}
	}
	return p
}

func (r *MongoEchoesRepository) updateProfile(ctx context.Context, filter, update bson.M, upsert bool) (Profile, error) {
	var p Profile
	err := r.db.Collection(profilesCollection).FindOneAndUpdate(ctx,
		filter,
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After).SetUpsert(upsert),
	).Decode(&p)
	if err != nil {
		return Profile{}, mongoError(err)
	}

	return normalizeProfile(p), nil
}

func (r *MongoEchoesRepository) GetProfile(ctx context.Context, accountId string) (Profile, error) {
	var p Profile
	err := r.db.Collection(profilesCollection).FindOne(ctx, bson.M{"_id": accountId}).Decode(&p)
	if err != nil {
		return Profile{}, mongoError(err)
	}

	return normalizeProfile(p), nil
}

func (r *MongoEchoesRepository) UpsertRotatingId(ctx context.Context, accountId, rotatingId string, rotatedAt time.Time) (Profile, error) {
	return r.updateProfile(ctx,
		bson.M{"_id": accountId},
		bson.M{
			"$set":         bson.M{"rotating_id": rotatingId, "last_rotated": rotatedAt.UTC()},
			"$setOnInsert": bson.M{"friends": bson.A{}, "auto_rotate": false},
		},
		true,
	)
}

func (r *MongoEchoesRepository) SetAutoRotate(ctx context.Context, accountId string, enabled bool) (Profile, error) {
	return r.updateProfile(ctx,
		bson.M{"_id": accountId},
		bson.M{"$set": bson.M{"auto_rotate": enabled}},
		false,
	)
}

func (r *MongoEchoesRepository) FindProfileByRotatingId(ctx context.Context, rotatingId string) (Profile, error) {
	var p Profile
	err := r.db.Collection(profilesCollection).FindOne(ctx, bson.M{"rotating_id": rotatingId}).Decode(&p)
	if err != nil {
		return Profile{}, mongoError(err)
	}

	return normalizeProfile(p), nil
}

func (r *MongoEchoesRepository) findProfiles(ctx context.Context, filter bson.M) ([]Profile, error) {
	cursor, err := r.db.Collection(profilesCollection).Find(ctx, filter)
	if err != nil {
		return nil, mongoError(err)
	}
	defer cursor.Close(ctx)

	profiles := make([]Profile, 0)
	for cursor.Next(ctx) {
		var p Profile
		if err := cursor.Decode(&p); err != nil {
			return nil, mongoError(err)
		}
		profiles = append(profiles, normalizeProfile(p))
	}

	return profiles, mongoError(cursor.Err())
}

func (r *MongoEchoesRepository) GetProfilesByIds(ctx context.Context, ids []string) ([]Profile, error) {
	if len(ids) == 0 {
		return []Profile{}, nil
	}

	return r.findProfiles(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (r *MongoEchoesRepository) ListProfilesDueForRotation(ctx context.Context, rotatedBefore time.Time) ([]Profile, error) {
	return r.findProfiles(ctx, bson.M{
		"auto_rotate":  true,
		"last_rotated": bson.M{"$lt": rotatedBefore.UTC()},
	})
}

func (r *MongoEchoesRepository) AddFriend(ctx context.Context, ownerId, friendId string) error {
	_, err := r.db.Collection(profilesCollection).UpdateOne(ctx,
		bson.M{"_id": ownerId},
		bson.M{"$addToSet": bson.M{"friends": friendId}},
	)
	return mongoError(err)
}

func (r *MongoEchoesRepository) RemoveFriend(ctx context.Context, ownerId, friendId string) error {
	_, err := r.db.Collection(profilesCollection).UpdateOne(ctx,
		bson.M{"_id": ownerId},
		bson.M{"$pull": bson.M{"friends": friendId}},
	)
	return mongoError(err)
}

func (r *MongoEchoesRepository) CreateEcho(ctx context.Context, echo Echo) error {
	echo.Timestamp = echo.Timestamp.UTC()
	_, err := r.db.Collection(echoesCollection).InsertOne(ctx, echo)
	return mongoError(err)
}

func (r *MongoEchoesRepository) ListEchoesSince(ctx context.Context, since time.Time) ([]Echo, error) {
	cursor, err := r.db.Collection(echoesCollection).Find(ctx,
		bson.M{"timestamp": bson.M{"$gte": since.UTC()}},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	)
	if err != nil {
		return nil, mongoError(err)
	}
	defer cursor.Close(ctx)

	echoes := make([]Echo, 0)
	if err := cursor.All(ctx, &echoes); err != nil {
		return nil, mongoError(err)
	}

	return echoes, nil
}

func (r *MongoEchoesRepository) CountEchoesByOwner(ctx context.Context, ownerId string) (int, error) {
	n, err := r.db.Collection(echoesCollection).CountDocuments(ctx, bson.M{"owner_account_id": ownerId})
	return int(n), mongoError(err)
}

func (r *MongoEchoesRepository) ListEchoMoodsByOwner(ctx context.Context, ownerId string) ([]string, error) {
	cursor, err := r.db.Collection(echoesCollection).Find(ctx,
		bson.M{"owner_account_id": ownerId},
		options.Find().
			SetSort(bson.D{{Key: "timestamp", Value: 1}}).
			SetProjection(bson.M{"mood": 1}),
	)
	if err != nil {
		return nil, mongoError(err)
	}
	defer cursor.Close(ctx)

	moods := make([]string, 0)
	for cursor.Next(ctx) {
		var doc struct {
			Mood string `bson:"mood"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, mongoError(err)
		}
		moods = append(moods, doc.Mood)
	}

	return moods, mongoError(cursor.Err())
}

func (r *MongoEchoesRepository) CreateVibe(ctx context.Context, vibe Vibe) error {
	vibe.Timestamp = vibe.Timestamp.UTC()
	_, err := r.db.Collection(vibesCollection).InsertOne(ctx, vibe)
	return mongoError(err)
}

func (r *MongoEchoesRepository) ListVibesByOwner(ctx context.Context, ownerId string) ([]Vibe, error) {
	cursor, err := r.db.Collection(vibesCollection).Find(ctx,
		bson.M{"owner_account_id": ownerId},
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: -1}}),
	)
	if err != nil {
		return nil, mongoError(err)
	}
	defer cursor.Close(ctx)

	vibes := make([]Vibe, 0)
	if err := cursor.All(ctx, &vibes); err != nil {
		return nil, mongoError(err)
	}

	return vibes, nil
}

func (r *MongoEchoesRepository) DeleteVibe(ctx context.Context, ownerId, vibeId string) error {
	res, err := r.db.Collection(vibesCollection).DeleteOne(ctx, bson.M{
		"_id":              vibeId,
		"owner_account_id": ownerId,
	})
	if err != nil {
		return mongoError(err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *MongoEchoesRepository) CountPrivateVibesByOwner(ctx context.Context, ownerId string) (int, error) {
	n, err := r.db.Collection(vibesCollection).CountDocuments(ctx, bson.M{
		"owner_account_id": ownerId,
		"is_shared":        false,
	})
	return int(n), mongoError(err)
}

var _ EchoesRepository = (*MongoEchoesRepository)(nil)
