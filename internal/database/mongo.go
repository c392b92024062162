package database

import (
	"context"
	"errors"
	"fmt"
	"invitetrack/entity"
	"invitetrack/internal/config"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionUsers      = "users"
	collectionJoins      = "joins"
	collectionDepartures = "departures"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) *MongoDB {
	if !conf.Mongo.Enabled {
		return nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	_ = connection.Disconnect(m.ctx)
}

func (m *MongoDB) findError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return fmt.Errorf("mongodb find: %w", err)
}

// Ping checks the server is reachable; used once at startup.
func (m *MongoDB) Ping(ctx context.Context) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	return connection.Ping(ctx, nil)
}

// EnsureIndexes creates the indexes the join log lookups rely on.
func (m *MongoDB) EnsureIndexes(ctx context.Context) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	joins := connection.Database(m.database).Collection(collectionJoins)
	_, err = joins.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{"guild_id", 1}, {"member.id", 1}, {"joined_at", -1}}},
		{Keys: bson.D{{"guild_id", 1}, {"inviter_id", 1}, {"joined_at", -1}}},
		{Keys: bson.D{{"id", 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("creating join indexes: %w", err)
	}
	return nil
}

func (m *MongoDB) GetUser(token string) (*entity.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{"token", token}}
	var user entity.User
	err = collection.FindOne(m.ctx, filter).Decode(&user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Joined records an attribution in the join log.
func (m *MongoDB) Joined(ctx context.Context, a *entity.Attribution) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionJoins)
	_, err = collection.InsertOne(ctx, a)
	if err != nil {
		return fmt.Errorf("saving join: %w", err)
	}
	return nil
}

// Left records a departure.
func (m *MongoDB) Left(ctx context.Context, d *entity.Departure) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionDepartures)
	_, err = collection.InsertOne(ctx, d)
	if err != nil {
		return fmt.Errorf("saving departure: %w", err)
	}
	return nil
}

// LastJoin returns the most recent recorded join of a member, nil if none.
func (m *MongoDB) LastJoin(ctx context.Context, guildID, memberID string) (*entity.Attribution, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionJoins)
	opts := options.FindOne().SetSort(bson.D{{"joined_at", -1}})
	var a entity.Attribution
	err = collection.FindOne(ctx, memberJoinsFilter(guildID, memberID), opts).Decode(&a)
	if err != nil {
		return nil, m.findError(err)
	}
	return &a, nil
}

// RecentJoins lists the latest joins of a guild, newest first. A non-empty inviterID
// restricts the list to members attributed to that inviter.
func (m *MongoDB) RecentJoins(ctx context.Context, guildID, inviterID string, limit int64) ([]*entity.Attribution, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionJoins)
	opts := options.Find().SetSort(bson.D{{"joined_at", -1}}).SetLimit(limit)
	cursor, err := collection.Find(ctx, guildJoinsFilter(guildID, inviterID), opts)
	if err != nil {
		return nil, m.findError(err)
	}
	defer cursor.Close(ctx)

	joins := make([]*entity.Attribution, 0)
	if err = cursor.All(ctx, &joins); err != nil {
		return nil, err
	}
	return joins, nil
}

func memberJoinsFilter(guildID, memberID string) bson.D {
	return bson.D{{"guild_id", guildID}, {"member.id", memberID}}
}

func guildJoinsFilter(guildID, inviterID string) bson.D {
	filter := bson.D{{"guild_id", guildID}}
	if inviterID != "" {
		filter = append(filter, bson.E{Key: "inviter_id", Value: inviterID})
	}
	return filter
}

func (m *MongoDB) GetAllTelegramUsers() ([]*entity.User, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{"telegram_id", bson.D{{"$gt", 0}}}}
	cursor, err := collection.Find(m.ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(m.ctx)

	var users []*entity.User
	err = cursor.All(m.ctx, &users)
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (m *MongoDB) SetTelegramEnabled(id int64, isActive bool, logLevel int) error {
	return m.updateTelegramUser(id, bson.D{
		{"telegram_enabled", isActive},
		{"log_level", logLevel},
	})
}

// RegisterTelegramUser creates a pending user record, or does nothing if the
// telegram id is already known.
func (m *MongoDB) RegisterTelegramUser(telegramId int64, username string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{"telegram_id", telegramId}}
	update := bson.D{{"$setOnInsert", bson.D{
		{"username", fmt.Sprintf("tg_%d", telegramId)},
		{"telegram_id", telegramId},
		{"telegram_username", username},
		{"telegram_role", entity.RolePending},
		{"telegram_enabled", false},
		{"registered_at", time.Now()},
	}}}
	opts := options.Update().SetUpsert(true)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

// SetTelegramRole changes the role; approved roles are enabled, others disabled.
func (m *MongoDB) SetTelegramRole(telegramId int64, role entity.TelegramRole) error {
	enabled := role == entity.RoleUser || role == entity.RoleAdmin
	return m.updateTelegramUser(telegramId, bson.D{
		{"telegram_role", role},
		{"telegram_enabled", enabled},
	})
}

func (m *MongoDB) SetTelegramTopics(telegramId int64, topics []string) error {
	return m.updateTelegramUser(telegramId, bson.D{{"telegram_topics", topics}})
}

func (m *MongoDB) SetSubscriptionTier(telegramId int64, tier entity.SubscriptionTier) error {
	return m.updateTelegramUser(telegramId, bson.D{{"subscription_tier", tier}})
}

func (m *MongoDB) updateTelegramUser(telegramId int64, set bson.D) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionUsers)
	filter := bson.D{{"telegram_id", telegramId}}
	result, err := collection.UpdateOne(m.ctx, filter, bson.D{{"$set", set}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("telegram user %d not found", telegramId)
	}
	return nil
}
