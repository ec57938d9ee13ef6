package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ghiac/vaultcoach/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Collection names
const (
	sessionsCollection  = "trainingSessions"
	usersCollection     = "users"
	couponsCollection   = "stripeCoupons"
	toolCallsCollection = "toolCalls"
)

// MongoDBStore is a MongoDB implementation of Store
// Sessions are stored with JSON serialization; users, coupons and tool
// calls are native documents so they can be updated field by field.
type MongoDBStore struct {
	client    *mongo.Client
	database  *mongo.Database
	sessions  *mongo.Collection
	users     *mongo.Collection
	coupons   *mongo.Collection
	toolCalls *mongo.Collection
}

// MongoDBStoreConfig holds configuration for MongoDBStore
type MongoDBStoreConfig struct {
	URI      string // MongoDB connection URI (e.g., "mongodb://localhost:27017")
	Database string // Database name (default: "vaultcoach")
}

// DefaultMongoDBStoreConfig returns default configuration
func DefaultMongoDBStoreConfig() MongoDBStoreConfig {
	return MongoDBStoreConfig{
		URI:      "mongodb://localhost:27017",
		Database: "vaultcoach",
	}
}

// NewMongoDBStore creates a new MongoDB store
func NewMongoDBStore(config MongoDBStoreConfig) (*MongoDBStore, error) {
	defaults := DefaultMongoDBStoreConfig()
	if config.URI == "" {
		config.URI = defaults.URI
	}
	if config.Database == "" {
		config.Database = defaults.Database
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(config.URI)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(config.Database)
	store := &MongoDBStore{
		client:    client,
		database:  database,
		sessions:  database.Collection(sessionsCollection),
		users:     database.Collection(usersCollection),
		coupons:   database.Collection(couponsCollection),
		toolCalls: database.Collection(toolCallsCollection),
	}

	// Create indexes
	if err := store.initIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	return store, nil
}

// initIndexes creates the necessary indexes
func (s *MongoDBStore) initIndexes(ctx context.Context) error {
	_, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "session_date", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}

	_, err = s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "stripe_customer_id", Value: 1}}},
		{Keys: bson.D{{Key: "stripe_subscription_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	_, err = s.toolCalls.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create tool call index: %w", err)
	}

	return nil
}

// Close closes the MongoDB connection
func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// sessionDocument represents a session document in MongoDB
type sessionDocument struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"user_id"`
	SessionID   string    `bson:"session_id"`
	SessionDate int64     `bson:"session_date"`
	Data        string    `bson:"data"` // JSON serialized Session
	UpdatedAt   time.Time `bson:"updated_at"`
}

func sessionDocID(userID, sessionID string) string {
	return userID + "/" + sessionID
}

// ListSessions returns all sessions for a user ordered by date descending
func (s *MongoDBStore) ListSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := s.sessions.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "session_date", Value: -1}, {Key: "session_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer cursor.Close(ctx)

	sessions := make([]*model.Session, 0)
	for cursor.Next(ctx) {
		var doc sessionDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode session: %w", err)
		}
		session, err := model.DecodeSession(doc.SessionID, []byte(doc.Data))
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	model.SortSessionsByDateDesc(sessions)
	return sessions, nil
}

// GetSession retrieves one session
func (s *MongoDBStore) GetSession(ctx context.Context, userID, sessionID string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc sessionDocument
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionDocID(userID, sessionID)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	return model.DecodeSession(doc.SessionID, []byte(doc.Data))
}

// PutSession stores or updates a session
func (s *MongoDBStore) PutSession(ctx context.Context, userID string, session *model.Session) error {
	data, err := prepareSession(session)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc := sessionDocument{
		ID:          sessionDocID(userID, session.ID),
		UserID:      userID,
		SessionID:   session.ID,
		SessionDate: sessionDateKey(session),
		Data:        string(data),
		UpdatedAt:   session.UpdatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.sessions.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

// DeleteSession removes a session
func (s *MongoDBStore) DeleteSession(ctx context.Context, userID, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := s.sessions.DeleteOne(ctx, bson.M{"_id": sessionDocID(userID, sessionID)}); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// userDocument represents a user document in MongoDB
type userDocument struct {
	UserID                string    `bson:"_id"`
	Email                 string    `bson:"email,omitempty"`
	SubscriptionTier      string    `bson:"subscription_tier"`
	SubscriptionStatus    string    `bson:"subscription_status,omitempty"`
	IsTrialing            bool      `bson:"is_trialing"`
	TrialEndsAt           time.Time `bson:"trial_ends_at,omitempty"`
	SubscriptionExpiresAt time.Time `bson:"subscription_expires_at,omitempty"`
	StripeCustomerID      string    `bson:"stripe_customer_id,omitempty"`
	StripeSubscriptionID  string    `bson:"stripe_subscription_id,omitempty"`
	CreatedAt             time.Time `bson:"created_at"`
	UpdatedAt             time.Time `bson:"updated_at"`
}

func (d *userDocument) toUser() *model.User {
	return &model.User{
		UserID:                d.UserID,
		Email:                 d.Email,
		SubscriptionTier:      d.SubscriptionTier,
		SubscriptionStatus:    d.SubscriptionStatus,
		IsTrialing:            d.IsTrialing,
		TrialEndsAt:           d.TrialEndsAt,
		SubscriptionExpiresAt: d.SubscriptionExpiresAt,
		StripeCustomerID:      d.StripeCustomerID,
		StripeSubscriptionID:  d.StripeSubscriptionID,
		CreatedAt:             d.CreatedAt,
		UpdatedAt:             d.UpdatedAt,
	}
}

// GetUser retrieves a user
func (s *MongoDBStore) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"_id": userID})
}

// FindUserBySubscriptionID finds the user holding a Stripe subscription
func (s *MongoDBStore) FindUserBySubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error) {
	if subscriptionID == "" {
		return nil, ErrNotFound
	}
	return s.findUser(ctx, bson.M{"stripe_subscription_id": subscriptionID})
}

// FindUserByCustomerID finds the user owning a Stripe customer
func (s *MongoDBStore) FindUserByCustomerID(ctx context.Context, customerID string) (*model.User, error) {
	if customerID == "" {
		return nil, ErrNotFound
	}
	return s.findUser(ctx, bson.M{"stripe_customer_id": customerID})
}

func (s *MongoDBStore) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc userDocument
	err := s.users.FindOne(ctx, filter).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return doc.toUser(), nil
}

// UpdateUser merges update into the user document with $set, creating it when absent
func (s *MongoDBStore) UpdateUser(ctx context.Context, userID string, update model.SubscriptionUpdate) (*model.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id cannot be empty")
	}

	now := time.Now()
	set := bson.M{"updated_at": now}
	setOnInsert := bson.M{"created_at": now}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.SubscriptionTier != nil {
		set["subscription_tier"] = *update.SubscriptionTier
	} else {
		setOnInsert["subscription_tier"] = model.TierFree
	}
	if update.SubscriptionStatus != nil {
		set["subscription_status"] = *update.SubscriptionStatus
	}
	if update.IsTrialing != nil {
		set["is_trialing"] = *update.IsTrialing
	}
	if update.TrialEndsAt != nil {
		set["trial_ends_at"] = *update.TrialEndsAt
	}
	if update.SubscriptionExpiresAt != nil {
		set["subscription_expires_at"] = *update.SubscriptionExpiresAt
	}
	if update.StripeCustomerID != nil {
		set["stripe_customer_id"] = *update.StripeCustomerID
	}
	if update.StripeSubscriptionID != nil {
		set["stripe_subscription_id"] = *update.StripeSubscriptionID
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var doc userDocument
	err := s.users.FindOneAndUpdate(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": set, "$setOnInsert": setOnInsert},
		opts,
	).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return doc.toUser(), nil
}

// couponDocument represents a coupon document in MongoDB
type couponDocument struct {
	ID                 string   `bson:"_id"`
	MaxRedemptions     int      `bson:"max_redemptions"`
	CurrentRedemptions int      `bson:"current_redemptions"`
	DiscountPercent    float64  `bson:"discount_percent"`
	RedeemedBy         []string `bson:"redeemed_by"`
}

func (d *couponDocument) toCoupon() *model.Coupon {
	return &model.Coupon{
		ID:                 d.ID,
		MaxRedemptions:     d.MaxRedemptions,
		CurrentRedemptions: d.CurrentRedemptions,
		DiscountPercent:    d.DiscountPercent,
		RedeemedBy:         append([]string(nil), d.RedeemedBy...),
	}
}

// GetCoupon retrieves a coupon
func (s *MongoDBStore) GetCoupon(ctx context.Context, couponID string) (*model.Coupon, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var doc couponDocument
	err := s.coupons.FindOne(ctx, bson.M{"_id": couponID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, fmt.Errorf("coupon %s: %w", couponID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query coupon: %w", err)
	}
	return doc.toCoupon(), nil
}

// PutCoupon stores or replaces a coupon
func (s *MongoDBStore) PutCoupon(ctx context.Context, coupon *model.Coupon) error {
	if coupon == nil || coupon.ID == "" {
		return fmt.Errorf("coupon must have an id")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc := couponDocument{
		ID:                 coupon.ID,
		MaxRedemptions:     coupon.MaxRedemptions,
		CurrentRedemptions: coupon.CurrentRedemptions,
		DiscountPercent:    coupon.DiscountPercent,
		RedeemedBy:         append([]string{}, coupon.RedeemedBy...),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coupons.ReplaceOne(ctx, bson.M{"_id": coupon.ID}, doc, opts); err != nil {
		return fmt.Errorf("failed to store coupon: %w", err)
	}
	return nil
}

// RedeemCoupon grants one redemption with a single conditional update.
// The filter only matches while redemptions remain and the user is not
// yet listed, so the increment and the list append happen together.
func (s *MongoDBStore) RedeemCoupon(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"_id":         couponID,
		"redeemed_by": bson.M{"$ne": userID},
		"$expr":       bson.M{"$lt": bson.A{"$current_redemptions", "$max_redemptions"}},
	}
	update := bson.M{
		"$inc":  bson.M{"current_redemptions": 1},
		"$push": bson.M{"redeemed_by": userID},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc couponDocument
	err := s.coupons.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toCoupon(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("failed to redeem coupon: %w", err)
	}

	// Missing, exhausted, or already redeemed by this user
	coupon, err := s.GetCoupon(ctx, couponID)
	if err != nil {
		return nil, false, err
	}
	return coupon, coupon.RedeemedByUser(userID), nil
}

// ReleaseCoupon takes back userID's redemption. The filter only matches
// while the user is listed, so the decrement and the removal happen together.
func (s *MongoDBStore) ReleaseCoupon(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	filter := bson.M{
		"_id":                 couponID,
		"redeemed_by":         userID,
		"current_redemptions": bson.M{"$gt": 0},
	}
	update := bson.M{
		"$inc":  bson.M{"current_redemptions": -1},
		"$pull": bson.M{"redeemed_by": userID},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc couponDocument
	err := s.coupons.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == nil {
		return doc.toCoupon(), true, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, fmt.Errorf("failed to release coupon: %w", err)
	}

	// Missing or not held by this user
	coupon, err := s.GetCoupon(ctx, couponID)
	if err != nil {
		return nil, false, err
	}
	return coupon, false, nil
}

// toolCallDocument represents a tool call record in MongoDB
type toolCallDocument struct {
	ToolCallID   string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	FunctionName string    `bson:"function_name"`
	Arguments    string    `bson:"arguments"`
	Response     string    `bson:"response"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// PutToolCall records a tool call
func (s *MongoDBStore) PutToolCall(ctx context.Context, toolCall *model.ToolCall) error {
	if toolCall == nil {
		return fmt.Errorf("toolCall cannot be nil")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	doc := toolCallDocument{
		ToolCallID:   toolCall.ToolCallID,
		UserID:       toolCall.UserID,
		FunctionName: toolCall.FunctionName,
		Arguments:    toolCall.Arguments,
		Response:     toolCall.Response,
		CreatedAt:    toolCall.CreatedAt,
		UpdatedAt:    toolCall.UpdatedAt,
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.toolCalls.ReplaceOne(ctx, bson.M{"_id": doc.ToolCallID}, doc, opts); err != nil {
		return fmt.Errorf("failed to store tool call: %w", err)
	}
	return nil
}

// UpdateToolCallResponse stores the response of a recorded tool call
func (s *MongoDBStore) UpdateToolCallResponse(ctx context.Context, toolCallID, response string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.toolCalls.UpdateOne(ctx,
		bson.M{"_id": toolCallID},
		bson.M{"$set": bson.M{"response": response, "updated_at": time.Now()}},
	)
	if err != nil {
		return fmt.Errorf("failed to update tool call response: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("tool call %s: %w", toolCallID, ErrNotFound)
	}
	return nil
}

// ListToolCalls returns the recorded tool calls of a user, oldest first
func (s *MongoDBStore) ListToolCalls(ctx context.Context, userID string) ([]*model.ToolCall, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cursor, err := s.toolCalls.Find(ctx, bson.M{"user_id": userID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to query tool calls: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []toolCallDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tool calls: %w", err)
	}
	out := make([]*model.ToolCall, 0, len(docs))
	for _, d := range docs {
		out = append(out, &model.ToolCall{
			ToolCallID:   d.ToolCallID,
			UserID:       d.UserID,
			FunctionName: d.FunctionName,
			Arguments:    d.Arguments,
			Response:     d.Response,
			CreatedAt:    d.CreatedAt,
			UpdatedAt:    d.UpdatedAt,
		})
	}
	return out, nil
}
