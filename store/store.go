package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/ghiac/vaultcoach/config"
	"github.com/ghiac/vaultcoach/model"
)

// ErrNotFound is returned when a requested document does not exist
var ErrNotFound = errors.New("not found")

// TrainingStore reads and writes a user's training sessions.
// Sessions are stored as JSON documents and normalized on read.
type TrainingStore interface {
	ListSessions(ctx context.Context, userID string) ([]*model.Session, error)
	GetSession(ctx context.Context, userID, sessionID string) (*model.Session, error)
	PutSession(ctx context.Context, userID string, session *model.Session) error
	DeleteSession(ctx context.Context, userID, sessionID string) error
}

// UserStore keeps per-user subscription state
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*model.User, error)
	// UpdateUser merges the update into the user document, creating it when absent
	UpdateUser(ctx context.Context, userID string, update model.SubscriptionUpdate) (*model.User, error)
	FindUserBySubscriptionID(ctx context.Context, subscriptionID string) (*model.User, error)
	FindUserByCustomerID(ctx context.Context, customerID string) (*model.User, error)
}

// CouponStore keeps limited-redemption coupons
type CouponStore interface {
	GetCoupon(ctx context.Context, couponID string) (*model.Coupon, error)
	PutCoupon(ctx context.Context, coupon *model.Coupon) error
	// RedeemCoupon atomically grants one redemption to userID. The bool is
	// true when the user holds a redemption afterwards, including when they
	// already held one (no second increment). An exhausted coupon yields false.
	RedeemCoupon(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error)
	// ReleaseCoupon atomically takes back userID's redemption. The bool is
	// false when the user held none.
	ReleaseCoupon(ctx context.Context, couponID, userID string) (*model.Coupon, bool, error)
}

// Store is the full document store used by the application
type Store interface {
	TrainingStore
	UserStore
	CouponStore
	Close() error
}

// New opens the backend selected by cfg.Driver
func New(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case config.StoreMongoDB:
		return NewMongoDBStore(MongoDBStoreConfig{URI: cfg.MongoURI, Database: cfg.MongoDatabase})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
