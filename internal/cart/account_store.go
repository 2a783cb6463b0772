package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	d "github.com/fjod/photo_checkout/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type accountCart struct {
	ID        string       `bson:"_id,omitempty"`
	AccountID string       `bson:"account_id"`
	Items     []d.CartItem `bson:"items"`
	CreatedAt time.Time    `bson:"created_at"`
	UpdatedAt time.Time    `bson:"updated_at"`
}

// AccountStore keeps carts of signed-in buyers in MongoDB, one document per account.
type AccountStore struct {
	collection *mongo.Collection
}

var _ Store = (*AccountStore)(nil)

func NewAccountStore(db *mongo.Database) *AccountStore {
	return &AccountStore{collection: db.Collection("carts")}
}

func (s *AccountStore) ReadCart(ctx context.Context, accountID string) ([]d.CartItem, error) {
	var c accountCart
	err := s.collection.FindOne(ctx, bson.M{"account_id": accountID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return c.Items, nil
}

// AddItem pushes the item unless it is already in the cart. The filter only
// matches carts lacking the item, so a present item turns the upsert into a
// duplicate-key insert, which is the no-op case.
func (s *AccountStore) AddItem(ctx context.Context, accountID string, item d.CartItem) error {
	now := time.Now().UTC()
	item.Source = d.CartSourceAccount
	if item.AddedAt.IsZero() {
		item.AddedAt = now
	}

	filter := bson.M{
		"account_id":    accountID,
		"items.item_id": bson.M{"$ne": item.ItemID},
	}
	update := bson.M{
		"$push":        bson.M{"items": item},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}

	_, err := s.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to add item: %w", err)
	}
	return nil
}

func (s *AccountStore) RemoveItem(ctx context.Context, accountID, itemID string) error {
	filter := bson.M{"account_id": accountID, "items.item_id": itemID}
	update := bson.M{
		"$pull": bson.M{"items": bson.M{"item_id": itemID}},
		"$set":  bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}
	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}
	return nil
}

// ClearCart deletes the account's cart; clearing a missing cart is not an error.
func (s *AccountStore) ClearCart(ctx context.Context, accountID string) error {
	if _, err := s.collection.DeleteOne(ctx, bson.M{"account_id": accountID}); err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}
	return nil
}

func (s *AccountStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "account_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}
