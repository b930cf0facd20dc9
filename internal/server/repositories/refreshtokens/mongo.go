package refreshtokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const MongoCollection = "refresh_tokens"

// MongoRegistry stores entries as documents in the refresh_tokens collection.
// EnsureIndexes must run once before use: the unique tokenId index is what
// makes Record an insert-if-absent.
type MongoRegistry struct {
	col *mongo.Collection
	now func() time.Time
}

func NewMongoRegistry(db *mongo.Database) *MongoRegistry {
	return &MongoRegistry{col: db.Collection(MongoCollection), now: time.Now}
}

// EnsureIndexes creates the unique tokenId index, a userId index and a TTL
// index on expiresAt so the server drops expired documents on its own.
func (r *MongoRegistry) EnsureIndexes(ctx context.Context) error {
	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "tokenId", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("tokenId_unique"),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}},
			Options: options.Index().SetName("userId"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0).SetName("expiresAt_ttl"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	return nil
}

func (r *MongoRegistry) Record(ctx context.Context, tokenID, subjectID string, issuedAt, expiresAt time.Time) error {
	return r.insert(ctx, &models.RefreshToken{
		TokenID:   tokenID,
		UserID:    subjectID,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	})
}

func (r *MongoRegistry) insert(ctx context.Context, t *models.RefreshToken) error {
	if _, err := r.col.InsertOne(ctx, t); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return common.ErrDuplicateTokenID
		}
		return fmt.Errorf("mongo error: %w", err)
	}
	return nil
}

func (r *MongoRegistry) IsActive(ctx context.Context, tokenID string) (bool, error) {
	t, err := r.Find(ctx, tokenID)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.ActiveAt(r.now()), nil
}

func (r *MongoRegistry) Find(ctx context.Context, tokenID string) (*models.RefreshToken, error) {
	t := &models.RefreshToken{}
	if err := r.col.FindOne(ctx, bson.M{"tokenId": tokenID}).Decode(t); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("mongo error: %w", err)
	}
	return t, nil
}

func revokeUpdate(at time.Time) bson.M {
	return bson.M{"$set": bson.M{"revoked": true, "revokedAt": at}}
}

func (r *MongoRegistry) Revoke(ctx context.Context, tokenID string) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"tokenId": tokenID, "revoked": false},
		revokeUpdate(r.now()),
	)
	if err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	return nil
}

// Rotate flips the old document with a filtered update, which Mongo applies
// atomically per document. If inserting next then fails the old entry is
// restored.
func (r *MongoRegistry) Rotate(ctx context.Context, oldTokenID string, next *models.RefreshToken) error {
	now := r.now()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"tokenId": oldTokenID, "revoked": false, "expiresAt": bson.M{"$gt": now}},
		revokeUpdate(now),
	)
	if err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	if res.MatchedCount == 0 {
		old, err := r.Find(ctx, oldTokenID)
		if err != nil {
			return err
		}
		return classify(old, now)
	}

	if err := r.insert(ctx, next); err != nil {
		_, undoErr := r.col.UpdateOne(ctx,
			bson.M{"tokenId": oldTokenID, "revokedAt": now},
			bson.M{"$set": bson.M{"revoked": false}, "$unset": bson.M{"revokedAt": ""}},
		)
		return errors.Join(err, undoErr)
	}
	return nil
}

func (r *MongoRegistry) RevokeAllForSubject(ctx context.Context, subjectID string) error {
	_, err := r.col.UpdateMany(ctx,
		bson.M{"userId": subjectID, "revoked": false},
		revokeUpdate(r.now()),
	)
	if err != nil {
		return fmt.Errorf("mongo error: %w", err)
	}
	return nil
}

// DeleteExpired removes what the TTL monitor has not reached yet; it runs
// about once a minute on the server.
func (r *MongoRegistry) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": before}})
	if err != nil {
		return 0, fmt.Errorf("mongo error: %w", err)
	}
	return res.DeletedCount, nil
}
