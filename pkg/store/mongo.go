package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"inboxdb/pkg/logger"
	"inboxdb/pkg/models"
)

// Mongo is the document-store backend the original deployment ran on.
// Atomicity comes from server-side single-document operations: upsert
// with $setOnInsert for exactly-once creation, and a $set update for
// status merges. The sparse unique index on primary_id backs the
// uniqueness invariant.
type Mongo struct {
	client *mongo.Client
	col    *mongo.Collection
}

// OpenMongo connects, pings, and ensures the indexes the engine relies on.
func OpenMongo(ctx context.Context, uri, database, collection string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	col := client.Database(database).Collection(collection)

	_, err = col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "primary_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys: bson.D{{Key: "secondary_id", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "occurred_at", Value: 1}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mongo ensure indexes: %w", err)
	}
	logger.Info("mongo_opened", zap.String("database", database), zap.String("collection", collection))
	return &Mongo{client: client, col: col}, nil
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := m.client.Disconnect(ctx)
	m.client = nil
	return err
}

// query translates an identity filter into a Mongo filter document.
func query(f IdentityFilter) bson.M {
	var ors []bson.M
	if f.PrimaryID != "" {
		ors = append(ors, bson.M{"primary_id": f.PrimaryID})
	}
	if f.SecondaryID != "" {
		ors = append(ors, bson.M{"secondary_id": f.SecondaryID})
	}
	if len(ors) > 0 {
		return bson.M{"$or": ors}
	}
	weakFilterTotal.Inc()
	logger.Warn("weak_identity_filter",
		zap.String("conversation", f.ConversationID),
		zap.Time("occurred_at", f.OccurredAt),
	)
	return bson.M{
		"conversation_id": f.ConversationID,
		"body":            f.Body,
		"occurred_at":     f.OccurredAt,
	}
}

// InsertIfAbsent performs an upsert whose update consists only of
// $setOnInsert, so an existing match is left untouched.
func (m *Mongo) InsertIfAbsent(ctx context.Context, f IdentityFilter, rec models.Message) (bool, error) {
	if m.col == nil {
		return false, ErrNotReady
	}
	res, err := m.col.UpdateOne(ctx, query(f), bson.M{"$setOnInsert": rec}, options.Update().SetUpsert(true))
	if err != nil {
		// A concurrent insert of the same primary_id trips the unique
		// index; that is a duplicate, not a failure.
		if mongo.IsDuplicateKeyError(err) {
			duplicateTotal.Inc()
			return false, nil
		}
		return false, err
	}
	if res.UpsertedCount > 0 {
		insertedTotal.Inc()
		return true, nil
	}
	duplicateTotal.Inc()
	return false, nil
}

// ApplyStatus sets the status fields on the first matching record.
func (m *Mongo) ApplyStatus(ctx context.Context, f IdentityFilter, u StatusUpdate) (bool, error) {
	if m.col == nil {
		return false, ErrNotReady
	}
	set := bson.M{"status": u.Status}
	if u.Status.Known() {
		set["status_history."+string(u.Status)] = u.At
	}
	res, err := m.col.UpdateOne(ctx, query(f), bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		statusDroppedTotal.Inc()
		return false, nil
	}
	statusAppliedTotal.Inc()
	return true, nil
}

func idQuery(id string) bson.M {
	return bson.M{
		"$or":     []bson.M{{"primary_id": id}, {"secondary_id": id}},
		"deleted": bson.M{"$ne": true},
	}
}

// GetMessage returns the record whose primary or secondary id equals id.
func (m *Mongo) GetMessage(ctx context.Context, id string) (models.Message, error) {
	var out models.Message
	if m.col == nil {
		return out, ErrNotReady
	}
	err := m.col.FindOne(ctx, idQuery(id)).Decode(&out)
	if err == mongo.ErrNoDocuments {
		return out, ErrNoMatch
	}
	return out, err
}

// ListMessages returns the live messages of one conversation, oldest
// first.
func (m *Mongo) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	if m.col == nil {
		return nil, ErrNotReady
	}
	opts := options.Find().SetSort(bson.D{{Key: "occurred_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := m.col.Find(ctx, bson.M{
		"conversation_id": conversationID,
		"deleted":         bson.M{"$ne": true},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Message
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ListConversations groups messages by conversation, newest first, the
// same aggregation the sidebar always ran.
func (m *Mongo) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	if m.col == nil {
		return nil, ErrNotReady
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"deleted": bson.M{"$ne": true}}}},
		{{Key: "$sort", Value: bson.D{{Key: "occurred_at", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":           "$conversation_id",
			"display_names": bson.M{"$push": "$display_name"},
			"last_body":     bson.M{"$first": "$body"},
			"last_status":   bson.M{"$first": "$status"},
			"last_time":     bson.M{"$first": "$occurred_at"},
			"messages":      bson.M{"$sum": 1},
		}}},
		// newest non-empty display name, like the embedded backend
		{{Key: "$set", Value: bson.M{
			"display_name": bson.M{"$arrayElemAt": bson.A{
				bson.M{"$filter": bson.M{
					"input": "$display_names",
					"cond":  bson.M{"$ne": bson.A{"$$this", ""}},
				}},
				0,
			}},
		}}},
		{{Key: "$unset", Value: "display_names"}},
		{{Key: "$sort", Value: bson.D{{Key: "last_time", Value: -1}}}},
	}
	cur, err := m.col.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []models.Conversation
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SoftDelete tombstones the record matching id.
func (m *Mongo) SoftDelete(ctx context.Context, id string) (bool, error) {
	if m.col == nil {
		return false, ErrNotReady
	}
	res, err := m.col.UpdateOne(ctx, idQuery(id), bson.M{"$set": bson.M{
		"deleted":    true,
		"deleted_ts": time.Now().UTC().UnixNano(),
	}})
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

// PurgeDeleted removes tombstones deleted before cutoff.
func (m *Mongo) PurgeDeleted(ctx context.Context, cutoff time.Time) (int, error) {
	if m.col == nil {
		return 0, ErrNotReady
	}
	res, err := m.col.DeleteMany(ctx, bson.M{
		"deleted":    true,
		"deleted_ts": bson.M{"$lt": cutoff.UTC().UnixNano()},
	})
	if err != nil {
		return 0, err
	}
	if res.DeletedCount > 0 {
		purgedTotal.Add(float64(res.DeletedCount))
		logger.Info("retention_purged", zap.Int64("count", res.DeletedCount))
	}
	return int(res.DeletedCount), nil
}
