package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/relay-service/internal/domain"
)

const opTimeout = 3 * time.Second

// MongoStore persists messages in one collection and reads chat membership
// from another.
type MongoStore struct {
	msgColl  *mongo.Collection
	chatColl *mongo.Collection
}

func NewMongoStore(db *mongo.Database, messages, chats string) *MongoStore {
	return &MongoStore{
		msgColl:  db.Collection(messages),
		chatColl: db.Collection(chats),
	}
}

// EnsureIndexes creates the chat/time index used by history queries.
func (r *MongoStore) EnsureIndexes(ctx context.Context) error {
	ix := mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}},
		Options: options.Index().SetName("chat_created_idx"),
	}
	_, err := r.msgColl.Indexes().CreateOne(ctx, ix)
	return err
}

func (r *MongoStore) CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	rec := m.Clone()
	rec.ID = primitive.NewObjectID().Hex()
	rec.CreatedAt = time.Now().UTC()
	rec.UpdatedAt = rec.CreatedAt
	if rec.Reactions == nil {
		rec.Reactions = []domain.Reaction{}
	}
	if rec.Attachments == nil {
		rec.Attachments = []domain.Attachment{}
	}
	if _, err := r.msgColl.InsertOne(ctx, rec); err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return rec, nil
}

func (r *MongoStore) FindMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var m domain.Message
	if err := r.msgColl.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find message %s: %w", id, err)
	}
	return &m, nil
}

// UpdatePartial issues a $set on the given fields only. Without
// SkipValidation the stored record is read first and the merged result
// validated before writing.
func (r *MongoStore) UpdatePartial(ctx context.Context, id string, f Fields, opts UpdateOptions) (*domain.Message, error) {
	if !opts.SkipValidation {
		cur, err := r.FindMessageByID(ctx, id)
		if err != nil || cur == nil {
			return cur, err
		}
		apply(cur, f)
		if err := cur.Validate(); err != nil {
			return nil, fmt.Errorf("update message %s: %w", id, err)
		}
	}

	set := bson.M{"updated_at": time.Now().UTC()}
	if f.Reactions != nil {
		reactions := *f.Reactions
		if reactions == nil {
			reactions = []domain.Reaction{}
		}
		set["reactions"] = reactions
	}
	if f.Seen != nil {
		set["seen"] = *f.Seen
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res := r.msgColl.FindOneAndUpdate(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	)
	var m domain.Message
	if err := res.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("update message %s: %w", id, err)
	}
	return &m, nil
}

// toggleAttempts bounds retries when concurrent toggles keep flipping the
// pair between the pull and the push.
const toggleAttempts = 3

// ToggleReaction pulls the pair if the message holds it, else pushes it. Each
// step is a single conditional FindOneAndUpdate, so toggles from several
// instances never overwrite each other's reactions.
func (r *MongoStore) ToggleReaction(ctx context.Context, id string, re domain.Reaction) (*domain.Message, bool, error) {
	pair := bson.M{"user_id": re.UserID, "emoji": re.Emoji}
	for i := 0; i < toggleAttempts; i++ {
		m, err := r.updateWhere(ctx,
			bson.M{"_id": id, "reactions": bson.M{"$elemMatch": pair}},
			bson.M{"$pull": bson.M{"reactions": pair}, "$set": bson.M{"updated_at": time.Now().UTC()}})
		if err != nil || m != nil {
			return m, false, err
		}
		m, err = r.updateWhere(ctx,
			bson.M{"_id": id, "reactions": bson.M{"$not": bson.M{"$elemMatch": pair}}},
			bson.M{"$push": bson.M{"reactions": pair}, "$set": bson.M{"updated_at": time.Now().UTC()}})
		if err != nil || m != nil {
			return m, true, err
		}
		cur, err := r.FindMessageByID(ctx, id)
		if err != nil || cur == nil {
			return nil, false, err
		}
	}
	return nil, false, fmt.Errorf("toggle reaction on %s: contended", id)
}

func (r *MongoStore) updateWhere(ctx context.Context, filter, update bson.M) (*domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	res := r.msgColl.FindOneAndUpdate(ctx, filter, update, options.FindOneAndUpdate().SetReturnDocument(options.After))
	var m domain.Message
	if err := res.Decode(&m); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("update message: %w", err)
	}
	return &m, nil
}

func (r *MongoStore) FindChatByID(ctx context.Context, id string) (*domain.Chat, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	var c domain.Chat
	if err := r.chatColl.FindOne(ctx, bson.M{"_id": id}).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("find chat %s: %w", id, err)
	}
	return &c, nil
}
