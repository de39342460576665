package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"registerkaro/internal/models"
)

// SessionRepository mirrors session records to MongoDB. The in-memory store is
// authoritative; the mirror exists so a restarted process can rehydrate a
// returning visitor's funnel state from their cookie ID.
type SessionRepository struct {
	sessions *mongo.Collection
}

// NewSessionRepository creates a repository over the sessions collection
func NewSessionRepository(db *MongoDB) *SessionRepository {
	return &SessionRepository{
		sessions: db.Collection(CollectionSessions),
	}
}

// Save upserts a snapshot of the record keyed by session ID
func (r *SessionRepository) Save(ctx context.Context, record *models.SessionRecord) error {
	// Field-by-field snapshot under the lock; the record itself must not be
	// copied (it carries the mutex) or marshaled while concurrently mutated.
	var snapshot *models.SessionRecord
	record.WithLock(func(rec *models.SessionRecord) {
		snapshot = &models.SessionRecord{
			SessionID:        rec.SessionID,
			Profile:          rec.Profile,
			Transcript:       rec.LastTurns(0),
			DocumentStatus:   rec.DocumentStatus,
			DocumentAnalysis: rec.DocumentAnalysis,
			DocumentPath:     rec.DocumentPath,
			DocumentFilename: rec.DocumentFilename,
			DocumentUploaded: rec.DocumentUploaded,
			PaymentStatus:    rec.PaymentStatus,
			PaymentID:        rec.PaymentID,
			PaymentLink:      rec.PaymentLink,
			PaymentAmount:    rec.PaymentAmount,
			PaymentCurrency:  rec.PaymentCurrency,
			FollowUpCount:    rec.FollowUpCount,
			CreatedAt:        rec.CreatedAt,
			LastActivity:     rec.LastActivity,
		}
	})

	filter := bson.M{"sessionId": snapshot.SessionID}
	update := bson.M{
		"$set": snapshot,
		"$setOnInsert": bson.M{
			"mirroredAt": time.Now(),
		},
	}

	_, err := r.sessions.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to mirror session %s: %w", snapshot.SessionID, err)
	}
	return nil
}

// Find loads a mirrored record by session ID. Returns (nil, nil) when absent.
func (r *SessionRepository) Find(ctx context.Context, sessionID string) (*models.SessionRecord, error) {
	var record models.SessionRecord
	err := r.sessions.FindOne(ctx, bson.M{"sessionId": sessionID}).Decode(&record)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	return &record, nil
}
