package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Collection names
const (
	CollectionSessions  = "sessions"
	CollectionDocuments = "documents"
)

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(20).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := extractDBName(uri)
	if dbName == "" {
		dbName = "registerkaro"
	}

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return db, nil
}

// extractDBName extracts the database name from MongoDB URI
func extractDBName(uri string) string {
	// mongodb://localhost:27017/registerkaro?authSource=admin -> registerkaro
	lastSlash := -1
	questionMark := -1

	for i, c := range uri {
		if c == '/' {
			lastSlash = i
		}
		if c == '?' && questionMark == -1 {
			questionMark = i
		}
	}

	if lastSlash != -1 {
		start := lastSlash + 1
		end := len(uri)
		if questionMark != -1 && questionMark > lastSlash {
			end = questionMark
		}
		if start < end {
			return uri[start:end]
		}
	}

	return "registerkaro"
}

// Initialize creates indexes for all collections
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 Initializing MongoDB indexes...")

	if err := m.createIndexes(ctx, CollectionSessions, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sessionId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "lastActivity", Value: -1}}},
		{Keys: bson.D{{Key: "paymentStatus", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create sessions indexes: %w", err)
	}

	if err := m.createIndexes(ctx, CollectionDocuments, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sessionId", Value: 1}, {Key: "uploadedAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create documents indexes: %w", err)
	}

	log.Println("✅ MongoDB indexes initialized successfully")
	return nil
}

// createIndexes creates indexes for a collection
func (m *MongoDB) createIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	collection := m.database.Collection(collectionName)
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection returns a collection handle
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Database returns the underlying MongoDB database
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 Closing MongoDB connection...")
	return m.client.Disconnect(ctx)
}

// Ping checks if the database connection is alive
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
