package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Connection wraps the Mongo client plus handles to the two databases: the
// primary database holding schema/query/account metadata and the data
// database holding one collection per registered schema.
type Connection struct {
	Client  *mongo.Client
	Primary *mongo.Database
	Data    *mongo.Database
}

// Connect establishes the client and verifies connectivity with a ping.
func Connect(ctx context.Context, uri, primaryDB, dataDB string) (*Connection, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Connection{
		Client:  client,
		Primary: client.Database(primaryDB),
		Data:    client.Database(dataDB),
	}, nil
}

// Close disconnects the client.
func (c *Connection) Close(ctx context.Context) error {
	if c.Client == nil {
		return nil
	}
	return c.Client.Disconnect(ctx)
}
