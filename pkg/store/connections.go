package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/flagkit/flagkit/pkg/payload"
	"github.com/flagkit/flagkit/pkg/proxy"
)

// DefaultConnectionsCollection is the collection holding SDK connections.
const DefaultConnectionsCollection = "sdkconnections"

// ConnectionStore reads SDK connection records and persists proxy status
// on them. It serves both the propagation fan-out and the proxy monitor.
type ConnectionStore struct {
	coll *mongo.Collection
}

// NewConnectionStore creates a connection store over the default collection.
func NewConnectionStore(db *mongo.Database) *ConnectionStore {
	return &ConnectionStore{coll: db.Collection(DefaultConnectionsCollection)}
}

// ByOrganization returns every SDK connection of the organization.
func (s *ConnectionStore) ByOrganization(ctx context.Context, orgID string) ([]payload.SDKConnection, error) {
	cur, err := s.coll.Find(ctx, bson.M{"organization": orgID})
	if err != nil {
		return nil, fmt.Errorf("list sdk connections: %w", err)
	}
	var conns []payload.SDKConnection
	if err := cur.All(ctx, &conns); err != nil {
		return nil, fmt.Errorf("decode sdk connections: %w", err)
	}
	return conns, nil
}

// BySDKKey returns the connection owning the given client key.
func (s *ConnectionStore) BySDKKey(ctx context.Context, sdkKey string) (payload.SDKConnection, error) {
	var conn payload.SDKConnection
	err := s.coll.FindOne(ctx, bson.M{"key": sdkKey}).Decode(&conn)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return payload.SDKConnection{}, fmt.Errorf("sdk connection %q: %w", sdkKey, ErrNotFound)
		}
		return payload.SDKConnection{}, fmt.Errorf("get sdk connection: %w", err)
	}
	return conn, nil
}

// ListEnabled returns a proxy endpoint for every connection with an enabled
// proxy that has a host configured.
func (s *ConnectionStore) ListEnabled(ctx context.Context) ([]proxy.Endpoint, error) {
	filter := bson.M{
		"proxy.enabled": true,
		"proxy.host":    bson.M{"$nin": bson.A{"", nil}},
	}
	cur, err := s.coll.Find(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list proxied connections: %w", err)
	}
	var conns []payload.SDKConnection
	if err := cur.All(ctx, &conns); err != nil {
		return nil, fmt.Errorf("decode proxied connections: %w", err)
	}
	endpoints := make([]proxy.Endpoint, 0, len(conns))
	for _, conn := range conns {
		endpoints = append(endpoints, endpointFromConnection(conn))
	}
	return endpoints, nil
}

// Lookup returns the proxy endpoint of one connection.
func (s *ConnectionStore) Lookup(ctx context.Context, connectionID string) (proxy.Endpoint, error) {
	var conn payload.SDKConnection
	err := s.coll.FindOne(ctx, bson.M{"id": connectionID}).Decode(&conn)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return proxy.Endpoint{}, fmt.Errorf("sdk connection %q: %w", connectionID, ErrNotFound)
		}
		return proxy.Endpoint{}, fmt.Errorf("get sdk connection: %w", err)
	}
	return endpointFromConnection(conn), nil
}

// UpdateStatus replaces the stored proxy status of a connection. The
// lastError stamp is only advanced on failures so a recovered proxy keeps
// its history.
func (s *ConnectionStore) UpdateStatus(ctx context.Context, connectionID string, status proxy.Status) error {
	set := bson.M{
		"proxy.connected": status.Connected,
		"proxy.version":   status.Version,
		"proxy.error":     status.Error,
	}
	if status.Error != "" {
		set["proxy.lastError"] = status.CheckedAt
	}
	res, err := s.coll.UpdateOne(ctx, bson.M{"id": connectionID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("update proxy status: %w", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("sdk connection %q: %w", connectionID, ErrNotFound)
	}
	return nil
}

func endpointFromConnection(conn payload.SDKConnection) proxy.Endpoint {
	return proxy.Endpoint{
		ConnectionID: conn.ID,
		SDKKey:       conn.Key,
		Host:         conn.Proxy.Host,
		SigningKey:   conn.Proxy.SigningKey,
	}
}
