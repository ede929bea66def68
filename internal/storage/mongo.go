package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tasks-api/internal/pool"
)

// mongoConn maps a tenant to a database and a collection name to a
// collection inside it. Each pooled handle is a client with a single socket.
type mongoConn struct {
	client *mongo.Client
}

// MongoFactory dials one single-socket client per pooled handle.
func MongoFactory(uri string, connectTimeout time.Duration) pool.Factory[Conn] {
	return pool.FactoryFuncs[Conn]{
		CreateFunc: func(ctx context.Context) (Conn, error) {
			c, err := dialMongo(ctx, uri, connectTimeout)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		DestroyFunc: func(c Conn) error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return c.Close(ctx)
		},
	}
}

func dialMongo(ctx context.Context, uri string, connectTimeout time.Duration) (*mongoConn, error) {
	opts := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(1).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})
	if connectTimeout > 0 {
		opts.SetConnectTimeout(connectTimeout)
	}

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}
	return &mongoConn{client: client}, nil
}

func (m *mongoConn) Find(ctx context.Context, tenant, coll string, filter Document, skip, limit int64) ([]Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)

	cur, err := m.client.Database(tenant).Collection(coll).Find(ctx, bson.M(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("find %s.%s: %w", tenant, coll, err)
	}

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode %s.%s: %w", tenant, coll, err)
	}

	docs := make([]Document, 0, len(raw))
	for _, d := range raw {
		docs = append(docs, Document(d))
	}
	return docs, nil
}

func (m *mongoConn) Insert(ctx context.Context, tenant, coll string, doc Document) (any, error) {
	res, err := m.client.Database(tenant).Collection(coll).InsertOne(ctx, bson.M(doc))
	if err != nil {
		return nil, fmt.Errorf("insert %s.%s: %w", tenant, coll, err)
	}
	return res.InsertedID, nil
}

func (m *mongoConn) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}
