// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package driver adapts a compiled [mql.Result] to a real MongoDB-compatible
// deployment, reachable over go.mongodb.org/mongo-driver.
package driver

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ferretql/aggql/internal/mql"
	"github.com/ferretql/aggql/internal/util/lazyerrors"
)

// MongoDriver runs a compiled pipeline against a real database and logs every
// dispatch with a correlation id, so a slow or failing compile can be traced
// back to the exact aggregation that caused it in shared server logs.
type MongoDriver struct {
	db *mongo.Database
	l  *slog.Logger
}

// New creates a MongoDriver over db, logging through l.
func New(db *mongo.Database, l *slog.Logger) *MongoDriver {
	return &MongoDriver{db: db, l: l}
}

// Run executes result's pipeline and decodes every result document into a
// bson.M, ready for [mql.PostProcess].
func (d *MongoDriver) Run(ctx context.Context, result *mql.Result) ([]bson.M, error) {
	id := uuid.New().String()

	l := d.l.With(slog.String("dispatch_id", id), slog.String("collection", result.Collection))

	start := time.Now()

	l.InfoContext(ctx, "dispatching pipeline", slog.Int("stages", len(result.Pipeline)))

	cur, err := d.db.Collection(result.Collection).Aggregate(ctx, result.Pipeline, options.Aggregate())
	if err != nil {
		l.ErrorContext(ctx, "pipeline dispatch failed", slog.Any("error", err))
		return nil, lazyerrors.Error(err)
	}

	defer cur.Close(ctx)

	var rows []bson.M
	if err := cur.All(ctx, &rows); err != nil {
		l.ErrorContext(ctx, "pipeline cursor decode failed", slog.Any("error", err))
		return nil, lazyerrors.Error(err)
	}

	l.InfoContext(ctx, "pipeline dispatch complete", slog.Duration("took", time.Since(start)), slog.Int("rows", len(rows)))

	return rows, nil
}

// check interfaces
var _ mql.Driver = (*MongoDriver)(nil)
