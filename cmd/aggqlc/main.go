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

// Package main is the entry point for aggqlc, the query compiler's command-line
// front end: it reads a schema and an AST off disk, compiles the AST to an
// aggregation pipeline, and either prints it or runs it against a real deployment.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/AlekSi/pointer"
	"github.com/alecthomas/kong"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ferretql/aggql/internal/driver"
	"github.com/ferretql/aggql/internal/mql"
	"github.com/ferretql/aggql/internal/util/logging"
)

//nolint:lll // for readability
var cli struct {
	Schema   string `help:"Path to a JSON file describing the schema's field table." required:""`
	AST      string `help:"Path to a JSON file containing the query AST to compile." required:""`
	Execute  bool   `help:"Run the compiled pipeline against --mongo-uri instead of only printing it."`
	MongoURI string `name:"mongo-uri" default:"mongodb://127.0.0.1:27017" help:"MongoDB connection string, used only with --execute."`
	Limit    int    `help:"Override the AST's own limit, if set. Ignored when the AST has a page." optional:""`

	Log struct {
		Level  string `default:"info"    help:"Logging level: debug, info, warn, error."`
		Format string `default:"console" help:"Logging format: console, json." enum:"console,json"`
	} `embed:"" prefix:"log-"`
}

// schemaField is one row of the --schema file.
type schemaField struct {
	ID          mql.FieldID  `json:"id"`
	Name        string       `json:"name"`
	ParentID    *mql.FieldID `json:"parent_id"`
	BaseType    mql.Type     `json:"base_type"`
	SpecialType mql.Type     `json:"special_type"`
}

func main() {
	kctx := kong.Parse(&cli, kong.Description("Compile a structured query into a MongoDB aggregation pipeline."))

	level := slog.LevelInfo
	kctx.FatalIfErrorf(level.UnmarshalText([]byte(cli.Log.Level)))

	format := logging.FormatConsole
	if cli.Log.Format == "json" {
		format = logging.FormatJSON
	}

	l := logging.Setup(os.Stderr, level, format)

	if err := run(context.Background(), l); err != nil {
		l.Error("aggqlc failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, l *slog.Logger) error {
	resolver, err := loadResolver(cli.Schema)
	if err != nil {
		return err
	}

	astData, err := os.ReadFile(cli.AST)
	if err != nil {
		return err
	}

	query, err := mql.DecodeQuery(astData)
	if err != nil {
		return err
	}

	if cli.Limit > 0 {
		query.Limit = pointer.ToInt(cli.Limit)
	}

	result, err := mql.Compile(query, mql.CompileOptions{Resolver: resolver})
	if err != nil {
		return err
	}

	if !cli.Execute {
		return printPipeline(result)
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cli.MongoURI))
	if err != nil {
		return err
	}

	defer client.Disconnect(ctx) //nolint:errcheck // best effort on shutdown

	db := client.Database(resolveDatabaseName(result.Collection))

	rows, err := driver.New(db, l).Run(ctx, result)
	if err != nil {
		return err
	}

	decoded, err := mql.PostProcess(result, rows)
	if err != nil {
		return err
	}

	return json.NewEncoder(os.Stdout).Encode(decoded)
}

func loadResolver(path string) (*mql.StaticResolver, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var rows []schemaField
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, err
	}

	fields := make([]*mql.Field, len(rows))
	for i, r := range rows {
		fields[i] = &mql.Field{ID: r.ID, Name: r.Name, ParentID: r.ParentID, BaseType: r.BaseType, SpecialType: r.SpecialType}
	}

	return mql.NewStaticResolver(fields), nil
}

func printPipeline(result *mql.Result) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(result.Pipeline)
}

// resolveDatabaseName is a placeholder until --mongo-uri carries its own
// database segment; aggqlc currently assumes a fixed database name and uses
// the collection name standalone.
func resolveDatabaseName(_ string) string {
	return "aggql"
}
