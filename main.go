package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/parqplot/parqplot/config"
	"github.com/parqplot/parqplot/core"
	"github.com/parqplot/parqplot/querier"
)

func main() {
	configFlag := flag.String("config", "", "Path to a YAML config file")
	describeFlag := flag.String("describe", "", "Print the schema of a data file as JSON and exit")
	flag.Parse()

	if err := config.InitConfig(*configFlag); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	core.InitLogging(config.Config.LogLevel)

	ctx := core.WithDefaultLogger(context.Background(), "main")

	engine := querier.NewDuckEngine(config.Config.DuckDB.Threads, config.Config.DuckDB.MemoryLimit)
	if err := engine.Initialize(); err != nil {
		core.Errorf(ctx, "Failed to initialize query engine: %v", err)
		os.Exit(1)
	}

	server := querier.NewServer(engine,
		config.Config.DataDir,
		config.Config.UIDir,
		config.Config.DisableUI,
		config.Config.Query.DefaultMaxPoints)
	defer server.Close()

	// If describe flag is provided, dump the schema and exit
	if *describeFlag != "" {
		file, err := server.Catalog.Resolve(*describeFlag)
		if err != nil {
			log.Fatalf("Describe error: %v", err)
		}
		columns, err := server.Schema.Describe(ctx, file)
		if err != nil {
			log.Fatalf("Describe error: %v", err)
		}
		jsonData, err := json.MarshalIndent(columns, "", "  ")
		if err != nil {
			log.Fatalf("Failed to marshal schema: %v", err)
		}
		fmt.Println(string(jsonData))
		return
	}

	addr := fmt.Sprintf("%s:%d", config.Config.Host, config.Config.Port)
	core.Infof(ctx, "parqplot server running at http://%s", addr)
	if err := http.ListenAndServe(addr, server.Routes()); err != nil {
		core.Errorf(ctx, "Failed to start server: %v", err)
		os.Exit(1)
	}
}
