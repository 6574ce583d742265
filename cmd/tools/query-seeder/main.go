// cmd/tools/query-seeder/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"crowd-monitor/internal/common/config"
	"crowd-monitor/internal/common/database"
	apihttp "crowd-monitor/internal/common/http"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/models"
	searchposts "crowd-monitor/internal/workers/data-access/search-posts"
	"crowd-monitor/pkg/querydefs"
)

func main() {
	addCmd := flag.NewFlagSet("add", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	seedCmd := flag.NewFlagSet("seed", flag.ExitOnError)
	indexCmd := flag.NewFlagSet("index", flag.ExitOnError)

	// Add command flags
	addPath := addCmd.String("path", "configs/queries.json", "Path to definitions file")
	name := addCmd.String("name", "", "Query name (e.g., Toronto storms)")
	location := addCmd.String("location", "", "Center and radius (e.g., 43.6532,-79.3832,10km)")
	start := addCmd.String("start", "", "Start date YYYY-MM-DD")
	end := addCmd.String("end", "", "End date YYYY-MM-DD")
	keywords := addCmd.String("keywords", "", "Comma separated keywords")
	frequency := addCmd.Float64("frequency", 5, "Fetch interval in minutes")
	maxTweets := addCmd.Int("maxTweets", 100, "Posts fetched per tick")

	// Validate command flags
	validatePath := validateCmd.String("path", "configs/queries.json", "Path to definitions file")
	validateTZ := validateCmd.String("timezone", "America/Toronto", "Zone the dates are read in")

	// Seed command flags
	seedPath := seedCmd.String("path", "configs/queries.json", "Path to definitions file")
	serverURL := seedCmd.String("server", "http://localhost:8080", "Base URL of a running crowd-monitor")
	seedTimeout := seedCmd.Duration("timeout", 10*time.Second, "Per request timeout")

	// Index command flags
	indexPath := indexCmd.String("path", "", "JSON array of raw posts to load")
	esURL := indexCmd.String("es", "http://localhost:9200", "Elasticsearch URL")
	esIndex := indexCmd.String("index", "posts", "Post index")
	center := indexCmd.String("center", "", "Fallback location lat,lon,radius for posts without coordinates")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		addCmd.Parse(os.Args[2:])
		if *name == "" || *location == "" || *start == "" || *end == "" || *keywords == "" {
			fmt.Println("Error: name, location, start, end, and keywords are required for add.")
			addCmd.Usage()
			os.Exit(1)
		}
		draft := models.QueryDraft{
			Name:      *name,
			Location:  *location,
			StartDate: *start,
			EndDate:   *end,
			Keywords:  splitKeywords(*keywords),
			Frequency: *frequency,
			MaxTweets: *maxTweets,
		}
		if err := addDraft(*addPath, draft); err != nil {
			fmt.Printf("Error adding query: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added query: %s\n", *name)

	case "validate":
		validateCmd.Parse(os.Args[2:])
		if err := validateFile(*validatePath, *validateTZ); err != nil {
			fmt.Printf("Definitions validation failed:\n%v\n", err)
			os.Exit(1)
		}

	case "seed":
		seedCmd.Parse(os.Args[2:])
		if err := seedFile(*seedPath, *serverURL, *seedTimeout); err != nil {
			fmt.Printf("Seeding failed: %v\n", err)
			os.Exit(1)
		}

	case "index":
		indexCmd.Parse(os.Args[2:])
		if *indexPath == "" || *center == "" {
			fmt.Println("Error: path and center are required for index.")
			indexCmd.Usage()
			os.Exit(1)
		}
		if err := indexPosts(*indexPath, *esURL, *esIndex, *center); err != nil {
			fmt.Printf("Indexing failed: %v\n", err)
			os.Exit(1)
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func splitKeywords(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func addDraft(path string, d models.QueryDraft) error {
	defs, err := querydefs.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to load definitions: %w", err)
		}
		defs = &querydefs.Definitions{Version: "1.0.0"}
	}
	if err := defs.Add(d, time.Now()); err != nil {
		return err
	}
	if err := querydefs.Validate(defs, time.UTC); err != nil {
		return err
	}
	return querydefs.Save(defs, path)
}

func validateFile(path, timezone string) error {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	defs, err := querydefs.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}
	if err := querydefs.Validate(defs, loc); err != nil {
		return err
	}
	fmt.Printf("Definitions validation passed. Found %d queries.\n", len(defs.Queries))
	return nil
}

func seedFile(path, serverURL string, timeout time.Duration) error {
	defs, err := querydefs.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load definitions: %w", err)
	}
	if err := querydefs.Validate(defs, time.UTC); err != nil {
		return err
	}

	client := apihttp.NewClient(strings.TrimRight(serverURL, "/"), timeout)
	failed := 0
	for _, res := range querydefs.Seed(context.Background(), client, defs) {
		if res.Err != nil {
			failed++
			fmt.Printf("  FAIL %s: %v\n", res.Name, res.Err)
			continue
		}
		fmt.Printf("  OK   %s -> %s\n", res.Name, res.ID)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d queries failed", failed, len(defs.Queries))
	}
	return nil
}

func indexPosts(path, esURL, index, center string) error {
	loc, err := models.ParseLocation(center)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var posts []models.RawPost
	if err := json.Unmarshal(data, &posts); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	esCfg := config.ElasticsearchConfig{Addresses: []string{esURL}, Index: index}
	es, err := database.NewElasticsearch(esCfg, nil)
	if err != nil {
		return err
	}
	source := searchposts.NewSource(searchposts.ConfigFrom(esCfg), es.Client, logger.NewStructured("info", "console", "stdout"))

	ctx := context.Background()
	if err := source.EnsureIndex(ctx); err != nil {
		return err
	}
	fallback := models.Coordinates{Lat: loc.Lat, Lon: loc.Lon}
	for _, p := range posts {
		at := fallback
		if p.Coordinates != nil {
			at = *p.Coordinates
		}
		if err := source.IndexPost(ctx, p, at); err != nil {
			return err
		}
	}
	fmt.Printf("Indexed %d posts into %s.\n", len(posts), index)
	return nil
}

func help() {
	fmt.Print(`
Usage: query-seeder <command> [flags]

Commands:
  add       Add a query draft to a definitions file
  validate  Validate a definitions file
  seed      Create every query in a definitions file on a running service
  index     Load raw posts into the Elasticsearch post index
  help      Show this help message

Examples:
  query-seeder add -name "Toronto storms" -location 43.6532,-79.3832,10km -start 2024-06-01 -end 2024-06-30 -keywords "storm,tornado warning"
  query-seeder validate -path configs/queries.json
  query-seeder seed -path configs/queries.json -server http://localhost:8080
  query-seeder index -path posts.json -es http://localhost:9200 -center 43.6532,-79.3832,10km

Use 'query-seeder <command> -h' for more information about a command.
` + "\n")
}
