// Command mongolite-shell is an interactive shell over a local
// mongolite database. Commands take JSON payloads:
//
//	insert users {"name": "ada", "age": 36}
//	find users {"age": {"$gte": 18}}
//	update users {"name": "ada"} {"$inc": {"age": 1}}
//	agg users [{"$group": {"_id": "$city", "n": {"$sum": 1}}}]
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/mongolite/mongolite"
	"github.com/mongolite/mongolite/pkg/document"
	"github.com/peterh/liner"
)

const prompt = "> "

func main() {
	dataPath := flag.String("data", "./mongolite-data", "database directory (badger) or file (sqlite)")
	driver := flag.String("driver", "badger", "storage driver: badger or sqlite")
	flag.Parse()

	var db *mongolite.Database
	var err error
	switch *driver {
	case "badger":
		db, err = mongolite.Open(*dataPath)
	case "sqlite":
		db, err = mongolite.OpenSQLite(*dataPath)
	default:
		log.Fatalf("[Shell] Unknown driver: %s", *driver)
	}
	if err != nil {
		log.Fatalf("[Shell] Failed to open database: %v", err)
	}
	defer db.Close()

	fmt.Printf("mongolite shell (%s driver, %s)\n", *driver, *dataPath)
	fmt.Println("Type 'help' for commands, 'exit' to quit.")

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := filepath.Join(os.TempDir(), ".mongolite_history")
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		input, err := line.Prompt(prompt)
		if err == liner.ErrPromptAborted {
			continue
		}
		if err == io.EOF {
			fmt.Println()
			return
		}
		if err != nil {
			log.Printf("[Shell] Read error: %v", err)
			return
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		line.AppendHistory(input)

		if input == "exit" || input == "quit" {
			return
		}
		if err := execute(db, input); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
}

func execute(db *mongolite.Database, input string) error {
	parts := strings.SplitN(input, " ", 3)
	cmd := parts[0]

	switch cmd {
	case "help":
		printHelp()
		return nil
	case "collections":
		names, err := db.ListCollectionNames()
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	if len(parts) < 2 {
		return fmt.Errorf("usage: %s <collection> [payload]", cmd)
	}
	coll, err := db.Collection(parts[1])
	if err != nil {
		return err
	}
	payload := ""
	if len(parts) == 3 {
		payload = parts[2]
	}

	switch cmd {
	case "insert":
		doc, err := document.Parse([]byte(payload))
		if err != nil {
			return err
		}
		res, err := coll.InsertOne(doc)
		if err != nil {
			return err
		}
		fmt.Printf("inserted %s\n", res.InsertedID)

	case "find", "findone":
		filter, err := parseOptional(payload)
		if err != nil {
			return err
		}
		if cmd == "findone" {
			doc, err := coll.FindOne(filter, mongolite.FindOptions{})
			if err != nil {
				return err
			}
			return printDoc(doc)
		}
		cur, err := coll.Find(filter, mongolite.FindOptions{})
		if err != nil {
			return err
		}
		docs, err := cur.All()
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := printDoc(d); err != nil {
				return err
			}
		}
		fmt.Printf("(%d documents)\n", len(docs))

	case "count":
		filter, err := parseOptional(payload)
		if err != nil {
			return err
		}
		n, err := coll.CountDocuments(filter)
		if err != nil {
			return err
		}
		fmt.Println(n)

	case "update":
		filter, upd, err := parsePair(payload)
		if err != nil {
			return err
		}
		res, err := coll.UpdateMany(filter, upd)
		if err != nil {
			return err
		}
		fmt.Printf("matched %d, modified %d\n", res.MatchedCount, res.ModifiedCount)

	case "delete":
		filter, err := parseOptional(payload)
		if err != nil {
			return err
		}
		res, err := coll.DeleteMany(filter)
		if err != nil {
			return err
		}
		fmt.Printf("deleted %d\n", res.DeletedCount)

	case "agg":
		var raw []json.RawMessage
		if err := json.Unmarshal([]byte(payload), &raw); err != nil {
			return fmt.Errorf("pipeline must be a JSON array: %w", err)
		}
		stages := make([]*document.Document, len(raw))
		for i, r := range raw {
			stage, err := document.Parse(r)
			if err != nil {
				return err
			}
			stages[i] = stage
		}
		docs, err := coll.Aggregate(stages)
		if err != nil {
			return err
		}
		for _, d := range docs {
			if err := printDoc(d); err != nil {
				return err
			}
		}
		fmt.Printf("(%d documents)\n", len(docs))

	default:
		return fmt.Errorf("unknown command %q (try 'help')", cmd)
	}
	return nil
}

// parseOptional treats an empty payload as a match-everything filter.
func parseOptional(payload string) (*document.Document, error) {
	if strings.TrimSpace(payload) == "" {
		return document.New(), nil
	}
	return document.Parse([]byte(payload))
}

// parsePair reads two consecutive JSON objects from the payload.
func parsePair(payload string) (*document.Document, *document.Document, error) {
	dec := json.NewDecoder(strings.NewReader(payload))
	var first, second json.RawMessage
	if err := dec.Decode(&first); err != nil {
		return nil, nil, fmt.Errorf("expected two JSON objects: %w", err)
	}
	if err := dec.Decode(&second); err != nil {
		return nil, nil, fmt.Errorf("expected two JSON objects: %w", err)
	}
	a, err := document.Parse(first)
	if err != nil {
		return nil, nil, err
	}
	b, err := document.Parse(second)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func printDoc(d *document.Document) error {
	data, err := d.MarshalJSON()
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printHelp() {
	fmt.Print(`commands:
  collections                          list collections
  insert <coll> <doc>                  insert one document
  find <coll> [filter]                 list matching documents
  findone <coll> [filter]              first matching document
  count <coll> [filter]                count matching documents
  update <coll> <filter> <update>      update all matches
  delete <coll> [filter]               delete all matches
  agg <coll> <pipeline>                run an aggregation pipeline
  help, exit
`)
}
