package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/brojonat/reclaim/client"
	"github.com/bytedance/sonic"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// newClient builds an API client from the global flags.
func newClient(c *cli.Context) *client.Client {
	level := slog.LevelError // Only errors to stderr
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return client.NewClient(c.String("server-url"), nil, logger)
}

// jsonOutput reports whether results should be printed as JSON.
func jsonOutput(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// printJSON writes v as indented JSON, or the results of the --jq expression
// evaluated against it, one per line.
func printJSON(c *cli.Context, v interface{}) error {
	w := c.App.Writer
	filter := c.String("jq")
	if filter == "" {
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}

	code, err := compileJQ(filter)
	if err != nil {
		return err
	}

	// gojq operates on plain JSON values, not structs.
	data, err := sonic.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	var doc interface{}
	if err := sonic.ConfigStd.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to unmarshal output: %w", err)
	}

	return runJQ(w, code, doc)
}

func compileJQ(filter string) (*gojq.Code, error) {
	query, err := gojq.Parse(filter)
	if err != nil {
		return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}
	return code, nil
}

func runJQ(w io.Writer, code *gojq.Code, doc interface{}) error {
	iter := code.Run(doc)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := v.(error); isErr {
			return fmt.Errorf("jq filter error: %w", err)
		}
		if s, isString := v.(string); isString {
			fmt.Fprintln(w, s)
			continue
		}
		data, err := sonic.ConfigStd.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal jq result: %w", err)
		}
		fmt.Fprintln(w, string(data))
	}
}
