// Command edgevec is a CLI front-end for the embeddable vector search
// engine, mirroring sqvect's cmd/sqvect in structure (a cobra root
// command with global --db/--dimensions/--verbose flags and one
// subcommand per store operation), reworked onto edgevec's file-snapshot
// persistence model instead of sqvect's always-open SQLite handle:
// every subcommand here opens the snapshot file, performs one operation,
// and (for mutating subcommands) re-writes the snapshot before exiting.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	edgevec "github.com/matte1782/edgevec-sub002"
	"github.com/matte1782/edgevec-sub002/pkg/filter"
	"github.com/matte1782/edgevec-sub002/pkg/metric"
)

var (
	dbPath  string
	dim     int
	metricF string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "edgevec",
	Short: "CLI tool for the embeddable vector search engine",
	Long:  `A command-line interface for managing an edgevec snapshot file.`,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new, empty index snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dim <= 0 {
			return fmt.Errorf("--dimensions is required and must be positive")
		}
		cfg := edgevec.DefaultConfig(dim)
		cfg.Metric = parseMetric(metricF)

		idx, err := edgevec.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
		defer idx.Close()

		if err := saveSnapshot(idx, dbPath); err != nil {
			return err
		}
		fmt.Printf("Index initialized at %s with %d dimensions\n", dbPath, dim)
		return nil
	},
}

var insertCmd = &cobra.Command{
	Use:   "insert",
	Short: "Insert a vector, optionally with metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		metadataStr, _ := cmd.Flags().GetString("metadata")
		if vectorStr == "" {
			return fmt.Errorf("--vector is required")
		}

		vec, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		meta, err := parseMetadata(metadataStr)
		if err != nil {
			return err
		}

		idx, err := loadSnapshot()
		if err != nil {
			return err
		}
		defer idx.Close()

		id, err := idx.Insert(vec, meta)
		if err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}

		if err := saveSnapshot(idx, dbPath); err != nil {
			return err
		}
		fmt.Printf("Inserted vector id %d\n", id)
		return nil
	},
}

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search for nearest vectors, optionally with a metadata filter",
	RunE: func(cmd *cobra.Command, args []string) error {
		vectorStr, _ := cmd.Flags().GetString("vector")
		k, _ := cmd.Flags().GetInt("top-k")
		filterStr, _ := cmd.Flags().GetString("filter")
		outputJSON, _ := cmd.Flags().GetBool("json")

		if vectorStr == "" {
			return fmt.Errorf("--vector is required")
		}
		query, err := parseVector(vectorStr)
		if err != nil {
			return err
		}

		var expr filter.Expr
		if filterStr != "" {
			expr, err = filter.Parse(filterStr)
			if err != nil {
				return fmt.Errorf("invalid filter: %w", err)
			}
		}

		idx, err := loadSnapshot()
		if err != nil {
			return err
		}
		defer idx.Close()

		results, err := idx.Search(query, k, expr)
		if err != nil {
			return fmt.Errorf("search failed: %w", err)
		}

		if outputJSON {
			data, _ := json.MarshalIndent(results, "", "  ")
			fmt.Println(string(data))
			return nil
		}
		fmt.Printf("Found %d results:\n", len(results))
		for i, r := range results {
			fmt.Printf("%d. id=%d distance=%.6f\n", i+1, r.ID, r.Distance)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Soft-delete a vector by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid id: %w", err)
		}

		idx, err := loadSnapshot()
		if err != nil {
			return err
		}
		defer idx.Close()

		if err := idx.SoftDelete(edgevec.VectorId(id)); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}
		if err := saveSnapshot(idx, dbPath); err != nil {
			return err
		}
		fmt.Printf("Vector %d marked deleted\n", id)
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <out-file>",
	Short: "Write the current index to a new snapshot file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := loadSnapshot()
		if err != nil {
			return err
		}
		defer idx.Close()
		if err := saveSnapshot(idx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Snapshot written to %s\n", args[0])
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load <in-file>",
	Short: "Validate that a snapshot file loads",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open snapshot: %w", err)
		}
		defer f.Close()

		cfg := edgevec.DefaultConfig(dim)
		cfg.Metric = parseMetric(metricF)
		idx, err := edgevec.Load(f, cfg)
		if err != nil {
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		defer idx.Close()

		fmt.Printf("Snapshot %s loaded successfully\n", args[0])
		return nil
	},
}

func parseVector(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, fmt.Errorf("invalid vector format: %w", err)
		}
		vec = append(vec, float32(val))
	}
	return vec, nil
}

func parseMetadata(s string) (map[string]edgevec.Value, error) {
	if s == "" {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("invalid metadata JSON: %w", err)
	}
	out := make(map[string]edgevec.Value, len(raw))
	for k, v := range raw {
		out[k] = jsonToValue(v)
	}
	return out, nil
}

func jsonToValue(v any) edgevec.Value {
	switch t := v.(type) {
	case string:
		return edgevec.String(t)
	case float64:
		return edgevec.Float(t)
	case bool:
		return edgevec.Boolean(t)
	case nil:
		return edgevec.Null()
	case []any:
		vals := make([]edgevec.Value, len(t))
		for i, e := range t {
			vals[i] = jsonToValue(e)
		}
		return edgevec.Array(vals)
	default:
		return edgevec.Null()
	}
}

func parseMetric(s string) metric.Kind {
	if strings.EqualFold(s, "dot") {
		return metric.Dot
	}
	return metric.L2Squared
}

func loadSnapshot() (*edgevec.Index, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path not specified")
	}
	f, err := os.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot %s: %w", dbPath, err)
	}
	defer f.Close()

	cfg := edgevec.DefaultConfig(dim)
	cfg.Metric = parseMetric(metricF)
	idx, err := edgevec.Load(f, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return idx, nil
}

func saveSnapshot(idx *edgevec.Index, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer f.Close()
	if err := idx.Snapshot(f); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "vectors.edgevec", "Snapshot file path")
	rootCmd.PersistentFlags().IntVarP(&dim, "dimensions", "n", 0, "Vector dimensions")
	rootCmd.PersistentFlags().StringVarP(&metricF, "metric", "m", "l2", "Distance metric (l2|dot)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	insertCmd.Flags().String("vector", "", "Vector values (comma-separated)")
	insertCmd.Flags().String("metadata", "", "Metadata as JSON object")
	insertCmd.MarkFlagRequired("vector")

	searchCmd.Flags().String("vector", "", "Query vector (comma-separated)")
	searchCmd.Flags().Int("top-k", 10, "Number of results")
	searchCmd.Flags().String("filter", "", "Metadata filter expression")
	searchCmd.Flags().Bool("json", false, "Output as JSON")
	searchCmd.MarkFlagRequired("vector")

	rootCmd.AddCommand(initCmd, insertCmd, searchCmd, deleteCmd, snapshotCmd, loadCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
