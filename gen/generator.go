// Package gen produces synthetic CSV batches for exercising the pipeline.
//
// Generation is deterministic for a given seed: file N always contains the
// same rows, so test fixtures and load experiments are reproducible.
package gen

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/hopper/iox"
)

// Config configures a generation run.
type Config struct {
	// OutputDir receives the generated CSV files and the manifest.
	OutputDir string
	// Files is the number of CSV files to produce.
	Files int
	// RowsPerFile is the row count per file.
	RowsPerFile int
	// BatchSize is the number of rows buffered per write.
	BatchSize int
	// Seed makes output deterministic; each file derives its own stream
	// from Seed plus a per-file offset.
	Seed int64
}

func (c Config) withDefaults() Config {
	if c.Files <= 0 {
		c.Files = 15
	}
	if c.RowsPerFile <= 0 {
		c.RowsPerFile = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 2000
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	return c
}

// Manifest describes a completed generation run. Written alongside the
// data as _metadata.json.
type Manifest struct {
	GeneratedAt time.Time  `json:"generated_at"`
	TotalFiles  int        `json:"total_files"`
	RowsPerFile int        `json:"rows_per_file"`
	TotalRows   int        `json:"total_rows"`
	Columns     []string   `json:"columns"`
	Files       []FileInfo `json:"files"`
}

// FileInfo describes one generated file.
type FileInfo struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	SizeBytes int64  `json:"size_bytes"`
}

var columns = []string{
	"user_id", "first_name", "last_name", "email",
	"age", "salary", "department", "city",
	"is_active", "score", "credit_score", "account_balance",
}

var (
	firstNames  = []string{"Ana", "Boris", "Clara", "Dmitri", "Elena", "Felix", "Greta", "Hugo", "Irina", "Jonas", "Katya", "Lev", "Mara", "Nikolai", "Olga", "Pavel"}
	lastNames   = []string{"Ivanov", "Petrova", "Smirnov", "Kuznetsova", "Popov", "Sokolova", "Lebedev", "Kozlova", "Novikov", "Morozova", "Volkov", "Fedorova"}
	departments = []string{"IT", "Sales", "HR", "Marketing", "Finance", "Operations", "Support", "R&D"}
	cities      = []string{"Moscow", "Berlin", "Warsaw", "Riga", "Tallinn", "Vilnius", "Prague", "Vienna"}
)

// Generator produces synthetic CSV files.
type Generator struct {
	cfg Config
}

// New creates a generator.
func New(cfg Config) *Generator {
	return &Generator{cfg: cfg.withDefaults()}
}

// Run generates all files and the manifest, returning the manifest.
func (g *Generator) Run() (*Manifest, error) {
	if err := os.MkdirAll(g.cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	stamp := time.Now().Format("20060102_150405")
	manifest := &Manifest{
		GeneratedAt: time.Now(),
		TotalFiles:  g.cfg.Files,
		RowsPerFile: g.cfg.RowsPerFile,
		TotalRows:   g.cfg.Files * g.cfg.RowsPerFile,
		Columns:     columns,
	}

	for i := 1; i <= g.cfg.Files; i++ {
		name := fmt.Sprintf("data_batch_%03d_%s.csv", i, stamp)
		path := filepath.Join(g.cfg.OutputDir, name)

		// Large per-file offset keeps the streams well separated.
		if err := g.generateFile(path, g.cfg.Seed+int64(i)*10000); err != nil {
			return nil, fmt.Errorf("generate %s: %w", name, err)
		}

		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		manifest.Files = append(manifest.Files, FileInfo{
			Name:      name,
			Path:      path,
			SizeBytes: info.Size(),
		})
	}

	if err := g.writeManifest(manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// generateFile writes one CSV file in batches.
func (g *Generator) generateFile(path string, seed int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(seed))
	w := csv.NewWriter(f)

	if err := w.Write(columns); err != nil {
		iox.DiscardClose(f)
		return err
	}

	for written := 0; written < g.cfg.RowsPerFile; written += g.cfg.BatchSize {
		batch := g.cfg.BatchSize
		if remaining := g.cfg.RowsPerFile - written; remaining < batch {
			batch = remaining
		}
		for i := 0; i < batch; i++ {
			if err := w.Write(row(rng)); err != nil {
				iox.DiscardClose(f)
				return err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			iox.DiscardClose(f)
			return err
		}
	}

	return f.Close()
}

// row generates one synthetic record.
func row(rng *rand.Rand) []string {
	first := pick(rng, firstNames)
	last := pick(rng, lastNames)
	return []string{
		uuid.Must(uuid.NewRandomFromReader(rng)).String(),
		first,
		last,
		fmt.Sprintf("%s.%s%d@example.com", first, last, rng.Intn(1000)),
		strconv.Itoa(18 + rng.Intn(57)), // ages 18..74
		fmt.Sprintf("%.2f", 60000+rng.NormFloat64()*20000),
		pick(rng, departments),
		pick(rng, cities),
		strconv.FormatBool(rng.Float64() < 0.85),
		fmt.Sprintf("%.2f", rng.Float64()*100),
		strconv.Itoa(300 + rng.Intn(551)),
		fmt.Sprintf("%.2f", -5000+rng.Float64()*55000),
	}
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

func (g *Generator) writeManifest(m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(g.cfg.OutputDir, "_metadata.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
