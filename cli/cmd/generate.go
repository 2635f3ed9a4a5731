package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/hopper/gen"
)

// GenerateCommand returns the generate command: synthetic CSV production
// for exercising the pipeline locally.
func GenerateCommand() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Generate synthetic CSV files for testing the pipeline",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output folder for generated files",
				Value:   "data/generated",
			},
			&cli.IntFlag{
				Name:  "files",
				Usage: "Number of CSV files to generate",
				Value: 15,
			},
			&cli.IntFlag{
				Name:  "rows",
				Usage: "Rows per file",
				Value: 10000,
			},
			&cli.Int64Flag{
				Name:  "seed",
				Usage: "Random seed (same seed reproduces the same data)",
				Value: 42,
			},
		},
		Action: generateAction,
	}
}

func generateAction(c *cli.Context) error {
	g := gen.New(gen.Config{
		OutputDir:   c.String("output"),
		Files:       c.Int("files"),
		RowsPerFile: c.Int("rows"),
		Seed:        c.Int64("seed"),
	})

	manifest, err := g.Run()
	if err != nil {
		return cli.Exit(fmt.Sprintf("generation failed: %v", err), 1)
	}

	var totalBytes int64
	for _, f := range manifest.Files {
		totalBytes += f.SizeBytes
	}
	fmt.Printf("generated %d files, %d rows, %.1f MB in %s\n",
		manifest.TotalFiles,
		manifest.TotalRows,
		float64(totalBytes)/(1024*1024),
		c.String("output"),
	)
	return nil
}
