package spreadsheet

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"math/rand"
	"os"

	"github.com/sheetviz/backend/internal/models"
)

// SampleColumns are the columns produced by SimulatedParser.
var SampleColumns = []string{"Date", "Product", "Sales", "Revenue", "Region", "Category"}

const sampleRowCount = 100

var (
	sampleRegions    = []string{"North", "South", "East", "West"}
	sampleCategories = []string{"Electronics", "Clothing", "Books", "Home"}
)

// SimulatedParser returns a sales sample sheet for any file. Values are
// seeded from the file contents so the same workbook yields the same rows.
type SimulatedParser struct{}

func NewSimulatedParser() *SimulatedParser { return &SimulatedParser{} }

func (p *SimulatedParser) Name() string { return "simulated" }

// CanParse accepts every file; format checks happen before parsing.
func (p *SimulatedParser) CanParse(filename string) bool { return true }

func (p *SimulatedParser) Parse(ctx context.Context, path string) (*models.Sheet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed, err := contentSeed(path)
	if err != nil {
		return nil, newParseError(path, "cannot read file", err)
	}
	rng := rand.New(rand.NewSource(seed))

	rows := make([]models.Row, sampleRowCount)
	for i := range rows {
		rows[i] = models.Row{
			"Date":     fmt.Sprintf("2024-01-%02d", i%30+1),
			"Product":  fmt.Sprintf("Product %c", 'A'+rune(i%5)),
			"Sales":    float64(rng.Intn(1000) + 100),
			"Revenue":  float64(rng.Intn(50000) + 10000),
			"Region":   sampleRegions[i%4],
			"Category": sampleCategories[i%4],
		}
	}
	return &models.Sheet{
		Name:    "Sheet1",
		Columns: append([]string(nil), SampleColumns...),
		Rows:    rows,
	}, nil
}

func contentSeed(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	h := fnv.New64a()
	if _, err := io.Copy(h, f); err != nil {
		return 0, err
	}
	return int64(h.Sum64()), nil
}
