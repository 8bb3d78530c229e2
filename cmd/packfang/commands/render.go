package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/packfang/pkg/alg/mapx"
	"github.com/Sumatoshi-tech/packfang/pkg/pack"
	"github.com/Sumatoshi-tech/packfang/pkg/pack/count"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
)

// ErrUnknownFormat is returned when --format names no known report format.
var ErrUnknownFormat = errors.New("unknown report format")

// traversalReport is the machine-readable shape of one verification run.
type traversalReport struct {
	IndexChecksum string `yaml:"index_checksum"`
	SafetyCheck   string `yaml:"safety_check"`

	Commits      uint32 `yaml:"commits"`
	Trees        uint32 `yaml:"trees"`
	Blobs        uint32 `yaml:"blobs"`
	Tags         uint32 `yaml:"tags"`
	TotalObjects uint32 `yaml:"total_objects"`

	ObjectsPerChainLength map[uint32]uint32 `yaml:"objects_per_chain_length"`
	AverageChainLength    float64           `yaml:"average_chain_length"`

	TotalObjectSize       uint64 `yaml:"total_object_size"`
	TotalCompressedSize   uint64 `yaml:"total_compressed_size"`
	TotalDecompressedSize uint64 `yaml:"total_decompressed_size"`
	PackSize              uint64 `yaml:"pack_size"`
}

// renderTraversal writes the verification statistics in the selected format.
func renderTraversal(w io.Writer, format string, id string, check pack.SafetyCheck, outcome *pack.TraversalOutcome) error {
	report := traversalReport{
		IndexChecksum:         id,
		SafetyCheck:           check.String(),
		Commits:               outcome.NumCommits,
		Trees:                 outcome.NumTrees,
		Blobs:                 outcome.NumBlobs,
		Tags:                  outcome.NumTags,
		TotalObjects:          outcome.TotalObjects(),
		ObjectsPerChainLength: outcome.ObjectsPerChainLength,
		AverageChainLength:    outcome.AverageChainLength(),
		TotalObjectSize:       outcome.TotalObjectSize,
		TotalCompressedSize:   outcome.TotalCompressedSize,
		TotalDecompressedSize: outcome.TotalDecompressedSize,
		PackSize:              outcome.PackSize,
	}

	switch format {
	case formatYAML:
		return writeYAML(w, report)
	case formatTable, "":
		return writeTraversalTable(w, outcome)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeTraversalTable(w io.Writer, outcome *pack.TraversalOutcome) error {
	tbl := newStatsTable()

	tbl.AppendRows([]table.Row{
		{"commits", outcome.NumCommits},
		{"trees", outcome.NumTrees},
		{"blobs", outcome.NumBlobs},
		{"tags", outcome.NumTags},
	})

	for _, length := range mapx.SortedKeys(outcome.ObjectsPerChainLength) {
		tbl.AppendRow(table.Row{
			fmt.Sprintf("objects at chain length %d", length),
			outcome.ObjectsPerChainLength[length],
		})
	}

	tbl.AppendRows([]table.Row{
		{"average chain length", fmt.Sprintf("%.2f", outcome.AverageChainLength())},
		{"total object size", humanize.IBytes(outcome.TotalObjectSize)},
		{"average object size", humanize.IBytes(outcome.AverageObjectSize())},
		{"total compressed size", humanize.IBytes(outcome.TotalCompressedSize)},
		{"total decompressed size", humanize.IBytes(outcome.TotalDecompressedSize)},
		{"pack size", humanize.IBytes(outcome.PackSize)},
	})

	tbl.AppendFooter(table.Row{"total objects", outcome.TotalObjects()})

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}

// countReport is the machine-readable shape of one counting run. Counts are
// present only when listing was requested.
type countReport struct {
	Policy string   `yaml:"policy"`
	Counts []string `yaml:"counts,omitempty"`

	InputObjects    uint64 `yaml:"input_objects"`
	ExpandedObjects uint64 `yaml:"expanded_objects"`
	DecodedObjects  uint64 `yaml:"decoded_objects"`
	TotalObjects    uint64 `yaml:"total_objects"`
}

// renderCounts writes the counting result in the selected format. When list
// is set, each counted id is included.
func renderCounts(w io.Writer, format string, policy count.ObjectExpansion, counts []count.Count, outcome count.Outcome, list bool) error {
	switch format {
	case formatYAML:
		report := countReport{
			Policy:          policy.String(),
			InputObjects:    outcome.InputObjects,
			ExpandedObjects: outcome.ExpandedObjects,
			DecodedObjects:  outcome.DecodedObjects,
			TotalObjects:    outcome.TotalObjects,
		}

		if list {
			report.Counts = make([]string, 0, len(counts))
			for _, c := range counts {
				report.Counts = append(report.Counts, c.ID.String())
			}
		}

		return writeYAML(w, report)
	case formatTable, "":
		if list {
			for _, c := range counts {
				if _, err := fmt.Fprintln(w, c.ID); err != nil {
					return err
				}
			}
		}

		return writeCountTable(w, policy, outcome)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func writeCountTable(w io.Writer, policy count.ObjectExpansion, outcome count.Outcome) error {
	tbl := newStatsTable()

	tbl.AppendRows([]table.Row{
		{"expansion policy", policy.String()},
		{"input objects", outcome.InputObjects},
		{"expanded objects", outcome.ExpandedObjects},
		{"decoded objects", outcome.DecodedObjects},
	})

	tbl.AppendFooter(table.Row{"total objects", outcome.TotalObjects})

	_, err := fmt.Fprintln(w, tbl.Render())

	return err
}

// newStatsTable applies the house table style: light and borderless.
func newStatsTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	return tbl
}

func writeYAML(w io.Writer, doc any) error {
	enc := yaml.NewEncoder(w)

	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	return enc.Close()
}
