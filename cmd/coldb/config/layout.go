package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// LayoutFileName is the static per-column physical layout file, written
// once at creation time and never merged from multiple sources.
const LayoutFileName = "column.toml"

// Layout is the fixed physical shape of a column's tables, recorded
// alongside the column's data files so a later open can confirm it was
// not opened against a layout it wasn't created with.
type Layout struct {
	TierCapacities  [15]uint32 `toml:"tier_capacities"`
	EntriesPerChunk uint8      `toml:"entries_per_chunk"`
}

// DefaultLayout mirrors pkg/column/coltypes.TierCapacities and the
// index table's fixed chunk fan-out.
func DefaultLayout() Layout {
	return Layout{
		TierCapacities: [15]uint32{
			96, 128, 192, 256, 320, 512, 768, 1024,
			1536, 2048, 3072, 4096, 8192, 16384, 32768,
		},
		EntriesPerChunk: 8,
	}
}

// WriteLayout writes layout to path as TOML, failing if the file already
// exists — layout is set once at column creation and never rewritten.
func WriteLayout(path string, layout Layout) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return fmt.Errorf("config: create layout %s: %w", path, err)
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(layout)
}

// ReadLayout reads a previously written layout file.
func ReadLayout(path string) (Layout, error) {
	var layout Layout

	_, err := toml.DecodeFile(path, &layout)
	if err != nil {
		return Layout{}, fmt.Errorf("config: read layout %s: %w", path, err)
	}

	return layout, nil
}
