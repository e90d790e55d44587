package column

import (
	"os"
	"path/filepath"

	"github.com/colbase/column-engine/pkg/column/coltypes"
	"github.com/colbase/column-engine/pkg/column/indextable"
)

const maxIndexBits = 64

// discoverIndexBits probes index_bits descending from maxIndexBits to
// startBits and returns the bits of every index file found, oldest
// (smallest) first — the order the rebalance queue wants them enrolled
// in.
func discoverIndexBits(dir string, columnID uint8) []uint8 {
	var found []uint8

	for bits := maxIndexBits; bits >= startBits; bits-- {
		path := filepath.Join(dir, indextable.FileName(coltypes.IndexTableID{Column: columnID, IndexBits: uint8(bits)}))

		_, err := os.Stat(path)
		if err == nil {
			found = append(found, uint8(bits))
		}
	}

	for i, j := 0, len(found)-1; i < j; i, j = i+1, j-1 {
		found[i], found[j] = found[j], found[i]
	}

	return found
}
