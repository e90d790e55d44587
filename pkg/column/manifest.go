package column

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	natomic "github.com/natefinch/atomic"

	"github.com/colbase/column-engine/pkg/column/coltypes"
)

// manifestEntry names one table identity the manifest records. Open
// rewrites the manifest after discovering tables; it does not read it
// back, and every open still probes the directory.
type manifestEntry struct {
	Kind      string `json:"kind"` // "index" or "value"
	IndexBits uint8  `json:"index_bits,omitempty"`
	Tier      uint8  `json:"tier,omitempty"`
}

type manifestDoc struct {
	Entries []manifestEntry `json:"entries"`
}

func manifestPath(dir string) string {
	return filepath.Join(dir, "manifest.json")
}

// writeManifest rewrites the manifest file wholesale. Whole-file rewrite
// is the one piece of column metadata not handled append-only by the
// log, so it goes through natefinch/atomic the way the teacher's own
// CLI rewrites its lock and ticket files.
func writeManifest(dir string, doc manifestDoc) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("column: marshal manifest: %w", err)
	}

	err = natomic.WriteFile(manifestPath(dir), strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("column: write manifest: %w", err)
	}

	return nil
}

func readManifest(dir string) (manifestDoc, bool, error) {
	data, err := os.ReadFile(manifestPath(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return manifestDoc{}, false, nil
		}

		return manifestDoc{}, false, fmt.Errorf("column: read manifest: %w", err)
	}

	var doc manifestDoc

	err = json.Unmarshal(data, &doc)
	if err != nil {
		return manifestDoc{}, false, fmt.Errorf("column: parse manifest: %w", err)
	}

	return doc, true, nil
}

func manifestFor(indexBitsSeen []uint8) manifestDoc {
	doc := manifestDoc{}

	for _, bits := range indexBitsSeen {
		doc.Entries = append(doc.Entries, manifestEntry{Kind: "index", IndexBits: bits})
	}

	for tier := uint8(0); tier < coltypes.NumTiers; tier++ {
		doc.Entries = append(doc.Entries, manifestEntry{Kind: "value", Tier: tier})
	}

	return doc
}
