package merge

import (
	"fmt"
	"log"

	"github.com/dnswlt/qgisrepo/internal/catalog"
	"github.com/dnswlt/qgisrepo/internal/repo"
	"github.com/dnswlt/qgisrepo/internal/store"
)

// IntoFile merges in into the catalog file at path and writes it back.
// The file is created if it does not exist and reset if it is corrupt (see repo.EnsureAndLoad).
// source only names the input in log messages.
//
// The file is rewritten even if nothing changed; the output is byte-identical in that case.
func IntoFile(st store.Store, path string, in *catalog.Catalog, source string) (*Report, error) {
	out, err := repo.EnsureAndLoad(st, path)
	if err != nil {
		return nil, err
	}

	log.Printf("Updating source %s", path)
	log.Printf("with %s", source)

	report := Merge(in, out)
	if report.Empty() {
		log.Printf("No update is necessary")
	}
	for _, c := range report.Changes {
		if c.Kind == Updated {
			log.Printf("Removing previous %s %t %s (%s)", c.Plugin.Name, c.Plugin.Experimental, c.PreviousVersion, c.Direction())
		}
		log.Printf("Adding new version %s %t %s", c.Plugin.Name, c.Plugin.Experimental, c.Plugin.Version)
	}
	if !report.Empty() {
		log.Printf("%s: %d added, %d updated", path, report.Count(Added), report.Count(Updated))
	}

	if err := repo.Save(st, path, out); err != nil {
		return nil, fmt.Errorf("failed to save merged catalog: %w", err)
	}
	return report, nil
}
