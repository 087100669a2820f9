package loader

import "github.com/271586852/instancing-rendering-project/internal/model"

// WithPreloaded is an option builder that seeds the loader's path cache
// with an already-parsed model. Load records every model it parses in the
// same cache but never reads from it: a preloaded entry does not replace
// the file read for a discovered path, and a path that Discover does not
// find is not loaded.
//
// Parameters:
//   - path: the synthetic path to register
//   - lm: the pre-built LoadedModel to record for that path
//
// Returns:
//   - LoaderOption: a function that applies the option to a loader
func WithPreloaded(path string, lm *model.LoadedModel) LoaderOption {
	return func(l *loader) {
		l.byPath[path] = lm
	}
}
