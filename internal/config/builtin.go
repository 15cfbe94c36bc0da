package config

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed experiments/*.json
var builtinFS embed.FS

// ErrUnknownExperiment is returned by Builtin for names with no embedded
// definition.
var ErrUnknownExperiment = errors.New("unknown experiment")

// Builtin returns the embedded experiment with the given name.
func Builtin(name string) (*Experiment, error) {
	data, err := builtinFS.ReadFile(path.Join("experiments", name+".json"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownExperiment, name, strings.Join(BuiltinNames(), ", "))
	}
	if err != nil {
		return nil, err
	}
	return ParseExperiment(data)
}

// BuiltinNames lists the embedded experiments.
func BuiltinNames() []string {
	entries, err := builtinFS.ReadDir("experiments")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names
}
