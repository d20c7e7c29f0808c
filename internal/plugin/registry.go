package plugin

import "fmt"

var registry = make(map[string]Descriptor)

// Register adds a descriptor to the static table. Called at startup
// only (built-ins in builtins.go); there is no runtime registration
// path exposed to workers.
func Register(d Descriptor) error {
	if _, exists := registry[d.Kind]; exists {
		return fmt.Errorf("plugin already registered: %s", d.Kind)
	}
	registry[d.Kind] = d
	return nil
}

// Get resolves a plugin kind to its descriptor, or reports
// PluginUnknown via the returned bool (spec §4.6 step 2).
func Get(kind string) (Descriptor, bool) {
	d, ok := registry[kind]
	return d, ok
}

func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}

func init() {
	for _, d := range builtins() {
		if err := Register(d); err != nil {
			panic(err)
		}
	}
}
