package plugin

// builtins returns the descriptors for the plugin kinds named in spec
// §4.5. Images are the conventional crowd-<kind>-<variant> references a
// deployment's registry is expected to host; this spec treats their
// payload behavior as an external collaborator (spec §1 Non-goals).
func builtins() []Descriptor {
	return []Descriptor{
		{
			Kind:  "hashcat",
			Image: "crowd-hashcat-cpu:latest",
			ArgvTemplate: []Token{
				Lit("--hash-mode"), Param("hash_mode"),
				Lit("--target"), Param("target_hash"),
				Lit("--wordlist"), Input("wordlist.txt"),
				Lit("--output"), Output("result.txt"),
			},
			ExpectedInputs:  []string{"wordlist.txt"},
			ExpectedOutputs: []string{"result.txt"},
		},
		{
			Kind:  "sort_map",
			Image: "crowd-sort-map:latest",
			ArgvTemplate: []Token{
				Lit("--input"), Input("shard.txt"),
				Lit("--output"), Output("sorted.txt"),
			},
			ExpectedInputs:  []string{"shard.txt"},
			ExpectedOutputs: []string{"sorted.txt"},
		},
		{
			Kind:  "sort_reduce",
			Image: "crowd-sort-reduce:latest",
			ArgvTemplate: []Token{
				Lit("--merge"), Input("inputs/"),
				Lit("--output"), Output("final.txt"),
			},
			ExpectedInputs:  []string{"inputs/"},
			ExpectedOutputs: []string{"final.txt"},
		},
	}
}
