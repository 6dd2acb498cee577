package types

// Model describes one supported size class.
type Model struct {
	// example: 13B
	Name string `json:"name" example:"13B"`
	// Number of consolidated weight shards.
	// example: 2
	Shards int `json:"shards" example:"2"`
	// Files downloaded into models/<name>/.
	Files []string `json:"files"`
	// Whether the quantized weights are present.
	Installed bool `json:"installed"`
}
