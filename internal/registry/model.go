package registry

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Size is a LLaMA size class.
type Size string

const (
	Size7B  Size = "7B"
	Size13B Size = "13B"
	Size30B Size = "30B"
	Size65B Size = "65B"
)

// Artifact file names inside models/<NAME>/.
const (
	F16File       = "ggml-model-f16.bin"
	QuantizedFile = "ggml-model-q4_0.bin"
)

// SharedFiles are the tokenizer files kept directly under models/.
var SharedFiles = []string{"tokenizer_checklist.chk", "tokenizer.model"}

var shardCounts = map[Size]int{
	Size7B:  1,
	Size13B: 2,
	Size30B: 4,
	Size65B: 8,
}

// Sizes lists the supported size classes in ascending order.
func Sizes() []Size { return []Size{Size7B, Size13B, Size30B, Size65B} }

// ErrUnknownModel is wrapped by Parse for names outside the supported set.
var ErrUnknownModel = errors.New("unknown model")

// IsUnknownModel reports whether err came from an unsupported model name.
func IsUnknownModel(err error) bool { return errors.Is(err, ErrUnknownModel) }

// ModelSpec describes one size class and the files it is made of.
type ModelSpec struct {
	Name       Size
	ShardCount int
	// FileList holds checklist, params and every consolidated shard, in download order.
	FileList []string
}

// Parse resolves a model name such as "7B" (case-insensitive).
func Parse(name string) (ModelSpec, error) {
	size := Size(strings.ToUpper(strings.TrimSpace(name)))
	n, ok := shardCounts[size]
	if !ok {
		return ModelSpec{}, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	files := []string{"checklist.chk", "params.json"}
	for i := 0; i < n; i++ {
		files = append(files, fmt.Sprintf("consolidated.%02d.pth", i))
	}
	return ModelSpec{Name: size, ShardCount: n, FileList: files}, nil
}

// ParseAll resolves every name, failing on the first unknown one.
func ParseAll(names []string) ([]ModelSpec, error) {
	out := make([]ModelSpec, 0, len(names))
	for _, n := range names {
		s, err := Parse(n)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// ShardSuffix is "" for shard 0 and ".i" otherwise, matching the converter's output naming.
func ShardSuffix(i int) string {
	if i == 0 {
		return ""
	}
	return fmt.Sprintf(".%d", i)
}

// Dir is models/<NAME> under modelsDir.
func (s ModelSpec) Dir(modelsDir string) string { return filepath.Join(modelsDir, string(s.Name)) }

// F16Path is the converted float16 artifact for shard i.
func (s ModelSpec) F16Path(modelsDir string, i int) string {
	return filepath.Join(s.Dir(modelsDir), F16File+ShardSuffix(i))
}

// QuantizedPath is the 4-bit artifact for shard i.
func (s ModelSpec) QuantizedPath(modelsDir string, i int) string {
	return filepath.Join(s.Dir(modelsDir), QuantizedFile+ShardSuffix(i))
}
