//go:build darwin

package main

import (
	"fmt"

	"github.com/tsawler/go-metal/checkpoints"
)

// importMetal reports whether go-metal can run the model natively
func importMetal(path string) error {
	checkpoint, err := checkpoints.NewONNXImporter().ImportFromONNX(path)
	if err != nil {
		return fmt.Errorf("go-metal import failed (unsupported operations?): %w", err)
	}

	fmt.Printf("  go-metal: %d layers, %d weight tensors\n",
		len(checkpoint.ModelSpec.Layers), len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("    %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
	return nil
}
