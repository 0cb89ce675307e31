package domain

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type overlayFile struct {
	Domains []yaml.Node `yaml:"domains"`
}

// LoadOverlay reads domain records from a YAML file and registers them.
// Entries naming an existing domain start from that domain's record, so an
// overlay only needs the fields it changes.
func LoadOverlay(path string) ([]Name, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open domain overlay: %w", err)
	}
	defer f.Close()

	return ReadOverlay(f)
}

// ReadOverlay is LoadOverlay over an arbitrary reader
func ReadOverlay(r io.Reader) ([]Name, error) {
	var file overlayFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse domain overlay: %w", err)
	}

	var names []Name
	for i := range file.Domains {
		node := &file.Domains[i]

		var head struct {
			Name string `yaml:"name"`
		}
		if err := node.Decode(&head); err != nil {
			return names, fmt.Errorf("domain entry %d: %w", i, err)
		}
		if head.Name == "" {
			return names, fmt.Errorf("domain entry %d: missing name", i)
		}

		base, err := Lookup(head.Name)
		if err != nil {
			base = Config{}
		}
		base = base.clone()
		if err := node.Decode(&base); err != nil {
			return names, fmt.Errorf("domain %s: %w", head.Name, err)
		}
		base.Name = Name(strings.ToLower(head.Name))

		if err := Register(base); err != nil {
			return names, err
		}
		names = append(names, base.Name)
	}

	return names, nil
}

// clone copies the slices so decoding an overlay never edits a registered record
func (c Config) clone() Config {
	out := c
	out.Detector.Anchors.Strides = append([]int(nil), c.Detector.Anchors.Strides...)
	out.Detector.Anchors.AspectRatios = append([]float64(nil), c.Detector.Anchors.AspectRatios...)
	out.Connections = append([][2]int(nil), c.Connections...)
	out.FullBody = append([][2]int(nil), c.FullBody...)
	return out
}
