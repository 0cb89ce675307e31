// Package domain holds the per body-part configuration table (hand, face, pose)
// consumed by the detector, ROI and landmark stages.
package domain

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
)

// Name identifies a body-part domain
type Name string

const (
	Hand Name = "hand"
	Face Name = "face"
	Pose Name = "pose"
)

// MinScale is the smallest ROI size in pixels. Coincident anchors or
// zero-width boxes are clamped to it.
const MinScale = 1.0

// CenterMode selects how the ROI center is derived from a detection
type CenterMode string

const (
	CenterBox      CenterMode = "box"
	CenterAnchor   CenterMode = "anchor"
	CenterMidpoint CenterMode = "midpoint"
)

// SizeMode selects how the unexpanded ROI size is derived
type SizeMode string

const (
	SizeBox            SizeMode = "box"
	SizeAnchorDistance SizeMode = "anchor-distance"
)

// ZScaling selects how landmark depth is mapped to pixel space
type ZScaling string

const (
	ZPassthrough  ZScaling = "passthrough"
	ZScaleWithROI ZScaling = "roi-scale"
)

// ROIRule describes how a detection becomes a rotated region of interest.
// Rotation is the angle of the vector from keypoint From to keypoint To,
// minus Theta0.
type ROIRule struct {
	Center CenterMode `yaml:"center"`
	Size   SizeMode   `yaml:"size"`
	From   int        `yaml:"from"`
	To     int        `yaml:"to"`
	Expand float64    `yaml:"expand"`
	ShiftY float64    `yaml:"shift_y"`
	Theta0 float64    `yaml:"theta0"`
}

// Anchors holds SSD anchor generation options for a detector
type Anchors struct {
	NumLayers           int       `yaml:"num_layers"`
	MinScale            float64   `yaml:"min_scale"`
	MaxScale            float64   `yaml:"max_scale"`
	Strides             []int     `yaml:"strides"`
	AspectRatios        []float64 `yaml:"aspect_ratios"`
	OffsetX             float64   `yaml:"offset_x"`
	OffsetY             float64   `yaml:"offset_y"`
	InterpolatedScaleAR float64   `yaml:"interpolated_scale_aspect_ratio"`
	ReduceInLowestLayer bool      `yaml:"reduce_boxes_in_lowest_layer"`
	FixedAnchorSize     bool      `yaml:"fixed_anchor_size"`
}

// DetectorSpec describes the region detector model for a domain
type DetectorSpec struct {
	Type             string  `yaml:"type"`
	InputSize        int     `yaml:"input_size"`
	NumKeypoints     int     `yaml:"num_keypoints"`
	NumAnchors       int     `yaml:"num_anchors"`
	Anchors          Anchors `yaml:"anchors"`
	ScoreClipping    float32 `yaml:"score_clipping"`
	MinScore         float32 `yaml:"min_score"`
	MinSuppression   float32 `yaml:"min_suppression"`
	InputMean        float32 `yaml:"input_mean"`
	InputStd         float32 `yaml:"input_std"`
	DefaultModel     string  `yaml:"default_model"`
	InputName        string  `yaml:"input_name"`
	RegressorsOutput string  `yaml:"regressors_output"`
	ScoresOutput     string  `yaml:"scores_output"`
}

// NumCoords returns the number of values per raw detection (box + keypoints)
func (d DetectorSpec) NumCoords() int {
	return 4 + 2*d.NumKeypoints
}

// LandmarkSpec describes the landmark regressor for a domain
type LandmarkSpec struct {
	Type           string   `yaml:"type"`
	Resolution     int      `yaml:"resolution"`
	NumLandmarks   int      `yaml:"num_landmarks"`
	Dims           int      `yaml:"dims"`
	OutputScale    float32  `yaml:"output_scale"`
	ZScaling       ZScaling `yaml:"z_scaling"`
	InputMean      float32  `yaml:"input_mean"`
	InputStd       float32  `yaml:"input_std"`
	DefaultModel   string   `yaml:"default_model"`
	InputName      string   `yaml:"input_name"`
	FlagOutput     string   `yaml:"flag_output"`
	LandmarkOutput string   `yaml:"landmark_output"`
}

// Config is the immutable record for one domain
type Config struct {
	Name     Name         `yaml:"name"`
	Title    string       `yaml:"title"`
	Detector DetectorSpec `yaml:"detector"`
	Landmark LandmarkSpec `yaml:"landmark"`
	ROI      ROIRule      `yaml:"roi"`
	// Connections are drawn between landmark indices. Pose models with more
	// than FullBodyAbove landmarks use FullBody instead.
	Connections   [][2]int `yaml:"connections"`
	FullBody      [][2]int `yaml:"full_body"`
	FullBodyAbove int      `yaml:"full_body_above"`
	PointSize     int      `yaml:"point_size"`
}

// ConnectionsFor returns the skeleton for a landmark set of n points
func (c Config) ConnectionsFor(n int) [][2]int {
	if len(c.FullBody) > 0 && n > c.FullBodyAbove {
		return c.FullBody
	}
	return c.Connections
}

// Validate checks the record for values the geometry stages cannot use
func (c Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("domain name is empty")
	}
	if c.Detector.InputSize <= 0 {
		return fmt.Errorf("domain %s: detector input size must be positive", c.Name)
	}
	if c.Landmark.Resolution <= 1 {
		return fmt.Errorf("domain %s: landmark resolution must be greater than 1", c.Name)
	}
	if c.Landmark.Dims < 2 {
		return fmt.Errorf("domain %s: landmark dims must be at least 2", c.Name)
	}
	kp := c.Detector.NumKeypoints
	if c.ROI.From < 0 || c.ROI.From >= kp || c.ROI.To < 0 || c.ROI.To >= kp {
		return fmt.Errorf("domain %s: roi anchors %d,%d out of range for %d keypoints", c.Name, c.ROI.From, c.ROI.To, kp)
	}
	if c.ROI.Expand <= 0 || math.IsNaN(c.ROI.Expand) {
		return fmt.Errorf("domain %s: roi expand must be positive", c.Name)
	}
	switch c.ROI.Center {
	case CenterBox, CenterAnchor, CenterMidpoint:
	default:
		return fmt.Errorf("domain %s: unknown roi center mode %q", c.Name, c.ROI.Center)
	}
	switch c.ROI.Size {
	case SizeBox, SizeAnchorDistance:
	default:
		return fmt.Errorf("domain %s: unknown roi size mode %q", c.Name, c.ROI.Size)
	}
	switch c.Landmark.ZScaling {
	case "", ZPassthrough, ZScaleWithROI:
	default:
		return fmt.Errorf("domain %s: unknown z scaling %q", c.Name, c.Landmark.ZScaling)
	}
	return nil
}

var (
	registryMu sync.RWMutex
	registry   = map[Name]Config{}
)

func init() {
	for _, c := range builtin() {
		registry[c.Name] = c
	}
}

// Lookup returns the configuration for a domain name
func Lookup(name string) (Config, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	c, ok := registry[Name(strings.ToLower(name))]
	if !ok {
		return Config{}, fmt.Errorf("invalid blaze application %q, must be one of %s", name, strings.Join(namesLocked(), ", "))
	}
	return c, nil
}

// Register adds or replaces a domain after validating it
func Register(c Config) error {
	if err := c.Validate(); err != nil {
		return err
	}

	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.Name] = c
	return nil
}

// Names lists the registered domains in sorted order
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}
