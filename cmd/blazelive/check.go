package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/dudu/blazelive/internal/domain"
)

var checkMetal bool

var checkCmd = &cobra.Command{
	Use:   "check [model.onnx]...",
	Short: "Verify that models load and expose the expected tensors",
	Long: `Loads each model with onnxruntime and prints its inputs and outputs.
Without arguments the models of the --blaze domain are checked against the
tensor names that domain expects.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCheck(args)
	},
}

func init() {
	checkCmd.Flags().BoolVar(&checkMetal, "metal", false, "Also try importing the model with go-metal")
	rootCmd.AddCommand(checkCmd)
}

type modelCheck struct {
	path    string
	inputs  []string
	outputs []string
}

func runCheck(args []string) error {
	shutdown, err := initRuntime()
	if err != nil {
		return err
	}
	defer shutdown()

	var checks []modelCheck
	if len(args) == 0 {
		dc, err := domain.Lookup(cfg.Blaze)
		if err != nil {
			return err
		}
		det, lm := dc.Detector.DefaultModel, dc.Landmark.DefaultModel
		if cfg.Model1 != "" {
			det = cfg.Model1
		}
		if cfg.Model2 != "" {
			lm = cfg.Model2
		}
		checks = []modelCheck{
			{path: det, inputs: []string{dc.Detector.InputName}, outputs: []string{dc.Detector.RegressorsOutput, dc.Detector.ScoresOutput}},
			{path: lm, inputs: []string{dc.Landmark.InputName}, outputs: []string{dc.Landmark.FlagOutput, dc.Landmark.LandmarkOutput}},
		}
	} else {
		for _, a := range args {
			checks = append(checks, modelCheck{path: a})
		}
	}

	failed := 0
	for _, c := range checks {
		if err := checkModel(c); err != nil {
			fmt.Printf("FAIL %s: %v\n", c.path, err)
			failed++
			continue
		}
		fmt.Printf("OK   %s\n", c.path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d models failed", failed, len(checks))
	}
	return nil
}

func checkModel(c modelCheck) error {
	if _, err := os.Stat(c.path); err != nil {
		return err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(c.path)
	if err != nil {
		return fmt.Errorf("failed to get model info: %w", err)
	}

	have := make(map[string]bool)
	fmt.Printf("\n%s\n  Inputs (%d):\n", c.path, len(inputs))
	for _, info := range inputs {
		fmt.Printf("    %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
		have[info.Name] = true
	}
	fmt.Printf("  Outputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("    %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
		have[info.Name] = true
	}

	for _, name := range append(append([]string{}, c.inputs...), c.outputs...) {
		if name != "" && !have[name] {
			return fmt.Errorf("model has no tensor %q", name)
		}
	}

	if checkMetal {
		if err := importMetal(c.path); err != nil {
			return err
		}
	}
	return nil
}
