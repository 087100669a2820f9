// Package report writes the per-run instancing_analysis.csv summary.
package report

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/271586852/instancing-rendering-project/internal/model"
	"github.com/271586852/instancing-rendering-project/internal/pipelineerr"
)

var header = []string{
	"Input Models", "Initial Nodes", "Initial Meshes", "Initial Instances",
	"Instanced Groups", "Final Instances", "Non-instanced Meshes",
	"Final Nodes", "Final Meshes", "Total Displayed Meshes",
	"Node Reduction (%)", "Initial Instancing Ratio (%)",
	"Final Instancing Ratio (%)", "Instancing Increase (%)",
}

// WriteCSV writes r as a single-header, single-data-row CSV file at path.
func WriteCSV(path string, r model.RunReport) error {
	f, err := os.Create(path)
	if err != nil {
		return pipelineerr.IOError{Path: path, Err: err}
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return pipelineerr.IOError{Path: path, Err: err}
	}
	row := []string{
		fmt.Sprintf("%d", r.InputModels),
		fmt.Sprintf("%d", r.InitialNodes),
		fmt.Sprintf("%d", r.InitialMeshes),
		fmt.Sprintf("%d", r.InitialInstances),
		fmt.Sprintf("%d", r.InstancedGroups),
		fmt.Sprintf("%d", r.FinalInstances),
		fmt.Sprintf("%d", r.NonInstancedMeshes),
		fmt.Sprintf("%d", r.FinalNodes),
		fmt.Sprintf("%d", r.FinalMeshes),
		fmt.Sprintf("%d", r.TotalDisplayedMeshes()),
		fmt.Sprintf("%.2f", r.NodeReductionPercent()),
		fmt.Sprintf("%.2f", r.InitialInstancingRatioPercent()),
		fmt.Sprintf("%.2f", r.FinalInstancingRatioPercent()),
		fmt.Sprintf("%.2f", r.InstancingIncreasePercent()),
	}
	if err := w.Write(row); err != nil {
		return pipelineerr.IOError{Path: path, Err: err}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return pipelineerr.IOError{Path: path, Err: err}
	}
	return nil
}
