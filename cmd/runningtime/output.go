package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/ja7ad/runningtime/pkg/report"
	"github.com/ja7ad/runningtime/pkg/system/host"
)

func render(w io.Writer, format string, sum report.Summary) error {
	switch format {
	case "json":
		b, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(sum); err != nil {
			return fmt.Errorf("failed to marshal YAML: %w", err)
		}
		return enc.Close()
	default:
		return renderTable(w, sum)
	}
}

func renderTable(w io.Writer, sum report.Summary) error {
	table := tablewriter.NewWriter(w)
	table.Header("File", "Status", "Running time")
	for _, r := range sum.Results {
		status := string(r.Status)
		if r.Error != "" {
			status = fmt.Sprintf("%s: %s", r.Status, r.Error)
		}
		if err := table.Append(r.Path, status, r.Seconds.Humanized()); err != nil {
			return err
		}
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "total:   %s (%d measured, %d skipped, %d failed)\n",
		sum.Total.Humanized(), sum.Measured, sum.Ineligible, sum.Failed)
	if sum.Measured > 0 {
		fmt.Fprintf(w, "average: %s\n", sum.Average.Humanized())
	}
	if sum.Throttling > 0 {
		fmt.Fprintf(w, "throttling factor: %.3f\n", sum.Throttling)
	}
	return nil
}

func printHost(w io.Writer, h host.Summary, cachePath string) {
	fmt.Fprintf(w, _console, h.Hostname, h.Kernel, h.OS, h.Arch, h.CPU(), h.Mem(), cachePath)
}

const _console = `runningtime - JavaScript running time on a reference CPU

       Host: %s
       Kernel: %s
       OS: %s/%s
       CPUs: %s
       Mem: %s
       Cache: %s

`
