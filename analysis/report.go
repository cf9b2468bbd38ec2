// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package analysis

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/awslabs/ar-jvm-tools/analysis/cfa"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/internal/formatutil"
)

// ReportTaintFlows logs every flow of the result and, if the config has the ReportPaths flag set, writes each flow
// in a new flow-*.out file of the reports directory.
func ReportTaintFlows(cfg *config.Config, logger *config.LogGroup, result *TaintResult) error {
	for _, flow := range result.Flows {
		_, sink := flowEnds(result.CFA, flow)
		logger.Infof(" 💀 Sink %s reached at %s\n", formatutil.Red(flow.Target), formatutil.Red(sink))
		logger.Infof(" Add new path from %s to %s <== \n", formatutil.Green(flow.Source.Name),
			formatutil.Red(flow.Target))
		for _, line := range traceLines(result.CFA, flow) {
			logger.Debugf("TRACE: %s\n", line)
		}
		if !cfg.ReportPaths {
			continue
		}
		tmp, err := os.CreateTemp(cfg.ReportsDir, "flow-*.out")
		if err != nil {
			return fmt.Errorf("could not write report: %w", err)
		}
		logger.Infof("Report in %s\n", tmp.Name())
		werr := WriteFlow(tmp, result.CFA, flow)
		if err := tmp.Close(); err != nil && werr == nil {
			werr = err
		}
		if werr != nil {
			return fmt.Errorf("could not write report %s: %w", tmp.Name(), werr)
		}
	}
	return nil
}

// WriteFlow writes the report of a flow: its source and sink, and the trace from the source to the sink.
func WriteFlow(w io.Writer, c *cfa.CFA, flow Flow) error {
	source, sink := flowEnds(c, flow)
	var b strings.Builder
	fmt.Fprintf(&b, "Source: %s\n", formatutil.Sanitize(flow.Source.Name))
	fmt.Fprintf(&b, "At: %s\n", source)
	fmt.Fprintf(&b, "Sink: %s\n", flow.Target)
	fmt.Fprintf(&b, "At: %s\n", sink)
	fmt.Fprintf(&b, "Entry: %s\n", flow.Entry)
	b.WriteString("Trace:\n")
	b.WriteString(formatutil.Indent(strings.Join(traceLines(c, flow), "\n"), 2))
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// flowEnds returns the first and last nodes of the trace of a flow
func flowEnds(c *cfa.CFA, flow Flow) (string, string) {
	if len(flow.Elements) == 0 {
		return "?", "?"
	}
	first, last := flow.Elements[0], flow.Elements[len(flow.Elements)-1]
	return c.Node(first.Node).String(), c.Node(last.Node).String()
}

func traceLines(c *cfa.CFA, flow Flow) []string {
	lines := make([]string, len(flow.Elements))
	for i, e := range flow.Elements {
		lines[i] = fmt.Sprintf("%s %s", c.Node(e.Node), e.Location)
	}
	return lines
}
