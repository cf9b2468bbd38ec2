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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/awslabs/ar-jvm-tools/analysis"
	"github.com/awslabs/ar-jvm-tools/analysis/bytecode"
	"github.com/awslabs/ar-jvm-tools/analysis/config"
	"github.com/awslabs/ar-jvm-tools/internal/formatutil"
)

var (
	configPath = flag.String("config", "", "Config file path for taint analysis")
	verbose    = flag.Bool("verbose", false, "Verbose printing on standard output")
	noColor    = flag.Bool("nocolor", false, "Print results without colors")
)

const usage = ` Perform taint analysis on a JVM program.
Usage:
    taint [options] <program.yaml>
Examples:
% taint -config config.yaml program.yaml
`

func main() {
	flag.Parse()

	if flag.NArg() != 1 || *configPath == "" {
		_, _ = fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
		os.Exit(2)
	}
	if *noColor {
		formatutil.DisableColors()
	}

	config.SetGlobalConfig(*configPath)
	taintConfig, err := config.LoadGlobal()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}
	if *verbose {
		taintConfig.LogLevel = int(config.DebugLevel)
	}
	logger := config.NewLogGroup(taintConfig)

	logger.Infof(formatutil.Faint("Reading program") + "\n")
	pool, err := bytecode.LoadProgramFile(flag.Arg(0))
	if err != nil {
		logger.Errorf("could not load program: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	result, err := analysis.RunTaintAnalysis(context.Background(), taintConfig, logger, pool)
	if err != nil {
		logger.Errorf("analysis failed: %v\n", err)
		if result == nil {
			os.Exit(1)
		}
	}
	logger.Infof("Analysis took %3.4f s\n", time.Since(start).Seconds())

	if rerr := analysis.ReportTaintFlows(taintConfig, logger, result); rerr != nil {
		logger.Errorf("%v\n", rerr)
		os.Exit(1)
	}
	for _, flow := range result.Flows {
		fmt.Printf("%s\n", formatutil.Red(flow.Trace.String()))
	}
	if err != nil {
		os.Exit(1)
	}
}
