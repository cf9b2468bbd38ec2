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

package config

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

var (
	// The global config file
	configFile string
)

// SetGlobalConfig sets the global config filename
func SetGlobalConfig(filename string) {
	configFile = filename
}

// LoadGlobal loads the config file that has been set by SetGlobalConfig
func LoadGlobal() (*Config, error) {
	return Load(configFile)
}

// Config contains the entry points and the taint tracking problems of an analysis, and the options of the tool.
// To add elements to a config file, add fields to this struct.
// If some field is not defined in the config file, it will keep the value set by NewDefault.
// private fields are not populated from a yaml file, but computed after initialization
type Config struct {
	Options `yaml:"options"`

	sourceFile string

	// EntryPoints identifies the methods from which the analysis starts
	EntryPoints []CodeIdentifier `yaml:"entry-points"`

	// TaintTrackingProblems lists the taint tracking specifications
	TaintTrackingProblems []TaintSpec `yaml:"taint-tracking-problems"`
}

// TaintSpec contains the sources and sinks of a specific taint tracking problem
type TaintSpec struct {
	// Sources is the list of sources for the taint analysis
	Sources []SourceSpec `yaml:"sources"`

	// Sinks is the list of sinks for the taint analysis
	Sinks []SinkSpec `yaml:"sinks"`

	// TraceThreshold lists the names of the sources whose taint is not followed when extracting witness traces.
	// An empty threshold is the bottom of the taint lattice: every tainted location is followed.
	TraceThreshold []string `yaml:"trace-threshold"`
}

// SourceSpec identifies the methods that are taint sources, and which values they taint when called
type SourceSpec struct {
	CodeIdentifier `yaml:",inline"`

	// Name is used to refer to the source in sinks and thresholds. Defaults to the source's signature.
	Name string `yaml:"name"`

	// TaintsThis specifies whether the content of the receiver object is tainted by the call
	TaintsThis bool `yaml:"taints-this"`

	// TaintsReturn specifies whether the returned value is tainted
	TaintsReturn bool `yaml:"taints-return"`

	// TaintsArgs lists the arguments (starting at 1) whose content is tainted by the call
	TaintsArgs []int `yaml:"taints-args"`

	// TaintsGlobals lists the static fields (fully qualified, e.g. A.f) tainted by the call
	TaintsGlobals []string `yaml:"taints-globals"`
}

// SinkSpec identifies the methods that are taint sinks, and which of their inputs are sensitive
type SinkSpec struct {
	CodeIdentifier `yaml:",inline"`

	// TakesInstance specifies whether the receiver of the call is sensitive
	TakesInstance bool `yaml:"takes-instance"`

	// TakesArgs lists the sensitive arguments, starting at 1
	TakesArgs []int `yaml:"takes-args"`

	// TakesGlobals lists the sensitive static fields (fully qualified, e.g. A.f)
	TakesGlobals []string `yaml:"takes-globals"`

	// ValidSources restricts the sink to the sources with those names. If empty, every source is valid.
	ValidSources []string `yaml:"valid-sources"`
}

// Options contains the settings of the analyses
type Options struct {
	// ReportsDir is the directory where all the reports will be stored. If the yaml config file this config struct has
	// been loaded does not specify a ReportsDir but sets ReportPaths to true, then ReportsDir will be created
	// in the folder of the config file.
	ReportsDir string `yaml:"reports-dir"`

	// ReportPaths specifies whether the witness traces should be reported in separate files. For each trace, a new
	// file named flow-*.out will be generated with the trace from source to sink
	ReportPaths bool `yaml:"report-paths"`

	// MaxCallStackDepth sets a limit on the depth of the call stack explored by the interprocedural analysis.
	// 0 means the analysis is intraprocedural, and a negative value means that the depth is not bounded.
	// Default is -1.
	MaxCallStackDepth int `yaml:"max-call-stack-depth"`

	// HeapModel is either "tree" (default) or "forgetful"
	HeapModel string `yaml:"heap-model"`

	// Waitlist is the order in which the fixpoint algorithm processes states: "bfs" (default), "dfs" or "priority"
	Waitlist string `yaml:"waitlist"`

	// MaxAlarms sets a limit for the number of traces reported by an analysis. If MaxAlarms > 0, then at most
	// MaxAlarms will be reported. Otherwise, if MaxAlarms <= 0, it is ignored.
	MaxAlarms int `yaml:"max-alarms"`

	// LogLevel controls the verbosity of the tool
	LogLevel int `yaml:"log-level"`
}

// NewDefault returns an empty default config.
func NewDefault() *Config {
	return &Config{
		sourceFile:            "",
		EntryPoints:           nil,
		TaintTrackingProblems: nil,
		Options: Options{
			ReportsDir:        "",
			ReportPaths:       false,
			MaxCallStackDepth: DefaultMaxCallStackDepth,
			HeapModel:         HeapModelTree,
			Waitlist:          WaitlistBreadthFirst,
			MaxAlarms:         0,
			LogLevel:          int(InfoLevel),
		},
	}
}

// Load reads a configuration from a file
func Load(filename string) (*Config, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("could not read config file: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("in config file %s: %w", filename, err)
	}
	cfg.sourceFile = filename

	if cfg.ReportPaths {
		if err := setReportsDir(cfg, filename); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Parse reads a configuration from yaml content. Unlike Load, it never creates a reports directory.
func Parse(content []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("could not unmarshal config: %w", err)
	}

	// If logLevel has not been specified (i.e. it is 0) set the default to Info
	if cfg.LogLevel == 0 {
		cfg.LogLevel = int(InfoLevel)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	for i := range cfg.EntryPoints {
		cfg.EntryPoints[i] = compileRegexes(cfg.EntryPoints[i])
	}
	for _, tSpec := range cfg.TaintTrackingProblems {
		for i := range tSpec.Sources {
			tSpec.Sources[i].CodeIdentifier = compileRegexes(tSpec.Sources[i].CodeIdentifier)
		}
		for i := range tSpec.Sinks {
			tSpec.Sinks[i].CodeIdentifier = compileRegexes(tSpec.Sinks[i].CodeIdentifier)
		}
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.HeapModel {
	case HeapModelTree, HeapModelForgetful:
	default:
		return fmt.Errorf("unknown heap model %q", c.HeapModel)
	}
	switch c.Waitlist {
	case WaitlistBreadthFirst, WaitlistDepthFirst, WaitlistPriority:
	default:
		return fmt.Errorf("unknown waitlist %q", c.Waitlist)
	}
	if c.LogLevel < int(ErrLevel) || c.LogLevel > int(TraceLevel) {
		return fmt.Errorf("log level %d is not between %d and %d", c.LogLevel, ErrLevel, TraceLevel)
	}
	return nil
}

func setReportsDir(c *Config, filename string) error {
	if c.ReportsDir == "" {
		tmpdir, err := os.MkdirTemp(path.Dir(filename), "*-report")
		if err != nil {
			return fmt.Errorf("could not create temp dir for reports: %w", err)
		}
		c.ReportsDir = tmpdir
	} else {
		err := os.Mkdir(c.ReportsDir, 0750)
		if err != nil && !os.IsExist(err) {
			return fmt.Errorf("could not create directory %s: %w", c.ReportsDir, err)
		}
	}
	return nil
}

// RelPath returns filename path relative to the config source file
func (c Config) RelPath(filename string) string {
	return path.Join(path.Dir(c.sourceFile), filename)
}

// IsEntryPoint returns true if the method matches some entry point of the config
func (c Config) IsEntryPoint(class, method, descriptor string) bool {
	return ExistsCid(c.EntryPoints, func(cid CodeIdentifier) bool { return cid.Matches(class, method, descriptor) })
}

// IsSomeSource returns true if the method matches any source in the config
func (c Config) IsSomeSource(class, method, descriptor string) bool {
	for _, ts := range c.TaintTrackingProblems {
		if ts.MatchingSource(class, method, descriptor) != nil {
			return true
		}
	}
	return false
}

// IsSomeSink returns true if the method matches any sink in the config
func (c Config) IsSomeSink(class, method, descriptor string) bool {
	for _, ts := range c.TaintTrackingProblems {
		if ts.MatchingSink(class, method, descriptor) != nil {
			return true
		}
	}
	return false
}

// MatchingSource returns the first source specification matching the method, or nil
func (ts TaintSpec) MatchingSource(class, method, descriptor string) *SourceSpec {
	for i := range ts.Sources {
		if ts.Sources[i].Matches(class, method, descriptor) {
			return &ts.Sources[i]
		}
	}
	return nil
}

// MatchingSink returns the first sink specification matching the method, or nil
func (ts TaintSpec) MatchingSink(class, method, descriptor string) *SinkSpec {
	for i := range ts.Sinks {
		if ts.Sinks[i].Matches(class, method, descriptor) {
			return &ts.Sinks[i]
		}
	}
	return nil
}

// Verbose returns true is the configuration verbosity setting is larger than Info (i.e. Debug or Trace)
func (c Config) Verbose() bool {
	return c.LogLevel >= int(DebugLevel)
}

// ExceedsMaxDepth returns true if a call stack of depth d exceeds the maximum depth parameter of the configuration.
// If the configuration setting is < 0, then this returns false
func (c Config) ExceedsMaxDepth(d int) bool {
	if c.MaxCallStackDepth < 0 {
		return false
	}
	return d > c.MaxCallStackDepth
}
