// Command globalrand-linter reports randomness that does not come from an
// explicit seeded source.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocircum/statefuzz/pkg/linter/globalrand"
	"gopkg.in/yaml.v3"
)

var (
	rootDir      = flag.String("dir", ".", "Root directory to scan")
	outputFormat = flag.String("format", "text", "Output format (text, json)")
	configFile   = flag.String("config", "", "Path to a YAML file with exemptions")
	includeTests = flag.Bool("tests", false, "Also check _test.go files")
	silentMode   = flag.Bool("silent", false, "Only output if issues are found")
	exitWithCode = flag.Bool("exit-code", true, "Exit with non-zero code if issues found")
)

func main() {
	flag.Parse()

	config := &globalrand.Config{}
	if *configFile != "" {
		data, err := os.ReadFile(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing config: %v\n", err)
			os.Exit(1)
		}
	}
	if *includeTests {
		config.IncludeTests = true
	}

	absRootDir, err := filepath.Abs(*rootDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving path: %v\n", err)
		os.Exit(1)
	}
	if !*silentMode {
		fmt.Printf("Scanning directory: %s\n", absRootDir)
	}

	issues, err := globalrand.LintProject(absRootDir, config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error during linting: %v\n", err)
		os.Exit(1)
	}

	if len(issues) == 0 {
		if !*silentMode {
			fmt.Println("No issues found.")
		}
		return
	}

	if *outputFormat == "json" {
		out := struct {
			Issues []globalrand.Issue `json:"issues"`
			Total  int                `json:"total_issues"`
		}{Issues: issues, Total: len(issues)}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling to JSON: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	} else {
		fmt.Printf("Found %d issues:\n\n", len(issues))
		for i, issue := range issues {
			if rel, err := filepath.Rel(absRootDir, issue.File); err == nil {
				issue.File = rel
			}
			fmt.Printf("%d) %s\n", i+1, issue)
		}
		fmt.Println("\nMutation randomness must come from the worker's seeded source so campaigns can be replayed.")
	}

	if *exitWithCode {
		os.Exit(1)
	}
}
