//go:build integration

package integration

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jwebster45206/divergence-engine/integration/runner"
)

var caseFlag = flag.String("case", "", "Name of test case to run (from integration/cases/)")
var errFlag = flag.String("err", "continue", "Error handling mode: 'continue' (run all steps) or 'exit' (stop on first failure)")
var runsFlag = flag.Int("runs", 1, "Number of times to run each test suite (useful for testing non-deterministic behavior)")

func TestMain(m *testing.M) {
	flag.Parse()
	fmt.Printf("Running Divergence Engine Integration Tests\n")
	fmt.Printf("   API Base URL: %s\n", apiBaseURL())
	os.Exit(m.Run())
}

// TestIntegrationSuites plays every case under cases/, or only those named
// with -case "a,b", -runs times each against a live API and model.
func TestIntegrationSuites(t *testing.T) {
	if *errFlag != "exit" && *errFlag != "continue" {
		t.Fatalf("Invalid -err flag value: %s (must be 'exit' or 'continue')", *errFlag)
	}
	runs := *runsFlag
	if runs < 1 {
		t.Fatalf("Number of runs must be >= 1, got: %d", runs)
	}

	suiteFiles, err := selectSuiteFiles(*caseFlag)
	if err != nil {
		t.Fatalf("Failed to discover test files: %v", err)
	}
	if len(suiteFiles) == 0 {
		t.Fatal("No test files found in cases directory")
	}

	var jobs []runner.TestJob
	for _, file := range suiteFiles {
		expanded, err := runner.LoadTestSuiteWithExpansion(file, "cases")
		if err != nil {
			t.Fatalf("Failed to load test suite %s: %v", file, err)
		}
		jobs = append(jobs, expanded...)
	}

	testRunner := runner.NewRunner(apiBaseURL())
	testRunner.Timeout = time.Duration(getIntEnv("TEST_TIMEOUT_SECONDS", 75)) * time.Second
	testRunner.ErrorHandlingMode = runner.ErrorHandlingMode(*errFlag)
	if runs > 1 {
		// multi-run collects complete statistics
		testRunner.ErrorHandlingMode = runner.ErrorHandlingContinue
	}
	testRunner.Logger = func(format string, args ...interface{}) {
		fmt.Printf(format+"\n", args...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	stats := make(map[string]*caseStats)
	var names []string
	for _, job := range jobs {
		if _, ok := stats[job.Name]; !ok {
			stats[job.Name] = &caseStats{}
			names = append(names, job.Name)
		}
	}

	for run := 1; run <= runs; run++ {
		if runs > 1 {
			t.Logf("=== RUN %d/%d ===", run, runs)
		}
		for i, job := range jobs {
			t.Logf("[%d/%d] Running test suite: %s (%d steps)", i+1, len(jobs), job.Name, len(job.Suite.Steps))

			result, _ := testRunner.RunSuite(ctx, job.Suite)
			t.Logf("Run ID: %s", result.RunID)

			s := stats[job.Name]
			if result.Error != nil {
				s.failures++
				t.Errorf("[%d/%d] FAILED: Test suite '%s': %v", i+1, len(jobs), job.Name, result.Error)
			} else {
				s.passes++
				t.Logf("[%d/%d] PASSED: Test suite '%s' completed in %v", i+1, len(jobs), job.Name, result.Duration)
			}

			for _, stepResult := range result.Results {
				if stepResult.Success {
					t.Logf("   ✓ %s (%v)", stepResult.StepName, stepResult.Duration)
				} else {
					t.Errorf("   ✗ %s: %v", stepResult.StepName, stepResult.Error)
				}
			}
			t.Logf("--------------------------------")

			if result.Error != nil && runs == 1 && *errFlag == "exit" {
				t.FailNow()
			}
		}
	}

	t.Log(buildFinalReport(runs, names, stats))
}

type caseStats struct {
	passes, failures int
}

// buildFinalReport creates the final statistics summary
func buildFinalReport(runs int, names []string, stats map[string]*caseStats) string {
	var sb strings.Builder
	sb.WriteString("\nIntegration Test Summary:\n")

	sort.Strings(names)
	for _, name := range names {
		s := stats[name]
		total := s.passes + s.failures
		if total == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("  %s: %d/%d passes (%.1f%%)\n", name, s.passes, total, float64(s.passes)/float64(total)*100))
		if runs > 1 && s.passes > 0 && s.failures > 0 {
			sb.WriteString("    ⚠️  FLAKY: This test both passed and failed across runs\n")
		}
	}
	return sb.String()
}

// Helper functions

func selectSuiteFiles(caseNames string) ([]string, error) {
	if caseNames == "" {
		return discoverTestFiles("cases")
	}
	var files []string
	for _, name := range strings.Split(caseNames, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !strings.HasSuffix(name, ".json") {
			name += ".json"
		}
		files = append(files, filepath.Join("cases", name))
	}
	return files, nil
}

func discoverTestFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(path, ".json") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func apiBaseURL() string {
	if v := os.Getenv("API_BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func getIntEnv(name string, defaultValue int) int {
	val, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return defaultValue
	}
	return val
}
