// Package harness runs planning scenarios against a real store and planner.
//
// A scenario is a YAML file with a world fixture, a config block, a fixed
// cycle time and a list of assertions. Run seeds a fresh in-memory store,
// loads the snapshot through the same path as `probectl plan`, plans one
// cycle with a fixed cycle id and evaluates the assertions.
//
// RunWithGolden additionally compares the plan output against
// testdata/golden/{name}.golden. Regenerate golden files with:
//
//	go test ./internal/harness -update
package harness
