// Package harness provides scenario and golden-file testing for rule
// compilation.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: adult_patient
//	description: "What this scenario validates"
//	rule: ../rules/adult.yaml
//	assertions:
//	  - type: definition_order
//	    names: [Patient, "Age 18 or older-p1", MeetsCriteria]
//	  - type: diagnostic_count
//	    code: unmapped-valueset
//	    count: 0
//	  - type: library_valid
//
// The rule path is resolved relative to the scenario file.
//
// # Assertion Types
//
//   - definition_order: Library statements appear with exactly these names, in order
//   - definition_exists: A statement with the given name exists
//   - diagnostic_count: A diagnostic code was recorded exactly N times
//   - compile_error: Compilation failed with the given error code
//   - library_valid: elm.Validate reports no warnings
//   - value_sets: The library declares exactly these value-set names, in order
//
// # Deterministic Testing
//
// Scenarios compile with a fixed run id and record into an in-memory store,
// so the library and its hash are identical across runs. Golden files hold
// canonical JSON and are compared with goldie:
//
//	go test ./internal/harness -update
package harness
