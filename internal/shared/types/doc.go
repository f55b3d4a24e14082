// Package types provides shared data structures for the recorder.
//
// This package defines core types used across all recorder components,
// ensuring type safety and consistent data structures.
//
// Core Types:
//   - TestCase: Recorded test case metadata
//   - ActionRecord: One ordered element of a test case's action log
//   - InputEvent: Normalized hardware event produced by the listener
//   - Update: Event window status notification
//
// State Management:
//   - SessionState: Recording session state enum
//   - StartingPoint: Environment the operator navigates to before recording
//   - Control: Hotkey-driven session control signal
package types
