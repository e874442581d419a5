// The evaluation runner installs [State.ShortcutBuildCallback] as the
// store layer's missing-path hook; the worker-protocol reader calls
// [State.RecordCompletion] as BuildResult commands arrive, and a
// separate writer drains [State.Shortcut], writing each event as a
// frame on the worker's stdout toward the controller.
package evalstate
