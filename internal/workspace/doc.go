// Package workspace manages the work area that holds resolved per-page
// templates during a build, in either ephemeral or persistent mode.
//
// Ephemeral mode creates a fresh timestamped directory (e.g.
// pagetree-20251214-122336-*) per build and removes it on Cleanup, which suits
// the preview server and daemon where nobody inspects intermediate files.
//
// Persistent mode uses a fixed directory (output.work_dir) that survives the
// build so resolved templates can be inspected; it is reset at the start of
// every build, never on Cleanup.
package workspace
