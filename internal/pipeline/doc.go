// Package pipeline orchestrates a llama.cpp installation: source sync,
// optional Python bootstrap, prerequisites, virtual environment, Python
// dependencies, build, and per model weight download, conversion and
// quantization. It also runs queries against the built inference binary.
//
// Steps run strictly one after another. Each step skips work whose output
// already exists on disk, so a rerun resumes where a previous one stopped.
// Stop is cooperative between steps and preemptive for the active process
// or download.
package pipeline
