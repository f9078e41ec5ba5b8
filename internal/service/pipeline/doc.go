// Package pipeline orchestrates a packaging run end to end: target
// resolution, helper binary acquisition, the (possibly emulated) build
// step, package assembly and final artifact production. Stages run
// strictly in order; a failed stage halts the run while warnings are
// collected into the run summary.
package pipeline
