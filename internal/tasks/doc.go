// Package tasks is the catalog of task services a process can declare.
//
// Every service is registered by RegisterDefaults under the code used in the
// "service" field of a task declaration. Instances are created per run, so
// the buffers, cursors and pools they hold never outlive the run.
package tasks
