// Package tasks defines task objects and registers them with the edit engine
// under the "tasks.task" key. Tasks are addressed as T<id>.
package tasks
