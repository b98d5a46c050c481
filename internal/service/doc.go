// Package service contains the orchestration logic of the engine: the
// prediction persistence workflows, the accuracy tracker, and the Engine
// facade that ties pipeline stages to the task machinery and the
// scheduler. Services coordinate stores and providers; they hold no SQL
// and no model prompts themselves.
package service
