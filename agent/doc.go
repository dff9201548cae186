// Package agent implements the execution core of an autonomous coding
// agent: a turn-based loop that queries a model, interprets its output as
// either a final answer or tool invocations, executes tools under
// concurrency and failure constraints, and feeds results back until the
// task is judged complete.
//
// The package is organized around these core concepts:
//
//   - Loop: the orchestrator holding the transcript, dispatching tool
//     calls, managing events, and enforcing limits.
//   - ToolRegistry / Runner: registration and dispatch of tools, with
//     per-tool parallel-safety metadata.
//   - Classifier + Executor: partitions a tool-call batch into
//     parallel-safe and sequential groups and runs them in capped batches
//     with index-stable result ordering.
//   - CircuitBreaker: fail-fast guard against consecutive tool failures.
//   - StallDetector: layered progress supervision; injects corrective
//     nudges when the agent loiters in read-only exploration, leaves todos
//     unresolved, or never touches its target files.
//   - Emitter: typed event stream for host application integration.
//
// Context budget enforcement lives in the compact package; cross-agent
// coordination (plan approval, teammate messaging) in the team package.
//
// # Quick Start
//
//	client := inference.NewClient(adapter)
//	loop := agent.NewLoop(agent.Deps{Inference: client, Tools: registry}, nil)
//	defer loop.Close()
//
//	result, err := loop.Run(ctx, "Create a hello.py file")
package agent
