// Package runloop drives a live UIAutomation engine over its file-based
// side channel: commands go down a named pipe, responses come back as
// delimited JSON frames appended to the engine's log.
//
// Invariants:
// - Command indexes assigned through a Session strictly increase.
// - The consumed log offset never moves backwards; no frame byte is decoded twice.
// - Fatal engine errors are surfaced immediately and never retried.
//
// Usage:
//
//	driver := runloop.New(runloop.Config{Logger: logger})
//	session := runloop.NewSession(pid, pipePath, logPath)
//	result, err := driver.SendCommand(ctx, session, "UIATarget.localTarget().frontMostApp().keyboard().typeString('hi')", runloop.SendOptions{})
package runloop
