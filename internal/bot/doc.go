// Package bot is the job orchestrator: it interprets inbound chat
// events against each user's session state, collects job inputs across
// multi-message flows, dispatches transform jobs to the engine, and
// delivers results. One actor goroutine per user keeps that user's
// events in order while different users proceed concurrently.
package bot
