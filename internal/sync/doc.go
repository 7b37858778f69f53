// Package sync keeps the local snippet collection and its backup Gist in
// step.
//
// Overview
//
// The Engine owns three concerns:
//
//   - Session: authenticate with a GitHub token, disconnect, report status.
//   - Transfer: push the whole collection (create or update the Gist) and
//     pull it back (discover, fetch, decode), then reconcile by merge or
//     replace.
//   - Auto-sync: a best-effort push after every local mutation. Requests
//     that arrive while a push is in flight collapse into one follow-up run,
//     started after a short delay.
//
// Auto-sync state machine
//
// The auto-sync bookkeeping is an explicit State value. Transition is the
// pure function that moves it:
//
//	Idle      --Request-->    Syncing   start
//	Syncing   --Request-->    Pending
//	Pending   --Request-->    Pending
//	Syncing   --Done------>   Idle
//	Pending   --Done------>   Scheduled arm timer
//	Scheduled --Request-->    Syncing   cancel timer, start
//	Scheduled --TimerFired--> Syncing   start
//
// Any other TimerFired comes from a timer that was already cancelled and is
// dropped.
//
// Every network call made by the engine (manual or automatic) holds a single
// flight token, so at most one upload or download is in flight at a time.
package sync
